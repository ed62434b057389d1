package domain

type User struct {
	ID            string          `json:"id"`
	UserName      string          `json:"userName"`
	Email         string          `json:"email"`
	BillingTokens []BillingToken  `json:"billingTokens,omitempty"`
	Projects      []ProjectOfUser `json:"projects,omitempty"`
}

// Project returns the membership for projectID, if any.
func (u User) Project(projectID string) (ProjectOfUser, bool) {
	for _, p := range u.Projects {
		if p.ProjectID == projectID {
			return p, true
		}
	}
	return ProjectOfUser{}, false
}

type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

func (r RegisterRequest) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"firstName", r.FirstName},
		{"lastName", r.LastName},
		{"email", r.Email},
		{"password", r.Password},
	} {
		if err := required(f.name, f.value); err != nil {
			return err
		}
	}
	return nil
}
