package domain

// Contact delivery recipient
type Contact struct {
	ID         string  `json:"id"`
	CustomerID string  `json:"customerId,omitempty"`
	FirstName  string  `json:"firstName"`
	LastName   string  `json:"lastName"`
	Email      string  `json:"email,omitempty"`
	Phone      string  `json:"phone,omitempty"`
	Address    Address `json:"address"`
}

type AddContactRequest struct {
	FirstName  string            `json:"firstName"`
	LastName   string            `json:"lastName"`
	Email      string            `json:"email,omitempty"`
	Phone      string            `json:"phone,omitempty"`
	CustomerID string            `json:"customerId,omitempty"`
	Address    AddAddressRequest `json:"address"`
}

func (r AddContactRequest) Validate() error {
	if err := required("firstName", r.FirstName); err != nil {
		return err
	}
	return required("lastName", r.LastName)
}

// ToContact builds the cached record for a contact the server accepted under id.
func (r AddContactRequest) ToContact(id string) Contact {
	return Contact{
		ID:         id,
		CustomerID: r.CustomerID,
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		Email:      r.Email,
		Phone:      r.Phone,
		Address:    r.Address.ToAddress(),
	}
}

// ContactPatch partial update; nil fields are left unchanged.
type ContactPatch struct {
	CustomerID *string  `json:"customerId,omitempty"`
	FirstName  *string  `json:"firstName,omitempty"`
	LastName   *string  `json:"lastName,omitempty"`
	Email      *string  `json:"email,omitempty"`
	Phone      *string  `json:"phone,omitempty"`
	Address    *Address `json:"address,omitempty"`
}

// Apply returns c with the patch merged over it.
func (p ContactPatch) Apply(c Contact) Contact {
	if p.CustomerID != nil {
		c.CustomerID = *p.CustomerID
	}
	if p.FirstName != nil {
		c.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		c.LastName = *p.LastName
	}
	if p.Email != nil {
		c.Email = *p.Email
	}
	if p.Phone != nil {
		c.Phone = *p.Phone
	}
	if p.Address != nil {
		c.Address = *p.Address
	}
	return c
}

type GetAllContactsResult struct {
	Contacts              []Contact `json:"contacts"`
	MatchingContactsCount int       `json:"matchingContactsCount"`
}

type GetContactByIDResult struct {
	Contact *Contact `json:"contact"`
}

type GetContactsByIDsRequest struct {
	ContactIDs []string `json:"contactIds"`
}

type LookupContactsResult struct {
	Contacts              []Contact `json:"contacts"`
	MatchingContactsCount int       `json:"matchingContactsCount"`
}
