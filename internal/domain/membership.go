package domain

// Action permission a user holds within a project
type Action string

const (
	ActionManageUsers         Action = "ManageUsers"
	ActionDeleteProject       Action = "DeleteProject"
	ActionEditProjectSettings Action = "EditProjectSettings"
	ActionEditUserPermissions Action = "EditUserPermissions"
	ActionUploadFiles         Action = "UploadFiles"
)

type AddUserToProjectRequest struct {
	Permissions      []Action `json:"permissions"`
	IsDefaultProject bool     `json:"isDefaultProject,omitempty"`
}

type AddUserToProjectResult struct {
	UserID      string `json:"userId"`
	ProjectID   string `json:"projectId"`
	ProjectName string `json:"projectName"`
}

type ProjectOfUser struct {
	ProjectID        string   `json:"projectId"`
	ProjectName      string   `json:"projectName"`
	Permissions      []Action `json:"permissions"`
	IsDefaultProject bool     `json:"isDefaultProject,omitempty"`
}

// Can reports whether the membership grants a.
func (p ProjectOfUser) Can(a Action) bool {
	for _, granted := range p.Permissions {
		if granted == a {
			return true
		}
	}
	return false
}
