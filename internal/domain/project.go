package domain

type DayOfWeek string

const (
	Sunday    DayOfWeek = "Sunday"
	Monday    DayOfWeek = "Monday"
	Tuesday   DayOfWeek = "Tuesday"
	Wednesday DayOfWeek = "Wednesday"
	Thursday  DayOfWeek = "Thursday"
	Friday    DayOfWeek = "Friday"
	Saturday  DayOfWeek = "Saturday"
)

type UserOfProject struct {
	UserID           string   `json:"userId"`
	Permissions      []Action `json:"permissions"`
	IsDefaultProject bool     `json:"isDefaultProject,omitempty"`
}

type Project struct {
	ID                             string            `json:"id"`
	Name                           string            `json:"name,omitempty"`
	Description                    string            `json:"description,omitempty"`
	CustomerIDRequired             bool              `json:"customerIdRequired"`
	DefaultPickupDurationInMinutes *int              `json:"defaultPickupDurationInMinutes,omitempty"`
	DepotAddress                   AddAddressRequest `json:"depotAddress"`
	DeliveryDays                   []DayOfWeek       `json:"deliveryDays,omitempty"`
	ContactLookupFields            []string          `json:"contactLookupFields"`
	Users                          []UserOfProject   `json:"users,omitempty"`
}

type AddProjectRequest struct {
	Name                           string            `json:"name"`
	Description                    string            `json:"description,omitempty"`
	Token                          string            `json:"token"` // billing token the project is created under
	CustomerIDRequired             bool              `json:"customerIdRequired"`
	DefaultPickupDurationInMinutes *int              `json:"defaultPickupDurationInMinutes,omitempty"`
	DepotAddress                   AddAddressRequest `json:"depotAddress"`
	DeliveryDays                   []DayOfWeek       `json:"deliveryDays,omitempty"`
	ContactLookupFields            []string          `json:"contactLookupFields"`
}

func (r AddProjectRequest) Validate() error {
	if err := required("name", r.Name); err != nil {
		return err
	}
	return required("token", r.Token)
}

// ProjectPatch partial update; nil fields are left unchanged.
type ProjectPatch struct {
	Name                           *string            `json:"name,omitempty"`
	Description                    *string            `json:"description,omitempty"`
	CustomerIDRequired             *bool              `json:"customerIdRequired,omitempty"`
	DefaultPickupDurationInMinutes *int               `json:"defaultPickupDurationInMinutes,omitempty"`
	DepotAddress                   *AddAddressRequest `json:"depotAddress,omitempty"`
	DeliveryDays                   *[]DayOfWeek       `json:"deliveryDays,omitempty"`
	ContactLookupFields            *[]string          `json:"contactLookupFields,omitempty"`
}

func (p ProjectPatch) Apply(pr Project) Project {
	if p.Name != nil {
		pr.Name = *p.Name
	}
	if p.Description != nil {
		pr.Description = *p.Description
	}
	if p.CustomerIDRequired != nil {
		pr.CustomerIDRequired = *p.CustomerIDRequired
	}
	if p.DefaultPickupDurationInMinutes != nil {
		d := *p.DefaultPickupDurationInMinutes
		pr.DefaultPickupDurationInMinutes = &d
	}
	if p.DepotAddress != nil {
		pr.DepotAddress = *p.DepotAddress
	}
	if p.DeliveryDays != nil {
		pr.DeliveryDays = *p.DeliveryDays
	}
	if p.ContactLookupFields != nil {
		pr.ContactLookupFields = *p.ContactLookupFields
	}
	return pr
}

type GetAllProjectsResult struct {
	Projects []Project `json:"projects"`
}

type GetSingleProjectResult struct {
	Project *Project `json:"project"`
}

type ProjectAnalyticsResult struct {
	AmountOfContacts       int            `json:"amountOfContacts"`
	AmountOfOpenJobs       int            `json:"amountOfOpenJobs"`
	AmountOfJobsInProgress int            `json:"amountOfJobsInProgress"`
	AmountOfFinishedJobs   int            `json:"amountOfFinishedJobs"`
	JobsPerDay             map[string]int `json:"jobsPerDay"`
}
