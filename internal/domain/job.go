package domain

// JobState lifecycle of a delivery job. Transitions are enforced by the backend.
type JobState string

const (
	JobPending    JobState = "Pending"
	JobInProgress JobState = "InProgress"
	JobCompleted  JobState = "Completed"
	JobCancelled  JobState = "Cancelled"
)

func (s JobState) Valid() bool {
	switch s {
	case JobPending, JobInProgress, JobCompleted, JobCancelled:
		return true
	}
	return false
}

// TimeWindow delivery window, HH:mm:ss in UTC
type TimeWindow struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type Job struct {
	ID                                string             `json:"id"`
	ContactID                         string             `json:"contactId"`
	Description                       string             `json:"description,omitempty"`
	OrderIndex                        *int               `json:"orderIndex,omitempty"`
	OnDate                            string             `json:"onDate"`
	Priority                          int                `json:"priority"`
	EstimatedOnsiteDurationInMinutes  int                `json:"estimatedOnsiteDurationInMinutes"`
	State                             JobState           `json:"state"`
	PickUp                            *AddAddressRequest `json:"pickUp,omitempty"`
	TimeLimitBetweenPickupAndDelivery string             `json:"timeLimitBetweenPickupAndDelivery,omitempty"`
	TimeWindows                       []TimeWindow       `json:"timeWindows,omitempty"`
	Notes                             string             `json:"notes,omitempty"`
}

// JobWithContact is a job as embedded in a route.
type JobWithContact struct {
	Job
	Contact *Contact `json:"contact,omitempty"`
}

type AddJobRequest struct {
	ContactID                         string             `json:"contactId"`
	Description                       string             `json:"description"`
	OnDate                            string             `json:"onDate"`
	Priority                          int                `json:"priority"`
	Notes                             string             `json:"notes,omitempty"`
	PickUp                            *AddAddressRequest `json:"pickUp,omitempty"`
	TimeLimitBetweenPickupAndDelivery *int               `json:"timeLimitBetweenPickupAndDelivery,omitempty"` // minutes
	TimeWindows                       []TimeWindow       `json:"timeWindows,omitempty"`
}

func (r AddJobRequest) Validate() error {
	if err := required("contactId", r.ContactID); err != nil {
		return err
	}
	if err := required("onDate", r.OnDate); err != nil {
		return err
	}
	if _, err := ParseDate(r.OnDate); err != nil {
		return &ValidationError{Field: "onDate", Reason: "must be yyyy-MM-dd"}
	}
	return nil
}

// JobPatch partial update; nil fields are left unchanged.
type JobPatch struct {
	ContactID   *string       `json:"contactId,omitempty"`
	Description *string       `json:"description,omitempty"`
	OnDate      *string       `json:"onDate,omitempty"`
	Priority    *int          `json:"priority,omitempty"`
	State       *JobState     `json:"state,omitempty"`
	Notes       *string       `json:"notes,omitempty"`
	TimeWindows *[]TimeWindow `json:"timeWindows,omitempty"`
}

func (p JobPatch) Apply(j Job) Job {
	if p.ContactID != nil {
		j.ContactID = *p.ContactID
	}
	if p.Description != nil {
		j.Description = *p.Description
	}
	if p.OnDate != nil {
		j.OnDate = *p.OnDate
	}
	if p.Priority != nil {
		j.Priority = *p.Priority
	}
	if p.State != nil {
		j.State = *p.State
	}
	if p.Notes != nil {
		j.Notes = *p.Notes
	}
	if p.TimeWindows != nil {
		j.TimeWindows = *p.TimeWindows
	}
	return j
}

type GetAllJobsResult struct {
	Jobs       []Job `json:"jobs"`
	TotalCount int   `json:"totalCount"`
}

type GetSingleJobResult struct {
	Job *Job `json:"job"`
}
