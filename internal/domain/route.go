package domain

// RouteState lifecycle of a route. Transitions are enforced by the backend.
type RouteState string

const (
	RoutePlanned    RouteState = "Planned"
	RouteStarted    RouteState = "Started"
	RouteInProgress RouteState = "InProgress"
	RouteCompleted  RouteState = "Completed"
	RouteCancelled  RouteState = "Cancelled"
)

type Route struct {
	ID               string           `json:"id"`
	VehicleID        string           `json:"vehicleId,omitempty"`
	Jobs             []JobWithContact `json:"jobs"`
	State            RouteState       `json:"state"`
	StartTime        string           `json:"startTime,omitempty"` // RFC 3339
	EndTime          string           `json:"endTime,omitempty"`
	TotalCostInEuros float64          `json:"totalCostInEuros"`
}

// WithoutJobs returns a copy of r with the given jobs removed.
func (r Route) WithoutJobs(jobIDs []string) Route {
	drop := make(map[string]struct{}, len(jobIDs))
	for _, id := range jobIDs {
		drop[id] = struct{}{}
	}
	jobs := make([]JobWithContact, 0, len(r.Jobs))
	for _, j := range r.Jobs {
		if _, ok := drop[j.ID]; !ok {
			jobs = append(jobs, j)
		}
	}
	r.Jobs = jobs
	return r
}

type CreateRouteRequest struct {
	JobIDs           []string `json:"jobIds,omitempty"`
	VehicleID        string   `json:"vehicleId"`
	StartAfterCreate bool     `json:"startAfterCreate,omitempty"`
}

func (r CreateRouteRequest) Validate() error {
	return required("vehicleId", r.VehicleID)
}

type GetAllRoutesResult struct {
	Routes []Route `json:"routes"`
}

type StartRouteRequest struct {
	AvailableVehicleIDs []string `json:"availableVehicleIds"`
}

type StartRouteResult struct {
	OptimizedRoute Route `json:"optimizedRoute"`
}

type AddJobsToRouteRequest struct {
	JobIDs []string `json:"jobIds"`
}

type DeleteJobsFromRouteRequest struct {
	JobIDs []string `json:"jobIds"`
}
