package store

import (
	"context"
	"net/url"
	"strings"
	"time"

	"routemaster/internal/api"
	"routemaster/internal/domain"
	"routemaster/internal/observable"

	"go.uber.org/zap"
)

// RoutesFilter narrows a project's routes; zero fields are not sent.
type RoutesFilter struct {
	FromDate *time.Time
	ToDate   *time.Time
	States   []domain.RouteState
}

type routeListKey struct {
	projectID string
	fromDate  string
	toDate    string
	states    string
}

func newRouteListKey(projectID string, f RoutesFilter) routeListKey {
	states := make([]string, len(f.States))
	for i, st := range f.States {
		states[i] = string(st)
	}
	return routeListKey{
		projectID: projectID,
		fromDate:  optionalDate(f.FromDate),
		toDate:    optionalDate(f.ToDate),
		states:    strings.Join(states, ","),
	}
}

func (k routeListKey) query() url.Values {
	q := url.Values{}
	if k.fromDate != "" {
		q.Set("fromDate", k.fromDate)
	}
	if k.toDate != "" {
		q.Set("toDate", k.toDate)
	}
	if k.states != "" {
		q.Set("routeStates", k.states)
	}
	return q
}

// RoutesStore caches route lists per filter and routes by id.
type RoutesStore struct {
	base
	lists *queryCache[routeListKey, domain.GetAllRoutesResult]
	byID  *entityCache[domain.Route]
}

// NewRoutesStore creates an empty routes store on client.
func NewRoutesStore(client Backend, opts Options) *RoutesStore {
	return &RoutesStore{
		base: newBase(client, opts, "routes"),
		lists: newQueryCache[routeListKey]("routes.lists", func() domain.GetAllRoutesResult {
			return domain.GetAllRoutesResult{Routes: []domain.Route{}}
		}, opts.Metrics),
		byID: newEntityCache("routes.byId", idOfRoute, opts.Metrics),
	}
}

func idOfRoute(r domain.Route) string { return r.ID }

// GetAllRoutes returns the routes matching filter, fetching them at most once.
func (s *RoutesStore) GetAllRoutes(ctx context.Context, projectID string, filter RoutesFilter) (domain.GetAllRoutesResult, error) {
	key := newRouteListKey(projectID, filter)
	return s.lists.load(ctx, key, s.fetchList(key))
}

// RefreshRoutes re-fetches a route list.
func (s *RoutesStore) RefreshRoutes(ctx context.Context, projectID string, filter RoutesFilter) (domain.GetAllRoutesResult, error) {
	key := newRouteListKey(projectID, filter)
	return s.lists.refresh(ctx, key, s.fetchList(key))
}

// WatchRoutes observes a route list and loads it on first subscription.
func (s *RoutesStore) WatchRoutes(projectID string, filter RoutesFilter, next func(domain.GetAllRoutesResult), onErr func(error)) observable.Subscription {
	sub, empty := s.lists.watch(newRouteListKey(projectID, filter), next, onErr)
	s.watchLoad("routes.list", empty, func(ctx context.Context) error {
		_, err := s.GetAllRoutes(ctx, projectID, filter)
		return err
	})
	return sub
}

// WatchRoute observes a route loaded through any list.
func (s *RoutesStore) WatchRoute(routeID string, next func(domain.Route, bool), onErr func(error)) observable.Subscription {
	return s.byID.watch(routeID, next, onErr)
}

// CachedRoute reads the by-id cache only.
func (s *RoutesStore) CachedRoute(routeID string) (domain.Route, bool) {
	return s.byID.get(routeID)
}

func (s *RoutesStore) fetchList(key routeListKey) func(context.Context) (domain.GetAllRoutesResult, error) {
	return func(ctx context.Context) (domain.GetAllRoutesResult, error) {
		var out domain.GetAllRoutesResult
		if err := s.client.Get(ctx, api.Path("/v1/projects/%s/routes", key.projectID), key.query(), &out); err != nil {
			return out, s.handleError(err, "get routes", "Failed to fetch routes.", zap.String("project_id", key.projectID))
		}
		if out.Routes == nil {
			out.Routes = []domain.Route{}
		}
		s.byID.merge(out.Routes...)
		return out, nil
	}
}

// refreshProject re-fetches every cached list of the project in the background.
func (s *RoutesStore) refreshProject(projectID string) {
	for _, key := range s.lists.readyKeys(func(k routeListKey) bool { return k.projectID == projectID }) {
		key := key
		s.bg.Go("routes.refresh", func(ctx context.Context) error {
			_, err := s.lists.refresh(ctx, key, s.fetchList(key))
			return err
		})
	}
}

// CreateRoute creates a route and refreshes the project's loaded lists in the
// background.
func (s *RoutesStore) CreateRoute(ctx context.Context, projectID string, req domain.CreateRouteRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	var id string
	if err := s.client.Post(ctx, api.Path("/v1/projects/%s/routes", projectID), req, &id); err != nil {
		return "", s.handleError(err, "create route", "Failed to create route.", zap.String("project_id", projectID))
	}
	s.refreshProject(projectID)
	s.notifySuccess("Route created successfully!")
	return id, nil
}

// AddJobsToRoute assigns jobs; the backend re-plans the route, so loaded lists
// are refreshed.
func (s *RoutesStore) AddJobsToRoute(ctx context.Context, projectID, routeID string, req domain.AddJobsToRouteRequest) error {
	if err := s.client.Post(ctx, api.Path("/v1/projects/%s/routes/%s", projectID, routeID), req, nil); err != nil {
		return s.handleError(err, "add jobs to route", "Failed to add jobs to route.",
			zap.String("project_id", projectID), zap.String("route_id", routeID))
	}
	s.refreshProject(projectID)
	s.notifySuccess("Jobs added to route successfully!")
	return nil
}

// DeleteRoute removes the route optimistically and restores it on failure.
func (s *RoutesStore) DeleteRoute(ctx context.Context, projectID, routeID string) error {
	err := optimisticRemove(s.byID, routeID, func() error {
		return s.client.Delete(ctx, api.Path("/v1/projects/%s/routes/%s", projectID, routeID), nil, nil)
	})
	if err != nil {
		return s.handleError(err, "delete route", "Failed to delete route.",
			zap.String("project_id", projectID), zap.String("route_id", routeID))
	}
	s.removeFromLists(projectID, routeID)
	s.notifySuccess("Route deleted successfully!")
	return nil
}

// DeleteJobsFromRoute drops the jobs from the cached route at once and puts
// them back if the backend refuses.
func (s *RoutesStore) DeleteJobsFromRoute(ctx context.Context, projectID, routeID string, req domain.DeleteJobsFromRouteRequest) error {
	drop := func(r domain.Route) domain.Route { return r.WithoutJobs(req.JobIDs) }
	err := optimisticUpdate(s.byID, routeID, drop, func() error {
		return s.client.Delete(ctx, api.Path("/v1/projects/%s/routes/%s/jobs", projectID, routeID), nil, req)
	})
	if err != nil {
		return s.handleError(err, "remove jobs from route", "Failed to remove jobs from route.",
			zap.String("project_id", projectID), zap.String("route_id", routeID))
	}
	s.replaceInLists(projectID, routeID, drop)
	s.notifySuccess("Jobs removed from route successfully!")
	return nil
}

// StartRoute starts a route and caches the optimized route the backend returns.
func (s *RoutesStore) StartRoute(ctx context.Context, projectID, routeID string, req domain.StartRouteRequest) (domain.StartRouteResult, error) {
	var out domain.StartRouteResult
	if err := s.client.Post(ctx, api.Path("/v1/projects/%s/routes/%s/start", projectID, routeID), req, &out); err != nil {
		return out, s.handleError(err, "start route", "Failed to start route.",
			zap.String("project_id", projectID), zap.String("route_id", routeID))
	}
	route := out.OptimizedRoute
	if route.ID == "" {
		route.ID = routeID
	}
	s.ApplyRemoteRoute(projectID, route)
	s.notifySuccess("Route started successfully!")
	return out, nil
}

// ApplyRemoteRoute merges a route changed elsewhere into the caches.
func (s *RoutesStore) ApplyRemoteRoute(projectID string, r domain.Route) {
	s.byID.put(r)
	s.replaceInLists(projectID, r.ID, func(domain.Route) domain.Route { return r })
}

// ApplyRemoteRouteDeletion forgets a route deleted elsewhere.
func (s *RoutesStore) ApplyRemoteRouteDeletion(projectID, routeID string) {
	s.byID.remove(routeID)
	s.removeFromLists(projectID, routeID)
}

func (s *RoutesStore) replaceInLists(projectID, routeID string, fn func(domain.Route) domain.Route) {
	s.lists.patch(func(k routeListKey) bool { return k.projectID == projectID },
		func(_ routeListKey, v domain.GetAllRoutesResult) (domain.GetAllRoutesResult, bool) {
			i := indexOf(v.Routes, routeID, idOfRoute)
			if i < 0 {
				return v, false
			}
			routes := append([]domain.Route(nil), v.Routes...)
			routes[i] = fn(routes[i])
			return domain.GetAllRoutesResult{Routes: routes}, true
		})
}

func (s *RoutesStore) removeFromLists(projectID, routeID string) {
	s.lists.patch(func(k routeListKey) bool { return k.projectID == projectID },
		func(_ routeListKey, v domain.GetAllRoutesResult) (domain.GetAllRoutesResult, bool) {
			i := indexOf(v.Routes, routeID, idOfRoute)
			if i < 0 {
				return v, false
			}
			return domain.GetAllRoutesResult{Routes: without(v.Routes, i)}, true
		})
}

func (s *RoutesStore) Close() { s.bg.Close() }
