package store

import (
	"context"

	"routemaster/internal/api"
	"routemaster/internal/domain"
	"routemaster/internal/observable"

	"go.uber.org/zap"
)

// the signed-in user's project list is a single slot
const myProjects = "me"

// ProjectsStore caches the user's projects. Analytics are shared between
// concurrent callers but never cached.
type ProjectsStore struct {
	base
	list      *queryCache[string, domain.GetAllProjectsResult]
	byID      *entityCache[domain.Project]
	analytics flightGroup[string, domain.ProjectAnalyticsResult]
}

// NewProjectsStore creates an empty projects store on client.
func NewProjectsStore(client Backend, opts Options) *ProjectsStore {
	return &ProjectsStore{
		base: newBase(client, opts, "projects"),
		list: newQueryCache[string]("projects.list", func() domain.GetAllProjectsResult {
			return domain.GetAllProjectsResult{Projects: []domain.Project{}}
		}, opts.Metrics),
		byID: newEntityCache("projects.byId", idOfProject, opts.Metrics),
	}
}

func idOfProject(p domain.Project) string { return p.ID }

// GetAllProjectsOfUser returns the signed-in user's projects.
func (s *ProjectsStore) GetAllProjectsOfUser(ctx context.Context) (domain.GetAllProjectsResult, error) {
	return s.list.load(ctx, myProjects, s.fetchList)
}

// RefreshProjects re-fetches the project list.
func (s *ProjectsStore) RefreshProjects(ctx context.Context) (domain.GetAllProjectsResult, error) {
	return s.list.refresh(ctx, myProjects, s.fetchList)
}

// WatchProjects observes the project list.
func (s *ProjectsStore) WatchProjects(next func(domain.GetAllProjectsResult), onErr func(error)) observable.Subscription {
	sub, empty := s.list.watch(myProjects, next, onErr)
	s.watchLoad("projects.list", empty, func(ctx context.Context) error {
		_, err := s.GetAllProjectsOfUser(ctx)
		return err
	})
	return sub
}

func (s *ProjectsStore) fetchList(ctx context.Context) (domain.GetAllProjectsResult, error) {
	var out domain.GetAllProjectsResult
	if err := s.client.Get(ctx, "/v1/projects", nil, &out); err != nil {
		return out, s.handleError(err, "get projects", "Failed to load projects.")
	}
	if out.Projects == nil {
		out.Projects = []domain.Project{}
	}
	s.byID.merge(out.Projects...)
	return out, nil
}

// GetProjectById returns a project from the by-id cache or the backend.
func (s *ProjectsStore) GetProjectById(ctx context.Context, projectID string) (domain.Project, error) {
	return s.byID.load(ctx, projectID, func(ctx context.Context) (domain.Project, error) {
		var out domain.GetSingleProjectResult
		err := s.client.Get(ctx, api.Path("/v1/projects/%s", projectID), nil, &out)
		if err == nil && out.Project == nil {
			err = ErrNotFound
		}
		if err != nil {
			return domain.Project{}, s.handleError(err, "get project", "Failed to load project.",
				zap.String("project_id", projectID))
		}
		return *out.Project, nil
	})
}

// WatchProject observes one project.
func (s *ProjectsStore) WatchProject(projectID string, next func(domain.Project, bool), onErr func(error)) observable.Subscription {
	sub := s.byID.watch(projectID, next, onErr)
	_, cached := s.byID.get(projectID)
	s.watchLoad("projects.project", !cached, func(ctx context.Context) error {
		_, err := s.GetProjectById(ctx, projectID)
		return err
	})
	return sub
}

// CachedProject reads the by-id cache only.
func (s *ProjectsStore) CachedProject(projectID string) (domain.Project, bool) {
	return s.byID.get(projectID)
}

// AddProject creates a project. The list carries server-side membership data,
// so it is re-fetched in the background rather than patched.
func (s *ProjectsStore) AddProject(ctx context.Context, req domain.AddProjectRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	var id string
	if err := s.client.Post(ctx, "/v1/projects", req, &id); err != nil {
		return "", s.handleError(err, "add project", "Failed to create project.")
	}
	if _, loaded := s.list.peek(myProjects); loaded {
		s.bg.Go("projects.refresh", func(ctx context.Context) error {
			_, err := s.RefreshProjects(ctx)
			return err
		})
	}
	return id, nil
}

// UpdateProject renames or edits a project optimistically.
func (s *ProjectsStore) UpdateProject(ctx context.Context, projectID string, patch domain.ProjectPatch) error {
	err := optimisticUpdate(s.byID, projectID, patch.Apply, func() error {
		return s.client.Put(ctx, api.Path("/v1/projects/%s", projectID), patch, nil)
	})
	if err != nil {
		return s.handleError(err, "update project", "Failed to update project.", zap.String("project_id", projectID))
	}
	s.replaceInList(projectID, patch.Apply)
	return nil
}

// DeleteProjectById removes a project optimistically.
func (s *ProjectsStore) DeleteProjectById(ctx context.Context, projectID string) error {
	err := optimisticRemove(s.byID, projectID, func() error {
		return s.client.Delete(ctx, api.Path("/v1/projects/%s", projectID), nil, nil)
	})
	if err != nil {
		return s.handleError(err, "delete project", "Failed to delete project.", zap.String("project_id", projectID))
	}
	s.removeFromList(projectID)
	return nil
}

// GetProjectAnalytics fetches fresh analytics; concurrent callers share one request.
func (s *ProjectsStore) GetProjectAnalytics(ctx context.Context, projectID string) (domain.ProjectAnalyticsResult, error) {
	v, _, err := s.analytics.do(ctx, projectID, func(ctx context.Context) (domain.ProjectAnalyticsResult, error) {
		var out domain.ProjectAnalyticsResult
		if err := s.client.Get(ctx, api.Path("/v1/projects/%s/analytics", projectID), nil, &out); err != nil {
			return out, s.handleError(err, "get project analytics", "Failed to load project analytics.",
				zap.String("project_id", projectID))
		}
		return out, nil
	}, nil)
	return v, err
}

// ApplyRemoteProject merges a project changed elsewhere.
func (s *ProjectsStore) ApplyRemoteProject(p domain.Project) {
	s.byID.put(p)
	s.replaceInList(p.ID, func(domain.Project) domain.Project { return p })
}

// ApplyRemoteProjectDeletion forgets a project deleted elsewhere.
func (s *ProjectsStore) ApplyRemoteProjectDeletion(projectID string) {
	s.byID.remove(projectID)
	s.removeFromList(projectID)
}

func (s *ProjectsStore) replaceInList(projectID string, fn func(domain.Project) domain.Project) {
	s.list.patch(nil, func(_ string, v domain.GetAllProjectsResult) (domain.GetAllProjectsResult, bool) {
		i := indexOf(v.Projects, projectID, idOfProject)
		if i < 0 {
			return v, false
		}
		projects := append([]domain.Project(nil), v.Projects...)
		projects[i] = fn(projects[i])
		return domain.GetAllProjectsResult{Projects: projects}, true
	})
}

func (s *ProjectsStore) removeFromList(projectID string) {
	s.list.patch(nil, func(_ string, v domain.GetAllProjectsResult) (domain.GetAllProjectsResult, bool) {
		i := indexOf(v.Projects, projectID, idOfProject)
		if i < 0 {
			return v, false
		}
		return domain.GetAllProjectsResult{Projects: without(v.Projects, i)}, true
	})
}

func (s *ProjectsStore) Close() { s.bg.Close() }
