package store

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"routemaster/internal/api"
	"routemaster/internal/domain"
	"routemaster/internal/observable"

	"go.uber.org/zap"
)

const (
	DefaultJobsPage     = 0
	DefaultJobsPageSize = 20
)

// JobsFilter selects a page of jobs. Pages are zero-based; nil dates are not
// filtered on.
type JobsFilter struct {
	OnDate   *time.Time
	FromDate *time.Time
	ToDate   *time.Time
	States   []domain.JobState
	Page     int
	PageSize int
}

type jobPageKey struct {
	projectID string
	page      int
	pageSize  int
	onDate    string
	fromDate  string
	toDate    string
	states    string
}

func optionalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return domain.FormatDate(*t)
}

func joinStates(states []domain.JobState) string {
	parts := make([]string, len(states))
	for i, st := range states {
		parts[i] = string(st)
	}
	return strings.Join(parts, ",")
}

func newJobPageKey(projectID string, f JobsFilter) jobPageKey {
	k := jobPageKey{
		projectID: projectID,
		page:      f.Page,
		pageSize:  f.PageSize,
		onDate:    optionalDate(f.OnDate),
		fromDate:  optionalDate(f.FromDate),
		toDate:    optionalDate(f.ToDate),
		states:    joinStates(f.States),
	}
	if k.pageSize == 0 {
		k.pageSize = DefaultJobsPageSize
	}
	return k
}

func (k jobPageKey) query() url.Values {
	q := url.Values{
		"page":     {strconv.Itoa(k.page)},
		"pageSize": {strconv.Itoa(k.pageSize)},
	}
	for name, v := range map[string]string{
		"states":   k.states,
		"onDate":   k.onDate,
		"fromDate": k.fromDate,
		"toDate":   k.toDate,
	} {
		if v != "" {
			q.Set(name, v)
		}
	}
	return q
}

// JobsStore caches job pages and single jobs.
type JobsStore struct {
	base
	pages *queryCache[jobPageKey, domain.GetAllJobsResult]
	byID  *entityCache[domain.Job]
}

// NewJobsStore creates an empty jobs store on client.
func NewJobsStore(client Backend, opts Options) *JobsStore {
	return &JobsStore{
		base: newBase(client, opts, "jobs"),
		pages: newQueryCache[jobPageKey]("jobs.pages", func() domain.GetAllJobsResult {
			return domain.GetAllJobsResult{Jobs: []domain.Job{}}
		}, opts.Metrics),
		byID: newEntityCache("jobs.byId", idOfJob, opts.Metrics),
	}
}

// GetAllJobs returns one page of a project's jobs, fetching it at most once.
func (s *JobsStore) GetAllJobs(ctx context.Context, projectID string, filter JobsFilter) (domain.GetAllJobsResult, error) {
	key := newJobPageKey(projectID, filter)
	return s.pages.load(ctx, key, s.fetchPage(key))
}

// RefreshJobs re-fetches a page even when it is cached or failed.
func (s *JobsStore) RefreshJobs(ctx context.Context, projectID string, filter JobsFilter) (domain.GetAllJobsResult, error) {
	key := newJobPageKey(projectID, filter)
	return s.pages.refresh(ctx, key, s.fetchPage(key))
}

// WatchJobs observes a page of jobs and loads it when nothing is cached yet.
func (s *JobsStore) WatchJobs(projectID string, filter JobsFilter, next func(domain.GetAllJobsResult), onErr func(error)) observable.Subscription {
	sub, empty := s.pages.watch(newJobPageKey(projectID, filter), next, onErr)
	s.watchLoad("jobs.page", empty, func(ctx context.Context) error {
		_, err := s.GetAllJobs(ctx, projectID, filter)
		return err
	})
	return sub
}

func (s *JobsStore) fetchPage(key jobPageKey) func(context.Context) (domain.GetAllJobsResult, error) {
	return func(ctx context.Context) (domain.GetAllJobsResult, error) {
		var out domain.GetAllJobsResult
		if err := s.client.Get(ctx, api.Path("/v1/projects/%s/jobs", key.projectID), key.query(), &out); err != nil {
			return out, s.handleError(err, "get jobs", "Failed to fetch jobs.",
				zap.String("project_id", key.projectID), zap.Int("page", key.page))
		}
		if out.Jobs == nil {
			out.Jobs = []domain.Job{}
		}
		s.byID.merge(out.Jobs...)
		return out, nil
	}
}

// GetJobById returns a job from the by-id cache or the backend.
func (s *JobsStore) GetJobById(ctx context.Context, projectID, jobID string) (domain.Job, error) {
	return s.byID.load(ctx, jobID, func(ctx context.Context) (domain.Job, error) {
		var out domain.GetSingleJobResult
		err := s.client.Get(ctx, api.Path("/v1/projects/%s/jobs/%s", projectID, jobID), nil, &out)
		if err == nil && out.Job == nil {
			err = ErrNotFound
		}
		if err != nil {
			return domain.Job{}, s.handleError(err, "get job", "Failed to fetch job.",
				zap.String("project_id", projectID), zap.String("job_id", jobID))
		}
		return *out.Job, nil
	})
}

// WatchJob observes one job; ok is false while it is not cached.
func (s *JobsStore) WatchJob(projectID, jobID string, next func(domain.Job, bool), onErr func(error)) observable.Subscription {
	sub := s.byID.watch(jobID, next, onErr)
	_, cached := s.byID.get(jobID)
	s.watchLoad("jobs.job", !cached, func(ctx context.Context) error {
		_, err := s.GetJobById(ctx, projectID, jobID)
		return err
	})
	return sub
}

// CachedJob reads the by-id cache without touching the network.
func (s *JobsStore) CachedJob(jobID string) (domain.Job, bool) {
	return s.byID.get(jobID)
}

// AddJob creates a job. The server derives durations and ordering for new jobs,
// so the project's cached pages are re-fetched in the background.
func (s *JobsStore) AddJob(ctx context.Context, projectID string, req domain.AddJobRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	var id string
	if err := s.client.Post(ctx, api.Path("/v1/projects/%s/jobs", projectID), req, &id); err != nil {
		return "", s.handleError(err, "add job", "Failed to add job.", zap.String("project_id", projectID))
	}
	s.refreshProject(projectID)
	return id, nil
}

func (s *JobsStore) refreshProject(projectID string) {
	for _, key := range s.pages.readyKeys(func(k jobPageKey) bool { return k.projectID == projectID }) {
		key := key
		s.bg.Go("jobs.refresh", func(ctx context.Context) error {
			_, err := s.pages.refresh(ctx, key, s.fetchPage(key))
			return err
		})
	}
}

// UpdateJob applies patch to the cached job before the request is sent and
// restores the previous job if it fails. Cached pages follow on success.
func (s *JobsStore) UpdateJob(ctx context.Context, projectID, jobID string, patch domain.JobPatch) error {
	err := optimisticUpdate(s.byID, jobID, patch.Apply, func() error {
		return s.client.Put(ctx, api.Path("/v1/projects/%s/jobs/%s", projectID, jobID), patch, nil)
	})
	if err != nil {
		return s.handleError(err, "update job", "Failed to update job.",
			zap.String("project_id", projectID), zap.String("job_id", jobID))
	}
	s.replaceInPages(projectID, jobID, patch.Apply)
	return nil
}

// DeleteJobById drops the job from the cache at once and restores it if the
// backend refuses.
func (s *JobsStore) DeleteJobById(ctx context.Context, projectID, jobID string) error {
	err := optimisticRemove(s.byID, jobID, func() error {
		return s.client.Delete(ctx, api.Path("/v1/projects/%s/jobs/%s", projectID, jobID), nil, nil)
	})
	if err != nil {
		return s.handleError(err, "delete job", "Failed to delete job.",
			zap.String("project_id", projectID), zap.String("job_id", jobID))
	}
	s.removeFromPages(projectID, jobID)
	return nil
}

// ApplyRemoteJob merges a job changed elsewhere into the caches.
func (s *JobsStore) ApplyRemoteJob(projectID string, j domain.Job) {
	s.byID.put(j)
	s.replaceInPages(projectID, j.ID, func(domain.Job) domain.Job { return j })
}

// ApplyRemoteJobDeletion forgets a job deleted elsewhere.
func (s *JobsStore) ApplyRemoteJobDeletion(projectID, jobID string) {
	s.byID.remove(jobID)
	s.removeFromPages(projectID, jobID)
}

func idOfJob(j domain.Job) string { return j.ID }

func (s *JobsStore) replaceInPages(projectID, id string, fn func(domain.Job) domain.Job) {
	s.pages.patch(func(k jobPageKey) bool { return k.projectID == projectID },
		func(_ jobPageKey, v domain.GetAllJobsResult) (domain.GetAllJobsResult, bool) {
			i := indexOf(v.Jobs, id, idOfJob)
			if i < 0 {
				return v, false
			}
			jobs := append([]domain.Job(nil), v.Jobs...)
			jobs[i] = fn(jobs[i])
			return domain.GetAllJobsResult{Jobs: jobs, TotalCount: v.TotalCount}, true
		})
}

func (s *JobsStore) removeFromPages(projectID, id string) {
	s.pages.patch(func(k jobPageKey) bool { return k.projectID == projectID },
		func(_ jobPageKey, v domain.GetAllJobsResult) (domain.GetAllJobsResult, bool) {
			i := indexOf(v.Jobs, id, idOfJob)
			if i < 0 {
				return v, false
			}
			return domain.GetAllJobsResult{Jobs: without(v.Jobs, i), TotalCount: max(v.TotalCount-1, 0)}, true
		})
}

// Close stops background refreshes.
func (s *JobsStore) Close() { s.bg.Close() }
