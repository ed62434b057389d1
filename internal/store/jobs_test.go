package store

import (
	"context"
	"net/http"
	"testing"
	"time"

	"routemaster/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingJob(id string) domain.Job {
	return domain.Job{ID: id, ContactID: "c1", OnDate: "2024-05-02", Priority: 1, State: domain.JobPending}
}

func TestJobs_QueryAlwaysCarriesPaging(t *testing.T) {
	backend := newFakeBackend(t)
	backend.reply(http.MethodGet, "/v1/projects/p1/jobs", http.StatusOK, domain.GetAllJobsResult{
		Jobs:       []domain.Job{pendingJob("j1")},
		TotalCount: 1,
	})
	opts, _, _ := testOptions()
	s := NewJobsStore(backend.client(), opts)
	defer s.Close()

	ctx := context.Background()
	_, err := s.GetAllJobs(ctx, "p1", JobsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.count("GET /v1/projects/p1/jobs?page=0&pageSize=20"))

	on := time.Date(2024, 5, 2, 15, 0, 0, 0, time.UTC)
	_, err = s.GetAllJobs(ctx, "p1", JobsFilter{
		OnDate: &on,
		States: []domain.JobState{domain.JobPending, domain.JobInProgress},
		Page:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.count("GET /v1/projects/p1/jobs?onDate=2024-05-02&page=2&pageSize=20&states=Pending%2CInProgress"))

	j, ok := s.CachedJob("j1")
	require.True(t, ok)
	assert.Equal(t, domain.JobPending, j.State)
}

func TestJobs_AddRefreshesCachedPages(t *testing.T) {
	backend := newFakeBackend(t)
	backend.reply(http.MethodGet, "/v1/projects/p1/jobs", http.StatusOK, domain.GetAllJobsResult{Jobs: []domain.Job{pendingJob("j1")}, TotalCount: 1})
	backend.reply(http.MethodPost, "/v1/projects/p1/jobs", http.StatusOK, "j2")
	opts, _, _ := testOptions()
	s := NewJobsStore(backend.client(), opts)
	defer s.Close()

	ctx := context.Background()
	_, err := s.GetAllJobs(ctx, "p1", JobsFilter{})
	require.NoError(t, err)

	_, err = s.AddJob(ctx, "p1", domain.AddJobRequest{ContactID: "c1", OnDate: "02.05.2024"})
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 0, backend.countAny(http.MethodPost, "/v1/projects/p1/jobs"))

	backend.reply(http.MethodGet, "/v1/projects/p1/jobs", http.StatusOK, domain.GetAllJobsResult{
		Jobs:       []domain.Job{pendingJob("j1"), pendingJob("j2")},
		TotalCount: 2,
	})
	id, err := s.AddJob(ctx, "p1", domain.AddJobRequest{ContactID: "c1", OnDate: "2024-05-02", Priority: 1})
	require.NoError(t, err)
	assert.Equal(t, "j2", id)

	s.bg.Wait()
	assert.Equal(t, 2, backend.count("GET /v1/projects/p1/jobs?page=0&pageSize=20"))
	page, err := s.GetAllJobs(ctx, "p1", JobsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalCount)
	assert.JSONEq(t, `{"contactId":"c1","description":"","onDate":"2024-05-02","priority":1}`,
		backend.lastBody(http.MethodPost, "/v1/projects/p1/jobs"))
}

func TestJobs_FailedStateChangeRollsBack(t *testing.T) {
	backend := newFakeBackend(t)
	backend.reply(http.MethodGet, "/v1/projects/p1/jobs", http.StatusOK, domain.GetAllJobsResult{Jobs: []domain.Job{pendingJob("j1")}, TotalCount: 1})
	inFlight := make(chan struct{})
	release := make(chan struct{})
	backend.handle(http.MethodPut, "/v1/projects/p1/jobs/j1", func(w http.ResponseWriter, _ *http.Request) {
		close(inFlight)
		<-release
		writeJSON(w, http.StatusConflict, map[string]string{"message": "job already completed"})
	})
	opts, notifier, _ := testOptions()
	s := NewJobsStore(backend.client(), opts)
	defer s.Close()

	ctx := context.Background()
	_, err := s.GetAllJobs(ctx, "p1", JobsFilter{})
	require.NoError(t, err)

	done := make(chan error, 1)
	state := domain.JobInProgress
	go func() { done <- s.UpdateJob(ctx, "p1", "j1", domain.JobPatch{State: &state}) }()

	<-inFlight
	j, _ := s.CachedJob("j1")
	assert.Equal(t, domain.JobInProgress, j.State)

	close(release)
	require.Error(t, <-done)
	j, _ = s.CachedJob("j1")
	assert.Equal(t, domain.JobPending, j.State)
	page, _ := s.GetAllJobs(ctx, "p1", JobsFilter{})
	assert.Equal(t, domain.JobPending, page.Jobs[0].State)
	assert.Equal(t, []string{"Failed to update job."}, notifier.errors())
}

func TestJobs_DeleteShrinksPages(t *testing.T) {
	backend := newFakeBackend(t)
	backend.reply(http.MethodGet, "/v1/projects/p1/jobs", http.StatusOK, domain.GetAllJobsResult{
		Jobs:       []domain.Job{pendingJob("j1"), pendingJob("j2")},
		TotalCount: 2,
	})
	backend.reply(http.MethodDelete, "/v1/projects/p1/jobs/j1", http.StatusNoContent, nil)
	opts, _, _ := testOptions()
	s := NewJobsStore(backend.client(), opts)
	defer s.Close()

	ctx := context.Background()
	_, err := s.GetAllJobs(ctx, "p1", JobsFilter{})
	require.NoError(t, err)

	require.NoError(t, s.DeleteJobById(ctx, "p1", "j1"))
	page, _ := s.GetAllJobs(ctx, "p1", JobsFilter{})
	require.Len(t, page.Jobs, 1)
	assert.Equal(t, "j2", page.Jobs[0].ID)
	assert.Equal(t, 1, page.TotalCount)
	_, ok := s.CachedJob("j1")
	assert.False(t, ok)
}

func TestJobs_WatchLoadsOnFirstSubscription(t *testing.T) {
	backend := newFakeBackend(t)
	backend.reply(http.MethodGet, "/v1/projects/p1/jobs/j1", http.StatusOK, domain.GetSingleJobResult{Job: ptr(pendingJob("j1"))})
	opts, _, _ := testOptions()
	s := NewJobsStore(backend.client(), opts)
	defer s.Close()

	seen := make(chan domain.Job, 4)
	sub := s.WatchJob("p1", "j1", func(j domain.Job, ok bool) {
		if ok {
			seen <- j
		}
	}, nil)
	defer sub.Unsubscribe()

	select {
	case j := <-seen:
		assert.Equal(t, "j1", j.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("job was never published")
	}

	s.ApplyRemoteJob("p1", domain.Job{ID: "j1", ContactID: "c1", State: domain.JobCompleted})
	select {
	case j := <-seen:
		assert.Equal(t, domain.JobCompleted, j.State)
	case <-time.After(2 * time.Second):
		t.Fatal("remote change was never published")
	}
	assert.Equal(t, 1, backend.countAny(http.MethodGet, "/v1/projects/p1/jobs/j1"))
}
