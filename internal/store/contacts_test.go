package store

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"routemaster/internal/api"
	"routemaster/internal/domain"
	"routemaster/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func anna() domain.Contact {
	return domain.Contact{ID: "c1", FirstName: "Anna", LastName: "Muster", Address: domain.Address{City: "Berlin"}}
}

func TestContacts_ConcurrentPageReadsShareOneRequest(t *testing.T) {
	backend := newFakeBackend(t)
	release := make(chan struct{})
	backend.handle(http.MethodGet, "/v1/projects/p1/contacts", func(w http.ResponseWriter, _ *http.Request) {
		<-release
		writeJSON(w, http.StatusOK, domain.GetAllContactsResult{Contacts: []domain.Contact{anna()}, MatchingContactsCount: 1})
	})
	opts, _, m := testOptions()
	s := NewContactsStore(backend.client(), opts)
	defer s.Close()

	var wg sync.WaitGroup
	results := make([]domain.GetAllContactsResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.GetAllContactsOfProject(context.Background(), "p1", ContactsFilter{Page: 1})
		}(i)
	}

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.CacheLookups().WithLabelValues("contacts.pages", metrics.ResultShared)) == 1
	}, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 1, backend.count("GET /v1/projects/p1/contacts?page=1"))
	assert.Equal(t, 1, backend.countAny(http.MethodGet, "/v1/projects/p1/contacts"))
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, 1, results[0].MatchingContactsCount)
}

func TestContacts_CachedPageServedFromMemory(t *testing.T) {
	backend := newFakeBackend(t)
	backend.reply(http.MethodGet, "/v1/projects/p1/contacts", http.StatusOK,
		domain.GetAllContactsResult{Contacts: []domain.Contact{anna()}, MatchingContactsCount: 1})
	opts, _, _ := testOptions()
	s := NewContactsStore(backend.client(), opts)
	defer s.Close()

	ctx := context.Background()
	_, err := s.GetAllContactsOfProject(ctx, "p1", ContactsFilter{})
	require.NoError(t, err)
	// explicit defaults address the same slot
	_, err = s.GetAllContactsOfProject(ctx, "p1", ContactsFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)

	assert.Equal(t, 1, backend.countAny(http.MethodGet, "/v1/projects/p1/contacts"))

	// page contacts feed the by-id cache
	c, err := s.GetContactById(ctx, "p1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "Anna", c.FirstName)
	assert.Zero(t, backend.countAny(http.MethodGet, "/v1/projects/p1/contacts/c1"))
}

func TestContacts_AddedContactIsServedByID(t *testing.T) {
	backend := newFakeBackend(t)
	backend.reply(http.MethodPost, "/v1/projects/p1/contacts", http.StatusOK, "c42")
	opts, _, _ := testOptions()
	s := NewContactsStore(backend.client(), opts)
	defer s.Close()

	ctx := context.Background()
	id, err := s.AddContact(ctx, "p1", domain.AddContactRequest{
		FirstName: "Anna",
		LastName:  "Muster",
		Address:   domain.AddAddressRequest{Street: "Eisenstraße", HouseNumber: "3", City: "Berlin"},
	})
	require.NoError(t, err)
	assert.Equal(t, "c42", id)

	c, err := s.GetContactById(ctx, "p1", "c42")
	require.NoError(t, err)
	assert.Equal(t, "c42", c.ID)
	assert.Equal(t, "Anna", c.FirstName)
	assert.Equal(t, "Berlin", c.Address.City)
	assert.Zero(t, backend.countAny(http.MethodGet, "/v1/projects/p1/contacts/c42"))
}

func TestContacts_AddRejectsMissingNameWithoutRequest(t *testing.T) {
	backend := newFakeBackend(t)
	opts, notifier, _ := testOptions()
	s := NewContactsStore(backend.client(), opts)
	defer s.Close()

	_, err := s.AddContact(context.Background(), "p1", domain.AddContactRequest{FirstName: "Anna"})
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "lastName", vErr.Field)
	assert.Zero(t, backend.countAny(http.MethodPost, "/v1/projects/p1/contacts"))
	assert.Empty(t, notifier.errors())
}

func TestContacts_AddPatchesOpenPages(t *testing.T) {
	backend := newFakeBackend(t)
	backend.handle(http.MethodGet, "/v1/projects/p1/contacts", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("search") != "" {
			writeJSON(w, http.StatusOK, domain.GetAllContactsResult{Contacts: []domain.Contact{anna()}, MatchingContactsCount: 1})
			return
		}
		switch r.URL.Query().Get("page") {
		case "2":
			writeJSON(w, http.StatusOK, domain.GetAllContactsResult{
				Contacts:              []domain.Contact{{ID: "c3"}},
				MatchingContactsCount: 3,
			})
		default:
			writeJSON(w, http.StatusOK, domain.GetAllContactsResult{
				Contacts:              []domain.Contact{anna(), {ID: "c2"}},
				MatchingContactsCount: 3,
			})
		}
	})
	backend.reply(http.MethodPost, "/v1/projects/p1/contacts", http.StatusOK, "c42")
	opts, _, _ := testOptions()
	s := NewContactsStore(backend.client(), opts)
	defer s.Close()

	ctx := context.Background()
	_, err := s.GetAllContactsOfProject(ctx, "p1", ContactsFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	_, err = s.GetAllContactsOfProject(ctx, "p1", ContactsFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	_, err = s.GetAllContactsOfProject(ctx, "p1", ContactsFilter{Search: "Anna"})
	require.NoError(t, err)

	var watched []domain.GetAllContactsResult
	sub := s.WatchContactsPage("p1", ContactsFilter{Page: 2, PageSize: 2}, func(v domain.GetAllContactsResult) {
		watched = append(watched, v)
	}, nil)
	defer sub.Unsubscribe()

	_, err = s.AddContact(ctx, "p1", domain.AddContactRequest{FirstName: "Neu", LastName: "Kunde"})
	require.NoError(t, err)

	page1, err := s.GetAllContactsOfProject(ctx, "p1", ContactsFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, page1.MatchingContactsCount)
	assert.Len(t, page1.Contacts, 2, "full first page keeps its size")

	page2, err := s.GetAllContactsOfProject(ctx, "p1", ContactsFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, page2.MatchingContactsCount)
	require.Len(t, page2.Contacts, 2)
	assert.Equal(t, "c42", page2.Contacts[1].ID)

	searched, err := s.GetAllContactsOfProject(ctx, "p1", ContactsFilter{Search: "Anna"})
	require.NoError(t, err)
	assert.Equal(t, 1, searched.MatchingContactsCount)

	require.Len(t, watched, 2)
	assert.Len(t, watched[0].Contacts, 1)
	assert.Len(t, watched[1].Contacts, 2)
}

func TestContacts_AddPrependsToFirstPageWithRoom(t *testing.T) {
	backend := newFakeBackend(t)
	backend.reply(http.MethodGet, "/v1/projects/p1/contacts", http.StatusOK,
		domain.GetAllContactsResult{Contacts: []domain.Contact{anna()}, MatchingContactsCount: 1})
	backend.reply(http.MethodPost, "/v1/projects/p1/contacts", http.StatusOK, "c42")
	opts, _, _ := testOptions()
	s := NewContactsStore(backend.client(), opts)
	defer s.Close()

	ctx := context.Background()
	before, err := s.GetAllContactsOfProject(ctx, "p1", ContactsFilter{})
	require.NoError(t, err)

	_, err = s.AddContact(ctx, "p1", domain.AddContactRequest{FirstName: "Neu", LastName: "Kunde"})
	require.NoError(t, err)

	after, err := s.GetAllContactsOfProject(ctx, "p1", ContactsFilter{})
	require.NoError(t, err)
	require.Len(t, after.Contacts, 2)
	assert.Equal(t, "c42", after.Contacts[0].ID)
	assert.Equal(t, 2, after.MatchingContactsCount)
	assert.Len(t, before.Contacts, 1, "earlier snapshot is not mutated")
}

func TestContacts_BatchGetRequestsOnlyMissingIDs(t *testing.T) {
	backend := newFakeBackend(t)
	backend.reply(http.MethodGet, "/v1/projects/p1/contacts/c1", http.StatusOK, domain.GetContactByIDResult{Contact: ptr(anna())})
	backend.reply(http.MethodPost, "/v1/projects/p1/contacts/batch-get", http.StatusOK, domain.GetAllContactsResult{
		Contacts: []domain.Contact{{ID: "c2", FirstName: "Bernd"}, {ID: "c3", FirstName: "Clara"}},
	})
	opts, _, _ := testOptions()
	s := NewContactsStore(backend.client(), opts)
	defer s.Close()

	ctx := context.Background()
	_, err := s.GetContactById(ctx, "p1", "c1")
	require.NoError(t, err)

	contacts, err := s.GetContactsByIds(ctx, "p1", []string{"c1", "c2", "c3"})
	require.NoError(t, err)
	require.Len(t, contacts, 3)
	assert.Equal(t, []string{"c1", "c2", "c3"}, []string{contacts[0].ID, contacts[1].ID, contacts[2].ID})
	assert.JSONEq(t, `{"contactIds":["c2","c3"]}`, backend.lastBody(http.MethodPost, "/v1/projects/p1/contacts/batch-get"))

	// everything is cached now
	_, err = s.GetContactsByIds(ctx, "p1", []string{"c3", "c1"})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.countAny(http.MethodPost, "/v1/projects/p1/contacts/batch-get"))
}

func TestContacts_LookupThresholdAndCache(t *testing.T) {
	backend := newFakeBackend(t)
	backend.reply(http.MethodGet, "/v1/projects/p1/contacts/lookup", http.StatusOK,
		domain.LookupContactsResult{Contacts: []domain.Contact{anna()}, MatchingContactsCount: 1})
	opts, _, _ := testOptions()
	s := NewContactsStore(backend.client(), opts)
	defer s.Close()

	ctx := context.Background()
	for _, short := range []string{"", "A", "Ann", "Müh"} {
		res, err := s.LookupContacts(ctx, "p1", short, nil)
		require.NoError(t, err)
		assert.Empty(t, res.Contacts)
		assert.Zero(t, res.MatchingContactsCount)
	}
	assert.Zero(t, backend.countAny(http.MethodGet, "/v1/projects/p1/contacts/lookup"))

	for i := 0; i < 2; i++ {
		res, err := s.LookupContacts(ctx, "p1", "Anna", []string{"city", "zip"})
		require.NoError(t, err)
		assert.Equal(t, 1, res.MatchingContactsCount)
	}
	assert.Equal(t, 1, backend.count("GET /v1/projects/p1/contacts/lookup?additionalFields=city%2Czip&search=Anna"))

	_, err := s.LookupContacts(ctx, "p1", "Anna", []string{"city"})
	require.NoError(t, err)
	assert.Equal(t, 2, backend.countAny(http.MethodGet, "/v1/projects/p1/contacts/lookup"))
}

func TestContacts_FailedLookupIsNotCached(t *testing.T) {
	backend := newFakeBackend(t)
	backend.reply(http.MethodGet, "/v1/projects/p1/contacts/lookup", http.StatusBadGateway, nil)
	opts, _, _ := testOptions()
	s := NewContactsStore(backend.client(), opts)
	defer s.Close()

	ctx := context.Background()
	_, err := s.LookupContacts(ctx, "p1", "Anna", nil)
	require.Error(t, err)

	backend.reply(http.MethodGet, "/v1/projects/p1/contacts/lookup", http.StatusOK, domain.LookupContactsResult{MatchingContactsCount: 7})
	res, err := s.LookupContacts(ctx, "p1", "Anna", nil)
	require.NoError(t, err)
	assert.Equal(t, 7, res.MatchingContactsCount)
}

func TestContacts_UpdateRollsBackOnFailure(t *testing.T) {
	backend := newFakeBackend(t)
	backend.reply(http.MethodGet, "/v1/projects/p1/contacts/c1", http.StatusOK, domain.GetContactByIDResult{Contact: ptr(anna())})
	backend.reply(http.MethodPut, "/v1/projects/p1/contacts/c1", http.StatusInternalServerError, map[string]string{"message": "boom"})
	opts, notifier, _ := testOptions()
	s := NewContactsStore(backend.client(), opts)
	defer s.Close()

	ctx := context.Background()
	before, err := s.GetContactById(ctx, "p1", "c1")
	require.NoError(t, err)

	var seen []string
	sub := s.WatchContact("p1", "c1", func(c domain.Contact, ok bool) {
		if ok {
			seen = append(seen, c.FirstName)
		}
	}, nil)
	defer sub.Unsubscribe()

	err = s.UpdateContact(ctx, "p1", "c1", domain.ContactPatch{FirstName: strPtr("Anne")})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, api.StatusCode(err))

	after, ok := s.CachedContact("c1")
	require.True(t, ok)
	assert.Equal(t, before, after)
	assert.Equal(t, []string{"Anna", "Anne", "Anna"}, seen)
	assert.Equal(t, []string{"Failed to update contact."}, notifier.errors())
}

func TestContacts_UpdatePatchesPagesAfterConfirmation(t *testing.T) {
	backend := newFakeBackend(t)
	backend.reply(http.MethodGet, "/v1/projects/p1/contacts", http.StatusOK,
		domain.GetAllContactsResult{Contacts: []domain.Contact{anna()}, MatchingContactsCount: 1})
	backend.reply(http.MethodPut, "/v1/projects/p1/contacts/c1", http.StatusNoContent, nil)
	opts, _, _ := testOptions()
	s := NewContactsStore(backend.client(), opts)
	defer s.Close()

	ctx := context.Background()
	_, err := s.GetAllContactsOfProject(ctx, "p1", ContactsFilter{})
	require.NoError(t, err)

	require.NoError(t, s.UpdateContact(ctx, "p1", "c1", domain.ContactPatch{Email: strPtr("anna@example.com")}))

	c, ok := s.CachedContact("c1")
	require.True(t, ok)
	assert.Equal(t, "anna@example.com", c.Email)
	assert.Equal(t, "Anna", c.FirstName)

	page, err := s.GetAllContactsOfProject(ctx, "p1", ContactsFilter{})
	require.NoError(t, err)
	assert.Equal(t, "anna@example.com", page.Contacts[0].Email)
	assert.JSONEq(t, `{"email":"anna@example.com"}`, backend.lastBody(http.MethodPut, "/v1/projects/p1/contacts/c1"))
}

func TestContacts_UpdateOfUncachedContactLeavesCacheAlone(t *testing.T) {
	backend := newFakeBackend(t)
	backend.reply(http.MethodPut, "/v1/projects/p1/contacts/c9", http.StatusNoContent, nil)
	opts, _, _ := testOptions()
	s := NewContactsStore(backend.client(), opts)
	defer s.Close()

	require.NoError(t, s.UpdateContact(context.Background(), "p1", "c9", domain.ContactPatch{FirstName: strPtr("X")}))
	_, ok := s.CachedContact("c9")
	assert.False(t, ok)
	assert.Equal(t, 1, backend.countAny(http.MethodPut, "/v1/projects/p1/contacts/c9"))
}

func TestContacts_DeleteRestoresOnFailureAndRemovesOnSuccess(t *testing.T) {
	backend := newFakeBackend(t)
	backend.reply(http.MethodGet, "/v1/projects/p1/contacts", http.StatusOK,
		domain.GetAllContactsResult{Contacts: []domain.Contact{anna()}, MatchingContactsCount: 1})
	backend.reply(http.MethodDelete, "/v1/projects/p1/contacts/c1", http.StatusConflict, map[string]string{"message": "contact has jobs"})
	opts, _, _ := testOptions()
	s := NewContactsStore(backend.client(), opts)
	defer s.Close()

	ctx := context.Background()
	_, err := s.GetAllContactsOfProject(ctx, "p1", ContactsFilter{})
	require.NoError(t, err)

	err = s.DeleteContactById(ctx, "p1", "c1")
	require.Error(t, err)
	assert.Equal(t, "contact has jobs", api.Message(err))
	c, ok := s.CachedContact("c1")
	require.True(t, ok)
	assert.Equal(t, anna(), c)

	backend.reply(http.MethodDelete, "/v1/projects/p1/contacts/c1", http.StatusNoContent, nil)
	require.NoError(t, s.DeleteContactById(ctx, "p1", "c1"))
	_, ok = s.CachedContact("c1")
	assert.False(t, ok)

	page, err := s.GetAllContactsOfProject(ctx, "p1", ContactsFilter{})
	require.NoError(t, err)
	assert.Empty(t, page.Contacts)
	assert.Zero(t, page.MatchingContactsCount)
}

func TestContacts_CanceledReadWritesNothingAndIsNotNotified(t *testing.T) {
	backend := newFakeBackend(t)
	started := make(chan struct{}, 1)
	backend.handle(http.MethodGet, "/v1/projects/p1/contacts", func(w http.ResponseWriter, r *http.Request) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-r.Context().Done()
	})
	opts, notifier, _ := testOptions()
	s := NewContactsStore(backend.client(), opts)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := s.GetAllContactsOfProject(ctx, "p1", ContactsFilter{})
	require.Error(t, err)
	assert.True(t, api.IsCanceled(err))
	assert.Empty(t, notifier.errors())

	require.Eventually(t, func() bool {
		return !s.pages.flights.inFlight(newContactPageKey("p1", ContactsFilter{}))
	}, time.Second, 5*time.Millisecond)
	_, cached := s.pages.peek(newContactPageKey("p1", ContactsFilter{}))
	assert.False(t, cached)

	backend.reply(http.MethodGet, "/v1/projects/p1/contacts", http.StatusOK, domain.GetAllContactsResult{MatchingContactsCount: 5})
	res, err := s.GetAllContactsOfProject(context.Background(), "p1", ContactsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, res.MatchingContactsCount)
}

func TestContacts_OneCallerCancelingDoesNotAbortOthers(t *testing.T) {
	backend := newFakeBackend(t)
	release := make(chan struct{})
	backend.handle(http.MethodGet, "/v1/projects/p1/contacts", func(w http.ResponseWriter, _ *http.Request) {
		<-release
		writeJSON(w, http.StatusOK, domain.GetAllContactsResult{MatchingContactsCount: 2})
	})
	opts, _, m := testOptions()
	s := NewContactsStore(backend.client(), opts)
	defer s.Close()
	key := newContactPageKey("p1", ContactsFilter{})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := s.GetAllContactsOfProject(ctx, "p1", ContactsFilter{})
		first <- err
	}()
	require.Eventually(t, func() bool { return s.pages.flights.inFlight(key) }, time.Second, 5*time.Millisecond)

	second := make(chan domain.GetAllContactsResult, 1)
	go func() {
		res, _ := s.GetAllContactsOfProject(context.Background(), "p1", ContactsFilter{})
		second <- res
	}()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.CacheLookups().WithLabelValues("contacts.pages", metrics.ResultShared)) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.True(t, api.IsCanceled(<-first))

	close(release)
	assert.Equal(t, 2, (<-second).MatchingContactsCount)
	assert.Equal(t, 1, backend.countAny(http.MethodGet, "/v1/projects/p1/contacts"))
}

func TestContacts_FailedPageIsStickyUntilRefresh(t *testing.T) {
	backend := newFakeBackend(t)
	backend.reply(http.MethodGet, "/v1/projects/p1/contacts", http.StatusInternalServerError, nil)
	opts, notifier, _ := testOptions()
	s := NewContactsStore(backend.client(), opts)
	defer s.Close()

	var watchErr error
	sub := s.WatchContactsPage("p1", ContactsFilter{}, nil, func(err error) { watchErr = err })
	defer sub.Unsubscribe()
	s.bg.Wait()

	require.Error(t, watchErr)
	_, err := s.GetAllContactsOfProject(context.Background(), "p1", ContactsFilter{})
	require.Error(t, err)
	assert.Equal(t, 1, backend.countAny(http.MethodGet, "/v1/projects/p1/contacts"))
	assert.Equal(t, []string{"Failed to fetch contacts."}, notifier.errors())

	backend.reply(http.MethodGet, "/v1/projects/p1/contacts", http.StatusOK, domain.GetAllContactsResult{MatchingContactsCount: 1})
	res, err := s.RefreshContactsPage(context.Background(), "p1", ContactsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.MatchingContactsCount)

	res, err = s.GetAllContactsOfProject(context.Background(), "p1", ContactsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.MatchingContactsCount)
	assert.Equal(t, 2, backend.countAny(http.MethodGet, "/v1/projects/p1/contacts"))
}

func TestContacts_ApplyRemoteChanges(t *testing.T) {
	backend := newFakeBackend(t)
	backend.reply(http.MethodGet, "/v1/projects/p1/contacts", http.StatusOK,
		domain.GetAllContactsResult{Contacts: []domain.Contact{anna()}, MatchingContactsCount: 1})
	opts, _, _ := testOptions()
	s := NewContactsStore(backend.client(), opts)
	defer s.Close()

	ctx := context.Background()
	_, err := s.GetAllContactsOfProject(ctx, "p1", ContactsFilter{})
	require.NoError(t, err)

	changed := anna()
	changed.Phone = "+49 30 1234"
	s.ApplyRemoteContact("p1", changed)
	page, _ := s.GetAllContactsOfProject(ctx, "p1", ContactsFilter{})
	assert.Equal(t, "+49 30 1234", page.Contacts[0].Phone)

	s.ApplyRemoteContactDeletion("p1", "c1")
	page, _ = s.GetAllContactsOfProject(ctx, "p1", ContactsFilter{})
	assert.Empty(t, page.Contacts)
	_, ok := s.CachedContact("c1")
	assert.False(t, ok)
}

func ptr[T any](v T) *T { return &v }
