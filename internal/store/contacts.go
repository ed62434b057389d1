package store

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"routemaster/internal/api"
	"routemaster/internal/domain"
	"routemaster/internal/observable"

	"go.uber.org/zap"
)

const (
	DefaultContactsPage     = 1
	DefaultContactsPageSize = 20

	// LookupMinLength shorter search texts never reach the backend.
	LookupMinLength = 4
)

// ContactsFilter selects one page of a project's contacts. Zero fields fall back
// to the defaults and are not sent.
type ContactsFilter struct {
	Page     int
	PageSize int
	Search   string
}

func (f ContactsFilter) query() url.Values {
	q := url.Values{}
	if f.Page != 0 {
		q["page"] = []string{strconv.Itoa(f.Page)}
	}
	if f.PageSize != 0 {
		q["pageSize"] = []string{strconv.Itoa(f.PageSize)}
	}
	if f.Search != "" {
		q["search"] = []string{f.Search}
	}
	return q
}

type contactPageKey struct {
	projectID string
	page      int
	pageSize  int
	search    string
}

func newContactPageKey(projectID string, f ContactsFilter) contactPageKey {
	k := contactPageKey{projectID: projectID, page: f.Page, pageSize: f.PageSize, search: f.Search}
	if k.page == 0 {
		k.page = DefaultContactsPage
	}
	if k.pageSize == 0 {
		k.pageSize = DefaultContactsPageSize
	}
	return k
}

type lookupKey struct {
	projectID string
	search    string
	fields    string
}

// ContactsStore caches contact pages, single contacts and lookups.
type ContactsStore struct {
	base
	pages   *queryCache[contactPageKey, domain.GetAllContactsResult]
	lookups *queryCache[lookupKey, domain.LookupContactsResult]
	byID    *entityCache[domain.Contact]
}

// NewContactsStore creates an empty contacts store on client.
func NewContactsStore(client Backend, opts Options) *ContactsStore {
	s := &ContactsStore{
		base: newBase(client, opts, "contacts"),
		pages: newQueryCache[contactPageKey](
			"contacts.pages", emptyContactsResult, opts.Metrics),
		lookups: newQueryCache[lookupKey](
			"contacts.lookup", func() domain.LookupContactsResult { return domain.LookupContactsResult{} }, opts.Metrics),
		byID: newEntityCache("contacts.byId", func(c domain.Contact) string { return c.ID }, opts.Metrics),
	}
	s.lookups.transient = true
	return s
}

func emptyContactsResult() domain.GetAllContactsResult {
	return domain.GetAllContactsResult{Contacts: []domain.Contact{}}
}

// GetAllContactsOfProject returns one page of contacts, fetching it at most once.
func (s *ContactsStore) GetAllContactsOfProject(ctx context.Context, projectID string, filter ContactsFilter) (domain.GetAllContactsResult, error) {
	return s.pages.load(ctx, newContactPageKey(projectID, filter), s.fetchPage(projectID, filter))
}

// RefreshContactsPage re-fetches a page even if it is cached.
func (s *ContactsStore) RefreshContactsPage(ctx context.Context, projectID string, filter ContactsFilter) (domain.GetAllContactsResult, error) {
	return s.pages.refresh(ctx, newContactPageKey(projectID, filter), s.fetchPage(projectID, filter))
}

// WatchContactsPage observes a page, loading it if needed.
func (s *ContactsStore) WatchContactsPage(projectID string, filter ContactsFilter, next func(domain.GetAllContactsResult), onErr func(error)) observable.Subscription {
	sub, empty := s.pages.watch(newContactPageKey(projectID, filter), next, onErr)
	s.watchLoad("contacts.page", empty, func(ctx context.Context) error {
		_, err := s.GetAllContactsOfProject(ctx, projectID, filter)
		return err
	})
	return sub
}

func (s *ContactsStore) fetchPage(projectID string, filter ContactsFilter) func(context.Context) (domain.GetAllContactsResult, error) {
	return func(ctx context.Context) (domain.GetAllContactsResult, error) {
		var out domain.GetAllContactsResult
		err := s.client.Get(ctx, api.Path("/v1/projects/%s/contacts", projectID), filter.query(), &out)
		if err != nil {
			return out, s.handleError(err, "get contacts", "Failed to fetch contacts.",
				zap.String("project_id", projectID), zap.Int("page", filter.Page))
		}
		if out.Contacts == nil {
			out.Contacts = []domain.Contact{}
		}
		s.byID.merge(out.Contacts...)
		return out, nil
	}
}

// GetContactById serves a single contact from the by-id cache or fetches just
// that contact.
func (s *ContactsStore) GetContactById(ctx context.Context, projectID, contactID string) (domain.Contact, error) {
	return s.byID.load(ctx, contactID, func(ctx context.Context) (domain.Contact, error) {
		var out domain.GetContactByIDResult
		err := s.client.Get(ctx, api.Path("/v1/projects/%s/contacts/%s", projectID, contactID), nil, &out)
		if err == nil && out.Contact == nil {
			err = ErrNotFound
		}
		if err != nil {
			return domain.Contact{}, s.handleError(err, "get contact", "Failed to load contact.",
				zap.String("project_id", projectID), zap.String("contact_id", contactID))
		}
		return *out.Contact, nil
	})
}

// WatchContact observes one contact; ok is false while it is not cached.
func (s *ContactsStore) WatchContact(projectID, contactID string, next func(c domain.Contact, ok bool), onErr func(error)) observable.Subscription {
	sub := s.byID.watch(contactID, next, onErr)
	_, cached := s.byID.get(contactID)
	s.watchLoad("contacts.contact", !cached, func(ctx context.Context) error {
		_, err := s.GetContactById(ctx, projectID, contactID)
		return err
	})
	return sub
}

// CachedContact returns the by-id cache entry without touching the network.
func (s *ContactsStore) CachedContact(contactID string) (domain.Contact, bool) {
	return s.byID.get(contactID)
}

// GetContactsByIds returns the requested contacts in request order, fetching
// only those not cached in a single batch request. Ids the backend does not
// know are left out.
func (s *ContactsStore) GetContactsByIds(ctx context.Context, projectID string, contactIDs []string) ([]domain.Contact, error) {
	_, missing := s.byID.partition(contactIDs)
	if len(missing) > 0 {
		var out domain.GetAllContactsResult
		err := s.client.Post(ctx, api.Path("/v1/projects/%s/contacts/batch-get", projectID),
			domain.GetContactsByIDsRequest{ContactIDs: missing}, &out)
		if err != nil {
			return nil, s.handleError(err, "batch get contacts", "Failed to load contacts.",
				zap.String("project_id", projectID), zap.Int("missing", len(missing)))
		}
		wanted := make(map[string]struct{}, len(missing))
		for _, id := range missing {
			wanted[id] = struct{}{}
		}
		fetched := make([]domain.Contact, 0, len(out.Contacts))
		for _, c := range out.Contacts {
			if _, ok := wanted[c.ID]; ok {
				fetched = append(fetched, c)
			}
		}
		s.byID.merge(fetched...)
	}

	found, _ := s.byID.partition(contactIDs)
	return found, nil
}

// LookupContacts runs the backend's fuzzy contact lookup. Search texts shorter
// than LookupMinLength return an empty result without a request.
func (s *ContactsStore) LookupContacts(ctx context.Context, projectID, search string, additionalFields []string) (domain.LookupContactsResult, error) {
	if utf8.RuneCountInString(search) < LookupMinLength {
		return domain.LookupContactsResult{Contacts: []domain.Contact{}}, nil
	}
	fields := strings.Join(additionalFields, ",")
	key := lookupKey{projectID: projectID, search: search, fields: fields}
	return s.lookups.load(ctx, key, func(ctx context.Context) (domain.LookupContactsResult, error) {
		var out domain.LookupContactsResult
		query := url.Values{"search": {search}, "additionalFields": {fields}}
		err := s.client.Get(ctx, api.Path("/v1/projects/%s/contacts/lookup", projectID), query, &out)
		if err != nil {
			return out, s.handleError(err, "lookup contacts", "Failed to look up contacts.",
				zap.String("project_id", projectID))
		}
		if out.Contacts == nil {
			out.Contacts = []domain.Contact{}
		}
		return out, nil
	})
}

// AddContact creates a contact and returns its server-assigned id. The new
// contact is cached and inserted into open pages of the project.
func (s *ContactsStore) AddContact(ctx context.Context, projectID string, req domain.AddContactRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	var id string
	if err := s.client.Post(ctx, api.Path("/v1/projects/%s/contacts", projectID), req, &id); err != nil {
		return "", s.handleError(err, "add contact", "Failed to add contact.", zap.String("project_id", projectID))
	}

	contact := req.ToContact(id)
	s.byID.put(contact)
	s.insertIntoPages(projectID, contact)
	s.logger.Debug("Contact added", zap.String("project_id", projectID), zap.String("contact_id", id))
	return id, nil
}

// insertIntoPages counts the contact on every unsearched page of the project,
// prepends it to page 1 and appends it to the last cached page, as long as
// they have room.
func (s *ContactsStore) insertIntoPages(projectID string, c domain.Contact) {
	unsearched := func(k contactPageKey) bool { return k.projectID == projectID && k.search == "" }

	maxPage := 0
	for _, k := range s.pages.readyKeys(unsearched) {
		if k.page > maxPage {
			maxPage = k.page
		}
	}

	s.pages.patch(unsearched, func(k contactPageKey, v domain.GetAllContactsResult) (domain.GetAllContactsResult, bool) {
		next := domain.GetAllContactsResult{MatchingContactsCount: v.MatchingContactsCount + 1, Contacts: v.Contacts}
		hasRoom := len(v.Contacts) < k.pageSize
		switch {
		case k.page == DefaultContactsPage && hasRoom:
			next.Contacts = append([]domain.Contact{c}, v.Contacts...)
		case k.page > DefaultContactsPage && k.page == maxPage && hasRoom:
			next.Contacts = append(append(make([]domain.Contact, 0, len(v.Contacts)+1), v.Contacts...), c)
		}
		return next, true
	})
}

// UpdateContact applies patch optimistically and rolls the cached contact back
// if the backend rejects it.
func (s *ContactsStore) UpdateContact(ctx context.Context, projectID, contactID string, patch domain.ContactPatch) error {
	err := optimisticUpdate(s.byID, contactID, patch.Apply, func() error {
		return s.client.Put(ctx, api.Path("/v1/projects/%s/contacts/%s", projectID, contactID), patch, nil)
	})
	if err != nil {
		return s.handleError(err, "update contact", "Failed to update contact.",
			zap.String("project_id", projectID), zap.String("contact_id", contactID))
	}
	s.replaceInPages(projectID, contactID, patch.Apply)
	return nil
}

// DeleteContactById removes the contact optimistically and re-inserts it if the
// backend rejects the deletion.
func (s *ContactsStore) DeleteContactById(ctx context.Context, projectID, contactID string) error {
	err := optimisticRemove(s.byID, contactID, func() error {
		return s.client.Delete(ctx, api.Path("/v1/projects/%s/contacts/%s", projectID, contactID), nil, nil)
	})
	if err != nil {
		return s.handleError(err, "delete contact", "Failed to delete contact.",
			zap.String("project_id", projectID), zap.String("contact_id", contactID))
	}
	s.removeFromPages(projectID, contactID)
	return nil
}

// ApplyRemoteContact merges a contact changed elsewhere into the caches.
func (s *ContactsStore) ApplyRemoteContact(projectID string, c domain.Contact) {
	s.byID.put(c)
	s.replaceInPages(projectID, c.ID, func(domain.Contact) domain.Contact { return c })
}

// ApplyRemoteContactDeletion drops a contact deleted elsewhere from the caches.
func (s *ContactsStore) ApplyRemoteContactDeletion(projectID, contactID string) {
	s.byID.remove(contactID)
	s.removeFromPages(projectID, contactID)
}

func (s *ContactsStore) replaceInPages(projectID, contactID string, fn func(domain.Contact) domain.Contact) {
	s.pages.patch(func(k contactPageKey) bool { return k.projectID == projectID },
		func(_ contactPageKey, v domain.GetAllContactsResult) (domain.GetAllContactsResult, bool) {
			i := indexOf(v.Contacts, contactID, func(c domain.Contact) string { return c.ID })
			if i < 0 {
				return v, false
			}
			contacts := append([]domain.Contact(nil), v.Contacts...)
			contacts[i] = fn(contacts[i])
			return domain.GetAllContactsResult{Contacts: contacts, MatchingContactsCount: v.MatchingContactsCount}, true
		})
}

func (s *ContactsStore) removeFromPages(projectID, contactID string) {
	s.pages.patch(func(k contactPageKey) bool { return k.projectID == projectID },
		func(_ contactPageKey, v domain.GetAllContactsResult) (domain.GetAllContactsResult, bool) {
			i := indexOf(v.Contacts, contactID, func(c domain.Contact) string { return c.ID })
			if i < 0 {
				return v, false
			}
			return domain.GetAllContactsResult{
				Contacts:              without(v.Contacts, i),
				MatchingContactsCount: max(v.MatchingContactsCount-1, 0),
			}, true
		})
}

// Close stops background loads.
func (s *ContactsStore) Close() { s.bg.Close() }

func indexOf[T any](items []T, id string, idOf func(T) string) int {
	for i, it := range items {
		if idOf(it) == id {
			return i
		}
	}
	return -1
}

// without returns a copy of items lacking index i.
func without[T any](items []T, i int) []T {
	out := make([]T, 0, len(items)-1)
	out = append(out, items[:i]...)
	return append(out, items[i+1:]...)
}
