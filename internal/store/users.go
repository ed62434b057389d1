package store

import (
	"context"
	"net/url"

	"routemaster/internal/domain"
	"routemaster/internal/observable"
)

const currentUser = "me"

// UsersStore caches the signed-in user.
type UsersStore struct {
	base
	me *queryCache[string, domain.User]
}

// NewUsersStore creates a store for the signed-in user.
func NewUsersStore(client Backend, opts Options) *UsersStore {
	return &UsersStore{
		base: newBase(client, opts, "users"),
		me:   newQueryCache[string]("users.me", func() domain.User { return domain.User{} }, opts.Metrics),
	}
}

// GetCurrentUser returns the signed-in user, fetched once per process.
func (s *UsersStore) GetCurrentUser(ctx context.Context) (domain.User, error) {
	return s.me.load(ctx, currentUser, s.fetchCurrentUser)
}

// RefreshCurrentUser re-fetches the signed-in user.
func (s *UsersStore) RefreshCurrentUser(ctx context.Context) (domain.User, error) {
	return s.me.refresh(ctx, currentUser, s.fetchCurrentUser)
}

// WatchCurrentUser observes the signed-in user.
func (s *UsersStore) WatchCurrentUser(next func(domain.User), onErr func(error)) observable.Subscription {
	sub, empty := s.me.watch(currentUser, next, onErr)
	s.watchLoad("users.me", empty, func(ctx context.Context) error {
		_, err := s.GetCurrentUser(ctx)
		return err
	})
	return sub
}

func (s *UsersStore) fetchCurrentUser(ctx context.Context) (domain.User, error) {
	var out domain.User
	if err := s.client.Get(ctx, "/v1/users/me", nil, &out); err != nil {
		return out, s.handleError(err, "get current user", "Failed to fetch current user.")
	}
	return out, nil
}

// SelectedProject resolves the user's membership in projectID.
func (s *UsersStore) SelectedProject(ctx context.Context, projectID string) (domain.ProjectOfUser, bool, error) {
	user, err := s.GetCurrentUser(ctx)
	if err != nil {
		return domain.ProjectOfUser{}, false, err
	}
	p, ok := user.Project(projectID)
	return p, ok, nil
}

// DeleteCurrentUser confirms a requested deletion with the emailed token and
// forgets the cached user.
func (s *UsersStore) DeleteCurrentUser(ctx context.Context, token string) error {
	if err := s.client.Delete(ctx, "/v1/users/me", url.Values{"token": {token}}, nil); err != nil {
		return s.handleError(err, "delete current user", "Failed to delete current user.")
	}
	s.me.reset(currentUser)
	s.notifySuccess("User deleted successfully!")
	return nil
}

// RequestUserDeletion asks the backend to mail a deletion token.
func (s *UsersStore) RequestUserDeletion(ctx context.Context) error {
	if err := s.client.Post(ctx, "/v1/users/me/request-deletion", nil, nil); err != nil {
		return s.handleError(err, "request user deletion", "Failed to request user deletion.")
	}
	s.notifySuccess("User deletion requested!")
	return nil
}

func (s *UsersStore) Close() { s.bg.Close() }
