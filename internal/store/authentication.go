package store

import (
	"context"

	"routemaster/internal/domain"
)

// AuthenticationStore registers new accounts. Nothing is cached.
type AuthenticationStore struct {
	base
}

// NewAuthenticationStore creates the registration store.
func NewAuthenticationStore(client Backend, opts Options) *AuthenticationStore {
	return &AuthenticationStore{base: newBase(client, opts, "authentication")}
}

// Register creates an account and returns the new user's id.
func (s *AuthenticationStore) Register(ctx context.Context, req domain.RegisterRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	var id string
	if err := s.client.Post(ctx, "/v1/identity/register", req, &id); err != nil {
		return "", s.handleError(err, "register", "Registration failed.")
	}
	return id, nil
}

func (s *AuthenticationStore) Close() { s.bg.Close() }
