package store

import (
	"context"

	"routemaster/internal/domain"
	"routemaster/internal/observable"
)

const userTokens = "me"

// BillingStore caches the user's billing tokens.
type BillingStore struct {
	base
	tokens *queryCache[string, []domain.BillingToken]
}

// NewBillingStore creates an empty billing store on client.
func NewBillingStore(client Backend, opts Options) *BillingStore {
	return &BillingStore{
		base: newBase(client, opts, "billing"),
		tokens: newQueryCache[string]("billing.tokens", func() []domain.BillingToken {
			return []domain.BillingToken{}
		}, opts.Metrics),
	}
}

// GetAllTokensOfUser returns the user's billing tokens.
func (s *BillingStore) GetAllTokensOfUser(ctx context.Context) ([]domain.BillingToken, error) {
	return s.tokens.load(ctx, userTokens, s.fetchTokens)
}

// WatchTokens observes the billing tokens.
func (s *BillingStore) WatchTokens(next func([]domain.BillingToken), onErr func(error)) observable.Subscription {
	sub, empty := s.tokens.watch(userTokens, next, onErr)
	s.watchLoad("billing.tokens", empty, func(ctx context.Context) error {
		_, err := s.GetAllTokensOfUser(ctx)
		return err
	})
	return sub
}

func (s *BillingStore) fetchTokens(ctx context.Context) ([]domain.BillingToken, error) {
	var out domain.GetAllTokensOfUserResult
	if err := s.client.Get(ctx, "/v1/billing/tokens", nil, &out); err != nil {
		return nil, s.handleError(err, "get billing tokens", "Failed to load billing tokens.")
	}
	if out.Tokens == nil {
		return []domain.BillingToken{}, nil
	}
	return out.Tokens, nil
}

// AddToken issues a new billing token and appends it to the cached tokens. The
// token is not bound to a project yet.
func (s *BillingStore) AddToken(ctx context.Context, req domain.AddTokenRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	var token string
	if err := s.client.Post(ctx, "/v1/billing/tokens", req, &token); err != nil {
		return "", s.handleError(err, "add billing token", "Failed to add token.")
	}
	added := domain.BillingToken{Token: token, Plan: req.Plan}
	s.tokens.patch(nil, func(_ string, v []domain.BillingToken) ([]domain.BillingToken, bool) {
		return append(append(make([]domain.BillingToken, 0, len(v)+1), v...), added), true
	})
	s.notifySuccess("Token added successfully!")
	return token, nil
}

func (s *BillingStore) Close() { s.bg.Close() }
