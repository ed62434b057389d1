package store

import (
	"context"

	"routemaster/internal/api"
	"routemaster/internal/domain"
	"routemaster/internal/observable"

	"go.uber.org/zap"
)

// MembershipsStore grants and revokes project access. The most recent grant is
// observable.
type MembershipsStore struct {
	base
	last *observable.Subject[*domain.AddUserToProjectResult]
}

// NewMembershipsStore creates a membership store on client.
func NewMembershipsStore(client Backend, opts Options) *MembershipsStore {
	return &MembershipsStore{
		base: newBase(client, opts, "memberships"),
		last: observable.NewSubject[*domain.AddUserToProjectResult](nil),
	}
}

// AddUserToProject adds a user to a project and publishes the result to
// WatchLastAdded subscribers.
func (s *MembershipsStore) AddUserToProject(ctx context.Context, projectID, userID string, req domain.AddUserToProjectRequest) (domain.AddUserToProjectResult, error) {
	var out domain.AddUserToProjectResult
	if err := s.client.Post(ctx, api.Path("/v1/projects/%s/users/%s", projectID, userID), req, &out); err != nil {
		return out, s.handleError(err, "add user to project", "Failed to add user to project.",
			zap.String("project_id", projectID), zap.String("user_id", userID))
	}
	result := out
	s.last.Set(&result)
	s.notifySuccess("User added to project successfully!")
	return out, nil
}

// DeleteUserFromProject removes a user from a project.
func (s *MembershipsStore) DeleteUserFromProject(ctx context.Context, projectID, userID string) error {
	if err := s.client.Delete(ctx, api.Path("/v1/projects/%s/users/%s", projectID, userID), nil, nil); err != nil {
		return s.handleError(err, "remove user from project", "Failed to remove user from project.",
			zap.String("project_id", projectID), zap.String("user_id", userID))
	}
	s.notifySuccess("User removed from project successfully!")
	return nil
}

// WatchLastAdded observes the latest successful grant; nil until one happened.
func (s *MembershipsStore) WatchLastAdded(next func(*domain.AddUserToProjectResult)) observable.Subscription {
	return s.last.Subscribe(next, nil)
}

func (s *MembershipsStore) Close() { s.bg.Close() }
