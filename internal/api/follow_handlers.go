package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dseinapp/dsein-server/internal/service"
)

func (s *Server) registerFollowRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "followUser",
		Method:      http.MethodPut,
		Path:        "/api/v1/users/{id}/follow",
		Summary:     "Follow user",
		Description: "Follows a user. Following someone already followed succeeds without changes",
		Tags:        []string{"Follows"},
		Security:    []map[string][]string{{"gateway": {}}},
	}, s.handleFollow)

	huma.Register(s.api, huma.Operation{
		OperationID: "unfollowUser",
		Method:      http.MethodDelete,
		Path:        "/api/v1/users/{id}/follow",
		Summary:     "Unfollow user",
		Description: "Removes a follow. Fails with NOT_FOLLOWING when there is nothing to remove",
		Tags:        []string{"Follows"},
		Security:    []map[string][]string{{"gateway": {}}},
	}, s.handleUnfollow)

	huma.Register(s.api, huma.Operation{
		OperationID: "isFollowing",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/{id}/follow",
		Summary:     "Check follow",
		Description: "Reports whether the caller follows the user",
		Tags:        []string{"Follows"},
		Security:    []map[string][]string{{"gateway": {}}},
	}, s.handleIsFollowing)

	huma.Register(s.api, huma.Operation{
		OperationID: "listFollowers",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/{id}/followers",
		Summary:     "List followers",
		Description: "Returns the users following a user",
		Tags:        []string{"Follows"},
	}, s.handleListFollowers)

	huma.Register(s.api, huma.Operation{
		OperationID: "listFollowing",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/{id}/following",
		Summary:     "List following",
		Description: "Returns the users a user follows",
		Tags:        []string{"Follows"},
	}, s.handleListFollowing)
}

// === DTOs ===

// FollowOutput wraps a follow result for Huma.
type FollowOutput struct {
	Body *service.FollowResult
}

// IsFollowingOutput reports edge presence.
type IsFollowingOutput struct {
	Body struct {
		Following bool `json:"following" doc:"Whether the caller follows the user"`
	}
}

// === Handlers ===

func (s *Server) handleFollow(ctx context.Context, input *UserIDInput) (*FollowOutput, error) {
	actorID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.services.Follow.Follow(ctx, actorID, input.ID)
	if err != nil {
		return nil, err
	}
	return &FollowOutput{Body: result}, nil
}

func (s *Server) handleUnfollow(ctx context.Context, input *UserIDInput) (*FollowOutput, error) {
	actorID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.services.Follow.Unfollow(ctx, actorID, input.ID)
	if err != nil {
		return nil, err
	}
	return &FollowOutput{Body: result}, nil
}

func (s *Server) handleIsFollowing(ctx context.Context, input *UserIDInput) (*IsFollowingOutput, error) {
	actorID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	following, err := s.services.Follow.IsFollowing(ctx, actorID, input.ID)
	if err != nil {
		return nil, err
	}

	out := &IsFollowingOutput{}
	out.Body.Following = following
	return out, nil
}

func (s *Server) handleListFollowers(ctx context.Context, input *UserIDInput) (*UsersOutput, error) {
	users, err := s.services.Follow.ListFollowers(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	out := &UsersOutput{}
	out.Body.Users = toUserResponses(users)
	return out, nil
}

func (s *Server) handleListFollowing(ctx context.Context, input *UserIDInput) (*UsersOutput, error) {
	users, err := s.services.Follow.ListFollowing(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	out := &UsersOutput{}
	out.Body.Users = toUserResponses(users)
	return out, nil
}
