package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dseinapp/dsein-server/internal/domain"
	"github.com/dseinapp/dsein-server/internal/service"
)

func (s *Server) registerLikeRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "likePost",
		Method:      http.MethodPut,
		Path:        "/api/v1/posts/{postId}/like",
		Summary:     "Like post",
		Description: "Likes a post. Liking twice succeeds without changes",
		Tags:        []string{"Likes"},
		Security:    []map[string][]string{{"gateway": {}}},
	}, s.handleLike)

	huma.Register(s.api, huma.Operation{
		OperationID: "unlikePost",
		Method:      http.MethodDelete,
		Path:        "/api/v1/posts/{postId}/like",
		Summary:     "Unlike post",
		Description: "Removes a like. Removing a missing like succeeds",
		Tags:        []string{"Likes"},
		Security:    []map[string][]string{{"gateway": {}}},
	}, s.handleUnlike)

	huma.Register(s.api, huma.Operation{
		OperationID: "hasLiked",
		Method:      http.MethodGet,
		Path:        "/api/v1/posts/{postId}/like",
		Summary:     "Check like",
		Description: "Reports whether the caller likes the post",
		Tags:        []string{"Likes"},
		Security:    []map[string][]string{{"gateway": {}}},
	}, s.handleHasLiked)

	huma.Register(s.api, huma.Operation{
		OperationID: "listLikesReceived",
		Method:      http.MethodGet,
		Path:        "/api/v1/me/likes-received",
		Summary:     "List likes received",
		Description: "Returns likes on the caller's posts, newest first",
		Tags:        []string{"Likes"},
		Security:    []map[string][]string{{"gateway": {}}},
	}, s.handleLikesReceived)
}

// === DTOs ===

// PostIDInput names a post.
type PostIDInput struct {
	PostID string `path:"postId" doc:"Post ID"`
}

// LikeInput contains the like request.
type LikeInput struct {
	PostID string `path:"postId" doc:"Post ID"`
	Body   struct {
		PostOwnerID string `json:"post_owner_id" doc:"Author of the post"`
	}
}

// LikeOutput wraps a like result for Huma.
type LikeOutput struct {
	Body *service.LikeResult
}

// HasLikedOutput reports like presence.
type HasLikedOutput struct {
	Body struct {
		Liked bool `json:"liked" doc:"Whether the caller likes the post"`
	}
}

// LimitInput carries an optional page size.
type LimitInput struct {
	Limit int `query:"limit" minimum:"0" maximum:"100" doc:"Max entries (default 20, max 100)"`
}

// LikesReceivedOutput lists likes on the caller's posts.
type LikesReceivedOutput struct {
	Body struct {
		Likes []*domain.LikeEdge `json:"likes" doc:"Likes, newest first"`
	}
}

// === Handlers ===

func (s *Server) handleLike(ctx context.Context, input *LikeInput) (*LikeOutput, error) {
	actorID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.services.Like.Like(ctx, actorID, input.PostID, input.Body.PostOwnerID)
	if err != nil {
		return nil, err
	}
	return &LikeOutput{Body: result}, nil
}

func (s *Server) handleUnlike(ctx context.Context, input *PostIDInput) (*LikeOutput, error) {
	actorID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.services.Like.Unlike(ctx, actorID, input.PostID)
	if err != nil {
		return nil, err
	}
	return &LikeOutput{Body: result}, nil
}

func (s *Server) handleHasLiked(ctx context.Context, input *PostIDInput) (*HasLikedOutput, error) {
	actorID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	liked, err := s.services.Like.HasLiked(ctx, actorID, input.PostID)
	if err != nil {
		return nil, err
	}

	out := &HasLikedOutput{}
	out.Body.Liked = liked
	return out, nil
}

func (s *Server) handleLikesReceived(ctx context.Context, input *LimitInput) (*LikesReceivedOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	likes, err := s.services.Like.LikesReceivedBy(ctx, userID, input.Limit)
	if err != nil {
		return nil, err
	}

	out := &LikesReceivedOutput{}
	out.Body.Likes = likes
	return out, nil
}
