package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dseinapp/dsein-server/internal/domain"
	domainerrors "github.com/dseinapp/dsein-server/internal/errors"
	"github.com/dseinapp/dsein-server/internal/metrics"
	"github.com/dseinapp/dsein-server/internal/sse"
	"github.com/dseinapp/dsein-server/internal/store"
)

// LikeResult reports the state of a like after Like or Unlike.
type LikeResult struct {
	Liked        bool   `json:"liked"`
	AlreadyLiked bool   `json:"already_liked,omitempty"`
	Message      string `json:"message"`
}

// LikeService stores user -> post like edges. Posts live elsewhere; the
// owner id is copied onto each like so owners can list what they received.
type LikeService struct {
	store   store.Store
	emitter store.EventEmitter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewLikeService creates a like service.
func NewLikeService(st store.Store, emitter store.EventEmitter, m *metrics.Metrics, logger *slog.Logger) *LikeService {
	if emitter == nil {
		emitter = store.NewNoopEmitter()
	}
	return &LikeService{
		store:   st,
		emitter: emitter,
		metrics: m,
		logger:  logger,
	}
}

// Like records that actorID likes postID. Liking twice is a success.
func (s *LikeService) Like(ctx context.Context, actorID, postID, postOwnerID string) (res *LikeResult, err error) {
	defer func() { observe(s.metrics, "like", err) }()

	if !domain.ValidID(actorID) || !domain.ValidID(postID) || !domain.ValidID(postOwnerID) {
		return nil, domainerrors.InvalidFormat("ids must be 1-128 letters, digits or dashes")
	}

	var created bool
	err = s.store.Update(ctx, func(tx store.Tx) error {
		created = false

		if _, err := tx.GetLike(actorID, postID); err == nil {
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return txError("get like", err)
		}

		err := tx.CreateLike(domain.NewLikeEdge(actorID, postID, postOwnerID, time.Now()))
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil
		}
		if err != nil {
			return txError("create like", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, "like")
	}

	if !created {
		return &LikeResult{Liked: true, AlreadyLiked: true, Message: "You already like this post"}, nil
	}

	s.logger.Debug("like created", "user_id", actorID, "post_id", postID)
	if postOwnerID != actorID {
		s.emitter.Emit(sse.NewLikeCreatedEvent(postOwnerID, actorID, postID))
	}
	return &LikeResult{Liked: true, Message: "Liked"}, nil
}

// Unlike removes the like if present. Removing a missing like is a no-op.
func (s *LikeService) Unlike(ctx context.Context, actorID, postID string) (res *LikeResult, err error) {
	defer func() { observe(s.metrics, "unlike", err) }()

	if !domain.ValidID(actorID) || !domain.ValidID(postID) {
		return nil, domainerrors.InvalidFormat("ids must be 1-128 letters, digits or dashes")
	}

	var removed bool
	err = s.store.Update(ctx, func(tx store.Tx) error {
		removed = false
		err := tx.DeleteLike(actorID, postID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return txError("delete like", err)
		}
		removed = true
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, "like")
	}

	if !removed {
		return &LikeResult{Liked: false, Message: "This post was not liked"}, nil
	}
	return &LikeResult{Liked: false, Message: "Like removed"}, nil
}

// HasLiked reports whether actorID likes postID.
func (s *LikeService) HasLiked(ctx context.Context, actorID, postID string) (bool, error) {
	if !domain.ValidID(actorID) || !domain.ValidID(postID) {
		return false, nil
	}
	_, err := s.store.GetLike(ctx, actorID, postID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, mapStoreError(err, "like")
	}
	return true, nil
}

// LikesReceivedBy returns likes on userID's posts, newest first.
func (s *LikeService) LikesReceivedBy(ctx context.Context, userID string, limit int) ([]*domain.LikeEdge, error) {
	if !domain.ValidID(userID) {
		return []*domain.LikeEdge{}, nil
	}
	likes, err := s.store.ListLikesByOwner(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, mapStoreError(err, "likes")
	}
	return likes, nil
}
