package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dseinapp/dsein-server/internal/domain"
	domainerrors "github.com/dseinapp/dsein-server/internal/errors"
	"github.com/dseinapp/dsein-server/internal/metrics"
	"github.com/dseinapp/dsein-server/internal/sse"
	"github.com/dseinapp/dsein-server/internal/store"
)

// FollowResult reports the state of an edge after Follow or Unfollow.
type FollowResult struct {
	Following        bool   `json:"following"`
	AlreadyFollowing bool   `json:"already_following,omitempty"`
	FollowersCount   int    `json:"followers_count"`
	FollowingCount   int    `json:"following_count"`
	Message          string `json:"message"`
}

// CounterFix records one user whose cached counters disagreed with the edges.
type CounterFix struct {
	UserID          string `json:"user_id"`
	FollowersBefore int    `json:"followers_before"`
	FollowersAfter  int    `json:"followers_after"`
	FollowingBefore int    `json:"following_before"`
	FollowingAfter  int    `json:"following_after"`
}

// ReconcileReport summarizes a counter repair pass.
type ReconcileReport struct {
	UsersScanned int          `json:"users_scanned"`
	UsersFixed   int          `json:"users_fixed"`
	Failures     int          `json:"failures"`
	Fixes        []CounterFix `json:"fixes"`
	Duration     string       `json:"duration"`
	Message      string       `json:"message"`
}

// FollowService maintains follow edges and the follower/following counters
// cached on both users. Edge and counters change in one transaction.
type FollowService struct {
	store   store.Store
	emitter store.EventEmitter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewFollowService creates a follow service.
func NewFollowService(st store.Store, emitter store.EventEmitter, m *metrics.Metrics, logger *slog.Logger) *FollowService {
	if emitter == nil {
		emitter = store.NewNoopEmitter()
	}
	return &FollowService{
		store:   st,
		emitter: emitter,
		metrics: m,
		logger:  logger,
	}
}

func checkPair(actorID, targetID string) error {
	if !domain.ValidID(actorID) || !domain.ValidID(targetID) {
		return domainerrors.InvalidFormat("user ids must be 1-128 letters, digits or dashes")
	}
	if actorID == targetID {
		return domainerrors.SelfReferenceDenied("you cannot follow yourself")
	}
	return nil
}

// Follow makes actorID follow targetID. Following someone already followed
// succeeds without touching the counters.
func (s *FollowService) Follow(ctx context.Context, actorID, targetID string) (res *FollowResult, err error) {
	defer func() { observe(s.metrics, "follow", err) }()

	if err := checkPair(actorID, targetID); err != nil {
		return nil, err
	}

	var (
		result  *FollowResult
		created bool
	)
	err = s.store.Update(ctx, func(tx store.Tx) error {
		result, created = nil, false

		actor, err := getUserTx(tx, actorID)
		if err != nil {
			return err
		}
		if actor.Banned {
			return domainerrors.Forbidden("your account cannot follow users")
		}
		target, err := getUserTx(tx, targetID)
		if err != nil {
			return err
		}

		if _, err := tx.GetFollow(actorID, targetID); err == nil {
			result = &FollowResult{
				Following:        true,
				AlreadyFollowing: true,
				FollowersCount:   target.FollowersCount,
				FollowingCount:   actor.FollowingCount,
				Message:          fmt.Sprintf("You already follow @%s", target.Username),
			}
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return txError("get follow", err)
		}

		if err := tx.CreateFollow(domain.NewFollowEdge(actorID, targetID, time.Now())); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				// A concurrent follow committed between our read and write.
				return store.ErrConflict
			}
			return txError("create follow", err)
		}

		target.AddFollower()
		target.Touch()
		actor.AddFollowing()
		actor.Touch()
		if err := tx.UpdateUser(target); err != nil {
			return txError("update target", err)
		}
		if err := tx.UpdateUser(actor); err != nil {
			return txError("update actor", err)
		}

		created = true
		result = &FollowResult{
			Following:      true,
			FollowersCount: target.FollowersCount,
			FollowingCount: actor.FollowingCount,
			Message:        fmt.Sprintf("You are now following @%s", target.Username),
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, "follow")
	}

	if created {
		s.logger.Info("follow created", "follower_id", actorID, "following_id", targetID)
		s.emitter.Emit(sse.NewFollowCreatedEvent(actorID, targetID, result.FollowersCount))
	}
	return result, nil
}

// Unfollow removes the edge actorID -> targetID and decrements both counters,
// never below zero.
func (s *FollowService) Unfollow(ctx context.Context, actorID, targetID string) (res *FollowResult, err error) {
	defer func() { observe(s.metrics, "unfollow", err) }()

	if err := checkPair(actorID, targetID); err != nil {
		return nil, err
	}

	var result *FollowResult
	err = s.store.Update(ctx, func(tx store.Tx) error {
		result = nil

		if _, err := tx.GetFollow(actorID, targetID); errors.Is(err, store.ErrNotFound) {
			return domainerrors.NotFollowing("you are not following this user")
		} else if err != nil {
			return txError("get follow", err)
		}
		if err := tx.DeleteFollow(actorID, targetID); err != nil {
			return txError("delete follow", err)
		}

		result = &FollowResult{Following: false, Message: "Unfollowed"}

		// Either side may have been deleted out of band; the edge still goes.
		if target, err := tx.GetUser(targetID); err == nil {
			target.RemoveFollower()
			target.Touch()
			if err := tx.UpdateUser(target); err != nil {
				return txError("update target", err)
			}
			result.FollowersCount = target.FollowersCount
			result.Message = fmt.Sprintf("You unfollowed @%s", target.Username)
		} else if !errors.Is(err, store.ErrNotFound) {
			return txError("get target", err)
		}
		if actor, err := tx.GetUser(actorID); err == nil {
			actor.RemoveFollowing()
			actor.Touch()
			if err := tx.UpdateUser(actor); err != nil {
				return txError("update actor", err)
			}
			result.FollowingCount = actor.FollowingCount
		} else if !errors.Is(err, store.ErrNotFound) {
			return txError("get actor", err)
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, "follow")
	}

	s.logger.Info("follow removed", "follower_id", actorID, "following_id", targetID)
	return result, nil
}

// IsFollowing reports whether the edge actorID -> targetID exists.
func (s *FollowService) IsFollowing(ctx context.Context, actorID, targetID string) (bool, error) {
	if !domain.ValidID(actorID) || !domain.ValidID(targetID) || actorID == targetID {
		return false, nil
	}
	_, err := s.store.GetFollow(ctx, actorID, targetID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, mapStoreError(err, "follow")
	}
	return true, nil
}

// ListFollowers returns the users following userID.
func (s *FollowService) ListFollowers(ctx context.Context, userID string) ([]*domain.User, error) {
	ids, err := s.store.ListFollowerIDs(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err, "followers")
	}
	return s.resolveUsers(ctx, ids)
}

// ListFollowing returns the users userID follows.
func (s *FollowService) ListFollowing(ctx context.Context, userID string) ([]*domain.User, error) {
	ids, err := s.store.ListFollowingIDs(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err, "following")
	}
	return s.resolveUsers(ctx, ids)
}

// resolveUsers looks each id up individually. Edges pointing at users that
// no longer exist are skipped.
func (s *FollowService) resolveUsers(ctx context.Context, ids []string) ([]*domain.User, error) {
	users := make([]*domain.User, 0, len(ids))
	for _, id := range ids {
		u, err := s.store.GetUser(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("follow edge references missing user", "user_id", id)
			continue
		}
		if err != nil {
			return nil, mapStoreError(err, "user")
		}
		users = append(users, u)
	}
	return users, nil
}

// ReconcileCounters recomputes every user's counters from the edges. Each
// user is repaired in its own transaction; a failure is logged and the pass
// continues.
func (s *FollowService) ReconcileCounters(ctx context.Context) (*ReconcileReport, error) {
	start := time.Now()

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, mapStoreError(err, "user")
	}

	report := &ReconcileReport{Fixes: []CounterFix{}}
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return nil, mapStoreError(err, "user")
		}
		report.UsersScanned++

		fix, err := s.reconcileUser(ctx, u.ID)
		if err != nil {
			report.Failures++
			s.logger.Error("counter reconciliation failed", "user_id", u.ID, "error", err)
			continue
		}
		if fix != nil {
			report.UsersFixed++
			report.Fixes = append(report.Fixes, *fix)
			s.logger.Warn("counter drift repaired",
				"user_id", fix.UserID,
				"followers_before", fix.FollowersBefore,
				"followers_after", fix.FollowersAfter,
				"following_before", fix.FollowingBefore,
				"following_after", fix.FollowingAfter,
			)
		}
	}

	report.Duration = time.Since(start).String()
	report.Message = fmt.Sprintf("Scanned %d users, repaired %d", report.UsersScanned, report.UsersFixed)
	observe(s.metrics, "reconcile", nil)
	return report, nil
}

func (s *FollowService) reconcileUser(ctx context.Context, userID string) (*CounterFix, error) {
	var fix *CounterFix
	err := s.store.Update(ctx, func(tx store.Tx) error {
		fix = nil

		u, err := tx.GetUser(userID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return txError("get user", err)
		}
		followers, err := tx.CountFollowers(userID)
		if err != nil {
			return txError("count followers", err)
		}
		following, err := tx.CountFollowing(userID)
		if err != nil {
			return txError("count following", err)
		}
		if followers == u.FollowersCount && following == u.FollowingCount {
			return nil
		}

		fix = &CounterFix{
			UserID:          userID,
			FollowersBefore: u.FollowersCount,
			FollowersAfter:  followers,
			FollowingBefore: u.FollowingCount,
			FollowingAfter:  following,
		}
		u.FollowersCount = followers
		u.FollowingCount = following
		u.Touch()
		return txError("update user", tx.UpdateUser(u))
	})
	if err != nil {
		return nil, mapStoreError(err, "user")
	}
	return fix, nil
}

// getUserTx reads a user inside a transaction, mapping absence to NotFound.
func getUserTx(tx store.Tx, id string) (*domain.User, error) {
	u, err := tx.GetUser(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domainerrors.NotFoundf("user %s not found", id)
	}
	if err != nil {
		return nil, txError("get user", err)
	}
	return u, nil
}
