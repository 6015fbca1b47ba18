// Package badger implements store.Store on an embedded Badger database.
//
// Badger transactions are optimistic: every key read inside an update
// transaction, including keys that turned out to be missing, is checked at
// commit time. Two transactions that touch the same user document therefore
// cannot both commit, and the loser is re-run by store.Retry.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/dseinapp/dsein-server/internal/domain"
	"github.com/dseinapp/dsein-server/internal/store"
)

// Options configures Open.
type Options struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	Logger   *slog.Logger
	Retry    store.RetryPolicy
	Observer store.RetryObserver
}

// Store wraps a Badger database instance.
type Store struct {
	db       *badger.DB
	logger   *slog.Logger
	policy   store.RetryPolicy
	observer store.RetryObserver
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database described by opts.
func Open(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts.SyncWrites = true
		bopts.CompactL0OnClose = true
	}
	bopts.Logger = nil
	if opts.Logger != nil {
		bopts.Logger = &slogAdapter{logger: opts.Logger.With("component", "badger")}
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	observer := opts.Observer
	if observer == nil {
		observer = store.NoopObserver
	}

	s := &Store{
		db:       db,
		logger:   opts.Logger,
		policy:   opts.Retry,
		observer: observer,
	}

	if s.logger != nil {
		s.logger.Info("Badger database opened", "path", opts.Path, "in_memory", opts.InMemory)
	}
	return s, nil
}

// Backend implements store.Store.
func (s *Store) Backend() string { return store.BackendBadger }

// Ping reports whether the database is still open.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: database closed")
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("Closing Badger database")
	}
	return s.db.Close()
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	return store.Retry(ctx, store.BackendBadger, s.policy, s.observer, func(ctx context.Context) error {
		txn := s.db.NewTransaction(true)
		defer txn.Discard()

		if err := fn(&tx{txn: txn}); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return translate(txn.Commit())
	})
}

// view runs fn against a read-only snapshot.
func (s *Store) view(ctx context.Context, fn func(t *tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return translate(s.db.View(func(txn *badger.Txn) error {
		return fn(&tx{txn: txn})
	}))
}

// GetUser implements store.Store.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var u *domain.User
	err := s.view(ctx, func(t *tx) error {
		var err error
		u, err = t.GetUser(id)
		return err
	})
	return u, err
}

// GetUserByUsername implements store.Store.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var u *domain.User
	err := s.view(ctx, func(t *tx) error {
		var err error
		u, err = t.GetUserByUsername(username)
		return err
	})
	return u, err
}

// ListUsers implements store.Store.
func (s *Store) ListUsers(ctx context.Context) ([]*domain.User, error) {
	var users []*domain.User
	err := s.view(ctx, func(t *tx) error {
		return t.scanValues([]byte(userPrefix), 0, func(val []byte) error {
			var u domain.User
			if err := json.Unmarshal(val, &u); err != nil {
				return fmt.Errorf("unmarshal user: %w", err)
			}
			users = append(users, &u)
			return nil
		})
	})
	return users, err
}

// GetFollow implements store.Store.
func (s *Store) GetFollow(ctx context.Context, followerID, followingID string) (*domain.FollowEdge, error) {
	var e *domain.FollowEdge
	err := s.view(ctx, func(t *tx) error {
		var err error
		e, err = t.GetFollow(followerID, followingID)
		return err
	})
	return e, err
}

// ListFollowerIDs implements store.Store.
func (s *Store) ListFollowerIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.view(ctx, func(t *tx) error {
		var err error
		ids, err = t.keySuffixes(followersPrefix(userID))
		return err
	})
	return ids, err
}

// ListFollowingIDs implements store.Store.
func (s *Store) ListFollowingIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.view(ctx, func(t *tx) error {
		var err error
		ids, err = t.keySuffixes(followingPrefix(userID))
		return err
	})
	return ids, err
}

// GetLike implements store.Store.
func (s *Store) GetLike(ctx context.Context, userID, postID string) (*domain.LikeEdge, error) {
	var l *domain.LikeEdge
	err := s.view(ctx, func(t *tx) error {
		var err error
		l, err = t.GetLike(userID, postID)
		return err
	})
	return l, err
}

// ListLikesByOwner implements store.Store.
func (s *Store) ListLikesByOwner(ctx context.Context, ownerID string, limit int) ([]*domain.LikeEdge, error) {
	var likes []*domain.LikeEdge
	err := s.view(ctx, func(t *tx) error {
		return t.scanValues(likesOwnerPrefix(ownerID), limit, func(val []byte) error {
			var l domain.LikeEdge
			found, err := t.getJSON(likeKey(string(val)), &l)
			if err != nil || !found {
				return err
			}
			likes = append(likes, &l)
			return nil
		})
	})
	return likes, err
}

// GetInvite implements store.Store.
func (s *Store) GetInvite(ctx context.Context, code string) (*domain.Invite, error) {
	var inv *domain.Invite
	err := s.view(ctx, func(t *tx) error {
		var err error
		inv, err = t.GetInvite(code)
		return err
	})
	return inv, err
}

// ListInvitesByCreator implements store.Store.
func (s *Store) ListInvitesByCreator(ctx context.Context, creatorID string) ([]*domain.Invite, error) {
	var invites []*domain.Invite
	err := s.view(ctx, func(t *tx) error {
		return t.scanValues(invitesCreatorPrefix(creatorID), 0, func(val []byte) error {
			var inv domain.Invite
			found, err := t.getJSON(inviteKey(string(val)), &inv)
			if err != nil || !found {
				return err
			}
			invites = append(invites, &inv)
			return nil
		})
	})
	return invites, err
}

// ListActivityForTarget implements store.Store.
func (s *Store) ListActivityForTarget(ctx context.Context, targetID string, limit int) ([]*domain.ActivityRecord, error) {
	var records []*domain.ActivityRecord
	err := s.view(ctx, func(t *tx) error {
		return t.scanValues(activityTargetPrefix(targetID), limit, func(val []byte) error {
			var a domain.ActivityRecord
			found, err := t.getJSON(activityKey(string(val)), &a)
			if err != nil || !found {
				return err
			}
			records = append(records, &a)
			return nil
		})
	})
	return records, err
}

// translate maps badger errors onto store sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrConflict):
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	case errors.Is(err, badger.ErrKeyNotFound):
		return store.ErrNotFound
	default:
		return err
	}
}
