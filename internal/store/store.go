// Package store defines the persistence contract shared by the badger, sqlite
// and mongo backends.
//
// Every mutation runs through Store.Update, which executes a callback inside
// one optimistic transaction and re-runs it from scratch when the backend
// reports a conflict. Callbacks must therefore be free of side effects other
// than the Tx calls they make.
package store

import (
	"context"
	"errors"

	"github.com/dseinapp/dsein-server/internal/domain"
)

// Storage-level sentinels. Backends translate their native errors to these;
// services translate these to domain errors.
var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrConflict      = errors.New("store: transaction conflict")
	ErrTransient     = errors.New("store: transient failure")
)

// Backend names.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

// Tx is the view of the store inside one transaction. Reads observe a
// consistent snapshot; writes become visible only if the whole transaction
// commits.
type Tx interface {
	GetUser(id string) (*domain.User, error)
	GetUserByUsername(username string) (*domain.User, error)
	// CreateUser fails with ErrAlreadyExists when the id or the username is taken.
	CreateUser(u *domain.User) error
	// UpdateUser replaces the user document and moves the username index if it changed.
	UpdateUser(u *domain.User) error

	GetFollow(followerID, followingID string) (*domain.FollowEdge, error)
	CreateFollow(e *domain.FollowEdge) error
	DeleteFollow(followerID, followingID string) error
	CountFollowers(userID string) (int, error)
	CountFollowing(userID string) (int, error)

	GetLike(userID, postID string) (*domain.LikeEdge, error)
	CreateLike(l *domain.LikeEdge) error
	DeleteLike(userID, postID string) error

	GetInvite(code string) (*domain.Invite, error)
	CreateInvite(inv *domain.Invite) error
	UpdateInvite(inv *domain.Invite) error
	DeleteInvite(code string) error

	GetActivity(id string) (*domain.ActivityRecord, error)
	CreateActivity(a *domain.ActivityRecord) error
}

// Store is a transactional backend for the social graph.
type Store interface {
	// Update runs fn inside a read-write transaction, retrying on conflict.
	Update(ctx context.Context, fn func(tx Tx) error) error

	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)

	GetFollow(ctx context.Context, followerID, followingID string) (*domain.FollowEdge, error)
	ListFollowerIDs(ctx context.Context, userID string) ([]string, error)
	ListFollowingIDs(ctx context.Context, userID string) ([]string, error)

	GetLike(ctx context.Context, userID, postID string) (*domain.LikeEdge, error)
	// ListLikesByOwner returns likes on the owner's posts, newest first.
	ListLikesByOwner(ctx context.Context, ownerID string, limit int) ([]*domain.LikeEdge, error)

	GetInvite(ctx context.Context, code string) (*domain.Invite, error)
	// ListInvitesByCreator returns the creator's invites, oldest first.
	ListInvitesByCreator(ctx context.Context, creatorID string) ([]*domain.Invite, error)

	// ListActivityForTarget returns records shown to targetID, newest first.
	ListActivityForTarget(ctx context.Context, targetID string, limit int) ([]*domain.ActivityRecord, error)

	Backend() string
	Ping(ctx context.Context) error
	Close() error
}
