// Package mongo implements store.Store on MongoDB multi-document transactions.
//
// Transactions need a replica set (a single-node one is enough). Write-write
// conflicts surface as TransientTransactionError and are re-run by store.Retry.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/dseinapp/dsein-server/internal/domain"
	"github.com/dseinapp/dsein-server/internal/store"
)

// Collection names.
const (
	usersCollection    = "users"
	followsCollection  = "follows"
	likesCollection    = "likes"
	invitesCollection  = "invites"
	activityCollection = "activity"
)

// commitRetries bounds re-sending a commit whose outcome is unknown.
const commitRetries = 3

// Options configures Open.
type Options struct {
	URI      string
	Database string
	Logger   *slog.Logger
	Retry    store.RetryPolicy
	Observer store.RetryObserver
}

// Store provides MongoDB-backed persistence.
type Store struct {
	client   *mongo.Client
	db       *mongo.Database
	logger   *slog.Logger
	policy   store.RetryPolicy
	observer store.RetryObserver
	txnOpts  *options.TransactionOptions
}

var _ store.Store = (*Store)(nil)

// Open connects, pings, and ensures collections and indexes exist.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.URI == "" {
		return nil, errors.New("mongo: URI is required")
	}
	if opts.Database == "" {
		opts.Database = "dsein"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(opts.URI)
	clientOptions.SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	observer := opts.Observer
	if observer == nil {
		observer = store.NoopObserver
	}

	s := &Store{
		client:   client,
		db:       client.Database(opts.Database),
		logger:   opts.Logger,
		policy:   opts.Retry,
		observer: observer,
		txnOpts: options.Transaction().
			SetReadConcern(readconcern.Snapshot()).
			SetWriteConcern(writeconcern.Majority()),
	}

	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("Connected to MongoDB", "database", opts.Database)
	}
	return s, nil
}

// EnsureIndexes creates the secondary indexes. Creating them also creates the
// collections, which must exist before they are written inside a transaction.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{
				Keys:    bson.D{{Key: "username", Value: 1}},
				Options: options.Index().SetName("idx_users_username").SetUnique(true),
			},
		},
		followsCollection: {
			{
				Keys:    bson.D{{Key: "following_id", Value: 1}},
				Options: options.Index().SetName("idx_follows_following"),
			},
			{
				Keys:    bson.D{{Key: "follower_id", Value: 1}},
				Options: options.Index().SetName("idx_follows_follower"),
			},
		},
		likesCollection: {
			{
				Keys:    bson.D{{Key: "post_owner_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_likes_owner"),
			},
		},
		invitesCollection: {
			{
				Keys:    bson.D{{Key: "created_by", Value: 1}, {Key: "created_at", Value: 1}},
				Options: options.Index().SetName("idx_invites_creator"),
			},
		},
		activityCollection: {
			{
				Keys:    bson.D{{Key: "target_user_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_activity_target"),
			},
		},
	}

	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}

// Backend implements store.Store.
func (s *Store) Backend() string { return store.BackendMongo }

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes the whole database. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	return store.Retry(ctx, store.BackendMongo, s.policy, s.observer, func(ctx context.Context) error {
		sess, err := s.client.StartSession()
		if err != nil {
			return translate(fmt.Errorf("start session: %w", err))
		}
		defer sess.EndSession(context.Background())

		return mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
			if err := sc.StartTransaction(s.txnOpts); err != nil {
				return translate(fmt.Errorf("start transaction: %w", err))
			}
			if err := fn(&tx{ctx: sc, db: s.db}); err != nil {
				_ = sc.AbortTransaction(context.Background())
				return err
			}
			return translate(commit(sc))
		})
	})
}

// commit re-sends the commit while its outcome is unknown.
func commit(sc mongo.SessionContext) error {
	for i := 0; ; i++ {
		err := sc.CommitTransaction(sc)
		if err == nil {
			return nil
		}
		var se mongo.ServerError
		if i < commitRetries && errors.As(err, &se) && se.HasErrorLabel("UnknownTransactionCommitResult") {
			continue
		}
		return err
	}
}

func (s *Store) reader(ctx context.Context) *tx {
	return &tx{ctx: ctx, db: s.db}
}

// GetUser implements store.Store.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.reader(ctx).GetUser(id)
}

// GetUserByUsername implements store.Store.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.reader(ctx).GetUserByUsername(username)
}

// GetFollow implements store.Store.
func (s *Store) GetFollow(ctx context.Context, followerID, followingID string) (*domain.FollowEdge, error) {
	return s.reader(ctx).GetFollow(followerID, followingID)
}

// GetLike implements store.Store.
func (s *Store) GetLike(ctx context.Context, userID, postID string) (*domain.LikeEdge, error) {
	return s.reader(ctx).GetLike(userID, postID)
}

// GetInvite implements store.Store.
func (s *Store) GetInvite(ctx context.Context, code string) (*domain.Invite, error) {
	return s.reader(ctx).GetInvite(code)
}

// ListUsers implements store.Store.
func (s *Store) ListUsers(ctx context.Context) ([]*domain.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	var users []*domain.User
	if err := findAll(ctx, s.db.Collection(usersCollection), bson.M{}, opts, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// ListFollowerIDs implements store.Store.
func (s *Store) ListFollowerIDs(ctx context.Context, userID string) ([]string, error) {
	edges, err := s.listEdges(ctx, bson.M{"following_id": userID}, "follower_id")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.FollowerID)
	}
	return ids, nil
}

// ListFollowingIDs implements store.Store.
func (s *Store) ListFollowingIDs(ctx context.Context, userID string) ([]string, error) {
	edges, err := s.listEdges(ctx, bson.M{"follower_id": userID}, "following_id")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.FollowingID)
	}
	return ids, nil
}

func (s *Store) listEdges(ctx context.Context, filter bson.M, sortField string) ([]*domain.FollowEdge, error) {
	opts := options.Find().SetSort(bson.D{{Key: sortField, Value: 1}})
	var edges []*domain.FollowEdge
	if err := findAll(ctx, s.db.Collection(followsCollection), filter, opts, &edges); err != nil {
		return nil, err
	}
	return edges, nil
}

// ListLikesByOwner implements store.Store.
func (s *Store) ListLikesByOwner(ctx context.Context, ownerID string, limit int) ([]*domain.LikeEdge, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	var likes []*domain.LikeEdge
	if err := findAll(ctx, s.db.Collection(likesCollection), bson.M{"post_owner_id": ownerID}, opts, &likes); err != nil {
		return nil, err
	}
	return likes, nil
}

// ListInvitesByCreator implements store.Store.
func (s *Store) ListInvitesByCreator(ctx context.Context, creatorID string) ([]*domain.Invite, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	var invites []*domain.Invite
	if err := findAll(ctx, s.db.Collection(invitesCollection), bson.M{"created_by": creatorID}, opts, &invites); err != nil {
		return nil, err
	}
	return invites, nil
}

// ListActivityForTarget implements store.Store.
func (s *Store) ListActivityForTarget(ctx context.Context, targetID string, limit int) ([]*domain.ActivityRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	var records []*domain.ActivityRecord
	if err := findAll(ctx, s.db.Collection(activityCollection), bson.M{"target_user_id": targetID}, opts, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func findAll(ctx context.Context, c *mongo.Collection, filter any, opts *options.FindOptions, out any) error {
	cur, err := c.Find(ctx, filter, opts)
	if err != nil {
		return translate(err)
	}
	defer cur.Close(ctx)
	if err := cur.All(ctx, out); err != nil {
		return translate(err)
	}
	return nil
}

// writeConflictCode is the server error code for a write-write conflict.
const writeConflictCode = 112

// translate maps driver errors onto store sentinels. Errors that already
// carry a sentinel or come from the caller's callback pass through.
func translate(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", store.ErrAlreadyExists, err)
	}

	var se mongo.ServerError
	if errors.As(err, &se) {
		if se.HasErrorLabel("TransientTransactionError") || se.HasErrorCode(writeConflictCode) {
			return fmt.Errorf("%w: %v", store.ErrConflict, err)
		}
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return fmt.Errorf("%w: %v", store.ErrTransient, err)
	}
	return err
}
