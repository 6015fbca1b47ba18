// Package sqlite implements store.Store on SQLite via the pure-Go modernc driver.
//
// Write transactions start with BEGIN IMMEDIATE, so SQLite serializes writers
// and a transaction that cannot take the write lock within busy_timeout is
// reported as a conflict and re-run.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/dseinapp/dsein-server/internal/domain"
	"github.com/dseinapp/dsein-server/internal/store"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Options configures Open.
type Options struct {
	// Path is the database file. ":memory:" is not supported because each
	// pooled connection would see its own database.
	Path     string
	Logger   *slog.Logger
	Retry    store.RetryPolicy
	Observer store.RetryObserver
}

// Store provides SQLite-backed persistence.
type Store struct {
	db       *sql.DB
	logger   *slog.Logger
	policy   store.RetryPolicy
	observer store.RetryObserver
}

var _ store.Store = (*Store)(nil)

// Open creates or opens the SQLite database at opts.Path and applies the schema.
func Open(opts Options) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(opts.Path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
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
		s.logger.Info("SQLite database opened", "path", opts.Path)
	}
	return s, nil
}

// dsn puts the pragmas on the connection string so every pooled connection gets them.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(ON)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// Backend implements store.Store.
func (s *Store) Backend() string { return store.BackendSQLite }

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	return store.Retry(ctx, store.BackendSQLite, s.policy, s.observer, func(ctx context.Context) error {
		sqlTx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return translate(fmt.Errorf("begin: %w", err))
		}
		defer sqlTx.Rollback() //nolint:errcheck // no-op after commit

		if err := fn(&tx{ctx: ctx, q: sqlTx}); err != nil {
			return err
		}
		if err := sqlTx.Commit(); err != nil {
			return translate(fmt.Errorf("commit: %w", err))
		}
		return nil
	})
}

// reader returns a tx bound to the pool for single-statement reads.
func (s *Store) reader(ctx context.Context) *tx {
	return &tx{ctx: ctx, q: s.db}
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

// timeLayout is fixed width so text comparison matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// parseNullableTime parses an optional time string.
func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// nullString returns a sql.NullString, treating "" as NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTimeString returns a sql.NullString from a *time.Time.
func nullTimeString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// translate maps driver errors onto store sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"),
		strings.Contains(msg, "PRIMARY KEY constraint failed"):
		return fmt.Errorf("%w: %v", store.ErrAlreadyExists, err)
	case strings.Contains(msg, "SQLITE_BUSY"),
		strings.Contains(msg, "SQLITE_LOCKED"),
		strings.Contains(msg, "database is locked"):
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	default:
		return err
	}
}
