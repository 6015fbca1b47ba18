package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dseinapp/dsein-server/internal/domain"
	"github.com/dseinapp/dsein-server/internal/store"
	"github.com/dseinapp/dsein-server/internal/store/storetest"
)

// newTestStore creates a fresh SQLite store in a temp directory.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(Options{Path: dbPath})
	if err != nil {
		t.Fatalf("Open(%q): %v", dbPath, err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})

	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newTestStore(t) })
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")

	s, err := Open(Options{Path: dbPath})
	require.NoError(t, err)
	storetest.MustCreateUsers(t, s, storetest.NewUser("u1", "alice"))
	require.NoError(t, s.Close())

	s, err = Open(Options{Path: dbPath})
	require.NoError(t, err)
	defer s.Close()

	u, err := s.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
}

func TestSchema_RejectsNegativeCounters(t *testing.T) {
	s := newTestStore(t)
	storetest.MustCreateUsers(t, s, storetest.NewUser("u1", "alice"))

	err := s.Update(context.Background(), func(tx store.Tx) error {
		u, err := tx.GetUser("u1")
		if err != nil {
			return err
		}
		u.FollowersCount = -1
		return tx.UpdateUser(u)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHECK constraint failed")
}

func TestSchema_RejectsSelfFollow(t *testing.T) {
	s := newTestStore(t)

	err := s.Update(context.Background(), func(tx store.Tx) error {
		return tx.CreateFollow(domain.NewFollowEdge("A", "A", time.Now()))
	})
	require.Error(t, err)
}

func TestTimeLayout_SortsLexically(t *testing.T) {
	a := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := a.Add(time.Nanosecond)
	c := a.Add(10 * time.Second)

	assert.Less(t, formatTime(a), formatTime(b))
	assert.Less(t, formatTime(b), formatTime(c))

	parsed, err := parseTime(formatTime(b))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(b))
}

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil))
	assert.ErrorIs(t, translate(errors.New("constraint failed: UNIQUE constraint failed: users.username (2067)")), store.ErrAlreadyExists)
	assert.ErrorIs(t, translate(errors.New("database is locked (5) (SQLITE_BUSY)")), store.ErrConflict)

	other := errors.New("disk I/O error")
	assert.Equal(t, other, translate(other))
}

func TestDSN_CarriesPragmas(t *testing.T) {
	d := dsn("/tmp/x.db")
	assert.Contains(t, d, "file:/tmp/x.db?")
	assert.Contains(t, d, "_txlock=immediate")
	assert.Contains(t, d, "journal_mode%28WAL%29")
	assert.Contains(t, d, "busy_timeout%285000%29")
}
