package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dseinapp/dsein-server/internal/domain"
	"github.com/dseinapp/dsein-server/internal/sse"
	"github.com/dseinapp/dsein-server/internal/store"
	badgerstore "github.com/dseinapp/dsein-server/internal/store/badger"
	sqlitestore "github.com/dseinapp/dsein-server/internal/store/sqlite"
	"github.com/dseinapp/dsein-server/internal/store/storetest"
	"github.com/dseinapp/dsein-server/internal/validation"
)

// testRetry is generous so contention in concurrency tests never exhausts.
var testRetry = store.RetryPolicy{
	MaxAttempts: 200,
	BaseDelay:   time.Millisecond,
	MaxDelay:    20 * time.Millisecond,
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// forEachBackend runs fn against a fresh badger store and a fresh sqlite store.
func forEachBackend(t *testing.T, fn func(t *testing.T, st store.Store)) {
	t.Helper()

	t.Run("badger", func(t *testing.T) {
		st, err := badgerstore.Open(badgerstore.Options{InMemory: true, Retry: testRetry})
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		fn(t, st)
	})

	t.Run("sqlite", func(t *testing.T) {
		st, err := sqlitestore.Open(sqlitestore.Options{
			Path:  filepath.Join(t.TempDir(), "dsein.db"),
			Retry: testRetry,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		fn(t, st)
	})
}

// services bundles every service over one store.
type services struct {
	store     store.Store
	emitter   *recordingEmitter
	directory *DirectoryService
	follows   *FollowService
	likes     *LikeService
	invites   *InviteService
	activity  *ActivityService
}

func newServices(st store.Store) *services {
	logger := testLogger()
	emitter := &recordingEmitter{}
	activity := NewActivityService(st, nil, logger)
	return &services{
		store:     st,
		emitter:   emitter,
		directory: NewDirectoryService(st, nil, validation.New(), nil, logger, DefaultInviteQuota),
		follows:   NewFollowService(st, emitter, nil, logger),
		likes:     NewLikeService(st, emitter, nil, logger),
		invites:   NewInviteService(st, activity, emitter, nil, logger, 0),
		activity:  activity,
	}
}

// seedUsers creates users named after their ids with the default quota.
func seedUsers(t *testing.T, st store.Store, ids ...string) {
	t.Helper()
	users := make([]*domain.User, len(ids))
	for i, id := range ids {
		users[i] = storetest.NewUser(id, "user."+id)
	}
	storetest.MustCreateUsers(t, st, users...)
}

func mustGetUser(t *testing.T, st store.Store, id string) *domain.User {
	t.Helper()
	u, err := st.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

// setQuota overwrites a user's invite quota directly in the store.
func setQuota(t *testing.T, st store.Store, id string, quota int) {
	t.Helper()
	err := st.Update(context.Background(), func(tx store.Tx) error {
		u, err := tx.GetUser(id)
		if err != nil {
			return err
		}
		u.InvitesAvailable = quota
		return tx.UpdateUser(u)
	})
	require.NoError(t, err)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []sse.Event
}

func (r *recordingEmitter) Emit(event any) {
	e, ok := event.(sse.Event)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) ofType(t sse.EventType) []sse.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sse.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// fixedCodes returns a generator that yields codes in order, then repeats the last.
func fixedCodes(codes ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[min(i, len(codes)-1)]
		i++
		return code, nil
	}
}
