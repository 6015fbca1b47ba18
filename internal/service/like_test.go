package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dseinapp/dsein-server/internal/domain"
	domainerrors "github.com/dseinapp/dsein-server/internal/errors"
	"github.com/dseinapp/dsein-server/internal/sse"
	"github.com/dseinapp/dsein-server/internal/store"
)

func TestLike_RoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		svc := newServices(st)

		res, err := svc.likes.Like(ctx, "u", "p1", "owner")
		require.NoError(t, err)
		assert.True(t, res.Liked)
		assert.False(t, res.AlreadyLiked)

		liked, err := svc.likes.HasLiked(ctx, "u", "p1")
		require.NoError(t, err)
		assert.True(t, liked)

		res, err = svc.likes.Unlike(ctx, "u", "p1")
		require.NoError(t, err)
		assert.False(t, res.Liked)

		liked, err = svc.likes.HasLiked(ctx, "u", "p1")
		require.NoError(t, err)
		assert.False(t, liked)

		_, err = st.GetLike(ctx, "u", "p1")
		assert.ErrorIs(t, err, store.ErrNotFound)

		received, err := svc.likes.LikesReceivedBy(ctx, "owner", 0)
		require.NoError(t, err)
		assert.Empty(t, received)
	})
}

func TestLike_Idempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		svc := newServices(st)

		_, err := svc.likes.Like(ctx, "u", "p1", "owner")
		require.NoError(t, err)
		res, err := svc.likes.Like(ctx, "u", "p1", "owner")
		require.NoError(t, err)
		assert.True(t, res.AlreadyLiked)

		received, err := svc.likes.LikesReceivedBy(ctx, "owner", 0)
		require.NoError(t, err)
		assert.Len(t, received, 1)
		assert.Len(t, svc.emitter.ofType(sse.EventLikeCreated), 1)
	})
}

func TestLike_Concurrent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		svc := newServices(st)

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.likes.Like(ctx, "u", "p1", "owner")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		received, err := svc.likes.LikesReceivedBy(ctx, "owner", 0)
		require.NoError(t, err)
		assert.Len(t, received, 1)
	})
}

func TestUnlike_MissingIsNoop(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		res, err := newServices(st).likes.Unlike(context.Background(), "u", "p1")
		require.NoError(t, err)
		assert.False(t, res.Liked)
		assert.NotEmpty(t, res.Message)
	})
}

func TestLike_InvalidIDs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		_, err := newServices(st).likes.Like(context.Background(), "u", "p:1", "owner")
		assert.ErrorIs(t, err, domainerrors.ErrInvalidFormat)
	})
}

func TestLike_OwnPostEmitsNothing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		svc := newServices(st)
		_, err := svc.likes.Like(context.Background(), "owner", "p1", "owner")
		require.NoError(t, err)
		assert.Empty(t, svc.emitter.ofType(sse.EventLikeCreated))
	})
}

func TestLikesReceivedBy_NewestFirstAndCapped(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		svc := newServices(st)

		base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, st.Update(ctx, func(tx store.Tx) error {
			for i := range 25 {
				like := domain.NewLikeEdge(fmt.Sprintf("fan%d", i), "p1", "owner", base.Add(time.Duration(i)*time.Minute))
				if err := tx.CreateLike(like); err != nil {
					return err
				}
			}
			return nil
		}))

		received, err := svc.likes.LikesReceivedBy(ctx, "owner", 0)
		require.NoError(t, err)
		require.Len(t, received, DefaultListLimit)
		assert.Equal(t, "fan24", received[0].UserID)
		assert.True(t, received[0].CreatedAt.After(received[1].CreatedAt))

		received, err = svc.likes.LikesReceivedBy(ctx, "owner", 500)
		require.NoError(t, err)
		assert.Len(t, received, 25)

		received, err = svc.likes.LikesReceivedBy(ctx, "someone-else", 5)
		require.NoError(t, err)
		assert.Empty(t, received)
	})
}
