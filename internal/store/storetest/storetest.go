// Package storetest is a conformance suite every store.Store backend must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dseinapp/dsein-server/internal/domain"
	"github.com/dseinapp/dsein-server/internal/store"
)

// Factory returns a fresh, empty store. It should register cleanup with t.
type Factory func(t *testing.T) store.Store

// Run executes the whole suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("UsernameIndex", func(t *testing.T) { testUsernameIndex(t, newStore(t)) })
	t.Run("Follows", func(t *testing.T) { testFollows(t, newStore(t)) })
	t.Run("Likes", func(t *testing.T) { testLikes(t, newStore(t)) })
	t.Run("Invites", func(t *testing.T) { testInvites(t, newStore(t)) })
	t.Run("Activity", func(t *testing.T) { testActivity(t, newStore(t)) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("ConcurrentCounterUpdates", func(t *testing.T) { testConcurrentCounters(t, newStore(t)) })
	t.Run("ConcurrentCreateIfAbsent", func(t *testing.T) { testConcurrentCreateIfAbsent(t, newStore(t)) })
}

// base is a fixed instant so ordering assertions do not depend on the clock.
var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// NewUser returns a user fixture with the given id and username.
func NewUser(id, username string) *domain.User {
	u := &domain.User{
		ID:               id,
		Username:         username,
		DisplayName:      username,
		InvitesAvailable: 3,
	}
	u.CreatedAt = base
	u.UpdatedAt = base
	return u
}

// MustCreateUsers inserts the given users in one transaction.
func MustCreateUsers(t *testing.T, s store.Store, users ...*domain.User) {
	t.Helper()
	err := s.Update(context.Background(), func(tx store.Tx) error {
		for _, u := range users {
			if err := tx.CreateUser(u); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := NewUser("u-alice", "alice")
	MustCreateUsers(t, s, alice)

	got, err := s.GetUser(ctx, "u-alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, 3, got.InvitesAvailable)
	assert.True(t, got.CreatedAt.Equal(base))

	_, err = s.GetUser(ctx, "u-missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.Update(ctx, func(tx store.Tx) error {
		return tx.CreateUser(NewUser("u-alice", "other"))
	})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	err = s.Update(ctx, func(tx store.Tx) error {
		u, err := tx.GetUser("u-alice")
		if err != nil {
			return err
		}
		u.DisplayName = "Alice A."
		u.InvitesAvailable = domain.UnlimitedInvites
		u.Banned = true
		return tx.UpdateUser(u)
	})
	require.NoError(t, err)

	got, err = s.GetUser(ctx, "u-alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice A.", got.DisplayName)
	assert.Equal(t, domain.UnlimitedInvites, got.InvitesAvailable)
	assert.True(t, got.Banned)

	err = s.Update(ctx, func(tx store.Tx) error {
		return tx.UpdateUser(NewUser("u-ghost", "ghost"))
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	MustCreateUsers(t, s, NewUser("u-bob", "bob"))
	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func testUsernameIndex(t *testing.T, s store.Store) {
	ctx := context.Background()
	MustCreateUsers(t, s, NewUser("u-1", "alice"), NewUser("u-2", "bob"))

	got, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.ID)

	_, err = s.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.Update(ctx, func(tx store.Tx) error {
		return tx.CreateUser(NewUser("u-3", "alice"))
	})
	assert.ErrorIs(t, err, store.ErrAlreadyExists, "usernames are unique")

	// Rename moves the index entry.
	err = s.Update(ctx, func(tx store.Tx) error {
		u, err := tx.GetUser("u-1")
		if err != nil {
			return err
		}
		u.Username = "alicia"
		return tx.UpdateUser(u)
	})
	require.NoError(t, err)

	_, err = s.GetUserByUsername(ctx, "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)
	got, err = s.GetUserByUsername(ctx, "alicia")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.ID)

	err = s.Update(ctx, func(tx store.Tx) error {
		u, err := tx.GetUser("u-2")
		if err != nil {
			return err
		}
		u.Username = "alicia"
		return tx.UpdateUser(u)
	})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func testFollows(t *testing.T, s store.Store) {
	ctx := context.Background()
	MustCreateUsers(t, s, NewUser("A", "aaa"), NewUser("B", "bbb"), NewUser("C", "ccc"))

	err := s.Update(ctx, func(tx store.Tx) error {
		if err := tx.CreateFollow(domain.NewFollowEdge("A", "B", base)); err != nil {
			return err
		}
		return tx.CreateFollow(domain.NewFollowEdge("C", "B", base.Add(time.Second)))
	})
	require.NoError(t, err)

	edge, err := s.GetFollow(ctx, "A", "B")
	require.NoError(t, err)
	assert.Equal(t, "A_B", edge.ID)
	assert.Equal(t, "A", edge.FollowerID)
	assert.Equal(t, "B", edge.FollowingID)

	_, err = s.GetFollow(ctx, "B", "A")
	assert.ErrorIs(t, err, store.ErrNotFound, "edges are directed")

	err = s.Update(ctx, func(tx store.Tx) error {
		return tx.CreateFollow(domain.NewFollowEdge("A", "B", base))
	})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	followers, err := s.ListFollowerIDs(ctx, "B")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "C"}, followers)

	following, err := s.ListFollowingIDs(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, following)

	err = s.Update(ctx, func(tx store.Tx) error {
		n, err := tx.CountFollowers("B")
		if err != nil {
			return err
		}
		assert.Equal(t, 2, n)
		n, err = tx.CountFollowing("A")
		if err != nil {
			return err
		}
		assert.Equal(t, 1, n)
		return nil
	})
	require.NoError(t, err)

	err = s.Update(ctx, func(tx store.Tx) error { return tx.DeleteFollow("A", "B") })
	require.NoError(t, err)

	_, err = s.GetFollow(ctx, "A", "B")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.Update(ctx, func(tx store.Tx) error { return tx.DeleteFollow("A", "B") })
	assert.ErrorIs(t, err, store.ErrNotFound)

	followers, err = s.ListFollowerIDs(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, followers)

	following, err = s.ListFollowingIDs(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, following)
}

func testLikes(t *testing.T, s store.Store) {
	ctx := context.Background()

	err := s.Update(ctx, func(tx store.Tx) error {
		for i := 0; i < 5; i++ {
			l := domain.NewLikeEdge(fmt.Sprintf("u%d", i), "p1", "owner", base.Add(time.Duration(i)*time.Minute))
			if err := tx.CreateLike(l); err != nil {
				return err
			}
		}
		return tx.CreateLike(domain.NewLikeEdge("u0", "p2", "someone-else", base))
	})
	require.NoError(t, err)

	like, err := s.GetLike(ctx, "u3", "p1")
	require.NoError(t, err)
	assert.Equal(t, "owner", like.PostOwnerID)

	err = s.Update(ctx, func(tx store.Tx) error {
		return tx.CreateLike(domain.NewLikeEdge("u3", "p1", "owner", base))
	})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	likes, err := s.ListLikesByOwner(ctx, "owner", 3)
	require.NoError(t, err)
	require.Len(t, likes, 3)
	assert.Equal(t, "u4", likes[0].UserID, "newest first")
	assert.Equal(t, "u3", likes[1].UserID)
	assert.Equal(t, "u2", likes[2].UserID)

	err = s.Update(ctx, func(tx store.Tx) error { return tx.DeleteLike("u4", "p1") })
	require.NoError(t, err)

	err = s.Update(ctx, func(tx store.Tx) error { return tx.DeleteLike("u4", "p1") })
	assert.ErrorIs(t, err, store.ErrNotFound)

	likes, err = s.ListLikesByOwner(ctx, "owner", 0)
	require.NoError(t, err)
	assert.Len(t, likes, 4)
	assert.Equal(t, "u3", likes[0].UserID)
}

func testInvites(t *testing.T, s store.Store) {
	ctx := context.Background()

	err := s.Update(ctx, func(tx store.Tx) error {
		codes := []string{"DSEIN-BBBBB", "DSEIN-AAAAA", "DSEIN-CCCCC"}
		for i, code := range codes {
			if err := tx.CreateInvite(domain.NewInvite(code, "ref", base.Add(time.Duration(i)*time.Hour))); err != nil {
				return err
			}
		}
		return tx.CreateInvite(domain.NewInvite("DSEIN-DDDDD", "other", base))
	})
	require.NoError(t, err)

	err = s.Update(ctx, func(tx store.Tx) error {
		return tx.CreateInvite(domain.NewInvite("DSEIN-AAAAA", "other", base))
	})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	invites, err := s.ListInvitesByCreator(ctx, "ref")
	require.NoError(t, err)
	require.Len(t, invites, 3)
	assert.Equal(t, "DSEIN-BBBBB", invites[0].Code, "oldest first")
	assert.Equal(t, "DSEIN-AAAAA", invites[1].Code)
	assert.Equal(t, "DSEIN-CCCCC", invites[2].Code)

	usedAt := base.Add(5 * time.Hour)
	err = s.Update(ctx, func(tx store.Tx) error {
		inv, err := tx.GetInvite("DSEIN-AAAAA")
		if err != nil {
			return err
		}
		inv.MarkUsed("newbie", usedAt)
		return tx.UpdateInvite(inv)
	})
	require.NoError(t, err)

	inv, err := s.GetInvite(ctx, "DSEIN-AAAAA")
	require.NoError(t, err)
	assert.Equal(t, domain.InviteUsed, inv.Status)
	assert.Equal(t, "newbie", inv.UsedBy)
	require.NotNil(t, inv.UsedAt)
	assert.True(t, inv.UsedAt.Equal(usedAt))

	err = s.Update(ctx, func(tx store.Tx) error {
		return tx.UpdateInvite(domain.NewInvite("DSEIN-ZZZZZ", "ref", base))
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.Update(ctx, func(tx store.Tx) error { return tx.DeleteInvite("DSEIN-BBBBB") })
	require.NoError(t, err)

	_, err = s.GetInvite(ctx, "DSEIN-BBBBB")
	assert.ErrorIs(t, err, store.ErrNotFound)

	invites, err = s.ListInvitesByCreator(ctx, "ref")
	require.NoError(t, err)
	assert.Len(t, invites, 2)

	err = s.Update(ctx, func(tx store.Tx) error { return tx.DeleteInvite("DSEIN-BBBBB") })
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testActivity(t *testing.T, s store.Store) {
	ctx := context.Background()

	err := s.Update(ctx, func(tx store.Tx) error {
		for i := 0; i < 4; i++ {
			rec := domain.NewInviteUsedActivity(fmt.Sprintf("new%d", i), "ref", base.Add(time.Duration(i)*time.Minute))
			if err := tx.CreateActivity(rec); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = s.Update(ctx, func(tx store.Tx) error {
		return tx.CreateActivity(domain.NewInviteUsedActivity("new0", "ref", base))
	})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	err = s.Update(ctx, func(tx store.Tx) error {
		got, err := tx.GetActivity(domain.InviteUsedActivityID("new1", base.Add(time.Minute)))
		if err != nil {
			return err
		}
		assert.Equal(t, "new1", got.UserID)
		assert.Equal(t, "ref", got.TargetUserID)
		assert.True(t, got.CreatedAt.Equal(base.Add(time.Minute)))

		_, err = tx.GetActivity("invite_nobody_1")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
	require.NoError(t, err)

	records, err := s.ListActivityForTarget(ctx, "ref", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "new3", records[0].UserID, "newest first")
	assert.Equal(t, "new2", records[1].UserID)
	assert.Equal(t, domain.ActivityInviteUsed, records[0].Type)

	records, err = s.ListActivityForTarget(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func testRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	MustCreateUsers(t, s, NewUser("A", "aaa"), NewUser("B", "bbb"))
	boom := errors.New("boom")

	err := s.Update(ctx, func(tx store.Tx) error {
		if err := tx.CreateFollow(domain.NewFollowEdge("A", "B", base)); err != nil {
			return err
		}
		b, err := tx.GetUser("B")
		if err != nil {
			return err
		}
		b.AddFollower()
		if err := tx.UpdateUser(b); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetFollow(ctx, "A", "B")
	assert.ErrorIs(t, err, store.ErrNotFound)

	b, err := s.GetUser(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, 0, b.FollowersCount)
}

// testConcurrentCounters increments one user's counter from many goroutines.
// Lost updates would leave the counter short.
func testConcurrentCounters(t *testing.T, s store.Store) {
	ctx := context.Background()
	MustCreateUsers(t, s, NewUser("target", "target"))

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Update(ctx, func(tx store.Tx) error {
				u, err := tx.GetUser("target")
				if err != nil {
					return err
				}
				u.AddFollower()
				return tx.UpdateUser(u)
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	u, err := s.GetUser(ctx, "target")
	require.NoError(t, err)
	assert.Equal(t, workers, u.FollowersCount)
}

// testConcurrentCreateIfAbsent races the same edge creation. Exactly one
// transaction may observe the edge as absent and bump the counter.
func testConcurrentCreateIfAbsent(t *testing.T, s store.Store) {
	ctx := context.Background()
	MustCreateUsers(t, s, NewUser("A", "aaa"), NewUser("B", "bbb"))

	const workers = 12
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var didCreate bool
			err := s.Update(ctx, func(tx store.Tx) error {
				didCreate = false
				_, err := tx.GetFollow("A", "B")
				if err == nil {
					return nil
				}
				if !errors.Is(err, store.ErrNotFound) {
					return err
				}
				if err := tx.CreateFollow(domain.NewFollowEdge("A", "B", base)); err != nil {
					return err
				}
				b, err := tx.GetUser("B")
				if err != nil {
					return err
				}
				b.AddFollower()
				if err := tx.UpdateUser(b); err != nil {
					return err
				}
				didCreate = true
				return nil
			})
			if err != nil && !errors.Is(err, store.ErrAlreadyExists) {
				t.Errorf("update: %v", err)
			}
			if err == nil && didCreate {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	b, err := s.GetUser(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, 1, b.FollowersCount)
}
