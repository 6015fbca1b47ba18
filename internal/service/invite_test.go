package service

import (
	"context"
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

func TestGenerateCode_Format(t *testing.T) {
	svc := NewInviteService(nil, nil, nil, nil, testLogger(), 0)
	for range 50 {
		code, err := svc.GenerateCode()
		require.NoError(t, err)
		assert.True(t, domain.ValidInviteCode(code), code)
	}
}

func TestInviteScenario(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		svc := newServices(st)
		seedUsers(t, st, "r1")
		svc.invites.generate = fixedCodes("DSEIN-ABCDE")

		created, err := svc.invites.CreateInvite(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, "DSEIN-ABCDE", created.Invite.Code)
		assert.Equal(t, 2, created.InvitesRemaining)
		assert.Equal(t, 2, mustGetUser(t, st, "r1").InvitesAvailable)

		v, err := svc.invites.ValidateCode(ctx, "dsein-abcde")
		require.NoError(t, err)
		assert.Equal(t, InviteValid, v.Status)
		assert.Equal(t, "r1", v.Invite.CreatedBy)

		redeemed, err := svc.invites.Redeem(ctx, "DSEIN-ABCDE", "u1")
		require.NoError(t, err)
		assert.Equal(t, "r1", redeemed.ReferrerID)
		assert.Equal(t, domain.InviteUsed, redeemed.Invite.Status)
		assert.Equal(t, "u1", redeemed.Invite.UsedBy)
		require.NotNil(t, redeemed.Activity)
		assert.Equal(t, "r1", redeemed.Activity.TargetUserID)

		// Redemption does not touch the quota.
		assert.Equal(t, 2, mustGetUser(t, st, "r1").InvitesAvailable)

		_, err = svc.invites.Redeem(ctx, "DSEIN-ABCDE", "u2")
		assert.ErrorIs(t, err, domainerrors.ErrAlreadyRedeemed)

		v, err = svc.invites.ValidateCode(ctx, "DSEIN-ABCDE")
		require.NoError(t, err)
		assert.Equal(t, InviteAlreadyRedeemed, v.Status)

		activity, err := svc.activity.ListForUser(ctx, "r1", 0)
		require.NoError(t, err)
		require.Len(t, activity, 1)
		assert.Equal(t, "u1", activity[0].UserID)

		events := svc.emitter.ofType(sse.EventInviteUsed)
		require.Len(t, events, 1)
		assert.Equal(t, "r1", events[0].UserID)
	})
}

func TestRedeem_ExactlyOnce(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		svc := newServices(st)
		seedUsers(t, st, "r1")

		created, err := svc.invites.CreateInvite(ctx, "r1")
		require.NoError(t, err)
		code := created.Invite.Code

		redeemers := []string{"x", "y", "z", "w"}
		var wg sync.WaitGroup
		results := make([]error, len(redeemers))
		for i, who := range redeemers {
			wg.Add(1)
			go func(i int, who string) {
				defer wg.Done()
				_, results[i] = svc.invites.Redeem(ctx, code, who)
			}(i, who)
		}
		wg.Wait()

		winners := []string{}
		for i, err := range results {
			if err == nil {
				winners = append(winners, redeemers[i])
				continue
			}
			assert.ErrorIs(t, err, domainerrors.ErrAlreadyRedeemed)
		}
		require.Len(t, winners, 1)

		invite, err := st.GetInvite(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, winners[0], invite.UsedBy)
	})
}

func TestRedeem_LinksReferrerOnlyWhenItCommits(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		svc := newServices(st)
		seedUsers(t, st, "r1", "first", "late")
		svc.invites.generate = fixedCodes("DSEIN-ABCDE")

		_, err := svc.invites.CreateInvite(ctx, "r1")
		require.NoError(t, err)

		// "late" saw a valid code, but "first" redeemed it before "late" did.
		v, err := svc.invites.ValidateCode(ctx, "DSEIN-ABCDE")
		require.NoError(t, err)
		require.Equal(t, InviteValid, v.Status)

		_, err = svc.invites.Redeem(ctx, "DSEIN-ABCDE", "first")
		require.NoError(t, err)
		_, err = svc.invites.Redeem(ctx, "DSEIN-ABCDE", "late")
		require.ErrorIs(t, err, domainerrors.ErrAlreadyRedeemed)

		assert.Equal(t, "r1", mustGetUser(t, st, "first").InvitedBy)
		assert.Empty(t, mustGetUser(t, st, "late").InvitedBy)
	})
}

func TestRedeem_KeepsExistingReferrer(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		svc := newServices(st)
		seedUsers(t, st, "r1", "r2", "u1")
		svc.invites.generate = fixedCodes("DSEIN-AAAAA", "DSEIN-BBBBB")

		_, err := svc.invites.CreateInvite(ctx, "r1")
		require.NoError(t, err)
		_, err = svc.invites.CreateInvite(ctx, "r2")
		require.NoError(t, err)

		_, err = svc.invites.Redeem(ctx, "DSEIN-AAAAA", "u1")
		require.NoError(t, err)
		_, err = svc.invites.Redeem(ctx, "DSEIN-BBBBB", "u1")
		require.NoError(t, err)

		assert.Equal(t, "r1", mustGetUser(t, st, "u1").InvitedBy)
	})
}

func TestRedeem_Errors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		svc := newServices(st)

		_, err := svc.invites.Redeem(ctx, "DSEIN-AB", "u1")
		assert.ErrorIs(t, err, domainerrors.ErrInvalidFormat)

		_, err = svc.invites.Redeem(ctx, "DSEIN-ABCD0", "u1")
		assert.ErrorIs(t, err, domainerrors.ErrInvalidFormat)

		_, err = svc.invites.Redeem(ctx, "DSEIN-ABCDE", "u1")
		assert.ErrorIs(t, err, domainerrors.ErrInviteInvalid)
	})
}

func TestValidateCode_Malformed(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		svc := newServices(st)

		for _, raw := range []string{"", "hello", "DSEIN-OOOOO", "XDSEIN-ABCDE"} {
			v, err := svc.invites.ValidateCode(ctx, raw)
			require.NoError(t, err)
			assert.Equal(t, InviteInvalid, v.Status, raw)
		}

		v, err := svc.invites.ValidateCode(ctx, "  dsein-abcde ")
		require.NoError(t, err)
		assert.Equal(t, InviteInvalid, v.Status)
		assert.Equal(t, "DSEIN-ABCDE", v.Code)
	})
}

func TestCreateInvite_QuotaNeverNegative(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		svc := newServices(st)
		seedUsers(t, st, "r1")
		setQuota(t, st, "r1", 1)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = svc.invites.CreateInvite(ctx, "r1")
			}(i)
		}
		wg.Wait()

		successes := 0
		for _, err := range errs {
			if err == nil {
				successes++
				continue
			}
			assert.ErrorIs(t, err, domainerrors.ErrNoInvitesRemaining)
		}
		assert.Equal(t, 1, successes)

		invites, err := svc.invites.ListInvites(ctx, "r1")
		require.NoError(t, err)
		assert.Len(t, invites, 1)
		assert.Equal(t, 0, mustGetUser(t, st, "r1").InvitesAvailable)

		_, err = svc.invites.CreateInvite(ctx, "r1")
		assert.ErrorIs(t, err, domainerrors.ErrNoInvitesRemaining)
	})
}

func TestCreateInvite_UnlimitedSentinel(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		svc := newServices(st)
		seedUsers(t, st, "r1")
		setQuota(t, st, "r1", domain.UnlimitedInvites)

		for range 5 {
			res, err := svc.invites.CreateInvite(ctx, "r1")
			require.NoError(t, err)
			assert.True(t, res.Unlimited)
			assert.Equal(t, domain.UnlimitedInvites, res.InvitesRemaining)
		}
		assert.Equal(t, domain.UnlimitedInvites, mustGetUser(t, st, "r1").InvitesAvailable)

		invites, err := svc.invites.ListInvites(ctx, "r1")
		require.NoError(t, err)
		assert.Len(t, invites, 5)
	})
}

func TestCreateInvite_Collisions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		svc := newServices(st)
		seedUsers(t, st, "r1")
		setQuota(t, st, "r1", domain.UnlimitedInvites)

		svc.invites.generate = fixedCodes("DSEIN-AAAAA")
		_, err := svc.invites.CreateInvite(ctx, "r1")
		require.NoError(t, err)

		// Collides once, then draws a fresh code.
		svc.invites.generate = fixedCodes("DSEIN-AAAAA", "DSEIN-BBBBB")
		res, err := svc.invites.CreateInvite(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, "DSEIN-BBBBB", res.Invite.Code)

		// Every draw collides.
		svc.invites.generate = fixedCodes("DSEIN-AAAAA")
		_, err = svc.invites.CreateInvite(ctx, "r1")
		assert.ErrorIs(t, err, domainerrors.ErrCodeGenerationExhausted)
	})
}

func TestCreateInvite_Errors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		svc := newServices(st)
		seedUsers(t, st, "r1")

		_, err := svc.invites.CreateInvite(ctx, "nobody")
		assert.ErrorIs(t, err, domainerrors.ErrNotFound)

		_, err = svc.directory.SetBanned(ctx, "r1", true)
		require.NoError(t, err)
		_, err = svc.invites.CreateInvite(ctx, "r1")
		assert.ErrorIs(t, err, domainerrors.ErrForbidden)
		assert.Equal(t, 3, mustGetUser(t, st, "r1").InvitesAvailable)
	})
}

func TestPurgeExpired_Scoping(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		svc := newServices(st)
		seedUsers(t, st, "r", "other")
		setQuota(t, st, "r", domain.UnlimitedInvites)
		setQuota(t, st, "other", domain.UnlimitedInvites)

		old := time.Now().Add(-13 * time.Hour)
		svc.invites.now = func() time.Time { return old }
		svc.invites.generate = fixedCodes("DSEIN-AAAAA")
		_, err := svc.invites.CreateInvite(ctx, "r")
		require.NoError(t, err)
		svc.invites.generate = fixedCodes("DSEIN-BBBBB")
		_, err = svc.invites.CreateInvite(ctx, "r")
		require.NoError(t, err)
		svc.invites.generate = fixedCodes("DSEIN-CCCCC")
		_, err = svc.invites.CreateInvite(ctx, "other")
		require.NoError(t, err)
		_, err = svc.invites.Redeem(ctx, "DSEIN-BBBBB", "joiner")
		require.NoError(t, err)

		svc.invites.now = time.Now
		svc.invites.generate = fixedCodes("DSEIN-DDDDD")
		_, err = svc.invites.CreateInvite(ctx, "r")
		require.NoError(t, err)

		deleted, err := svc.invites.PurgeExpired(ctx, "r", 0)
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)

		_, err = st.GetInvite(ctx, "DSEIN-AAAAA")
		assert.ErrorIs(t, err, store.ErrNotFound)
		for _, kept := range []string{"DSEIN-BBBBB", "DSEIN-CCCCC", "DSEIN-DDDDD"} {
			_, err := st.GetInvite(ctx, kept)
			assert.NoError(t, err, kept)
		}

		// Nothing left to purge.
		deleted, err = svc.invites.PurgeExpired(ctx, "r", 12*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 0, deleted)
	})
}

func TestPurgeExpired_RacingRedeem(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		svc := newServices(st)
		seedUsers(t, st, "r")
		setQuota(t, st, "r", domain.UnlimitedInvites)

		svc.invites.now = func() time.Time { return time.Now().Add(-24 * time.Hour) }
		res, err := svc.invites.CreateInvite(ctx, "r")
		require.NoError(t, err)
		svc.invites.now = time.Now
		code := res.Invite.Code

		var (
			wg        sync.WaitGroup
			redeemErr error
			purged    int
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, redeemErr = svc.invites.Redeem(ctx, code, "joiner")
		}()
		go func() {
			defer wg.Done()
			purged, _ = svc.invites.PurgeExpired(ctx, "r", 0)
		}()
		wg.Wait()

		invite, err := st.GetInvite(ctx, code)
		if redeemErr == nil {
			// The redemption won; the purge must have left it alone.
			require.NoError(t, err)
			assert.Equal(t, domain.InviteUsed, invite.Status)
			assert.Equal(t, 0, purged)
			return
		}
		assert.ErrorIs(t, redeemErr, domainerrors.ErrInviteInvalid)
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.Equal(t, 1, purged)
	})
}

func TestPurgeAllExpired(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		svc := newServices(st)
		seedUsers(t, st, "r1", "r2", "quiet")

		svc.invites.now = func() time.Time { return time.Now().Add(-13 * time.Hour) }
		svc.invites.generate = fixedCodes("DSEIN-AAAAA")
		_, err := svc.invites.CreateInvite(ctx, "r1")
		require.NoError(t, err)
		svc.invites.generate = fixedCodes("DSEIN-BBBBB")
		_, err = svc.invites.CreateInvite(ctx, "r2")
		require.NoError(t, err)
		svc.invites.now = time.Now

		deleted, err := svc.invites.PurgeAllExpired(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, deleted)

		// Purging does not refund quota.
		assert.Equal(t, 2, mustGetUser(t, st, "r1").InvitesAvailable)
	})
}
