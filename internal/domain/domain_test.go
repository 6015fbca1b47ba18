package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUser_ConsumeInvite(t *testing.T) {
	t.Run("limited quota decrements", func(t *testing.T) {
		u := &User{InvitesAvailable: 2}
		assert.True(t, u.CanInvite())
		u.ConsumeInvite()
		assert.Equal(t, 1, u.InvitesAvailable)
	})

	t.Run("unlimited never decrements", func(t *testing.T) {
		u := &User{InvitesAvailable: UnlimitedInvites}
		for i := 0; i < 5; i++ {
			u.ConsumeInvite()
		}
		assert.Equal(t, UnlimitedInvites, u.InvitesAvailable)
		assert.True(t, u.CanInvite())
	})

	t.Run("empty quota stays at zero", func(t *testing.T) {
		u := &User{InvitesAvailable: 0}
		assert.False(t, u.CanInvite())
		u.ConsumeInvite()
		assert.Equal(t, 0, u.InvitesAvailable)
	})
}

func TestUser_CountersClampAtZero(t *testing.T) {
	u := &User{}
	u.RemoveFollower()
	u.RemoveFollowing()
	assert.Equal(t, 0, u.FollowersCount)
	assert.Equal(t, 0, u.FollowingCount)

	u.AddFollower()
	u.AddFollowing()
	u.AddFollowing()
	u.RemoveFollowing()
	assert.Equal(t, 1, u.FollowersCount)
	assert.Equal(t, 1, u.FollowingCount)
}

func TestValidUsername(t *testing.T) {
	assert.True(t, ValidUsername("alice"))
	assert.True(t, ValidUsername("a.b_c9"))
	assert.False(t, ValidUsername("al"))
	assert.False(t, ValidUsername("Alice"))
	assert.False(t, ValidUsername("alice smith"))
	assert.False(t, ValidUsername(""))
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("usr-abc123"))
	assert.False(t, ValidID("usr_abc"))
	assert.False(t, ValidID("a:b"))
	assert.False(t, ValidID(""))
}

func TestEdgeIDs(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	f := NewFollowEdge("A", "B", at)
	assert.Equal(t, "A_B", f.ID)
	assert.NotEqual(t, FollowEdgeID("B", "A"), f.ID)

	l := NewLikeEdge("u1", "p9", "owner", at)
	assert.Equal(t, "u1_p9", l.ID)
	assert.Equal(t, "owner", l.PostOwnerID)
}

func TestInvite_Lifecycle(t *testing.T) {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	inv := NewInvite("DSEIN-ABCDE", "ref", created)

	assert.Equal(t, InviteAvailable, inv.Status)
	assert.False(t, inv.IsUsed())
	assert.False(t, inv.ExpiredAt(created.Add(11*time.Hour), 12*time.Hour))
	assert.True(t, inv.ExpiredAt(created.Add(13*time.Hour), 12*time.Hour))

	inv.MarkUsed("newbie", created.Add(time.Hour))
	assert.True(t, inv.IsUsed())
	assert.Equal(t, "newbie", inv.UsedBy)
	if assert.NotNil(t, inv.UsedAt) {
		assert.Equal(t, created.Add(time.Hour), *inv.UsedAt)
	}
	assert.False(t, inv.ExpiredAt(created.Add(48*time.Hour), 12*time.Hour), "used invites never expire")
}

func TestValidInviteCode(t *testing.T) {
	tests := []struct {
		code  string
		valid bool
	}{
		{"DSEIN-ABCDE", true},
		{"DSEIN-23456", true},
		{"DSEIN-ABCD", false},
		{"DSEIN-ABCDEF", false},
		{"dsein-abcde", false},
		{"DSEIN-ABCD0", false},
		{"DSEIN-ABCDI", false},
		{"XSEIN-ABCDE", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidInviteCode(tt.code))
		})
	}
}

func TestNewInviteUsedActivity(t *testing.T) {
	at := time.UnixMilli(1760000000123).UTC()
	rec := NewInviteUsedActivity("newbie", "ref", at)

	assert.Equal(t, "invite_newbie_1760000000123", rec.ID)
	assert.Equal(t, ActivityInviteUsed, rec.Type)
	assert.Equal(t, "newbie", rec.UserID)
	assert.Equal(t, "ref", rec.TargetUserID)
}
