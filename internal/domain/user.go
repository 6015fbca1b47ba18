package domain

import "regexp"

// UnlimitedInvites is the InvitesAvailable sentinel for referrers without a quota.
const UnlimitedInvites = -1

var usernamePattern = regexp.MustCompile(`^[a-z0-9._]{3,30}$`)

// User is the directory record for a member of the network.
// FollowersCount and FollowingCount are caches over follow edges; the edges win.
type User struct {
	Timestamps `bson:",inline"`

	ID               string `json:"id" bson:"_id"`
	Username         string `json:"username" bson:"username"`
	DisplayName      string `json:"display_name" bson:"display_name"`
	PhotoURL         string `json:"photo_url,omitempty" bson:"photo_url,omitempty"`
	FollowersCount   int    `json:"followers_count" bson:"followers_count"`
	FollowingCount   int    `json:"following_count" bson:"following_count"`
	InvitesAvailable int    `json:"invites_available" bson:"invites_available"`
	Banned           bool   `json:"banned" bson:"banned"`
	InvitedBy        string `json:"invited_by,omitempty" bson:"invited_by,omitempty"`
}

// HasUnlimitedInvites reports whether the user carries the unlimited sentinel.
func (u *User) HasUnlimitedInvites() bool {
	return u.InvitesAvailable == UnlimitedInvites
}

// CanInvite reports whether the user may issue one more invite.
func (u *User) CanInvite() bool {
	return u.HasUnlimitedInvites() || u.InvitesAvailable > 0
}

// ConsumeInvite charges one invite against the quota. Unlimited users are never charged.
func (u *User) ConsumeInvite() {
	if u.HasUnlimitedInvites() || u.InvitesAvailable <= 0 {
		return
	}
	u.InvitesAvailable--
}

// AddFollower increments the follower cache.
func (u *User) AddFollower() { u.FollowersCount++ }

// RemoveFollower decrements the follower cache, clamped at zero.
func (u *User) RemoveFollower() { u.FollowersCount = decrementClamped(u.FollowersCount) }

// AddFollowing increments the following cache.
func (u *User) AddFollowing() { u.FollowingCount++ }

// RemoveFollowing decrements the following cache, clamped at zero.
func (u *User) RemoveFollowing() { u.FollowingCount = decrementClamped(u.FollowingCount) }

func decrementClamped(n int) int {
	if n <= 0 {
		return 0
	}
	return n - 1
}

// ValidUsername reports whether a normalized username is acceptable.
func ValidUsername(s string) bool {
	return usernamePattern.MatchString(s)
}
