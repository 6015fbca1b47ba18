package badger

import (
	"fmt"
	"math"
	"time"
)

// Key layout. Primary documents live under a type prefix; secondary indexes
// live under "idx:" and carry the primary key (or id) as their value.
const (
	userPrefix        = "user:"
	usernameIdxPrefix = "idx:users:username:"

	followPrefix       = "follow:"
	followersIdxPrefix = "idx:followers:"
	followingIdxPrefix = "idx:following:"

	likePrefix          = "like:"
	likesOwnerIdxPrefix = "idx:likes:owner:"

	invitePrefix            = "invite:"
	invitesCreatorIdxPrefix = "idx:invites:creator:"

	activityPrefix          = "activity:"
	activityTargetIdxPrefix = "idx:activity:target:"
)

func userKey(id string) []byte { return []byte(userPrefix + id) }

func usernameKey(username string) []byte { return []byte(usernameIdxPrefix + username) }

func followKey(edgeID string) []byte { return []byte(followPrefix + edgeID) }

// followersKey is listed under the followed user.
func followersKey(followingID, followerID string) []byte {
	return []byte(followersIdxPrefix + followingID + ":" + followerID)
}

func followersPrefix(userID string) []byte { return []byte(followersIdxPrefix + userID + ":") }

// followingKey is listed under the acting user.
func followingKey(followerID, followingID string) []byte {
	return []byte(followingIdxPrefix + followerID + ":" + followingID)
}

func followingPrefix(userID string) []byte { return []byte(followingIdxPrefix + userID + ":") }

func likeKey(edgeID string) []byte { return []byte(likePrefix + edgeID) }

func likesOwnerKey(ownerID string, at time.Time, edgeID string) []byte {
	return []byte(likesOwnerIdxPrefix + ownerID + ":" + invertedTimestamp(at) + ":" + edgeID)
}

func likesOwnerPrefix(ownerID string) []byte { return []byte(likesOwnerIdxPrefix + ownerID + ":") }

func inviteKey(code string) []byte { return []byte(invitePrefix + code) }

func invitesCreatorKey(creatorID string, at time.Time, code string) []byte {
	return []byte(invitesCreatorIdxPrefix + creatorID + ":" + sortableTimestamp(at) + ":" + code)
}

func invitesCreatorPrefix(creatorID string) []byte {
	return []byte(invitesCreatorIdxPrefix + creatorID + ":")
}

func activityKey(id string) []byte { return []byte(activityPrefix + id) }

func activityTargetKey(targetID string, at time.Time, id string) []byte {
	return []byte(activityTargetIdxPrefix + targetID + ":" + invertedTimestamp(at) + ":" + id)
}

func activityTargetPrefix(targetID string) []byte {
	return []byte(activityTargetIdxPrefix + targetID + ":")
}

// invertedTimestamp returns a string that sorts newest first under forward iteration.
func invertedTimestamp(t time.Time) string {
	return fmt.Sprintf("%019d", math.MaxInt64-t.UnixNano())
}

// sortableTimestamp returns a string that sorts oldest first.
func sortableTimestamp(t time.Time) string {
	return fmt.Sprintf("%019d", t.UnixNano())
}
