// Package sse pushes social graph events to connected clients over Server-Sent Events.
package sse

import "time"

// EventType is the SSE "event:" field.
type EventType string

// Event types. Each is addressed to the one user it concerns.
const (
	EventFollowCreated EventType = "follow.created" // to the followed user
	EventLikeCreated   EventType = "like.created"   // to the post owner
	EventInviteUsed    EventType = "invite.used"    // to the referrer
	EventHeartbeat     EventType = "heartbeat"
)

// Event is one message on the stream. Data is JSON encoded as the frame body.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// UserID addresses the event. Empty means every client; it is never sent.
	UserID string `json:"-"`
}

func newEvent(t EventType, to string, data any) Event {
	return Event{Type: t, UserID: to, Data: data, Timestamp: time.Now()}
}

// FollowEventData is the payload of follow.created. FollowersCount is the
// followed user's count after the edge was written.
type FollowEventData struct {
	FollowerID     string `json:"follower_id"`
	FollowingID    string `json:"following_id"`
	FollowersCount int    `json:"followers_count"`
}

// NewFollowCreatedEvent tells followingID about a new follower.
func NewFollowCreatedEvent(followerID, followingID string, followersCount int) Event {
	return newEvent(EventFollowCreated, followingID, FollowEventData{
		FollowerID:     followerID,
		FollowingID:    followingID,
		FollowersCount: followersCount,
	})
}

type LikeEventData struct {
	UserID string `json:"user_id"`
	PostID string `json:"post_id"`
}

// NewLikeCreatedEvent tells ownerID that likerID liked postID.
func NewLikeCreatedEvent(ownerID, likerID, postID string) Event {
	return newEvent(EventLikeCreated, ownerID, LikeEventData{UserID: likerID, PostID: postID})
}

type InviteUsedEventData struct {
	Code       string `json:"code"`
	NewUserID  string `json:"new_user_id"`
	ActivityID string `json:"activity_id,omitempty"`
}

// NewInviteUsedEvent tells referrerID that newUserID joined with code.
// activityID is empty when the activity record could not be written.
func NewInviteUsedEvent(referrerID, newUserID, code, activityID string) Event {
	return newEvent(EventInviteUsed, referrerID, InviteUsedEventData{
		Code:       code,
		NewUserID:  newUserID,
		ActivityID: activityID,
	})
}

type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewHeartbeatEvent is broadcast; it has no addressee.
func NewHeartbeatEvent() Event {
	return newEvent(EventHeartbeat, "", HeartbeatEventData{ServerTime: time.Now()})
}
