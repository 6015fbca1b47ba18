package domain

import (
	"fmt"
	"time"
)

// ActivityType identifies what an activity record reports.
type ActivityType string

// ActivityInviteUsed is appended when someone joins with a referrer's code.
const ActivityInviteUsed ActivityType = "invite_used"

// ActivityRecord is an append-only notification shown to TargetUserID.
type ActivityRecord struct {
	ID           string       `json:"id" bson:"_id"`
	Type         ActivityType `json:"type" bson:"type"`
	UserID       string       `json:"user_id" bson:"user_id"`
	TargetUserID string       `json:"target_user_id" bson:"target_user_id"`
	CreatedAt    time.Time    `json:"created_at" bson:"created_at"`
}

// InviteUsedActivityID builds the record id invite_{newUserId}_{unixMillis}.
func InviteUsedActivityID(newUserID string, at time.Time) string {
	return fmt.Sprintf("invite_%s_%d", newUserID, at.UnixMilli())
}

// NewInviteUsedActivity credits referrerID for newUserID joining at the given time.
func NewInviteUsedActivity(newUserID, referrerID string, at time.Time) *ActivityRecord {
	return &ActivityRecord{
		ID:           InviteUsedActivityID(newUserID, at),
		Type:         ActivityInviteUsed,
		UserID:       newUserID,
		TargetUserID: referrerID,
		CreatedAt:    at.UTC(),
	}
}
