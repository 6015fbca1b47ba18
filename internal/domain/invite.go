package domain

import (
	"strings"
	"time"
)

// Invite code format. Existing shared links depend on it, so it never changes.
const (
	InviteCodePrefix   = "DSEIN-"
	InviteCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	InviteCodeLength   = 5
)

// InviteStatus is the lifecycle state of an invite. The only transition is
// available -> used.
type InviteStatus string

const (
	InviteAvailable InviteStatus = "available"
	InviteUsed      InviteStatus = "used"
)

// Invite is a single-use code issued by a referrer.
type Invite struct {
	Code      string       `json:"code" bson:"_id"`
	CreatedBy string       `json:"created_by" bson:"created_by"`
	CreatedAt time.Time    `json:"created_at" bson:"created_at"`
	Status    InviteStatus `json:"status" bson:"status"`
	UsedBy    string       `json:"used_by,omitempty" bson:"used_by,omitempty"`
	UsedAt    *time.Time   `json:"used_at,omitempty" bson:"used_at,omitempty"`
}

// NewInvite returns an available invite for code issued by createdBy.
func NewInvite(code, createdBy string, at time.Time) *Invite {
	return &Invite{
		Code:      code,
		CreatedBy: createdBy,
		CreatedAt: at.UTC(),
		Status:    InviteAvailable,
	}
}

// IsUsed reports whether the invite has been redeemed.
func (i *Invite) IsUsed() bool {
	return i.Status == InviteUsed
}

// MarkUsed records the redemption. Callers must check IsUsed first.
func (i *Invite) MarkUsed(userID string, at time.Time) {
	t := at.UTC()
	i.Status = InviteUsed
	i.UsedBy = userID
	i.UsedAt = &t
}

// ExpiredAt reports whether an available invite is older than maxAge at now.
// Used invites never expire.
func (i *Invite) ExpiredAt(now time.Time, maxAge time.Duration) bool {
	if i.IsUsed() {
		return false
	}
	return now.Sub(i.CreatedAt) > maxAge
}

// ValidInviteCode reports whether an uppercase code matches DSEIN-XXXXX.
func ValidInviteCode(code string) bool {
	if len(code) != len(InviteCodePrefix)+InviteCodeLength {
		return false
	}
	if !strings.HasPrefix(code, InviteCodePrefix) {
		return false
	}
	for _, r := range code[len(InviteCodePrefix):] {
		if !strings.ContainsRune(InviteCodeAlphabet, r) {
			return false
		}
	}
	return true
}
