// Package notification implements the notification delivery core: intake
// validation, recipient classification, per-channel rendering via the
// template store, and fan-out through the outbound producer. Read, archive
// and delete operations enforce that the requesting principal owns the
// notification.
package notification

import (
	"time"
)

// Type is the closed set of notification kinds the intake accepts.
type Type string

const (
	TypeSystemAnnouncement  Type = "SYSTEM_ANNOUNCEMENT"
	TypePasswordReset       Type = "PASSWORD_RESET"
	TypeWelcome             Type = "WELCOME"
	TypeBuddyRequest        Type = "BUDDY_REQUEST"
	TypeForumReply          Type = "FORUM_REPLY"
	TypePlaylistInvite      Type = "PLAYLIST_INVITE"
	TypeFocusSessionSummary Type = "FOCUS_SESSION_SUMMARY"
	TypeDigestSummary       Type = "DIGEST_SUMMARY"
)

// knownTypes is the validation set for intake.
var knownTypes = map[Type]struct{}{
	TypeSystemAnnouncement:  {},
	TypePasswordReset:       {},
	TypeWelcome:             {},
	TypeBuddyRequest:        {},
	TypeForumReply:          {},
	TypePlaylistInvite:      {},
	TypeFocusSessionSummary: {},
	TypeDigestSummary:       {},
}

// KnownType reports whether t is in the closed type set.
func KnownType(t Type) bool {
	_, ok := knownTypes[t]
	return ok
}

// Priority bounds, matching the broker's 0-9 priority field.
const (
	MinPriority = 0
	MaxPriority = 9
	// HighPriorityThreshold marks the band routed with the
	// notification.priority.high key instead of notification.created.
	HighPriorityThreshold = 8
)

// Notification is the persisted entity. ID is immutable; ReadAt is set only
// when Read is true.
type Notification struct {
	ID        string
	OwnerID   string
	Type      Type
	Title     string
	Content   string
	ActionURL string
	Priority  int
	Read      bool
	ReadAt    *time.Time
	Archived  bool
	Data      map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}
