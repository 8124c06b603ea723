package activity

import "time"

// ActivityType represents the type of activity event
type ActivityType string

const (
	TypeTestCreated         ActivityType = "test_created"
	TypeTestCompleted       ActivityType = "test_completed"
	TypeDisclosureOpened    ActivityType = "disclosure_opened"
	TypeDisclosureUnlocked  ActivityType = "disclosure_unlocked"
	TypeDisclosureRejected  ActivityType = "disclosure_rejected"
	TypeDisclosureDecrypted ActivityType = "disclosure_decrypted"
)

// ActivityEntry represents an event in the activity log
type ActivityEntry struct {
	ID           int64        `json:"id"`
	RecordID     *string      `json:"record_id,omitempty"`
	SessionID    *string      `json:"session_id,omitempty"`
	Actor        string       `json:"actor"`
	ActivityType ActivityType `json:"type"`
	Summary      string       `json:"summary"`
	Details      string       `json:"details,omitempty"` // JSON string
	CreatedAt    time.Time    `json:"created_at"`
}
