package disclosure

import "time"

// State is the lock state of a disclosure session.
type State string

const (
	StateLocked   State = "locked"
	StatePending  State = "pending"
	StateUnlocked State = "unlocked"
)

// Session is one identity's disclosure session. Sessions live in memory only.
type Session struct {
	ID         string     `json:"id"`
	Identity   string     `json:"identity"`
	Context    Context    `json:"context"`
	Challenge  string     `json:"challenge"`
	State      State      `json:"state"`
	Signature  []byte     `json:"-"`
	OpenedAt   time.Time  `json:"opened_at"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

func (s *Session) clone() Session {
	out := *s
	out.Signature = append([]byte(nil), s.Signature...)
	if s.UnlockedAt != nil {
		t := *s.UnlockedAt
		out.UnlockedAt = &t
	}
	return out
}

// Disclosed holds both plaintext parameters of a test.
type Disclosed struct {
	RecordID string  `json:"record_id"`
	ValueA   float64 `json:"value_a"`
	ValueB   float64 `json:"value_b"`
}
