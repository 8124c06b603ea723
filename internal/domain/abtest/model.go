package abtest

// Status is the lifecycle state of a test.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusCompleted
}

// Side selects version A or version B of a test.
type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

// TestRecord is one A/B test as stored in the ledger. The ciphertexts are
// opaque codec strings and are never decoded by the registry.
type TestRecord struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	VersionALabel    string `json:"version_a"`
	VersionBLabel    string `json:"version_b"`
	CiphertextA      string `json:"ciphertext_a"`
	CiphertextB      string `json:"ciphertext_b"`
	CreatedAt        int64  `json:"created_at"` // unix seconds
	Owner            string `json:"owner"`
	Status           Status `json:"status"`
	ParticipantCount int64  `json:"participant_count"`
}

// Ciphertext returns the encoded parameter for side.
func (r *TestRecord) Ciphertext(side Side) (string, error) {
	switch side {
	case SideA:
		return r.CiphertextA, nil
	case SideB:
		return r.CiphertextB, nil
	default:
		return "", ErrInvalidSide
	}
}

// Stats summarizes the registry.
type Stats struct {
	Total        int   `json:"total"`
	Active       int   `json:"active"`
	Completed    int   `json:"completed"`
	Participants int64 `json:"participants"`
}
