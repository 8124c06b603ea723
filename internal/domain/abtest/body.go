package abtest

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// storedBody is the JSON document written under test_config_<id>. Field names
// are shared with other clients of the same ledger and must not change.
type storedBody struct {
	Name         string `json:"name"`
	VersionA     string `json:"versionA"`
	VersionB     string `json:"versionB"`
	DataA        string `json:"dataA"`
	DataB        string `json:"dataB"`
	Timestamp    int64  `json:"timestamp"`
	Owner        string `json:"owner"`
	Status       Status `json:"status"`
	Participants int64  `json:"participants"`
}

func encodeBody(rec *TestRecord) ([]byte, error) {
	return json.Marshal(storedBody{
		Name:         rec.Name,
		VersionA:     rec.VersionALabel,
		VersionB:     rec.VersionBLabel,
		DataA:        rec.CiphertextA,
		DataB:        rec.CiphertextB,
		Timestamp:    rec.CreatedAt,
		Owner:        rec.Owner,
		Status:       rec.Status,
		Participants: rec.ParticipantCount,
	})
}

// decodeBody parses a stored body leniently: a missing status reads as
// active and missing participants as zero. Bodies written by other clients
// may carry extra fields, which are ignored here.
func decodeBody(id string, raw []byte) (*TestRecord, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: %s is not valid JSON", ErrCorrupt, id)
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: %s is not an object", ErrCorrupt, id)
	}

	status := StatusActive
	if v := doc.Get("status"); v.Exists() && v.String() != "" {
		status = Status(v.String())
		if !status.Valid() {
			return nil, fmt.Errorf("%w: %s has unknown status %q", ErrCorrupt, id, v.String())
		}
	}

	ts := doc.Get("timestamp")
	if ts.Type != gjson.Number {
		return nil, fmt.Errorf("%w: %s has no numeric timestamp", ErrCorrupt, id)
	}

	return &TestRecord{
		ID:               id,
		Name:             doc.Get("name").String(),
		VersionALabel:    doc.Get("versionA").String(),
		VersionBLabel:    doc.Get("versionB").String(),
		CiphertextA:      doc.Get("dataA").String(),
		CiphertextB:      doc.Get("dataB").String(),
		CreatedAt:        ts.Int(),
		Owner:            doc.Get("owner").String(),
		Status:           status,
		ParticipantCount: doc.Get("participants").Int(),
	}, nil
}

// markCompleted rewrites only the status field so that fields this service
// does not model survive the update.
func markCompleted(raw []byte) ([]byte, error) {
	out, err := sjson.SetBytes(raw, "status", string(StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("patching status: %w", err)
	}
	return out, nil
}
