package mcp

import (
	"github.com/rpggio/sealab/internal/domain/abtest"
	"github.com/rpggio/sealab/internal/domain/activity"
	"github.com/rpggio/sealab/internal/domain/disclosure"
)

type CreateTestParams struct {
	Name     string  `json:"name" jsonschema:"Test display name"`
	VersionA string  `json:"version_a" jsonschema:"Label of version A"`
	VersionB string  `json:"version_b" jsonschema:"Label of version B"`
	ParamA   float64 `json:"param_a" jsonschema:"Numeric parameter for version A; stored encrypted"`
	ParamB   float64 `json:"param_b" jsonschema:"Numeric parameter for version B; stored encrypted"`
}

type ListTestsParams struct {
	Status string `json:"status,omitempty" jsonschema:"Filter by status: active or completed"`
	Owner  string `json:"owner,omitempty" jsonschema:"Filter by owner identity"`
	Mine   bool   `json:"mine,omitempty" jsonschema:"Only tests owned by the caller"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of tests to return"`
}

type TestIDParams struct {
	ID string `json:"id" jsonschema:"Test id"`
}

type StatsParams struct{}

type AverageSideParams struct {
	IDs  []string `json:"ids" jsonschema:"Test ids to aggregate"`
	Side string   `json:"side" jsonschema:"A or B"`
}

type OpenDisclosureParams struct {
	ContractAddress string `json:"contract_address,omitempty" jsonschema:"Contract address; defaults to server config"`
	ChainID         int64  `json:"chain_id,omitempty" jsonschema:"Chain id; defaults to server config"`
	DurationDays    int    `json:"duration_days,omitempty" jsonschema:"Validity window in days; defaults to server config"`
}

type BuildChallengeParams struct {
	PublicKey       string `json:"public_key"`
	ContractAddress string `json:"contract_address"`
	ChainID         int64  `json:"chain_id"`
	StartTimestamp  int64  `json:"start_timestamp" jsonschema:"Window start in unix seconds"`
	DurationDays    int    `json:"duration_days"`
}

type SessionParams struct {
	SessionID string `json:"session_id"`
}

type DecryptParams struct {
	SessionID  string `json:"session_id"`
	Ciphertext string `json:"ciphertext"`
	Signature  string `json:"signature" jsonschema:"0x-prefixed hex signature returned by authenticate"`
}

type DiscloseTestParams struct {
	SessionID string `json:"session_id"`
	ID        string `json:"id" jsonschema:"Test id"`
	Signature string `json:"signature" jsonschema:"0x-prefixed hex signature returned by authenticate"`
}

type RecentActivityParams struct {
	Limit    int    `json:"limit,omitempty"`
	RecordID string `json:"record_id,omitempty"`
	Type     string `json:"type,omitempty"`
	Mine     bool   `json:"mine,omitempty" jsonschema:"Only activity by the caller"`
}

type ListTestsResponse struct {
	Tests []abtest.TestRecord `json:"tests"`
	Count int                 `json:"count"`
}

type AverageSideResponse struct {
	Side       abtest.Side `json:"side"`
	Count      int         `json:"count"`
	Ciphertext string      `json:"ciphertext"`
}

type SessionResponse struct {
	disclosure.Session
	WindowEnd int64 `json:"window_end"`
}

type ChallengeResponse struct {
	Message string `json:"message"`
}

type AuthenticateResponse struct {
	SessionID string           `json:"session_id"`
	State     disclosure.State `json:"state"`
	Signature string           `json:"signature"`
}

type DecryptResponse struct {
	Value float64 `json:"value"`
}

type CloseDisclosureResponse struct {
	Closed bool `json:"closed"`
}

type RecentActivityResponse struct {
	Entries []activity.ActivityEntry `json:"entries"`
}
