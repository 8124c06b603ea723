package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpggio/sealab/internal/codec"
	"github.com/rpggio/sealab/internal/domain/abtest"
	"github.com/rpggio/sealab/internal/domain/disclosure"
	"github.com/rpggio/sealab/internal/domain/keyindex"
	"github.com/rpggio/sealab/internal/ledger"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps domain errors to MCP error codes.
// Unknown errors map to INTERNAL_ERROR with the raw message.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, disclosure.ErrDecryption):
		return &APIError{Code: "DECRYPTION_FAILED", Message: err.Error(), RecoveryHint: "Ciphertext was not produced by this codec"}
	case errors.Is(err, codec.ErrDecode):
		return &APIError{Code: "DECODE_ERROR", Message: err.Error()}
	case errors.Is(err, disclosure.ErrSessionNotFound):
		return &APIError{Code: "SESSION_NOT_FOUND", Message: "disclosure session not found", RecoveryHint: "Call open_disclosure to start a new session"}
	case errors.Is(err, disclosure.ErrUnauthenticated):
		return &APIError{Code: "UNAUTHENTICATED", Message: err.Error(), RecoveryHint: "Call authenticate and pass the returned signature"}
	case errors.Is(err, disclosure.ErrUserRejected):
		return &APIError{Code: "USER_REJECTED", Message: "signature request rejected", RecoveryHint: "Retry authenticate once the key holder approves"}
	case errors.Is(err, disclosure.ErrAuthInProgress):
		return &APIError{Code: "AUTH_IN_PROGRESS", Message: err.Error(), RecoveryHint: "Wait for the pending signature request"}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &APIError{Code: "CANCELED", Message: err.Error(), RecoveryHint: "The call was abandoned before it finished; retry"}
	case errors.Is(err, ledger.ErrUnavailable):
		return &APIError{Code: "LEDGER_UNAVAILABLE", Message: "ledger unavailable", RecoveryHint: "Retry when the ledger is reachable"}
	case errors.Is(err, ledger.ErrPersistence):
		return &APIError{Code: "PERSISTENCE_ERROR", Message: err.Error(), RecoveryHint: "The write did not land; retry"}
	case errors.Is(err, keyindex.ErrDuplicateID):
		return &APIError{Code: "DUPLICATE_ID", Message: err.Error()}
	case errors.Is(err, abtest.ErrNotFound):
		return &APIError{Code: "NOT_FOUND", Message: err.Error(), RecoveryHint: "Check the id with list_tests"}
	case errors.Is(err, abtest.ErrCorrupt):
		return &APIError{Code: "CORRUPT_RECORD", Message: err.Error()}
	case errors.Is(err, abtest.ErrNotOwner):
		return &APIError{Code: "NOT_OWNER", Message: "only the owner may complete a test"}
	case errors.Is(err, abtest.ErrAlreadyCompleted):
		return &APIError{Code: "ALREADY_COMPLETED", Message: "test already completed"}
	case errors.Is(err, abtest.ErrInvalidInput),
		errors.Is(err, disclosure.ErrInvalidInput),
		errors.Is(err, keyindex.ErrInvalidID),
		errors.Is(err, codec.ErrNonFinite):
		return &APIError{Code: "VALIDATION_ERROR", Message: err.Error()}
	default:
		return &APIError{Code: "INTERNAL_ERROR", Message: err.Error()}
	}
}
