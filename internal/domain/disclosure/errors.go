package disclosure

import "errors"

var (
	// ErrUnauthenticated indicates decrypt was attempted without a successful
	// authentication in the session, or with foreign evidence.
	ErrUnauthenticated = errors.New("disclosure session is not authenticated")
	// ErrUserRejected indicates the identity holder refused to sign.
	ErrUserRejected = errors.New("signature request rejected")
	// ErrDecryption indicates the ciphertext could not be decoded.
	ErrDecryption = errors.New("decryption failed")
	// ErrSessionNotFound indicates the session id is unknown or evicted.
	ErrSessionNotFound = errors.New("disclosure session not found")
	// ErrAuthInProgress indicates a signature request is already pending.
	ErrAuthInProgress = errors.New("authentication already in progress")
	// ErrInvalidInput indicates invalid input for disclosure operations.
	ErrInvalidInput = errors.New("invalid disclosure input")
)
