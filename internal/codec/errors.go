package codec

import "errors"

var (
	// ErrDecode indicates input that is not recognizable ciphertext.
	ErrDecode = errors.New("ciphertext decode failed")
	// ErrNonFinite indicates NaN or infinite input to Encode.
	ErrNonFinite = errors.New("value must be finite")
)
