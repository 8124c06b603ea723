package disclosure

import (
	"context"

	"github.com/rpggio/sealab/internal/domain/activity"
)

// Signer asks the holder of identity to sign message. Implementations return
// an error wrapping ErrUserRejected when the holder declines.
type Signer interface {
	Sign(ctx context.Context, message, identity string) ([]byte, error)
}

// Codec decodes ciphertexts.
type Codec interface {
	Decode(ciphertext string) (float64, error)
}

// ActivityRepository records disclosure events.
type ActivityRepository interface {
	Log(ctx context.Context, entry *activity.ActivityEntry) error
}
