// Package disclosure implements the authenticate-then-decrypt flow that turns
// a test's ciphertexts back into numbers for the holder of an identity.
package disclosure

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// publicKeyBytes is the size of a generated public key before hex encoding.
const publicKeyBytes = 1000

// Context is the explicit input to a challenge. It replaces ambient wallet
// and chain state.
type Context struct {
	PublicKey          string `json:"public_key"`
	ContractAddress    string `json:"contract_address"`
	ChainID            int64  `json:"chain_id"`
	WindowStart        int64  `json:"window_start"` // unix seconds
	WindowDurationDays int    `json:"window_duration_days"`
}

// NewContext builds a context with a fresh public key and a window that
// starts at now.
func NewContext(contractAddress string, chainID int64, durationDays int, now time.Time) (Context, error) {
	pk, err := GeneratePublicKey()
	if err != nil {
		return Context{}, err
	}
	c := Context{
		PublicKey:          pk,
		ContractAddress:    contractAddress,
		ChainID:            chainID,
		WindowStart:        now.Unix(),
		WindowDurationDays: durationDays,
	}
	if err := c.Validate(); err != nil {
		return Context{}, err
	}
	return c, nil
}

// Validate checks that every challenge field is usable.
func (c Context) Validate() error {
	if strings.TrimSpace(c.PublicKey) == "" {
		return fmt.Errorf("%w: public key is required", ErrInvalidInput)
	}
	if strings.TrimSpace(c.ContractAddress) == "" {
		return fmt.Errorf("%w: contract address is required", ErrInvalidInput)
	}
	if c.WindowDurationDays <= 0 {
		return fmt.Errorf("%w: duration must be at least one day", ErrInvalidInput)
	}
	if strings.ContainsAny(c.PublicKey+c.ContractAddress, "\r\n") {
		return fmt.Errorf("%w: fields must not contain line breaks", ErrInvalidInput)
	}
	return nil
}

// WindowEnd is the end of the disclosure window.
func (c Context) WindowEnd() time.Time {
	return time.Unix(c.WindowStart, 0).Add(time.Duration(c.WindowDurationDays) * 24 * time.Hour)
}

// BuildChallenge renders the message an identity signs to unlock disclosure.
// External verifiers rebuild it byte for byte, so the keys, their order and
// the newline separators are fixed.
func BuildChallenge(c Context) string {
	var b strings.Builder
	b.WriteString("publickey:")
	b.WriteString(c.PublicKey)
	b.WriteString("\ncontractAddresses:")
	b.WriteString(c.ContractAddress)
	b.WriteString("\ncontractsChainId:")
	b.WriteString(strconv.FormatInt(c.ChainID, 10))
	b.WriteString("\nstartTimestamp:")
	b.WriteString(strconv.FormatInt(c.WindowStart, 10))
	b.WriteString("\ndurationDays:")
	b.WriteString(strconv.Itoa(c.WindowDurationDays))
	return b.String()
}

// GeneratePublicKey returns a random 0x-prefixed hex key.
func GeneratePublicKey() (string, error) {
	buf := make([]byte, publicKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating public key: %w", err)
	}
	return "0x" + hex.EncodeToString(buf), nil
}
