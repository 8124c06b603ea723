// Package signer holds identity keys and signs disclosure challenges.
//
// Messages are hashed as keccak256("\x19Ethereum Signed Message:\n" + len +
// message) and the digest is signed with ed25519. An identity is the 0x hex
// of the first 20 bytes of keccak256(public key).
package signer

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/sha3"

	"github.com/rpggio/sealab/internal/domain/disclosure"
)

const messagePrefix = "\x19Ethereum Signed Message:\n"

// ErrInvalidKey indicates key material of the wrong size or encoding.
var ErrInvalidKey = errors.New("invalid signing key")

// Approver decides whether a signature request goes ahead. Returning an
// error refuses the request.
type Approver func(ctx context.Context, identity, message string) error

// Local signs with a single in-process key.
type Local struct {
	key      ed25519.PrivateKey
	identity string
	approve  Approver
}

// NewLocal builds a signer from a 32-byte seed.
func NewLocal(seed []byte) (*Local, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes", ErrInvalidKey, ed25519.SeedSize)
	}
	key := ed25519.NewKeyFromSeed(seed)
	return &Local{
		key:      key,
		identity: IdentityFor(key.Public().(ed25519.PublicKey)),
	}, nil
}

// Generate creates a signer with a fresh random seed and returns both.
func Generate() (*Local, []byte, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, nil, fmt.Errorf("generating seed: %w", err)
	}
	l, err := NewLocal(seed)
	if err != nil {
		return nil, nil, err
	}
	return l, seed, nil
}

// WithApprover installs a hook consulted before every signature.
func (l *Local) WithApprover(a Approver) *Local {
	l.approve = a
	return l
}

// Identity returns the account identity of the key.
func (l *Local) Identity() string { return l.identity }

// PublicKey returns the verification key.
func (l *Local) PublicKey() ed25519.PublicKey {
	return l.key.Public().(ed25519.PublicKey)
}

// Sign signs message for identity. Requests for any other identity, or
// requests the approver refuses, fail with disclosure.ErrUserRejected.
func (l *Local) Sign(ctx context.Context, message, identity string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(identity), l.identity) {
		return nil, fmt.Errorf("%w: no key for %s", disclosure.ErrUserRejected, identity)
	}
	if l.approve != nil {
		if err := l.approve(ctx, l.identity, message); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", disclosure.ErrUserRejected, err)
		}
	}
	return ed25519.Sign(l.key, Digest(message)), nil
}

// Keyring dispatches signature requests to the key of the requested identity.
type Keyring struct {
	mu   sync.RWMutex
	keys map[string]*Local
}

// NewKeyring creates a keyring holding keys.
func NewKeyring(keys ...*Local) *Keyring {
	k := &Keyring{keys: make(map[string]*Local, len(keys))}
	for _, l := range keys {
		k.Add(l)
	}
	return k
}

// Add registers a key under its identity.
func (k *Keyring) Add(l *Local) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[strings.ToLower(l.identity)] = l
}

// Identities lists the identities held.
func (k *Keyring) Identities() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]string, 0, len(k.keys))
	for _, l := range k.keys {
		out = append(out, l.identity)
	}
	return out
}

func (k *Keyring) Sign(ctx context.Context, message, identity string) ([]byte, error) {
	k.mu.RLock()
	l, ok := k.keys[strings.ToLower(strings.TrimSpace(identity))]
	k.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no key for %s", disclosure.ErrUserRejected, identity)
	}
	return l.Sign(ctx, message, identity)
}

// Digest returns the prefixed keccak256 hash that is actually signed.
func Digest(message string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(messagePrefix))
	h.Write([]byte(strconv.Itoa(len(message))))
	h.Write([]byte(message))
	return h.Sum(nil)
}

// IdentityFor derives the account identity of a public key.
func IdentityFor(pub ed25519.PublicKey) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(pub)
	return "0x" + hex.EncodeToString(h.Sum(nil)[:20])
}

// Verify reports whether sig is a signature of message by pub.
func Verify(pub ed25519.PublicKey, message string, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, Digest(message), sig)
}
