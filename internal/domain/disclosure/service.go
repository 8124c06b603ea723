package disclosure

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rpggio/sealab/internal/domain/abtest"
	"github.com/rpggio/sealab/internal/domain/activity"
)

// DefaultSessionCache bounds the number of live sessions.
const DefaultSessionCache = 256

// Service runs disclosure sessions. One successful authentication unlocks
// every decrypt in the same session.
type Service struct {
	signer     Signer
	codec      Codec
	activities ActivityRepository
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	sessions *lru.Cache[string, *Session]
}

// NewService creates a disclosure service holding at most cacheSize sessions.
func NewService(signer Signer, codec Codec, activities ActivityRepository, logger *slog.Logger, cacheSize int) (*Service, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cacheSize <= 0 {
		cacheSize = DefaultSessionCache
	}
	cache, err := lru.New[string, *Session](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating session cache: %w", err)
	}
	return &Service{
		signer:     signer,
		codec:      codec,
		activities: activities,
		logger:     logger,
		now:        time.Now,
		sessions:   cache,
	}, nil
}

// Open starts a locked session for identity.
func (s *Service) Open(ctx context.Context, identity string, c Context) (Session, error) {
	if strings.TrimSpace(identity) == "" {
		return Session{}, fmt.Errorf("%w: identity is required", ErrInvalidInput)
	}
	if err := c.Validate(); err != nil {
		return Session{}, err
	}

	sess := &Session{
		ID:        uuid.NewString(),
		Identity:  strings.TrimSpace(identity),
		Context:   c,
		Challenge: BuildChallenge(c),
		State:     StateLocked,
		OpenedAt:  s.now(),
	}

	s.mu.Lock()
	if evicted := s.sessions.Add(sess.ID, sess); evicted {
		s.logger.Debug("disclosure session evicted")
	}
	out := sess.clone()
	s.mu.Unlock()

	s.logActivity(ctx, sess.Identity, sess.ID, nil, activity.TypeDisclosureOpened, "opened disclosure session")
	return out, nil
}

// Get returns a snapshot of a session.
func (s *Service) Get(sessionID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions.Peek(sessionID)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess.clone(), nil
}

// Authenticate asks the signer to sign the session challenge. The session is
// pending while the signer runs and returns to locked if the request is
// refused or abandoned. Authenticating an unlocked session returns the
// recorded signature without signing again.
func (s *Service) Authenticate(ctx context.Context, sessionID string) ([]byte, error) {
	s.mu.Lock()
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	switch sess.State {
	case StateUnlocked:
		sig := append([]byte(nil), sess.Signature...)
		s.mu.Unlock()
		return sig, nil
	case StatePending:
		s.mu.Unlock()
		return nil, ErrAuthInProgress
	}
	sess.State = StatePending
	message, identity := sess.Challenge, sess.Identity
	s.mu.Unlock()

	sig, err := s.signer.Sign(ctx, message, identity)

	s.mu.Lock()
	if err != nil || len(sig) == 0 {
		sess.State = StateLocked
		s.mu.Unlock()
		switch {
		case err == nil:
			err = fmt.Errorf("%w: empty signature", ErrUserRejected)
		case errors.Is(err, ErrUserRejected), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		default:
			err = fmt.Errorf("signing challenge: %w", err)
		}
		s.logger.Info("disclosure authentication failed", "session_id", sessionID, "error", err)
		s.logActivity(context.WithoutCancel(ctx), identity, sessionID, nil, activity.TypeDisclosureRejected, "signature request failed")
		return nil, err
	}
	now := s.now()
	sess.State = StateUnlocked
	sess.Signature = append([]byte(nil), sig...)
	sess.UnlockedAt = &now
	s.mu.Unlock()

	s.logger.Info("disclosure session unlocked", "session_id", sessionID)
	s.logActivity(ctx, identity, sessionID, nil, activity.TypeDisclosureUnlocked, "disclosure session unlocked")
	return append([]byte(nil), sig...), nil
}

// Decrypt decodes ciphertext for an unlocked session. signature must be the
// evidence returned by Authenticate for that session.
func (s *Service) Decrypt(ctx context.Context, sessionID, ciphertext string, signature []byte) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if _, err := s.authorized(sessionID, signature); err != nil {
		return 0, err
	}
	v, err := s.codec.Decode(ciphertext)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	return v, nil
}

// DiscloseRecord decrypts both sides of rec under one authentication.
func (s *Service) DiscloseRecord(ctx context.Context, sessionID string, rec *abtest.TestRecord, signature []byte) (Disclosed, error) {
	if rec == nil {
		return Disclosed{}, fmt.Errorf("%w: record is required", ErrInvalidInput)
	}
	identity, err := s.authorized(sessionID, signature)
	if err != nil {
		return Disclosed{}, err
	}

	a, err := s.codec.Decode(rec.CiphertextA)
	if err != nil {
		return Disclosed{}, fmt.Errorf("%w: version A: %w", ErrDecryption, err)
	}
	b, err := s.codec.Decode(rec.CiphertextB)
	if err != nil {
		return Disclosed{}, fmt.Errorf("%w: version B: %w", ErrDecryption, err)
	}

	s.logActivity(ctx, identity, sessionID, &rec.ID, activity.TypeDisclosureDecrypted, fmt.Sprintf("disclosed test %q", rec.Name))
	return Disclosed{RecordID: rec.ID, ValueA: a, ValueB: b}, nil
}

// Close forgets a session. It reports whether the session existed.
func (s *Service) Close(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Remove(sessionID)
}

func (s *Service) authorized(sessionID string, signature []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, ErrSessionNotFound)
	}
	if sess.State != StateUnlocked {
		return "", ErrUnauthenticated
	}
	if len(signature) == 0 || subtle.ConstantTimeCompare(signature, sess.Signature) != 1 {
		return "", fmt.Errorf("%w: signature does not match session", ErrUnauthenticated)
	}
	return sess.Identity, nil
}

func (s *Service) logActivity(ctx context.Context, actor, sessionID string, recordID *string, typ activity.ActivityType, summary string) {
	if s.activities == nil {
		return
	}
	if err := s.activities.Log(ctx, &activity.ActivityEntry{
		RecordID:     recordID,
		SessionID:    &sessionID,
		Actor:        actor,
		ActivityType: typ,
		Summary:      summary,
		CreatedAt:    s.now(),
	}); err != nil {
		s.logger.Warn("activity log failed", "session_id", sessionID, "type", typ, "error", err)
	}
}
