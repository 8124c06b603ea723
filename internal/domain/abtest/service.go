// Package abtest is the registry of A/B tests kept on a key-value ledger.
// Each test body lives under its own key and the key index lists every id
// ever created, oldest first.
package abtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/rpggio/sealab/internal/domain/activity"
	"github.com/rpggio/sealab/internal/domain/keyindex"
	"github.com/rpggio/sealab/internal/ledger"
)

// Service handles test registry business logic.
type Service struct {
	ledger     ledger.Ledger
	index      KeyIndex
	codec      Codec
	activities ActivityRepository
	logger     *slog.Logger

	now   func() time.Time
	newID func(time.Time) string
	scans singleflight.Group
}

// NewService creates a new registry service. activities may be nil.
func NewService(
	l ledger.Ledger,
	index KeyIndex,
	codec Codec,
	activities ActivityRepository,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Service{
		ledger:     l,
		index:      index,
		codec:      codec,
		activities: activities,
		logger:     logger,
		now:        time.Now,
		newID:      NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewID mints an id of the form test-<unix ms>-<random suffix>.
func NewID(at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("test-%d-%s", at.UnixMilli(), suffix)
}

// CreateRequest describes a test creation request.
type CreateRequest struct {
	Name     string
	VersionA string
	VersionB string
	ParamA   float64
	ParamB   float64
	Owner    string
}

// Create encodes both parameters, writes the body and then appends the id to
// the index. The body goes first so an indexed id always has a body; a failed
// append leaves an unindexed body behind, which List never sees.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*TestRecord, error) {
	if err := s.ensureAvailable(ctx); err != nil {
		return nil, err
	}
	if err := ValidateCreateInput(req); err != nil {
		return nil, err
	}

	dataA, err := s.codec.Encode(req.ParamA)
	if err != nil {
		return nil, fmt.Errorf("%w: version A: %v", ErrInvalidInput, err)
	}
	dataB, err := s.codec.Encode(req.ParamB)
	if err != nil {
		return nil, fmt.Errorf("%w: version B: %v", ErrInvalidInput, err)
	}

	now := s.now()
	rec := &TestRecord{
		ID:            s.newID(now),
		Name:          strings.TrimSpace(req.Name),
		VersionALabel: strings.TrimSpace(req.VersionA),
		VersionBLabel: strings.TrimSpace(req.VersionB),
		CiphertextA:   dataA,
		CiphertextB:   dataB,
		CreatedAt:     now.Unix(),
		Owner:         strings.TrimSpace(req.Owner),
		Status:        StatusActive,
	}

	existing, err := s.ledger.GetData(ctx, ledger.RecordKey(rec.ID))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ledger.ErrPersistence, rec.ID, err)
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: %s", keyindex.ErrDuplicateID, rec.ID)
	}

	body, err := encodeBody(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding body: %w", err)
	}
	receipt, err := s.ledger.SetData(ctx, ledger.RecordKey(rec.ID), body)
	if err != nil {
		return nil, fmt.Errorf("%w: writing body: %w", ledger.ErrPersistence, err)
	}
	s.logger.Debug("test body written", "id", rec.ID, "revision", receipt.Revision, "checksum", receipt.Checksum)

	if _, err := s.index.Append(ctx, rec.ID); err != nil {
		s.logger.Warn("test body written but not indexed", "id", rec.ID, "error", err)
		return nil, err
	}

	s.logActivity(ctx, now, rec.Owner, rec.ID, activity.TypeTestCreated, fmt.Sprintf("created test %q", rec.Name))
	return rec, nil
}

// List returns every indexed test whose body can be read, newest first.
// Ids without a body, bodies that fail to parse and bodies whose read fails
// are skipped. Only an index read failure or an unavailable ledger fails the
// call.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]TestRecord, error) {
	if err := s.ensureAvailable(ctx); err != nil {
		return nil, err
	}

	// Concurrent callers share one scan, detached from each caller's
	// cancellation; each caller still returns on its own ctx.
	scanCtx := context.WithoutCancel(ctx)
	ch := s.scans.DoChan("list", func() (any, error) {
		return s.scan(scanCtx)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	all := res.Val.([]TestRecord)

	out := make([]TestRecord, 0, len(all))
	for i := range all {
		if !opts.match(&all[i]) {
			continue
		}
		out = append(out, all[i])
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func (s *Service) scan(ctx context.Context) ([]TestRecord, error) {
	ids, err := s.index.Load(ctx)
	if err != nil {
		return nil, err
	}

	type positioned struct {
		rec TestRecord
		pos int
	}
	found := make([]positioned, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for pos, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		_, rec, err := s.load(ctx, id)
		switch {
		case err == nil:
		case errors.Is(err, ledger.ErrUnavailable):
			return nil, err
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrCorrupt):
			s.logger.Warn("skipping indexed test", "id", id, "error", err)
			continue
		default:
			s.logger.Warn("skipping unreadable test", "id", id, "error", err)
			continue
		}
		found = append(found, positioned{rec: *rec, pos: pos})
	}

	// Newest first; equal timestamps keep the later index entry first.
	sort.Slice(found, func(i, j int) bool {
		if found[i].rec.CreatedAt != found[j].rec.CreatedAt {
			return found[i].rec.CreatedAt > found[j].rec.CreatedAt
		}
		return found[i].pos > found[j].pos
	})

	out := make([]TestRecord, len(found))
	for i := range found {
		out[i] = found[i].rec
	}
	return out, nil
}

// Get loads a single test by id.
func (s *Service) Get(ctx context.Context, id string) (*TestRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	if err := s.ensureAvailable(ctx); err != nil {
		return nil, err
	}
	_, rec, err := s.load(ctx, id)
	return rec, err
}

// Complete marks the test completed. Only the owner may complete a test and
// a test completes at most once.
func (s *Service) Complete(ctx context.Context, id, caller string) (*TestRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(caller) == "" {
		return nil, fmt.Errorf("%w: caller is required", ErrInvalidInput)
	}
	if err := s.ensureAvailable(ctx); err != nil {
		return nil, err
	}

	raw, rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sameIdentity(caller, rec.Owner) {
		return nil, ErrNotOwner
	}
	if rec.Status == StatusCompleted {
		return nil, ErrAlreadyCompleted
	}

	patched, err := markCompleted(raw)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.SetData(ctx, ledger.RecordKey(id), patched); err != nil {
		return nil, fmt.Errorf("%w: writing body: %w", ledger.ErrPersistence, err)
	}
	rec.Status = StatusCompleted

	s.logActivity(ctx, s.now(), caller, id, activity.TypeTestCompleted, fmt.Sprintf("completed test %q", rec.Name))
	return rec, nil
}

// Stats counts listed tests by status and sums their participants.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	recs, err := s.List(ctx, ListOptions{})
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	for i := range recs {
		st.Total++
		st.Participants += recs[i].ParticipantCount
		switch recs[i].Status {
		case StatusActive:
			st.Active++
		case StatusCompleted:
			st.Completed++
		}
	}
	return st, nil
}

// AverageSide averages one side's ciphertexts across tests without decoding
// them here; the result is itself a ciphertext.
func (s *Service) AverageSide(ctx context.Context, ids []string, side Side) (string, error) {
	if err := ValidateSide(side); err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("%w: at least one id is required", ErrInvalidInput)
	}
	if err := s.ensureAvailable(ctx); err != nil {
		return "", err
	}

	cts := make([]string, 0, len(ids))
	for _, id := range ids {
		_, rec, err := s.load(ctx, id)
		if err != nil {
			return "", err
		}
		ct, err := rec.Ciphertext(side)
		if err != nil {
			return "", err
		}
		cts = append(cts, ct)
	}
	return s.codec.AggregateAverage(cts)
}

func (s *Service) load(ctx context.Context, id string) ([]byte, *TestRecord, error) {
	raw, err := s.ledger.GetData(ctx, ledger.RecordKey(id))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading %s: %w", ledger.ErrPersistence, id, err)
	}
	if len(raw) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec, err := decodeBody(id, raw)
	if err != nil {
		return nil, nil, err
	}
	return raw, rec, nil
}

func (s *Service) ensureAvailable(ctx context.Context) error {
	ok, err := s.ledger.IsAvailable(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ledger.ErrUnavailable, err)
	}
	if !ok {
		return ledger.ErrUnavailable
	}
	return nil
}

func (s *Service) logActivity(ctx context.Context, at time.Time, actor, id string, typ activity.ActivityType, summary string) {
	if s.activities == nil {
		return
	}
	if err := s.activities.Log(ctx, &activity.ActivityEntry{
		RecordID:     &id,
		Actor:        actor,
		ActivityType: typ,
		Summary:      summary,
		CreatedAt:    at,
	}); err != nil {
		s.logger.Warn("activity log failed", "id", id, "type", typ, "error", err)
	}
}
