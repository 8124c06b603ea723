package abtest_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/rpggio/sealab/internal/codec"
	"github.com/rpggio/sealab/internal/domain/abtest"
	"github.com/rpggio/sealab/internal/domain/keyindex"
	"github.com/rpggio/sealab/internal/ledger"
	"github.com/rpggio/sealab/internal/ledger/mocks"
)

const owner = "0xAbCdEf0000000000000000000000000000000001"

type fixture struct {
	ledger *ledger.Memory
	svc    *abtest.Service
	clock  time.Time
	seq    int
}

func newFixture(t *testing.T, activities abtest.ActivityRepository) *fixture {
	t.Helper()
	f := &fixture{
		ledger: ledger.NewMemory(),
		clock:  time.UnixMilli(1_700_000_000_000),
	}
	f.svc = abtest.NewService(
		f.ledger,
		keyindex.New(f.ledger, nil),
		codec.NewPlaceholder(),
		activities,
		nil,
		abtest.WithClock(func() time.Time {
			f.clock = f.clock.Add(time.Second)
			return f.clock
		}),
		abtest.WithIDGenerator(func(at time.Time) string {
			f.seq++
			return fmt.Sprintf("test-%d-%d", at.UnixMilli(), f.seq)
		}),
	)
	return f
}

func (f *fixture) create(t *testing.T, name string) *abtest.TestRecord {
	t.Helper()
	rec, err := f.svc.Create(context.Background(), abtest.CreateRequest{
		Name:     name,
		VersionA: "Blue",
		VersionB: "Green",
		ParamA:   1.5,
		ParamB:   2,
		Owner:    owner,
	})
	require.NoError(t, err)
	return rec
}

func (f *fixture) index(t *testing.T) []string {
	t.Helper()
	raw, err := f.ledger.GetData(context.Background(), ledger.IndexKey)
	require.NoError(t, err)
	var ids []string
	require.NoError(t, json.Unmarshal(raw, &ids))
	return ids
}

func TestRegistry_Create(t *testing.T) {
	ctx := context.Background()
	acts := &mocks.ActivityRepository{}
	acts.On("Log", ctx, mock.Anything).Return(nil)

	f := newFixture(t, acts)
	rec := f.create(t, "Checkout button")

	require.Equal(t, "Checkout button", rec.Name)
	require.Equal(t, abtest.StatusActive, rec.Status)
	require.Equal(t, "FHE-MS41", rec.CiphertextA)
	require.Equal(t, "FHE-Mg==", rec.CiphertextB)
	require.Equal(t, f.clock.Unix(), rec.CreatedAt)
	require.Equal(t, []string{rec.ID}, f.index(t))

	raw, err := f.ledger.GetData(ctx, ledger.RecordKey(rec.ID))
	require.NoError(t, err)
	require.Equal(t, "Blue", gjson.GetBytes(raw, "versionA").String())
	require.Equal(t, "active", gjson.GetBytes(raw, "status").String())
	require.Equal(t, owner, gjson.GetBytes(raw, "owner").String())

	acts.AssertNumberOfCalls(t, "Log", 1)
}

func TestRegistry_CreateValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cases := map[string]abtest.CreateRequest{
		"empty name":   {VersionA: "a", VersionB: "b", Owner: owner},
		"blank name":   {Name: "  ", VersionA: "a", VersionB: "b", Owner: owner},
		"no version a": {Name: "n", VersionB: "b", Owner: owner},
		"no version b": {Name: "n", VersionA: "a", Owner: owner},
		"no owner":     {Name: "n", VersionA: "a", VersionB: "b"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, req)
			require.ErrorIs(t, err, abtest.ErrInvalidInput)
		})
	}
	require.Empty(t, f.ledger.Keys())
}

func TestRegistry_CreateUnavailable(t *testing.T) {
	f := newFixture(t, nil)
	f.ledger.SetAvailable(false)

	_, err := f.svc.Create(context.Background(), abtest.CreateRequest{
		Name: "n", VersionA: "a", VersionB: "b", Owner: owner,
	})
	require.ErrorIs(t, err, ledger.ErrUnavailable)
	require.Empty(t, f.ledger.Keys())
}

func TestRegistry_CreateBodyWriteFails(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, "first")
	before := f.index(t)

	f.ledger.FailWrites(ledger.RecordKey(fmt.Sprintf("test-%d-2", f.clock.Add(time.Second).UnixMilli())), errors.New("reverted"))
	_, err := f.svc.Create(context.Background(), abtest.CreateRequest{
		Name: "second", VersionA: "a", VersionB: "b", Owner: owner,
	})
	require.ErrorIs(t, err, ledger.ErrPersistence)
	require.Equal(t, before, f.index(t))
}

func TestRegistry_CreateIndexWriteFails(t *testing.T) {
	f := newFixture(t, nil)
	f.ledger.FailWrites(ledger.IndexKey, errors.New("reverted"))

	_, err := f.svc.Create(context.Background(), abtest.CreateRequest{
		Name: "orphan", VersionA: "a", VersionB: "b", Owner: owner,
	})
	require.ErrorIs(t, err, ledger.ErrPersistence)

	f.ledger.FailWrites(ledger.IndexKey, nil)
	list, err := f.svc.List(context.Background(), abtest.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestRegistry_ListNewestFirst(t *testing.T) {
	f := newFixture(t, nil)
	a := f.create(t, "a")
	b := f.create(t, "b")
	c := f.create(t, "c")

	list, err := f.svc.List(context.Background(), abtest.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, []string{c.ID, b.ID, a.ID}, []string{list[0].ID, list[1].ID, list[2].ID})
	require.Equal(t, []string{a.ID, b.ID, c.ID}, f.index(t))
}

func TestRegistry_ListEqualTimestampsPreferLaterIndexEntry(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemory()
	body := `{"name":"%s","timestamp":100,"owner":"0x1"}`
	_, err := l.SetData(ctx, ledger.RecordKey("x"), fmt.Appendf(nil, body, "x"))
	require.NoError(t, err)
	_, err = l.SetData(ctx, ledger.RecordKey("y"), fmt.Appendf(nil, body, "y"))
	require.NoError(t, err)
	_, err = l.SetData(ctx, ledger.IndexKey, []byte(`["x","y"]`))
	require.NoError(t, err)

	svc := abtest.NewService(l, keyindex.New(l, nil), codec.NewPlaceholder(), nil, nil)
	list, err := svc.List(ctx, abtest.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "y", list[0].ID)
	require.Equal(t, "x", list[1].ID)
}

func TestRegistry_ListSkipsMissingAndCorruptBodies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	good := f.create(t, "good")
	bad := f.create(t, "bad")

	_, err := f.ledger.SetData(ctx, ledger.RecordKey(bad.ID), []byte("{not json"))
	require.NoError(t, err)
	_, err = f.ledger.SetData(ctx, ledger.IndexKey, fmt.Appendf(nil, `[%q,%q,"ghost",%q]`, good.ID, bad.ID, good.ID))
	require.NoError(t, err)

	list, err := f.svc.List(ctx, abtest.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, good.ID, list[0].ID)
}

func TestRegistry_ListMalformedIndex(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.ledger.SetData(ctx, ledger.IndexKey, []byte(`{"oops":true}`))
	require.NoError(t, err)

	list, err := f.svc.List(ctx, abtest.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestRegistry_ListFilters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := f.create(t, "a")
	f.create(t, "b")
	f.create(t, "c")

	_, err := f.svc.Complete(ctx, a.ID, owner)
	require.NoError(t, err)

	done, err := f.svc.List(ctx, abtest.ListOptions{Status: abtest.StatusCompleted})
	require.NoError(t, err)
	require.Len(t, done, 1)
	require.Equal(t, a.ID, done[0].ID)

	limited, err := f.svc.List(ctx, abtest.ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)

	mine, err := f.svc.List(ctx, abtest.ListOptions{Owner: "0xabcdef0000000000000000000000000000000001"})
	require.NoError(t, err)
	require.Len(t, mine, 3)

	theirs, err := f.svc.List(ctx, abtest.ListOptions{Owner: "0x2"})
	require.NoError(t, err)
	require.Empty(t, theirs)
}

func TestRegistry_ListUnavailable(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, "a")
	f.ledger.SetAvailable(false)

	_, err := f.svc.List(context.Background(), abtest.ListOptions{})
	require.ErrorIs(t, err, ledger.ErrUnavailable)
}

func TestRegistry_ListConcurrent(t *testing.T) {
	f := newFixture(t, nil)
	for i := range 5 {
		f.create(t, fmt.Sprintf("t%d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			list, err := f.svc.List(context.Background(), abtest.ListOptions{})
			if err == nil && len(list) != 5 {
				err = fmt.Errorf("got %d records", len(list))
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestRegistry_Complete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	rec := f.create(t, "a")

	done, err := f.svc.Complete(ctx, rec.ID, "0xABCDEF0000000000000000000000000000000001")
	require.NoError(t, err)
	require.Equal(t, abtest.StatusCompleted, done.Status)

	got, err := f.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, abtest.StatusCompleted, got.Status)
	require.Equal(t, rec.CiphertextA, got.CiphertextA)
	require.Equal(t, rec.CreatedAt, got.CreatedAt)

	_, err = f.svc.Complete(ctx, rec.ID, owner)
	require.ErrorIs(t, err, abtest.ErrAlreadyCompleted)
}

func TestRegistry_CompleteNotOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	rec := f.create(t, "a")

	_, err := f.svc.Complete(ctx, rec.ID, "0x0000000000000000000000000000000000000002")
	require.ErrorIs(t, err, abtest.ErrNotOwner)

	got, err := f.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, abtest.StatusActive, got.Status)
}

func TestRegistry_CompleteNotFound(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Complete(context.Background(), "test-0-missing", owner)
	require.ErrorIs(t, err, abtest.ErrNotFound)

	_, err = f.svc.Complete(context.Background(), "", owner)
	require.ErrorIs(t, err, abtest.ErrInvalidInput)
}

func TestRegistry_CompletePreservesForeignFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.ledger.SetData(ctx, ledger.RecordKey("ext"), []byte(
		`{"name":"ext","timestamp":9,"owner":"0x1","participants":40,"region":"eu"}`))
	require.NoError(t, err)

	done, err := f.svc.Complete(ctx, "ext", "0x1")
	require.NoError(t, err)
	require.Equal(t, int64(40), done.ParticipantCount)

	raw, err := f.ledger.GetData(ctx, ledger.RecordKey("ext"))
	require.NoError(t, err)
	require.Equal(t, "eu", gjson.GetBytes(raw, "region").String())
	require.Equal(t, "completed", gjson.GetBytes(raw, "status").String())
}

func TestRegistry_CompleteWriteFails(t *testing.T) {
	ctx := context.Background()
	l := &mocks.Ledger{}
	idx := &mocks.KeyIndex{}
	l.On("IsAvailable", ctx).Return(true, nil)
	l.On("GetData", ctx, ledger.RecordKey("t1")).Return([]byte(`{"timestamp":1,"owner":"0x1"}`), nil)
	l.On("SetData", ctx, ledger.RecordKey("t1"), mock.Anything).Return(nil, errors.New("out of gas"))

	svc := abtest.NewService(l, idx, codec.NewPlaceholder(), nil, nil)
	_, err := svc.Complete(ctx, "t1", "0x1")
	require.ErrorIs(t, err, ledger.ErrPersistence)
	l.AssertExpectations(t)
}

func TestRegistry_ProbeErrorIsUnavailable(t *testing.T) {
	ctx := context.Background()
	l := &mocks.Ledger{}
	l.On("IsAvailable", ctx).Return(false, errors.New("dial tcp: refused"))

	svc := abtest.NewService(l, &mocks.KeyIndex{}, codec.NewPlaceholder(), nil, nil)
	_, err := svc.Get(ctx, "t1")
	require.ErrorIs(t, err, ledger.ErrUnavailable)
	_, err = svc.Stats(ctx)
	require.ErrorIs(t, err, ledger.ErrUnavailable)
}

func TestRegistry_Stats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := f.create(t, "a")
	b := f.create(t, "b")

	// Participant counts are bumped by other systems writing the body.
	for id, n := range map[string]int{a.ID: 25, b.ID: 17} {
		raw, err := f.ledger.GetData(ctx, ledger.RecordKey(id))
		require.NoError(t, err)
		raw, err = sjson.SetBytes(raw, "participants", n)
		require.NoError(t, err)
		_, err = f.ledger.SetData(ctx, ledger.RecordKey(id), raw)
		require.NoError(t, err)
	}

	_, err := f.svc.Complete(ctx, a.ID, owner)
	require.NoError(t, err)

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, abtest.Stats{Total: 2, Active: 1, Completed: 1, Participants: 42}, st)
}

func TestRegistry_AverageSide(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := f.create(t, "a")
	b, err := f.svc.Create(ctx, abtest.CreateRequest{
		Name: "b", VersionA: "x", VersionB: "y", ParamA: 4.5, ParamB: 10, Owner: owner,
	})
	require.NoError(t, err)

	enc := codec.NewPlaceholder()

	avgA, err := f.svc.AverageSide(ctx, []string{a.ID, b.ID}, abtest.SideA)
	require.NoError(t, err)
	v, err := enc.Decode(avgA)
	require.NoError(t, err)
	require.InDelta(t, 3.0, v, 1e-9)

	avgB, err := f.svc.AverageSide(ctx, []string{a.ID, b.ID}, abtest.SideB)
	require.NoError(t, err)
	v, err = enc.Decode(avgB)
	require.NoError(t, err)
	require.InDelta(t, 6.0, v, 1e-9)

	_, err = f.svc.AverageSide(ctx, []string{a.ID}, abtest.Side("C"))
	require.ErrorIs(t, err, abtest.ErrInvalidInput)

	_, err = f.svc.AverageSide(ctx, nil, abtest.SideA)
	require.ErrorIs(t, err, abtest.ErrInvalidInput)

	_, err = f.svc.AverageSide(ctx, []string{a.ID, "missing"}, abtest.SideA)
	require.ErrorIs(t, err, abtest.ErrNotFound)
}

func TestNewID(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	id := abtest.NewID(at)
	require.Regexp(t, `^test-1700000000123-[0-9a-f]{8}$`, id)
	require.NotEqual(t, id, abtest.NewID(at))
}

func TestRegistry_CreateRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemory()
	svc := abtest.NewService(l, keyindex.New(l, nil), codec.NewPlaceholder(), nil, nil,
		abtest.WithIDGenerator(func(time.Time) string { return "test-1-fixed" }),
	)
	req := abtest.CreateRequest{Name: "first", VersionA: "a", VersionB: "b", ParamA: 1, ParamB: 2, Owner: owner}

	_, err := svc.Create(ctx, req)
	require.NoError(t, err)
	before, err := l.GetData(ctx, ledger.RecordKey("test-1-fixed"))
	require.NoError(t, err)

	req.Name = "second"
	_, err = svc.Create(ctx, req)
	require.ErrorIs(t, err, keyindex.ErrDuplicateID)

	after, err := l.GetData(ctx, ledger.RecordKey("test-1-fixed"))
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestRegistry_ListSkipsUnreadableBody(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	first := f.create(t, "first")
	second := f.create(t, "second")
	third := f.create(t, "third")

	f.ledger.FailReads(ledger.RecordKey(second.ID), errors.New("rpc timeout"))

	recs, err := f.svc.List(ctx, abtest.ListOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, third.ID, recs[0].ID)
	require.Equal(t, first.ID, recs[1].ID)
}

func TestRegistry_ListFailsOnIndexReadError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.create(t, "first")

	f.ledger.FailReads(ledger.IndexKey, context.DeadlineExceeded)

	_, err := f.svc.List(ctx, abtest.ListOptions{})
	require.ErrorIs(t, err, ledger.ErrPersistence)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegistry_ListFailsWhenLedgerDropsMidScan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	rec := f.create(t, "first")

	f.ledger.FailReads(ledger.RecordKey(rec.ID), ledger.ErrUnavailable)

	_, err := f.svc.List(ctx, abtest.ListOptions{})
	require.ErrorIs(t, err, ledger.ErrUnavailable)
}

// gatedLedger blocks index reads until release is closed.
type gatedLedger struct {
	*ledger.Memory
	entered chan struct{}
	release chan struct{}
}

func (g *gatedLedger) GetData(ctx context.Context, key string) ([]byte, error) {
	if key == ledger.IndexKey {
		select {
		case g.entered <- struct{}{}:
		default:
		}
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.Memory.GetData(ctx, key)
}

func TestRegistry_ListCancelDoesNotAffectOtherCallers(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.create(t, "shared")

	gated := &gatedLedger{
		Memory:  f.ledger,
		entered: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	svc := abtest.NewService(gated, keyindex.New(gated, nil), codec.NewPlaceholder(), nil, nil)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.List(ctxA, abtest.ListOptions{})
		errA <- err
	}()
	<-gated.entered

	type result struct {
		recs []abtest.TestRecord
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		recs, err := svc.List(context.Background(), abtest.ListOptions{})
		resB <- result{recs, err}
	}()
	// Give B time to join the scan already in flight.
	time.Sleep(50 * time.Millisecond)

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	close(gated.release)
	got := <-resB
	require.NoError(t, got.err)
	require.Len(t, got.recs, 1)
	require.Equal(t, rec.ID, got.recs[0].ID)
}
