package integration_test

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/sealab/internal/codec"
	"github.com/rpggio/sealab/internal/domain/abtest"
	"github.com/rpggio/sealab/internal/domain/activity"
	"github.com/rpggio/sealab/internal/domain/disclosure"
	"github.com/rpggio/sealab/internal/domain/keyindex"
	"github.com/rpggio/sealab/internal/ledger"
	"github.com/rpggio/sealab/internal/signer"
	"github.com/rpggio/sealab/internal/sqlite"
	"github.com/rpggio/sealab/internal/transport"
)

const owner = "0x00000000000000000000000000000000000000a1"

type testEnv struct {
	db           *sqlite.DB
	activityRepo *sqlite.ActivityRepository
	activitySvc  *activity.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s-%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"), uuid.NewString())
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { _ = db.Close() })

	activityRepo := sqlite.NewActivityRepository(db)
	return &testEnv{
		db:           db,
		activityRepo: activityRepo,
		activitySvc:  activity.NewService(activityRepo, nil),
	}
}

func (env *testEnv) registry(l ledger.Ledger) *abtest.Service {
	return abtest.NewService(l, keyindex.New(l, nil), codec.NewPlaceholder(), env.activityRepo, nil)
}

// ledgers returns one fresh instance of every ledger backend.
func ledgers(t *testing.T, env *testEnv) map[string]ledger.Ledger {
	t.Helper()

	remoteBacking := ledger.NewMemory()
	srv := httptest.NewServer(transport.NewServer(remoteBacking, nil, nil))
	t.Cleanup(srv.Close)

	return map[string]ledger.Ledger{
		"memory": ledger.NewMemory(),
		"file":   ledger.NewFile(filepath.Join(t.TempDir(), "ledger.json")),
		"sqlite": sqlite.NewLedger(env.db),
		"remote": transport.NewClient(srv.URL, "", nil),
	}
}

func TestIntegration_RegistryOnEveryLedger(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	for name, l := range ledgers(t, env) {
		t.Run(name, func(t *testing.T) {
			svc := env.registry(l)

			first, err := svc.Create(ctx, abtest.CreateRequest{
				Name: "Headline", VersionA: "short", VersionB: "long", ParamA: 0.2, ParamB: 0.3, Owner: owner,
			})
			require.NoError(t, err)
			second, err := svc.Create(ctx, abtest.CreateRequest{
				Name: "Footer", VersionA: "dark", VersionB: "light", ParamA: 1, ParamB: 2, Owner: owner,
			})
			require.NoError(t, err)

			_, err = svc.Complete(ctx, first.ID, strings.ToUpper(owner))
			require.NoError(t, err)

			// A new service over the same ledger sees the same state.
			reopened := env.registry(l)
			recs, err := reopened.List(ctx, abtest.ListOptions{})
			require.NoError(t, err)
			require.Len(t, recs, 2)
			ids := []string{recs[0].ID, recs[1].ID}
			require.ElementsMatch(t, []string{first.ID, second.ID}, ids)

			stats, err := reopened.Stats(ctx)
			require.NoError(t, err)
			require.Equal(t, abtest.Stats{Total: 2, Active: 1, Completed: 1}, stats)

			got, err := reopened.Get(ctx, first.ID)
			require.NoError(t, err)
			require.Equal(t, abtest.StatusCompleted, got.Status)
			require.Equal(t, first.CiphertextA, got.CiphertextA)
		})
	}
}

func TestIntegration_OrphanBodyIsNeverListed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	l := ledger.NewMemory()
	svc := env.registry(l)

	l.FailWrites(ledger.IndexKey, errors.New("out of gas"))
	_, err := svc.Create(ctx, abtest.CreateRequest{
		Name: "Lost", VersionA: "a", VersionB: "b", ParamA: 1, ParamB: 2, Owner: owner,
	})
	require.ErrorIs(t, err, ledger.ErrPersistence)

	var bodies int
	for _, k := range l.Keys() {
		if strings.HasPrefix(k, ledger.RecordKeyPrefix) && k != ledger.IndexKey {
			bodies++
		}
	}
	require.Equal(t, 1, bodies)

	recs, err := svc.List(ctx, abtest.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, recs)

	// Nothing was logged for the failed create.
	entries, err := env.activitySvc.GetRecentActivity(ctx, activity.ListActivityOptions{})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestIntegration_ConcurrentCreators(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := env.registry(ledger.NewMemory())

	const n = 8
	var wg sync.WaitGroup
	created := make(chan string, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := svc.Create(ctx, abtest.CreateRequest{
				Name: fmt.Sprintf("t%d", i), VersionA: "a", VersionB: "b", ParamA: 1, ParamB: 2, Owner: owner,
			})
			if err == nil {
				created <- rec.ID
			}
		}()
	}
	wg.Wait()
	close(created)

	var ids []string
	for id := range created {
		ids = append(ids, id)
	}
	require.Len(t, ids, n)

	// The index is last-writer-wins: racing appends may drop ids, but every
	// listed id is one that was created and appears once.
	recs, err := svc.List(ctx, abtest.ListOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	seen := map[string]bool{}
	for _, r := range recs {
		require.Contains(t, ids, r.ID)
		require.False(t, seen[r.ID])
		seen[r.ID] = true
	}
}

func TestIntegration_DisclosureEndToEnd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	l := sqlite.NewLedger(env.db)

	key, _, err := signer.Generate()
	require.NoError(t, err)
	identity := key.Identity()

	registry := env.registry(l)
	rec, err := registry.Create(ctx, abtest.CreateRequest{
		Name: "Price", VersionA: "9.99", VersionB: "12.49", ParamA: 9.99, ParamB: 12.49, Owner: identity,
	})
	require.NoError(t, err)

	svc, err := disclosure.NewService(signer.NewKeyring(key), codec.NewPlaceholder(), env.activityRepo, nil, 8)
	require.NoError(t, err)

	c, err := disclosure.NewContext("0x0000000000000000000000000000000000000001", 11155111, 30, time.Now())
	require.NoError(t, err)
	sess, err := svc.Open(ctx, identity, c)
	require.NoError(t, err)

	sig, err := svc.Authenticate(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, signer.Verify(key.PublicKey(), sess.Challenge, sig))

	got, err := svc.DiscloseRecord(ctx, sess.ID, rec, sig)
	require.NoError(t, err)
	require.Equal(t, 9.99, got.ValueA)
	require.Equal(t, 12.49, got.ValueB)

	sessionID := sess.ID
	entries, err := env.activitySvc.GetRecentActivity(ctx, activity.ListActivityOptions{SessionID: &sessionID})
	require.NoError(t, err)
	var types []activity.ActivityType
	for _, e := range entries {
		types = append(types, e.ActivityType)
	}
	require.ElementsMatch(t, []activity.ActivityType{
		activity.TypeDisclosureOpened,
		activity.TypeDisclosureUnlocked,
		activity.TypeDisclosureDecrypted,
	}, types)
}

func TestIntegration_FileLedgerSharedBetweenInstances(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "ledger.json")

	writer := env.registry(ledger.NewFile(path))
	reader := env.registry(ledger.NewFile(path))

	rec, err := writer.Create(ctx, abtest.CreateRequest{
		Name: "Shared", VersionA: "a", VersionB: "b", ParamA: 1, ParamB: 2, Owner: owner,
	})
	require.NoError(t, err)

	got, err := reader.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.Name, got.Name)
}

func TestIntegration_RemoteLedgerUnavailable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	backing := ledger.NewMemory()
	srv := httptest.NewServer(transport.NewServer(backing, nil, nil))
	defer srv.Close()
	svc := env.registry(transport.NewClient(srv.URL, "", nil))

	backing.SetAvailable(false)
	_, err := svc.List(ctx, abtest.ListOptions{})
	require.ErrorIs(t, err, ledger.ErrUnavailable)

	srv.Close()
	_, err = svc.Stats(ctx)
	require.ErrorIs(t, err, ledger.ErrUnavailable)
}
