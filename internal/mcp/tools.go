package mcp

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/sealab/internal/domain/abtest"
	"github.com/rpggio/sealab/internal/domain/activity"
	"github.com/rpggio/sealab/internal/domain/disclosure"
)

type tools struct {
	services Services
	defaults DisclosureDefaults
	logger   *slog.Logger
}

func registerTools(server *sdkmcp.Server, t *tools) {
	// Registry
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "create_test",
		Description: "Register a new A/B test. Both parameters are encrypted before they reach the ledger.",
	}, t.createTest)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_tests",
		Description: "List tests, newest first",
	}, t.listTests)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_test",
		Description: "Get one test by id. Parameters stay encrypted.",
	}, t.getTest)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "complete_test",
		Description: "Mark a test completed. Only the owner may do this.",
	}, t.completeTest)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "test_stats",
		Description: "Count total, active and completed tests and sum their participants",
	}, t.testStats)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "average_side",
		Description: "Aggregate one side of several tests into an encrypted average",
	}, t.averageSide)

	// Disclosure
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "open_disclosure",
		Description: "Open a locked disclosure session for the caller and return its challenge",
	}, t.openDisclosure)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "build_challenge",
		Description: "Render the challenge message for an explicit context",
	}, t.buildChallenge)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "authenticate",
		Description: "Ask the key holder to sign the session challenge. Unlocks the session on success.",
	}, t.authenticate)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "decrypt",
		Description: "Decrypt a single ciphertext in an unlocked session",
	}, t.decrypt)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "disclose_test",
		Description: "Decrypt both parameters of a test in an unlocked session",
	}, t.discloseTest)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "close_disclosure",
		Description: "Discard a disclosure session and its signature",
	}, t.closeDisclosure)

	// Activity
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "recent_activity",
		Description: "Show recent registry and disclosure activity",
	}, t.recentActivity)
}

func (t *tools) createTest(ctx context.Context, _ *sdkmcp.CallToolRequest, in CreateTestParams) (*sdkmcp.CallToolResult, any, error) {
	rec, err := t.services.Registry.Create(ctx, abtest.CreateRequest{
		Name:     in.Name,
		VersionA: in.VersionA,
		VersionB: in.VersionB,
		ParamA:   in.ParamA,
		ParamB:   in.ParamB,
		Owner:    getIdentity(ctx),
	})
	if err != nil {
		return t.errorResult("create_test", err)
	}
	return jsonResult(rec)
}

func (t *tools) listTests(ctx context.Context, _ *sdkmcp.CallToolRequest, in ListTestsParams) (*sdkmcp.CallToolResult, any, error) {
	opts := abtest.ListOptions{
		Status: abtest.Status(in.Status),
		Owner:  in.Owner,
		Limit:  in.Limit,
	}
	if opts.Status != "" && !opts.Status.Valid() {
		return t.errorResult("list_tests", fmt.Errorf("%w: unknown status %q", abtest.ErrInvalidInput, in.Status))
	}
	if in.Mine {
		opts.Owner = getIdentity(ctx)
	}
	recs, err := t.services.Registry.List(ctx, opts)
	if err != nil {
		return t.errorResult("list_tests", err)
	}
	if recs == nil {
		recs = []abtest.TestRecord{}
	}
	return jsonResult(ListTestsResponse{Tests: recs, Count: len(recs)})
}

func (t *tools) getTest(ctx context.Context, _ *sdkmcp.CallToolRequest, in TestIDParams) (*sdkmcp.CallToolResult, any, error) {
	rec, err := t.services.Registry.Get(ctx, in.ID)
	if err != nil {
		return t.errorResult("get_test", err)
	}
	return jsonResult(rec)
}

func (t *tools) completeTest(ctx context.Context, _ *sdkmcp.CallToolRequest, in TestIDParams) (*sdkmcp.CallToolResult, any, error) {
	rec, err := t.services.Registry.Complete(ctx, in.ID, getIdentity(ctx))
	if err != nil {
		return t.errorResult("complete_test", err)
	}
	return jsonResult(rec)
}

func (t *tools) testStats(ctx context.Context, _ *sdkmcp.CallToolRequest, _ StatsParams) (*sdkmcp.CallToolResult, any, error) {
	stats, err := t.services.Registry.Stats(ctx)
	if err != nil {
		return t.errorResult("test_stats", err)
	}
	return jsonResult(stats)
}

func (t *tools) averageSide(ctx context.Context, _ *sdkmcp.CallToolRequest, in AverageSideParams) (*sdkmcp.CallToolResult, any, error) {
	side := abtest.Side(strings.ToUpper(strings.TrimSpace(in.Side)))
	ct, err := t.services.Registry.AverageSide(ctx, in.IDs, side)
	if err != nil {
		return t.errorResult("average_side", err)
	}
	return jsonResult(AverageSideResponse{Side: side, Count: len(in.IDs), Ciphertext: ct})
}

func (t *tools) openDisclosure(ctx context.Context, _ *sdkmcp.CallToolRequest, in OpenDisclosureParams) (*sdkmcp.CallToolResult, any, error) {
	contract := in.ContractAddress
	if contract == "" {
		contract = t.defaults.ContractAddress
	}
	chainID := in.ChainID
	if chainID == 0 {
		chainID = t.defaults.ChainID
	}
	days := in.DurationDays
	if days == 0 {
		days = t.defaults.DurationDays
	}

	c, err := disclosure.NewContext(contract, chainID, days, time.Now())
	if err != nil {
		return t.errorResult("open_disclosure", err)
	}
	sess, err := t.services.Disclosure.Open(ctx, getIdentity(ctx), c)
	if err != nil {
		return t.errorResult("open_disclosure", err)
	}
	return jsonResult(SessionResponse{Session: sess, WindowEnd: sess.Context.WindowEnd().Unix()})
}

func (t *tools) buildChallenge(_ context.Context, _ *sdkmcp.CallToolRequest, in BuildChallengeParams) (*sdkmcp.CallToolResult, any, error) {
	c := disclosure.Context{
		PublicKey:          in.PublicKey,
		ContractAddress:    in.ContractAddress,
		ChainID:            in.ChainID,
		WindowStart:        in.StartTimestamp,
		WindowDurationDays: in.DurationDays,
	}
	if err := c.Validate(); err != nil {
		return t.errorResult("build_challenge", err)
	}
	return jsonResult(ChallengeResponse{Message: disclosure.BuildChallenge(c)})
}

func (t *tools) authenticate(ctx context.Context, _ *sdkmcp.CallToolRequest, in SessionParams) (*sdkmcp.CallToolResult, any, error) {
	if _, err := t.ownedSession(ctx, in.SessionID); err != nil {
		return t.errorResult("authenticate", err)
	}
	sig, err := t.services.Disclosure.Authenticate(ctx, in.SessionID)
	if err != nil {
		return t.errorResult("authenticate", err)
	}
	return jsonResult(AuthenticateResponse{
		SessionID: in.SessionID,
		State:     disclosure.StateUnlocked,
		Signature: "0x" + hex.EncodeToString(sig),
	})
}

func (t *tools) decrypt(ctx context.Context, _ *sdkmcp.CallToolRequest, in DecryptParams) (*sdkmcp.CallToolResult, any, error) {
	if _, err := t.ownedSession(ctx, in.SessionID); err != nil {
		return t.errorResult("decrypt", err)
	}
	sig, err := decodeSignature(in.Signature)
	if err != nil {
		return t.errorResult("decrypt", err)
	}
	v, err := t.services.Disclosure.Decrypt(ctx, in.SessionID, in.Ciphertext, sig)
	if err != nil {
		return t.errorResult("decrypt", err)
	}
	return jsonResult(DecryptResponse{Value: v})
}

func (t *tools) discloseTest(ctx context.Context, _ *sdkmcp.CallToolRequest, in DiscloseTestParams) (*sdkmcp.CallToolResult, any, error) {
	if _, err := t.ownedSession(ctx, in.SessionID); err != nil {
		return t.errorResult("disclose_test", err)
	}
	sig, err := decodeSignature(in.Signature)
	if err != nil {
		return t.errorResult("disclose_test", err)
	}
	rec, err := t.services.Registry.Get(ctx, in.ID)
	if err != nil {
		return t.errorResult("disclose_test", err)
	}
	out, err := t.services.Disclosure.DiscloseRecord(ctx, in.SessionID, rec, sig)
	if err != nil {
		return t.errorResult("disclose_test", err)
	}
	return jsonResult(out)
}

func (t *tools) closeDisclosure(ctx context.Context, _ *sdkmcp.CallToolRequest, in SessionParams) (*sdkmcp.CallToolResult, any, error) {
	if _, err := t.ownedSession(ctx, in.SessionID); err != nil {
		return t.errorResult("close_disclosure", err)
	}
	return jsonResult(CloseDisclosureResponse{Closed: t.services.Disclosure.Close(in.SessionID)})
}

func (t *tools) recentActivity(ctx context.Context, _ *sdkmcp.CallToolRequest, in RecentActivityParams) (*sdkmcp.CallToolResult, any, error) {
	opts := activity.ListActivityOptions{Limit: in.Limit}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if in.RecordID != "" {
		opts.RecordID = &in.RecordID
	}
	if in.Type != "" {
		typ := activity.ActivityType(in.Type)
		opts.ActivityType = &typ
	}
	if in.Mine {
		opts.Actor = getIdentity(ctx)
	}
	entries, err := t.services.Activity.GetRecentActivity(ctx, opts)
	if err != nil {
		return t.errorResult("recent_activity", err)
	}
	if entries == nil {
		entries = []activity.ActivityEntry{}
	}
	return jsonResult(RecentActivityResponse{Entries: entries})
}

// ownedSession loads a disclosure session and checks it belongs to the caller.
func (t *tools) ownedSession(ctx context.Context, sessionID string) (disclosure.Session, error) {
	sess, err := t.services.Disclosure.Get(sessionID)
	if err != nil {
		return disclosure.Session{}, err
	}
	if !strings.EqualFold(sess.Identity, getIdentity(ctx)) {
		return disclosure.Session{}, fmt.Errorf("%w: session belongs to another identity", disclosure.ErrUnauthenticated)
	}
	return sess, nil
}

func decodeSignature(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, fmt.Errorf("%w: signature is required", disclosure.ErrUnauthenticated)
	}
	sig, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: signature must be hex", disclosure.ErrInvalidInput)
	}
	return sig, nil
}

func jsonResult(v any) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal result: %w", err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}

// errorResult reports a domain failure as a tool error rather than a protocol error.
func (t *tools) errorResult(tool string, err error) (*sdkmcp.CallToolResult, any, error) {
	apiErr := MapError(err)
	if apiErr.Code == "INTERNAL_ERROR" {
		t.logger.Error("tool failed", "tool", tool, "error", err)
	} else {
		t.logger.Debug("tool rejected", "tool", tool, "code", apiErr.Code, "error", err)
	}
	data, mErr := json.Marshal(apiErr)
	if mErr != nil {
		return nil, nil, err
	}
	return &sdkmcp.CallToolResult{
		IsError: true,
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}
