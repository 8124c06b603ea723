package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `sealab is an A/B test registry whose parameters never leave the server in plaintext.

Core concepts:
- Test: a named pair of versions (A and B), each carrying one numeric parameter stored as ciphertext.
- Ledger: the key/value store holding test bodies and the test index. It may be unavailable; every call then fails fast.
- Owner: the identity that created a test. Only the owner may complete it.
- Disclosure session: a per-identity session that starts locked. One signature over its challenge unlocks every decrypt in it.

Default workflow:
1) Browse: list_tests / get_test / test_stats. Parameters come back encrypted.
2) Create: create_test with both parameters. complete_test when the test ends.
3) Aggregate: average_side returns an encrypted mean of one side across tests.
4) Disclose: open_disclosure, then authenticate, then decrypt or disclose_test passing the returned signature.
5) Close the loop: close_disclosure to drop the signature.

Docs:
- sealab://docs/concepts
- sealab://docs/workflows/disclosure
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "sealab://docs/concepts",
		Name:        "docs_concepts",
		Title:       "sealab concepts",
		Description: "Glossary and guarantees of the test registry.",
		Content: `# sealab: Concepts

## Test record

- ` + "`id`" + `: ` + "`test-<unix millis>-<random>`" + `. Unique; a duplicate id is rejected.
- ` + "`name`" + `, ` + "`version_a`" + `, ` + "`version_b`" + `: required, non-blank.
- ` + "`ciphertext_a`" + `, ` + "`ciphertext_b`" + `: encrypted parameters. Plaintext is never stored.
- ` + "`created_at`" + `: unix seconds.
- ` + "`owner`" + `: creator identity, compared case-insensitively.
- ` + "`status`" + `: ` + "`active`" + ` until the owner completes it, then ` + "`completed`" + ` forever.

## Ordering

Lists are newest first. Tests created in the same second keep index order, later entries first.

## Ledger

- The body of each test lives at ` + "`test_config_<id>`" + `.
- The ordered id list lives at ` + "`test_config_keys`" + ` as a JSON array.
- The body is written before the index. A failed index write leaves an orphan body that never lists.
- Concurrent creators race on the index; the last writer wins.

## Errors

Tool errors are JSON objects with ` + "`code`" + `, ` + "`message`" + ` and sometimes ` + "`recovery_hint`" + `.
Common codes: VALIDATION_ERROR, LEDGER_UNAVAILABLE, PERSISTENCE_ERROR, NOT_FOUND, NOT_OWNER, ALREADY_COMPLETED, CANCELED, UNAUTHENTICATED, USER_REJECTED, DECRYPTION_FAILED.
`,
	},
	{
		URI:         "sealab://docs/workflows/disclosure",
		Name:        "docs_workflow_disclosure",
		Title:       "Workflow: disclosing parameters",
		Description: "How to unlock a disclosure session and decrypt test parameters.",
		Content: `# Workflow: Disclosure

1. ` + "`open_disclosure`" + ` creates a locked session bound to your identity and returns the challenge text.
2. ` + "`authenticate`" + ` asks the key holder to sign the challenge. A refusal leaves the session locked (USER_REJECTED).
3. Pass the returned ` + "`signature`" + ` to ` + "`decrypt`" + ` or ` + "`disclose_test`" + `. Only that exact signature is accepted.
4. ` + "`close_disclosure`" + ` discards the session.

Sessions live in memory and are bounded; an evicted session reports SESSION_NOT_FOUND.

The challenge format is fixed:

` + "```" + `
publickey:<key>
contractAddresses:<address>
contractsChainId:<chain id>
startTimestamp:<unix seconds>
durationDays:<days>
` + "```" + `
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		doc := doc

		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
