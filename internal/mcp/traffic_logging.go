package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const maxLoggedPayload = 4096

// Signatures unlock decryption for a whole session, so they never reach the log.
var redactedPaths = []string{
	"arguments.signature",
	"structuredContent.signature",
}

func trafficLoggingMiddleware(logger *slog.Logger, direction string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if logger == nil || !logger.Enabled(ctx, slog.LevelDebug) {
				return next(ctx, method, req)
			}

			params := formatPayload(safeParams(req))
			attrs := []any{
				"direction", direction,
				"method", method,
				"session_id", safeSessionID(req),
				"identity", getIdentity(ctx),
			}
			if tool := gjson.Get(params, "name").String(); method == "tools/call" && tool != "" {
				attrs = append(attrs, "tool", tool)
			}
			logger.Debug("mcp request", append(attrs, "params", params)...)

			start := time.Now()
			result, err := next(ctx, method, req)
			if strings.HasPrefix(method, "notifications/") {
				return result, err
			}

			attrs = append(attrs, "elapsed", time.Since(start))
			if err != nil {
				attrs = append(attrs, "error", err)
			} else {
				attrs = append(attrs, "result", formatResult(result))
			}
			logger.Debug("mcp response", attrs...)
			return result, err
		}
	}
}

func safeSessionID(req sdkmcp.Request) string {
	if req == nil {
		return ""
	}
	defer func() { recover() }()
	session := req.GetSession()
	if session == nil {
		return ""
	}
	return session.ID()
}

func safeParams(req sdkmcp.Request) any {
	if req == nil {
		return nil
	}
	defer func() { recover() }()
	return req.GetParams()
}

// formatResult also redacts signatures embedded in text content, which is
// where tool handlers put their JSON output.
func formatResult(result sdkmcp.Result) string {
	if r, ok := result.(*sdkmcp.CallToolResult); ok && r != nil {
		for _, c := range r.Content {
			if text, ok := c.(*sdkmcp.TextContent); ok && gjson.Get(text.Text, "signature").Exists() {
				return "<tool result with signature redacted>"
			}
		}
	}
	return formatPayload(result)
}

func formatPayload(payload any) string {
	if payload == nil {
		return "<nil>"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%T", payload)
	}
	out := string(data)
	for _, path := range redactedPaths {
		if gjson.Get(out, path).Exists() {
			if redacted, err := sjson.Set(out, path, "<redacted>"); err == nil {
				out = redacted
			}
		}
	}
	if len(out) > maxLoggedPayload {
		out = out[:maxLoggedPayload] + "...(truncated)"
	}
	return out
}
