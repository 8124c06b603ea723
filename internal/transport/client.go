package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/rpggio/sealab/internal/ledger"
)

// Client is a ledger.Ledger reached over JSON-RPC.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	nextID   atomic.Int64
}

// NewClient creates a client for the server at baseURL. httpClient may be nil.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint: strings.TrimRight(baseURL, "/") + "/rpc",
		token:    token,
		http:     httpClient,
	}
}

// IsAvailable reports false with the transport error when the server cannot
// be reached.
func (c *Client) IsAvailable(ctx context.Context) (bool, error) {
	var res AvailabilityResult
	if err := c.call(ctx, MethodIsAvailable, nil, &res); err != nil {
		return false, err
	}
	return res.Available, nil
}

func (c *Client) GetData(ctx context.Context, key string) ([]byte, error) {
	var res DataResult
	if err := c.call(ctx, MethodGetData, KeyParams{Key: key}, &res); err != nil {
		return nil, err
	}
	if res.Value == nil {
		res.Value = []byte{}
	}
	return res.Value, nil
}

func (c *Client) SetData(ctx context.Context, key string, value []byte) (ledger.Receipt, error) {
	var res SetResult
	if err := c.call(ctx, MethodSetData, SetParams{Key: key, Value: value}, &res); err != nil {
		return ledger.Receipt{}, err
	}
	return res, nil
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	req := Request{JSONRPC: "2.0", Method: method, ID: c.nextID.Add(1)}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encoding %s params: %w", method, err)
		}
		req.Params = raw
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ledger.ErrUnavailable, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w", method, ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: http status %d", ledger.ErrUnavailable, method, resp.StatusCode)
	}

	var rpcResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		if rpcResp.Error.Code == ErrLedgerUnavailable {
			return fmt.Errorf("%w: %w", ledger.ErrUnavailable, rpcResp.Error)
		}
		return fmt.Errorf("%s: %w", method, rpcResp.Error)
	}
	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}
