package replica

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shunichi-ikebuchi/smartspend/pkg/ledger"
)

// ClientConfig represents the configuration for the replica client.
type ClientConfig struct {
	Timeout time.Duration // Default: 30 seconds

	// CheckStatus makes Push treat a non-2xx response as a failure. The
	// spreadsheet endpoint is fire-and-forget, so by default a push only
	// has to reach the server without a transport error.
	CheckStatus bool

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the remote replica endpoint.
type Client struct {
	httpClient  *http.Client
	checkStatus bool
	logger      *slog.Logger
}

// NewClient creates a new replica client.
func NewClient(config ClientConfig) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient:  httpClient,
		checkStatus: config.CheckStatus,
		logger:      logger,
	}
}

// Push sends the full snapshot to endpoint. Repeating a push is safe: the
// remote clears and rewrites both collections.
//
// A nil error means the request was dispatched and answered without a
// transport error. It does not prove the remote durably stored the data.
func (c *Client) Push(ctx context.Context, endpoint string, snap ledger.Snapshot) error {
	body, err := json.Marshal(NewPushRequest(snap))
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to make request: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if c.checkStatus && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return c.parseError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Debug("snapshot pushed",
		"status", resp.StatusCode,
		"transactions", len(snap.Transactions),
		"accounts", len(snap.Accounts),
	)
	return nil
}

// Pull fetches the remote snapshot. It fails with ErrMalformedRemoteData when
// either collection is missing, null or undecodable.
func (c *Client) Pull(ctx context.Context, endpoint string) (ledger.Snapshot, error) {
	pullURL, err := withAction(endpoint, ActionPull)
	if err != nil {
		return ledger.Snapshot{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pullURL, nil)
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("%w: failed to make request: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ledger.Snapshot{}, c.parseError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("%w: failed to read response: %v", ErrNetwork, err)
	}

	snap, err := DecodeSnapshot(body)
	if err != nil {
		return ledger.Snapshot{}, err
	}

	c.logger.Debug("snapshot pulled",
		"transactions", len(snap.Transactions),
		"accounts", len(snap.Accounts),
	)
	return snap, nil
}

// DecodeSnapshot parses a pull payload.
func DecodeSnapshot(body []byte) (ledger.Snapshot, error) {
	var payload PullResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return ledger.Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedRemoteData, err)
	}
	if isAbsent(payload.Transactions) {
		return ledger.Snapshot{}, fmt.Errorf("%w: missing transactions", ErrMalformedRemoteData)
	}
	if isAbsent(payload.Accounts) {
		return ledger.Snapshot{}, fmt.Errorf("%w: missing accounts", ErrMalformedRemoteData)
	}

	var snap ledger.Snapshot
	if err := json.Unmarshal(payload.Transactions, &snap.Transactions); err != nil {
		return ledger.Snapshot{}, fmt.Errorf("%w: transactions: %v", ErrMalformedRemoteData, err)
	}
	if err := json.Unmarshal(payload.Accounts, &snap.Accounts); err != nil {
		return ledger.Snapshot{}, fmt.Errorf("%w: accounts: %v", ErrMalformedRemoteData, err)
	}

	for i, tx := range snap.Transactions {
		if tx.ID == "" {
			return ledger.Snapshot{}, fmt.Errorf("%w: transaction #%d has no id", ErrMalformedRemoteData, i)
		}
		if !tx.Type.Valid() {
			return ledger.Snapshot{}, fmt.Errorf("%w: transaction %q has type %q", ErrMalformedRemoteData, tx.ID, tx.Type)
		}
	}
	for i, a := range snap.Accounts {
		if a.ID == "" {
			return ledger.Snapshot{}, fmt.Errorf("%w: account #%d has no id", ErrMalformedRemoteData, i)
		}
	}

	return snap.Clone(), nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func withAction(endpoint, action string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid replica url %q: %w", endpoint, err)
	}
	q := u.Query()
	q.Set("action", action)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parseError parses an error response from the replica.
func (c *Client) parseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: status %d: failed to read error response", ErrNetwork, resp.StatusCode)
	}

	var status StatusResponse
	if err := json.Unmarshal(body, &status); err == nil && status.Error != "" {
		return fmt.Errorf("%w: status %d: %s", ErrNetwork, resp.StatusCode, status.Error)
	}

	return fmt.Errorf("%w: status %d: %s", ErrNetwork, resp.StatusCode, string(bytes.TrimSpace(body)))
}
