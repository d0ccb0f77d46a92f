// Package sheetstore is the client for the remote key ledger: a Google Apps
// Script web app fronting a spreadsheet. The ledger is the single source of
// truth for key existence and usage state; everything local is advisory.
package sheetstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	apperrors "cskeys/internal/errors"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20 // 1 MB
)

// Client talks to the Apps Script endpoint. All operations are single
// GET requests with no client-side retry; a failed call surfaces as a
// TransportError (network/HTTP/parse) or RemoteLogicError (remote said no).
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	timeout    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRateLimit throttles outbound calls. Apps Script deployments have
// per-user execution quotas; staying under them is the client's job.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a remote store client for the given endpoint URL.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		timeout:  defaultTimeout,
		logger:   slog.Default().With(slog.String("component", "sheetstore")),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c
}

// Create registers a new key in the remote ledger. A success:false answer
// is returned as a RemoteLogicError carrying the remote message verbatim.
func (c *Client) Create(ctx context.Context, code string, keyType string, usageBonus int, validUntil time.Time) (*CreateResult, error) {
	params := url.Values{
		"action":     {actionCreate},
		"code":       {code},
		"type":       {keyType},
		"usageBonus": {strconv.Itoa(usageBonus)},
		"validUntil": {validUntil.UTC().Format(time.RFC3339)},
		"createdBy":  {createdBy},
	}

	var result CreateResult
	if err := c.do(ctx, actionCreate, params, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return &result, apperrors.NewRemoteLogicError(actionCreate, result.Error)
	}
	return &result, nil
}

// Validate is a pure read of a key's remote state. It never mutates.
func (c *Client) Validate(ctx context.Context, code string) (*ValidateResult, error) {
	params := url.Values{
		"action": {actionValidate},
		"key":    {code},
	}

	var result ValidateResult
	if err := c.do(ctx, actionValidate, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Consume marks a key used and records the consumer's fingerprint. The
// remote store is the arbiter of exclusivity: if two consumers race, the
// loser gets a success:false result, not an error.
func (c *Client) Consume(ctx context.Context, code, fingerprint string) (*ConsumeResult, error) {
	params := url.Values{
		"action":              {actionConsume},
		"key":                 {code},
		"hardwareFingerprint": {fingerprint},
	}

	var result ConsumeResult
	if err := c.do(ctx, actionConsume, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// List returns every key in the remote ledger.
func (c *Client) List(ctx context.Context) (*ListResult, error) {
	params := url.Values{"action": {actionGetAllKeys}}

	var result ListResult
	if err := c.do(ctx, actionGetAllKeys, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// do performs one GET call and decodes the JSON response into dest.
func (c *Client) do(ctx context.Context, action string, params url.Values, dest interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return apperrors.NewTransportError(action, 0, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	reqURL := c.endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return apperrors.NewTransportError(action, 0, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "remote store request failed",
			slog.String("action", action),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		return apperrors.NewTransportError(action, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apperrors.NewTransportError(action, resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.ErrorContext(ctx, "remote store returned error status",
			slog.String("action", action),
			slog.Int("status", resp.StatusCode),
			slog.Duration("duration", time.Since(start)),
		)
		return apperrors.NewTransportError(action, resp.StatusCode,
			fmt.Errorf("unexpected status %s", resp.Status))
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return apperrors.NewTransportError(action, resp.StatusCode,
			fmt.Errorf("decode response: %w", err))
	}

	c.logger.DebugContext(ctx, "remote store call completed",
		slog.String("action", action),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
