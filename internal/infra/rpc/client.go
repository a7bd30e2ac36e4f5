// Package rpc is the HTTP client for the chain node's transaction status API.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/vietddude/finality/internal/core/domain"
	"github.com/vietddude/finality/internal/finality"
	"github.com/vietddude/finality/internal/metrics"
)

// StatusPath is the node endpoint queried for transaction status.
const StatusPath = "/v1/chain/get_transaction_status"

const maxResponseBody = 1 << 20

var _ finality.StatusQuery = (*Client)(nil)

// StatusError is a non-200 answer from the node.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("node returned http %d", e.Code)
	}
	return fmt.Sprintf("node returned http %d: %s", e.Code, e.Body)
}

// StatusCode returns the HTTP status code.
func (e *StatusError) StatusCode() int { return e.Code }

// Client queries one node endpoint.
type Client struct {
	name       string
	endpoint   string
	httpClient *retryablehttp.Client
	log        *slog.Logger

	Monitor *NodeMonitor
}

// Option configures a Client.
type Option func(*Client)

// WithTransportRetries sets how often a request is retried after a connection error.
func WithTransportRetries(n int) Option {
	return func(c *Client) { c.httpClient.RetryMax = n }
}

// WithRetryWait bounds the backoff between transport retries.
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(c *Client) {
		c.httpClient.RetryWaitMin = minWait
		c.httpClient.RetryWaitMax = maxWait
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.log = l
		c.httpClient.Logger = l
	}
}

// NewClient creates a client for the node at endpoint.
func NewClient(name, endpoint string, timeout time.Duration, opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.CheckRetry = retryTransportErrors
	rc.Logger = nil

	c := &Client{
		name:       name,
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: rc,
		log:        slog.Default(),
		Monitor:    NewNodeMonitor(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryTransportErrors retries connection failures only. HTTP status codes
// are answers and go back to the caller untouched.
func retryTransportErrors(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

type statusRequest struct {
	ID string `json:"id"`
}

// GetTransactionStatus fetches the node's view of a transaction.
func (c *Client) GetTransactionStatus(ctx context.Context, id domain.TransactionRef) (*domain.TransactionStatus, error) {
	start := time.Now()

	payload, err := json.Marshal(statusRequest{ID: id.String()})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+StatusPath, payload)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.Monitor.RecordFailure()
		metrics.NodeRequests.WithLabelValues(c.name, "error").Inc()
		return nil, fmt.Errorf("get transaction status: %w", err)
	}
	defer resp.Body.Close()

	latency := time.Since(start)
	metrics.NodeRequests.WithLabelValues(c.name, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		c.Monitor.RecordFailure()
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		switch {
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusForbidden:
			c.Monitor.RecordThrottle(resp.StatusCode)
			c.Monitor.RecordFailure()
		case c.Monitor.DetectThrottlePattern(string(body)):
			c.Monitor.RecordThrottle(http.StatusTooManyRequests)
			c.Monitor.RecordFailure()
		case resp.StatusCode == http.StatusNotFound:
			// unknown transaction is a valid answer
			c.Monitor.RecordSuccess(latency)
		default:
			c.Monitor.RecordFailure()
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var status domain.TransactionStatus
	if err := json.Unmarshal(body, &status); err != nil {
		c.Monitor.RecordFailure()
		return nil, fmt.Errorf("parse response: %w", err)
	}

	c.Monitor.RecordSuccess(latency)
	return &status, nil
}

// GetStatus implements finality.StatusQuery.
func (c *Client) GetStatus(ctx context.Context, ref domain.TransactionRef) (domain.FinalityStatus, error) {
	status, err := c.GetTransactionStatus(ctx, ref)
	if err != nil {
		return "", err
	}
	c.log.Debug("Transaction status",
		"tx", ref,
		"node", c.name,
		"state", status.State,
		"head", status.HeadNumber,
		"irreversible", status.IrreversibleNumber,
	)
	return status.Finality(), nil
}

// Name returns the node name.
func (c *Client) Name() string {
	return c.name
}

// Health returns the node's health snapshot.
func (c *Client) Health() HealthStatus {
	return c.Monitor.Health()
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.HTTPClient.CloseIdleConnections()
	return nil
}
