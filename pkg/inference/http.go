package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fleetmind/go-vla/internal/httpc"
	"github.com/fleetmind/go-vla/pkg/vla"
)

// HTTPClient is the stateless HTTP/JSON inference transport, typically used
// for the cloud endpoint. Each Predict is one POST; the server keeps no
// per-connection state, so Connect is a health probe.
type HTTPClient struct {
	cfg       *Config
	baseURL   string
	http      *http.Client
	logger    *slog.Logger
	metrics   *Collector
	connected atomic.Bool
	closed    atomic.Bool
}

// NewHTTPClient creates an HTTP inference client.
func NewHTTPClient(opts ...Option) (*HTTPClient, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.BaseURL == "" {
		return nil, ErrNoEndpoint
	}

	return &HTTPClient{
		cfg:     cfg,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "inference.http", "endpoint", cfg.Name),
		metrics: NewCollector(),
	}, nil
}

// Connect probes the endpoint's health route.
func (c *HTTPClient) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return wrapErr(c.cfg.Name, ErrClosed)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return wrapErr(c.cfg.Name, err)
	}
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return wrapErr(c.cfg.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.apiError(resp)
	}

	c.connected.Store(true)
	c.logger.Debug("endpoint healthy", "url", c.baseURL)
	return nil
}

// Predict posts an observation and decodes the returned action chunk.
func (c *HTTPClient) Predict(ctx context.Context, obs vla.Observation) (*vla.ActionChunk, error) {
	if c.closed.Load() {
		return nil, wrapErr(c.cfg.Name, ErrClosed)
	}
	if !c.connected.Load() {
		return nil, wrapErr(c.cfg.Name, ErrNotConnected)
	}

	payload, err := json.Marshal(predictRequest{Observation: obs, Model: c.cfg.Model})
	if err != nil {
		return nil, wrapErr(c.cfg.Name, fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/predict", bytes.NewReader(payload))
	if err != nil {
		return nil, wrapErr(c.cfg.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordFailure()
		return nil, wrapErr(c.cfg.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordFailure()
		return nil, c.apiError(resp)
	}

	var result predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.metrics.RecordFailure()
		return nil, wrapErr(c.cfg.Name, fmt.Errorf("decode response: %w", err))
	}
	if result.Error != "" {
		c.metrics.RecordFailure()
		return nil, wrapErr(c.cfg.Name, fmt.Errorf("endpoint error: %s", result.Error))
	}
	if result.Chunk == nil || len(result.Chunk.Actions) == 0 {
		c.metrics.RecordFailure()
		return nil, wrapErr(c.cfg.Name, ErrEmptyChunk)
	}

	c.metrics.RecordSuccess(time.Since(start))
	return result.Chunk, nil
}

// ModelInfo queries endpoint metadata. Best effort; not part of the
// controller contract.
func (c *HTTPClient) ModelInfo(ctx context.Context) (*ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/model", nil)
	if err != nil {
		return nil, wrapErr(c.cfg.Name, err)
	}
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, wrapErr(c.cfg.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp)
	}

	var info ModelInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, wrapErr(c.cfg.Name, fmt.Errorf("decode model info: %w", err))
	}
	return &info, nil
}

// Close marks the client closed. Idempotent; the underlying transport pools
// connections and needs no explicit teardown.
func (c *HTTPClient) Close() error {
	c.closed.Store(true)
	c.connected.Store(false)
	return nil
}

// Metrics returns the latency/failure snapshot.
func (c *HTTPClient) Metrics() vla.ClientMetrics {
	return c.metrics.Snapshot()
}

func (c *HTTPClient) auth(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

func (c *HTTPClient) apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg, Endpoint: c.cfg.Name}
}

// Verify HTTPClient implements the controller contract at compile time.
var _ vla.InferenceClient = (*HTTPClient)(nil)
