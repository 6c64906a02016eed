package inference

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleetmind/go-vla/pkg/vla"
)

// WSClient is the persistent websocket inference transport, typically used
// for an edge daemon on the local network where per-request connection
// setup would dominate the latency budget.
//
// The control loop never issues concurrent predicts (the prefetch in-flight
// guard serializes them), but the client still locks around the socket so
// misuse degrades to queueing rather than interleaved frames.
type WSClient struct {
	cfg     *Config
	url     string
	logger  *slog.Logger
	metrics *Collector

	mu       sync.Mutex
	conn     *websocket.Conn
	sequence int
	closed   bool
}

// NewWSClient creates a websocket inference client. The base URL scheme
// must be ws:// or wss://.
func NewWSClient(opts ...Option) (*WSClient, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.BaseURL == "" {
		return nil, ErrNoEndpoint
	}
	if !strings.HasPrefix(cfg.BaseURL, "ws://") && !strings.HasPrefix(cfg.BaseURL, "wss://") {
		return nil, wrapErr(cfg.Name, fmt.Errorf("base URL %q must use ws:// or wss://", cfg.BaseURL))
	}

	return &WSClient{
		cfg:     cfg,
		url:     strings.TrimSuffix(cfg.BaseURL, "/") + "/v1/stream",
		logger:  cfg.Logger.With("component", "inference.ws", "endpoint", cfg.Name),
		metrics: NewCollector(),
	}, nil
}

// Connect dials the endpoint. Reconnecting over an existing session
// replaces the previous socket.
func (c *WSClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return wrapErr(c.cfg.Name, ErrClosed)
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.ConnectTimeout}
	header := http.Header{}
	if c.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	conn, resp, err := dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil {
			return &APIError{StatusCode: resp.StatusCode, Message: err.Error(), Endpoint: c.cfg.Name}
		}
		return wrapErr(c.cfg.Name, err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	c.conn = conn
	c.logger.Debug("websocket connected", "url", c.url)
	return nil
}

// Predict sends one request frame and waits for the matching response.
// Stale frames from a previous timed-out request are skipped by sequence
// number.
func (c *WSClient) Predict(ctx context.Context, obs vla.Observation) (*vla.ActionChunk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, wrapErr(c.cfg.Name, ErrClosed)
	}
	if c.conn == nil {
		return nil, wrapErr(c.cfg.Name, ErrNotConnected)
	}

	c.sequence++
	seq := c.sequence

	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	start := time.Now()

	c.conn.SetWriteDeadline(deadline)
	req := predictRequest{Observation: obs, Model: c.cfg.Model, Sequence: seq}
	if err := c.conn.WriteJSON(req); err != nil {
		c.dropConn()
		c.metrics.RecordFailure()
		return nil, wrapErr(c.cfg.Name, fmt.Errorf("write request: %w", err))
	}

	c.conn.SetReadDeadline(deadline)
	for {
		var result predictResponse
		if err := c.conn.ReadJSON(&result); err != nil {
			c.dropConn()
			c.metrics.RecordFailure()
			return nil, wrapErr(c.cfg.Name, fmt.Errorf("read response: %w", err))
		}

		if result.Sequence != 0 && result.Sequence < seq {
			// Response to an earlier, abandoned request.
			continue
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
}

// Close tears down the socket. Idempotent.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn != nil {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.conn.Close()
		c.conn = nil
	}
	return nil
}

// Metrics returns the latency/failure snapshot.
func (c *WSClient) Metrics() vla.ClientMetrics {
	return c.metrics.Snapshot()
}

// dropConn discards a socket after a transport error so the next Connect
// starts clean. Callers hold the mutex.
func (c *WSClient) dropConn() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Verify WSClient implements the controller contract at compile time.
var _ vla.InferenceClient = (*WSClient)(nil)
