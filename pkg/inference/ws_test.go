package inference

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/fleetmind/go-vla/pkg/vla"
)

// newStreamServer serves /v1/stream, answering each request frame via fn.
func newStreamServer(t *testing.T, fn func(req predictRequest) predictResponse) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req predictRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if err := conn.WriteJSON(fn(req)); err != nil {
				return
			}
		}
	})
	return httptest.NewServer(mux)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSClient_PredictRoundTrip(t *testing.T) {
	srv := newStreamServer(t, func(req predictRequest) predictResponse {
		return predictResponse{Chunk: testChunk(16), Sequence: req.Sequence}
	})
	defer srv.Close()

	c, err := NewWSClient(WithBaseURL(wsURL(srv)), WithName("edge"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	chunk, err := c.Predict(context.Background(), vla.Observation{})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(chunk.Actions) != 16 {
		t.Errorf("actions: got %d, want 16", len(chunk.Actions))
	}
}

func TestWSClient_SkipsStaleFrames(t *testing.T) {
	// From the second request onward the server first replays a stale frame
	// tagged with the previous sequence, then the real answer.
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req predictRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.Sequence > 1 {
				conn.WriteJSON(predictResponse{Chunk: testChunk(1), Sequence: req.Sequence - 1})
			}
			conn.WriteJSON(predictResponse{Chunk: testChunk(4), Sequence: req.Sequence})
		}
	})
	stale := httptest.NewServer(mux)
	defer stale.Close()

	c, _ := NewWSClient(WithBaseURL(wsURL(stale)))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	if _, err := c.Predict(context.Background(), vla.Observation{}); err != nil {
		t.Fatalf("first predict: %v", err)
	}

	chunk, err := c.Predict(context.Background(), vla.Observation{})
	if err != nil {
		t.Fatalf("second predict: %v", err)
	}
	if len(chunk.Actions) != 4 {
		t.Errorf("actions: got %d, want the non-stale chunk of 4", len(chunk.Actions))
	}
}

func TestWSClient_ErrorResponse(t *testing.T) {
	srv := newStreamServer(t, func(req predictRequest) predictResponse {
		return predictResponse{Error: "model crashed", Sequence: req.Sequence}
	})
	defer srv.Close()

	c, _ := NewWSClient(WithBaseURL(wsURL(srv)))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	if _, err := c.Predict(context.Background(), vla.Observation{}); err == nil {
		t.Error("server error should surface")
	}

	m := c.Metrics()
	if m.Failures != 1 {
		t.Errorf("failures: got %d, want 1", m.Failures)
	}
}

func TestWSClient_RequiresWSScheme(t *testing.T) {
	if _, err := NewWSClient(WithBaseURL("http://example.com")); err == nil {
		t.Error("http scheme should be rejected")
	}
	if _, err := NewWSClient(); !errors.Is(err, ErrNoEndpoint) {
		t.Errorf("missing URL: got %v, want ErrNoEndpoint", err)
	}
}

func TestWSClient_PredictWithoutConnect(t *testing.T) {
	c, _ := NewWSClient(WithBaseURL("ws://127.0.0.1:1"))
	if _, err := c.Predict(context.Background(), vla.Observation{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("got %v, want ErrNotConnected", err)
	}
}

func TestWSClient_CloseIdempotent(t *testing.T) {
	srv := newStreamServer(t, func(req predictRequest) predictResponse {
		return predictResponse{Chunk: testChunk(1), Sequence: req.Sequence}
	})
	defer srv.Close()

	c, _ := NewWSClient(WithBaseURL(wsURL(srv)))
	c.Connect(context.Background())

	if err := c.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("connect after close: got %v, want ErrClosed", err)
	}
}
