package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fleetmind/go-vla/pkg/vla"
)

func testChunk(n int) *vla.ActionChunk {
	actions := make([]vla.Action, n)
	for i := range actions {
		actions[i] = vla.Action{
			JointCommands: []float64{0.1, 0.2, 0.3},
			Timestamp:     float64(i) * 0.02,
		}
	}
	return &vla.ActionChunk{Actions: actions, ModelVersion: "test-1", SequenceNumber: 1}
}

func newPredictServer(t *testing.T, chunk *vla.ActionChunk) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v1/predict", func(w http.ResponseWriter, r *http.Request) {
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(predictResponse{Chunk: chunk})
	})
	return httptest.NewServer(mux)
}

func TestHTTPClient_ConnectAndPredict(t *testing.T) {
	srv := newPredictServer(t, testChunk(16))
	defer srv.Close()

	c, err := NewHTTPClient(WithBaseURL(srv.URL), WithName("cloud"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	chunk, err := c.Predict(context.Background(), vla.Observation{LanguageInstruction: "wave"})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(chunk.Actions) != 16 {
		t.Errorf("actions: got %d, want 16", len(chunk.Actions))
	}
	if chunk.ModelVersion != "test-1" {
		t.Errorf("model version: got %q", chunk.ModelVersion)
	}

	m := c.Metrics()
	if m.Requests != 1 || m.Failures != 0 {
		t.Errorf("metrics: got %+v", m)
	}
}

func TestHTTPClient_PredictBeforeConnect(t *testing.T) {
	srv := newPredictServer(t, testChunk(1))
	defer srv.Close()

	c, err := NewHTTPClient(WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := c.Predict(context.Background(), vla.Observation{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("got %v, want ErrNotConnected", err)
	}
}

func TestHTTPClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPClient(); !errors.Is(err, ErrNoEndpoint) {
		t.Errorf("got %v, want ErrNoEndpoint", err)
	}
}

func TestHTTPClient_ServerErrorSurfacesAPIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ := NewHTTPClient(WithBaseURL(srv.URL), WithName("cloud"))
	err := c.Connect(context.Background())

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %T (%v), want *APIError", err, err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", apiErr.StatusCode)
	}
}

func TestHTTPClient_EmptyChunkRejected(t *testing.T) {
	srv := newPredictServer(t, &vla.ActionChunk{})
	defer srv.Close()

	c, _ := NewHTTPClient(WithBaseURL(srv.URL))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if _, err := c.Predict(context.Background(), vla.Observation{}); !errors.Is(err, ErrEmptyChunk) {
		t.Errorf("got %v, want ErrEmptyChunk", err)
	}
}

func TestHTTPClient_ClosedRejectsCalls(t *testing.T) {
	srv := newPredictServer(t, testChunk(1))
	defer srv.Close()

	c, _ := NewHTTPClient(WithBaseURL(srv.URL))
	c.Connect(context.Background())
	c.Close()

	if err := c.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("connect after close: got %v, want ErrClosed", err)
	}
	if _, err := c.Predict(context.Background(), vla.Observation{}); !errors.Is(err, ErrClosed) {
		t.Errorf("predict after close: got %v, want ErrClosed", err)
	}
}

func TestHTTPClient_BearerAuth(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ := NewHTTPClient(WithBaseURL(srv.URL), WithAPIKey("secret-key"))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("auth header: got %q", gotAuth)
	}
}

func TestMock_RecordsCalls(t *testing.T) {
	m := WithChunks(testChunk(2), testChunk(3))

	m.Connect(context.Background())
	a, _ := m.Predict(context.Background(), vla.Observation{LanguageInstruction: "one"})
	b, _ := m.Predict(context.Background(), vla.Observation{LanguageInstruction: "two"})
	c, _ := m.Predict(context.Background(), vla.Observation{LanguageInstruction: "three"})

	if len(a.Actions) != 2 || len(b.Actions) != 3 {
		t.Errorf("chunks served out of order: %d, %d", len(a.Actions), len(b.Actions))
	}
	// Exhausted mocks repeat the last chunk.
	if len(c.Actions) != 3 {
		t.Errorf("exhausted chunk: got %d actions, want 3", len(c.Actions))
	}

	if m.CallCount("Predict") != 3 {
		t.Errorf("predict calls: got %d, want 3", m.CallCount("Predict"))
	}
	if m.CallCount("Connect") != 1 {
		t.Errorf("connect calls: got %d, want 1", m.CallCount("Connect"))
	}

	calls := m.Calls()
	if calls[1].Observation.LanguageInstruction != "one" {
		t.Errorf("recorded observation: got %q", calls[1].Observation.LanguageInstruction)
	}

	m.Reset()
	if len(m.Calls()) != 0 {
		t.Error("reset should clear recorded calls")
	}
}

func TestMock_WithError(t *testing.T) {
	boom := errors.New("boom")
	m := WithError(boom)

	if err := m.Connect(context.Background()); !errors.Is(err, boom) {
		t.Errorf("connect: got %v", err)
	}
	if _, err := m.Predict(context.Background(), vla.Observation{}); !errors.Is(err, boom) {
		t.Errorf("predict: got %v", err)
	}
}
