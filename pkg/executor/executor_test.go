package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/fleetmind/go-vla/pkg/vla"
)

func TestRecorder_CapturesActions(t *testing.T) {
	r := &Recorder{}

	for i := 0; i < 3; i++ {
		a := vla.Action{JointCommands: []float64{float64(i)}, Timestamp: float64(i)}
		if err := r.Execute(a); err != nil {
			t.Fatalf("execute %d: %v", i, err)
		}
	}

	if r.Len() != 3 {
		t.Errorf("len: got %d, want 3", r.Len())
	}

	last, ok := r.Last()
	if !ok || last.JointCommands[0] != 2 {
		t.Errorf("last: got %v, %v", last, ok)
	}

	// Recorded actions are copies; mutating the caller's slice is invisible.
	a := vla.Action{JointCommands: []float64{9}}
	r.Execute(a)
	a.JointCommands[0] = 0
	actions := r.Actions()
	if actions[3].JointCommands[0] != 9 {
		t.Error("recorder should deep-copy actions")
	}

	r.Reset()
	if r.Len() != 0 {
		t.Errorf("len after reset: got %d, want 0", r.Len())
	}
	if _, ok := r.Last(); ok {
		t.Error("last on empty recorder should report false")
	}
}

func TestRecorder_FailAfter(t *testing.T) {
	r := &Recorder{FailAfter: 2}

	if err := r.Execute(vla.Action{}); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := r.Execute(vla.Action{}); err != nil {
		t.Fatalf("second: %v", err)
	}
	if err := r.Execute(vla.Action{}); err == nil {
		t.Error("third execute should fail")
	}
}

func TestRecorder_Concurrent(t *testing.T) {
	r := &Recorder{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Execute(vla.Action{JointCommands: []float64{1}})
			}
		}()
	}
	wg.Wait()

	if r.Len() != 400 {
		t.Errorf("len: got %d, want 400", r.Len())
	}
}

func TestHTTPDriver_ExecutePostsCommand(t *testing.T) {
	var mu sync.Mutex
	var got jointCommand
	mux := http.NewServeMux()
	mux.HandleFunc("/api/joints/command", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := NewHTTPDriver(srv.URL, nil)
	action := vla.Action{
		JointCommands:  []float64{0.1, 0.2},
		GripperCommand: 0.7,
		Timestamp:      123.5,
	}
	if err := d.Execute(action); err != nil {
		t.Fatalf("execute: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got.JointPositions) != 2 || got.JointPositions[1] != 0.2 {
		t.Errorf("joints: got %v", got.JointPositions)
	}
	if got.Gripper != 0.7 {
		t.Errorf("gripper: got %v, want 0.7", got.Gripper)
	}
}

func TestHTTPDriver_ExecuteSurfacesRejection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/joints/command", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "emergency stop engaged", http.StatusConflict)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := NewHTTPDriver(srv.URL, nil)
	if err := d.Execute(vla.Action{}); err == nil {
		t.Error("rejected command should return an error")
	}
}

func TestHTTPDriver_StateAndObserve(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/joints/state", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(JointState{
			JointPositions:  []float64{0.1, 0.2, 0.3},
			JointVelocities: []float64{0, 0, 0},
			Gripper:         0.4,
			Timestamp:       42,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := NewHTTPDriver(srv.URL, nil)

	state, err := d.State(context.Background())
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Gripper != 0.4 {
		t.Errorf("gripper: got %v, want 0.4", state.Gripper)
	}

	obs := d.Observe()
	if len(obs.JointPositions) != 3 || obs.Timestamp != 42 {
		t.Errorf("observation: got %+v", obs)
	}
}

func TestHTTPDriver_ObserveReusesLastStateOnFailure(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api/joints/state", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			http.Error(w, "daemon restarting", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(JointState{JointPositions: []float64{0.5}, Timestamp: 7})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := NewHTTPDriver(srv.URL, nil)

	first := d.Observe()
	if first.Timestamp != 7 {
		t.Fatalf("first observation: got %+v", first)
	}

	second := d.Observe()
	if second.Timestamp != 7 || len(second.JointPositions) != 1 {
		t.Errorf("failed read should return last good observation, got %+v", second)
	}
}
