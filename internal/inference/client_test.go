package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/manager"
	"inferd/internal/ollama"
)

type fakeModels struct {
	state manager.BackendState
	model string
}

func (f fakeModels) State() manager.BackendState { return f.state }
func (f fakeModels) ActiveModel() string         { return f.model }

func newClient(t *testing.T, h http.HandlerFunc, st manager.BackendState) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		Generator: ollama.New(srv.URL),
		Models:    fakeModels{state: st, model: "qwen2.5-coder:7b"},
		Timeout:   time.Second,
		System:    "default system",
		Options:   Options{Temperature: 0.7, NumPredict: 1024},
		Logger:    zerolog.Nop(),
	})
}

func TestComplete_Success(t *testing.T) {
	var admitted atomic.Bool
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !admitted.Load() {
			t.Errorf("OnAdmit must run before the backend call")
		}
		var gr ollama.GenerateRequest
		json.NewDecoder(r.Body).Decode(&gr)
		if gr.Model != "qwen2.5-coder:7b" || gr.System != "default system" || gr.Options.NumPredict != 1024 {
			t.Errorf("unexpected request %+v", gr)
		}
		json.NewEncoder(w).Encode(map[string]any{"response": "  answer \n", "done": true})
	}, manager.StateReady)
	res, err := c.Complete(context.Background(), Request{Prompt: "q", OnAdmit: func() { admitted.Store(true) }})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Text != "answer" || res.Model != "qwen2.5-coder:7b" {
		t.Fatalf("result=%+v", res)
	}
}

func TestComplete_NotReadyFailsFast(t *testing.T) {
	var calls atomic.Int32
	for _, st := range []manager.BackendState{manager.StateStarting, manager.StatePullingModel, manager.StateDegraded, manager.StateCrashed} {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) }, st)
		admitted := false
		_, err := c.Complete(context.Background(), Request{Prompt: "q", OnAdmit: func() { admitted = true }})
		if !IsBackendNotReady(err) {
			t.Fatalf("state %s: expected BackendNotReady, got %v", st, err)
		}
		if admitted {
			t.Fatalf("state %s: OnAdmit must not run", st)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("backend contacted %d times", calls.Load())
	}
}

func TestComplete_Timeout(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, manager.StateReady)
	_, err := c.Complete(context.Background(), Request{Prompt: "slow", Timeout: 30 * time.Millisecond})
	if !IsInferenceTimeout(err) {
		t.Fatalf("expected InferenceTimeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("timeout should match context.DeadlineExceeded")
	}
}

func TestComplete_ErrorResponses(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
		},
		"malformed": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("{not json"))
		},
		"error field": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error":"out of memory"}`))
		},
		"empty": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"response":"   ","done":true}`))
		},
	}
	for name, h := range cases {
		c := newClient(t, h, manager.StateReady)
		_, err := c.Complete(context.Background(), Request{Prompt: "q"})
		if !IsInferenceError(err) {
			t.Fatalf("%s: expected InferenceError, got %v", name, err)
		}
	}
}
