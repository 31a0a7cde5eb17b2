package device

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type runCommandBody struct {
	YAML   string `json:"yaml"`
	DryRun bool   `json:"dryRun"`
}

func TestRunFlow_PostsYAMLFlow(t *testing.T) {
	var got runCommandBody
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b := NewBridge(srv.URL)
	err := b.RunFlow(context.Background(), false, FlowStep{
		"tapOn": map[string]any{"point": "50%,50%"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/run-command" {
		t.Errorf("posted to %q", path)
	}
	if got.DryRun {
		t.Error("dryRun set on a live flow")
	}
	if !strings.Contains(got.YAML, "tapOn:") {
		t.Errorf("yaml missing the step:\n%s", got.YAML)
	}
}

func TestRunFlow_DryRun(t *testing.T) {
	var got runCommandBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	b := NewBridge(srv.URL)
	if err := b.RunFlow(context.Background(), true, FlowStep{"back": nil}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.DryRun {
		t.Error("dryRun flag not forwarded")
	}
}

func TestRunFlow_SettleAnimationsAppendsWait(t *testing.T) {
	var got runCommandBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	b := NewBridge(srv.URL)
	b.SettleAnimations = true
	if err := b.RunFlow(context.Background(), false, FlowStep{"back": nil}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got.YAML, "waitForAnimationToEnd") {
		t.Errorf("settle step missing:\n%s", got.YAML)
	}
	if !strings.Contains(got.YAML, "timeout: 500") {
		t.Errorf("settle timeout missing:\n%s", got.YAML)
	}
}

func TestRunFlow_Accepts2xx(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusCreated, http.StatusNoContent} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		b := NewBridge(srv.URL)
		if err := b.RunFlow(context.Background(), false, FlowStep{"back": nil}); err != nil {
			t.Errorf("status %d: unexpected error: %v", status, err)
		}
		srv.Close()
	}
}

func TestRunFlow_ErrorStatusNamesFlowAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "element not visible", http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := NewBridge(srv.URL)
	err := b.RunFlow(context.Background(), false, FlowStep{"tapOn": map[string]any{"id": "x"}})

	var devErr *ErrCommand
	if !errors.As(err, &devErr) {
		t.Fatalf("got %v, want ErrCommand", err)
	}
	if devErr.Backend != "bridge" || devErr.Command != "tapOn" {
		t.Errorf("got backend=%q command=%q", devErr.Backend, devErr.Command)
	}
	if !strings.Contains(devErr.Detail, "status 500") || !strings.Contains(devErr.Detail, "element not visible") {
		t.Errorf("got detail %q", devErr.Detail)
	}
}

func TestRunFlow_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // bridge is down

	b := NewBridge(srv.URL)
	err := b.RunFlow(context.Background(), false, FlowStep{"back": nil})
	var devErr *ErrCommand
	if !errors.As(err, &devErr) {
		t.Fatalf("got %v, want ErrCommand", err)
	}
}

func TestFlowName(t *testing.T) {
	if got := flowName([]FlowStep{{"swipe": nil}}); got != "swipe" {
		t.Errorf("got %q", got)
	}
	if got := flowName(nil); got != "empty flow" {
		t.Errorf("got %q", got)
	}
	if got := flowName([]FlowStep{{}}); got != "empty step" {
		t.Errorf("got %q", got)
	}
}
