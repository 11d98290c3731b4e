package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fieldsync/fieldsync/internal/config"
)

func TestDisabledNotifierIsNoOp(t *testing.T) {
	n := New(&config.NotifyConfig{Enabled: false, WebhookURL: "http://example.invalid"})
	if n.IsEnabled() {
		t.Fatal("IsEnabled() = true for disabled config")
	}
	if err := n.SyncStarted("abc", 19); err != nil {
		t.Errorf("SyncStarted() on disabled notifier = %v, want nil", err)
	}

	if New(nil).IsEnabled() {
		t.Error("IsEnabled() = true for nil config")
	}
}

func TestSyncCompletedPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	n := New(&config.NotifyConfig{Enabled: true, WebhookURL: srv.URL})
	start := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	if err := n.SyncCompleted("abc123", start, 90*time.Second, 1204); err != nil {
		t.Fatalf("SyncCompleted() error: %v", err)
	}

	if got["event"] != "sync_completed" || got["session_id"] != "abc123" {
		t.Errorf("payload = %v, want sync_completed for abc123", got)
	}
	if got["records"] != float64(1204) {
		t.Errorf("records = %v, want 1204", got["records"])
	}
	if got["duration"] != "1m30s" {
		t.Errorf("duration = %v, want 1m30s", got["duration"])
	}
}

func TestSyncFailedTruncatesError(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	n := New(&config.NotifyConfig{Enabled: true, WebhookURL: srv.URL})
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}
	if err := n.SyncFailed("abc123", errTest(string(long)), time.Second); err != nil {
		t.Fatalf("SyncFailed() error: %v", err)
	}
	if msg, _ := got["error"].(string); len(msg) != 503 {
		t.Errorf("error length = %d, want truncated to 503", len(msg))
	}
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := New(&config.NotifyConfig{Enabled: true, WebhookURL: srv.URL})
	if err := n.SyncStarted("abc", 19); err == nil {
		t.Error("SyncStarted() = nil, want error on 502")
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
