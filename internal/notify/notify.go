// Package notify posts sync session outcomes to a webhook, so a back
// office can watch field devices fall behind.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fieldsync/fieldsync/internal/config"
)

// Provider is the notification contract for session events. It exists so
// the command layer can swap in a no-op or a mock.
type Provider interface {
	// SyncStarted is sent when a session begins.
	SyncStarted(sessionID string, collectionCount int) error

	// SyncCompleted is sent on a fully completed session.
	SyncCompleted(sessionID string, startTime time.Time, duration time.Duration, recordCount int64) error

	// SyncStopped is sent when the user stops a session at a
	// collection boundary.
	SyncStopped(sessionID string, duration time.Duration) error

	// SyncFailed is sent when a session aborts on a bulk failure.
	SyncFailed(sessionID string, err error, duration time.Duration) error
}

// Notifier posts JSON events to the configured webhook.
type Notifier struct {
	config     *config.NotifyConfig
	httpClient *http.Client
}

var _ Provider = (*Notifier)(nil)

// event is the webhook payload.
type event struct {
	Event       string `json:"event"`
	SessionID   string `json:"session_id"`
	Collections int    `json:"collections,omitempty"`
	StartedAt   string `json:"started_at,omitempty"`
	Duration    string `json:"duration,omitempty"`
	Records     int64  `json:"records,omitempty"`
	Error       string `json:"error,omitempty"`
	Timestamp   int64  `json:"ts"`
}

// New creates a webhook notifier.
func New(cfg *config.NotifyConfig) *Notifier {
	if cfg == nil {
		cfg = &config.NotifyConfig{Enabled: false}
	}
	return &Notifier{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// IsEnabled returns true if notifications are enabled
func (n *Notifier) IsEnabled() bool {
	return n.config != nil && n.config.Enabled && n.config.WebhookURL != ""
}

// SyncStarted sends notification when a session begins.
func (n *Notifier) SyncStarted(sessionID string, collectionCount int) error {
	if !n.IsEnabled() {
		return nil
	}
	return n.send(event{
		Event:       "sync_started",
		SessionID:   sessionID,
		Collections: collectionCount,
		Timestamp:   time.Now().Unix(),
	})
}

// SyncCompleted sends notification when a session completes.
func (n *Notifier) SyncCompleted(sessionID string, startTime time.Time, duration time.Duration, recordCount int64) error {
	if !n.IsEnabled() {
		return nil
	}
	return n.send(event{
		Event:     "sync_completed",
		SessionID: sessionID,
		StartedAt: startTime.UTC().Format(time.RFC3339),
		Duration:  duration.Round(time.Second).String(),
		Records:   recordCount,
		Timestamp: time.Now().Unix(),
	})
}

// SyncStopped sends notification when the user stops a session.
func (n *Notifier) SyncStopped(sessionID string, duration time.Duration) error {
	if !n.IsEnabled() {
		return nil
	}
	return n.send(event{
		Event:     "sync_stopped",
		SessionID: sessionID,
		Duration:  duration.Round(time.Second).String(),
		Timestamp: time.Now().Unix(),
	})
}

// SyncFailed sends notification when a session aborts.
func (n *Notifier) SyncFailed(sessionID string, err error, duration time.Duration) error {
	if !n.IsEnabled() {
		return nil
	}

	errMsg := "Unknown error"
	if err != nil {
		errMsg = err.Error()
		if len(errMsg) > 500 {
			errMsg = errMsg[:500] + "..."
		}
	}

	return n.send(event{
		Event:     "sync_failed",
		SessionID: sessionID,
		Duration:  duration.Round(time.Second).String(),
		Error:     errMsg,
		Timestamp: time.Now().Unix(),
	})
}

func (n *Notifier) send(ev event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	resp, err := n.httpClient.Post(n.config.WebhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
