// Package push consumes data-change push notifications and dispatches
// them to the sync engine's out-of-band entry points.
package push

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fieldsync/fieldsync/internal/entity"
	"github.com/fieldsync/fieldsync/internal/logging"
)

// Signal is a control notification with no record payload.
type Signal string

const (
	SignalForceLogout       Signal = "force_logout"
	SignalAssignmentChanged Signal = "assignment_changed"
)

// Message is the decoded push payload. Either Signal is set, or TableID
// and RecordID name one changed record.
type Message struct {
	TableID  entity.TableID `json:"table_id"`
	RecordID int64          `json:"record_id"`
	Signal   Signal         `json:"signal,omitempty"`
}

// Handlers are the dispatch targets for decoded notifications.
type Handlers struct {
	// FetchRecord pulls one changed record out of band.
	FetchRecord func(ctx context.Context, table entity.TableID, recordID int64) error
	// ForceLogout wipes local data and credentials.
	ForceLogout func(ctx context.Context) error
	// AssignmentChanged triggers a full re-sync of route assignments.
	AssignmentChanged func(ctx context.Context) error
}

// Consumer decodes push payloads and routes each to exactly one handler.
type Consumer struct {
	handlers Handlers
}

// NewConsumer creates a consumer over the given handlers.
func NewConsumer(h Handlers) *Consumer {
	return &Consumer{handlers: h}
}

// Handle decodes and dispatches one raw payload. Payloads naming a table
// outside the known set are rejected, not guessed at.
func (c *Consumer) Handle(ctx context.Context, payload []byte) error {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding push payload: %w", err)
	}
	return c.Dispatch(ctx, msg)
}

// Dispatch routes a decoded message.
func (c *Consumer) Dispatch(ctx context.Context, msg Message) error {
	switch {
	case msg.Signal == SignalForceLogout:
		if c.handlers.ForceLogout == nil {
			return nil
		}
		return c.handlers.ForceLogout(ctx)

	case msg.Signal == SignalAssignmentChanged:
		if c.handlers.AssignmentChanged == nil {
			return nil
		}
		return c.handlers.AssignmentChanged(ctx)

	case msg.Signal != "":
		return fmt.Errorf("unknown push signal %q", msg.Signal)

	case !msg.TableID.Valid():
		return fmt.Errorf("push names unknown table id %d", int(msg.TableID))

	case msg.RecordID == 0:
		return fmt.Errorf("push for %s carries no record id", msg.TableID)

	default:
		logging.Debug("push: %s/%d changed", msg.TableID, msg.RecordID)
		if c.handlers.FetchRecord == nil {
			return nil
		}
		return c.handlers.FetchRecord(ctx, msg.TableID, msg.RecordID)
	}
}
