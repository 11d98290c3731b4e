package push

import (
	"context"
	"testing"

	"github.com/fieldsync/fieldsync/internal/entity"
)

func TestHandleRecordChange(t *testing.T) {
	var gotTable entity.TableID
	var gotRecord int64
	c := NewConsumer(Handlers{
		FetchRecord: func(_ context.Context, table entity.TableID, recordID int64) error {
			gotTable, gotRecord = table, recordID
			return nil
		},
	})

	payload := []byte(`{"table_id": 17, "record_id": 42}`)
	if err := c.Handle(context.Background(), payload); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if gotTable != entity.TableOrders || gotRecord != 42 {
		t.Errorf("dispatched %s/%d, want orders/42", gotTable, gotRecord)
	}
}

func TestHandleControlSignals(t *testing.T) {
	var loggedOut, reassigned bool
	c := NewConsumer(Handlers{
		ForceLogout:       func(context.Context) error { loggedOut = true; return nil },
		AssignmentChanged: func(context.Context) error { reassigned = true; return nil },
	})

	if err := c.Handle(context.Background(), []byte(`{"signal":"force_logout"}`)); err != nil {
		t.Fatalf("Handle(force_logout) error: %v", err)
	}
	if !loggedOut {
		t.Error("force_logout handler not called")
	}

	if err := c.Handle(context.Background(), []byte(`{"signal":"assignment_changed"}`)); err != nil {
		t.Fatalf("Handle(assignment_changed) error: %v", err)
	}
	if !reassigned {
		t.Error("assignment_changed handler not called")
	}
}

func TestHandleRejectsBadPayloads(t *testing.T) {
	called := false
	c := NewConsumer(Handlers{
		FetchRecord: func(context.Context, entity.TableID, int64) error {
			called = true
			return nil
		},
	})

	cases := []struct {
		name    string
		payload string
	}{
		{"malformed json", `{`},
		{"unknown table", `{"table_id": 99, "record_id": 1}`},
		{"zero table", `{"record_id": 1}`},
		{"missing record", `{"table_id": 1}`},
		{"unknown signal", `{"signal": "reboot"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := c.Handle(context.Background(), []byte(tc.payload)); err == nil {
				t.Errorf("Handle(%s) accepted a bad payload", tc.payload)
			}
		})
	}
	if called {
		t.Error("bad payload reached the record handler")
	}
}
