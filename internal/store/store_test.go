package store

import (
	"context"
	"testing"
	"time"

	"github.com/fieldsync/fieldsync/internal/entity"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	products := []entity.Product{
		{ID: 1, Name: "Brake pad", Barcode: "800100", Price: 12.50, Active: true, UpdatedAt: time.Now()},
		{ID: 2, Name: "Oil filter", Barcode: "800101", Price: 4.20, Active: true, UpdatedAt: time.Now()},
	}
	if err := s.UpsertProducts(ctx, products); err != nil {
		t.Fatalf("UpsertProducts() error: %v", err)
	}
	// Replaying the same page must not duplicate.
	if err := s.UpsertProducts(ctx, products); err != nil {
		t.Fatalf("UpsertProducts() replay error: %v", err)
	}

	count, err := s.CountRecords(ctx, "products")
	if err != nil {
		t.Fatalf("CountRecords() error: %v", err)
	}
	if count != 2 {
		t.Errorf("CountRecords() = %d, want 2", count)
	}
}

func TestUpsertReplacesByID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := entity.Product{ID: 7, Name: "Wiper blade", Price: 3.00, UpdatedAt: time.Now()}
	if err := s.UpsertProducts(ctx, []entity.Product{first}); err != nil {
		t.Fatalf("UpsertProducts() error: %v", err)
	}

	second := first
	second.Name = "Wiper blade 22in"
	second.Price = 3.50
	if err := s.UpsertProducts(ctx, []entity.Product{second}); err != nil {
		t.Fatalf("UpsertProducts() error: %v", err)
	}

	got, err := s.ProductByID(ctx, 7)
	if err != nil {
		t.Fatalf("ProductByID() error: %v", err)
	}
	if got == nil {
		t.Fatal("ProductByID() returned nil")
	}
	if got.Name != "Wiper blade 22in" || got.Price != 3.50 {
		t.Errorf("ProductByID() = %q/%v, want updated fields", got.Name, got.Price)
	}
}

func TestUpsertOrdersNested(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	order := entity.Order{
		ID:         100,
		CustomerID: 5,
		SalesmanID: 3,
		Status:     "confirmed",
		Total:      42.00,
		UpdatedAt:  time.Now(),
		Lines: []entity.OrderLine{
			{
				ID:        1000,
				ProductID: 1,
				Quantity:  2,
				Price:     21.00,
				UpdatedAt: time.Now(),
				Suggestions: []entity.LineSuggestion{
					{ID: 5000, ProductID: 2, Reason: "bundle", UpdatedAt: time.Now()},
				},
			},
		},
	}

	if err := s.UpsertOrders(ctx, []entity.Order{order}); err != nil {
		t.Fatalf("UpsertOrders() error: %v", err)
	}
	if err := s.UpsertOrders(ctx, []entity.Order{order}); err != nil {
		t.Fatalf("UpsertOrders() replay error: %v", err)
	}

	got, err := s.OrderByID(ctx, 100)
	if err != nil {
		t.Fatalf("OrderByID() error: %v", err)
	}
	if got == nil {
		t.Fatal("OrderByID() returned nil")
	}
	if len(got.Lines) != 1 {
		t.Fatalf("len(Lines) = %d, want 1", len(got.Lines))
	}
	line := got.Lines[0]
	if line.OrderID != 100 {
		t.Errorf("line.OrderID = %d, want parent ID filled in", line.OrderID)
	}
	if len(line.Suggestions) != 1 {
		t.Fatalf("len(Suggestions) = %d, want 1", len(line.Suggestions))
	}
	if line.Suggestions[0].LineID != 1000 {
		t.Errorf("suggestion.LineID = %d, want 1000", line.Suggestions[0].LineID)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cp, err := s.GetCheckpoint(ctx, "products")
	if err != nil {
		t.Fatalf("GetCheckpoint() error: %v", err)
	}
	if cp != nil {
		t.Fatalf("GetCheckpoint() on fresh store = %+v, want nil", cp)
	}

	asOf := "2026-08-30T10:00:00Z"
	if err := s.SetCheckpoint(ctx, "products", asOf); err != nil {
		t.Fatalf("SetCheckpoint() error: %v", err)
	}

	cp, err = s.GetCheckpoint(ctx, "products")
	if err != nil {
		t.Fatalf("GetCheckpoint() error: %v", err)
	}
	if cp == nil || cp.SyncedAsOf != asOf {
		t.Errorf("GetCheckpoint() = %+v, want synced_as_of %q", cp, asOf)
	}

	// Advancing overwrites.
	later := "2026-08-30T11:00:00Z"
	if err := s.SetCheckpoint(ctx, "products", later); err != nil {
		t.Fatalf("SetCheckpoint() error: %v", err)
	}
	all, err := s.LoadCheckpoints(ctx)
	if err != nil {
		t.Fatalf("LoadCheckpoints() error: %v", err)
	}
	if all["products"].SyncedAsOf != later {
		t.Errorf("checkpoint = %q, want %q", all["products"].SyncedAsOf, later)
	}
}

func TestFailedOpQueue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.EnqueueFailedOp(ctx, entity.TableOrders, 42); err != nil {
		t.Fatalf("EnqueueFailedOp() error: %v", err)
	}
	// Duplicate pair is a no-op.
	if err := s.EnqueueFailedOp(ctx, entity.TableOrders, 42); err != nil {
		t.Fatalf("EnqueueFailedOp() duplicate error: %v", err)
	}
	if err := s.EnqueueFailedOp(ctx, entity.TableCustomers, 7); err != nil {
		t.Fatalf("EnqueueFailedOp() error: %v", err)
	}

	ops, err := s.ListFailedOps(ctx)
	if err != nil {
		t.Fatalf("ListFailedOps() error: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("len(ops) = %d, want 2", len(ops))
	}
	if ops[0].TableID != entity.TableOrders || ops[0].RecordID != 42 {
		t.Errorf("ops[0] = %+v, want orders/42 first", ops[0])
	}

	if err := s.DeleteFailedOp(ctx, ops[0].ID); err != nil {
		t.Fatalf("DeleteFailedOp() error: %v", err)
	}
	ops, err = s.ListFailedOps(ctx)
	if err != nil {
		t.Fatalf("ListFailedOps() error: %v", err)
	}
	if len(ops) != 1 || ops[0].TableID != entity.TableCustomers {
		t.Errorf("ops after delete = %+v, want only customers/7", ops)
	}
}

func TestSessionHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	start := time.Now().Add(-time.Minute)
	if err := s.CreateSession(ctx, "abc123", start); err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}
	if err := s.CreateSession(ctx, "def456", start.Add(30*time.Second)); err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}
	if err := s.CompleteSession(ctx, "abc123", "completed", ""); err != nil {
		t.Fatalf("CompleteSession() error: %v", err)
	}

	sessions, err := s.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("ListSessions() error: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len(sessions) = %d, want 2", len(sessions))
	}
	if sessions[0].ID != "def456" {
		t.Errorf("sessions[0].ID = %q, want newest first", sessions[0].ID)
	}
	if sessions[1].Status != "completed" {
		t.Errorf("sessions[1].Status = %q, want completed", sessions[1].Status)
	}
	if sessions[1].CompletedAt.IsZero() {
		t.Error("completed session has zero CompletedAt")
	}
}

func TestClearAll(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertUnits(ctx, []entity.Unit{{ID: 1, Name: "piece", UpdatedAt: time.Now()}}); err != nil {
		t.Fatalf("UpsertUnits() error: %v", err)
	}
	if err := s.SetCheckpoint(ctx, "units", "2026-08-30T10:00:00Z"); err != nil {
		t.Fatalf("SetCheckpoint() error: %v", err)
	}
	if err := s.EnqueueFailedOp(ctx, entity.TableUnits, 1); err != nil {
		t.Fatalf("EnqueueFailedOp() error: %v", err)
	}

	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() error: %v", err)
	}

	count, err := s.CountRecords(ctx, "units")
	if err != nil {
		t.Fatalf("CountRecords() error: %v", err)
	}
	if count != 0 {
		t.Errorf("units count after ClearAll = %d, want 0", count)
	}
	cps, err := s.LoadCheckpoints(ctx)
	if err != nil {
		t.Fatalf("LoadCheckpoints() error: %v", err)
	}
	if len(cps) != 0 {
		t.Errorf("checkpoints after ClearAll = %d, want 0", len(cps))
	}
	ops, err := s.ListFailedOps(ctx)
	if err != nil {
		t.Fatalf("ListFailedOps() error: %v", err)
	}
	if len(ops) != 0 {
		t.Errorf("failed ops after ClearAll = %d, want 0", len(ops))
	}
}

func TestCountRecordsUnknownTable(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.CountRecords(context.Background(), "sqlite_master"); err == nil {
		t.Error("CountRecords() accepted a non-entity table")
	}
}
