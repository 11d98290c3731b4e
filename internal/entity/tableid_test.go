package entity

import "testing"

func TestTableIDRoundTrip(t *testing.T) {
	for _, id := range AllTables() {
		name := id.String()
		parsed, err := ParseTableID(name)
		if err != nil {
			t.Fatalf("ParseTableID(%q) error: %v", name, err)
		}
		if parsed != id {
			t.Errorf("ParseTableID(%q) = %d, want %d", name, parsed, id)
		}
	}
}

func TestTableIDCount(t *testing.T) {
	if got := len(AllTables()); got != 19 {
		t.Errorf("AllTables() = %d entries, want 19", got)
	}
}

func TestTableIDValid(t *testing.T) {
	if !TableOrders.Valid() {
		t.Errorf("TableOrders reported invalid")
	}
	if TableID(0).Valid() {
		t.Errorf("TableID(0) reported valid")
	}
	if TableID(99).Valid() {
		t.Errorf("TableID(99) reported valid")
	}
}

func TestParseTableIDUnknown(t *testing.T) {
	if _, err := ParseTableID("widgets"); err == nil {
		t.Errorf("ParseTableID(widgets) expected error")
	}
}

func TestTableIDStringUnknown(t *testing.T) {
	if got := TableID(42).String(); got != "table(42)" {
		t.Errorf("String() = %q", got)
	}
}
