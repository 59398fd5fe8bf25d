package resolve

import (
	"reflect"
	"testing"
	"time"
)

type record struct {
	ID        string
	Status    string
	UpdatedAt time.Time
}

func (r record) Identity() string   { return r.ID }
func (r record) Version() time.Time { return r.UpdatedAt }

func ts(sec int) time.Time {
	return time.Date(2024, 6, 1, 12, 0, sec, 0, time.UTC)
}

func TestShouldApply(t *testing.T) {
	current := record{ID: "r1", Status: "reserved", UpdatedAt: ts(10)}

	if !ShouldApply[record](nil, record{ID: "r1", UpdatedAt: ts(5)}) {
		t.Error("missing current must always apply")
	}
	if !ShouldApply(&current, record{ID: "r1", UpdatedAt: ts(11)}) {
		t.Error("newer incoming must apply")
	}
	if ShouldApply(&current, record{ID: "r1", UpdatedAt: ts(10)}) {
		t.Error("equal timestamp is a duplicate and must not apply")
	}
	if ShouldApply(&current, record{ID: "r1", UpdatedAt: ts(9)}) {
		t.Error("older incoming must not apply")
	}
}

func TestUpsertOutOfOrderDelivery(t *testing.T) {
	// The update event arrives before the create event; the stale create
	// must not clobber the newer state.
	var list []record
	list = Upsert(list, record{ID: "r1", Status: "confirmed", UpdatedAt: ts(20)})
	list = Upsert(list, record{ID: "r1", Status: "reserved", UpdatedAt: ts(10)})

	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}
	if list[0].Status != "confirmed" {
		t.Errorf("status = %q, want confirmed (late create must be dropped)", list[0].Status)
	}
}

func TestUpsertDoesNotMutateInput(t *testing.T) {
	orig := []record{{ID: "r1", Status: "reserved", UpdatedAt: ts(10)}}
	out := Upsert(orig, record{ID: "r1", Status: "confirmed", UpdatedAt: ts(20)})

	if orig[0].Status != "reserved" {
		t.Errorf("input mutated: %+v", orig[0])
	}
	if out[0].Status != "confirmed" {
		t.Errorf("output = %+v, want updated copy", out[0])
	}
}

func TestUpsertAppendsUnknown(t *testing.T) {
	list := []record{{ID: "r1", UpdatedAt: ts(10)}}
	out := Upsert(list, record{ID: "r2", UpdatedAt: ts(5)})
	if len(out) != 2 || out[1].ID != "r2" {
		t.Errorf("out = %+v, want r1 then r2", out)
	}
}

func TestMergeList(t *testing.T) {
	current := []record{
		{ID: "r1", Status: "reserved", UpdatedAt: ts(10)},
		{ID: "r2", Status: "confirmed", UpdatedAt: ts(30)},
	}
	snapshot := []record{
		{ID: "r1", Status: "confirmed", UpdatedAt: ts(20)}, // newer, applies
		{ID: "r2", Status: "reserved", UpdatedAt: ts(25)},  // older, dropped
		{ID: "r3", Status: "reserved", UpdatedAt: ts(5)},   // new entry
	}

	got := MergeList(current, snapshot)
	want := []record{
		{ID: "r1", Status: "confirmed", UpdatedAt: ts(20)},
		{ID: "r2", Status: "confirmed", UpdatedAt: ts(30)},
		{ID: "r3", Status: "reserved", UpdatedAt: ts(5)},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeList = %+v, want %+v", got, want)
	}
}
