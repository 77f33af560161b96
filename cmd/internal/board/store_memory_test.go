package board

import (
	"context"
	"reflect"
	"testing"

	v1 "slate/shared/contracts/board/v1"
)

func TestInMemoryStoreRoundtrip(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	ctx := context.Background()

	if _, found, err := store.Load(ctx, "r1"); err != nil || found {
		t.Fatalf("Load on empty store = (found=%v, err=%v), want absent", found, err)
	}

	doc := Document{
		History: []v1.DrawAction{{ID: "01A", SessionID: "s1", Events: []v1.DrawEvent{testEvent(0)}}},
		Redo:    []v1.DrawAction{{ID: "01B", SessionID: "s1", Events: []v1.DrawEvent{testEvent(1)}}},
	}
	if err := store.Save(ctx, "r1", doc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, found, err := store.Load(ctx, "r1")
	if err != nil || !found {
		t.Fatalf("Load = (found=%v, err=%v), want stored document", found, err)
	}
	if !reflect.DeepEqual(got, doc) {
		t.Fatalf("Load = %+v, want %+v", got, doc)
	}
}

func TestInMemoryStoreDoesNotAliasCallerSlices(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	ctx := context.Background()

	doc := Document{
		History: []v1.DrawAction{{ID: "01A", SessionID: "s1", Events: []v1.DrawEvent{testEvent(0)}}},
	}
	if err := store.Save(ctx, "r1", doc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Mutating the caller's slice must not leak into the stored copy.
	doc.History[0].ID = "mutated"

	got, _, err := store.Load(ctx, "r1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.History[0].ID != "01A" {
		t.Fatalf("stored document aliased caller slice: id = %q", got.History[0].ID)
	}
}

func TestInMemoryStoreRoomsAreIsolated(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	ctx := context.Background()

	if err := store.Save(ctx, "r1", Document{History: []v1.DrawAction{{ID: "01A"}}}); err != nil {
		t.Fatalf("Save r1: %v", err)
	}

	if _, found, err := store.Load(ctx, "r2"); err != nil || found {
		t.Fatalf("Load r2 = (found=%v, err=%v), want absent", found, err)
	}
}
