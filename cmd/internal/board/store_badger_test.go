package board

import (
	"context"
	"reflect"
	"testing"

	v1 "slate/shared/contracts/board/v1"
)

func newTestBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()

	store, err := NewBadgerStore("") // in-memory mode
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBadgerStoreRoundtrip(t *testing.T) {
	t.Parallel()

	store := newTestBadgerStore(t)
	ctx := context.Background()

	if _, found, err := store.Load(ctx, "r1"); err != nil || found {
		t.Fatalf("Load on empty store = (found=%v, err=%v), want absent", found, err)
	}

	doc := Document{
		History: []v1.DrawAction{
			{ID: "01A", SessionID: "s1", Events: []v1.DrawEvent{testEvent(0), testEvent(1)}},
			{ID: "01B", SessionID: "s2", Events: []v1.DrawEvent{{FromX: 10, FromY: 10, ToX: 50, ToY: 40, Color: "#000", Width: 1, Tool: v1.ToolRectangle}}},
		},
		Redo: []v1.DrawAction{{ID: "01C", SessionID: "s1", Events: []v1.DrawEvent{testEvent(2)}}},
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

func TestBadgerStoreOverwriteReplacesDocument(t *testing.T) {
	t.Parallel()

	store := newTestBadgerStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "r1", Document{History: []v1.DrawAction{{ID: "01A"}, {ID: "01B"}}}); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if err := store.Save(ctx, "r1", Document{History: []v1.DrawAction{{ID: "01A"}}}); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	got, _, err := store.Load(ctx, "r1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.History) != 1 || got.History[0].ID != "01A" {
		t.Fatalf("Load after overwrite = %+v, want single action 01A", got.History)
	}
}
