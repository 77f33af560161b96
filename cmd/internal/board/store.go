// Package board contains Slate's room history authority and its persistence primitives.
package board

import (
	"context"

	v1 "slate/shared/contracts/board/v1"
)

// Document is the persisted per-room state: exactly the committed history and
// the redo stack. In-progress actions are transient and never persisted.
type Document struct {
	History []v1.DrawAction `json:"action_history"`
	Redo    []v1.DrawAction `json:"redo_stack"`
}

// RoomStore persists and loads room documents.
//
// Requirements:
//   - Load returns (doc, true, nil) when a document exists, (zero, false, nil) otherwise.
//   - Save replaces the whole document for the room (last write wins).
//   - Implementations must be safe for concurrent use across rooms.
type RoomStore interface {
	Load(ctx context.Context, room string) (Document, bool, error)
	Save(ctx context.Context, room string, doc Document) error
	Close() error
}
