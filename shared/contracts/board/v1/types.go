// Package v1 defines the Slate board protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Tool constants (wire-stable). An empty tool is treated as ToolBrush.
const (
	ToolBrush     = "brush"
	ToolEraser    = "eraser"
	ToolRectangle = "rectangle"
)

// Type constants (wire-stable).
const (
	// TypeDrawStart begins a new in-progress action (client -> server).
	TypeDrawStart = "draw_start"
	// TypeDrawEvent streams one segment of the in-progress action (client -> server)
	// and relays live segments from other clients (server -> client).
	TypeDrawEvent = "draw_event"
	// TypeDrawStop commits the in-progress action (client -> server).
	TypeDrawStop = "draw_stop"
	// TypeDrawShape commits a single-event shape action (client -> server).
	TypeDrawShape = "draw_shape"

	// TypeUndo requests removal of the newest committed action (client -> server).
	TypeUndo = "undo"
	// TypeRedo requests restoration of the newest undone action (client -> server).
	TypeRedo = "redo"
	// TypeClear wipes the room's history and redo stack (client -> server).
	TypeClear = "clear"

	// TypeCursorMove relays pointer positions (both directions).
	TypeCursorMove = "cursor_move"

	// TypeWelcome carries the joining client's identity and the room roster (server -> client).
	TypeWelcome = "welcome"
	// TypePresenceJoin announces a new room member (server -> room members).
	TypePresenceJoin = "presence_join"
	// TypePresenceLeave announces a departed room member (server -> room members).
	TypePresenceLeave = "presence_leave"

	// TypeRedraw carries the full authoritative history (server -> client, join/resync).
	TypeRedraw = "redraw"
	// TypeActionCommitted announces one finalized action (server -> room members).
	TypeActionCommitted = "action_committed"
	// TypeActionUndone announces removal of one action by id (server -> room members).
	TypeActionUndone = "action_undone"
	// TypeActionRedone announces restoration of one full action (server -> room members).
	TypeActionRedone = "action_redone"
	// TypeCleared announces a completed history wipe (server -> room members).
	TypeCleared = "cleared"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeDrawStart,
		TypeDrawEvent,
		TypeDrawStop,
		TypeDrawShape,
		TypeUndo,
		TypeRedo,
		TypeClear,
		TypeCursorMove,
		TypeWelcome,
		TypePresenceJoin,
		TypePresenceLeave,
		TypeRedraw,
		TypeActionCommitted,
		TypeActionUndone,
		TypeActionRedone,
		TypeCleared,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// DrawEvent is one incremental segment: a line piece for brush/eraser strokes,
// or the two defining corners of a rectangle. Immutable once created.
type DrawEvent struct {
	FromX float64 `json:"from_x"`
	FromY float64 `json:"from_y"`
	ToX   float64 `json:"to_x"`
	ToY   float64 `json:"to_y"`
	Color string  `json:"color"`
	Width float64 `json:"width"`
	Tool  string  `json:"tool,omitempty"`
}

// Validate checks the event's tool tag.
func (e DrawEvent) Validate() error {
	switch e.Tool {
	case "", ToolBrush, ToolEraser, ToolRectangle:
		return nil
	default:
		return fmt.Errorf("unknown tool: %q", e.Tool)
	}
}

// DrawAction is one complete, committed drawing operation: the unit of undo/redo.
//
// ID is a ULID minted by the server, so ids are globally unique and totally
// ordered by creation time within a room. SessionID identifies the authoring
// connection. Immutable after commit.
type DrawAction struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Events    []DrawEvent `json:"events"`
}

// Validate enforces the structural invariants of a committed action:
// a non-empty event sequence, and exactly one event for rectangle actions.
func (a DrawAction) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("missing action id")
	}
	if len(a.Events) == 0 {
		return errors.New("action has no events")
	}
	for i, ev := range a.Events {
		if err := ev.Validate(); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	if a.Events[0].Tool == ToolRectangle && len(a.Events) != 1 {
		return fmt.Errorf("rectangle action must have exactly one event, got %d", len(a.Events))
	}
	return nil
}

// User is an ephemeral per-connection presence identity. Not persisted.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// ---- Payloads ----

// DrawStartPayload begins an in-progress action with its first segment.
type DrawStartPayload struct {
	Event DrawEvent `json:"event"`
}

// DrawEventPayload appends one segment to the in-progress action.
// Sender is set by the server when relaying to other room members.
type DrawEventPayload struct {
	Event  DrawEvent `json:"event"`
	Sender string    `json:"sender,omitempty"`
}

// DrawShapePayload commits a one-event shape action.
type DrawShapePayload struct {
	Event DrawEvent `json:"event"`
}

// CursorMovePayload relays a pointer position. Sender is set by the server.
type CursorMovePayload struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Sender string  `json:"sender,omitempty"`
}

// WelcomePayload carries the joining client's identity, the current roster,
// and the room it was placed in.
type WelcomePayload struct {
	Room   string `json:"room"`
	Self   User   `json:"self"`
	Others []User `json:"others"`
}

// PresenceJoinPayload announces a new room member.
type PresenceJoinPayload struct {
	User User `json:"user"`
}

// PresenceLeavePayload announces a departed room member.
type PresenceLeavePayload struct {
	SessionID string `json:"session_id"`
}

// RedrawPayload carries the full authoritative action history in order.
type RedrawPayload struct {
	Actions []DrawAction `json:"actions"`
}

// ActionCommittedPayload announces one finalized action to every room member,
// including the author (the author needs it to key its snapshot cache).
type ActionCommittedPayload struct {
	Action DrawAction `json:"action"`
}

// ActionUndonePayload announces removal of the newest action by id.
type ActionUndonePayload struct {
	ActionID string `json:"action_id"`
}

// ActionRedonePayload announces restoration of one full action.
type ActionRedonePayload struct {
	Action DrawAction `json:"action"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
