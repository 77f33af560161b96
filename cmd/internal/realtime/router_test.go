package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"slate/cmd/internal/board"
	v1 "slate/shared/contracts/board/v1"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()

	log := testLogger()
	return NewGateway(log, NewHub(log), board.NewAuthority(log, board.NewInMemoryStore()))
}

// joinTestSession wires a channel-backed client into a room, bypassing the
// websocket layer. Router behavior is fully observable through client.Send.
func joinTestSession(t *testing.T, g *Gateway, roomID string) *session {
	t.Helper()

	sid, err := NewSessionID(time.Now().UTC())
	if err != nil {
		t.Fatalf("new session id: %v", err)
	}
	client := NewClient(sid, NewUser(), 64)
	room := g.hub.GetOrCreateRoom(roomID)
	room.Join(client)
	return &session{client: client, room: room, roomID: roomID}
}

func inbound(t *testing.T, typ string, payload any) v1.Envelope {
	t.Helper()

	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		raw = b
	}
	return newEnvelope(typ, raw, time.Now().UTC())
}

// recv pops the next queued envelope for sess or fails.
func recv(t *testing.T, sess *session) v1.Envelope {
	t.Helper()

	select {
	case env := <-sess.client.Send:
		return env
	default:
		t.Fatalf("no envelope queued for session %s", sess.client.SessionID)
		return v1.Envelope{}
	}
}

// recvTyped asserts the next envelope's type and decodes its payload into out.
func recvTyped(t *testing.T, sess *session, wantType string, out any) {
	t.Helper()

	env := recv(t, sess)
	if env.Type != wantType {
		t.Fatalf("got envelope type %q, want %q", env.Type, wantType)
	}
	if out != nil {
		if err := json.Unmarshal(env.Payload, out); err != nil {
			t.Fatalf("unmarshal %s payload: %v", wantType, err)
		}
	}
}

func expectSilence(t *testing.T, sess *session) {
	t.Helper()

	select {
	case env := <-sess.client.Send:
		t.Fatalf("unexpected envelope %q queued for session %s", env.Type, sess.client.SessionID)
	default:
	}
}

func TestStrokeThenUndoAcrossTwoUsers(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	ctx := context.Background()

	a := joinTestSession(t, g, "r1")
	b := joinTestSession(t, g, "r1")

	start := v1.DrawEvent{FromX: 0, FromY: 0, ToX: 0, ToY: 0, Color: "red", Width: 2}
	seg := v1.DrawEvent{FromX: 0, FromY: 0, ToX: 10, ToY: 10, Color: "red", Width: 2}

	g.dispatch(ctx, a, inbound(t, v1.TypeDrawStart, v1.DrawStartPayload{Event: start}))
	g.dispatch(ctx, a, inbound(t, v1.TypeDrawEvent, v1.DrawEventPayload{Event: seg}))

	// Live segments reach B only; A rendered them locally.
	var live v1.DrawEventPayload
	recvTyped(t, b, v1.TypeDrawEvent, &live)
	if live.Sender != a.client.User.ID {
		t.Fatalf("live segment sender = %q, want A's user id", live.Sender)
	}
	recvTyped(t, b, v1.TypeDrawEvent, &live)
	expectSilence(t, a)

	g.dispatch(ctx, a, inbound(t, v1.TypeDrawStop, nil))

	// Exactly one action_committed with both events, delivered to A and B.
	var gotA, gotB v1.ActionCommittedPayload
	recvTyped(t, a, v1.TypeActionCommitted, &gotA)
	recvTyped(t, b, v1.TypeActionCommitted, &gotB)
	expectSilence(t, a)
	expectSilence(t, b)

	if gotA.Action.ID != gotB.Action.ID {
		t.Fatalf("A and B saw different actions: %q vs %q", gotA.Action.ID, gotB.Action.ID)
	}
	if len(gotA.Action.Events) != 2 {
		t.Fatalf("committed action has %d events, want 2", len(gotA.Action.Events))
	}
	if gotA.Action.Events[1].ToX != 10 || gotA.Action.Events[1].Color != "red" {
		t.Fatalf("committed events = %+v, want the streamed segments", gotA.Action.Events)
	}

	// B undoes A's stroke: undo is global, not per-author.
	g.dispatch(ctx, b, inbound(t, v1.TypeUndo, nil))

	var undoneA, undoneB v1.ActionUndonePayload
	recvTyped(t, a, v1.TypeActionUndone, &undoneA)
	recvTyped(t, b, v1.TypeActionUndone, &undoneB)

	if undoneA.ActionID != gotA.Action.ID || undoneB.ActionID != gotA.Action.ID {
		t.Fatalf("undo broadcast ids (%q, %q), want %q", undoneA.ActionID, undoneB.ActionID, gotA.Action.ID)
	}
	if h := g.board.History(ctx, "r1"); len(h) != 0 {
		t.Fatalf("history after undo = %+v, want empty", h)
	}
}

func TestShapeActionIsSingleRectangleEvent(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	ctx := context.Background()

	a := joinTestSession(t, g, "r1")
	b := joinTestSession(t, g, "r1")

	shape := v1.DrawEvent{FromX: 10, FromY: 10, ToX: 50, ToY: 40, Color: "#000", Width: 1, Tool: v1.ToolRectangle}
	g.dispatch(ctx, a, inbound(t, v1.TypeDrawShape, v1.DrawShapePayload{Event: shape}))

	var got v1.ActionCommittedPayload
	recvTyped(t, a, v1.TypeActionCommitted, &got)
	recvTyped(t, b, v1.TypeActionCommitted, nil)

	if len(got.Action.Events) != 1 {
		t.Fatalf("shape action has %d events, want exactly 1", len(got.Action.Events))
	}
	ev := got.Action.Events[0]
	if ev.Tool != v1.ToolRectangle {
		t.Fatalf("shape tool = %q, want rectangle (not a line)", ev.Tool)
	}
	if ev.FromX != 10 || ev.FromY != 10 || ev.ToX != 50 || ev.ToY != 40 {
		t.Fatalf("shape bounds = %+v, want (10,10)-(50,40)", ev)
	}
}

func TestRedoBroadcastsFullAction(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	ctx := context.Background()

	a := joinTestSession(t, g, "r1")

	g.dispatch(ctx, a, inbound(t, v1.TypeDrawShape, v1.DrawShapePayload{Event: v1.DrawEvent{ToX: 5, ToY: 5}}))
	var committed v1.ActionCommittedPayload
	recvTyped(t, a, v1.TypeActionCommitted, &committed)

	g.dispatch(ctx, a, inbound(t, v1.TypeUndo, nil))
	recvTyped(t, a, v1.TypeActionUndone, nil)

	g.dispatch(ctx, a, inbound(t, v1.TypeRedo, nil))

	var redone v1.ActionRedonePayload
	recvTyped(t, a, v1.TypeActionRedone, &redone)
	if redone.Action.ID != committed.Action.ID || len(redone.Action.Events) != 1 {
		t.Fatalf("redone action = %+v, want the undone action restored whole", redone.Action)
	}
}

func TestUndoRedoOnEmptyBroadcastNothing(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	ctx := context.Background()

	a := joinTestSession(t, g, "r1")

	g.dispatch(ctx, a, inbound(t, v1.TypeUndo, nil))
	g.dispatch(ctx, a, inbound(t, v1.TypeRedo, nil))
	g.dispatch(ctx, a, inbound(t, v1.TypeDrawStop, nil))

	expectSilence(t, a)
}

func TestClearBroadcastsAndWipesRedo(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	ctx := context.Background()

	a := joinTestSession(t, g, "r1")
	b := joinTestSession(t, g, "r1")

	g.dispatch(ctx, a, inbound(t, v1.TypeDrawShape, v1.DrawShapePayload{Event: v1.DrawEvent{ToX: 1}}))
	recvTyped(t, a, v1.TypeActionCommitted, nil)
	recvTyped(t, b, v1.TypeActionCommitted, nil)

	g.dispatch(ctx, a, inbound(t, v1.TypeUndo, nil))
	recvTyped(t, a, v1.TypeActionUndone, nil)
	recvTyped(t, b, v1.TypeActionUndone, nil)

	g.dispatch(ctx, b, inbound(t, v1.TypeClear, nil))
	recvTyped(t, a, v1.TypeCleared, nil)
	recvTyped(t, b, v1.TypeCleared, nil)

	// The previously undone action must not be redoable after a clear.
	g.dispatch(ctx, a, inbound(t, v1.TypeRedo, nil))
	expectSilence(t, a)
	expectSilence(t, b)
}

func TestCursorRelayIsScopedToOthers(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	ctx := context.Background()

	a := joinTestSession(t, g, "r1")
	b := joinTestSession(t, g, "r1")

	g.dispatch(ctx, a, inbound(t, v1.TypeCursorMove, v1.CursorMovePayload{X: 3, Y: 4}))

	var got v1.CursorMovePayload
	recvTyped(t, b, v1.TypeCursorMove, &got)
	if got.X != 3 || got.Y != 4 || got.Sender != a.client.User.ID {
		t.Fatalf("relayed cursor = %+v, want position tagged with A's user id", got)
	}
	expectSilence(t, a)
}

func TestBroadcastsNeverLeakAcrossRooms(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	ctx := context.Background()

	a := joinTestSession(t, g, "r1")
	c := joinTestSession(t, g, "r2")

	g.dispatch(ctx, a, inbound(t, v1.TypeDrawShape, v1.DrawShapePayload{Event: v1.DrawEvent{ToX: 1}}))
	recvTyped(t, a, v1.TypeActionCommitted, nil)
	expectSilence(t, c)

	g.dispatch(ctx, a, inbound(t, v1.TypeCursorMove, v1.CursorMovePayload{X: 1, Y: 1}))
	expectSilence(t, c)
}

func TestGreetDeliversWelcomeAndFullHistory(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	ctx := context.Background()

	a := joinTestSession(t, g, "r1")
	g.dispatch(ctx, a, inbound(t, v1.TypeDrawShape, v1.DrawShapePayload{Event: v1.DrawEvent{ToX: 7}}))
	recvTyped(t, a, v1.TypeActionCommitted, nil)

	b := joinTestSession(t, g, "r1")
	if err := g.greet(ctx, b); err != nil {
		t.Fatalf("greet: %v", err)
	}

	var welcome v1.WelcomePayload
	recvTyped(t, b, v1.TypeWelcome, &welcome)
	if welcome.Room != "r1" || welcome.Self.ID != b.client.User.ID {
		t.Fatalf("welcome = %+v, want room r1 and B's own identity", welcome)
	}
	if len(welcome.Others) != 1 || welcome.Others[0].ID != a.client.User.ID {
		t.Fatalf("welcome roster = %+v, want exactly A", welcome.Others)
	}

	var redraw v1.RedrawPayload
	recvTyped(t, b, v1.TypeRedraw, &redraw)
	if len(redraw.Actions) != 1 {
		t.Fatalf("redraw carries %d actions, want full history of 1", len(redraw.Actions))
	}

	// A is told about the new member.
	var join v1.PresenceJoinPayload
	recvTyped(t, a, v1.TypePresenceJoin, &join)
	if join.User.ID != b.client.User.ID {
		t.Fatalf("presence join = %+v, want B", join.User)
	}
}

func TestFarewellDiscardsInProgressStroke(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	ctx := context.Background()

	a := joinTestSession(t, g, "r1")
	b := joinTestSession(t, g, "r1")

	g.dispatch(ctx, a, inbound(t, v1.TypeDrawStart, v1.DrawStartPayload{Event: v1.DrawEvent{ToX: 1}}))
	recvTyped(t, b, v1.TypeDrawEvent, nil)

	g.farewell(a)

	var leave v1.PresenceLeavePayload
	recvTyped(t, b, v1.TypePresenceLeave, &leave)
	if leave.SessionID != a.client.SessionID {
		t.Fatalf("presence leave = %+v, want A's session", leave)
	}

	// The half-drawn stroke is gone: a late stop commits nothing.
	g.dispatch(ctx, a, inbound(t, v1.TypeDrawStop, nil))
	expectSilence(t, b)
	if h := g.board.History(ctx, "r1"); len(h) != 0 {
		t.Fatalf("history = %+v, want unfinished stroke discarded", h)
	}
}
