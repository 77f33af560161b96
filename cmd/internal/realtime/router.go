package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	v1 "slate/shared/contracts/board/v1"
)

// session is the per-connection routing state: the client handle and the room
// it was placed in at connect time. Room membership is fixed for the life of
// the connection.
type session struct {
	client *Client
	room   *Room
	roomID string
}

// dispatch routes one validated inbound envelope to the board authority and
// fans out the result with the scope each message requires:
//   - live segments and cursor moves go to every *other* room member,
//   - commit/undo/redo/clear notifications go to *every* member including the
//     sender, so all snapshot caches stay keyed identically.
func (g *Gateway) dispatch(ctx context.Context, sess *session, env v1.Envelope) {
	switch env.Type {
	case v1.TypeDrawStart:
		g.onDrawStart(ctx, sess, env)
	case v1.TypeDrawEvent:
		g.onDrawEvent(ctx, sess, env)
	case v1.TypeDrawStop:
		g.onDrawStop(ctx, sess)
	case v1.TypeDrawShape:
		g.onDrawShape(ctx, sess, env)
	case v1.TypeUndo:
		g.onUndo(ctx, sess)
	case v1.TypeRedo:
		g.onRedo(ctx, sess)
	case v1.TypeClear:
		g.onClear(ctx, sess)
	case v1.TypeCursorMove:
		g.onCursorMove(ctx, sess, env)
	default:
		g.trySendError(ctx, sess.client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
	}
}

func (g *Gateway) onDrawStart(ctx context.Context, sess *session, env v1.Envelope) {
	var p v1.DrawStartPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.trySendError(ctx, sess.client, "bad_payload", "invalid draw_start payload")
		return
	}
	if err := p.Event.Validate(); err != nil {
		g.trySendError(ctx, sess.client, "bad_event", err.Error())
		return
	}

	g.board.StartAction(ctx, sess.roomID, sess.client.SessionID, p.Event)
	g.relaySegment(sess, p.Event)
}

func (g *Gateway) onDrawEvent(ctx context.Context, sess *session, env v1.Envelope) {
	var p v1.DrawEventPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.trySendError(ctx, sess.client, "bad_payload", "invalid draw_event payload")
		return
	}
	if err := p.Event.Validate(); err != nil {
		g.trySendError(ctx, sess.client, "bad_event", err.Error())
		return
	}

	// Live relay is decoupled from history: the segment is forwarded even if
	// the append was a stray (no active action), which only happens in benign
	// races around disconnects. A later redraw reconciles any divergence.
	g.board.AppendEvent(ctx, sess.roomID, sess.client.SessionID, p.Event)
	g.relaySegment(sess, p.Event)
}

func (g *Gateway) onDrawStop(ctx context.Context, sess *session) {
	action, ok := g.board.CommitAction(ctx, sess.roomID, sess.client.SessionID)
	if !ok {
		// Stray stop with no active action: benign, nothing to broadcast.
		return
	}

	payload, _ := json.Marshal(v1.ActionCommittedPayload{Action: action})
	sess.room.Broadcast(newEnvelope(v1.TypeActionCommitted, payload, time.Now().UTC()))
}

func (g *Gateway) onDrawShape(ctx context.Context, sess *session, env v1.Envelope) {
	var p v1.DrawShapePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.trySendError(ctx, sess.client, "bad_payload", "invalid draw_shape payload")
		return
	}
	if p.Event.Tool == "" {
		p.Event.Tool = v1.ToolRectangle
	}
	if err := p.Event.Validate(); err != nil {
		g.trySendError(ctx, sess.client, "bad_event", err.Error())
		return
	}

	action := g.board.CommitShape(ctx, sess.roomID, sess.client.SessionID, p.Event)

	payload, _ := json.Marshal(v1.ActionCommittedPayload{Action: action})
	sess.room.Broadcast(newEnvelope(v1.TypeActionCommitted, payload, time.Now().UTC()))
}

func (g *Gateway) onUndo(ctx context.Context, sess *session) {
	action, ok := g.board.Undo(ctx, sess.roomID)
	if !ok {
		return
	}

	payload, _ := json.Marshal(v1.ActionUndonePayload{ActionID: action.ID})
	sess.room.Broadcast(newEnvelope(v1.TypeActionUndone, payload, time.Now().UTC()))
}

func (g *Gateway) onRedo(ctx context.Context, sess *session) {
	action, ok := g.board.Redo(ctx, sess.roomID)
	if !ok {
		return
	}

	payload, _ := json.Marshal(v1.ActionRedonePayload{Action: action})
	sess.room.Broadcast(newEnvelope(v1.TypeActionRedone, payload, time.Now().UTC()))
}

func (g *Gateway) onClear(ctx context.Context, sess *session) {
	g.board.Clear(ctx, sess.roomID)
	sess.room.Broadcast(newEnvelope(v1.TypeCleared, nil, time.Now().UTC()))
}

func (g *Gateway) onCursorMove(ctx context.Context, sess *session, env v1.Envelope) {
	var p v1.CursorMovePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.trySendError(ctx, sess.client, "bad_payload", "invalid cursor_move payload")
		return
	}

	p.Sender = sess.client.User.ID
	payload, _ := json.Marshal(p)
	sess.room.BroadcastExcept(sess.client.SessionID, newEnvelope(v1.TypeCursorMove, payload, time.Now().UTC()))
}

// relaySegment forwards one live segment to every other room member, tagged
// with the sender's presence id. The sender already rendered it locally.
func (g *Gateway) relaySegment(sess *session, event v1.DrawEvent) {
	payload, _ := json.Marshal(v1.DrawEventPayload{Event: event, Sender: sess.client.User.ID})
	sess.room.BroadcastExcept(sess.client.SessionID, newEnvelope(v1.TypeDrawEvent, payload, time.Now().UTC()))
}

// ---- welcome / presence ----

// greet sends the joining client its identity, the room roster, and the full
// authoritative history, then announces the new member to the rest of the room.
func (g *Gateway) greet(ctx context.Context, sess *session) error {
	welcome, _ := json.Marshal(v1.WelcomePayload{
		Room:   sess.roomID,
		Self:   sess.client.User,
		Others: sess.room.Others(sess.client.SessionID),
	})
	if !g.enqueue(ctx, sess.client, newEnvelope(v1.TypeWelcome, welcome, time.Now().UTC())) {
		return fmt.Errorf("backpressure: welcome")
	}

	redraw, _ := json.Marshal(v1.RedrawPayload{
		Actions: g.board.History(ctx, sess.roomID),
	})
	if !g.enqueue(ctx, sess.client, newEnvelope(v1.TypeRedraw, redraw, time.Now().UTC())) {
		return fmt.Errorf("backpressure: redraw")
	}

	join, _ := json.Marshal(v1.PresenceJoinPayload{User: sess.client.User})
	sess.room.BroadcastExcept(sess.client.SessionID, newEnvelope(v1.TypePresenceJoin, join, time.Now().UTC()))
	return nil
}

// farewell discards any in-progress stroke for the session and announces the
// departure to the remaining room members.
func (g *Gateway) farewell(sess *session) {
	g.board.ClearActive(sess.client.SessionID)
	sess.room.Leave(sess.client.SessionID)

	leave, _ := json.Marshal(v1.PresenceLeavePayload{SessionID: sess.client.SessionID})
	sess.room.Broadcast(newEnvelope(v1.TypePresenceLeave, leave, time.Now().UTC()))
}

// ---- send helpers ----

func (g *Gateway) trySendError(ctx context.Context, client *Client, code, msg string) {
	p, _ := json.Marshal(v1.ErrorPayload{Code: code, Message: msg})
	env := newEnvelope(v1.TypeError, p, time.Now().UTC())
	_ = g.enqueue(ctx, client, env)
}

func (g *Gateway) enqueue(ctx context.Context, client *Client, env v1.Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- env:
		return true
	default:
		return false
	}
}

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      NewRandomHex(10),
		TS:      ts,
		Payload: payload,
	}
}
