// Package main provides a CI-friendly WebSocket smoke test for the Slate
// board server.
//
// It validates:
//   - handshake + subprotocol selection
//   - welcome/redraw session establishment
//   - live segment fanout to the other client
//   - stroke commit -> action_committed to both clients
//   - shape commit as a single-event action
//   - global undo/redo round trip
//   - clear
//   - that two client mirrors converge to the same raster
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"slate/client"
	v1 "slate/shared/contracts/board/v1"

	"github.com/coder/websocket"
)

const (
	defaultSubprotocol = "slate.board.v1"
	maxReadBytes       = 1 << 20 // 1MiB
)

type smokeClient struct {
	name string
	conn *websocket.Conn
	self v1.User

	mirror *client.Mirror
	canvas *opsRenderer

	inbox chan v1.Envelope
	errCh chan error
}

// opsRenderer models the canvas as a flat op string so two clients can be
// compared for pixel-equality without a real raster.
type opsRenderer struct {
	ops string
}

func (r *opsRenderer) Render(ev v1.DrawEvent) {
	r.ops += fmt.Sprintf("L(%v,%v,%v,%v,%s);", ev.FromX, ev.FromY, ev.ToX, ev.ToY, ev.Color)
}

func (r *opsRenderer) RenderShape(ev v1.DrawEvent) {
	r.ops += fmt.Sprintf("R(%v,%v,%v,%v,%s);", ev.FromX, ev.FromY, ev.ToX, ev.ToY, ev.Color)
}

func (r *opsRenderer) Snapshot() client.Image { return r.ops }
func (r *opsRenderer) Restore(img client.Image) {
	r.ops = img.(string)
}
func (r *opsRenderer) Clear() { r.ops = "" }

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		room    = flag.String("room", "smoke-room-1", "Room to join")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()

	a := mustConnect(root, "A", *wsURL, *origin, *room, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", *wsURL, *origin, *room, *timeout)
	defer closeWS(b.conn)

	// A must learn about B.
	a.mustReadUntilType(root, v1.TypePresenceJoin, *timeout, nil)

	if *verbose {
		fmt.Printf("connected: A=%s B=%s room=%q\n", a.self.ID, b.self.ID, *room)
	}

	// Stroke: start + one more segment, then stop.
	seg1 := v1.DrawEvent{FromX: 0, FromY: 0, ToX: 10, ToY: 10, Color: "#e74c3c", Width: 3}
	seg2 := v1.DrawEvent{FromX: 10, FromY: 10, ToX: 20, ToY: 5, Color: "#e74c3c", Width: 3}

	a.mustWrite(root, v1.TypeDrawStart, v1.DrawStartPayload{Event: seg1}, *timeout)
	a.mustWrite(root, v1.TypeDrawEvent, v1.DrawEventPayload{Event: seg2}, *timeout)

	// B sees both live segments attributed to A.
	for i := 0; i < 2; i++ {
		env := b.mustReadUntilType(root, v1.TypeDrawEvent, *timeout, nil)
		var p v1.DrawEventPayload
		mustUnmarshal(env.Payload, &p, "draw_event", b.name)
		if p.Sender != a.self.ID {
			fatalf("live segment sender mismatch: got=%q want=%q", p.Sender, a.self.ID)
		}
	}

	a.mustWrite(root, v1.TypeDrawStop, nil, *timeout)

	stroke := mustCommitted(root, a, b, *timeout)
	if len(stroke.Events) != 2 {
		fatalf("stroke committed with %d events, want 2", len(stroke.Events))
	}
	if stroke.Events[1] != seg2 {
		// seg2 was appended via draw_event after draw_start's seg1.
		fatalf("stroke second segment mismatch: %+v", stroke.Events[1])
	}

	// Shape: single rectangle event committed in one message.
	rect := v1.DrawEvent{FromX: 30, FromY: 30, ToX: 60, ToY: 50, Color: "#3498db", Width: 2, Tool: v1.ToolRectangle}
	a.mustWrite(root, v1.TypeDrawShape, v1.DrawShapePayload{Event: rect}, *timeout)

	shape := mustCommitted(root, a, b, *timeout)
	if len(shape.Events) != 1 || shape.Events[0].Tool != v1.ToolRectangle {
		fatalf("shape committed as %+v, want single rectangle event", shape.Events)
	}

	// Undo is global: B undoes A's shape.
	b.mustWrite(root, v1.TypeUndo, nil, *timeout)
	for _, c := range []*smokeClient{a, b} {
		env := c.mustReadUntilType(root, v1.TypeActionUndone, *timeout, nil)
		var p v1.ActionUndonePayload
		mustUnmarshal(env.Payload, &p, "action_undone", c.name)
		if p.ActionID != shape.ID {
			fatalf("undone id mismatch (%s): got=%q want=%q", c.name, p.ActionID, shape.ID)
		}
		c.mirror.ApplyUndo(p.ActionID)
	}

	// Redo restores the full action.
	a.mustWrite(root, v1.TypeRedo, nil, *timeout)
	for _, c := range []*smokeClient{a, b} {
		env := c.mustReadUntilType(root, v1.TypeActionRedone, *timeout, nil)
		var p v1.ActionRedonePayload
		mustUnmarshal(env.Payload, &p, "action_redone", c.name)
		if p.Action.ID != shape.ID || len(p.Action.Events) != 1 {
			fatalf("redone action mismatch (%s): %+v", c.name, p.Action)
		}
		c.mirror.ApplyRedo(p.Action)
	}

	if a.canvas.ops != b.canvas.ops {
		fatalf("mirrors diverged: A=%q B=%q", a.canvas.ops, b.canvas.ops)
	}
	if !strings.Contains(a.canvas.ops, "R(") || !strings.Contains(a.canvas.ops, "L(") {
		fatalf("mirror raster missing expected ops: %q", a.canvas.ops)
	}

	// Cursor positions relay only to others.
	a.mustWrite(root, v1.TypeCursorMove, v1.CursorMovePayload{X: 5, Y: 6}, *timeout)
	env := b.mustReadUntilType(root, v1.TypeCursorMove, *timeout, nil)
	var cur v1.CursorMovePayload
	mustUnmarshal(env.Payload, &cur, "cursor_move", b.name)
	if cur.Sender != a.self.ID {
		fatalf("cursor sender mismatch: got=%q want=%q", cur.Sender, a.self.ID)
	}
	mustAssertNoType(root, a, v1.TypeCursorMove, 750*time.Millisecond)

	// Clear wipes history for everyone.
	b.mustWrite(root, v1.TypeClear, nil, *timeout)
	for _, c := range []*smokeClient{a, b} {
		c.mustReadUntilType(root, v1.TypeCleared, *timeout, nil)
		c.mirror.ApplyClear()
	}
	if len(a.mirror.History()) != 0 || a.canvas.ops != "" {
		fatalf("mirror not empty after clear: history=%d raster=%q", len(a.mirror.History()), a.canvas.ops)
	}

	// A late joiner must get an empty redraw after the clear.
	c := mustConnect(root, "C", *wsURL, *origin, *room, *timeout)
	defer closeWS(c.conn)
	if n := len(c.mirror.History()); n != 0 {
		fatalf("late joiner got %d actions after clear, want 0", n)
	}

	fmt.Printf("OK: A=%s B=%s room=%q raster=%q\n", a.self.ID, b.self.ID, *room, a.canvas.ops)
}

// mustCommitted reads action_committed on both clients, checks they agree, and
// applies the action to both mirrors.
func mustCommitted(parent context.Context, a, b *smokeClient, stepTimeout time.Duration) v1.DrawAction {
	var acts [2]v1.DrawAction
	for i, c := range []*smokeClient{a, b} {
		env := c.mustReadUntilType(parent, v1.TypeActionCommitted, stepTimeout, map[string]struct{}{
			v1.TypeDrawEvent:    {},
			v1.TypePresenceJoin: {},
		})
		var p v1.ActionCommittedPayload
		mustUnmarshal(env.Payload, &p, "action_committed", c.name)
		if err := p.Action.Validate(); err != nil {
			fatalf("invalid committed action (%s): %v", c.name, err)
		}
		c.mirror.ApplyCommitted(p.Action, false)
		acts[i] = p.Action
	}
	if acts[0].ID != acts[1].ID {
		fatalf("clients saw different action ids: %q vs %q", acts[0].ID, acts[1].ID)
	}
	return acts[0]
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin, room string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	u, err := url.Parse(wsURL)
	if err != nil {
		fatalf("parse url: %v", err)
	}
	q := u.Query()
	q.Set("room", room)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	assertSubprotocol(resp, defaultSubprotocol)
	conn.SetReadLimit(maxReadBytes)

	canvas := &opsRenderer{}
	c := &smokeClient{
		name:   name,
		conn:   conn,
		canvas: canvas,
		mirror: client.NewMirror(slog.New(slog.NewTextHandler(io.Discard, nil)), canvas),
		inbox:  make(chan v1.Envelope, 512),
		errCh:  make(chan error, 1),
	}
	c.startReadLoop()

	welcome := c.mustReadUntilType(parent, v1.TypeWelcome, stepTimeout, nil)
	var wp v1.WelcomePayload
	mustUnmarshal(welcome.Payload, &wp, "welcome", name)
	if wp.Room != room {
		fatalf("welcome room mismatch (%s): got=%q want=%q", name, wp.Room, room)
	}
	if strings.TrimSpace(wp.Self.ID) == "" {
		fatalf("welcome missing self id (%s)", name)
	}
	c.self = wp.Self

	redraw := c.mustReadUntilType(parent, v1.TypeRedraw, stepTimeout, nil)
	var rp v1.RedrawPayload
	mustUnmarshal(redraw.Payload, &rp, "redraw", name)
	c.mirror.LoadHistory(rp.Actions)

	return c
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if err := env.Validate(); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func (c *smokeClient) mustWrite(parent context.Context, msgType string, payload any, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	env := v1.Envelope{
		V:    v1.Version,
		Type: msgType,
		ID:   fmt.Sprintf("%s-%s-%d", c.name, msgType, time.Now().UnixNano()),
		TS:   time.Now().UTC(),
	}
	if payload != nil {
		env.Payload = mustJSON(payload)
	}

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write %s failed (%s): %v", msgType, c.name, err)
	}
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration, skipTypes map[string]struct{}) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			if skipTypes != nil {
				if _, ok := skipTypes[env.Type]; ok {
					continue
				}
			}
			// Presence churn from other smoke runs against a shared server is
			// not a failure.
			if env.Type == v1.TypePresenceJoin || env.Type == v1.TypePresenceLeave {
				continue
			}
			fatalf("unexpected envelope type (%s): got=%q want=%q", c.name, env.Type, wantType)
		}
	}
}

func mustAssertNoType(parent context.Context, c *smokeClient, forbiddenType string, wait time.Duration) {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed unexpectedly (%s)", c.name)
			}
			fatalf("connection closed unexpectedly (%s): %v", c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed unexpectedly (%s)", c.name)
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			if env.Type == forbiddenType {
				fatalf("unexpected %s received (%s)", forbiddenType, c.name)
			}
		}
	}
}

func mustUnmarshal(raw json.RawMessage, v any, what, who string) {
	if err := json.Unmarshal(raw, v); err != nil {
		fatalf("unmarshal %s payload (%s): %v", what, who, err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
