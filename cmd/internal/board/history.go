package board

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"slate/cmd/internal/metrics"
	v1 "slate/shared/contracts/board/v1"
)

// Authority is the single source of truth for what has been drawn, in what
// order, per room.
//
// Concurrency model:
// - Each room's history, redo stack, and active actions are guarded by one
//   per-room mutex, so all mutating operations for a room are serialized.
// - Rooms share no mutable state and are independently concurrent.
// - Persistence is asynchronous: the in-memory mutation and the resulting
//   broadcast never wait for the store. Writes for one room are serialized
//   and coalesced by the persister, so the last write always reflects the
//   latest in-memory state.
type Authority struct {
	log   *slog.Logger
	saver *persister

	mu    sync.Mutex
	rooms map[string]*roomState
}

// roomState holds one room's live state. Only History and Redo are persisted;
// active actions are transient and lost on restart or disconnect.
type roomState struct {
	loadOnce sync.Once

	mu      sync.Mutex
	history []v1.DrawAction
	redo    []v1.DrawAction
	active  map[string]*v1.DrawAction // session id -> in-progress action
}

// NewAuthority constructs an Authority persisting through store.
func NewAuthority(log *slog.Logger, store RoomStore) *Authority {
	return &Authority{
		log:   log,
		saver: newPersister(log, store, defaultPersistTimeout),
		rooms: make(map[string]*roomState),
	}
}

// Flush blocks until all pending persistence writes have completed.
// Used on shutdown and by tests.
func (a *Authority) Flush() {
	a.saver.Flush()
}

// room returns the live state for roomID, loading it from the store on first
// reference. A load failure is treated as "no prior state": availability is
// preferred over durability for this best-effort layer.
//
// The load runs under its own context, not the triggering request's: the
// first joiner disconnecting mid-connect must not consume the load attempt
// and leave the room permanently empty.
func (a *Authority) room(roomID string) *roomState {
	a.mu.Lock()
	rs, ok := a.rooms[roomID]
	if !ok {
		rs = &roomState{active: make(map[string]*v1.DrawAction)}
		a.rooms[roomID] = rs
		metrics.OpenRooms.Set(float64(len(a.rooms)))
	}
	a.mu.Unlock()

	rs.loadOnce.Do(func() {
		loadCtx, cancel := context.WithTimeout(context.Background(), a.saver.timeout)
		defer cancel()

		doc, found, err := a.saver.store.Load(loadCtx, roomID)
		if err != nil {
			a.log.Error("history.load.fail", "room", roomID, "err", err)
			return
		}
		if !found {
			return
		}

		rs.mu.Lock()
		rs.history = doc.History
		rs.redo = doc.Redo
		rs.mu.Unlock()

		a.log.Info("history.load.ok", "room", roomID, "actions", len(doc.History), "redo", len(doc.Redo))
	})

	return rs
}

// StartAction creates a new in-progress action for sessionID containing
// exactly firstEvent. If an action is already active for that session, it is
// overwritten: last start wins.
func (a *Authority) StartAction(ctx context.Context, roomID, sessionID string, firstEvent v1.DrawEvent) {
	rs := a.room(roomID)

	action := &v1.DrawAction{
		ID:        NewActionID(time.Now().UTC()),
		SessionID: sessionID,
		Events:    []v1.DrawEvent{firstEvent},
	}

	rs.mu.Lock()
	rs.active[sessionID] = action
	rs.mu.Unlock()
}

// AppendEvent appends event to the in-progress action for sessionID.
// A stray event with no active action is silently discarded; it reports
// whether the event was appended.
func (a *Authority) AppendEvent(ctx context.Context, roomID, sessionID string, event v1.DrawEvent) bool {
	rs := a.room(roomID)

	rs.mu.Lock()
	defer rs.mu.Unlock()

	action, ok := rs.active[sessionID]
	if !ok {
		return false
	}
	action.Events = append(action.Events, event)
	return true
}

// CommitAction finalizes the in-progress action for sessionID into the room
// history, clears the redo stack, and triggers persistence. It returns false
// if no action was active; the caller must not broadcast in that case.
func (a *Authority) CommitAction(ctx context.Context, roomID, sessionID string) (v1.DrawAction, bool) {
	rs := a.room(roomID)

	rs.mu.Lock()
	action, ok := rs.active[sessionID]
	if !ok {
		rs.mu.Unlock()
		return v1.DrawAction{}, false
	}
	delete(rs.active, sessionID)

	rs.history = append(rs.history, *action)
	rs.redo = nil
	doc := rs.document()
	rs.mu.Unlock()

	a.saver.Enqueue(roomID, doc)
	metrics.ActionsCommitted.WithLabelValues("stroke").Inc()

	a.log.Info("history.commit", "room", roomID, "action_id", action.ID, "events", len(action.Events))
	return *action, true
}

// CommitShape appends a single-event shape action directly to the room
// history, clears the redo stack, and triggers persistence.
func (a *Authority) CommitShape(ctx context.Context, roomID, sessionID string, event v1.DrawEvent) v1.DrawAction {
	rs := a.room(roomID)

	action := v1.DrawAction{
		ID:        NewActionID(time.Now().UTC()),
		SessionID: sessionID,
		Events:    []v1.DrawEvent{event},
	}

	rs.mu.Lock()
	rs.history = append(rs.history, action)
	rs.redo = nil
	doc := rs.document()
	rs.mu.Unlock()

	a.saver.Enqueue(roomID, doc)
	metrics.ActionsCommitted.WithLabelValues("shape").Inc()

	a.log.Info("history.commit.shape", "room", roomID, "action_id", action.ID)
	return action
}

// Undo pops the newest committed action, regardless of which session authored
// it, and pushes it onto the redo stack. It returns false when the history is
// empty.
func (a *Authority) Undo(ctx context.Context, roomID string) (v1.DrawAction, bool) {
	rs := a.room(roomID)

	rs.mu.Lock()
	n := len(rs.history)
	if n == 0 {
		rs.mu.Unlock()
		return v1.DrawAction{}, false
	}
	action := rs.history[n-1]
	rs.history = rs.history[:n-1]
	rs.redo = append(rs.redo, action)
	doc := rs.document()
	rs.mu.Unlock()

	a.saver.Enqueue(roomID, doc)
	metrics.HistoryOps.WithLabelValues("undo").Inc()

	a.log.Info("history.undo", "room", roomID, "action_id", action.ID)
	return action, true
}

// Redo pops the most-recently-undone action and restores it to the history.
// It returns false when the redo stack is empty.
func (a *Authority) Redo(ctx context.Context, roomID string) (v1.DrawAction, bool) {
	rs := a.room(roomID)

	rs.mu.Lock()
	n := len(rs.redo)
	if n == 0 {
		rs.mu.Unlock()
		return v1.DrawAction{}, false
	}
	action := rs.redo[n-1]
	rs.redo = rs.redo[:n-1]
	rs.history = append(rs.history, action)
	doc := rs.document()
	rs.mu.Unlock()

	a.saver.Enqueue(roomID, doc)
	metrics.HistoryOps.WithLabelValues("redo").Inc()

	a.log.Info("history.redo", "room", roomID, "action_id", action.ID)
	return action, true
}

// Clear wipes the room's history and redo stack. There is no undo back
// through a clear.
func (a *Authority) Clear(ctx context.Context, roomID string) {
	rs := a.room(roomID)

	rs.mu.Lock()
	rs.history = nil
	rs.redo = nil
	doc := rs.document()
	rs.mu.Unlock()

	a.saver.Enqueue(roomID, doc)
	metrics.HistoryOps.WithLabelValues("clear").Inc()

	a.log.Info("history.clear", "room", roomID)
}

// History returns a read-only snapshot of the room's committed actions in order.
func (a *Authority) History(ctx context.Context, roomID string) []v1.DrawAction {
	rs := a.room(roomID)

	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]v1.DrawAction(nil), rs.history...)
}

// ClearActive discards any in-progress action for sessionID across all rooms.
// Called on disconnect: a client that disconnects mid-stroke loses that stroke.
func (a *Authority) ClearActive(sessionID string) {
	a.mu.Lock()
	rooms := make([]*roomState, 0, len(a.rooms))
	for _, rs := range a.rooms {
		rooms = append(rooms, rs)
	}
	a.mu.Unlock()

	for _, rs := range rooms {
		rs.mu.Lock()
		delete(rs.active, sessionID)
		rs.mu.Unlock()
	}
}

// document snapshots the persisted shape of the room. Caller must hold rs.mu.
func (rs *roomState) document() Document {
	return Document{
		History: append([]v1.DrawAction(nil), rs.history...),
		Redo:    append([]v1.DrawAction(nil), rs.redo...),
	}
}
