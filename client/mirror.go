package client

import (
	"log/slog"

	v1 "slate/shared/contracts/board/v1"
)

// sentinelKey is the cache key for the blank canvas, before any action.
// Action ids are ULIDs and can never collide with it.
const sentinelKey = "__blank__"

// Mirror keeps a client's local copy of a room's action history in sync with
// server notifications and maintains a snapshot cache keyed by action id.
//
// Invariant: after any operation, the canvas shows exactly the result of
// rendering every action in history, in order, onto a blank canvas. When the
// cache holds the snapshot an undo/redo needs, the operation is a single
// Restore; on a miss it falls back to a full rebuild, so the mirror is never
// left permanently inconsistent.
//
// Cache entries orphaned by undo are not purged eagerly; a rebuild or full
// resync clears everything. Retention is unbounded by design.
//
// Mirror is not safe for concurrent use: it is driven by a single network
// callback loop, matching the single-threaded client event model.
type Mirror struct {
	log      *slog.Logger
	renderer Renderer

	history []v1.DrawAction
	cache   map[string]Image
}

// NewMirror constructs a mirror over renderer with a blank canvas.
func NewMirror(log *slog.Logger, renderer Renderer) *Mirror {
	m := &Mirror{
		log:      log,
		renderer: renderer,
	}
	m.reset(nil)
	return m
}

// History returns the mirrored actions in render order.
func (m *Mirror) History() []v1.DrawAction {
	return append([]v1.DrawAction(nil), m.history...)
}

// CachedSnapshot returns the snapshot stored for an action id, if any.
// The sentinel blank-canvas snapshot is reachable via SentinelKey.
func (m *Mirror) CachedSnapshot(actionID string) (Image, bool) {
	img, ok := m.cache[actionID]
	return img, ok
}

// SentinelKey is the cache key of the blank-canvas snapshot.
func SentinelKey() string { return sentinelKey }

// LoadHistory replaces all local state with the server-supplied history:
// clear everything, then render and snapshot each action in order.
// Used on join and on explicit resync; applying the same history twice is
// idempotent.
func (m *Mirror) LoadHistory(actions []v1.DrawAction) {
	m.reset(actions)
}

// ApplyCommitted appends a newly committed action. renderedLive reports
// whether this client already drew the action's pixels during live streaming
// (its own stroke, or a relayed remote stroke): if so the action is only
// snapshotted, not re-rendered. A remote shape arrives with no prior live
// pixels and must be rendered here.
func (m *Mirror) ApplyCommitted(action v1.DrawAction, renderedLive bool) {
	m.history = append(m.history, action)
	if !renderedLive {
		renderAction(m.renderer, action)
	}
	m.cache[action.ID] = m.renderer.Snapshot()
}

// ApplyUndo removes the action with the given id and restores the canvas to
// the state after the new last action (or the blank canvas). The entry is
// found by identity, not position: the server always undoes the tail, so with
// an in-sync mirror this is the last element. A divergent mirror (the id is
// not the tail) cannot use the snapshot shortcut, because every later
// snapshot was captured with the removed pixels on screen; it rebuilds
// instead, so the divergent path converges too. A cache miss also triggers a
// full rebuild.
func (m *Mirror) ApplyUndo(actionID string) {
	idx := -1
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].ID == actionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.log.Debug("mirror.undo.unknown_action", "action_id", actionID)
		return
	}
	wasTail := idx == len(m.history)-1
	m.history = append(m.history[:idx], m.history[idx+1:]...)

	if !wasTail {
		m.log.Debug("mirror.undo.out_of_order", "action_id", actionID)
		m.rebuild()
		return
	}

	img, ok := m.cache[m.tailKey()]
	if !ok {
		m.log.Debug("mirror.undo.cache_miss", "action_id", actionID)
		m.rebuild()
		return
	}
	m.renderer.Restore(img)
}

// ApplyRedo appends a restored action: restore the snapshot of the prior
// tail, render only the redone action on top, and snapshot the result.
// A cache miss triggers a full rebuild.
func (m *Mirror) ApplyRedo(action v1.DrawAction) {
	priorKey := m.tailKey()
	m.history = append(m.history, action)

	img, ok := m.cache[priorKey]
	if !ok {
		m.log.Debug("mirror.redo.cache_miss", "action_id", action.ID)
		m.rebuild()
		return
	}

	m.renderer.Restore(img)
	renderAction(m.renderer, action)
	m.cache[action.ID] = m.renderer.Snapshot()
}

// ApplyClear wipes the local history, the cache, and the canvas, and
// re-establishes the sentinel snapshot.
func (m *Mirror) ApplyClear() {
	m.reset(nil)
}

// tailKey returns the cache key of the current last action, or the sentinel
// key for an empty history.
func (m *Mirror) tailKey() string {
	if len(m.history) == 0 {
		return sentinelKey
	}
	return m.history[len(m.history)-1].ID
}

// rebuild replays the whole mirrored history from a blank canvas, repopulating
// the cache as it goes. Correctness fallback for cache misses; cost is O(n).
func (m *Mirror) rebuild() {
	m.reset(append([]v1.DrawAction(nil), m.history...))
}

func (m *Mirror) reset(actions []v1.DrawAction) {
	m.renderer.Clear()
	m.cache = make(map[string]Image, len(actions)+1)
	m.cache[sentinelKey] = m.renderer.Snapshot()

	m.history = m.history[:0]
	for _, action := range actions {
		renderAction(m.renderer, action)
		m.history = append(m.history, action)
		m.cache[action.ID] = m.renderer.Snapshot()
	}
}
