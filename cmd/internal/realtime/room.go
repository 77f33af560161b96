package realtime

import (
	"log/slog"
	"sync"

	v1 "slate/shared/contracts/board/v1"
)

// Room is an in-memory membership + broadcast fanout primitive for one board.
// Board history lives in the board.Authority; a Room only knows who is
// connected and how to reach them.
//
// Concurrency guarantees:
// - Join/Leave are safe under concurrent Broadcast.
// - Broadcast never blocks (drops under backpressure).
// - Broadcast is panic-safe because Client.Send is never closed by the server.
type Room struct {
	log *slog.Logger
	ID  string

	mu      sync.RWMutex
	members map[string]*Client // session id -> client
}

// NewRoom constructs a room.
func NewRoom(log *slog.Logger, id string) *Room {
	return &Room{
		log:     log,
		ID:      id,
		members: make(map[string]*Client),
	}
}

// Join adds a client to membership.
func (r *Room) Join(client *Client) {
	if r == nil || client == nil || client.SessionID == "" {
		return
	}

	r.mu.Lock()
	r.members[client.SessionID] = client
	r.mu.Unlock()

	r.log.Info("room.member.join", "room", r.ID, "session_id", client.SessionID, "user_id", client.User.ID)
}

// Leave removes a client from membership and signals shutdown for that client.
func (r *Room) Leave(sessionID string) {
	if r == nil || sessionID == "" {
		return
	}

	var cl *Client

	r.mu.Lock()
	cl = r.members[sessionID]
	delete(r.members, sessionID)
	r.mu.Unlock()

	// Signal client shutdown after removing from membership.
	// This ordering avoids race windows where a broadcaster still holds a pointer
	// while the client goroutines are being torn down.
	if cl != nil {
		cl.Close()
	}

	r.log.Info("room.member.leave", "room", r.ID, "session_id", sessionID)
}

// Others returns the presence identities of every member except sessionID.
func (r *Room) Others(sessionID string) []v1.User {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]v1.User, 0, len(r.members))
	for id, m := range r.members {
		if id == sessionID || m == nil {
			continue
		}
		out = append(out, m.User)
	}
	return out
}

// Broadcast fanouts an envelope to all members, including the author of the
// triggering message. Commit/undo/redo notifications use this scope so the
// author keys its snapshot cache identically to everyone else.
// Non-blocking: if a member queue is full or the client is shutting down, it is dropped.
func (r *Room) Broadcast(env v1.Envelope) {
	r.broadcast(env, "")
}

// BroadcastExcept fanouts an envelope to all members except sessionID.
// Live segment and cursor relays use this scope: the sender already rendered
// its own input locally.
func (r *Room) BroadcastExcept(sessionID string, env v1.Envelope) {
	r.broadcast(env, sessionID)
}

func (r *Room) broadcast(env v1.Envelope, skipSessionID string) {
	if r == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, m := range r.members {
		if m == nil || (skipSessionID != "" && id == skipSessionID) {
			continue
		}

		select {
		case <-m.Done():
			// Skip clients that are shutting down.
			continue
		default:
		}

		select {
		case m.Send <- env:
		default:
			// Drop rather than block the whole room.
		}
	}
}
