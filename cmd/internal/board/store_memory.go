package board

import (
	"context"
	"errors"
	"sync"
)

// InMemoryStore is a dev-only fallback when no durable backend is configured.
// Documents survive for the process lifetime only.
type InMemoryStore struct {
	mu   sync.Mutex
	docs map[string]Document
}

// NewInMemoryStore constructs an in-memory RoomStore implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		docs: make(map[string]Document),
	}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// Load returns the stored document for a room, if any.
func (s *InMemoryStore) Load(ctx context.Context, room string) (Document, bool, error) {
	if room == "" {
		return Document{}, false, errors.New("missing room")
	}
	if err := ctx.Err(); err != nil {
		return Document{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[room]
	if !ok {
		return Document{}, false, nil
	}
	return cloneDocument(doc), true, nil
}

// Save replaces the stored document for a room.
func (s *InMemoryStore) Save(ctx context.Context, room string, doc Document) error {
	if room == "" {
		return errors.New("missing room")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[room] = cloneDocument(doc)
	return nil
}

// cloneDocument copies the slices so callers cannot alias stored state.
// Events inside actions are immutable after commit, so a shallow action copy is enough.
func cloneDocument(doc Document) Document {
	out := Document{}
	if doc.History != nil {
		out.History = append(out.History[:0:0], doc.History...)
	}
	if doc.Redo != nil {
		out.Redo = append(out.Redo[:0:0], doc.Redo...)
	}
	return out
}
