package board

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"slate/cmd/internal/metrics"
)

const defaultPersistTimeout = 5 * time.Second

// persister is the asynchronous write path between the authority and the
// RoomStore. Writes for one room are serialized through a single drain
// goroutine, and queued documents are coalesced so the newest document always
// lands last. A failed write is logged and counted, never retried: the
// in-memory state stays authoritative and the next mutation enqueues a fresh
// full document anyway.
type persister struct {
	log     *slog.Logger
	store   RoomStore
	timeout time.Duration

	mu      sync.Mutex
	writers map[string]*roomWriter

	wg sync.WaitGroup
}

type roomWriter struct {
	mu      sync.Mutex
	pending *Document
	running bool
}

func newPersister(log *slog.Logger, store RoomStore, timeout time.Duration) *persister {
	if timeout <= 0 {
		timeout = defaultPersistTimeout
	}
	return &persister{
		log:     log,
		store:   store,
		timeout: timeout,
		writers: make(map[string]*roomWriter),
	}
}

// Enqueue schedules doc as the next write for room, replacing any not-yet-written
// document for that room. It never blocks on store IO.
func (p *persister) Enqueue(room string, doc Document) {
	w := p.writer(room)

	w.mu.Lock()
	w.pending = &doc
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	p.wg.Add(1)
	go p.drain(room, w)
}

// Flush blocks until every in-flight write has completed.
// Callers must not Enqueue concurrently with Flush.
func (p *persister) Flush() {
	p.wg.Wait()
}

func (p *persister) writer(room string) *roomWriter {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.writers[room]
	if !ok {
		w = &roomWriter{}
		p.writers[room] = w
	}
	return w
}

func (p *persister) drain(room string, w *roomWriter) {
	defer p.wg.Done()

	for {
		w.mu.Lock()
		doc := w.pending
		w.pending = nil
		if doc == nil {
			w.running = false
			w.mu.Unlock()
			return
		}
		w.mu.Unlock()

		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.store.Save(ctx, room, *doc)
		cancel()

		metrics.PersistDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.PersistFailures.Inc()
			p.log.Error("history.persist.fail", "room", room, "err", err)
			continue
		}
		p.log.Debug("history.persist.ok", "room", room, "actions", len(doc.History))
	}
}
