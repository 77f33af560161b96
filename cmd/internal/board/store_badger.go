package board

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key prefix for room documents in BadgerDB.
const badgerRoomKeyPrefix = "room:"

// BadgerStore is a RoomStore backed by an embedded BadgerDB instance.
// Suitable for single-process deployments that want durability without an
// external database.
//
// Ownership model: BadgerStore owns the DB handle and closes it on Close.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a Badger database at dir.
// An empty dir opens an in-memory instance, used by tests.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir)
	}
	// Badger's default logger writes to stderr outside slog; keep it quiet.
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load reads and decodes the document for a room.
func (s *BadgerStore) Load(ctx context.Context, room string) (Document, bool, error) {
	if s == nil || s.db == nil {
		return Document{}, false, errors.New("board: nil store")
	}
	if room == "" {
		return Document{}, false, errors.New("missing room")
	}
	if err := ctx.Err(); err != nil {
		return Document{}, false, err
	}

	var doc Document
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerRoomKeyPrefix + room))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get room: %w", err)
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	if err != nil {
		return Document{}, false, err
	}
	return doc, found, nil
}

// Save encodes and replaces the document for a room.
func (s *BadgerStore) Save(ctx context.Context, room string, doc Document) error {
	if s == nil || s.db == nil {
		return errors.New("board: nil store")
	}
	if room == "" {
		return errors.New("missing room")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerRoomKeyPrefix+room), data)
	})
}
