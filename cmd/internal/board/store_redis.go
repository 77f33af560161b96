package board

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Key prefix for room documents in Redis.
const redisRoomKeyPrefix = "slate:room:"

// RedisStore is a RoomStore backed by Redis. Documents are stored whole under
// one key per room, so Save is a single SET and last write wins.
//
// Ownership model: RedisStore owns the client and closes it on Close.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis at addr and verifies connectivity.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// Load reads and decodes the document for a room.
func (s *RedisStore) Load(ctx context.Context, room string) (Document, bool, error) {
	if s == nil || s.rdb == nil {
		return Document{}, false, errors.New("board: nil store")
	}
	if room == "" {
		return Document{}, false, errors.New("missing room")
	}

	data, err := s.rdb.Get(ctx, redisRoomKeyPrefix+room).Bytes()
	if errors.Is(err, redis.Nil) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, fmt.Errorf("redis get: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, false, fmt.Errorf("unmarshal document: %w", err)
	}
	return doc, true, nil
}

// Save encodes and replaces the document for a room.
func (s *RedisStore) Save(ctx context.Context, room string, doc Document) error {
	if s == nil || s.rdb == nil {
		return errors.New("board: nil store")
	}
	if room == "" {
		return errors.New("missing room")
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := s.rdb.Set(ctx, redisRoomKeyPrefix+room, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
