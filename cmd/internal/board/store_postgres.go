package board

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a RoomStore backed by PostgreSQL. Each room maps to one row
// holding the whole document as JSONB; Save is an upsert, so last write wins.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "slate").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("board: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("board: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed RoomStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "slate",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("board: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Load reads and decodes the document for a room.
func (s *PostgresStore) Load(ctx context.Context, room string) (Document, bool, error) {
	if s == nil || s.pool == nil {
		return Document{}, false, errors.New("board: nil store")
	}
	if room == "" {
		return Document{}, false, errors.New("missing room")
	}
	if err := ctx.Err(); err != nil {
		return Document{}, false, err
	}

	rooms := pgIdent(s.schema, "rooms")

	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM `+rooms+` WHERE id = $1`,
		room,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, fmt.Errorf("select room: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, false, fmt.Errorf("unmarshal document: %w", err)
	}
	return doc, true, nil
}

// Save encodes and upserts the document for a room.
func (s *PostgresStore) Save(ctx context.Context, room string, doc Document) error {
	if s == nil || s.pool == nil {
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

	rooms := pgIdent(s.schema, "rooms")

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+rooms+` (id, doc, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		room, data,
	); err != nil {
		return fmt.Errorf("upsert room: %w", err)
	}
	return nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
