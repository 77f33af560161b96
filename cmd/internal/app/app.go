// Package app wires the Slate server runtime: config, logging, HTTP routes,
// the board authority, and the realtime gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"slate/cmd/internal/board"
	"slate/cmd/internal/realtime"

	"github.com/jackc/pgx/v5/pgxpool"
)

// App is the Slate server runtime: it owns HTTP server wiring, the board
// authority, and the room document store lifecycle.
type App struct {
	cfg Config
	log Logger

	store   board.RoomStore
	durable bool
	dbPool  *pgxpool.Pool

	board *board.Authority
	ws    *realtime.Gateway
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	store, dbPool, durable, err := newStore(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	authority := board.NewAuthority(log, store)
	ws := realtime.NewGateway(log, realtime.NewHub(log), authority)

	return &App{
		cfg:     cfg,
		log:     log,
		store:   store,
		durable: durable,
		dbPool:  dbPool,
		board:   authority,
		ws:      ws,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.durable, a.ws)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "durable_store", a.durable)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	// Drain pending document writes before the store goes away.
	a.board.Flush()

	if err := a.store.Close(); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStore picks the room document backend. The first configured one wins:
// Postgres, then Redis, then Badger, then the in-memory dev store.
//
// Ownership model:
// - app owns the pgx pool lifecycle; PostgresStore.Close() is a no-op
// - Badger and Redis stores own their handles and close them in Close()
func newStore(ctx context.Context, cfg Config, log Logger) (board.RoomStore, *pgxpool.Pool, bool, error) {
	switch {
	case cfg.DatabaseURL != "":
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, false, err
		}
		store, err := board.NewPostgresStore(pool, board.WithSchema(cfg.DBSchema))
		if err != nil {
			pool.Close()
			return nil, nil, false, err
		}
		log.Info("store.postgres", "schema", cfg.DBSchema)
		return store, pool, true, nil

	case cfg.RedisAddr != "":
		store, err := board.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, false, err
		}
		log.Info("store.redis", "addr", cfg.RedisAddr)
		return store, nil, true, nil

	case cfg.DataDir != "":
		store, err := board.NewBadgerStore(cfg.DataDir)
		if err != nil {
			return nil, nil, false, err
		}
		log.Info("store.badger", "dir", cfg.DataDir)
		return store, nil, true, nil

	default:
		log.Info("store.memory")
		return board.NewInMemoryStore(), nil, false, nil
	}
}
