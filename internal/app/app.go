// Package app wires the Ripple server runtime: config, logging, persistence,
// and the realtime gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ripple/internal/chat"
	"ripple/internal/friends"
	"ripple/internal/identity"
	"ripple/internal/notify"
	"ripple/internal/presence"
	"ripple/internal/realtime"
)

// App is the Ripple server runtime: it owns HTTP server wiring and the
// realtime gateway dependencies.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	ws *realtime.Gateway
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	deps, dbPool, dbEnabled, err := newDeps(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	ws := realtime.NewGateway(log, deps)

	return &App{
		cfg:       cfg,
		log:       log,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		ws:        ws,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.ws)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

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

// newDeps builds the gateway collaborators, Postgres-backed when a database
// is configured and in-memory otherwise.
func newDeps(ctx context.Context, cfg Config, log Logger) (realtime.Deps, *pgxpool.Pool, bool, error) {
	verifier, err := newVerifier(cfg, log)
	if err != nil {
		return realtime.Deps{}, nil, false, err
	}

	deps := realtime.Deps{
		Verifier: verifier,
		Registry: presence.NewRegistry(),
	}

	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_stores")

		mem := chat.NewMemoryStore()
		deps.Conversations = mem
		deps.Messages = mem
		deps.Friends = friends.NewMemoryGraph()
		deps.Records = presence.NopRecordStore{}
		deps.Notifier = notify.NewService(log, notify.NewMemoryTokenStore(), notify.NewLogSender(log))
		return deps, nil, false, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return realtime.Deps{}, nil, false, err
	}

	log.Info("db.enabled.postgres_stores", "schema", cfg.DBSchema)

	// Ownership model: app owns the pool lifecycle; the stores borrow it.
	store, err := chat.NewPostgresStore(pool, chat.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return realtime.Deps{}, nil, false, err
	}
	deps.Conversations = store
	deps.Messages = store

	graph, err := friends.NewPostgresGraph(pool, friends.WithGraphSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return realtime.Deps{}, nil, false, err
	}
	deps.Friends = friends.NewCachedGraph(graph, cfg.FriendCacheSize, cfg.FriendCacheTTL)

	records, err := presence.NewPostgresRecordStore(pool, presence.WithRecordSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return realtime.Deps{}, nil, false, err
	}
	deps.Records = records

	tokens, err := notify.NewPostgresTokenStore(pool, notify.WithTokenSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return realtime.Deps{}, nil, false, err
	}
	deps.Notifier = notify.NewService(log, tokens, notify.NewLogSender(log))

	return deps, pool, true, nil
}

func newVerifier(cfg Config, log Logger) (identity.Verifier, error) {
	if cfg.PasetoPublicKeyHex != "" {
		return identity.NewPasetoVerifier(cfg.PasetoPublicKeyHex, cfg.PasetoIssuer, cfg.PasetoClockSkew)
	}

	// Dev fallback: static tokens only. Production must set the public key.
	log.Warn("identity.dev_static_verifier", "tokens", cfg.PasetoDevTokens != "")
	return identity.NewStaticVerifier(identity.ParseStaticTokens(cfg.PasetoDevTokens)), nil
}
