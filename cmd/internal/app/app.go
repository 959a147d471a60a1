// Package app wires the duet server runtime: config, logging, storage, the
// session authority, chat and vote services, HTTP routes and the realtime gateway.
package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"duet/cmd/identity"
	authapi "duet/cmd/internal/auth/api"
	"duet/cmd/internal/auth/session"
	"duet/cmd/internal/chat"
	"duet/cmd/internal/keylock"
	"duet/cmd/internal/realtime"
	"duet/cmd/internal/vote"
	"duet/cmd/security/password"
	"duet/cmd/security/token"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App is the duet server runtime. It owns the DB pool, the metrics registry and
// every service behind the HTTP mux.
type App struct {
	cfg Config
	log Logger

	dbPool   *pgxpool.Pool
	registry *prometheus.Registry

	sessions *session.Service
	hub      *realtime.Hub
	ws       *realtime.WSGateway
	api      *authapi.Handler
}

// backend is the storage trio every service is built on.
type backend struct {
	users  identity.Directory
	ledger session.Ledger
	chats  chat.Store
}

// New constructs a fully wired App from config. A nil log builds one from cfg.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	hasher := token.HasherFromEnv()
	if err := ValidateSecurityConfig(cfg, hasher); err != nil {
		return nil, err
	}
	if !hasher.Keyed() {
		log.Warn("security.token_hmac.disabled", "hint", "set DUET_TOKEN_HMAC_KEY")
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("password config: %w", err)
	}

	a := &App{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	be, err := a.newBackend(ctx)
	if err != nil {
		return nil, err
	}

	lockMetrics := keylock.NewMetrics(a.registry)

	a.sessions, err = session.NewService(sessCfg, be.ledger, be.users,
		session.WithHasher(hasher),
		session.WithLocks(keylock.New(keylock.Options{Name: "session", Timeout: sessCfg.LockTimeout, Metrics: lockMetrics})),
		session.WithMetrics(session.NewMetrics(a.registry)),
		session.WithLogger(log),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	rtMetrics := realtime.NewMetrics(a.registry)
	a.hub = realtime.NewHub(log, rtMetrics)

	chats := chat.NewService(be.chats, be.users, a.hub, log)
	votes := vote.NewService(be.chats,
		keylock.New(keylock.Options{Name: "vote", Timeout: cfg.VoteLockTimeout, Metrics: lockMetrics}),
		vote.WithNotifier(a.hub),
		vote.WithMetrics(vote.NewMetrics(a.registry)),
		vote.WithLogger(log),
	)

	a.api, err = authapi.NewHandler(log, authapi.LoadConfigFromEnv(), authapi.Deps{
		Users:       be.users,
		Credentials: identity.NewCredentials(pwCfg),
		Sessions:    a.sessions,
		Chats:       chats,
		Votes:       votes,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	a.ws = realtime.NewWSGateway(log, a.hub, a.api, cfg.WS, rtMetrics)
	return a, nil
}

// newBackend picks Postgres when a database URL is configured, memory otherwise.
func (a *App) newBackend(ctx context.Context) (backend, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		return backend{
			users:  identity.NewMemoryDirectory(),
			ledger: session.NewMemoryLedger(),
			chats:  chat.NewMemoryStore(),
		}, nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return backend{}, err
	}
	a.dbPool = pool

	dir, err := identity.NewPostgresDirectory(pool, identity.WithSchema(a.cfg.DBSchema))
	if err != nil {
		a.close()
		return backend{}, err
	}
	ledger, err := session.NewPostgresLedger(pool, a.cfg.DBSchema, dir)
	if err != nil {
		a.close()
		return backend{}, err
	}
	msgs, err := chat.NewPostgresStore(pool, a.cfg.DBSchema)
	if err != nil {
		a.close()
		return backend{}, err
	}

	a.log.Info("db.enabled.postgres_store", "migrated", a.cfg.DBMigrate)
	return backend{users: dir, ledger: ledger, chats: msgs}, nil
}

// Handler returns the full middleware-wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, routes{
		log:      a.log,
		cfg:      a.cfg,
		dbPool:   a.dbPool,
		gatherer: a.registry,
		ws:       a.ws,
		api:      a.api,
	})

	var h http.Handler = mux
	h = WithSecurityHeaders(h)
	h = WithCORS(h, a.cfg, a.log)
	return WithRequestLogging(h, a.log)
}

func (a *App) close() {
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + strings.TrimSpace(addr)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}
