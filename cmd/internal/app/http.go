package app

import (
	"net/http"
	"time"

	authapi "duet/cmd/internal/auth/api"
	"duet/cmd/internal/realtime"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routes struct {
	log      Logger
	cfg      Config
	dbPool   *pgxpool.Pool
	gatherer prometheus.Gatherer
	ws       *realtime.WSGateway
	api      *authapi.Handler
}

func registerHTTP(mux *http.ServeMux, rt routes) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if rt.cfg.ReadinessRequireDB && rt.dbPool == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if rt.dbPool != nil {
			if err := PingDB(r.Context(), rt.dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				rt.log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if rt.cfg.MetricsEnabled && rt.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(rt.gatherer, promhttp.HandlerOpts{
			ErrorLog: slogPromLogger{rt.log},
		}))
	}

	if rt.api != nil {
		rt.api.Register(mux)
	}

	if rt.ws != nil {
		mux.Handle("GET /ws", rt.ws)
	}
}

// slogPromLogger adapts slog to promhttp's Println-style error logger.
type slogPromLogger struct{ log Logger }

func (l slogPromLogger) Println(v ...any) {
	l.log.Error("metrics.gather.fail", "err", v)
}
