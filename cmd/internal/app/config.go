package app

import (
	"time"

	"duet/cmd/internal/realtime"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32
	DBMigrate   bool

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// If true, DUET_TOKEN_HMAC_KEY must be set (>= 32 bytes) and token hashing must be keyed.
	RequireTokenHMAC bool

	VoteLockTimeout time.Duration

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	MetricsEnabled bool

	WS realtime.GatewayConfig
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	ws := realtime.DefaultGatewayConfig()

	return Config{
		HTTPAddr:  EnvString("DUET_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("DUET_LOG_LEVEL", "info"),
		LogFormat: EnvString("DUET_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("DUET_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("DUET_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("DUET_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("DUET_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("DUET_HTTP_MAX_HEADER_BYTES", 1<<20),
		ShutdownTimeout:   EnvDuration("DUET_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),

		DatabaseURL: EnvString("DUET_DATABASE_URL", ""),
		DBSchema:    EnvString("DUET_DB_SCHEMA", ""),
		DBMaxConns:  EnvInt32("DUET_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("DUET_DB_MIN_CONNS", 0),
		DBMigrate:   EnvBool("DUET_DB_MIGRATE", false),

		ReadinessRequireDB: EnvBool("DUET_READINESS_REQUIRE_DB", false),
		RequireTokenHMAC:   EnvBool("DUET_REQUIRE_TOKEN_HMAC", false),

		VoteLockTimeout: EnvDuration("DUET_VOTE_LOCK_TIMEOUT", 3*time.Second),

		CORSAllowedOrigins:   EnvCSV("DUET_CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://127.0.0.1:3000"}),
		CORSAllowCredentials: EnvBool("DUET_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("DUET_CORS_MAX_AGE_SECONDS", 600),

		MetricsEnabled: EnvBool("DUET_METRICS_ENABLED", true),

		WS: realtime.GatewayConfig{
			DevInsecure:      EnvBool("DUET_WS_DEV_INSECURE", ws.DevInsecure),
			OriginRequired:   EnvBool("DUET_WS_ORIGIN_REQUIRED", ws.OriginRequired),
			AllowedOrigins:   EnvCSV("DUET_WS_ALLOWED_ORIGINS", ws.AllowedOrigins),
			WriteTimeout:     EnvDuration("DUET_WS_WRITE_TIMEOUT", ws.WriteTimeout),
			ReadIdleTimeout:  EnvDuration("DUET_WS_READ_IDLE_TIMEOUT", ws.ReadIdleTimeout),
			SendQueueSize:    EnvInt("DUET_WS_SEND_QUEUE", ws.SendQueueSize),
			HeartbeatEvery:   EnvDuration("DUET_WS_HEARTBEAT_EVERY", ws.HeartbeatEvery),
			HeartbeatTimeout: EnvDuration("DUET_WS_HEARTBEAT_TIMEOUT", ws.HeartbeatTimeout),
			RateEvents:       EnvInt("DUET_WS_RATE_EVENTS", ws.RateEvents),
			RateWindow:       EnvDuration("DUET_WS_RATE_WINDOW", ws.RateWindow),
		},
	}
}
