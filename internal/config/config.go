// Package config resolves indexer settings from flags, environment variables
// and an optional .env file, in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Candle backends for the durable tier.
const (
	BackendPostgres   = "postgres"
	BackendClickHouse = "clickhouse"
)

// Config holds indexer settings.
type Config struct {
	ListenAddr  string
	RPCEndpoint string
	WSEndpoint  string
	Commitment  string

	PostgresDSN   string
	ClickHouseDSN string
	RedisURL      string
	CandleBackend string
	UseMemory     bool
	Migrate       bool

	CacheRetention     time.Duration
	TierTimeout        time.Duration
	SessionIdleTimeout time.Duration
	QueueSize          int
	StaticDir          string
}

// Load reads envFile (a missing file is fine), then parses args with
// environment values as flag defaults, and validates the result.
func Load(envFile string, args []string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	env := envReader{}
	cfg := &Config{}
	fset := flag.NewFlagSet("indexer", flag.ContinueOnError)

	fset.StringVar(&cfg.ListenAddr, "listen-addr", env.str("LISTEN_ADDR", ":33987"), "HTTP listen address")
	fset.StringVar(&cfg.RPCEndpoint, "rpc-endpoint", env.str("SOLANA_RPC_ENDPOINT", "https://api.mainnet-beta.solana.com"), "Solana RPC HTTP endpoint")
	fset.StringVar(&cfg.WSEndpoint, "ws-endpoint", env.str("SOLANA_WS_ENDPOINT", "wss://api.mainnet-beta.solana.com"), "Solana WebSocket endpoint")
	fset.StringVar(&cfg.Commitment, "commitment", env.str("SOLANA_COMMITMENT", "confirmed"), "Commitment level for log subscription and account reads")
	fset.StringVar(&cfg.PostgresDSN, "postgres-dsn", env.str("POSTGRES_DSN", ""), "PostgreSQL connection string")
	fset.StringVar(&cfg.ClickHouseDSN, "clickhouse-dsn", env.str("CLICKHOUSE_DSN", ""), "ClickHouse connection string")
	fset.StringVar(&cfg.RedisURL, "redis-url", env.str("REDIS_URL", ""), "Redis (RedisTimeSeries) URL")
	fset.StringVar(&cfg.CandleBackend, "candle-backend", env.str("CANDLE_BACKEND", BackendPostgres), "Durable candle backend: postgres or clickhouse")
	fset.BoolVar(&cfg.UseMemory, "use-memory", env.bool("USE_MEMORY", false), "Use in-memory storage instead of Redis and databases")
	fset.BoolVar(&cfg.Migrate, "migrate", env.bool("MIGRATE", false), "Apply database migrations at startup")
	fset.DurationVar(&cfg.CacheRetention, "cache-retention", env.duration("CACHE_RETENTION", 24*time.Hour), "Cache tier retention")
	fset.DurationVar(&cfg.TierTimeout, "tier-timeout", env.duration("TIER_TIMEOUT", 5*time.Second), "Timeout of a single storage tier call")
	fset.DurationVar(&cfg.SessionIdleTimeout, "session-idle-timeout", env.duration("SESSION_IDLE_TIMEOUT", 10*time.Minute), "Close chart sessions that sent nothing for this long (0 disables)")
	fset.IntVar(&cfg.QueueSize, "queue-size", env.int("QUEUE_SIZE", 1024), "Decoded event queue capacity")
	fset.StringVar(&cfg.StaticDir, "static-dir", env.str("STATIC_DIR", ""), "Directory served at / (disabled when empty)")

	if err := env.err(); err != nil {
		return nil, err
	}
	if err := fset.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("--listen-addr is required"))
	}
	if c.WSEndpoint == "" {
		errs = append(errs, errors.New("--ws-endpoint is required"))
	}
	if c.RPCEndpoint == "" {
		errs = append(errs, errors.New("--rpc-endpoint is required"))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("--queue-size must be positive, got %d", c.QueueSize))
	}
	if c.CacheRetention <= 0 {
		errs = append(errs, fmt.Errorf("--cache-retention must be positive, got %s", c.CacheRetention))
	}
	if c.TierTimeout <= 0 {
		errs = append(errs, fmt.Errorf("--tier-timeout must be positive, got %s", c.TierTimeout))
	}
	if c.SessionIdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("--session-idle-timeout must not be negative, got %s", c.SessionIdleTimeout))
	}

	switch c.CandleBackend {
	case BackendPostgres, BackendClickHouse:
	default:
		errs = append(errs, fmt.Errorf("--candle-backend must be %s or %s, got %q", BackendPostgres, BackendClickHouse, c.CandleBackend))
	}

	if !c.UseMemory {
		if c.RedisURL == "" {
			errs = append(errs, errors.New("--redis-url is required (use --use-memory for in-memory storage)"))
		}
		// Tokens always live in Postgres.
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("--postgres-dsn is required (use --use-memory for in-memory storage)"))
		}
		if c.CandleBackend == BackendClickHouse && c.ClickHouseDSN == "" {
			errs = append(errs, errors.New("--clickhouse-dsn is required with --candle-backend=clickhouse"))
		}
	}
	return errors.Join(errs...)
}

// envReader reads typed environment values and collects parse errors.
type envReader struct {
	errs []error
}

func (e *envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (e *envReader) bool(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (e *envReader) int(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *envReader) err() error {
	return errors.Join(e.errs...)
}
