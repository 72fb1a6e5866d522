// Package main runs the pump.fun candle indexer: it ingests bonding curve
// trades from Solana logs, aggregates them into candles and serves charts.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"pump-candles/internal/api"
	"pump-candles/internal/chart"
	"pump-candles/internal/config"
	"pump-candles/internal/domain"
	"pump-candles/internal/ingestion"
	"pump-candles/internal/pumpfun"
	"pump-candles/internal/solana"
	"pump-candles/internal/storage"
	chstore "pump-candles/internal/storage/clickhouse"
	"pump-candles/internal/storage/memory"
	"pump-candles/internal/storage/migrations"
	pgstore "pump-candles/internal/storage/postgres"
	redisstore "pump-candles/internal/storage/redis"
	"pump-candles/internal/storage/tiered"
)

func newLogger(prefix string) *log.Logger {
	return log.New(os.Stdout, prefix, log.LstdFlags|log.Lmsgprefix)
}

func main() {
	logger := newLogger("[indexer] ")

	cfg, err := config.Load(".env", os.Args[1:])
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("indexer: %v", err)
	}
	logger.Println("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	stores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	store := tiered.New(stores.cache, stores.durable, stores.tokens, tiered.Options{
		Retention: cfg.CacheRetention,
		Timeout:   cfg.TierTimeout,
		Logger:    newLogger("[store] "),
	})

	wsCfg := solana.DefaultWSConfig()
	wsCfg.Logger = newLogger("[solana-ws] ")
	ws, err := solana.NewWSClient(ctx, cfg.WSEndpoint, &wsCfg)
	if err != nil {
		return fmt.Errorf("connect %s: %w", cfg.WSEndpoint, err)
	}
	defer ws.Close()

	rpcCfg := solana.DefaultRPCConfig()
	rpcCfg.Commitment = cfg.Commitment
	rpcCfg.Logger = newLogger("[solana-rpc] ")
	rpc := solana.NewRPCClient(cfg.RPCEndpoint, &rpcCfg)

	source := pumpfun.NewSource(ws, pumpfun.SourceOptions{
		Commitment: cfg.Commitment,
		Logger:     newLogger("[source] "),
	})
	handler := ingestion.NewHandler(store, ingestion.HandlerOptions{
		Metadata: pumpfun.NewMetadataFetcher(rpc),
		Logger:   newLogger("[ingest] "),
	})
	dispatcher := ingestion.NewDispatcher(handler, ingestion.DispatcherOptions{
		Logger: newLogger("[ingest] "),
	})

	apiOpts := api.DefaultOptions()
	apiOpts.Session = chart.DefaultOptions()
	apiOpts.Session.IdleTimeout = cfg.SessionIdleTimeout
	apiOpts.StaticDir = cfg.StaticDir
	apiOpts.Logger = newLogger("[ws] ")
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewServer(store, apiOpts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	queue := make(chan domain.Event, cfg.QueueSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return source.Run(gctx, queue)
	})
	g.Go(func() error {
		return dispatcher.Run(gctx, queue)
	})
	g.Go(func() error {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// storeSet holds the opened tiers and the closers for their connections.
type storeSet struct {
	cache   storage.CandleTier
	durable storage.CandleTier
	tokens  storage.TokenStore
	closers []func()
}

func (s *storeSet) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *log.Logger) (*storeSet, error) {
	if cfg.UseMemory {
		logger.Println("using in-memory storage")
		return &storeSet{
			cache:   memory.NewCandleStoreWithRetention(cfg.CacheRetention, time.Now),
			durable: memory.NewCandleStore(),
			tokens:  memory.NewTokenStore(),
		}, nil
	}

	s := &storeSet{}
	fail := func(err error) (*storeSet, error) {
		s.close()
		return nil, err
	}

	redisClient, err := redisstore.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return fail(err)
	}
	s.closers = append(s.closers, func() { redisClient.Close() })
	s.cache = redisstore.NewCandleStore(redisClient, cfg.CacheRetention)

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, pgstore.PoolOptions{})
	if err != nil {
		return fail(err)
	}
	s.closers = append(s.closers, pool.Close)
	if cfg.Migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool, newLogger("[migrate] ")); err != nil {
			return fail(err)
		}
	}
	s.tokens = pgstore.NewTokenStore(pool)

	switch cfg.CandleBackend {
	case config.BackendClickHouse:
		var conn *chstore.Conn
		if cfg.Migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN, newLogger("[migrate] "))
		} else {
			conn, err = chstore.NewConn(ctx, cfg.ClickHouseDSN)
		}
		if err != nil {
			return fail(err)
		}
		s.closers = append(s.closers, func() { conn.Close() })
		s.durable = chstore.NewCandleStore(conn)
	default:
		s.durable = pgstore.NewCandleStore(pool)
	}

	logger.Printf("storage: redis cache (retention %s), %s candles, postgres tokens", cfg.CacheRetention, cfg.CandleBackend)
	return s, nil
}
