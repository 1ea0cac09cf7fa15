// Command relay publishes committed race events from the Postgres outbox to
// the configured sinks. Run it when the API servers have outbox.relay off.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/dailies/go/internal/config"
	"github.com/mcdev12/dailies/go/internal/dbconfig"
	"github.com/mcdev12/dailies/go/internal/race/outbox"
)

func main() {
	cfg, err := config.Load(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	cfg.Log.SetupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCfg := dbconfig.NewConfigFromEnv()
	dsn := dbCfg.DSN()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("ping database")
	}
	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Msg("connected to database")

	sinks, err := outbox.OpenSinks(ctx, cfg, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("open event sinks")
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			log.Error().Err(err).Msg("close event sinks")
		}
	}()

	repo := outbox.NewRepository(db)
	relay := outbox.NewRelay(repo, sinks.Publisher, outbox.RelayConfig{
		MaxRetries: cfg.Outbox.MaxRetries,
		RetryDelay: cfg.Outbox.RetryDelay,
		BatchSize:  cfg.Outbox.BatchSize,
	})

	ltCfg := outbox.DefaultListenerConfig()
	ltCfg.DatabaseURL = dsn
	ltCfg.NotifyChannel = cfg.Outbox.NotifyChannel
	ltCfg.FallbackInterval = cfg.Outbox.FallbackInterval
	listener, err := outbox.NewListener(relay, ltCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create outbox listener")
	}

	mux := http.NewServeMux()
	mux.Handle("GET /health", outbox.NewHealthChecker(relay, listener, repo, sinks.Connectivity(), 2*ltCfg.FallbackInterval))
	srv := &http.Server{
		Addr:              ":" + getEnv("RELAY_PORT", "8081"),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Msg("starting outbox listener")
		return listener.Start(ctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("relay health endpoint listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("relay exited with error")
		os.Exit(1)
	}
	log.Info().Msg("graceful shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
