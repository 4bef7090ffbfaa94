package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/igrek51/connect4solver/internal/analytics"
	"github.com/igrek51/connect4solver/internal/config"
	"github.com/igrek51/connect4solver/internal/match"
	"github.com/igrek51/connect4solver/internal/resultcache"
	"github.com/igrek51/connect4solver/internal/server"
	"github.com/igrek51/connect4solver/internal/solver"
	"github.com/igrek51/connect4solver/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	config.SetupLogging(cfg.Debug)
	log.Info().Interface("config", cfg.SanitizedSettings()).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := openStore(ctx, cfg)

	var cache *resultcache.Redis
	if cfg.RedisURL != "" {
		cache, err = resultcache.InitRedis(ctx, cfg.RedisURL, cfg.RedisTTL)
		if err != nil {
			log.Warn().Err(err).Msg("redis-disabled")
		} else {
			defer cache.Close()
		}
	}

	producer := analytics.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()

	srv, err := server.New(server.Config{
		Match: match.Settings{
			Width:           cfg.BoardWidth,
			Height:          cfg.BoardHeight,
			WinLength:       cfg.WinLength,
			ReconnectWindow: cfg.ReconnectWindow,
			BotSolveBelow:   cfg.BotSolveBelow,
		},
		BotFallbackAfter: cfg.BotDelay,
		Store:            store,
		Analytics:        producer,
		ResultCache:      cache,
		SolverWorkers:    cfg.SolverWorkers,
		CacheMaxEntries:  solver.MaxEntriesForMemory(cfg.CacheMemoryFraction),
		SolveMaxEmpties:  cfg.SolveMaxEmpties,
		SolveConcurrency: cfg.SolveConcurrency,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("server")
	}

	if err := srv.Run(ctx, cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server-stopped")
	}
	log.Info().Msg("bye")
}

// openStore prefers Postgres, then a local SQLite file. Without either,
// games and solutions only live in memory.
func openStore(ctx context.Context, cfg *config.Config) storage.Store {
	if cfg.PostgresURL != "" {
		pg, err := storage.NewPostgresStore(ctx, cfg.PostgresURL)
		if err != nil {
			log.Warn().Err(err).Msg("postgres-disabled")
		} else {
			if err := pg.EnsureTables(ctx); err != nil {
				log.Err(err).Msg("postgres-ensure-tables-failed")
			}
			return pg
		}
	}
	if cfg.SQLitePath != "" {
		lite, err := storage.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			log.Warn().Err(err).Msg("sqlite-disabled")
			return nil
		}
		if err := lite.EnsureTables(ctx); err != nil {
			log.Err(err).Msg("sqlite-ensure-tables-failed")
		}
		return lite
	}
	return nil
}
