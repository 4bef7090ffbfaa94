package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/igrek51/connect4solver/internal/analytics"
	"github.com/igrek51/connect4solver/internal/config"
)

const (
	groupID       = "analytics-consumer"
	statsInterval = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger := config.SetupLogging(cfg.Debug)

	brokers := cfg.KafkaBrokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   cfg.KafkaTopic,
		GroupID: groupID,
	})
	defer reader.Close()

	logger.Info().Strs("brokers", brokers).Str("topic", cfg.KafkaTopic).Msg("analytics-consumer-listening")

	metrics := analytics.NewMetrics()
	go func() {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.Summary().Log(logger)
			}
		}
	}()

	for {
		msg, err := reader.ReadMessage(ctx)
		if errors.Is(err, context.Canceled) {
			metrics.Summary().Log(logger)
			return
		}
		if err != nil {
			logger.Fatal().Err(err).Msg("read-error")
		}
		var e analytics.Event
		if err := json.Unmarshal(msg.Value, &e); err != nil {
			logger.Warn().Err(err).Msg("bad-event")
			continue
		}
		metrics.Record(e)
		logger.Debug().
			Str("event", e.Event).
			Interface("gameId", e.Payload["gameId"]).
			Interface("winner", e.Payload["winner"]).
			Interface("id", e.Payload["id"]).
			Msg("event")
	}
}
