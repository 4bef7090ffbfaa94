package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/igrek51/connect4solver/internal/game"
)

func TestDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	cfg, err := FromViper(viper.New())
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, 10*time.Second, cfg.BotDelay)
	require.Equal(t, 30*time.Second, cfg.ReconnectWindow)
	require.Equal(t, 24*time.Hour, cfg.RedisTTL)
	require.Equal(t, "game-events", cfg.KafkaTopic)
	require.Empty(t, cfg.KafkaBrokers)
	require.Equal(t, game.Columns, cfg.BoardWidth)
	require.Equal(t, game.Rows, cfg.BoardHeight)
	require.Equal(t, game.DefaultWinLength, cfg.WinLength)
	require.Equal(t, 20, cfg.SolveMaxEmpties)
	require.Equal(t, 2, cfg.SolveConcurrency)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("C4_ADDR", ":9000")
	t.Setenv("C4_BOT_DELAY", "3")
	t.Setenv("C4_RECONNECT_WINDOW", "1m30s")
	t.Setenv("C4_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("C4_BOT_SOLVE_BELOW", "12")
	t.Setenv("C4_DEBUG", "true")

	cfg, err := FromViper(viper.New())
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Addr)
	require.Equal(t, 3*time.Second, cfg.BotDelay)
	require.Equal(t, 90*time.Second, cfg.ReconnectWindow)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 12, cfg.BotSolveBelow)
	require.True(t, cfg.Debug)
}

func TestPortWinsOverAddr(t *testing.T) {
	t.Setenv("C4_ADDR", ":9000")
	t.Setenv("PORT", "5000")

	cfg, err := FromViper(viper.New())
	require.NoError(t, err)
	require.Equal(t, ":5000", cfg.Addr)
}

func TestInvalidSettings(t *testing.T) {
	tests := map[string]string{
		"C4_WIN_LENGTH":            "9",
		"C4_BOT_DELAY":             "soon",
		"C4_BOT_SOLVE_BELOW":       "-1",
		"C4_CACHE_MEMORY_FRACTION": "2",
		"C4_SOLVE_MAX_EMPTIES":     "-5",
		"C4_SOLVE_CONCURRENCY":     "0",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := FromViper(viper.New())
			require.Error(t, err)
		})
	}
}

func TestSanitizedSettingsHideURLs(t *testing.T) {
	t.Setenv("C4_POSTGRES_URL", "postgres://user:secret@db/c4")
	cfg, err := FromViper(viper.New())
	require.NoError(t, err)
	settings := cfg.SanitizedSettings()
	require.Equal(t, true, settings["postgres"])
	require.NotContains(t, settings, "postgres_url")
}
