package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/igrek51/connect4solver/internal/game"
)

const envPrefix = "C4"

// Config holds everything the server and the tools read from the
// environment or an optional connect4solver.yaml.
type Config struct {
	Addr  string
	Debug bool

	PostgresURL string
	SQLitePath  string
	RedisURL    string
	RedisTTL    time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	BotDelay        time.Duration
	ReconnectWindow time.Duration
	BotSolveBelow   int

	SolverWorkers       int
	CacheMemoryFraction float64
	SolveMaxEmpties     int
	SolveConcurrency    int

	BoardWidth  int
	BoardHeight int
	WinLength   int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("debug", false)
	v.SetDefault("redis_ttl", "24h")
	v.SetDefault("kafka_topic", "game-events")
	v.SetDefault("bot_delay", "10")
	v.SetDefault("reconnect_window", "30")
	v.SetDefault("bot_solve_below", 12)
	v.SetDefault("solver_workers", 0)
	v.SetDefault("cache_memory_fraction", 0.25)
	v.SetDefault("solve_max_empties", 20)
	v.SetDefault("solve_concurrency", 2)
	v.SetDefault("board_width", game.Columns)
	v.SetDefault("board_height", game.Rows)
	v.SetDefault("win_length", game.DefaultWinLength)
}

// Load reads the configuration from C4_* environment variables. PORT,
// when set by the hosting platform, takes precedence over C4_ADDR.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("connect4solver")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("port", "PORT"); err != nil {
		return nil, err
	}

	cfg := &Config{
		Addr:                v.GetString("addr"),
		Debug:               v.GetBool("debug"),
		PostgresURL:         v.GetString("postgres_url"),
		SQLitePath:          v.GetString("sqlite_path"),
		RedisURL:            v.GetString("redis_url"),
		KafkaBrokers:        splitList(v.GetString("kafka_brokers")),
		KafkaTopic:          v.GetString("kafka_topic"),
		BotSolveBelow:       v.GetInt("bot_solve_below"),
		SolverWorkers:       v.GetInt("solver_workers"),
		CacheMemoryFraction: v.GetFloat64("cache_memory_fraction"),
		SolveMaxEmpties:     v.GetInt("solve_max_empties"),
		SolveConcurrency:    v.GetInt("solve_concurrency"),
		BoardWidth:          v.GetInt("board_width"),
		BoardHeight:         v.GetInt("board_height"),
		WinLength:           v.GetInt("win_length"),
	}
	if port := v.GetString("port"); port != "" {
		cfg.Addr = ":" + port
	}

	var err error
	if cfg.RedisTTL, err = duration(v, "redis_ttl"); err != nil {
		return nil, err
	}
	if cfg.BotDelay, err = duration(v, "bot_delay"); err != nil {
		return nil, err
	}
	if cfg.ReconnectWindow, err = duration(v, "reconnect_window"); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := game.NewBoard(c.BoardWidth, c.BoardHeight, c.WinLength); err != nil {
		return fmt.Errorf("board settings: %w", err)
	}
	if c.BotSolveBelow < 0 {
		return fmt.Errorf("bot_solve_below must not be negative, got %d", c.BotSolveBelow)
	}
	if c.SolveMaxEmpties < 0 {
		return fmt.Errorf("solve_max_empties must not be negative, got %d", c.SolveMaxEmpties)
	}
	if c.SolveConcurrency < 1 {
		return fmt.Errorf("solve_concurrency must be at least 1, got %d", c.SolveConcurrency)
	}
	if c.CacheMemoryFraction < 0 || c.CacheMemoryFraction > 1 {
		return fmt.Errorf("cache_memory_fraction must be within [0,1], got %v", c.CacheMemoryFraction)
	}
	return nil
}

// SanitizedSettings is the config with credentials removed, for logging.
func (c *Config) SanitizedSettings() map[string]any {
	return map[string]any{
		"addr":              c.Addr,
		"debug":             c.Debug,
		"postgres":          c.PostgresURL != "",
		"sqlite_path":       c.SQLitePath,
		"redis":             c.RedisURL != "",
		"kafka_brokers":     c.KafkaBrokers,
		"kafka_topic":       c.KafkaTopic,
		"bot_delay":         c.BotDelay.String(),
		"reconnect_window":  c.ReconnectWindow.String(),
		"bot_solve_below":   c.BotSolveBelow,
		"solver_workers":    c.SolverWorkers,
		"solve_max_empties": c.SolveMaxEmpties,
		"solve_concurrency": c.SolveConcurrency,
		"board":             fmt.Sprintf("%dx%d/%d", c.BoardWidth, c.BoardHeight, c.WinLength),
	}
}

// duration accepts a plain number of seconds or a Go duration string.
func duration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
