package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Server struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"` // ["*"] allows any origin
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

type Book struct {
	Symbol   string `yaml:"symbol"`
	MaxDepth int    `yaml:"max_depth"` // levels per side in aggregated views
}

// Feed configures the built-in synthetic market-data feed. Disable it when
// an external collector posts snapshots to the API instead.
type Feed struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Levels   int           `yaml:"levels"`
	MidPrice float64       `yaml:"mid_price"`
	TickSize float64       `yaml:"tick_size"`
	Seed     int64         `yaml:"seed"`
}

type Model struct {
	ImpactMode string `yaml:"impact_mode"` // closed_form | depth_walk
}

type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // empty logs to stdout only
}

type Config struct {
	Server Server `yaml:"server"`
	Book   Book   `yaml:"book"`
	Feed   Feed   `yaml:"feed"`
	Model  Model  `yaml:"model"`
	Log    Log    `yaml:"log"`
}

func Default() Config {
	return Config{
		Server: Server{
			Addr:           ":8000",
			AllowedOrigins: []string{"*"},
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   10 * time.Second,
		},
		Book: Book{
			Symbol:   "BTC-USDT",
			MaxDepth: 10,
		},
		Feed: Feed{
			Enabled:  true,
			Interval: 100 * time.Millisecond,
			Levels:   20,
			MidPrice: 65000,
			TickSize: 0.1,
			Seed:     1,
		},
		Model: Model{ImpactMode: "closed_form"},
		Log:   Log{Level: "info"},
	}
}

// LoadFromEnv builds the configuration.
// Priority: ENV > .env file > CONFIG_FILE (yaml) > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func loadYAML(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("SYMBOL"); v != "" {
		cfg.Book.Symbol = v
	}
	if v := os.Getenv("IMPACT_MODE"); v != "" {
		cfg.Model.ImpactMode = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("ENABLE_FEED"); v != "" {
		cfg.Feed.Enabled = v == "true" || v == "1"
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"MAX_DEPTH", &cfg.Book.MaxDepth},
		{"FEED_LEVELS", &cfg.Feed.Levels},
	}
	for _, e := range ints {
		if v := os.Getenv(e.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
			*e.dst = n
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"FEED_MID_PRICE", &cfg.Feed.MidPrice},
		{"FEED_TICK_SIZE", &cfg.Feed.TickSize},
	}
	for _, e := range floats {
		if v := os.Getenv(e.key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
			*e.dst = f
		}
	}

	if v := os.Getenv("FEED_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FEED_INTERVAL_MS: %w", err)
		}
		cfg.Feed.Interval = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("FEED_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("FEED_SEED: %w", err)
		}
		cfg.Feed.Seed = seed
	}
	return nil
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr must not be empty")
	}
	if c.Book.MaxDepth <= 0 {
		return fmt.Errorf("max depth must be positive, got %d", c.Book.MaxDepth)
	}
	if c.Feed.Enabled {
		if c.Feed.Interval <= 0 {
			return fmt.Errorf("feed interval must be positive, got %s", c.Feed.Interval)
		}
		if c.Feed.TickSize <= 0 || c.Feed.MidPrice <= 0 {
			return fmt.Errorf("feed mid price and tick size must be positive")
		}
	}
	switch strings.ToLower(c.Model.ImpactMode) {
	case "", "closed_form", "depth_walk":
	default:
		return fmt.Errorf("unknown impact mode %q", c.Model.ImpactMode)
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
