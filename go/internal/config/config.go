// Package config loads the canvas service settings from an optional YAML file,
// a .env file and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/pixelplace/go/internal/dbconfig"
)

// DefaultPalette is the 16-colour palette offered to interactive clients.
// The server never enforces it.
var DefaultPalette = []string{
	"#FFFFFF", "#E4E4E4", "#888888", "#222222",
	"#FFA7D1", "#E50000", "#E59500", "#A06A42",
	"#E5D900", "#94E044", "#02BE01", "#00D3DD",
	"#0083C7", "#0000EA", "#CF6EE4", "#820080",
}

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Canvas holds the tunable grid and timing settings.
type Canvas struct {
	Width                  int      `yaml:"width" json:"width"`
	Height                 int      `yaml:"height" json:"height"`
	PixelSize              int      `yaml:"pixel_size" json:"pixelSize"`
	CooldownSeconds        int      `yaml:"cooldown_seconds" json:"cooldownSeconds"`
	SessionDurationSeconds int      `yaml:"session_duration_seconds" json:"sessionDurationSeconds"`
	Palette                []string `yaml:"palette" json:"palette"`
}

// Cooldown returns the cooldown window.
func (c Canvas) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// SessionDuration returns the length of one session window.
func (c Canvas) SessionDuration() time.Duration {
	return time.Duration(c.SessionDurationSeconds) * time.Second
}

// Cells returns the number of cells in the grid.
func (c Canvas) Cells() int {
	return c.Width * c.Height
}

// Config is the full service configuration.
type Config struct {
	Canvas Canvas `yaml:"canvas"`

	Port              string
	StorageBackend    string
	CooldownBackend   string
	NATSURL           string
	RedisURL          string
	MintServiceURL    string
	MintAPIKey        string
	GatewayPort       string
	HealthPort        string
	// InProcessReconciler runs the sweep scheduler inside the API server.
	InProcessReconciler bool
	ReconcileInterval   time.Duration
	LogLevel          string
	LogFormat         string

	Database dbconfig.Config
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		Canvas: Canvas{
			Width:                  100,
			Height:                 100,
			PixelSize:              10,
			CooldownSeconds:        30,
			SessionDurationSeconds: 6 * 60 * 60,
			Palette:                append([]string(nil), DefaultPalette...),
		},
		Port:                "8080",
		GatewayPort:         "8081",
		HealthPort:          "8082",
		StorageBackend:      BackendPostgres,
		CooldownBackend:     BackendPostgres,
		InProcessReconciler: true,
		ReconcileInterval:   time.Minute,
		LogLevel:            "info",
		LogFormat:           "console",
	}
}

// Load reads .env, then the YAML file named by CANVAS_CONFIG (default
// config.yaml, missing file tolerated), then applies environment overrides.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg := Default()

	path := getEnv("CANVAS_CONFIG", "config.yaml")
	if err := cfg.loadFile(path); err != nil {
		return Config{}, err
	}

	cfg.applyEnv()
	cfg.Database = dbconfig.NewConfigFromEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("path", path).Msg("no canvas config file, using defaults")
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var file struct {
		Canvas Canvas `yaml:"canvas"`
	}
	file.Canvas = c.Canvas
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	c.Canvas = file.Canvas
	return nil
}

func (c *Config) applyEnv() {
	c.Canvas.Width = getEnvAsInt("CANVAS_WIDTH", c.Canvas.Width)
	c.Canvas.Height = getEnvAsInt("CANVAS_HEIGHT", c.Canvas.Height)
	c.Canvas.PixelSize = getEnvAsInt("CANVAS_PIXEL_SIZE", c.Canvas.PixelSize)
	c.Canvas.CooldownSeconds = getEnvAsInt("CANVAS_COOLDOWN_SECONDS", c.Canvas.CooldownSeconds)
	c.Canvas.SessionDurationSeconds = getEnvAsInt("CANVAS_SESSION_DURATION_SECONDS", c.Canvas.SessionDurationSeconds)

	c.Port = getEnv("PORT", c.Port)
	c.StorageBackend = getEnv("STORAGE_BACKEND", c.StorageBackend)
	c.CooldownBackend = getEnv("COOLDOWN_BACKEND", c.CooldownBackend)
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.MintServiceURL = getEnv("MINT_SERVICE_URL", c.MintServiceURL)
	c.MintAPIKey = getEnv("MINT_API_KEY", c.MintAPIKey)
	c.GatewayPort = getEnv("GATEWAY_PORT", c.GatewayPort)
	c.HealthPort = getEnv("HEALTH_PORT", c.HealthPort)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	if v := os.Getenv("IN_PROCESS_RECONCILER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.InProcessReconciler = b
		} else {
			log.Warn().Str("value", v).Msg("invalid IN_PROCESS_RECONCILER, keeping default")
		}
	}

	if v := os.Getenv("RECONCILE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ReconcileInterval = d
		} else {
			log.Warn().Str("value", v).Msg("invalid RECONCILE_INTERVAL, keeping default")
		}
	}
}

// Validate rejects settings the canvas cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Canvas.Width <= 0 || c.Canvas.Height <= 0:
		return fmt.Errorf("canvas dimensions must be positive, got %dx%d", c.Canvas.Width, c.Canvas.Height)
	case c.Canvas.PixelSize <= 0:
		return fmt.Errorf("pixel size must be positive, got %d", c.Canvas.PixelSize)
	case c.Canvas.CooldownSeconds <= 0:
		return fmt.Errorf("cooldown must be positive, got %d", c.Canvas.CooldownSeconds)
	case c.Canvas.SessionDurationSeconds <= 0:
		return fmt.Errorf("session duration must be positive, got %d", c.Canvas.SessionDurationSeconds)
	case c.ReconcileInterval <= 0:
		return fmt.Errorf("reconcile interval must be positive, got %s", c.ReconcileInterval)
	}

	switch c.StorageBackend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	switch c.CooldownBackend {
	case BackendPostgres, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown cooldown backend %q", c.CooldownBackend)
	}
	if c.CooldownBackend == BackendRedis && c.RedisURL == "" {
		return errors.New("REDIS_URL is required for the redis cooldown backend")
	}
	if c.CooldownBackend == BackendPostgres && c.StorageBackend == BackendMemory {
		return errors.New("postgres cooldown backend requires postgres storage")
	}
	return nil
}

// SetupLogger configures the global zerolog logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) SetupLogger() {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if c.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
