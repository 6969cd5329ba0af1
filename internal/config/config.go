package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/integrasaude/hl7-engine/internal/connector"
	"github.com/joho/godotenv"
)

type Config struct {
	ListenPort         int
	WebPort            int
	DataPath           string
	ConnectorsFile     string
	HealthCheckTimeout time.Duration
	LogLevel           string

	Connectors []connector.Config
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenPort:         getEnvAsInt("MLLP_LISTEN_PORT", 7011),
		WebPort:            getEnvAsInt("WEB_PORT", 5680),
		DataPath:           getEnv("DATA_PATH", "/data/hl7-engine"),
		ConnectorsFile:     getEnv("CONNECTORS_FILE", "connectors.json"),
		HealthCheckTimeout: getEnvAsDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}

	setupLogger(cfg.LogLevel)

	if err := cfg.loadConnectors(); err != nil {
		return nil, err
	}

	slog.Info("configuration loaded",
		"listenPort", cfg.ListenPort,
		"webPort", cfg.WebPort,
		"connectors", len(cfg.Connectors),
	)

	return cfg, nil
}

// loadConnectors reads the connector declarations. A missing file is not an
// error: the engine still accepts inbound traffic with zero outbound
// connectors configured.
func (c *Config) loadConnectors() error {
	data, err := os.ReadFile(c.ConnectorsFile)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("connectors file not found, starting without outbound connectors",
				"path", c.ConnectorsFile)
			return nil
		}
		return fmt.Errorf("read connectors file: %w", err)
	}

	var decl struct {
		Connectors []connector.Config `json:"connectors"`
	}
	if err := json.Unmarshal(data, &decl); err != nil {
		return fmt.Errorf("parse connectors file %s: %w", c.ConnectorsFile, err)
	}
	c.Connectors = decl.Connectors
	return nil
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	slog.SetDefault(logger)
}
