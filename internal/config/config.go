package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Remote    RemoteConfig
	Monitor   MonitorConfig
	Sync      SyncConfig
	Server    ServerConfig
	Journal   JournalConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Logging   LoggingConfig
}

type RemoteConfig struct {
	URL            string
	HealthPath     string
	RouteHint      string
	RequestTimeout time.Duration
	Token          string
	TokenFile      string
}

type MonitorConfig struct {
	Interval      time.Duration
	Timeout       time.Duration
	Confirmations int
}

type SyncConfig struct {
	RefetchRetries int
}

type ServerConfig struct {
	Port string
	Host string
}

// JournalConfig points at the CouchDB database that persists the outbox.
// An empty URL keeps queued mutations in memory only.
type JournalConfig struct {
	URL  string
	Name string
}

type WebSocketConfig struct {
	Enabled    bool
	MaxClients int
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

func (l LoggingConfig) Debug() bool { return l.Level == "debug" }

// Load reads envFiles (or .env when none is given) into the environment and
// builds the config. Missing files are not an error.
func Load(envFiles ...string) (*Config, error) {
	godotenv.Load(envFiles...)

	requestTimeout, err := getEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	probeInterval, err := getEnvAsDuration("PROBE_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, err
	}
	probeTimeout, err := getEnvAsDuration("PROBE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Remote: RemoteConfig{
			URL:            getEnv("API_URL", "http://localhost:3000"),
			HealthPath:     getEnv("HEALTH_PATH", "/api/health"),
			RouteHint:      getEnv("ROUTE_HINT", ""),
			RequestTimeout: requestTimeout,
			Token:          getEnv("AUTH_TOKEN", ""),
			TokenFile:      getEnv("AUTH_TOKEN_FILE", ""),
		},
		Monitor: MonitorConfig{
			Interval:      probeInterval,
			Timeout:       probeTimeout,
			Confirmations: getEnvAsInt("PROBE_CONFIRMATIONS", 2),
		},
		Sync: SyncConfig{
			RefetchRetries: getEnvAsInt("REFETCH_RETRIES", 3),
		},
		Server: ServerConfig{
			Port: getEnv("PORT", "8765"),
			Host: getEnv("HOST", "127.0.0.1"),
		},
		Journal: JournalConfig{
			URL:  getEnv("JOURNAL_URL", ""),
			Name: getEnv("JOURNAL_DB", "notesync_outbox"),
		},
		WebSocket: WebSocketConfig{
			Enabled:    getEnvAsBool("WS_ENABLED", true),
			MaxClients: getEnvAsInt("WS_MAX_CLIENTS", 16),
			WriteWait:  10 * time.Second,
			PongWait:   60 * time.Second,
			PingPeriod: 54 * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type"),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 10),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
		},
	}

	if cfg.Monitor.Confirmations < 1 {
		return nil, fmt.Errorf("invalid PROBE_CONFIRMATIONS: %d", cfg.Monitor.Confirmations)
	}
	if cfg.Sync.RefetchRetries < 0 {
		return nil, fmt.Errorf("invalid REFETCH_RETRIES: %d", cfg.Sync.RefetchRetries)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
