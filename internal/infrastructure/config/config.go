package config

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/remaimber-it/drivetheory/internal/domain/questionbank"
	"github.com/remaimber-it/drivetheory/internal/remote"
)

type Config struct {
	ServerAddress   string
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	LogLevel        slog.Level

	// Local storage and content
	DBPath          string
	QuestionDataDir string
	DefaultLanguage questionbank.Language
	ImageBaseURL    string

	// Bearer tokens
	JWTSecret string
	JWTIssuer string

	// Remote sync
	RemoteSyncEnabled   bool
	RemoteDatabaseURL   string // Postgres DSN; empty disables remote sync
	RemoteStatsTable    string
	RemoteSessionsTable string
	RemoteTimeout       time.Duration
	SyncInterval        time.Duration
	SyncWorkers         int
}

// RemoteEnabled reports whether completions should be pushed anywhere.
func (c *Config) RemoteEnabled() bool {
	return c.RemoteSyncEnabled && c.RemoteDatabaseURL != ""
}

func (c *Config) RemoteOptions() remote.Options {
	return remote.Options{
		StatsTable:    c.RemoteStatsTable,
		SessionsTable: c.RemoteSessionsTable,
		Timeout:       c.RemoteTimeout,
	}
}

// Load reads the configuration shared by the server and the CLI.
func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()
	return &Config{
		ServerAddress:   getenvDefault("SERVER_ADDRESS", ""),
		ShutdownTimeout: getDurationDefault("SHUTDOWN_TIMEOUT", 10*time.Second),
		CORSOrigins:     getCSV("CORS_ORIGINS"),
		LogLevel:        getLogLevel("LOG_LEVEL"),

		DBPath:          getenvDefault("DB_PATH", "drivetheory.db"),
		QuestionDataDir: getenvDefault("QUESTION_DATA_DIR", "data/questions"),
		DefaultLanguage: questionbank.ParseLanguage(os.Getenv("DEFAULT_LANGUAGE"), questionbank.DefaultLanguage),
		ImageBaseURL:    os.Getenv("IMAGE_BASE_URL"),

		JWTSecret: os.Getenv("AUTH_JWT_SECRET"),
		JWTIssuer: getenvDefault("AUTH_JWT_ISSUER", "drivetheory"),

		RemoteSyncEnabled:   getBoolDefault("REMOTE_SYNC_ENABLED", true),
		RemoteDatabaseURL:   os.Getenv("REMOTE_DATABASE_URL"),
		RemoteStatsTable:    getenvDefault("REMOTE_STATS_TABLE", remote.DefaultStatsTable),
		RemoteSessionsTable: getenvDefault("REMOTE_SESSIONS_TABLE", remote.DefaultSessionsTable),
		RemoteTimeout:       getDurationDefault("REMOTE_TIMEOUT", remote.DefaultTimeout),
		SyncInterval:        getDurationDefault("SYNC_INTERVAL", 15*time.Second),
		SyncWorkers:         getIntDefault("SYNC_WORKERS", 2),
	}
}

// LoadServer is Load plus the settings the HTTP server cannot start without.
func LoadServer() *Config {
	cfg := Load()
	cfg.ServerAddress = mustGetenv("SERVER_ADDRESS")
	cfg.JWTSecret = mustGetenv("AUTH_JWT_SECRET")
	return cfg
}

func mustGetenv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("config: required environment variable %s is not set", k)
	}
	return v
}

func getenvDefault(k, fallback string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return fallback
}

func getDurationDefault(k string, fallback time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("config: %s=%q is not a valid duration: %v", k, v, err)
	}
	return d
}

func getIntDefault(k string, fallback int) int {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("config: %s=%q is not a valid integer: %v", k, v, err)
	}
	return n
}

// getBoolDefault accepts anything strconv.ParseBool does; "0" disables.
func getBoolDefault(k string, fallback bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("config: %s=%q is not a valid boolean: %v", k, v, err)
	}
	return b
}

func getCSV(k string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(k), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getLogLevel(k string) slog.Level {
	var level slog.Level
	if v := os.Getenv(k); v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			log.Fatalf("config: %s=%q is not a valid log level: %v", k, v, err)
		}
	}
	return level
}
