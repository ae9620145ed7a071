package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	LocalStore   LocalStoreConfig
	Sync         SyncConfig
	Connectivity ConnectivityConfig
	Retention    RetentionConfig
	StatusRedis  StatusRedisConfig
	Export       ExportConfig
	CORS         CORSConfig
	Log          LogConfig
}

// LocalStoreConfig points at the embedded SQLite database holding offline records.
type LocalStoreConfig struct {
	Path        string
	BusyTimeout time.Duration
}

// SyncConfig governs uploads to the remote attendance endpoint.
type SyncConfig struct {
	EndpointURL    string
	CSRFToken      string
	Interval       time.Duration
	RequestTimeout time.Duration
	RetryDelay     time.Duration
	MaxRetries     int
}

// ConnectivityConfig controls how the agent decides it is online.
type ConnectivityConfig struct {
	StartOnline   bool
	HealthURL     string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

// RetentionConfig drives the janitor that purges synced records.
type RetentionConfig struct {
	Window          time.Duration
	CleanupInterval time.Duration
}

// StatusRedisConfig toggles publishing status snapshots to Redis.
type StatusRedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	Key      string
	Channel  string
}

// ExportConfig locates archived diagnostic exports.
type ExportConfig struct {
	Dir string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.LocalStore = LocalStoreConfig{
		Path:        v.GetString("LOCAL_DB_PATH"),
		BusyTimeout: parseDuration(v.GetString("LOCAL_DB_BUSY_TIMEOUT"), 5*time.Second),
	}

	maxRetries := v.GetInt("SYNC_MAX_RETRIES")
	if maxRetries <= 0 {
		maxRetries = 3
	}
	cfg.Sync = SyncConfig{
		EndpointURL:    v.GetString("SYNC_ENDPOINT_URL"),
		CSRFToken:      v.GetString("SYNC_CSRF_TOKEN"),
		Interval:       parseDuration(v.GetString("SYNC_INTERVAL"), 30*time.Second),
		RequestTimeout: parseDuration(v.GetString("SYNC_REQUEST_TIMEOUT"), 15*time.Second),
		RetryDelay:     parseDuration(v.GetString("SYNC_RETRY_DELAY"), 2*time.Second),
		MaxRetries:     maxRetries,
	}

	cfg.Connectivity = ConnectivityConfig{
		StartOnline:   v.GetBool("SYNC_START_ONLINE"),
		HealthURL:     v.GetString("SYNC_HEALTH_URL"),
		ProbeInterval: parseDuration(v.GetString("CONNECTIVITY_PROBE_INTERVAL"), 10*time.Second),
		ProbeTimeout:  parseDuration(v.GetString("CONNECTIVITY_PROBE_TIMEOUT"), 2*time.Second),
	}

	cfg.Retention = RetentionConfig{
		Window:          parseDuration(v.GetString("RETENTION_WINDOW"), 7*24*time.Hour),
		CleanupInterval: parseDuration(v.GetString("CLEANUP_INTERVAL"), time.Hour),
	}

	cfg.StatusRedis = StatusRedisConfig{
		Enabled:  v.GetBool("ENABLE_STATUS_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		Key:      v.GetString("STATUS_REDIS_KEY"),
		Channel:  v.GetString("STATUS_REDIS_CHANNEL"),
	}

	cfg.Export = ExportConfig{Dir: v.GetString("EXPORT_DIR")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8089)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("LOCAL_DB_PATH", "./data/attendance.db")
	v.SetDefault("LOCAL_DB_BUSY_TIMEOUT", "5s")

	v.SetDefault("SYNC_ENDPOINT_URL", "http://localhost:8000/instructor/api/sync-attendance/")
	v.SetDefault("SYNC_CSRF_TOKEN", "")
	v.SetDefault("SYNC_INTERVAL", "30s")
	v.SetDefault("SYNC_REQUEST_TIMEOUT", "15s")
	v.SetDefault("SYNC_RETRY_DELAY", "2s")
	v.SetDefault("SYNC_MAX_RETRIES", 3)

	v.SetDefault("SYNC_START_ONLINE", true)
	v.SetDefault("SYNC_HEALTH_URL", "")
	v.SetDefault("CONNECTIVITY_PROBE_INTERVAL", "10s")
	v.SetDefault("CONNECTIVITY_PROBE_TIMEOUT", "2s")

	v.SetDefault("RETENTION_WINDOW", "168h")
	v.SetDefault("CLEANUP_INTERVAL", "1h")

	v.SetDefault("ENABLE_STATUS_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("STATUS_REDIS_KEY", "attendance:sync:status")
	v.SetDefault("STATUS_REDIS_CHANNEL", "attendance:sync:status")

	v.SetDefault("EXPORT_DIR", "./data/exports")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
