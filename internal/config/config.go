package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Docker   DockerConfig
	Liveness LivenessConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret               string
	OperatorTokenTTLMinutes int
	OperatorPasswordHash    string
	BcryptCost              int
	PostBootTTLMinutes      int
}

// DockerConfig describes how workspace containers are created.
type DockerConfig struct {
	Image              string
	MountRoot          string
	AdvertiseAddr      string
	HostPort           string
	CallTimeoutSeconds int
	StopTimeoutSeconds int
}

// LivenessConfig tunes heartbeat tracking and the reconciliation sweep.
type LivenessConfig struct {
	ThresholdSeconds     int
	SweepIntervalSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "workspace-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:               getEnv("AUTH_JWT_SECRET", "dev-secret"),
			OperatorTokenTTLMinutes: getEnvAsInt("AUTH_OPERATOR_TOKEN_TTL_MINUTES", 60),
			OperatorPasswordHash:    os.Getenv("AUTH_OPERATOR_PASSWORD_HASH"),
			BcryptCost:              getEnvAsInt("AUTH_BCRYPT_COST", 12),
			PostBootTTLMinutes:      getEnvAsInt("AUTH_POST_BOOT_TTL_MINUTES", 60),
		},
		Docker: DockerConfig{
			Image:              getEnv("WORKSPACE_IMAGE", "triton/workspace:latest"),
			MountRoot:          getEnv("WORKSPACE_MOUNT_ROOT", "/data/workspaces"),
			AdvertiseAddr:      getEnv("BACKEND_ADVERTISE_ADDR", "http://127.0.0.1:8080"),
			HostPort:           getEnv("WORKSPACE_HOST_PORT", "80"),
			CallTimeoutSeconds: getEnvAsInt("DOCKER_CALL_TIMEOUT_SECONDS", 60),
			StopTimeoutSeconds: getEnvAsInt("DOCKER_STOP_TIMEOUT_SECONDS", 10),
		},
		Liveness: LivenessConfig{
			ThresholdSeconds:     getEnvAsInt("LIVENESS_THRESHOLD_SECONDS", 300),
			SweepIntervalSeconds: getEnvAsInt("LIVENESS_SWEEP_INTERVAL_SECONDS", 60),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// PostBootTTL returns the expiry applied to unconsumed post-boot tokens.
func (a AuthConfig) PostBootTTL() time.Duration {
	if a.PostBootTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(a.PostBootTTLMinutes) * time.Minute
}

// CallTimeout bounds individual container-runtime calls.
func (d DockerConfig) CallTimeout() time.Duration {
	if d.CallTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(d.CallTimeoutSeconds) * time.Second
}

// MountSource returns the host path bound into a user's workspace container.
func (d DockerConfig) MountSource(username, assignment string) string {
	return filepath.Join(d.MountRoot, username, assignment)
}

// Threshold returns the staleness cutoff for liveness records.
func (l LivenessConfig) Threshold() time.Duration {
	if l.ThresholdSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(l.ThresholdSeconds) * time.Second
}

// SweepInterval returns how often the reconciliation sweep runs.
func (l LivenessConfig) SweepInterval() time.Duration {
	if l.SweepIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(l.SweepIntervalSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
