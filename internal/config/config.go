package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"tasktracker/tasks-api/internal/password"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	HTTP         HTTPConfig
	Env          string
	LogDebug     bool
	Database     DatabaseConfig
	RedisURL     string
	Auth         AuthConfig
	Argon2       Argon2Config
	S3           S3Config
	CSRF         CSRFConfig
	AuditLogFile string
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL         string
	AutoMigrate bool
	ConnectWait time.Duration
}

type AuthConfig struct {
	CookieName        string
	SessionTTL        time.Duration
	CleanupInterval   time.Duration
	BootstrapUsername string
	BootstrapPassword string
	// UserStateFile backs the user store when no database is configured.
	UserStateFile string
}

type Argon2Config struct {
	MemoryKiB   uint32
	Time        uint32
	Parallelism uint8
}

type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

type CSRFConfig struct {
	TrustedOrigins []string
}

func (c Config) Production() bool {
	return c.Env == EnvProduction
}

func Load() (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			ReadTimeout:     time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SEC", 10)) * time.Second,
			WriteTimeout:    time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SEC", 15)) * time.Second,
			ShutdownTimeout: time.Duration(getEnvInt("HTTP_SHUTDOWN_TIMEOUT_SEC", 20)) * time.Second,
		},
		Env:      getEnv("APP_ENV", EnvDevelopment),
		LogDebug: getEnvBool("LOG_DEBUG", false),
		Database: DatabaseConfig{
			URL:         getEnv("DATABASE_URL", ""),
			AutoMigrate: getEnvBool("DATABASE_AUTO_MIGRATE", true),
			ConnectWait: time.Duration(getEnvInt("DATABASE_CONNECT_WAIT_SEC", 30)) * time.Second,
		},
		RedisURL: getEnv("REDIS_URL", ""),
		Auth: AuthConfig{
			CookieName:        getEnv("AUTH_COOKIE_NAME", "auth_session"),
			SessionTTL:        time.Duration(getEnvInt("AUTH_SESSION_TTL_SEC", 30*24*3600)) * time.Second,
			CleanupInterval:   time.Duration(getEnvInt("AUTH_SESSION_CLEANUP_SEC", 3600)) * time.Second,
			BootstrapUsername: getEnv("AUTH_BOOTSTRAP_USERNAME", ""),
			BootstrapPassword: getEnv("AUTH_BOOTSTRAP_PASSWORD", ""),
			UserStateFile:     getEnv("AUTH_USER_STATE_FILE", "./data/users.json"),
		},
		S3: S3Config{
			Bucket:        getEnv("S3_BUCKET", ""),
			Region:        getEnv("S3_REGION", "us-east-1"),
			Endpoint:      getEnv("S3_ENDPOINT", ""),
			AccessKey:     getEnv("S3_ACCESS_KEY", ""),
			SecretKey:     getEnv("S3_SECRET_KEY", ""),
			PublicBaseURL: getEnv("S3_PUBLIC_BASE_URL", ""),
		},
		CSRF: CSRFConfig{
			TrustedOrigins: getEnvList("CSRF_TRUSTED_ORIGINS"),
		},
		AuditLogFile: getEnv("AUDIT_LOG_FILE", "./data/audit.log"),
	}

	argonMemory := getEnvInt("ARGON2_MEMORY_KIB", 19*1024)
	if argonMemory < 1 || argonMemory > int(password.MaxMemoryKiB) {
		return Config{}, fmt.Errorf("ARGON2_MEMORY_KIB must be between 1 and %d", password.MaxMemoryKiB)
	}
	argonTime := getEnvInt("ARGON2_TIME", 2)
	if argonTime < 1 || argonTime > int(password.MaxTime) {
		return Config{}, fmt.Errorf("ARGON2_TIME must be between 1 and %d", password.MaxTime)
	}
	argonParallelism := getEnvInt("ARGON2_PARALLELISM", 1)
	if argonParallelism < 1 || argonParallelism > int(password.MaxParallelism) {
		return Config{}, fmt.Errorf("ARGON2_PARALLELISM must be between 1 and %d", password.MaxParallelism)
	}
	cfg.Argon2 = Argon2Config{
		MemoryKiB:   uint32(argonMemory),
		Time:        uint32(argonTime),
		Parallelism: uint8(argonParallelism),
	}

	if cfg.HTTP.Addr == "" {
		return Config{}, fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if cfg.Env != EnvDevelopment && cfg.Env != EnvProduction {
		return Config{}, fmt.Errorf("APP_ENV must be %q or %q", EnvDevelopment, EnvProduction)
	}
	if cfg.Auth.CookieName == "" {
		return Config{}, fmt.Errorf("AUTH_COOKIE_NAME must not be empty")
	}
	if cfg.Auth.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("AUTH_SESSION_TTL_SEC must be > 0")
	}
	if cfg.Auth.CleanupInterval <= 0 {
		return Config{}, fmt.Errorf("AUTH_SESSION_CLEANUP_SEC must be > 0")
	}
	if (cfg.Auth.BootstrapUsername == "") != (cfg.Auth.BootstrapPassword == "") {
		return Config{}, fmt.Errorf("AUTH_BOOTSTRAP_USERNAME and AUTH_BOOTSTRAP_PASSWORD must be set together")
	}
	if cfg.Database.URL == "" && cfg.Auth.UserStateFile == "" {
		return Config{}, fmt.Errorf("AUTH_USER_STATE_FILE must not be empty without DATABASE_URL")
	}
	if cfg.S3.AccessKey != "" && cfg.S3.SecretKey == "" {
		return Config{}, fmt.Errorf("S3_SECRET_KEY is required with S3_ACCESS_KEY")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
