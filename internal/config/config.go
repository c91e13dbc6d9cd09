package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all configuration
type Config struct {
	MySQL    MySQLConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Vercel   VercelConfig
	CORS     CORSConfig
	Migrate  bool
	HTTPAddr string
	// StatusCacheTTLSec bounds how often the status endpoint may hit
	// the provider per hostname. 0 disables the cache.
	StatusCacheTTLSec int
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	DSN string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
	Issuer        string
}

// VercelConfig holds the hosting provider credentials. The token and
// project id are required for domain provisioning; team id is only
// needed for team-scoped projects.
type VercelConfig struct {
	Token     string
	ProjectID string
	TeamID    string
}

// CORSConfig holds the fixed origin allow-list.
type CORSConfig struct {
	AllowedOrigins []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getEnv("MYSQL_DSN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASS", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:        os.Getenv("JWT_SECRET"),
			ExpireMinutes: getEnvInt("JWT_EXPIRE_MINUTES", 1440),
			Issuer:        getEnv("JWT_ISSUER", "agencyhub"),
		},
		Vercel: VercelConfig{
			Token:     os.Getenv("VERCEL_TOKEN"),
			ProjectID: os.Getenv("VERCEL_PROJECT_ID"),
			TeamID:    os.Getenv("VERCEL_TEAM_ID"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "https://app.agencyhub.com")),
		},
		Migrate:           getEnv("MIGRATE", "0") == "1",
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		StatusCacheTTLSec: getEnvInt("STATUS_CACHE_TTL_SEC", 10),
	}

	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN is required")
	}

	return cfg, nil
}

// LoadFromINI loads configuration from an INI file with environment
// variable override. Priority: ENV > INI > default.
func LoadFromINI(iniPath string) (*Config, error) {
	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	getValue := func(envKey, iniSection, iniKey, defaultValue string) string {
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		if value := cfgFile.Section(iniSection).Key(iniKey).String(); value != "" {
			return value
		}
		return defaultValue
	}

	getValueInt := func(envKey, iniSection, iniKey string, defaultValue int) int {
		if value := os.Getenv(envKey); value != "" {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Int(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getValue("MYSQL_DSN", "mysql", "dsn", ""),
		},
		Redis: RedisConfig{
			Addr:     getValue("REDIS_ADDR", "redis", "addr", "localhost:6379"),
			Password: getValue("REDIS_PASS", "redis", "password", ""),
			DB:       getValueInt("REDIS_DB", "redis", "db", 0),
		},
		JWT: JWTConfig{
			Secret:        getValue("JWT_SECRET", "jwt", "secret", ""),
			ExpireMinutes: getValueInt("JWT_EXPIRE_MINUTES", "jwt", "expire_minutes", 1440),
			Issuer:        getValue("JWT_ISSUER", "jwt", "issuer", "agencyhub"),
		},
		Vercel: VercelConfig{
			Token:     getValue("VERCEL_TOKEN", "vercel", "token", ""),
			ProjectID: getValue("VERCEL_PROJECT_ID", "vercel", "project_id", ""),
			TeamID:    getValue("VERCEL_TEAM_ID", "vercel", "team_id", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(getValue("ALLOWED_ORIGINS", "cors", "allowed_origins", "https://app.agencyhub.com")),
		},
		Migrate:           getValue("MIGRATE", "app", "migrate", "0") == "1",
		HTTPAddr:          getValue("HTTP_ADDR", "app", "http_addr", ":8080"),
		StatusCacheTTLSec: getValueInt("STATUS_CACHE_TTL_SEC", "app", "status_cache_ttl_sec", 10),
	}

	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
