package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Status API
	Port string
	Env  string // development, staging, production

	// Venue
	Kite KiteConfig

	// Trading session
	Trading TradingConfig

	// Trade ledger
	Ledger LedgerConfig

	// Database (postgres ledger)
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// KiteConfig holds Zerodha Kite web session configuration
type KiteConfig struct {
	UserID     string
	Password   string
	TOTPSecret string // base32 MFA secret

	AuthURL        string
	OMSURL         string
	WSURL          string
	InstrumentsURL string
	UserAgent      string

	// 거래소 REST 호출 한도 (초당)
	RequestsPerSecond int
}

// TradingConfig holds the session loop configuration
type TradingConfig struct {
	ParamsFile   string
	Timezone     string
	PollInterval time.Duration
	Workers      int // 0 = runtime.NumCPU()

	// Broker retry policy
	MaxAttempts int
	LTPAttempts int

	// Daemon schedules (cron with seconds)
	SessionCron     string
	InstrumentsCron string

	Exchanges []string
}

// LedgerConfig selects the trade ledger backend
type LedgerConfig struct {
	Driver     string // sqlite, postgres
	SQLitePath string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Location returns the exchange time zone
func (t TradingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.FixedZone("IST", 5*60*60+30*60)
	}
	return loc
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		Kite: KiteConfig{
			UserID:            getEnv("KITE_USER_ID", ""),
			Password:          getEnv("KITE_PASSWORD", ""),
			TOTPSecret:        getEnv("KITE_TOTP_SECRET", ""),
			AuthURL:           getEnv("KITE_AUTH_URL", "https://kite.zerodha.com/api"),
			OMSURL:            getEnv("KITE_OMS_URL", "https://kite.zerodha.com/oms"),
			WSURL:             getEnv("KITE_WS_URL", "wss://ws.zerodha.com"),
			InstrumentsURL:    getEnv("KITE_INSTRUMENTS_URL", "https://api.kite.trade/instruments"),
			UserAgent:         getEnv("KITE_USER_AGENT", "kite3-web"),
			RequestsPerSecond: getEnvAsInt("KITE_REQUESTS_PER_SECOND", 8),
		},

		Trading: TradingConfig{
			ParamsFile:      getEnv("TRADING_PARAMS_FILE", "parameters.yaml"),
			Timezone:        getEnv("TRADING_TIMEZONE", "Asia/Kolkata"),
			PollInterval:    getEnvAsDuration("TRADING_POLL_INTERVAL", "50ms"),
			Workers:         getEnvAsInt("TRADING_WORKERS", 0),
			MaxAttempts:     getEnvAsInt("BROKER_MAX_ATTEMPTS", 2),
			LTPAttempts:     getEnvAsInt("BROKER_LTP_ATTEMPTS", 10),
			SessionCron:     getEnv("TRADING_SESSION_CRON", "0 10 9 * * MON-FRI"),
			InstrumentsCron: getEnv("TRADING_INSTRUMENTS_CRON", "0 45 8 * * MON-FRI"),
			Exchanges:       getEnvAsList("TRADING_EXCHANGES", "NFO,NSE"),
		},

		Ledger: LedgerConfig{
			Driver:     getEnv("LEDGER_DRIVER", "sqlite"),
			SQLitePath: getEnv("LEDGER_SQLITE_PATH", "trades.db"),
		},

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.Ledger.Driver {
	case "sqlite":
		if c.Ledger.SQLitePath == "" {
			return fmt.Errorf("LEDGER_SQLITE_PATH is required for the sqlite ledger")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres ledger")
		}
	default:
		return fmt.Errorf("LEDGER_DRIVER must be one of: sqlite, postgres")
	}

	if _, err := time.LoadLocation(c.Trading.Timezone); err != nil {
		return fmt.Errorf("TRADING_TIMEZONE invalid: %w", err)
	}

	if c.Trading.MaxAttempts < 1 || c.Trading.LTPAttempts < 1 {
		return fmt.Errorf("BROKER_MAX_ATTEMPTS and BROKER_LTP_ATTEMPTS must be >= 1")
	}

	if c.Trading.Workers < 0 {
		return fmt.Errorf("TRADING_WORKERS must be >= 0")
	}

	return nil
}

// RequireKite checks the venue credentials; only commands that log in call it
func (c *Config) RequireKite() error {
	if c.Kite.UserID == "" || c.Kite.Password == "" || c.Kite.TOTPSecret == "" {
		return fmt.Errorf("KITE_USER_ID, KITE_PASSWORD and KITE_TOTP_SECRET are required")
	}
	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

func getEnvAsList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)

	values := make([]string, 0)
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, strings.ToUpper(v))
		}
	}
	return values
}
