package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// placeholderAPIKey is the value shipped in sample env files.
const placeholderAPIKey = "your-openai-api-key-here"

// Config holds all application configuration
type Config struct {
	Env      string
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	OpenAI   OpenAIConfig
	Clinical ClinicalConfig
	OTEL     OTELConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// OpenAIConfig holds OpenAI configuration
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Organization   string
	RecModel       string
	ChatModel      string
	Transports     []string
	RateLimitRPM   int
	RateLimitBurst int
	HTTPTimeout    time.Duration
}

// ClinicalConfig holds the workflow knobs of the recommendation engine and intake scheduler
type ClinicalConfig struct {
	DemoMode            bool
	HeuristicFallback   bool
	IntakeTimezone      string
	GenerateRateLimit   int
	GenerateRateWindow  time.Duration
	HistoryWindowDays   int
	DailyReadingLimit   int
	MaxActiveDoctorLink int
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Load loads configuration from environment variables.
// A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", nil),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "bpcare"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		OpenAI: OpenAIConfig{
			APIKey:         strings.TrimSpace(getEnv("OPENAI_API_KEY", "")),
			BaseURL:        strings.TrimRight(getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
			Organization:   getEnv("OPENAI_ORG", ""),
			RecModel:       getEnv("OPENAI_REC_MODEL", "gpt-4o"),
			ChatModel:      getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			Transports:     getEnvAsList("OPENAI_TRANSPORTS", []string{"responses", "chat"}),
			RateLimitRPM:   getEnvAsInt("OPENAI_RATE_LIMIT_RPM", 60),
			RateLimitBurst: getEnvAsInt("OPENAI_RATE_LIMIT_BURST", 5),
			HTTPTimeout:    getEnvAsDuration("OPENAI_HTTP_TIMEOUT", 20*time.Second),
		},
		Clinical: ClinicalConfig{
			DemoMode:            getEnvAsBool("DEMO_MODE", false),
			HeuristicFallback:   getEnvAsBool("HEURISTIC_FALLBACK", true),
			IntakeTimezone:      getEnv("INTAKE_TIMEZONE", "Local"),
			GenerateRateLimit:   getEnvAsInt("GENERATE_RATE_LIMIT", 10),
			GenerateRateWindow:  getEnvAsDuration("GENERATE_RATE_WINDOW", time.Hour),
			HistoryWindowDays:   getEnvAsInt("HISTORY_WINDOW_DAYS", 30),
			DailyReadingLimit:   getEnvAsInt("DAILY_READING_LIMIT", 5),
			MaxActiveDoctorLink: getEnvAsInt("MAX_ACTIVE_DOCTOR_LINKS", 4),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "bpcare"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
	}

	if _, err := cfg.Clinical.Location(); err != nil {
		return nil, fmt.Errorf("invalid INTAKE_TIMEZONE %q: %w", cfg.Clinical.IntakeTimezone, err)
	}

	return cfg, nil
}

// Configured reports whether a usable API key is present
func (c *OpenAIConfig) Configured() bool {
	return c.APIKey != "" && c.APIKey != placeholderAPIKey
}

// Location resolves the intake timezone used for day windows and time slots
func (c *ClinicalConfig) Location() (*time.Location, error) {
	if c.IntakeTimezone == "" || c.IntakeTimezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.IntakeTimezone)
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
