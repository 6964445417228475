package config

import (
	"os"      // For environment variables
	"strconv" // For string to int conversion

	"github.com/joho/godotenv" // For loading .env files
)

// Config holds the application configuration. It is built once in main and
// passed into constructors; there is no process-wide mutable instance.
type Config struct {
	AppPort    string // Application port
	DBUser     string // Database user
	DBPassword string // Database password
	DBHost     string // Database host
	DBPort     string // Database port
	DBName     string // Database name
	JWTSecret  string // JWT secret key
	RedisAddr  string // Redis server address
	RedisPass  string // Redis password
	RedisDB    int    // Redis database number
	CacheTTL   int    // Cache TTL in seconds
	IsProd     bool   // Is production environment

	BanescoAuthURL      string // Banesco OAuth token endpoint
	BanescoAPIURL       string // Banesco API base URL
	BanescoClientID     string // OAuth client id
	BanescoClientSecret string // OAuth client secret
	BanescoTimeout      int    // Provider request timeout in seconds
	BanescoRateLimit    int    // Calls per minute per transaction id
	TokenSafetyMargin   int    // Seconds subtracted from the token lifetime
	RetryAttempts       int    // Max attempts per provider call
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	return &Config{
		AppPort:    getEnv("APP_PORT", "8080"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBName:     os.Getenv("DB_NAME"),
		JWTSecret:  os.Getenv("JWT_SECRET"),
		RedisAddr:  getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:  os.Getenv("REDIS_PASS"),
		RedisDB:    getEnvInt("REDIS_DB", 0),
		CacheTTL:   getEnvInt("CACHE_TTL", 300),
		IsProd:     os.Getenv("IS_PROD") == "true",

		BanescoAuthURL:      os.Getenv("BANESCO_AUTH_URL"),
		BanescoAPIURL:       os.Getenv("BANESCO_API_URL"),
		BanescoClientID:     os.Getenv("BANESCO_CLIENT_ID"),
		BanescoClientSecret: os.Getenv("BANESCO_CLIENT_SECRET"),
		BanescoTimeout:      getEnvInt("BANESCO_TIMEOUT", 30),
		BanescoRateLimit:    getEnvInt("BANESCO_RATE_LIMIT", 2),
		TokenSafetyMargin:   getEnvInt("TOKEN_SAFETY_MARGIN", 60),
		RetryAttempts:       getEnvInt("RETRY_ATTEMPTS", 3),
	}
}

// DSN builds the MySQL data source name
func (c *Config) DSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?charset=utf8mb4&parseTime=true"
}

// getEnv reads an environment variable with a fallback
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt reads an integer environment variable with a fallback
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
