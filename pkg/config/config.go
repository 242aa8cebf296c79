// Package config loads environment-driven settings for the trading
// platform.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings.
type Config struct {
	Port string

	// Binance
	BinanceTestnet   bool
	BinanceAPIKey    string
	BinanceAPISecret string

	// Bybit
	BybitTestnet   bool
	BybitAPIKey    string
	BybitAPISecret string

	// Symbols to watch on startup
	Symbols []string

	// Strategy definition file
	StrategyConfigPath string

	// Database
	DBPath string

	// Default account the single-tenant deployment runs as
	UserID string

	// Auth
	JWTSecret string

	// API rate limiting (requests per second per client IP)
	APIRateLimit float64
	APIRateBurst int
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:               getEnv("PORT", "8080"),
		BinanceTestnet:     getEnv("BINANCE_TESTNET", "true") == "true",
		BinanceAPIKey:      os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret:   os.Getenv("BINANCE_API_SECRET"),
		BybitTestnet:       getEnv("BYBIT_TESTNET", "true") == "true",
		BybitAPIKey:        os.Getenv("BYBIT_API_KEY"),
		BybitAPISecret:     os.Getenv("BYBIT_API_SECRET"),
		Symbols:            splitAndTrim(getEnv("SYMBOLS", "BTCUSDT,ETHUSDT")),
		StrategyConfigPath: getEnv("STRATEGY_CONFIG_PATH", "./strategies.yaml"),
		DBPath:             getEnv("DB_PATH", "./data/autotrader.db"),
		UserID:             getEnv("USER_ID", "default"),
		JWTSecret:          getEnv("JWT_SECRET", "dev-secret"),
		APIRateLimit:       getEnvFloat("API_RATE_LIMIT", 20),
		APIRateBurst:       getEnvInt("API_RATE_BURST", 40),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
