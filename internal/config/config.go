// Package config reads application configuration from environment
// variables, with defaults that run the game out of the box.
package config

import (
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

// Config holds all application configuration.
type Config struct {
	Server ServerConfig
	Redis  RedisConfig
	DB     DBConfig
	Game   GameConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string
}

// RedisConfig holds the optional Redis leaderboard backend.
type RedisConfig struct {
	URL string // empty → in-memory leaderboard
}

// DBConfig holds the optional PostgreSQL archive backend.
type DBConfig struct {
	URL string // empty → in-memory archive
}

// GameConfig holds the game rule tunables.
type GameConfig struct {
	StartingCash    decimal.Decimal
	RegistrationFee decimal.Decimal
	MaxPositions    int
	FeeRate         decimal.Decimal
	ExpandCap       decimal.Decimal
	ExpandRate      decimal.Decimal
	YearStep        int
	TickVolatility  decimal.Decimal
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		DB: DBConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Game: GameConfig{
			StartingCash:    getDecimal("STARTING_CASH", "100000"),
			RegistrationFee: getDecimal("REGISTRATION_FEE", "2"),
			MaxPositions:    getInt("MAX_POSITIONS", 5),
			FeeRate:         getDecimal("FEE_RATE", "0.01"),
			ExpandCap:       getDecimal("EXPAND_CAP", "10"),
			ExpandRate:      getDecimal("EXPAND_RATE", "0.5"),
			YearStep:        getInt("YEAR_STEP", 25),
			TickVolatility:  getDecimal("TICK_VOLATILITY", "0.05"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDecimal(key, defaultValue string) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	d, _ := decimal.NewFromString(defaultValue)
	return d
}
