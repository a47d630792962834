package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	DatabaseAutoMigrate   bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	SettingsCacheTTL      time.Duration
	NotifyChannelPrefix   string
	NotifyBuffer          int
	DefaultTaxPercent     decimal.Decimal
	RefundReversesLoyalty bool
	AuthSecret            string
	AccessTokenTTLMinutes int
	ManagerPIN            string
	LoginRateLimit        string
}

// Load reads the process environment. Values in a local .env file fill in
// keys the environment does not set.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] WARN: could not read .env: %v", err)
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL := getInt("ACCESS_TOKEN_TTL_MINUTES", 480)
	cacheTTL := getInt("SETTINGS_CACHE_TTL_SECONDS", 60)

	tax, err := decimal.NewFromString(getEnv("DEFAULT_TAX_PERCENT", "17"))
	if err != nil || tax.IsNegative() || tax.GreaterThan(decimal.NewFromInt(100)) {
		log.Printf("[config] WARN: invalid DEFAULT_TAX_PERCENT, using 17")
		tax = decimal.NewFromInt(17)
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		DatabaseAutoMigrate:   getBool("DATABASE_AUTO_MIGRATE", true),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		SettingsCacheTTL:      time.Duration(cacheTTL) * time.Second,
		NotifyChannelPrefix:   getEnv("NOTIFY_CHANNEL_PREFIX", "ledger:events"),
		NotifyBuffer:          getInt("NOTIFY_BUFFER", 256),
		DefaultTaxPercent:     tax,
		RefundReversesLoyalty: getBool("REFUND_REVERSES_LOYALTY", true),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		ManagerPIN:            strings.TrimSpace(os.Getenv("MANAGER_PIN")),
		LoginRateLimit:        getEnv("LOGIN_RATE_LIMIT", "5-M"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// getInt falls back on unparsable or non-positive values.
func getInt(key string, fallback int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < 1 {
		return fallback
	}
	return val
}

func getBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return val
}
