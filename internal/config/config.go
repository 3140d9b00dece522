// Package config loads broker runtime configuration from the environment,
// following the teacher's envOrDefault/envIntOrDefault/envCSVOrDefault idiom
// (previously duplicated across the ingestion and matcher services).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration for the copy-trading broker (spec.md §6).
type Config struct {
	Environment string
	HTTPAddr    string
	WebhookID   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers []string

	ExchangeCommands     string
	ExchangeTradeEvents  string
	ExchangeNotifications string
	ExchangeDeadLetter   string

	QueueSubscriptionCommands string
	QueueKOLManagement        string
	QueueServiceCommands      string
	QueueKOLTradeDetected     string
	QueueCopyTradeRequests    string
	QueueCopyTradeCompleted   string
	QueueClientNotifications  string
	QueueServiceStatus        string
	QueueDeadLetter           string
	QueueRPC                  string

	MaxConcurrentTrades int
	RetryAttempts       int
	RetryBaseDelay      time.Duration
	ProcessingTimeout   time.Duration

	TradeHistoryTTL time.Duration
	CounterTTL      time.Duration

	ProviderBaseURL string
	ProviderAPIKey  string

	MLScorerURL          string
	MLScorerTimeout      time.Duration
	MLScoredKOLWallets   []string
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) (int, error) {
	if raw := os.Getenv(key); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return val, nil
	}
	return def, nil
}

func envDurationOrDefault(key string, def time.Duration) (time.Duration, error) {
	if raw := os.Getenv(key); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return def, nil
}

func envCSVOrDefault(key, def string) []string {
	raw := envOrDefault(key, def)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// namespaced prefixes a bus/KV name with the environment, per spec.md §6:
// "In non-production environments, every exchange and queue name is
// prefixed with {environment}_" (and KV keys with "{environment}:").
func namespaced(environment, sep, name string) string {
	if environment == "" || environment == "production" {
		return name
	}
	return environment + sep + name
}

// Namespace applies the environment prefix used for bus exchange/queue names.
func (c Config) Namespace(name string) string {
	return namespaced(c.Environment, "_", name)
}

// KVNamespace applies the environment prefix used for KV store keys.
func (c Config) KVNamespace(key string) string {
	return namespaced(c.Environment, ":", key)
}

// Load loads configuration from environment variables.
func Load() (Config, error) {
	redisDB, err := envIntOrDefault("REDIS_DB", 0)
	if err != nil {
		return Config{}, err
	}
	maxConcurrent, err := envIntOrDefault("MAX_CONCURRENT_TRADES", 10)
	if err != nil {
		return Config{}, err
	}
	retryAttempts, err := envIntOrDefault("RETRY_ATTEMPTS", 5)
	if err != nil {
		return Config{}, err
	}
	retryBaseDelay, err := envDurationOrDefault("RETRY_BASE_DELAY", time.Second)
	if err != nil {
		return Config{}, err
	}
	processingTimeout, err := envDurationOrDefault("PROCESSING_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	tradeHistoryTTL, err := envDurationOrDefault("TRADE_HISTORY_TTL", 24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	counterTTL, err := envDurationOrDefault("COUNTER_TTL", 24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	mlTimeout, err := envDurationOrDefault("ML_SCORER_TIMEOUT", 2*time.Second)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment: envOrDefault("ENVIRONMENT", "production"),
		HTTPAddr:    envOrDefault("HTTP_ADDR", ":3001"),
		WebhookID:   envOrDefault("WEBHOOK_ID", ""),

		RedisAddr:     envOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		KafkaBrokers: envCSVOrDefault("KAFKA_BROKERS", "localhost:9092"),

		ExchangeCommands:      envOrDefault("EXCHANGE_COMMANDS", "commands"),
		ExchangeTradeEvents:   envOrDefault("EXCHANGE_TRADE_EVENTS", "copy_trade_events"),
		ExchangeNotifications: envOrDefault("EXCHANGE_NOTIFICATIONS", "notifications"),
		ExchangeDeadLetter:    envOrDefault("EXCHANGE_DEAD_LETTER", "dead_letter"),

		QueueSubscriptionCommands: envOrDefault("QUEUE_SUBSCRIPTION_COMMANDS", "subscription_commands"),
		QueueKOLManagement:        envOrDefault("QUEUE_KOL_MANAGEMENT", "kol_management"),
		QueueServiceCommands:      envOrDefault("QUEUE_SERVICE_COMMANDS", "service_commands"),
		QueueKOLTradeDetected:     envOrDefault("QUEUE_KOL_TRADE_DETECTED", "kol_trade_detected"),
		QueueCopyTradeRequests:    envOrDefault("QUEUE_COPY_TRADE_REQUESTS", "copy_trade_requests"),
		QueueCopyTradeCompleted:   envOrDefault("QUEUE_COPY_TRADE_COMPLETED", "copy_trade_completed"),
		QueueClientNotifications:  envOrDefault("QUEUE_CLIENT_NOTIFICATIONS", "client_notifications"),
		QueueServiceStatus:        envOrDefault("QUEUE_SERVICE_STATUS", "service_status"),
		QueueDeadLetter:           envOrDefault("QUEUE_DEAD_LETTER", "dead_letter"),
		QueueRPC:                  envOrDefault("QUEUE_RPC", "copy_trader_rpc_queue"),

		MaxConcurrentTrades: maxConcurrent,
		RetryAttempts:       retryAttempts,
		RetryBaseDelay:      retryBaseDelay,
		ProcessingTimeout:   processingTimeout,

		TradeHistoryTTL: tradeHistoryTTL,
		CounterTTL:      counterTTL,

		ProviderBaseURL: envOrDefault("PROVIDER_BASE_URL", "https://api.helius.xyz"),
		ProviderAPIKey:  os.Getenv("PROVIDER_API_KEY"),

		MLScorerURL:        os.Getenv("ML_SCORER_URL"),
		MLScorerTimeout:    mlTimeout,
		MLScoredKOLWallets: envCSVOrDefault("ML_SCORED_KOL_WALLETS", ""),
	}

	return cfg, nil
}
