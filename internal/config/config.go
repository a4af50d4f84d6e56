package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Wallet   WalletConfig
	Price    PriceConfig
	Gateway  GatewayConfig
	Order    OrderConfig
	Telegram TelegramConfig
}

type ServerConfig struct {
	Port         string
	Environment  string
	AllowOrigins string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// WalletConfig holds hot-wallet send parameters and the KDF password used to
// decrypt each chain's signing-key blob. Chain rows carry the encrypted
// material itself; this config never holds a raw key.
type WalletConfig struct {
	KeyPassword       string
	ConfirmationsBSC  uint64
	ConfirmationsBase uint64
	ConfirmationsPoly uint64
	ConfirmationsEth  uint64
	ChainLockTTL      time.Duration
	ChainLockRetries  int
	ChainLockCap      time.Duration
}

type PriceConfig struct {
	StreamURL     string
	RESTURL       string
	FXEndpoint    string
	SWRWindow     time.Duration
	HardTTL       time.Duration
	SingleLockTTL time.Duration
	DefaultFXRate string
	DefaultMarkup string
	WatchdogIdle  time.Duration
	ReconnectBase time.Duration
}

// GatewayConfig carries the payment-gateway (Midtrans-shaped) credentials.
type GatewayConfig struct {
	ServerKey   string
	ClientKey   string
	Environment string
	BaseURL     string
}

type OrderConfig struct {
	PendingTTL          time.Duration
	ExpirySweepInterval time.Duration
	ExpiryGracePeriod   time.Duration
	ZombieLockAge       time.Duration
	PayoutMaxConcurrent int
	ReferralThreshold   int
	ReferralValueIDR    string
	ReferralBonusEvery  int
}

type TelegramConfig struct {
	BotToken  string
	WebAppURL string
}

func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.Name + "?sslmode=" + d.SSLMode
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	keyPassword := getEnv("WALLET_KEY_PASSWORD", "")
	if keyPassword != "" && len(keyPassword) < 32 {
		return nil, fmt.Errorf("WALLET_KEY_PASSWORD must be at least 32 characters")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			AllowOrigins: getEnv("ALLOW_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "payout"),
			Password: getEnv("DB_PASSWORD", "payout"),
			Name:     getEnv("DB_NAME", "payout"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Wallet: WalletConfig{
			KeyPassword:       keyPassword,
			ConfirmationsBSC:  uint64(getEnvInt("WALLET_CONFIRMATIONS_BSC", 3)),
			ConfirmationsBase: uint64(getEnvInt("WALLET_CONFIRMATIONS_BASE", 3)),
			ConfirmationsPoly: uint64(getEnvInt("WALLET_CONFIRMATIONS_POLYGON", 5)),
			ConfirmationsEth:  uint64(getEnvInt("WALLET_CONFIRMATIONS_ETHEREUM", 1)),
			ChainLockTTL:      getEnvDuration("WALLET_LOCK_TTL", 180*time.Second),
			ChainLockRetries:  getEnvInt("WALLET_LOCK_RETRIES", 30),
			ChainLockCap:      getEnvDuration("WALLET_LOCK_CAP", 35*time.Second),
		},
		Price: PriceConfig{
			StreamURL:     getEnv("PRICE_STREAM_URL", "wss://stream.binance.com:9443/ws/!miniTicker@arr"),
			RESTURL:       getEnv("PRICE_REST_URL", "https://api.binance.com/api/v3/ticker/price"),
			FXEndpoint:    getEnv("FX_ENDPOINT", "https://api.exchangerate.host/latest?base=USD&symbols=IDR"),
			SWRWindow:     getEnvDuration("PRICE_SWR_WINDOW", 60*time.Second),
			HardTTL:       getEnvDuration("PRICE_HARD_TTL", time.Hour),
			SingleLockTTL: getEnvDuration("PRICE_SINGLE_LOCK_TTL", 10*time.Second),
			DefaultFXRate: getEnv("DEFAULT_FX_RATE", "15800"),
			DefaultMarkup: getEnv("DEFAULT_MARKUP_PERCENT", "5"),
			WatchdogIdle:  getEnvDuration("PRICE_WATCHDOG_IDLE", 60*time.Second),
			ReconnectBase: getEnvDuration("PRICE_RECONNECT_BASE", 5*time.Second),
		},
		Gateway: GatewayConfig{
			ServerKey:   getEnv("GATEWAY_SERVER_KEY", ""),
			ClientKey:   getEnv("GATEWAY_CLIENT_KEY", ""),
			Environment: getEnv("GATEWAY_ENVIRONMENT", "sandbox"),
			BaseURL:     getEnv("GATEWAY_BASE_URL", "https://api.sandbox.midtrans.com/v2"),
		},
		Order: OrderConfig{
			PendingTTL:          getEnvDuration("ORDER_PENDING_TTL", 15*time.Minute),
			ExpirySweepInterval: getEnvDuration("ORDER_EXPIRY_SWEEP_INTERVAL", 5*time.Minute),
			ExpiryGracePeriod:   getEnvDuration("ORDER_EXPIRY_GRACE_PERIOD", 70*time.Minute),
			ZombieLockAge:       getEnvDuration("ORDER_ZOMBIE_LOCK_AGE", 10*time.Minute),
			PayoutMaxConcurrent: getEnvInt("ORDER_PAYOUT_MAX_CONCURRENT", 20),
			ReferralThreshold:   getEnvInt("REFERRAL_THRESHOLD", 1),
			ReferralValueIDR:    getEnv("REFERRAL_VALUE_IDR", "25000"),
			ReferralBonusEvery:  getEnvInt("REFERRAL_BONUS_EVERY", 20),
		},
		Telegram: TelegramConfig{
			BotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
			WebAppURL: getEnv("TELEGRAM_WEBAPP_URL", ""),
		},
	}

	return cfg, nil
}

// ResolveChainKeyMaterial resolves an "ENV:<NAME>" indirection to the actual
// environment variable value. Plain hex material is returned unchanged.
func ResolveChainKeyMaterial(material string) (string, error) {
	if !strings.HasPrefix(material, "ENV:") {
		return material, nil
	}
	name := strings.TrimPrefix(material, "ENV:")
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", name)
	}
	return value, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
