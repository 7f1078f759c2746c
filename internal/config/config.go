package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName        = "FundMe"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultDBMaxConns     = 10
	defaultChainID        = 31337
	defaultMinimumUSD     = "50"
	defaultMockDecimals   = 8
	defaultMockAnswer     = "200000000000"
	defaultAccessTTL      = 15 * time.Minute
	defaultChallengeTTL   = 5 * time.Minute
	defaultSnapshotCron   = "0 * * * * *"
	defaultPoolName       = "default"
	devJWTSecret          = "development-only-secret"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	DBMaxConns     int32
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	ChainID            int64
	RPCURL             string
	NetworksFile       string
	PriceFeedAddress   string
	OwnerAddress       string
	DeployerPrivateKey string
	MinimumUSD         string
	MockPriceDecimals  uint8
	MockPriceAnswer    string
	PoolName           string

	JWTSecret      string
	AccessTokenTTL time.Duration
	ChallengeTTL   time.Duration
	SnapshotCron   string
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:            getEnv("APP_NAME", defaultAppName),
		AppEnv:             getEnv("APP_ENV", defaultAppEnv),
		Port:               getEnv("PORT", defaultPort),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		RPCURL:             os.Getenv("RPC_URL"),
		NetworksFile:       os.Getenv("NETWORKS_FILE"),
		PriceFeedAddress:   os.Getenv("PRICE_FEED_ADDRESS"),
		OwnerAddress:       os.Getenv("OWNER_ADDRESS"),
		DeployerPrivateKey: os.Getenv("DEPLOYER_PRIVATE_KEY"),
		MinimumUSD:         getEnv("MINIMUM_USD", defaultMinimumUSD),
		MockPriceAnswer:    getEnv("MOCK_PRICE_ANSWER", defaultMockAnswer),
		PoolName:           getEnv("POOL_NAME", defaultPoolName),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		SnapshotCron:       getEnv("SNAPSHOT_CRON", defaultSnapshotCron),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTL, err = durationEnv("ACCESS_TOKEN_TTL", defaultAccessTTL); err != nil {
		return Config{}, err
	}
	if cfg.ChallengeTTL, err = durationEnv("CHALLENGE_TTL", defaultChallengeTTL); err != nil {
		return Config{}, err
	}

	maxConns, err := intEnv("DB_MAX_CONNS", defaultDBMaxConns, 32)
	if err != nil {
		return Config{}, err
	}
	cfg.DBMaxConns = int32(maxConns)
	if cfg.ChainID, err = intEnv("CHAIN_ID", defaultChainID, 64); err != nil {
		return Config{}, err
	}
	decimals, err := intEnv("MOCK_PRICE_DECIMALS", defaultMockDecimals, 8)
	if err != nil {
		return Config{}, err
	}
	if decimals < 0 {
		return Config{}, fmt.Errorf("invalid MOCK_PRICE_DECIMALS: must not be negative")
	}
	cfg.MockPriceDecimals = uint8(decimals)

	if cfg.IsDevelopment() {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = devJWTSecret
		}
		return cfg, nil
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set when APP_ENV=%s", cfg.AppEnv)
	}
	return cfg, nil
}

// IsDevelopment reports whether the service runs without mandatory Postgres and Redis.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv reads KEY_SECONDS as whole seconds, then KEY as a Go duration.
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	secondsKey := key + "_SECONDS"
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intEnv(key string, fallback int64, bits int) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
