package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML with environment
// overrides.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// Storage. Driver is "postgres" or "sqlite".
	DatabaseDriver string `yaml:"databaseDriver"`
	DatabaseURL    string `yaml:"databaseURL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	JWTSecret      string `yaml:"jwtSecret"`
	JWTExpiryHours int    `yaml:"jwtExpiryHours"`

	RelayURL       string `yaml:"relayURL"`
	RelayAuthToken string `yaml:"relayAuthToken"`
	RelaySecret    string `yaml:"relaySecret"`

	PayPalBaseURL       string `yaml:"paypalBaseURL"`
	PayPalClientID      string `yaml:"paypalClientId"`
	PayPalClientSecret  string `yaml:"paypalClientSecret"`
	PayPalPlanID        string `yaml:"paypalPlanId"`
	PayPalWebhookSecret string `yaml:"paypalWebhookSecret"`

	HTTPTimeoutSeconds int `yaml:"httpTimeoutSeconds"`

	RegisterRateLimitPerMinute int `yaml:"registerRateLimitPerMinute"`
	LoginRateLimitPerMinute    int `yaml:"loginRateLimitPerMinute"`

	// AMQP for fire-and-forget bot start dispatch. Empty disables it and
	// the start command falls back to a direct async relay call.
	AMQPURL string `yaml:"amqpURL"`

	// MinIO archive for purged forwarding logs. Empty endpoint disables
	// archiving.
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
}

// Load reads config from path (defaults to config.yaml). A .env file in the
// working directory is loaded first so env overrides work in local dev.
func Load(path string) (FileConfig, error) {
	_ = godotenv.Load()

	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	// Override with environment variables
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.DatabaseDriver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("TELEFWD_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("TELEFWD_JWT_EXPIRY_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.JWTExpiryHours = n
		}
	}
	if v := os.Getenv("TELEFWD_RELAY_URL"); v != "" {
		cfg.RelayURL = v
	}
	if v := os.Getenv("TELEFWD_RELAY_AUTH_TOKEN"); v != "" {
		cfg.RelayAuthToken = v
	}
	if v := os.Getenv("TELEFWD_RELAY_SECRET"); v != "" {
		cfg.RelaySecret = v
	}
	if v := os.Getenv("PAYPAL_BASE_URL"); v != "" {
		cfg.PayPalBaseURL = v
	}
	if v := os.Getenv("PAYPAL_CLIENT_ID"); v != "" {
		cfg.PayPalClientID = v
	}
	if v := os.Getenv("PAYPAL_CLIENT_SECRET"); v != "" {
		cfg.PayPalClientSecret = v
	}
	if v := os.Getenv("PAYPAL_PLAN_ID"); v != "" {
		cfg.PayPalPlanID = v
	}
	if v := os.Getenv("PAYPAL_WEBHOOK_SECRET"); v != "" {
		cfg.PayPalWebhookSecret = v
	}
	if v := os.Getenv("TELEFWD_HTTP_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTPTimeoutSeconds = n
		}
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MinioUseSSL = b
		}
	}

	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	switch cfg.DatabaseDriver {
	case "postgres", "sqlite":
	case "":
		return errors.New("config: databaseDriver is required (postgres or sqlite)")
	default:
		return fmt.Errorf("config: unsupported databaseDriver %q", cfg.DatabaseDriver)
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.JWTSecret == "" {
		return errors.New("config: jwtSecret is required (set TELEFWD_JWT_SECRET)")
	}
	if cfg.JWTExpiryHours < 0 {
		return errors.New("config: jwtExpiryHours must be >= 0")
	}
	if cfg.RelayURL == "" {
		return errors.New("config: relayURL is required (set in config.yaml or TELEFWD_RELAY_URL)")
	}
	if cfg.PayPalBaseURL == "" {
		return errors.New("config: paypalBaseURL is required (set in config.yaml or PAYPAL_BASE_URL)")
	}
	if cfg.PayPalWebhookSecret == "" {
		return errors.New("config: paypalWebhookSecret is required (set PAYPAL_WEBHOOK_SECRET)")
	}
	if cfg.HTTPTimeoutSeconds < 0 {
		return errors.New("config: httpTimeoutSeconds must be >= 0")
	}
	if cfg.MinioEndpoint != "" && cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required when minioEndpoint is set")
	}
	return nil
}
