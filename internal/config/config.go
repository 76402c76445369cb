package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Content   ContentConfig
	Phone     PhoneConfig
	Security  SecurityConfig
	WhatsApp  WhatsAppConfig
	Webhook   WebhookConfig
	Generator GeneratorConfig
	Templates TemplatesConfig
}

type ServerConfig struct {
	Address string
	// Env is "production" or anything else for development logging.
	Env string
}

type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
	ClaimTTL time.Duration
}

type SchedulerConfig struct {
	Interval     time.Duration
	BatchSize    int
	Concurrency  int
	MaxStaleness time.Duration
}

type ContentConfig struct {
	Max             int
	RequireApproval bool
}

type PhoneConfig struct {
	DefaultCountryCode string
}

type SecurityConfig struct {
	EncryptionKey  string
	EncryptionSalt string
}

type WhatsAppConfig struct {
	Provider string

	TwilioBaseURL      string
	TwilioAccountSID   string
	TwilioAPIKeySID    string
	TwilioAPIKeySecret string
	TwilioAuthToken    string
	From               string

	GreenAPIBaseURL    string
	GreenAPIInstanceID string
	GreenAPIToken      string
}

type WebhookConfig struct {
	URL string
}

type GeneratorConfig struct {
	URL    string
	APIKey string
	Model  string
}

type TemplatesConfig struct {
	File string
}

// LoadAll reads the environment. Every problem is reported, not just the first.
func LoadAll() (*Config, error) {
	var errs []error
	str := func(key string) string {
		v, err := requireEnv(key)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	num := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	flag := func(key string, def bool) bool {
		v, err := getEnvBool(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
			Env:     getEnv("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			PostgresURL: str("POSTGRES_URL"),
		},
		Scheduler: SchedulerConfig{
			Interval:     time.Duration(num("SCHED_INTERVAL_SECONDS", 30)) * time.Second,
			BatchSize:    num("SCHED_BATCH_SIZE", 100),
			Concurrency:  num("SCHED_CONCURRENCY", 8),
			MaxStaleness: time.Duration(num("SCHED_MAX_STALENESS_SECONDS", 0)) * time.Second,
		},
		Content: ContentConfig{
			Max:             num("CONTENT_MAX", 4096),
			RequireApproval: flag("REQUIRE_APPROVAL", true),
		},
		Phone: PhoneConfig{
			DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "+972"),
		},
		Security: SecurityConfig{
			EncryptionKey:  str("ENCRYPTION_KEY"),
			EncryptionSalt: getEnv("ENCRYPTION_SALT", "scheduled-messaging"),
		},
		WhatsApp: WhatsAppConfig{
			Provider:           strings.ToLower(getEnv("WHATSAPP_PROVIDER", "twilio")),
			TwilioBaseURL:      os.Getenv("TWILIO_BASE_URL"),
			TwilioAccountSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
			TwilioAPIKeySID:    os.Getenv("TWILIO_API_KEY_SID"),
			TwilioAPIKeySecret: os.Getenv("TWILIO_API_KEY_SECRET"),
			TwilioAuthToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
			From:               os.Getenv("WHATSAPP_FROM"),
			GreenAPIBaseURL:    os.Getenv("GREEN_API_BASE_URL"),
			GreenAPIInstanceID: os.Getenv("GREEN_API_INSTANCE_ID"),
			GreenAPIToken:      os.Getenv("GREEN_API_TOKEN"),
		},
		Webhook: WebhookConfig{
			URL: os.Getenv("WEBHOOK_URL"),
		},
		Generator: GeneratorConfig{
			URL:    os.Getenv("GENERATOR_URL"),
			APIKey: os.Getenv("GENERATOR_API_KEY"),
			Model:  os.Getenv("GENERATOR_MODEL"),
		},
		Templates: TemplatesConfig{
			File: os.Getenv("TEMPLATES_FILE"),
		},
	}

	redis, redisErrs := loadRedisConfig()
	cfg.Redis = redis
	errs = append(errs, redisErrs...)

	if len(errs) == 0 {
		errs = validate(cfg)
	}
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, []error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	var errs []error
	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		errs = append(errs, err)
	}
	ttl, err := getEnvInt("REDIS_TTL_SECONDS", 86400)
	if err != nil {
		errs = append(errs, err)
	}
	claimTTL, err := getEnvInt("REDIS_CLAIM_TTL_SECONDS", 60)
	if err != nil {
		errs = append(errs, err)
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
		ClaimTTL: time.Duration(claimTTL) * time.Second,
	}, errs
}

func validate(cfg *Config) []error {
	var errs []error
	if cfg.Scheduler.BatchSize <= 0 {
		errs = append(errs, errors.New("SCHED_BATCH_SIZE must be > 0"))
	}
	if cfg.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("SCHED_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Scheduler.Concurrency <= 0 {
		errs = append(errs, errors.New("SCHED_CONCURRENCY must be > 0"))
	}
	if cfg.Scheduler.MaxStaleness < 0 {
		errs = append(errs, errors.New("SCHED_MAX_STALENESS_SECONDS must be >= 0"))
	}
	if cfg.Content.Max <= 0 {
		errs = append(errs, errors.New("CONTENT_MAX must be > 0"))
	}
	if !strings.HasPrefix(cfg.Phone.DefaultCountryCode, "+") {
		errs = append(errs, errors.New("DEFAULT_COUNTRY_CODE must start with +"))
	}
	switch cfg.WhatsApp.Provider {
	case "twilio", "green_api":
	default:
		errs = append(errs, fmt.Errorf("WHATSAPP_PROVIDER must be twilio or green_api, got %q", cfg.WhatsApp.Provider))
	}
	return errs
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid bool for env %s: %q", key, v)
	}
	return b, nil
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
