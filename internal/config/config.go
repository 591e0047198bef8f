package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Problem describes a configuration value that failed validation.
type Problem struct {
	Field   string
	Message string
}

func (p Problem) String() string {
	return p.Field + ": " + p.Message
}

// Config holds the process configuration. YAML values are loaded first and
// environment variables override them.
type Config struct {
	ServiceName string `yaml:"service_name"`
	HTTPAddr    string `yaml:"http_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	DatabaseURL string `yaml:"database_url"`
	JWTSecret   string `yaml:"jwt_secret"`

	Redis     RedisConfig     `yaml:"redis"`
	Queue     QueueConfig     `yaml:"queue"`
	DeviceAPI DeviceAPIConfig `yaml:"device_api"`
	Astronomy AstronomyConfig `yaml:"astronomy"`
	FaultCode FaultCodeConfig `yaml:"fault_codes"`
	Polling   PollingConfig   `yaml:"polling"`
	Incidents IncidentConfig  `yaml:"incidents"`
	Reminders ReminderConfig  `yaml:"reminders"`
	Notify    NotifyConfig    `yaml:"notify"`
	Kafka     KafkaConfig     `yaml:"kafka"`
}

// RedisConfig locates the cache and queue backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// QueueConfig configures the asynq worker.
type QueueConfig struct {
	Name             string        `yaml:"name"`
	Concurrency      int           `yaml:"concurrency"`
	PollEvery        time.Duration `yaml:"poll_every"`
	OutboxScanEvery  time.Duration `yaml:"outbox_scan_every"`
	OutboxBatchLimit int           `yaml:"outbox_batch_limit"`
	// ProcessedRetention is how long consumer dedupe rows are kept.
	ProcessedRetention time.Duration `yaml:"processed_retention"`
}

// DeviceAPIConfig configures the inverter telemetry provider.
type DeviceAPIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	AccessKeyID    string        `yaml:"access_key_id"`
	AccessKeyValue string        `yaml:"access_key_value"`
	UserID         string        `yaml:"user_id"`
	Password       string        `yaml:"password"`
	Timeout        time.Duration `yaml:"timeout"`
	RetryCount     int           `yaml:"retry_count"`
	NullRetries    int           `yaml:"null_retries"`
	NullRetryDelay time.Duration `yaml:"null_retry_delay"`
}

// AstronomyConfig configures the sunrise/sunset provider.
type AstronomyConfig struct {
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// FaultCodeConfig configures the fault-code colour reference.
type FaultCodeConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	TTL     time.Duration `yaml:"ttl"`
}

// PollingConfig controls the device sweep.
type PollingConfig struct {
	BatchSize  int           `yaml:"batch_size"`
	BatchPause time.Duration `yaml:"batch_pause"`
}

// IncidentConfig controls escalation.
type IncidentConfig struct {
	Deadline        time.Duration `yaml:"deadline"`
	AdminUserID     string        `yaml:"admin_user_id"`
	ResponseFormURL string        `yaml:"response_form_url"`
}

// ReminderConfig controls the daily reminder sweep.
type ReminderConfig struct {
	Every     time.Duration `yaml:"every"`
	Threshold time.Duration `yaml:"threshold"`
}

// NotifyConfig configures delivery channels.
type NotifyConfig struct {
	WebhookURL      string        `yaml:"webhook_url"`
	PushURL         string        `yaml:"push_url"`
	PushAccessToken string        `yaml:"push_access_token"`
	SMTPHost        string        `yaml:"smtp_host"`
	SMTPPort        int           `yaml:"smtp_port"`
	SMTPUsername    string        `yaml:"smtp_username"`
	SMTPPassword    string        `yaml:"smtp_password"`
	MailFrom        string        `yaml:"mail_from"`
	AlertDedupe     time.Duration `yaml:"alert_dedupe"`
	Timeout         time.Duration `yaml:"timeout"`
}

// KafkaConfig enables relaying status events to a topic.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		ServiceName: "moose-status",
		HTTPAddr:    ":8080",
		LogLevel:    "info",
		LogFormat:   "json",
		Redis:       RedisConfig{Addr: "localhost:6379"},
		Queue: QueueConfig{
			Name:               "status",
			Concurrency:        10,
			PollEvery:          15 * time.Minute,
			OutboxScanEvery:    30 * time.Second,
			OutboxBatchLimit:   100,
			ProcessedRetention: 14 * 24 * time.Hour,
		},
		DeviceAPI: DeviceAPIConfig{
			BaseURL:        "https://api.solarweb.com/swqapi",
			Timeout:        30 * time.Second,
			RetryCount:     3,
			NullRetries:    5,
			NullRetryDelay: 2 * time.Second,
		},
		Astronomy: AstronomyConfig{
			BaseURL:  "http://api.weatherapi.com",
			CacheTTL: 72 * time.Hour,
		},
		FaultCode: FaultCodeConfig{TTL: time.Hour},
		Polling:   PollingConfig{BatchSize: 32, BatchPause: 500 * time.Millisecond},
		Incidents: IncidentConfig{Deadline: time.Hour},
		Reminders: ReminderConfig{Every: 24 * time.Hour, Threshold: 15 * time.Hour},
		Notify: NotifyConfig{
			PushURL:     "https://exp.host",
			SMTPPort:    587,
			AlertDedupe: 10 * time.Minute,
			Timeout:     10 * time.Second,
		},
	}
}

// Load builds the configuration from CONFIG_PATH (optional) and the environment.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.ServiceName = getenvDefault("SERVICE_NAME", cfg.ServiceName)
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = getenvDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenvDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.JWTSecret = getenvDefault("AUTH_JWT_SECRET", cfg.JWTSecret)

	cfg.Redis.Addr = getenvDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getenvDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getenvIntDefault("REDIS_DB", cfg.Redis.DB)

	cfg.Queue.Name = getenvDefault("ASYNQ_QUEUE", cfg.Queue.Name)
	cfg.Queue.Concurrency = getenvIntDefault("ASYNQ_CONCURRENCY", cfg.Queue.Concurrency)
	cfg.Queue.PollEvery = getenvDuration("POLL_EVERY", cfg.Queue.PollEvery)
	cfg.Queue.OutboxScanEvery = getenvDuration("OUTBOX_SCAN_EVERY", cfg.Queue.OutboxScanEvery)
	cfg.Queue.OutboxBatchLimit = getenvIntDefault("OUTBOX_BATCH_LIMIT", cfg.Queue.OutboxBatchLimit)
	cfg.Queue.ProcessedRetention = getenvDuration("PROCESSED_RETENTION", cfg.Queue.ProcessedRetention)

	cfg.DeviceAPI.BaseURL = getenvDefault("DEVICE_API_BASE_URL", cfg.DeviceAPI.BaseURL)
	cfg.DeviceAPI.AccessKeyID = getenvDefault("DEVICE_API_ACCESS_KEY_ID", cfg.DeviceAPI.AccessKeyID)
	cfg.DeviceAPI.AccessKeyValue = getenvDefault("DEVICE_API_ACCESS_KEY_VALUE", cfg.DeviceAPI.AccessKeyValue)
	cfg.DeviceAPI.UserID = getenvDefault("DEVICE_API_USER_ID", cfg.DeviceAPI.UserID)
	cfg.DeviceAPI.Password = getenvDefault("DEVICE_API_PASSWORD", cfg.DeviceAPI.Password)
	cfg.DeviceAPI.Timeout = getenvDuration("DEVICE_API_TIMEOUT", cfg.DeviceAPI.Timeout)
	cfg.DeviceAPI.RetryCount = getenvIntDefault("DEVICE_API_RETRY_COUNT", cfg.DeviceAPI.RetryCount)
	cfg.DeviceAPI.NullRetries = getenvIntDefault("DEVICE_API_NULL_RETRIES", cfg.DeviceAPI.NullRetries)
	cfg.DeviceAPI.NullRetryDelay = getenvDuration("DEVICE_API_NULL_RETRY_DELAY", cfg.DeviceAPI.NullRetryDelay)

	cfg.Astronomy.BaseURL = getenvDefault("ASTRONOMY_BASE_URL", cfg.Astronomy.BaseURL)
	cfg.Astronomy.APIKey = getenvDefault("ASTRONOMY_API_KEY", cfg.Astronomy.APIKey)
	cfg.Astronomy.CacheTTL = getenvDuration("ASTRONOMY_CACHE_TTL", cfg.Astronomy.CacheTTL)

	cfg.FaultCode.BaseURL = getenvDefault("FAULT_CODES_BASE_URL", cfg.FaultCode.BaseURL)
	cfg.FaultCode.APIKey = getenvDefault("FAULT_CODES_API_KEY", cfg.FaultCode.APIKey)
	cfg.FaultCode.TTL = getenvDuration("FAULT_CODES_TTL", cfg.FaultCode.TTL)

	cfg.Polling.BatchSize = getenvIntDefault("POLL_BATCH_SIZE", cfg.Polling.BatchSize)
	cfg.Polling.BatchPause = getenvDuration("POLL_BATCH_PAUSE", cfg.Polling.BatchPause)

	cfg.Incidents.Deadline = getenvDuration("INCIDENT_DEADLINE", cfg.Incidents.Deadline)
	cfg.Incidents.AdminUserID = getenvDefault("ADMIN_USER_ID", cfg.Incidents.AdminUserID)
	cfg.Incidents.ResponseFormURL = getenvDefault("RESPONSE_FORM_URL", cfg.Incidents.ResponseFormURL)

	cfg.Reminders.Every = getenvDuration("REMINDER_EVERY", cfg.Reminders.Every)
	cfg.Reminders.Threshold = getenvDuration("REMINDER_THRESHOLD", cfg.Reminders.Threshold)

	cfg.Notify.WebhookURL = getenvDefault("NOTIFY_WEBHOOK_URL", cfg.Notify.WebhookURL)
	cfg.Notify.PushURL = getenvDefault("NOTIFY_PUSH_URL", cfg.Notify.PushURL)
	cfg.Notify.PushAccessToken = getenvDefault("NOTIFY_PUSH_ACCESS_TOKEN", cfg.Notify.PushAccessToken)
	cfg.Notify.SMTPHost = getenvDefault("SMTP_HOST", cfg.Notify.SMTPHost)
	cfg.Notify.SMTPPort = getenvIntDefault("SMTP_PORT", cfg.Notify.SMTPPort)
	cfg.Notify.SMTPUsername = getenvDefault("SMTP_USERNAME", cfg.Notify.SMTPUsername)
	cfg.Notify.SMTPPassword = getenvDefault("SMTP_PASSWORD", cfg.Notify.SMTPPassword)
	cfg.Notify.MailFrom = getenvDefault("MAIL_FROM", cfg.Notify.MailFrom)
	cfg.Notify.AlertDedupe = getenvDuration("ALERT_DEDUPE_WINDOW", cfg.Notify.AlertDedupe)
	cfg.Notify.Timeout = getenvDuration("NOTIFY_TIMEOUT", cfg.Notify.Timeout)

	if brokers := splitCSV(os.Getenv("KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.Kafka.Brokers = brokers
	}
	cfg.Kafka.Topic = getenvDefault("STATUS_EVENTS_TOPIC", cfg.Kafka.Topic)
}

// Validate reports missing or inconsistent settings.
func (c Config) Validate() []Problem {
	var problems []Problem
	if c.DatabaseURL == "" {
		problems = append(problems, Problem{Field: "DATABASE_URL", Message: "required"})
	}
	if c.DeviceAPI.BaseURL == "" {
		problems = append(problems, Problem{Field: "DEVICE_API_BASE_URL", Message: "required"})
	}
	if c.JWTSecret == "" {
		problems = append(problems, Problem{Field: "AUTH_JWT_SECRET", Message: "required"})
	}
	if c.Redis.Addr == "" {
		problems = append(problems, Problem{Field: "REDIS_ADDR", Message: "required"})
	}
	if c.Incidents.Deadline <= 0 {
		problems = append(problems, Problem{Field: "INCIDENT_DEADLINE", Message: "must be positive"})
	}
	if c.Polling.BatchSize <= 0 {
		problems = append(problems, Problem{Field: "POLL_BATCH_SIZE", Message: "must be positive"})
	}
	if c.Reminders.Threshold <= 0 {
		problems = append(problems, Problem{Field: "REMINDER_THRESHOLD", Message: "must be positive"})
	}
	if c.Notify.SMTPHost != "" && c.Notify.MailFrom == "" {
		problems = append(problems, Problem{Field: "MAIL_FROM", Message: "required when SMTP_HOST is set"})
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		problems = append(problems, Problem{Field: "STATUS_EVENTS_TOPIC", Message: "required when KAFKA_BROKERS is set"})
	}
	return problems
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
