package infra

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Queue and storage backends selectable through configuration.
const (
	QueueBackendPostgres = "postgres"
	QueueBackendMemory   = "memory"

	StorageBackendFilesystem = "filesystem"
	StorageBackendGCS        = "gcs"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	LogFile     string `envconfig:"LOG_FILE"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	RedisURL    string `envconfig:"REDIS_URL"`
	AMQPURL     string `envconfig:"AMQP_URL"`

	MonthlyBudgetCents   int64    `envconfig:"MONTHLY_BUDGET_CENTS" default:"10000"`
	CostPerImageCents    int64    `envconfig:"COST_PER_IMAGE_CENTS" default:"4"`
	PrivilegedProjectIDs []string `envconfig:"PRIVILEGED_PROJECT_IDS"`
	MaxImageBase64MB     int      `envconfig:"MAX_IMAGE_BASE64_MB" default:"10"`

	ProviderTimeoutMs   int      `envconfig:"PROVIDER_API_TIMEOUT_MS" default:"120000"`
	RouterMinAttempts   int      `envconfig:"ROUTER_MIN_ATTEMPTS" default:"3"`
	DefaultProvider     string   `envconfig:"DEFAULT_PROVIDER"`
	FallbackProviders   []string `envconfig:"FALLBACK_PROVIDERS"`
	SyntheticProvider   bool     `envconfig:"SYNTHETIC_PROVIDER_ENABLED" default:"false"`
	QwenAPIKey          string   `envconfig:"QWEN_API_KEY"`
	QwenBaseURL         string   `envconfig:"QWEN_BASE_URL" default:"https://dashscope-intl.aliyuncs.com/api/v1"`
	QwenModel           string   `envconfig:"QWEN_MODEL" default:"qwen-image-edit"`
	OpenAIAPIKey        string   `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string   `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	OpenAIModel         string   `envconfig:"OPENAI_MODEL" default:"gpt-image-1"`
	GeminiAPIKey        string   `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL       string   `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta"`
	GeminiModel         string   `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash-image"`
	ModerationEnabled   bool     `envconfig:"MODERATION_ENABLED" default:"true"`
	GoogleVisionAPIKey  string   `envconfig:"GOOGLE_VISION_API_KEY"`
	ModerationTimeoutMs int      `envconfig:"MODERATION_TIMEOUT_MS" default:"30000"`

	WorkerConcurrency   int `envconfig:"WORKER_CONCURRENCY" default:"3"`
	RateLimitWindowMs   int `envconfig:"RATE_LIMIT_WINDOW_MS" default:"60000"`
	RateLimitMax        int `envconfig:"RATE_LIMIT_MAX" default:"5"`
	JobMaxAttempts      int `envconfig:"JOB_MAX_ATTEMPTS" default:"3"`
	JobRetryBaseSeconds int `envconfig:"JOB_RETRY_BASE_SECONDS" default:"60"`
	JobPollIntervalMs   int `envconfig:"JOB_POLL_INTERVAL_MS" default:"2000"`
	JobRetentionHours   int `envconfig:"JOB_RETENTION_HOURS" default:"24"`
	JobPurgeMinutes     int `envconfig:"JOB_PURGE_INTERVAL_MINUTES" default:"10"`
	EstimatedJobMs      int `envconfig:"ESTIMATED_JOB_MS" default:"30000"`

	QueueBackend   string `envconfig:"QUEUE_BACKEND" default:"postgres"`
	StorageBackend string `envconfig:"STORAGE_BACKEND" default:"filesystem"`
	StoragePath    string `envconfig:"STORAGE_PATH" default:"./storage"`
	StorageBaseURL string `envconfig:"STORAGE_BASE_URL"`
	GCSBucket      string `envconfig:"GCS_BUCKET"`

	HTTPReadTimeoutSeconds  int `envconfig:"HTTP_READ_TIMEOUT_SECONDS" default:"15"`
	HTTPWriteTimeoutSeconds int `envconfig:"HTTP_WRITE_TIMEOUT_SECONDS" default:"30"`
	HTTPIdleTimeoutSeconds  int `envconfig:"HTTP_IDLE_TIMEOUT_SECONDS" default:"60"`
	HTTPRateLimitPerMin     int `envconfig:"HTTP_RATE_LIMIT_PER_MINUTE" default:"30"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.QueueBackend = strings.ToLower(strings.TrimSpace(cfg.QueueBackend))
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	if cfg.StorageBaseURL == "" {
		if cfg.StorageBackend == StorageBackendGCS {
			cfg.StorageBaseURL = "https://storage.googleapis.com/" + cfg.GCSBucket
		} else {
			cfg.StorageBaseURL = "http://localhost:" + cfg.Port + "/static"
		}
	}
	cfg.StorageBaseURL = strings.TrimRight(cfg.StorageBaseURL, "/")
	cfg.PrivilegedProjectIDs = trimAll(cfg.PrivilegedProjectIDs)
	cfg.FallbackProviders = trimAll(cfg.FallbackProviders)
	cfg.CORSAllowedOrigins = trimAll(cfg.CORSAllowedOrigins)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.QueueBackend {
	case QueueBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres queue backend")
		}
	case QueueBackendMemory:
	default:
		return fmt.Errorf("unsupported QUEUE_BACKEND %q", c.QueueBackend)
	}
	switch c.StorageBackend {
	case StorageBackendFilesystem:
	case StorageBackendGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required for the gcs storage backend")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.MonthlyBudgetCents < 0 {
		return fmt.Errorf("MONTHLY_BUDGET_CENTS must not be negative")
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	if c.RateLimitMax <= 0 || c.RateLimitWindowMs <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW_MS must be positive")
	}
	return nil
}

// ProviderTimeout is the per-call deadline for provider requests.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutMs) * time.Millisecond
}

// ModerationTimeout is the per-call deadline for the moderation service.
func (c *Config) ModerationTimeout() time.Duration {
	return time.Duration(c.ModerationTimeoutMs) * time.Millisecond
}

// RateLimitWindow is the rolling window of the global provider-call limiter.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMs) * time.Millisecond
}

// JobRetryBase is the first job-level retry delay.
func (c *Config) JobRetryBase() time.Duration {
	return time.Duration(c.JobRetryBaseSeconds) * time.Second
}

// JobPollInterval is how long an idle worker waits before claiming again.
func (c *Config) JobPollInterval() time.Duration {
	return time.Duration(c.JobPollIntervalMs) * time.Millisecond
}

// JobRetention is how long finished jobs stay in the queue table.
func (c *Config) JobRetention() time.Duration {
	return time.Duration(c.JobRetentionHours) * time.Hour
}

func (c *Config) JobPurgeInterval() time.Duration {
	return time.Duration(c.JobPurgeMinutes) * time.Minute
}

// MaxImageBytes is the largest accepted base64 payload, in bytes.
func (c *Config) MaxImageBytes() int {
	return c.MaxImageBase64MB * 1024 * 1024
}

func (c *Config) HTTPReadTimeout() time.Duration {
	return time.Duration(c.HTTPReadTimeoutSeconds) * time.Second
}

func (c *Config) HTTPWriteTimeout() time.Duration {
	return time.Duration(c.HTTPWriteTimeoutSeconds) * time.Second
}

func (c *Config) HTTPIdleTimeout() time.Duration {
	return time.Duration(c.HTTPIdleTimeoutSeconds) * time.Second
}

// IsPrivileged reports whether the project bypasses the budget soft stop.
func (c *Config) IsPrivileged(projectID string) bool {
	for _, id := range c.PrivilegedProjectIDs {
		if id == projectID {
			return true
		}
	}
	return false
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
