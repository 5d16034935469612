package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("QUEUE_BACKEND", "memory")
	t.Setenv("PORT", "9000")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MonthlyBudgetCents != 10000 || cfg.CostPerImageCents != 4 {
		t.Fatalf("budget defaults = %d/%d", cfg.MonthlyBudgetCents, cfg.CostPerImageCents)
	}
	if cfg.JobRetryBase() != time.Minute || cfg.JobMaxAttempts != 3 {
		t.Fatalf("retry defaults = %s/%d", cfg.JobRetryBase(), cfg.JobMaxAttempts)
	}
	if cfg.JobRetention() != 24*time.Hour || cfg.JobPurgeInterval() != 10*time.Minute {
		t.Fatalf("retention defaults = %s/%s", cfg.JobRetention(), cfg.JobPurgeInterval())
	}
	if cfg.RateLimitWindow() != time.Minute || cfg.RateLimitMax != 5 {
		t.Fatalf("rate limit defaults = %s/%d", cfg.RateLimitWindow(), cfg.RateLimitMax)
	}
	if cfg.MaxImageBytes() != 10*1024*1024 {
		t.Fatalf("max image bytes = %d", cfg.MaxImageBytes())
	}
	if cfg.StorageBaseURL != "http://localhost:9000/static" {
		t.Fatalf("storage base url = %q", cfg.StorageBaseURL)
	}
}

func TestLoadConfigListsAndPrivilege(t *testing.T) {
	t.Setenv("QUEUE_BACKEND", " Memory ")
	t.Setenv("PRIVILEGED_PROJECT_IDS", "ops, ,qa ")
	t.Setenv("FALLBACK_PROVIDERS", "openai,gemini")
	t.Setenv("STORAGE_BACKEND", "gcs")
	t.Setenv("GCS_BUCKET", "sketch-assets")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.QueueBackend != QueueBackendMemory {
		t.Fatalf("queue backend = %q", cfg.QueueBackend)
	}
	if !cfg.IsPrivileged("qa") || cfg.IsPrivileged("") || len(cfg.PrivilegedProjectIDs) != 2 {
		t.Fatalf("privileged = %v", cfg.PrivilegedProjectIDs)
	}
	if len(cfg.FallbackProviders) != 2 || cfg.FallbackProviders[1] != "gemini" {
		t.Fatalf("fallbacks = %v", cfg.FallbackProviders)
	}
	if cfg.StorageBaseURL != "https://storage.googleapis.com/sketch-assets" {
		t.Fatalf("storage base url = %q", cfg.StorageBaseURL)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{"QUEUE_BACKEND": "postgres", "DATABASE_URL": ""}},
		{"unknown queue", map[string]string{"QUEUE_BACKEND": "kafka"}},
		{"gcs without bucket", map[string]string{"QUEUE_BACKEND": "memory", "STORAGE_BACKEND": "gcs", "GCS_BUCKET": ""}},
		{"unknown storage", map[string]string{"QUEUE_BACKEND": "memory", "STORAGE_BACKEND": "s3"}},
		{"negative budget", map[string]string{"QUEUE_BACKEND": "memory", "MONTHLY_BUDGET_CENTS": "-1"}},
		{"zero workers", map[string]string{"QUEUE_BACKEND": "memory", "WORKER_CONCURRENCY": "0"}},
		{"zero rate limit", map[string]string{"QUEUE_BACKEND": "memory", "RATE_LIMIT_MAX": "0"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
