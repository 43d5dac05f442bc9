package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fitforge/fitforge/internal/semcache"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	DatabaseURL string
	ServerPort  string
	BaseURL     string
	FrontendURL string

	OpenAIKey string
	AIBaseURL string
	AIModels  []string

	RedisURL         string
	RabbitMQURL      string
	RabbitMQPrefetch int

	AuthIssuer  string
	AuthJWKSURL string

	EnableHSTS      bool
	WorkerDebugMode bool
	ServerDebugMode bool
	OTELEnabled     bool
	OTELEndpoint    string

	Tuning Tuning
}

// Tuning is the cache and generation policy, overridable from a YAML file
// so thresholds can change without a rebuild.
type Tuning struct {
	Thresholds         semcache.Thresholds `yaml:"thresholds"`
	CacheTTL           time.Duration       `yaml:"cache_ttl"`
	DailyBudgetUSD     float64             `yaml:"daily_budget_usd"`
	AvgAICostUSD       float64             `yaml:"avg_ai_cost_usd"`
	InterWeekDelay     time.Duration       `yaml:"inter_week_delay"`
	ReconcileInterval  time.Duration       `yaml:"reconcile_interval"`
	StaleClaimAge      time.Duration       `yaml:"stale_claim_age"`
	DLQGCInterval      time.Duration       `yaml:"dlq_gc_interval"`
	DLQRetention       time.Duration       `yaml:"dlq_retention"`
}

// DefaultTuning returns the production defaults.
func DefaultTuning() Tuning {
	return Tuning{
		Thresholds:        semcache.DefaultThresholds(),
		CacheTTL:          30 * 24 * time.Hour,
		DailyBudgetUSD:    50,
		AvgAICostUSD:      0.05,
		InterWeekDelay:    30 * time.Second,
		ReconcileInterval: time.Minute,
		StaleClaimAge:     10 * time.Minute,
		DLQGCInterval:     time.Hour,
		DLQRetention:      7 * 24 * time.Hour,
	}
}

// Load loads configuration from environment variables, then overlays the
// tuning file named by TUNING_FILE if set.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		BaseURL:          getEnv("BASE_URL", "http://localhost:8080"),
		FrontendURL:      getEnv("FRONTEND_URL", "http://localhost:3000"),
		OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
		AIBaseURL:        getEnv("AI_BASE_URL", ""),
		AIModels:         getEnvList("AI_MODELS", []string{"gpt-5", "gpt-5-mini"}),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 1),
		AuthIssuer:       getEnv("AUTH_ISSUER", ""),
		AuthJWKSURL:      getEnv("AUTH_JWKS_URL", ""),
		EnableHSTS:       getEnvBool("ENABLE_HSTS", false),
		WorkerDebugMode:  getEnvBool("WORKER_DEBUG_MODE", false),
		ServerDebugMode:  getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:      getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Tuning:           DefaultTuning(),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RabbitMQURL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required for background week generation")
	}
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if len(cfg.AIModels) == 0 {
		return nil, fmt.Errorf("AI_MODELS must name at least one model")
	}

	if path := os.Getenv("TUNING_FILE"); path != "" {
		if err := cfg.Tuning.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load tuning file: %w", err)
		}
	}
	if err := cfg.Tuning.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile overlays values from a YAML tuning file. Absent keys keep their
// defaults.
func (t *Tuning) loadFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, t)
}

// UnmarshalYAML overlays present keys onto the existing values, parsing
// durations from strings like "30s".
func (t *Tuning) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Thresholds        *semcache.Thresholds `yaml:"thresholds"`
		CacheTTL          string               `yaml:"cache_ttl"`
		DailyBudgetUSD    *float64             `yaml:"daily_budget_usd"`
		AvgAICostUSD      *float64             `yaml:"avg_ai_cost_usd"`
		InterWeekDelay    string               `yaml:"inter_week_delay"`
		ReconcileInterval string               `yaml:"reconcile_interval"`
		StaleClaimAge     string               `yaml:"stale_claim_age"`
		DLQGCInterval     string               `yaml:"dlq_gc_interval"`
		DLQRetention      string               `yaml:"dlq_retention"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.Thresholds != nil {
		t.Thresholds = *raw.Thresholds
	}
	if raw.DailyBudgetUSD != nil {
		t.DailyBudgetUSD = *raw.DailyBudgetUSD
	}
	if raw.AvgAICostUSD != nil {
		t.AvgAICostUSD = *raw.AvgAICostUSD
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"cache_ttl", raw.CacheTTL, &t.CacheTTL},
		{"inter_week_delay", raw.InterWeekDelay, &t.InterWeekDelay},
		{"reconcile_interval", raw.ReconcileInterval, &t.ReconcileInterval},
		{"stale_claim_age", raw.StaleClaimAge, &t.StaleClaimAge},
		{"dlq_gc_interval", raw.DLQGCInterval, &t.DLQGCInterval},
		{"dlq_retention", raw.DLQRetention, &t.DLQRetention},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

func (t *Tuning) validate() error {
	th := t.Thresholds
	if !(th.Exact > th.Adapt && th.Adapt > th.Reject) {
		return fmt.Errorf("thresholds must be ordered exact > adapt > reject, got %.2f/%.2f/%.2f",
			th.Exact, th.Adapt, th.Reject)
	}
	if th.Exact > 1 || th.Reject < 0 {
		return fmt.Errorf("thresholds must lie in [0, 1]")
	}
	if t.DailyBudgetUSD < 0 {
		return fmt.Errorf("daily_budget_usd must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
