package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/ai/registry"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/db"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/jobs/worker"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/observability"
)

type Config struct {
	Port        string
	LogMode     string
	Environment string

	DB db.Config

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecretKey   string
	AccessTokenTTL time.Duration
	CORSOrigins    []string

	AI              registry.Config
	DefaultProvider string
	DefaultModel    string
	DefaultPreset   string

	Worker         worker.Config
	JobMaxAttempts int
	StageRunInline bool

	Otel observability.OtelConfig
}

var defaults = map[string]any{
	"port":                   "8080",
	"log_mode":               "development",
	"environment":            "development",
	"db_driver":              db.DriverPostgres,
	"postgres_host":          "localhost",
	"postgres_port":          "5432",
	"postgres_user":          "postgres",
	"postgres_name":          "brandbuilder",
	"postgres_sslmode":       "disable",
	"sqlite_path":            "brandbuilder.db",
	"db_slow_threshold":      "1s",
	"db_max_open_conns":      20,
	"redis_db":               0,
	"jwt_secret_key":         "defaultsecret",
	"access_token_ttl":       "3600",
	"ai_timeout":             "60s",
	"ai_max_retries":         2,
	"worker_concurrency":     2,
	"worker_poll_interval":   "1s",
	"job_max_attempts":       3,
	"job_stale_lock_timeout": "0",
	"stage_run_inline":       false,
	"otel_enabled":           false,
	"otel_sampler_ratio":     0.1,
}

// NewViper reads prefix-less env names (PORT, DB_DRIVER, ...) and, when
// configFile is set, a yaml file using the same keys in lower case.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	return v, nil
}

func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:        v.GetString("port"),
		LogMode:     v.GetString("log_mode"),
		Environment: v.GetString("environment"),
		DB: db.Config{
			Driver:           v.GetString("db_driver"),
			PostgresHost:     v.GetString("postgres_host"),
			PostgresPort:     v.GetString("postgres_port"),
			PostgresUser:     v.GetString("postgres_user"),
			PostgresPassword: v.GetString("postgres_password"),
			PostgresName:     v.GetString("postgres_name"),
			PostgresSSLMode:  v.GetString("postgres_sslmode"),
			SQLitePath:       v.GetString("sqlite_path"),
			SlowThreshold:    duration(v, "db_slow_threshold"),
			MaxOpenConns:     v.GetInt("db_max_open_conns"),
		},
		RedisAddr:      strings.TrimSpace(v.GetString("redis_addr")),
		RedisPassword:  v.GetString("redis_password"),
		RedisDB:        v.GetInt("redis_db"),
		JWTSecretKey:   v.GetString("jwt_secret_key"),
		AccessTokenTTL: duration(v, "access_token_ttl"),
		CORSOrigins:    splitList(v.GetString("cors_allowed_origins")),
		AI: registry.Config{
			OpenAIKey:        v.GetString("openai_api_key"),
			OpenAIBaseURL:    v.GetString("openai_base_url"),
			AnthropicKey:     v.GetString("anthropic_api_key"),
			AnthropicBaseURL: v.GetString("anthropic_base_url"),
			GeminiKey:        v.GetString("gemini_api_key"),
			Timeout:          duration(v, "ai_timeout"),
			MaxRetries:       v.GetInt("ai_max_retries"),
		},
		DefaultProvider: strings.ToLower(strings.TrimSpace(v.GetString("ai_provider"))),
		DefaultModel:    strings.TrimSpace(v.GetString("ai_model")),
		DefaultPreset:   strings.ToLower(strings.TrimSpace(v.GetString("ai_preset"))),
		Worker: worker.Config{
			Concurrency:      v.GetInt("worker_concurrency"),
			PollInterval:     duration(v, "worker_poll_interval"),
			StaleLockTimeout: duration(v, "job_stale_lock_timeout"),
		},
		JobMaxAttempts: v.GetInt("job_max_attempts"),
		StageRunInline: v.GetBool("stage_run_inline"),
		Otel: observability.OtelConfig{
			Enabled:     v.GetBool("otel_enabled"),
			ServiceName: v.GetString("otel_service_name"),
			Environment: v.GetString("environment"),
			Version:     v.GetString("otel_service_version"),
			Endpoint:    v.GetString("otel_exporter_otlp_endpoint"),
			Headers:     v.GetString("otel_exporter_otlp_headers"),
			Insecure:    v.GetBool("otel_exporter_otlp_insecure"),
			SampleRatio: v.GetFloat64("otel_sampler_ratio"),
		},
	}
	if cfg.JobMaxAttempts < 1 {
		return cfg, fmt.Errorf("JOB_MAX_ATTEMPTS must be >= 1, got %d", cfg.JobMaxAttempts)
	}
	if cfg.Worker.Concurrency < 1 {
		return cfg, fmt.Errorf("WORKER_CONCURRENCY must be >= 1, got %d", cfg.Worker.Concurrency)
	}
	return cfg, nil
}

// duration accepts Go duration strings ("30s") or bare integers as seconds.
func duration(v *viper.Viper, key string) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
