package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix    = "MULTIMODAL_"
	configEnvVar = "MULTIMODAL_CONFIG"
)

// Loader загружает конфигурацию из разных источников
type Loader struct {
	k           *koanf.Koanf
	configPaths []string
	envPrefix   string
	overrides   map[string]any
}

// NewLoader создаёт новый загрузчик конфигурации
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k: koanf.New("."),
		configPaths: []string{
			"config.yaml",
			"config/config.yaml",
			"/etc/multimodal/config.yaml",
		},
		envPrefix: envPrefix,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// LoaderOption - опция для конфигурации загрузчика
type LoaderOption func(*Loader)

// WithConfigPaths устанавливает пути поиска конфигурации
func WithConfigPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.configPaths = paths
	}
}

// WithEnvPrefix устанавливает префикс переменных окружения
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithOverrides задаёт значения с наивысшим приоритетом (флаги CLI)
func WithOverrides(values map[string]any) LoaderOption {
	return func(l *Loader) {
		l.overrides = values
	}
}

// Load загружает конфигурацию с приоритетом:
// 1. Defaults (самый низкий)
// 2. Config file (yaml)
// 3. Environment variables
// 4. Overrides (самый высокий)
func (l *Loader) Load() (*Config, error) {
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Файл не обязателен
	if err := l.loadConfigFile(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	if len(l.overrides) > 0 {
		if err := l.k.Load(confmap.Provider(l.overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load overrides: %w", err)
		}
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// defaultValues значения по умолчанию; их ключи также служат
// словарём для разбора переменных окружения
func defaultValues() map[string]any {
	return map[string]any{
		// App
		"app.name":        "transit-svc",
		"app.version":     "1.0.0",
		"app.environment": "development",
		"app.debug":       false,

		// HTTP
		"http.port":             8080,
		"http.read_timeout":     30 * time.Second,
		"http.write_timeout":    30 * time.Second,
		"http.shutdown_timeout": 10 * time.Second,
		"http.compression":      true,
		"http.docs.enabled":     true,
		"http.docs.path":        "/swagger",
		"http.docs.title":       "Multimodal Transit API",
		"http.docs.try_it_out":  true,

		"http.cors.enabled":           true,
		"http.cors.allowed_origins":   []string{"*"},
		"http.cors.allowed_methods":   []string{"GET", "POST", "OPTIONS"},
		"http.cors.allowed_headers":   []string{"Content-Type", "Accept", "Origin", "Connect-Protocol-Version", "Connect-Timeout-Ms", "X-Session-Id"},
		"http.cors.exposed_headers":   []string{"X-Error-Code", "X-Error-Field", "Grpc-Status", "Grpc-Message"},
		"http.cors.allow_credentials": false,
		"http.cors.max_age":           86400,

		// GRPC (health)
		"grpc.enabled":                       true,
		"grpc.port":                          50051,
		"grpc.keepalive.max_connection_idle": 15 * time.Minute,
		"grpc.keepalive.max_connection_age":  30 * time.Minute,
		"grpc.keepalive.time":                5 * time.Minute,
		"grpc.keepalive.timeout":             20 * time.Second,

		// Log
		"log.level":       "info",
		"log.format":      "json",
		"log.output":      "stdout",
		"log.file_path":   "",
		"log.max_size":    100,
		"log.max_backups": 3,
		"log.max_age":     7,
		"log.compress":    true,

		// Metrics
		"metrics.enabled":   true,
		"metrics.path":      "/metrics",
		"metrics.namespace": "multimodal",
		"metrics.subsystem": "",

		// Tracing
		"tracing.enabled":      false,
		"tracing.exporter":     "otlp",
		"tracing.endpoint":     "localhost:4317",
		"tracing.service_name": "transit-svc",
		"tracing.sample_rate":  0.1,

		// Database
		"database.driver":             "memory",
		"database.host":               "localhost",
		"database.port":               5432,
		"database.database":           "multimodal",
		"database.username":           "postgres",
		"database.password":           "",
		"database.ssl_mode":           "disable",
		"database.max_open_conns":     10,
		"database.max_idle_conns":     2,
		"database.conn_max_lifetime":  5 * time.Minute,
		"database.conn_max_idle_time": 5 * time.Minute,
		"database.auto_migrate":       true,

		// Cache
		"cache.enabled":     true,
		"cache.driver":      "memory",
		"cache.host":        "localhost",
		"cache.port":        6379,
		"cache.password":    "",
		"cache.db":          0,
		"cache.default_ttl": 10 * time.Minute,
		"cache.max_entries": 1000,

		// Rate Limit
		"rate_limit.enabled":          true,
		"rate_limit.requests":         120,
		"rate_limit.window":           time.Minute,
		"rate_limit.strategy":         "sliding_window",
		"rate_limit.backend":          "memory",
		"rate_limit.burst_size":       10,
		"rate_limit.cleanup_interval": 5 * time.Minute,
		"rate_limit.redis_addr":       "",

		// Audit
		"audit.enabled":         true,
		"audit.backend":         "stdout",
		"audit.file_path":       "",
		"audit.buffer_size":     1000,
		"audit.flush_period":    5 * time.Second,
		"audit.exclude_methods": []string{},

		// Simulation
		"simulation.tick_interval": 100 * time.Millisecond,
		"simulation.quantum":       0.1,

		// Advisor
		"advisor.provider":       "heuristic",
		"advisor.endpoint":       "https://api.openai.com/v1/chat/completions",
		"advisor.model":          "gpt-4",
		"advisor.api_key":        "",
		"advisor.timeout":        30 * time.Second,
		"advisor.max_tokens":     1000,
		"advisor.temperature":    0.7,
		"advisor.cache_ttl":      10 * time.Minute,
		"advisor.max_per_minute": 20,

		// Dataset
		"dataset.path": "",

		// Stream
		"stream.path":          "/ws",
		"stream.client_buffer": 256,
		"stream.write_timeout": 5 * time.Second,
		"stream.ping_interval": 30 * time.Second,
		"stream.read_timeout":  60 * time.Second,

		// Report
		"report.default_format":     "csv",
		"report.company_name":       "Multimodal Transit",
		"report.max_paths_in_table": 50,
		"report.page_numbers":       true,
	}
}

// loadDefaults загружает значения по умолчанию
func (l *Loader) loadDefaults() error {
	return l.k.Load(confmap.Provider(defaultValues(), "."), nil)
}

// loadConfigFile загружает конфигурацию из файла
func (l *Loader) loadConfigFile() error {
	if configPath := os.Getenv(configEnvVar); configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("%s=%s: %w", configEnvVar, configPath, err)
		}
		return l.k.Load(file.Provider(configPath), yaml.Parser())
	}

	for _, path := range l.configPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}

		if _, err := os.Stat(absPath); err == nil {
			return l.k.Load(file.Provider(absPath), yaml.Parser())
		}
	}

	return os.ErrNotExist
}

// loadEnv загружает конфигурацию из переменных окружения.
// MULTIMODAL_RATE_LIMIT_BURST_SIZE -> rate_limit.burst_size: известные
// ключи сопоставляются по плоской форме, остальные делятся по "_".
func (l *Loader) loadEnv() error {
	known := envKeyIndex(l.k.Keys())

	return l.k.Load(env.ProviderWithValue(l.envPrefix, ".", func(envKey string, value string) (string, interface{}) {
		flat := strings.ToLower(strings.TrimPrefix(envKey, l.envPrefix))
		if flat == "config" {
			return "", nil
		}

		key, ok := known[flat]
		if !ok {
			key = strings.ReplaceAll(flat, "_", ".")
		}

		if isSliceField(key) {
			return key, splitAndTrim(value)
		}

		return key, value
	}), nil)
}

// envKeyIndex строит отображение "rate_limit_burst_size" -> "rate_limit.burst_size"
func envKeyIndex(keys []string) map[string]string {
	index := make(map[string]string, len(keys))
	for _, k := range keys {
		index[strings.ReplaceAll(k, ".", "_")] = k
	}
	return index
}

// sliceFields - поля, которые должны парситься как слайсы
var sliceFields = map[string]bool{
	"http.cors.allowed_origins": true,
	"http.cors.allowed_methods": true,
	"http.cors.allowed_headers": true,
	"http.cors.exposed_headers": true,
	"audit.exclude_methods":     true,
}

func isSliceField(key string) bool {
	return sliceFields[key]
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// MustLoad загружает конфигурацию или паникует
func MustLoad(opts ...LoaderOption) *Config {
	cfg, err := NewLoader(opts...).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Load - удобная функция для загрузки с дефолтными настройками
func Load() (*Config, error) {
	return NewLoader().Load()
}
