// pkg/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config - главная структура конфигурации
type Config struct {
	App        AppConfig        `koanf:"app"`
	HTTP       HTTPConfig       `koanf:"http"`
	GRPC       GRPCConfig       `koanf:"grpc"`
	Log        LogConfig        `koanf:"log"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Tracing    TracingConfig    `koanf:"tracing"`
	Database   DatabaseConfig   `koanf:"database"`
	Cache      CacheConfig      `koanf:"cache"`
	RateLimit  RateLimitConfig  `koanf:"rate_limit"`
	Audit      AuditConfig      `koanf:"audit"`
	Simulation SimulationConfig `koanf:"simulation"`
	Advisor    AdvisorConfig    `koanf:"advisor"`
	Dataset    DatasetConfig    `koanf:"dataset"`
	Stream     StreamConfig     `koanf:"stream"`
	Report     ReportConfig     `koanf:"report"`
}

// AppConfig - общие настройки приложения
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
	Debug       bool   `koanf:"debug"`
}

// HTTPConfig - настройки HTTP сервера (connect + websocket)
type HTTPConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORS            CORSConfig    `koanf:"cors"`
	Compression     bool          `koanf:"compression"`
	Docs            DocsConfig    `koanf:"docs"`
}

// DocsConfig - Swagger UI и OpenAPI документ
type DocsConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Path     string `koanf:"path"` // UI на {path}/, документ на {path}/openapi.json
	Title    string `koanf:"title"`
	TryItOut bool   `koanf:"try_it_out"`
}

// CORSConfig - настройки CORS
type CORSConfig struct {
	Enabled          bool     `koanf:"enabled"`
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	ExposedHeaders   []string `koanf:"exposed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

// GRPCConfig - служебный gRPC сервер (health, reflection)
type GRPCConfig struct {
	Enabled   bool            `koanf:"enabled"`
	Port      int             `koanf:"port"`
	KeepAlive KeepAliveConfig `koanf:"keepalive"`
}

// KeepAliveConfig - настройки keep-alive
type KeepAliveConfig struct {
	MaxConnectionIdle time.Duration `koanf:"max_connection_idle"`
	MaxConnectionAge  time.Duration `koanf:"max_connection_age"`
	Time              time.Duration `koanf:"time"`
	Timeout           time.Duration `koanf:"timeout"`
}

// LogConfig - настройки логирования
type LogConfig struct {
	Level      string `koanf:"level"`       // debug, info, warn, error
	Format     string `koanf:"format"`      // json, text
	Output     string `koanf:"output"`      // stdout, stderr, file
	FilePath   string `koanf:"file_path"`   // путь к файлу логов
	MaxSize    int    `koanf:"max_size"`    // MB
	MaxBackups int    `koanf:"max_backups"` // количество бэкапов
	MaxAge     int    `koanf:"max_age"`     // дней
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig - настройки Prometheus метрик
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// TracingConfig - настройки OpenTelemetry
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Exporter    string  `koanf:"exporter"` // otlp, stdout
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// DatabaseConfig - хранилище истории анализов
type DatabaseConfig struct {
	Driver          string        `koanf:"driver"` // memory, postgres, sqlite
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Database        string        `koanf:"database"` // для sqlite - путь к файлу
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// DSN возвращает строку подключения
func (d DatabaseConfig) DSN() string {
	switch strings.ToLower(d.Driver) {
	case "postgres", "postgresql":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode,
		)
	case "sqlite":
		return d.Database
	default:
		return ""
	}
}

// CacheConfig - настройки кэширования ответов советника
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver"` // redis, memory
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
	MaxEntries int           `koanf:"max_entries"` // для in-memory
}

// Address возвращает адрес кэша
func (c CacheConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitConfig конфигурация rate limiting команд
type RateLimitConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Requests        int           `koanf:"requests"`
	Window          time.Duration `koanf:"window"`
	Strategy        string        `koanf:"strategy"` // sliding_window, token_bucket
	Backend         string        `koanf:"backend"`  // memory, redis
	BurstSize       int           `koanf:"burst_size"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	RedisAddr       string        `koanf:"redis_addr"`
}

// AuditConfig конфигурация журнала команд
type AuditConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Backend        string        `koanf:"backend"` // stdout, file, zstd, none
	FilePath       string        `koanf:"file_path"`
	BufferSize     int           `koanf:"buffer_size"`
	FlushPeriod    time.Duration `koanf:"flush_period"`
	ExcludeMethods []string      `koanf:"exclude_methods"`
}

// SimulationConfig параметры симулятора движения
type SimulationConfig struct {
	TickInterval time.Duration `koanf:"tick_interval"` // 0 - ручной режим (Step)
	Quantum      float64       `koanf:"quantum"`
}

// AdvisorConfig внешний советник по маршрутам
type AdvisorConfig struct {
	Provider     string        `koanf:"provider"` // openai, heuristic, none
	Endpoint     string        `koanf:"endpoint"`
	Model        string        `koanf:"model"`
	APIKey       string        `koanf:"api_key"`
	Timeout      time.Duration `koanf:"timeout"`
	MaxTokens    int           `koanf:"max_tokens"`
	Temperature  float64       `koanf:"temperature"`
	CacheTTL     time.Duration `koanf:"cache_ttl"`
	MaxPerMinute int           `koanf:"max_per_minute"`
}

// DatasetConfig исходный набор данных сети
type DatasetConfig struct {
	Path string `koanf:"path"` // пусто - встроенный набор
}

// StreamConfig websocket поток событий
type StreamConfig struct {
	Path         string        `koanf:"path"`
	ClientBuffer int           `koanf:"client_buffer"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	PingInterval time.Duration `koanf:"ping_interval"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
}

// ReportConfig конфигурация выгрузки отчётов
type ReportConfig struct {
	DefaultFormat   string `koanf:"default_format"` // csv, xlsx, pdf
	CompanyName     string `koanf:"company_name"`
	MaxPathsInTable int    `koanf:"max_paths_in_table"`
	PageNumbers     bool   `koanf:"page_numbers"`
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	var errs []string

	if c.App.Name == "" {
		errs = append(errs, "app.name is required")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Sprintf("http.port must be between 1 and 65535, got %d", c.HTTP.Port))
	}

	if c.HTTP.Docs.Enabled && !strings.HasPrefix(c.HTTP.Docs.Path, "/") {
		errs = append(errs, fmt.Sprintf("http.docs.path must start with /, got %q", c.HTTP.Docs.Path))
	}

	if c.GRPC.Enabled && (c.GRPC.Port <= 0 || c.GRPC.Port > 65535) {
		errs = append(errs, fmt.Sprintf("grpc.port must be between 1 and 65535, got %d", c.GRPC.Port))
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}

	validExporters := map[string]bool{"otlp": true, "stdout": true}
	if c.Tracing.Enabled && !validExporters[c.Tracing.Exporter] {
		errs = append(errs, fmt.Sprintf("tracing.exporter must be one of: otlp, stdout, got %s", c.Tracing.Exporter))
	}

	validDrivers := map[string]bool{"memory": true, "postgres": true, "postgresql": true, "sqlite": true}
	if !validDrivers[strings.ToLower(c.Database.Driver)] {
		errs = append(errs, fmt.Sprintf("database.driver must be one of: memory, postgres, sqlite, got %s", c.Database.Driver))
	}

	if c.Simulation.TickInterval < 0 {
		errs = append(errs, "simulation.tick_interval must be non-negative")
	}
	if c.Simulation.Quantum <= 0 {
		errs = append(errs, "simulation.quantum must be positive")
	}

	validProviders := map[string]bool{"openai": true, "heuristic": true, "none": true}
	if !validProviders[c.Advisor.Provider] {
		errs = append(errs, fmt.Sprintf("advisor.provider must be one of: openai, heuristic, none, got %s", c.Advisor.Provider))
	}
	if c.Advisor.Timeout <= 0 {
		errs = append(errs, "advisor.timeout must be positive")
	}

	validFormats := map[string]bool{"csv": true, "xlsx": true, "pdf": true}
	if c.Report.DefaultFormat != "" && !validFormats[c.Report.DefaultFormat] {
		errs = append(errs, fmt.Sprintf("report.default_format must be one of: csv, xlsx, pdf, got %s", c.Report.DefaultFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsDevelopment проверяет режим разработки
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "dev"
}

// IsProduction проверяет продакшн режим
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production" || c.App.Environment == "prod"
}
