package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Telemetry  TelemetryConfig
	Profiling  ProfilingConfig
	Storage    StorageConfig
	Kafka      KafkaConfig
	Sync       SyncConfig
	Legacy     LegacySourceConfig
	References []ReferenceSourceConfig
	Entities   []EntityRouteConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// Catalog database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig holds catalog database connection settings
type DatabaseConfig struct {
	Driver          string // postgres, sqlite
	Path            string // sqlite file path (":memory:" allowed)
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	TrustedProxies []string
	AllowOrigins   []string
	MaxBodyBytes   int64
	// TriggerRateLimit is the per-client budget of trigger requests per
	// minute. Zero disables the limiter.
	TriggerRateLimit int
	TriggerBurst     int
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string
	Insecure          bool // Use insecure (non-TLS) connection (development only)
	DBTraceEnabled    bool // Enable database query tracing (otelgorm)
}

// ProfilingConfig holds Pyroscope continuous profiling settings
type ProfilingConfig struct {
	Enabled           bool
	ServerAddress     string // e.g. "http://pyroscope:4040"
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
	ProfileTypes      []string // cpu, alloc_space, inuse_space, goroutines, mutex_count, ...
	// SpanProfiles links CPU samples to trace spans; needs telemetry enabled
	SpanProfiles bool
}

// StorageConfig holds object storage settings for reference exports
type StorageConfig struct {
	Region          string
	Endpoint        string // custom endpoint for MinIO or localstack
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// KafkaConfig holds sync event publishing settings
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// SyncConfig holds pipeline and service settings
type SyncConfig struct {
	BatchSize            int
	MaxRetries           int
	RetryBaseDelay       time.Duration
	RetryMaxDelay        time.Duration
	ProcessorConcurrency int
	LockBackend          string // memory, redis
	LockTTL              time.Duration
	Workers              int
	QueueSize            int
	MappingFile          string
	ReconcileOnStartup   bool
	Schedules            map[string]time.Duration // entity type -> interval
	ManufacturerCodes    map[string]string        // source code -> catalog reference
	CategoryCodes        map[string]string        // source code -> catalog reference
}

// LegacySourceConfig describes the legacy system of record
type LegacySourceConfig struct {
	Name             string
	Driver           string // postgres (lib/pq), pgx
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	Encrypt          bool
	Allowlist        []string // schema.table entries
	ConnectTimeout   time.Duration
	QueryTimeout     time.Duration
	PoolSize         int
	PageSize         int
	QueriesPerSecond float64
	BreakerFailures  uint32
	BreakerTimeout   time.Duration
}

// ReferenceSourceConfig describes one industry reference export
type ReferenceSourceConfig struct {
	Name        string            `mapstructure:"name"`
	Format      string            `mapstructure:"format"` // tabular_csv, tabular_xlsx, exchange_xml
	Location    string            `mapstructure:"location"`
	Table       string            `mapstructure:"table"`
	Delimiter   string            `mapstructure:"delimiter"`
	Sheet       string            `mapstructure:"sheet"`
	Columns     []string          `mapstructure:"columns"`
	MinVersions map[string]string `mapstructure:"min_versions"` // vcdb/pcdb/qdb -> YYYY-MM-DD
	PageSize    int               `mapstructure:"page_size"`
}

// EntityRouteConfig binds an entity type to a source and table
type EntityRouteConfig struct {
	EntityType string   `mapstructure:"entity_type"`
	Source     string   `mapstructure:"source"`
	Table      string   `mapstructure:"table"`
	KeyColumn  string   `mapstructure:"key_column"`
	Columns    []string `mapstructure:"columns"`
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with PARTSYNC_ prefix (e.g., PARTSYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	return fromViper(v)
}

// LoadFile loads configuration from an explicit file path
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("PARTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// booleans that default to true cannot be filled in by applyDefaults
	v.SetDefault("sync.reconcile_on_startup", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Path:            v.GetString("database.path"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
			AllowOrigins:     v.GetStringSlice("http.allow_origins"),
			MaxBodyBytes:     v.GetInt64("http.max_body_bytes"),
			TriggerRateLimit: v.GetInt("http.trigger_rate_limit"),
			TriggerBurst:     v.GetInt("http.trigger_burst"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
		},
		Profiling: ProfilingConfig{
			Enabled:           v.GetBool("profiling.enabled"),
			ServerAddress:     v.GetString("profiling.server_address"),
			ApplicationName:   v.GetString("profiling.application_name"),
			BasicAuthUser:     v.GetString("profiling.basic_auth_user"),
			BasicAuthPassword: v.GetString("profiling.basic_auth_password"),
			ProfileTypes:      v.GetStringSlice("profiling.profile_types"),
			SpanProfiles:      v.GetBool("profiling.span_profiles"),
		},
		Storage: StorageConfig{
			Region:          v.GetString("storage.region"),
			Endpoint:        v.GetString("storage.endpoint"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
		},
		Kafka: KafkaConfig{
			Enabled: v.GetBool("kafka.enabled"),
			Brokers: v.GetStringSlice("kafka.brokers"),
			Topic:   v.GetString("kafka.topic"),
		},
		Sync: SyncConfig{
			BatchSize:            v.GetInt("sync.batch_size"),
			MaxRetries:           v.GetInt("sync.max_retries"),
			RetryBaseDelay:       v.GetDuration("sync.retry_base_delay"),
			RetryMaxDelay:        v.GetDuration("sync.retry_max_delay"),
			ProcessorConcurrency: v.GetInt("sync.processor_concurrency"),
			LockBackend:          v.GetString("sync.lock_backend"),
			LockTTL:              v.GetDuration("sync.lock_ttl"),
			Workers:              v.GetInt("sync.workers"),
			QueueSize:            v.GetInt("sync.queue_size"),
			MappingFile:          v.GetString("sync.mapping_file"),
			ReconcileOnStartup:   v.GetBool("sync.reconcile_on_startup"),
			ManufacturerCodes:    v.GetStringMapString("sync.manufacturer_codes"),
			CategoryCodes:        v.GetStringMapString("sync.category_codes"),
		},
		Legacy: LegacySourceConfig{
			Name:             v.GetString("legacy.name"),
			Driver:           v.GetString("legacy.driver"),
			Host:             v.GetString("legacy.host"),
			Port:             v.GetInt("legacy.port"),
			User:             v.GetString("legacy.user"),
			Password:         v.GetString("legacy.password"),
			Database:         v.GetString("legacy.database"),
			Encrypt:          v.GetBool("legacy.encrypt"),
			Allowlist:        v.GetStringSlice("legacy.allowlist"),
			ConnectTimeout:   v.GetDuration("legacy.connect_timeout"),
			QueryTimeout:     v.GetDuration("legacy.query_timeout"),
			PoolSize:         v.GetInt("legacy.pool_size"),
			PageSize:         v.GetInt("legacy.page_size"),
			QueriesPerSecond: v.GetFloat64("legacy.queries_per_second"),
			BreakerFailures:  v.GetUint32("legacy.breaker_failures"),
			BreakerTimeout:   v.GetDuration("legacy.breaker_timeout"),
		},
	}

	schedules, err := parseSchedules(v.GetStringMapString("sync.schedules"))
	if err != nil {
		return nil, err
	}
	cfg.Sync.Schedules = schedules

	if err := v.UnmarshalKey("references", &cfg.References); err != nil {
		return nil, fmt.Errorf("error decoding references: %w", err)
	}
	if err := v.UnmarshalKey("entities", &cfg.Entities); err != nil {
		return nil, fmt.Errorf("error decoding entities: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseSchedules(raw map[string]string) (map[string]time.Duration, error) {
	out := make(map[string]time.Duration, len(raw))
	for entity, value := range raw {
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("sync.schedules.%s: %w", entity, err)
		}
		out[entity] = d
	}
	return out, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "partsync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.Driver == DriverSQLite && cfg.Database.Path == "" {
		cfg.Database.Path = "partsync.db"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "partsync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodyBytes == 0 {
		cfg.HTTP.MaxBodyBytes = 1 << 20
	}
	if cfg.HTTP.TriggerRateLimit > 0 && cfg.HTTP.TriggerBurst == 0 {
		cfg.HTTP.TriggerBurst = cfg.HTTP.TriggerRateLimit
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "partsync"
	}
	if cfg.Profiling.ApplicationName == "" {
		cfg.Profiling.ApplicationName = cfg.Telemetry.ServiceName
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "partsync.sync-finished"
	}

	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 2000
	}
	if cfg.Sync.MaxRetries == 0 {
		cfg.Sync.MaxRetries = 3
	}
	if cfg.Sync.RetryBaseDelay == 0 {
		cfg.Sync.RetryBaseDelay = time.Second
	}
	if cfg.Sync.RetryMaxDelay == 0 {
		cfg.Sync.RetryMaxDelay = 30 * time.Second
	}
	if cfg.Sync.ProcessorConcurrency == 0 {
		cfg.Sync.ProcessorConcurrency = 8
	}
	if cfg.Sync.LockBackend == "" {
		cfg.Sync.LockBackend = "memory"
	}
	if cfg.Sync.LockTTL == 0 {
		cfg.Sync.LockTTL = 2 * time.Minute
	}
	if cfg.Sync.Workers == 0 {
		cfg.Sync.Workers = 2
	}
	if cfg.Sync.QueueSize == 0 {
		cfg.Sync.QueueSize = 64
	}

	if cfg.Legacy.Name == "" {
		cfg.Legacy.Name = "legacy"
	}
	if cfg.Legacy.Driver == "" {
		cfg.Legacy.Driver = "postgres"
	}
	if cfg.Legacy.Port == 0 {
		cfg.Legacy.Port = 5432
	}
	if cfg.Legacy.ConnectTimeout == 0 {
		cfg.Legacy.ConnectTimeout = 10 * time.Second
	}
	if cfg.Legacy.QueryTimeout == 0 {
		cfg.Legacy.QueryTimeout = 60 * time.Second
	}
	if cfg.Legacy.PoolSize == 0 {
		cfg.Legacy.PoolSize = 4
	}
	if cfg.Legacy.PageSize == 0 {
		cfg.Legacy.PageSize = cfg.Sync.BatchSize
	}
	if cfg.Legacy.BreakerFailures == 0 {
		cfg.Legacy.BreakerFailures = 5
	}
	if cfg.Legacy.BreakerTimeout == 0 {
		cfg.Legacy.BreakerTimeout = 30 * time.Second
	}
	for i := range cfg.References {
		if cfg.References[i].PageSize == 0 {
			cfg.References[i].PageSize = cfg.Sync.BatchSize
		}
		if cfg.References[i].Format == "tabular_csv" && cfg.References[i].Delimiter == "" {
			cfg.References[i].Delimiter = ","
		}
	}
	if len(cfg.Entities) == 0 {
		cfg.Entities = DefaultEntityRoutes(cfg.Legacy.Name)
	}
}

// DefaultEntityRoutes binds every legacy entity type to its table in the
// system of record. Reference entity types need explicit routes.
func DefaultEntityRoutes(legacySource string) []EntityRouteConfig {
	route := func(entity, table, key string) EntityRouteConfig {
		return EntityRouteConfig{EntityType: entity, Source: legacySource, Table: table, KeyColumn: key}
	}
	return []EntityRouteConfig{
		route("manufacturer", "CATALOG.MFRMAST", "MFRCD"),
		route("part", "CATALOG.PARTMAST", "PARTNO"),
		route("measurement", "CATALOG.PARTDIM", "PARTNO"),
		route("stock", "INVENTORY.STKBAL", "PARTNO"),
		route("pricing", "PRICING.PRCLIST", "PARTNO"),
		route("customer", "SALES.CUSTMAST", "CUSTNO"),
		route("order", "SALES.ORDHDR", "ORDNO"),
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.App.Env == "production" {
		if c.Database.Driver == "postgres" {
			if c.Database.Password == "" {
				return fmt.Errorf("database.password is required in production")
			}
			if c.Database.SSLMode == "disable" {
				return fmt.Errorf("database.sslmode cannot be 'disable' in production")
			}
		}
		if c.Legacy.Host != "" && !c.Legacy.Encrypt {
			return fmt.Errorf("legacy.encrypt must be true in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	if c.Profiling.Enabled && c.Profiling.ServerAddress == "" {
		return fmt.Errorf("profiling.server_address is required when profiling is enabled")
	}

	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be positive")
	}
	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("sync.max_retries cannot be negative")
	}
	if c.Sync.RetryMaxDelay < c.Sync.RetryBaseDelay {
		return fmt.Errorf("sync.retry_max_delay (%s) cannot be less than sync.retry_base_delay (%s)",
			c.Sync.RetryMaxDelay, c.Sync.RetryBaseDelay)
	}
	switch c.Sync.LockBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("sync.lock_backend must be memory or redis, got %q", c.Sync.LockBackend)
	}

	switch c.Legacy.Driver {
	case "postgres", "pgx":
	default:
		return fmt.Errorf("legacy.driver must be postgres or pgx, got %q", c.Legacy.Driver)
	}
	if c.Legacy.PoolSize <= 0 {
		return fmt.Errorf("legacy.pool_size must be positive")
	}

	sources := map[string]bool{c.Legacy.Name: true}
	for _, ref := range c.References {
		if ref.Name == "" {
			return fmt.Errorf("references: name is required")
		}
		if sources[ref.Name] {
			return fmt.Errorf("references: duplicate source name %q", ref.Name)
		}
		sources[ref.Name] = true
		switch ref.Format {
		case "tabular_csv", "tabular_xlsx", "exchange_xml":
		default:
			return fmt.Errorf("references.%s: unknown format %q", ref.Name, ref.Format)
		}
		if ref.Location == "" || ref.Table == "" {
			return fmt.Errorf("references.%s: location and table are required", ref.Name)
		}
	}

	seen := make(map[string]bool, len(c.Entities))
	for _, route := range c.Entities {
		if route.EntityType == "" || route.Table == "" {
			return fmt.Errorf("entities: entity_type and table are required")
		}
		if seen[route.EntityType] {
			return fmt.Errorf("entities: duplicate route for %q", route.EntityType)
		}
		seen[route.EntityType] = true
		if !sources[route.Source] {
			return fmt.Errorf("entities.%s: unknown source %q", route.EntityType, route.Source)
		}
	}

	return nil
}

// Route returns the configured route for an entity type.
func (c *Config) Route(entityType string) (EntityRouteConfig, bool) {
	for _, r := range c.Entities {
		if r.EntityType == entityType {
			return r, true
		}
	}
	return EntityRouteConfig{}, false
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// DSN returns the legacy source connection string
func (l *LegacySourceConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(l.User, l.Password),
		Host:   fmt.Sprintf("%s:%d", l.Host, l.Port),
		Path:   l.Database,
	}
	q := u.Query()
	if l.Encrypt {
		q.Set("sslmode", "require")
	} else {
		q.Set("sslmode", "disable")
	}
	if l.ConnectTimeout > 0 {
		secs := int(l.ConnectTimeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		q.Set("connect_timeout", fmt.Sprintf("%d", secs))
	}
	u.RawQuery = q.Encode()
	return u.String()
}
