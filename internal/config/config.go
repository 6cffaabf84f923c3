package config

import "time"

// Supported values for DatabaseConfig.Driver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Cache     CacheConfig     `mapstructure:"cache" validate:"required"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port               int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel           string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
}

// DatabaseConfig selects and tunes the storage engine.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"required,oneof=memory sqlite postgres"`
	URL             string        `mapstructure:"url" validate:"required_if=Driver postgres"`
	Path            string        `mapstructure:"path" validate:"required_if=Driver sqlite"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// CacheConfig controls the read-through task cache.
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	ItemTTL    time.Duration `mapstructure:"item_ttl" validate:"gt=0"`
	SearchTTL  time.Duration `mapstructure:"search_ttl" validate:"gt=0"`
	MaxEntries int64         `mapstructure:"max_entries" validate:"gt=0"`
}

// TelemetryConfig configures OpenTelemetry export. An empty endpoint
// disables exporting.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" validate:"required"`
	Environment  string `mapstructure:"environment"`
}

// Enabled reports whether telemetry should be exported.
func (c TelemetryConfig) Enabled() bool {
	return c.OTLPEndpoint != ""
}
