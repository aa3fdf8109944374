// Package config loads the gateway process configuration from flags, ODATA_* environment
// variables, a .env file and an optional YAML/JSON/TOML config file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	odata "github.com/nlstn/go-odata-sql"
	"github.com/nlstn/go-odata-sql/internal/edm"
	"github.com/nlstn/go-odata-sql/internal/schema"
)

// EnvPrefix is prepended to every environment variable, e.g. ODATA_MAX_PAGE_SIZE.
const EnvPrefix = "ODATA"

// Drivers accepted by Config.Driver. DriverMemory serves a small built-in demo data set.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the process configuration of the gateway binary.
type Config struct {
	Addr            string `mapstructure:"addr"`
	Driver          string `mapstructure:"driver"`
	DSN             string `mapstructure:"dsn"`
	Namespace       string `mapstructure:"namespace"`
	ServiceRoot     string `mapstructure:"service_root"`
	DefaultPageSize int64  `mapstructure:"default_page_size"`
	MaxPageSize     int64  `mapstructure:"max_page_size"`
	// BindAll exposes every engine table not listed in Bindings under its own name.
	BindAll       bool   `mapstructure:"bind_all"`
	OnUnsupported string `mapstructure:"on_unsupported"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// RateLimit is the sustained number of requests per second per client; 0 disables.
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
	MetricsPath     string        `mapstructure:"metrics_path"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	Tracing      bool `mapstructure:"tracing"`
	ServerTiming bool `mapstructure:"server_timing"`

	Bindings []BindingConfig `mapstructure:"bindings"`
}

// BindingConfig is one entity set of the config file. Viper lowercases map keys, so
// override column names are matched in lower case.
type BindingConfig struct {
	EntitySet     string                    `mapstructure:"entity_set"`
	Table         string                    `mapstructure:"table"`
	Keys          []string                  `mapstructure:"keys"`
	OnUnsupported string                    `mapstructure:"on_unsupported"`
	Overrides     map[string]ColumnOverride `mapstructure:"overrides"`
}

// ColumnOverride pins the native type of a column, e.g. {kind: decimal, precision: 18, scale: 4}.
type ColumnOverride struct {
	Kind      string `mapstructure:"kind"`
	Precision int    `mapstructure:"precision"`
	Scale     int    `mapstructure:"scale"`
	// Digits is the fractional-second precision of time and timestamp columns.
	Digits   int    `mapstructure:"digits"`
	TimeZone string `mapstructure:"time_zone"`
}

type option struct {
	key   string
	flag  string
	value any
	usage string
}

var options = []option{
	{"config", "config", "", "Path to a YAML, JSON or TOML config file"},
	{"addr", "addr", ":8080", "HTTP listen address"},
	{"driver", "driver", DriverSQLite, "Engine driver: sqlite, postgres or memory"},
	{"dsn", "dsn", "", "Database connection string"},
	{"namespace", "namespace", odata.DefaultNamespace, "Schema namespace of the entity types"},
	{"service_root", "service-root", "", "Absolute service root used in links; derived from the request when empty"},
	{"default_page_size", "default-page-size", int64(0), "Page size when $top is absent; 0 means unbounded"},
	{"max_page_size", "max-page-size", int64(0), "Upper bound for every page; 0 means unbounded"},
	{"bind_all", "bind-all", false, "Expose every table not listed in the bindings"},
	{"on_unsupported", "on-unsupported", string(edm.OnUnsupportedError), "Columns without an EDM mapping: error or warn"},
	{"log_level", "log-level", "info", "Log level: debug, info, warn or error"},
	{"log_format", "log-format", "text", "Log format: text or json"},
	{"rate_limit", "rate-limit", float64(0), "Requests per second per client; 0 disables rate limiting"},
	{"rate_burst", "rate-burst", 20, "Burst size of the per-client rate limit"},
	{"metrics_path", "metrics-path", "/metrics", "Path of the Prometheus endpoint; empty disables it"},
	{"shutdown_timeout", "shutdown-timeout", 10 * time.Second, "Grace period for in-flight requests on shutdown"},
	{"tracing", "tracing", false, "Record OpenTelemetry spans and metrics through the global providers"},
	{"server_timing", "server-timing", false, "Add a Server-Timing header to responses"},
}

// RegisterFlags defines the command line flags and binds them to v.
func RegisterFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	for _, o := range options {
		switch def := o.value.(type) {
		case string:
			flags.String(o.flag, def, o.usage)
		case int:
			flags.Int(o.flag, def, o.usage)
		case int64:
			flags.Int64(o.flag, def, o.usage)
		case float64:
			flags.Float64(o.flag, def, o.usage)
		case bool:
			flags.Bool(o.flag, def, o.usage)
		case time.Duration:
			flags.Duration(o.flag, def, o.usage)
		default:
			return fmt.Errorf("config: unsupported default for %s", o.key)
		}
		if err := v.BindPFlag(o.key, flags.Lookup(o.flag)); err != nil {
			return err
		}
	}
	return nil
}

// LoadDotEnv loads .env style files into the process environment without overriding
// variables already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: %s: %w", p, err)
		}
	}
	return nil
}

// Load resolves the configuration from v. Precedence, highest first: flags, environment,
// config file, defaults.
func Load(v *viper.Viper) (*Config, error) {
	for _, o := range options {
		v.SetDefault(o.key, o.value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that cannot be checked by type alone.
func (c *Config) Validate() error {
	var errs []error
	switch c.Driver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if c.DSN == "" {
			errs = append(errs, errors.New("dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown driver %q", c.Driver))
	}
	if c.DefaultPageSize < 0 || c.MaxPageSize < 0 {
		errs = append(errs, errors.New("page sizes must not be negative"))
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		errs = append(errs, errors.New("rate limit settings must not be negative"))
	}
	if _, err := edm.ParseOnUnsupported(c.OnUnsupported); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}

	seen := make(map[string]bool, len(c.Bindings))
	for i, b := range c.Bindings {
		if b.EntitySet == "" || b.Table == "" {
			errs = append(errs, fmt.Errorf("bindings[%d]: entity_set and table are required", i))
			continue
		}
		if seen[b.EntitySet] {
			errs = append(errs, fmt.Errorf("bindings[%d]: duplicate entity set %s", i, b.EntitySet))
		}
		seen[b.EntitySet] = true
		if _, err := edm.ParseOnUnsupported(b.OnUnsupported); err != nil {
			errs = append(errs, fmt.Errorf("bindings[%d]: %w", i, err))
		}
		for column, o := range b.Overrides {
			if _, err := o.dataType(); err != nil {
				errs = append(errs, fmt.Errorf("bindings[%d]: column %s: %w", i, column, err))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (o ColumnOverride) dataType() (schema.DataType, error) {
	kind := schema.ParseKind(o.Kind)
	if kind == schema.Unsupported {
		return schema.DataType{}, fmt.Errorf("unknown kind %q", o.Kind)
	}
	if o.Digits < 0 || o.Digits > 9 {
		return schema.DataType{}, fmt.Errorf("digits must be between 0 and 9")
	}
	return schema.DataType{
		Kind:      kind,
		Precision: o.Precision,
		Scale:     o.Scale,
		Unit:      schema.UnitForDigits(o.Digits),
		TimeZone:  o.TimeZone,
		Raw:       o.Kind,
	}, nil
}

// Service returns the service settings.
func (c *Config) Service(logger *slog.Logger) odata.Config {
	return odata.Config{
		Namespace:       c.Namespace,
		DefaultPageSize: c.DefaultPageSize,
		MaxPageSize:     c.MaxPageSize,
		ServiceRoot:     c.ServiceRoot,
		Logger:          logger,
	}
}

// ServiceBindings converts the configured bindings. Entity sets without their own
// on_unsupported setting inherit the global one.
func (c *Config) ServiceBindings() ([]odata.Binding, error) {
	out := make([]odata.Binding, 0, len(c.Bindings))
	for _, b := range c.Bindings {
		onUnsupported := b.OnUnsupported
		if onUnsupported == "" {
			onUnsupported = c.OnUnsupported
		}
		binding := odata.Binding{
			EntitySet:     b.EntitySet,
			Table:         b.Table,
			Keys:          b.Keys,
			OnUnsupported: edm.OnUnsupported(onUnsupported),
		}
		if len(b.Overrides) > 0 {
			binding.Overrides = make(map[string]schema.DataType, len(b.Overrides))
			for column, o := range b.Overrides {
				dt, err := o.dataType()
				if err != nil {
					return nil, fmt.Errorf("config: %s.%s: %w", b.EntitySet, column, err)
				}
				binding.Overrides[column] = dt
			}
		}
		out = append(out, binding)
	}
	return out, nil
}

// NewLogger builds the process logger.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
