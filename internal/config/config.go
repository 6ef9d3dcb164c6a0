// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

// Package config loads usergate configuration from defaults, an optional
// YAML file and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/usergate/usergate/internal/xdg"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the complete usergate configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Store   StoreConfig   `koanf:"store"`
	Policy  PolicyConfig  `koanf:"policy"`
	Audit   AuditConfig   `koanf:"audit"`
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
	Seed    SeedConfig    `koanf:"seed"`
}

// ServerConfig configures the client listener.
type ServerConfig struct {
	Addr         string        `koanf:"addr" validate:"required,listen_addr"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gte=0"`
}

// StoreConfig selects the account store.
type StoreConfig struct {
	Driver string `koanf:"driver" validate:"oneof=memory sqlite postgres"`
	Path   string `koanf:"path" validate:"required_if=Driver sqlite"`
	DSN    string `koanf:"dsn" validate:"required_if=Driver postgres"`
}

// PolicyConfig selects the authorization policy. An empty File uses the
// built-in policy.
type PolicyConfig struct {
	File string `koanf:"file" validate:"omitempty,file"`
}

// AuditConfig configures the audit log. An empty File logs audit entries
// through the application logger.
type AuditConfig struct {
	Mode string `koanf:"mode" validate:"oneof=denials_only all"`
	File string `koanf:"file"`
}

// LogConfig configures application logging.
type LogConfig struct {
	Format string `koanf:"format" validate:"oneof=json text"`
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
}

// MetricsConfig configures the observability endpoint. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" validate:"omitempty,listen_addr"`
}

// SeedConfig controls which accounts are created on startup.
type SeedConfig struct {
	File     string `koanf:"file" validate:"omitempty,file"`
	Defaults bool   `koanf:"defaults"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "127.0.0.1:4040",
			WriteTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver: DriverSQLite,
			Path:   xdg.SQLitePath(),
		},
		Audit: AuditConfig{
			Mode: "denials_only",
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9100",
		},
		Seed: SeedConfig{
			Defaults: true,
		},
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"addr":          "server.addr",
	"idle-timeout":  "server.idle_timeout",
	"write-timeout": "server.write_timeout",
	"store":         "store.driver",
	"store-path":    "store.path",
	"dsn":           "store.dsn",
	"policy-file":   "policy.file",
	"audit-mode":    "audit.mode",
	"audit-file":    "audit.file",
	"log-format":    "log.format",
	"log-level":     "log.level",
	"metrics-addr":  "metrics.addr",
	"seed-file":     "seed.file",
	"seed-defaults": "seed.defaults",
}

// RegisterFlags adds one flag per configuration key to fs, defaulted from
// Default.
func RegisterFlags(fs *pflag.FlagSet) {
	RegisterServerFlags(fs)
	RegisterStoreFlags(fs)
	RegisterPolicyFlags(fs)
	RegisterAuditFlags(fs)
	RegisterLogFlags(fs)
	RegisterMetricsFlags(fs)
	RegisterSeedFlags(fs)
}

// RegisterServerFlags adds the server.* flags.
func RegisterServerFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("addr", d.Server.Addr, "client listen address")
	fs.Duration("idle-timeout", d.Server.IdleTimeout, "drop clients idle this long (0 = never)")
	fs.Duration("write-timeout", d.Server.WriteTimeout, "per-response write timeout (0 = none)")
}

// RegisterStoreFlags adds the store.* flags.
func RegisterStoreFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("store", d.Store.Driver, "account store driver (memory, sqlite or postgres)")
	fs.String("store-path", d.Store.Path, "SQLite database path")
	fs.String("dsn", d.Store.DSN, "PostgreSQL connection string (default: $DATABASE_URL)")
}

// RegisterPolicyFlags adds the policy.* flags.
func RegisterPolicyFlags(fs *pflag.FlagSet) {
	fs.String("policy-file", "", "casbin policy CSV (default: built-in policy)")
}

// RegisterAuditFlags adds the audit.* flags.
func RegisterAuditFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("audit-mode", d.Audit.Mode, "audit mode (denials_only or all)")
	fs.String("audit-file", d.Audit.File, "append audit entries to this file as JSON lines")
}

// RegisterLogFlags adds the log.* flags.
func RegisterLogFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn or error)")
}

// RegisterMetricsFlags adds the metrics.* flags.
func RegisterMetricsFlags(fs *pflag.FlagSet) {
	fs.String("metrics-addr", Default().Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
}

// RegisterSeedFlags adds the seed.* flags.
func RegisterSeedFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("seed-file", d.Seed.File, "YAML file of accounts to create")
	fs.Bool("seed-defaults", d.Seed.Defaults, "create the bootstrap accounts if missing")
}

// Load builds the configuration. path names a YAML file; when empty, the
// file under the XDG config directory is read if it exists. Flags from fs
// that were set on the command line override the file. The PostgreSQL DSN
// falls back to DATABASE_URL.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		if _, err := os.Stat(xdg.ConfigFile()); err == nil {
			path = xdg.ConfigFile()
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}

	if cfg.Store.DSN == "" {
		cfg.Store.DSN = os.Getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("listen_addr", isListenAddr); err != nil {
		panic(err)
	}
	return v
}

// isListenAddr accepts host:port with an optional host and a port in
// 0..65535, where 0 asks the kernel for a free port.
func isListenAddr(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil {
		return false
	}
	n, err := strconv.ParseUint(port, 10, 16)
	return err == nil && n <= 65535
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fieldError(fe))
	}
	return oops.Code("CONFIG_INVALID").
		With("errors", msgs).
		Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// fieldError renders a validation failure against its configuration key.
func fieldError(fe validator.FieldError) string {
	_, key, _ := strings.Cut(fe.Namespace(), ".")
	switch fe.Tag() {
	case "required", "required_if":
		return key + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", key, fe.Param())
	case "listen_addr":
		return key + " must be host:port"
	case "file":
		return fmt.Sprintf("%s: no such file %q", key, fe.Value())
	case "gte":
		return key + " must not be negative"
	default:
		return fmt.Sprintf("%s failed validation (%s)", key, fe.Tag())
	}
}
