// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config loads the connection and rendering settings of sqlrecord
// from YAML files and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/canonical/sqlrecord/dialect"
)

// Environment variables that override file settings.
const (
	EnvDialect      = "SQLRECORD_DIALECT"
	EnvDriver       = "SQLRECORD_DRIVER"
	EnvDSN          = "SQLRECORD_DSN"
	EnvTablePrefix  = "SQLRECORD_TABLE_PREFIX"
	EnvMaxOpenConns = "SQLRECORD_MAX_OPEN_CONNS"
)

// Config holds the settings needed to open a connection.
type Config struct {
	// Dialect is "mysql" or "sqlite".
	Dialect string `yaml:"dialect"`
	// Driver is the database/sql driver name. It defaults to "mysql" for
	// the MySQL dialect and "sqlite3" for the SQLite dialect.
	Driver      string `yaml:"driver,omitempty"`
	DSN         string `yaml:"dsn"`
	TablePrefix string `yaml:"table_prefix,omitempty"`

	// Charset and Collate set the MySQL table options.
	Charset string `yaml:"charset,omitempty"`
	Collate string `yaml:"collate,omitempty"`

	MaxOpenConns int `yaml:"max_open_conns,omitempty"`
	// StatementCacheSize is the number of prepared statements kept open.
	StatementCacheSize int `yaml:"statement_cache_size,omitempty"`

	// Address is the address a dqlite node listens on. The DSN of the dqlite
	// driver is the node data directory.
	Address string `yaml:"address,omitempty"`
}

// drivers lists the drivers known to work with each dialect. The first one is
// the default.
var drivers = map[string][]string{
	dialect.MySQL:  {"mysql"},
	dialect.SQLite: {"sqlite3", "sqlite", "dqlite"},
}

// Parse reads a Config from YAML.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("cannot parse config: %w", err)
	}
	return cfg, nil
}

// Load reads the Config in path, applies the environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, err
	}
	cfg, err = cfg.WithEnv(os.LookupEnv)
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// FromEnv builds a Config from the environment alone.
func FromEnv() (Config, error) {
	cfg, err := Config{}.WithEnv(os.LookupEnv)
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// WithEnv returns a copy of c with the values found by lookup replacing
// those of c.
func (c Config) WithEnv(lookup func(string) (string, bool)) (Config, error) {
	if v, ok := lookup(EnvDialect); ok {
		c.Dialect = v
	}
	if v, ok := lookup(EnvDriver); ok {
		c.Driver = v
	}
	if v, ok := lookup(EnvDSN); ok {
		c.DSN = v
	}
	if v, ok := lookup(EnvTablePrefix); ok {
		c.TablePrefix = v
	}
	if v, ok := lookup(EnvMaxOpenConns); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", EnvMaxOpenConns, v, err)
		}
		c.MaxOpenConns = n
	}
	return c, nil
}

// DialectName returns the canonical dialect name.
func (c Config) DialectName() (string, error) {
	d, err := dialect.ForName(c.Dialect)
	if err != nil {
		return "", err
	}
	return d.Name(), nil
}

// DriverName returns the configured driver or the default driver of the
// dialect.
func (c Config) DriverName() string {
	if c.Driver != "" {
		return c.Driver
	}
	name, err := c.DialectName()
	if err != nil {
		return ""
	}
	return drivers[name][0]
}

// DialectOptions returns the renderer options described by c.
func (c Config) DialectOptions() []dialect.Option {
	var opts []dialect.Option
	if c.Charset != "" {
		opts = append(opts, dialect.WithCharset(c.Charset))
	}
	if c.Collate != "" {
		opts = append(opts, dialect.WithCollate(c.Collate))
	}
	return opts
}

// Validate checks that c names a known dialect, a driver for that dialect
// and a data source.
func (c Config) Validate() error {
	if c.Dialect == "" {
		return fmt.Errorf("dialect is required")
	}
	name, err := c.DialectName()
	if err != nil {
		return err
	}
	driver := c.DriverName()
	known := false
	for _, d := range drivers[name] {
		if d == driver {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("driver %q cannot be used with dialect %q (expected one of %s)", driver, name, strings.Join(drivers[name], ", "))
	}
	if c.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	if c.MaxOpenConns < 0 {
		return fmt.Errorf("max_open_conns cannot be negative")
	}
	if c.StatementCacheSize < 0 {
		return fmt.Errorf("statement_cache_size cannot be negative")
	}
	return nil
}
