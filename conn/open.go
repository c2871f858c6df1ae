// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package conn

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/canonical/sqlrecord/config"
	"github.com/canonical/sqlrecord/dialect"
)

// Open connects to the database described by cfg and checks that it can be
// reached. The table prefix and statement cache size of cfg are applied
// unless opts override them.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	d, err := dialect.ForName(cfg.Dialect, cfg.DialectOptions()...)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	opts = append([]Option{
		WithTablePrefix(cfg.TablePrefix),
		WithStatementCacheSize(cfg.StatementCacheSize),
	}, opts...)

	driver := cfg.DriverName()
	if driver == "dqlite" {
		return openDqlite(ctx, cfg, d, opts)
	}
	sqldb, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	switch {
	case cfg.MaxOpenConns > 0:
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	case d.Name() == dialect.SQLite:
		// Every connection to ":memory:" is a new database.
		sqldb.SetMaxOpenConns(1)
	}
	if err := sqldb.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("cannot reach database: %w", err)
	}
	return New(sqldb, d, opts...), nil
}
