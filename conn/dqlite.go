// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

//go:build dqlite

package conn

import (
	"context"
	"fmt"

	"github.com/canonical/go-dqlite/app"

	"github.com/canonical/sqlrecord/config"
	"github.com/canonical/sqlrecord/dialect"
)

const defaultDqliteAddress = "127.0.0.1:9001"

// openDqlite starts a dqlite node keeping its data in the directory named by
// the DSN and opens the "sqlrecord" database on it.
func openDqlite(ctx context.Context, cfg config.Config, d dialect.Dialect, opts []Option) (*DB, error) {
	address := cfg.Address
	if address == "" {
		address = defaultDqliteAddress
	}
	node, err := app.New(cfg.DSN, app.WithAddress(address))
	if err != nil {
		return nil, fmt.Errorf("cannot start dqlite node: %w", err)
	}
	if err := node.Ready(ctx); err != nil {
		node.Close()
		return nil, fmt.Errorf("cannot start dqlite node: %w", err)
	}
	sqldb, err := node.Open(ctx, "sqlrecord")
	if err != nil {
		node.Close()
		return nil, fmt.Errorf("cannot open dqlite database: %w", err)
	}
	closer := func() error {
		err := sqldb.Close()
		if nodeErr := node.Close(); err == nil {
			err = nodeErr
		}
		return err
	}
	return New(sqldb, d, append(opts, withCloser(closer))...), nil
}
