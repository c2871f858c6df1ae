// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

//go:build !dqlite

package conn

import (
	"context"
	"fmt"

	"github.com/canonical/sqlrecord/config"
	"github.com/canonical/sqlrecord/dialect"
)

func openDqlite(context.Context, config.Config, dialect.Dialect, []Option) (*DB, error) {
	return nil, fmt.Errorf("cannot open database: dqlite support requires the dqlite build tag")
}
