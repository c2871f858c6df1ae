// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package conn

import (
	"context"
	"database/sql"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultStatementCacheSize is the number of prepared statements kept by a
// DB unless WithStatementCacheSize says otherwise.
const DefaultStatementCacheSize = 256

// prepareSubstrate is an object that statements can be prepared on, e.g. a
// sql.DB or sql.Conn.
type prepareSubstrate interface {
	PrepareContext(context.Context, string) (*sql.Stmt, error)
}

// cachedStmt is a prepared statement shared by the callers running it. It is
// closed once it has been evicted and its last user released it.
//
// The mutex must be locked when accessing users and evicted.
type cachedStmt struct {
	stmt    *sql.Stmt
	mutex   sync.Mutex
	users   int
	evicted bool
}

// acquire registers a user of the statement. It fails when the statement
// was evicted.
func (cs *cachedStmt) acquire() bool {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()
	if cs.evicted {
		return false
	}
	cs.users++
	return true
}

func (cs *cachedStmt) release() {
	cs.mutex.Lock()
	cs.users--
	done := cs.evicted && cs.users == 0
	cs.mutex.Unlock()
	if done {
		cs.stmt.Close()
	}
}

func (cs *cachedStmt) evict() {
	cs.mutex.Lock()
	cs.evicted = true
	done := cs.users == 0
	cs.mutex.Unlock()
	if done {
		cs.stmt.Close()
	}
}

// statementCache keeps the statements prepared on one database for the most
// recently used SQL texts. Concurrent prepares of the same text are
// collapsed into one call.
type statementCache struct {
	stmts  *lru.Cache[string, *cachedStmt]
	flight singleflight.Group
}

func newStatementCache(size int) *statementCache {
	if size <= 0 {
		size = DefaultStatementCacheSize
	}
	// NewWithEvict only fails for a non positive size.
	stmts, _ := lru.NewWithEvict(size, func(_ string, cs *cachedStmt) {
		cs.evict()
	})
	return &statementCache{stmts: stmts}
}

// prepare returns the statement for query, preparing it on ps when it is not
// cached. The caller must release the statement when done with it.
func (sc *statementCache) prepare(ctx context.Context, ps prepareSubstrate, query string) (*cachedStmt, error) {
	if cs, ok := sc.stmts.Get(query); ok && cs.acquire() {
		return cs, nil
	}

	v, err, _ := sc.flight.Do(query, func() (any, error) {
		stmt, err := ps.PrepareContext(ctx, query)
		if err != nil {
			return nil, err
		}
		cs := &cachedStmt{stmt: stmt}
		// Check if a statement has been inserted by someone else since we
		// last checked.
		if alt, ok, _ := sc.stmts.PeekOrAdd(query, cs); ok {
			stmt.Close()
			return alt, nil
		}
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	if cs := v.(*cachedStmt); cs.acquire() {
		return cs, nil
	}

	// The statement was evicted before it could be used. Run on one that
	// is closed on release.
	stmt, err := ps.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &cachedStmt{stmt: stmt, users: 1, evicted: true}, nil
}

// len returns the number of cached statements.
func (sc *statementCache) len() int {
	return sc.stmts.Len()
}

// closeAll evicts every cached statement.
func (sc *statementCache) closeAll() {
	sc.stmts.Purge()
}
