package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-mysql-org/go-mysql/replication"
)

const defaultLookupTimeout = 5 * time.Second

type columnInfo struct {
	Name    string
	Primary bool
}

// columnLookup fetches column metadata when the binlog does not carry it.
type columnLookup interface {
	Columns(ctx context.Context, schema, table string) ([]columnInfo, error)
}

type dbLookup struct {
	db *sql.DB
}

func (l dbLookup) Columns(ctx context.Context, schema, table string) ([]columnInfo, error) {
	queryCtx, cancel := context.WithTimeout(ctx, defaultLookupTimeout)
	defer cancel()

	rows, err := l.db.QueryContext(queryCtx,
		"SELECT COLUMN_NAME, COLUMN_KEY FROM information_schema.columns WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION",
		schema, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var cols []columnInfo
	for rows.Next() {
		var name, key string
		if err := rows.Scan(&name, &key); err != nil {
			return nil, err
		}
		cols = append(cols, columnInfo{Name: name, Primary: key == "PRI"})
	}
	return cols, rows.Err()
}

type tableInfo struct {
	columns    []string
	primaryKey string
}

// tableCache resolves column names and the document-id column per table.
type tableCache struct {
	lookup    columnLookup
	overrides map[string]string
	logger    *slog.Logger
	tables    map[string]tableInfo

	lookupTimeout time.Duration
}

func newTableCache(lookup columnLookup, overrides map[string]string, logger *slog.Logger) *tableCache {
	return &tableCache{
		lookup:    lookup,
		overrides: overrides,
		logger:    logger,
		tables:    make(map[string]tableInfo),

		lookupTimeout: defaultLookupTimeout,
	}
}

// invalidate drops everything cached.
func (c *tableCache) invalidate() {
	clear(c.tables)
}

// forget drops the named schema.table entries.
func (c *tableCache) forget(tables ...string) {
	for _, fq := range tables {
		delete(c.tables, fq)
	}
}

// resolve returns column names and the primary key column for the table in
// tme. Names come from the binlog's optional metadata when present
// (binlog_row_metadata=FULL), otherwise from information_schema, and fall
// back to col_N. The primary key is the configured override, else the first
// primary key column.
func (c *tableCache) resolve(ctx context.Context, tme *replication.TableMapEvent) tableInfo {
	fq := string(tme.Schema) + "." + string(tme.Table)
	if info, ok := c.tables[fq]; ok && len(info.columns) == int(tme.ColumnCount) {
		return info
	}

	var info tableInfo
	var lookedUp []columnInfo
	var failed bool
	fetch := func() []columnInfo {
		if lookedUp == nil && c.lookup != nil {
			// The caller's ctx may carry the batcher's idle deadline; a
			// lookup must not fail just because a flush is due.
			lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.lookupTimeout)
			defer cancel()
			cols, err := c.lookup.Columns(lctx, string(tme.Schema), string(tme.Table))
			if err != nil {
				c.logger.Warn("column lookup failed", "table", fq, "error", err)
				failed = true
				cols = []columnInfo{}
			}
			lookedUp = cols
		}
		return lookedUp
	}

	if len(tme.ColumnName) > 0 {
		info.columns = make([]string, len(tme.ColumnName))
		for i, n := range tme.ColumnName {
			info.columns[i] = string(n)
		}
	} else if cols := fetch(); len(cols) == int(tme.ColumnCount) {
		info.columns = make([]string, len(cols))
		for i, col := range cols {
			info.columns[i] = col.Name
		}
	} else {
		c.logger.Warn("column names unavailable, using positional names", "table", fq)
		info.columns = make([]string, tme.ColumnCount)
		for i := range info.columns {
			info.columns[i] = fmt.Sprintf("col_%d", i)
		}
	}

	switch {
	case c.overrides[fq] != "":
		info.primaryKey = c.overrides[fq]
	case len(tme.PrimaryKey) > 0 && int(tme.PrimaryKey[0]) < len(info.columns):
		info.primaryKey = info.columns[tme.PrimaryKey[0]]
	default:
		for _, col := range fetch() {
			if col.Primary {
				info.primaryKey = col.Name
				break
			}
		}
	}
	if info.primaryKey == "" {
		c.logger.Warn("no primary key for table", "table", fq)
	}

	// A failed lookup is retried on the table's next event.
	if !failed {
		c.tables[fq] = info
	}
	return info
}
