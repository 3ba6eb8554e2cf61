package salesdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	_ "modernc.org/sqlite"
)

// RowCap is the maximum number of rows returned for a single query.
const RowCap = 30

const (
	defaultQueryTimeout = 15 * time.Second
	defaultCacheTTL     = 5 * time.Minute
)

// Options configures a Database.
type Options struct {
	Logger *slog.Logger

	// Descriptions maps "table.column" or "column" to a human readable description.
	Descriptions map[string]string

	// MandatoryColumns are listed in the schema description as columns that should be
	// included in answers whenever they are available.
	MandatoryColumns []string

	// FilterColumns are listed in the schema description as the columns users
	// usually filter by.
	FilterColumns []string

	QueryTimeout time.Duration
	CacheTTL     time.Duration

	// SkipSampleValues disables DISTINCT sampling of low-cardinality TEXT and INTEGER columns.
	SkipSampleValues bool
}

// Database is a read-only handle to the sales database.
type Database struct {
	db     *sql.DB
	log    *slog.Logger
	opts   Options
	schema *Schema
	cache  *ttlcache.Cache[string, *Result]
}

// Open opens the SQLite file at path in read-only mode and loads its schema.
func Open(ctx context.Context, path string, opts Options) (*Database, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = defaultQueryTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sales database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sales database: %w", err)
	}

	d := &Database{
		db:   db,
		log:  opts.Logger,
		opts: opts,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, *Result](opts.CacheTTL),
		),
	}

	schema, err := loadSchema(ctx, db, opts)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	d.schema = schema

	go d.cache.Start()

	d.log.Info("salesdb: opened", "path", path, "tables", len(schema.Tables))
	return d, nil
}

// Close stops the result cache and closes the connection.
func (d *Database) Close() error {
	d.cache.Stop()
	return d.db.Close()
}

// Schema returns the schema loaded at open time.
func (d *Database) Schema() *Schema {
	return d.schema
}

// Query runs a read-only statement and returns at most RowCap rows.
func (d *Database) Query(ctx context.Context, query string) (*Result, error) {
	stmt, err := normalizeStatement(query)
	if err != nil {
		return nil, err
	}
	if err := d.schema.checkTables(stmt); err != nil {
		return nil, err
	}

	key := cacheKey(stmt)
	if item := d.cache.Get(key); item != nil {
		d.log.Debug("salesdb: cache hit", "sql", stmt)
		return item.Value(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.QueryTimeout)
	defer cancel()

	// RowCap+1 件目の有無で打ち切りを判定する
	wrapped := fmt.Sprintf("SELECT * FROM (%s) LIMIT %d", stmt, RowCap+1)
	d.log.Debug("salesdb: executing query", "sql", wrapped)

	rows, err := d.db.QueryContext(ctx, wrapped)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	result := &Result{SQL: stmt, Columns: columns}
	for rows.Next() {
		if len(result.Rows) == RowCap {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}

	d.cache.Set(key, result, ttlcache.DefaultTTL)
	return result, nil
}

// cacheKey keeps the case of the statement since SQLite compares text literals case-sensitively.
func cacheKey(stmt string) string {
	return compactSpace(stmt)
}

func classifyError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such table"), strings.Contains(msg, "no such column"):
		return fmt.Errorf("%w: %s", ErrSchemaMismatch, msg)
	case strings.Contains(msg, "readonly"), strings.Contains(msg, "read-only"):
		return fmt.Errorf("%w: %s", ErrNotReadOnly, msg)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("query timed out: %w", err)
	}
	return fmt.Errorf("query failed: %w", err)
}
