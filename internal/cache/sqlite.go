package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SessionCacheTable is the table completed search snapshots are kept in.
const SessionCacheTable = "library_session_cache"

// SessionCacheSchema defines the schema for the search session cache.
// Timestamps are unix seconds.
const SessionCacheSchema = `
CREATE TABLE IF NOT EXISTS library_session_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_library_session_expires_at ON library_session_cache(expires_at);
`

// ValidCacheTableNames is the whitelist of allowed cache table names
// Used to prevent SQL injection when interpolating table names
var ValidCacheTableNames = map[string]bool{
	SessionCacheTable: true,
}

// CacheDB manages the SQLite database connection for caching
type CacheDB struct {
	db    *sql.DB
	mu    sync.RWMutex
	path  string
	table string
	now   func() time.Time
}

var (
	_ Store  = (*CacheDB)(nil)
	_ Pruner = (*CacheDB)(nil)
)

// NewCacheDB opens the SQLite cache at dbPath and creates the session table.
func NewCacheDB(dbPath string) (*CacheDB, error) {
	return newCacheDB(dbPath, SessionCacheTable, SessionCacheSchema)
}

func newCacheDB(dbPath, table, schema string) (*CacheDB, error) {
	if err := validateTableName(table); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to connect to cache database: %w", err), closeErr)
	}

	if _, err := db.Exec(schema); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to create cache table: %w", err), closeErr)
	}

	return &CacheDB{
		db:    db,
		path:  dbPath,
		table: table,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// validateTableName checks if the table name is in the whitelist
// to prevent SQL injection attacks
func validateTableName(tableName string) error {
	if !ValidCacheTableNames[tableName] {
		return fmt.Errorf("invalid cache table name: %s", tableName)
	}
	return nil
}

// Path returns the database file the cache lives in.
func (c *CacheDB) Path() string {
	return c.path
}

// Get retrieves a cached value; expired rows count as misses.
func (c *CacheDB) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	query := fmt.Sprintf(`
		SELECT data, expires_at
		FROM %s
		WHERE cache_key = ?
	`, c.table)

	var data string
	var expiresAt int64
	err := c.db.QueryRowContext(ctx, query, key).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query cache: %w", err)
	}

	if c.now().Unix() > expiresAt {
		slog.Debug("Cache expired", "table", c.table, "key", key)
		return "", false, nil
	}

	return data, true, nil
}

// Set stores a value in the cache
func (c *CacheDB) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	query := fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (cache_key, data, cached_at, expires_at)
		VALUES (?, ?, ?, ?)
	`, c.table)

	if _, err := c.db.ExecContext(ctx, query, key, value, now.Unix(), now.Add(effectiveTTL(ttl)).Unix()); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// Delete removes a single entry.
func (c *CacheDB) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	query := fmt.Sprintf("DELETE FROM %s WHERE cache_key = ?", c.table)
	if _, err := c.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Invalidate deletes all entries and returns the number of rows deleted.
func (c *CacheDB) Invalidate(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result, err := c.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", c.table))
	if err != nil {
		return 0, fmt.Errorf("failed to delete cache entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	slog.Debug("Cache table cleared", "table", c.table, "rows_deleted", rowsAffected)
	return rowsAffected, nil
}

// ClearExpired removes expired cache entries
func (c *CacheDB) ClearExpired(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	query := fmt.Sprintf("DELETE FROM %s WHERE expires_at < ?", c.table)
	result, err := c.db.ExecContext(ctx, query, c.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired cache: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		slog.Info("Cleared expired cache entries", "table", c.table, "count", rows)
	}
	return rows, nil
}

// Close closes the database connection
func (c *CacheDB) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
