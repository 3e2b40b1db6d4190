// Package bookmark keeps the list of bookmarked ISBNs in a SQLite file.
// Bookmarks never expire and survive cache invalidation.
package bookmark

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	_ "modernc.org/sqlite"

	liberrors "github.com/lepinkainen/libsearch/internal/errors"
	"github.com/lepinkainen/libsearch/internal/library"
)

// Schema keeps bookmarks in the order they were added.
const Schema = `
CREATE TABLE IF NOT EXISTS library_bookmarks (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	isbn TEXT NOT NULL UNIQUE,
	added_at INTEGER NOT NULL
);
`

// Bookmark is one saved ISBN.
type Bookmark struct {
	ISBN    string    `json:"isbn" yaml:"isbn"`
	AddedAt time.Time `json:"added_at" yaml:"added_at"`
}

// Store is the bookmark list.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens the bookmark database at dbPath, creating it if needed.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create bookmark directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open bookmark database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to create bookmark table: %w", err), closeErr)
	}

	return &Store{
		db:   db,
		path: dbPath,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// OpenFromConfig opens the database named by bookmarks.dbfile.
func OpenFromConfig() (*Store, error) {
	dbPath := viper.GetString("bookmarks.dbfile")
	if dbPath == "" {
		dbPath = "./bookmarks.db"
	}
	return Open(dbPath)
}

// Normalize strips hyphens and spaces from isbn and upper-cases a
// trailing check digit X.
func Normalize(isbn string) (string, error) {
	cleaned := strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(isbn)))
	if err := library.ISBN(cleaned).Validate(); err != nil {
		return "", err
	}
	for _, r := range cleaned {
		if (r < '0' || r > '9') && r != 'X' {
			return "", liberrors.NewDecodeError(fmt.Sprintf("invalid ISBN %q", isbn), library.ParamISBN)
		}
	}
	return cleaned, nil
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

// Add bookmarks isbn. It reports false if the ISBN was already bookmarked.
func (s *Store) Add(ctx context.Context, isbn string) (bool, error) {
	isbn, err := Normalize(isbn)
	if err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO library_bookmarks (isbn, added_at) VALUES (?, ?)",
		isbn, s.now().Unix())
	if err != nil {
		return false, fmt.Errorf("failed to add bookmark: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Remove deletes the bookmark for isbn. It reports false if there was none.
func (s *Store) Remove(ctx context.Context, isbn string) (bool, error) {
	isbn, err := Normalize(isbn)
	if err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM library_bookmarks WHERE isbn = ?", isbn)
	if err != nil {
		return false, fmt.Errorf("failed to remove bookmark: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// List returns every bookmark, oldest first.
func (s *Store) List(ctx context.Context) ([]Bookmark, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT isbn, added_at FROM library_bookmarks ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Bookmark
	for rows.Next() {
		var b Bookmark
		var addedAt int64
		if err := rows.Scan(&b.ISBN, &addedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		b.AddedAt = time.Unix(addedAt, 0).UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
