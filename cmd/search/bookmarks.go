package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lepinkainen/libsearch/internal/bookmark"
	"github.com/lepinkainen/libsearch/internal/library"
)

// BookmarkEntry is a bookmarked ISBN resolved to its first holding. Error
// is set instead of Book when the lookup failed.
type BookmarkEntry struct {
	ISBN    string              `json:"isbn" yaml:"isbn"`
	AddedAt time.Time           `json:"added_at" yaml:"added_at"`
	Book    *library.BookRecord `json:"book,omitempty" yaml:"book,omitempty"`
	Error   string              `json:"error,omitempty" yaml:"error,omitempty"`
}

var openBookmarks = bookmark.OpenFromConfig

// AddBookmark saves isbn to the bookmark list.
func AddBookmark(ctx context.Context, isbn string) error {
	store, err := openBookmarks()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	added, err := store.Add(ctx, isbn)
	if err != nil {
		return err
	}
	if !added {
		slog.Info("ISBN is already bookmarked", "isbn", isbn)
		return nil
	}
	slog.Info("Bookmarked ISBN", "isbn", isbn)
	return nil
}

// RemoveBookmark deletes isbn from the bookmark list.
func RemoveBookmark(ctx context.Context, isbn string) error {
	store, err := openBookmarks()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	removed, err := store.Remove(ctx, isbn)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("ISBN %s is not bookmarked", isbn)
	}
	slog.Info("Removed bookmark", "isbn", isbn)
	return nil
}

// ListBookmarks looks up every bookmarked ISBN and writes the holdings.
// A failed lookup is reported on its entry and does not stop the others.
func ListBookmarks(ctx context.Context, opts Options) error {
	store, err := openBookmarks()
	if err != nil {
		return err
	}
	bookmarks, err := store.List(ctx)
	_ = store.Close()
	if err != nil {
		return err
	}

	opts.Slot = library.SlotBook
	if opts.Output.ConfigKey == "" {
		opts.Output.ConfigKey = "bookmarks"
	}

	entries := make([]BookmarkEntry, 0, len(bookmarks))
	if len(bookmarks) > 0 {
		reg, cleanup := newRegistry(ctx, opts)
		defer cleanup()

		for _, b := range bookmarks {
			if ctx.Err() != nil {
				break
			}
			entry := BookmarkEntry{ISBN: b.ISBN, AddedAt: b.AddedAt}
			record, err := reg.Lookup(ctx, b.ISBN)
			if err != nil {
				slog.Warn("Bookmark lookup failed", "isbn", b.ISBN, "error", err)
				entry.Error = err.Error()
			} else {
				entry.Book = record
			}
			entries = append(entries, entry)
		}
	}

	if err := render(opts.stdout(), opts.Format, entries); err != nil {
		return err
	}
	if err := writeFiles(opts, entries); err != nil {
		return err
	}

	if ctx.Err() != nil {
		return fmt.Errorf("bookmark lookup cancelled after %d of %d ISBNs: %w", len(entries), len(bookmarks), ctx.Err())
	}
	return nil
}
