// Package library holds the domain types shared by the aggregator client,
// the session controller and the registry: queries, catalog holdings and
// the snapshots/diffs exchanged with the search aggregator.
package library

import (
	"fmt"
	"strings"

	liberrors "github.com/lepinkainen/libsearch/internal/errors"
)

// Mode identifies which request shape a Query uses.
type Mode int

const (
	// ModeFreeText searches with a single free-text term.
	ModeFreeText Mode = iota
	// ModeDetail searches with structured field filters.
	ModeDetail
	// ModeISBN looks up a single ISBN.
	ModeISBN
)

func (m Mode) String() string {
	switch m {
	case ModeFreeText:
		return "free"
	case ModeDetail:
		return "detail"
	case ModeISBN:
		return "isbn"
	default:
		return "unknown"
	}
}

// Slot is a logical search context that admits at most one live session.
type Slot string

const (
	SlotFree   Slot = "free"
	SlotDetail Slot = "detail"
	SlotBook   Slot = "book"
)

// SlotFor returns the default slot for queries of the given mode.
func SlotFor(mode Mode) Slot {
	switch mode {
	case ModeDetail:
		return SlotDetail
	case ModeISBN:
		return SlotBook
	default:
		return SlotFree
	}
}

// Filters are the structured fields of a detail search.
type Filters struct {
	Title     string `json:"title,omitempty" yaml:"title,omitempty"`
	Author    string `json:"author,omitempty" yaml:"author,omitempty"`
	Publisher string `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	NDC       string `json:"ndc,omitempty" yaml:"ndc,omitempty"`
	YearStart string `json:"year_start,omitempty" yaml:"year_start,omitempty"`
	YearEnd   string `json:"year_end,omitempty" yaml:"year_end,omitempty"`
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return f == Filters{}
}

func (f Filters) trimmed() Filters {
	return Filters{
		Title:     strings.TrimSpace(f.Title),
		Author:    strings.TrimSpace(f.Author),
		Publisher: strings.TrimSpace(f.Publisher),
		NDC:       strings.TrimSpace(f.NDC),
		YearStart: strings.TrimSpace(f.YearStart),
		YearEnd:   strings.TrimSpace(f.YearEnd),
	}
}

// Query is a search request. Only the fields belonging to Mode are
// meaningful; the constructors leave the others empty.
type Query struct {
	Mode    Mode    `json:"mode" yaml:"mode"`
	Free    string  `json:"free,omitempty" yaml:"free,omitempty"`
	Filters Filters `json:"filters,omitzero" yaml:"filters,omitempty"`
	ISBN    string  `json:"isbn,omitempty" yaml:"isbn,omitempty"`
}

// FreeText builds a free-text query.
func FreeText(term string) Query {
	return Query{Mode: ModeFreeText, Free: strings.TrimSpace(term)}
}

// Detail builds a structured-filter query.
func Detail(f Filters) Query {
	return Query{Mode: ModeDetail, Filters: f.trimmed()}
}

// ISBN builds a single-book lookup query.
func ISBN(isbn string) Query {
	return Query{Mode: ModeISBN, ISBN: strings.TrimSpace(isbn)}
}

// Equal reports whether two queries describe the same logical request.
func (q Query) Equal(other Query) bool {
	if q.Mode != other.Mode {
		return false
	}
	switch q.Mode {
	case ModeFreeText:
		return q.Free == other.Free
	case ModeDetail:
		return q.Filters == other.Filters
	case ModeISBN:
		return q.ISBN == other.ISBN
	}
	return false
}

// Validate checks that the fields required by the query's mode are present.
func (q Query) Validate() error {
	switch q.Mode {
	case ModeFreeText:
		if strings.TrimSpace(q.Free) == "" {
			return liberrors.NewDecodeError("free-text query needs a term", ParamFree)
		}
	case ModeDetail:
		if q.Filters.trimmed().IsZero() {
			return liberrors.NewDecodeError("detail query needs at least one filter", DetailParams...)
		}
	case ModeISBN:
		if strings.TrimSpace(q.ISBN) == "" {
			return liberrors.NewDecodeError("isbn query needs an isbn", ParamISBN)
		}
	default:
		return liberrors.NewDecodeError(fmt.Sprintf("unknown query mode %d", q.Mode))
	}
	return nil
}

// RecordKey uniquely identifies a holding across all catalogs.
type RecordKey struct {
	LibraryID string `json:"library" yaml:"library"`
	ItemID    string `json:"id" yaml:"id"`
}

// BookRecord is a single catalog holding reported by the aggregator.
type BookRecord struct {
	LibraryID string `json:"library" yaml:"library"`
	ItemID    string `json:"id" yaml:"id"`
	ISBN      string `json:"isbn,omitempty" yaml:"isbn,omitempty"`
	Title     string `json:"title" yaml:"title"`
	Author    string `json:"author,omitempty" yaml:"author,omitempty"`
	Publisher string `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	PubDate   string `json:"pubdate,omitempty" yaml:"pubdate,omitempty"`
	Status    string `json:"status,omitempty" yaml:"status,omitempty"`
	URL       string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Key returns the record's identity. Holdings of the same title at two
// libraries have different keys.
func (b BookRecord) Key() RecordKey {
	return RecordKey{LibraryID: b.LibraryID, ItemID: b.ItemID}
}

// Snapshot is the accumulated state of one search session.
type Snapshot struct {
	UUID    string       `json:"uuid" yaml:"uuid"`
	Version int          `json:"version" yaml:"version"`
	Running bool         `json:"running" yaml:"running"`
	Count   int          `json:"count" yaml:"count"`
	Records []BookRecord `json:"books" yaml:"books"`
}

// Clone returns a copy that shares no mutable state with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Records != nil {
		out.Records = make([]BookRecord, len(s.Records))
		copy(out.Records, s.Records)
	}
	return out
}

// DiffBatch is one incremental update from the polling endpoint.
type DiffBatch struct {
	Version  int
	Running  bool
	Count    int
	Inserted []BookRecord
	Removed  []RecordKey
}
