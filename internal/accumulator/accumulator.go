// Package accumulator merges incremental diffs from the search aggregator
// into a single ordered, de-duplicated result set.
package accumulator

import (
	"github.com/lepinkainen/libsearch/internal/library"
)

// Merge applies diff to current and returns the new result set.
//
// Inserted records are appended in arrival order. A record whose key is
// already present replaces the earlier value at the earlier position.
// Removed keys are dropped without reordering the remainder. current is
// never modified.
func Merge(current []library.BookRecord, diff library.DiffBatch) []library.BookRecord {
	merged := make([]library.BookRecord, 0, len(current)+len(diff.Inserted))
	index := make(map[library.RecordKey]int, len(current)+len(diff.Inserted))

	add := func(rec library.BookRecord) {
		key := rec.Key()
		if pos, ok := index[key]; ok {
			merged[pos] = rec
			return
		}
		index[key] = len(merged)
		merged = append(merged, rec)
	}

	for _, rec := range current {
		add(rec)
	}
	for _, rec := range diff.Inserted {
		add(rec)
	}

	if len(diff.Removed) == 0 {
		return merged
	}
	return remove(merged, diff.Removed)
}

func remove(records []library.BookRecord, keys []library.RecordKey) []library.BookRecord {
	drop := make(map[library.RecordKey]bool, len(keys))
	for _, key := range keys {
		drop[key] = true
	}

	kept := records[:0]
	for _, rec := range records {
		if !drop[rec.Key()] {
			kept = append(kept, rec)
		}
	}
	return kept
}
