package search

import (
	"time"

	"github.com/lepinkainen/libsearch/internal/cmdutil"
)

// HoldingsTable is the Datasette table search results are exported to.
const HoldingsTable = "library_holdings"

const holdingsSchema = `
CREATE TABLE IF NOT EXISTS library_holdings (
	query TEXT NOT NULL,
	slot TEXT NOT NULL,
	session_uuid TEXT,
	library TEXT NOT NULL,
	item_id TEXT NOT NULL,
	isbn TEXT,
	title TEXT,
	author TEXT,
	publisher TEXT,
	pubdate TEXT,
	status TEXT,
	url TEXT,
	exported_at TEXT,
	PRIMARY KEY (query, library, item_id)
)`

type holdingRow struct {
	Query       string
	Slot        string
	SessionUUID string `db:"session_uuid"`
	LibraryID   string `db:"library"`
	ItemID      string
	ISBN        string `db:"isbn"`
	Title       string
	Author      string
	Publisher   string
	PubDate     string `db:"pubdate"`
	Status      string
	URL         string `db:"url"`
	ExportedAt  time.Time
}

func holdingRows(res Result, now time.Time) []holdingRow {
	rows := make([]holdingRow, 0, len(res.Records))
	for _, rec := range res.Records {
		rows = append(rows, holdingRow{
			Query:       res.Query,
			Slot:        string(res.Slot),
			SessionUUID: res.UUID,
			LibraryID:   rec.LibraryID,
			ItemID:      rec.ItemID,
			ISBN:        rec.ISBN,
			Title:       rec.Title,
			Author:      rec.Author,
			Publisher:   rec.Publisher,
			PubDate:     rec.PubDate,
			Status:      rec.Status,
			URL:         rec.URL,
			ExportedAt:  now,
		})
	}
	return rows
}

func holdingToMap(row holdingRow) map[string]any {
	return cmdutil.StructToMap(row, cmdutil.StructToMapOptions{})
}

// exportHoldings writes a completed result set to Datasette when enabled.
func exportHoldings(res Result) error {
	return cmdutil.WriteToDatastore(holdingRows(res, time.Now()), holdingsSchema, HoldingsTable, "library holdings", holdingToMap)
}
