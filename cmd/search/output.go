package search

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lepinkainen/libsearch/internal/fileutil"
	"github.com/lepinkainen/libsearch/internal/library"
	"github.com/lepinkainen/libsearch/internal/session"
)

// Output formats accepted by --format.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
)

// Result is the rendered outcome of one search.
type Result struct {
	Query            string       `json:"query" yaml:"query"`
	Slot             library.Slot `json:"slot" yaml:"slot"`
	State            string       `json:"state" yaml:"state"`
	Error            string       `json:"error,omitempty" yaml:"error,omitempty"`
	library.Snapshot `yaml:",inline"`
}

func newResult(slot library.Slot, q library.Query, state session.State, snap library.Snapshot, err error) Result {
	res := Result{
		Query:    library.QueryString(q),
		Slot:     slot,
		State:    state.String(),
		Snapshot: snap,
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// render writes v in format. v is a Result, a batch of them, a single
// BookRecord or a bookmark list.
func render(w io.Writer, format string, v any) error {
	switch format {
	case "", FormatText:
		return renderText(w, v)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return enc.Close()
	case FormatMarkdown:
		_, err := io.WriteString(w, renderMarkdown(v))
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderText(w io.Writer, v any) error {
	var sb strings.Builder
	switch v := v.(type) {
	case Result:
		fmt.Fprintf(&sb, "%s: %d holdings (%d reported, %s)\n", v.Query, len(v.Records), v.Count, v.State)
		if v.Error != "" {
			fmt.Fprintf(&sb, "error: %s\n", v.Error)
		}
		for i, rec := range v.Records {
			sb.WriteString("\n")
			writeRecordText(&sb, i+1, rec)
		}
	case []Result:
		for i, res := range v {
			if i > 0 {
				sb.WriteString("\n")
			}
			if err := renderText(&sb, res); err != nil {
				return err
			}
		}
	case library.BookRecord:
		writeRecordText(&sb, 0, v)
	case []BookmarkEntry:
		if len(v) == 0 {
			sb.WriteString("No bookmarked books\n")
		}
		for i, entry := range v {
			if i > 0 {
				sb.WriteString("\n")
			}
			if entry.Book != nil {
				writeRecordText(&sb, i+1, *entry.Book)
				continue
			}
			fmt.Fprintf(&sb, "%d. %s\n", i+1, entry.ISBN)
			writeField(&sb, "Error", entry.Error)
		}
	default:
		return fmt.Errorf("cannot render %T as text", v)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func writeRecordText(sb *strings.Builder, n int, rec library.BookRecord) {
	if n > 0 {
		fmt.Fprintf(sb, "%d. %s\n", n, rec.Title)
	} else {
		fmt.Fprintf(sb, "%s\n", rec.Title)
	}
	writeField(sb, "Author", rec.Author)
	writeField(sb, "Publisher", joinNonEmpty(" ", rec.Publisher, rec.PubDate))
	writeField(sb, "ISBN", rec.ISBN)
	writeField(sb, "Library", joinNonEmpty(" ", rec.LibraryID, parenthesize(rec.Status)))
	writeField(sb, "URL", rec.URL)
}

func writeField(sb *strings.Builder, label, value string) {
	if value != "" {
		fmt.Fprintf(sb, "   %-10s %s\n", label+":", value)
	}
}

func renderMarkdown(v any) string {
	mb := fileutil.NewMarkdownBuilder().AddType("library-search")

	switch v := v.(type) {
	case Result:
		mb.AddTitle("Library search: " + v.Query).
			AddField("query", v.Query).
			AddField("state", v.State).
			AddField("holdings", len(v.Records)).
			AddField("count", v.Count).
			AddTags("library-search", "search/"+string(v.Slot))
		if v.Error != "" {
			mb.AddCallout("warning", "Search did not complete", v.Error)
		}
		for _, rec := range v.Records {
			mb.AddListItem(markdownRecord(rec))
		}
		mb.EndList()
	case []Result:
		mb.AddTitle(fmt.Sprintf("Library batch search (%d queries)", len(v))).
			AddField("queries", len(v)).
			AddTags("library-search", "search/batch")
		for _, res := range v {
			mb.AddParagraph(fmt.Sprintf("## %s (%s, %d holdings)", res.Query, res.State, len(res.Records)))
			for _, rec := range res.Records {
				mb.AddListItem(markdownRecord(rec))
			}
			mb.EndList()
		}
	case library.BookRecord:
		mb.AddTitle(v.Title).
			AddField("isbn", v.ISBN).
			AddField("author", v.Author).
			AddField("publisher", v.Publisher).
			AddField("library", v.LibraryID).
			AddTags("library-search", "book")
		mb.AddParagraph(joinNonEmpty(" | ", v.LibraryID, v.Status))
		mb.AddExternalLink("Catalog entry", v.URL)
	case []BookmarkEntry:
		mb.AddTitle("Library bookmarks").
			AddField("bookmarks", len(v)).
			AddTags("library-search", "bookmarks")
		for _, entry := range v {
			if entry.Book != nil {
				mb.AddListItem(markdownRecord(*entry.Book))
				continue
			}
			mb.AddListItem(joinNonEmpty(" | ", entry.ISBN, "error: "+entry.Error))
		}
		mb.EndList()
	}

	return mb.Build()
}

func markdownRecord(rec library.BookRecord) string {
	title := rec.Title
	if rec.URL != "" {
		title = fmt.Sprintf("[%s](%s)", rec.Title, rec.URL)
	}
	return joinNonEmpty(" | ", title, rec.Author, rec.LibraryID, rec.Status)
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func parenthesize(s string) string {
	if s == "" {
		return ""
	}
	return "(" + s + ")"
}
