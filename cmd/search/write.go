package search

import (
	"fmt"
	"log/slog"

	"github.com/lepinkainen/libsearch/internal/cmdutil"
	"github.com/lepinkainen/libsearch/internal/fileutil"
	"github.com/lepinkainen/libsearch/internal/library"
)

// writeResult prints res and writes any requested output files.
func writeResult(opts Options, res Result) error {
	if err := render(opts.stdout(), opts.Format, res); err != nil {
		return err
	}
	return writeFiles(opts, res)
}

// writeSelection prints a single holding.
func writeSelection(opts Options, rec library.BookRecord) error {
	if err := render(opts.stdout(), opts.Format, rec); err != nil {
		return err
	}
	return writeFiles(opts, rec)
}

func writeFiles(opts Options, v any) error {
	out := opts.Output
	if err := cmdutil.SetupOutputPaths(&out); err != nil {
		return err
	}

	if out.WriteJSON {
		if _, err := fileutil.WriteJSONFile(v, out.JSONOutput, out.Overwrite); err != nil {
			return fmt.Errorf("failed to write JSON output: %w", err)
		}
	}
	if out.WriteMarkdown {
		if err := fileutil.WriteMarkdownFile(out.MarkdownOutput, renderMarkdown(v), out.Overwrite); err != nil {
			return err
		}
		slog.Info("Wrote markdown output", "filename", out.MarkdownOutput)
	}
	return nil
}
