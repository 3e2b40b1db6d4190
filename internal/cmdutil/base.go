// Package cmdutil holds helpers shared by the CLI commands: output path
// resolution, struct flattening and the Datasette export.
package cmdutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// OutputConfig holds the file outputs requested for a command
type OutputConfig struct {
	ConfigKey      string
	WriteJSON      bool
	JSONOutput     string
	WriteMarkdown  bool
	MarkdownOutput string
	Overwrite      bool
}

// SetupOutputPaths fills in default output paths and creates their
// directories. Defaults are <jsonoutputdir>/<key>.json and
// <markdownoutputdir>/<key>.md.
func SetupOutputPaths(cfg *OutputConfig) error {
	if cfg.JSONOutput != "" {
		cfg.WriteJSON = true
	}
	if cfg.MarkdownOutput != "" {
		cfg.WriteMarkdown = true
	}

	if cfg.WriteJSON && cfg.JSONOutput == "" {
		cfg.JSONOutput = defaultOutputPath("jsonoutputdir", "json", cfg.ConfigKey+".json")
	}
	if cfg.WriteMarkdown && cfg.MarkdownOutput == "" {
		cfg.MarkdownOutput = defaultOutputPath("markdownoutputdir", "markdown", cfg.ConfigKey+".md")
	}

	if cfg.WriteJSON {
		if err := os.MkdirAll(filepath.Dir(cfg.JSONOutput), 0755); err != nil {
			return fmt.Errorf("failed to create JSON output directory: %w", err)
		}
	}
	if cfg.WriteMarkdown {
		if err := os.MkdirAll(filepath.Dir(cfg.MarkdownOutput), 0755); err != nil {
			return fmt.Errorf("failed to create markdown output directory: %w", err)
		}
	}

	return nil
}

func defaultOutputPath(configKey, fallbackDir, filename string) string {
	baseDir := viper.GetString(configKey)
	if baseDir == "" {
		baseDir = fallbackDir
	}
	return filepath.Clean(filepath.Join(baseDir, filename))
}
