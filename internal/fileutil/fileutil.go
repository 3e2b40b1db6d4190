// Package fileutil writes result files without clobbering existing ones
// unless asked to.
package fileutil

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FileExists reports whether a regular file (not a directory) exists at
// filePath.
func FileExists(filePath string) bool {
	info, err := os.Stat(filePath)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// WriteFileWithOverwrite writes data to a file, respecting the overwrite flag
// Returns true if the file was written, false if it was skipped
func WriteFileWithOverwrite(filePath string, data []byte, perm os.FileMode, overwrite bool) (bool, error) {
	// Check if file exists
	if FileExists(filePath) && !overwrite {
		// Skip writing if file exists and overwrite is false
		return false, nil
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, err
	}

	// Write the file
	if err := os.WriteFile(filePath, data, perm); err != nil {
		return false, err
	}

	return true, nil
}

// WriteMarkdownFile writes markdown content to a file, respecting the overwrite flag
func WriteMarkdownFile(filePath string, content string, overwrite bool) error {
	written, err := WriteFileWithOverwrite(filePath, []byte(content), 0644, overwrite)
	if err != nil {
		return fmt.Errorf("failed to write markdown file: %w", err)
	}
	if !written {
		slog.Info("Markdown file already exists, skipping", "filename", filePath)
	}
	return nil
}

// WriteJSONFile writes data as indented JSON, respecting the overwrite
// flag. It reports whether the file was written.
func WriteJSONFile(data any, filePath string, overwrite bool) (bool, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return false, fmt.Errorf("failed to marshal JSON: %w", err)
	}

	written, err := WriteFileWithOverwrite(filePath, jsonData, 0644, overwrite)
	if err != nil {
		return false, fmt.Errorf("failed to write JSON file: %w", err)
	}
	if !written {
		slog.Info("JSON file already exists, skipping", "filename", filePath)
		return false, nil
	}

	slog.Info("Wrote JSON file", "filename", filePath)
	return true, nil
}
