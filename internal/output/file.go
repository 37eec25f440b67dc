package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultResultsPath is where results go when no path is configured.
const DefaultResultsPath = "results.txt"

// resultsFileMode replaces the 0600 that os.CreateTemp applies.
const resultsFileMode os.FileMode = 0o644

// FileWriter writes the text report to a local file, replacing it
// atomically.
type FileWriter struct {
	path string
}

// NewFileWriter returns a writer for path, or DefaultResultsPath if empty.
func NewFileWriter(path string) *FileWriter {
	if strings.TrimSpace(path) == "" {
		path = DefaultResultsPath
	}
	return &FileWriter{path: path}
}

// Name implements Writer.
func (f *FileWriter) Name() string { return "file" }

// Path returns the destination file.
func (f *FileWriter) Path() string { return f.path }

// Write implements Writer.
func (f *FileWriter) Write(ctx context.Context, report Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create results directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".results-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if err := report.WriteText(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(resultsFileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("rename results file: %w", err)
	}
	return nil
}

// Close implements Writer; it performs no action.
func (f *FileWriter) Close() error { return nil }
