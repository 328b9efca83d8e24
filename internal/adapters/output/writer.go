// Package output provides adapters for writing application output.
package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Stdout is the output path that selects standard output.
const Stdout = "-"

// Writer writes a finished report to a file or to the configured stream.
type Writer struct {
	out io.Writer
}

// NewWriter creates a new Writer whose stream is stdout.
func NewWriter() *Writer {
	return &Writer{out: os.Stdout}
}

// NewWriterWithOutput creates a new Writer with a custom stream.
// This is useful for testing.
func NewWriterWithOutput(out io.Writer) *Writer {
	return &Writer{out: out}
}

// WriteReport stores data at path. An empty path or "-" writes to the stream.
// Files are written to a temporary sibling first and renamed into place so a
// failed run never leaves a truncated workbook behind.
func (w *Writer) WriteReport(path string, data []byte) error {
	if path == "" || path == Stdout {
		_, err := w.out.Write(data)
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write report file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write report file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write report file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move report into place: %w", err)
	}
	return nil
}
