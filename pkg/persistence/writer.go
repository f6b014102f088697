// Package persistence writes the per-run CSV reports: the run summary, one
// row per evicted window, a per-edge cost trace and the final match export.
package persistence

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"sync"
)

// CSVWriter appends records to a CSV file through a buffered writer.
type CSVWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	csv  *csv.Writer
	path string
	rows int
}

// NewCSVWriter creates (or truncates) the file at path and writes header as
// its first record.
func NewCSVWriter(path string, header []string) (*CSVWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open report file: %w", err)
	}

	buf := bufio.NewWriter(file)
	w := &CSVWriter{
		file: file,
		buf:  buf,
		csv:  csv.NewWriter(buf),
		path: path,
	}
	if err := w.csv.Write(header); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to write header of %s: %w", path, err)
	}
	return w, nil
}

// Write appends one record.
func (w *CSVWriter) Write(record []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.csv.Write(record); err != nil {
		return err
	}
	w.rows++
	return nil
}

// Rows returns the number of records written, header excluded.
func (w *CSVWriter) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Flush pushes buffered records to the file.
func (w *CSVWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flush()
}

// Sync flushes and fsyncs the file.
func (w *CSVWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close flushes and closes the underlying file.
func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.flush(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}

// Path returns the file path.
func (w *CSVWriter) Path() string {
	return w.path
}

func (w *CSVWriter) flush() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}
	return w.buf.Flush()
}
