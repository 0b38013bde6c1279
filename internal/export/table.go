// Package export writes task results to flat files.
//
// Result tables are CSV files opened in append mode: the header is written
// once when the file is created and every row is flushed as soon as it is
// appended, so a crash loses at most the trial in flight. Session
// summaries are JSON documents checked against an embedded schema, and
// every finished file can be fingerprinted with a BLAKE2b digest.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// ErrHeaderMismatch is returned when an existing file was written with a
// different header.
var ErrHeaderMismatch = errors.New("export: existing file has a different header")

// Table is an append-only CSV file.
type Table struct {
	mu     sync.Mutex
	path   string
	header []string
	file   *os.File
	w      *csv.Writer
	rows   int
}

// OpenTable opens path for appending, creating it and its directory if
// needed. A new or empty file gets header as its first row; an existing
// file must already start with the same header.
func OpenTable(path string, header []string) (*Table, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	if err := checkHeader(path, header); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	t := &Table{path: path, header: header, file: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := t.writeLocked(header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return t, nil
}

// maxClaims bounds the numbered names CreateUnique tries.
const maxClaims = 100

// CreateTable creates a new table at path with header as its first row.
// It fails with an error wrapping os.ErrExist when path is taken.
func CreateTable(path string, header []string) (*Table, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	t := &Table{path: path, header: header, file: f, w: csv.NewWriter(f)}
	if err := t.writeLocked(header); err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

// CreateUnique creates a new table at path, or at the first free numbered
// sibling (name_2.csv, name_3.csv, ...) when path is taken.
func CreateUnique(path string, header []string) (*Table, error) {
	for i := 1; i <= maxClaims; i++ {
		t, err := CreateTable(NumberedPath(path, i), header)
		if !errors.Is(err, os.ErrExist) {
			return t, err
		}
	}
	return nil, fmt.Errorf("create %s: %d numbered names taken", path, maxClaims)
}

// NumberedPath returns path with _i before its extension; i below 2
// returns path unchanged.
func NumberedPath(path string, i int) string {
	if i < 2 {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + strconv.Itoa(i) + ext
}

func checkHeader(path string, header []string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	got, err := csv.NewReader(f).Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header of %s: %w", path, err)
	}
	if !slices.Equal(got, header) {
		return fmt.Errorf("%w: %s", ErrHeaderMismatch, path)
	}
	return nil
}

// Path returns the file path.
func (t *Table) Path() string {
	return t.path
}

// Rows returns the number of data rows appended through this Table.
func (t *Table) Rows() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rows
}

// Append writes one data row and flushes it.
func (t *Table) Append(row []string) error {
	if len(row) != len(t.header) {
		return fmt.Errorf("row has %d columns, header has %d", len(row), len(t.header))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return os.ErrClosed
	}
	if err := t.writeLocked(row); err != nil {
		return err
	}
	t.rows++
	return nil
}

func (t *Table) writeLocked(row []string) error {
	if err := t.w.Write(row); err != nil {
		return fmt.Errorf("write %s: %w", t.path, err)
	}
	t.w.Flush()
	if err := t.w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", t.path, err)
	}
	return nil
}

// Sync commits the file to stable storage.
func (t *Table) Sync() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return os.ErrClosed
	}
	return t.file.Sync()
}

// Close syncs and closes the file. It is safe to call twice.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Sync()
	if cerr := t.file.Close(); err == nil {
		err = cerr
	}
	t.file = nil
	return err
}

// ReadTable reads every row of a CSV file, checking the header.
func ReadTable(r io.Reader, header []string) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)

	got, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if !slices.Equal(got, header) {
		return nil, ErrHeaderMismatch
	}

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, rec)
	}
}
