// SPDX-License-Identifier: MPL-2.0

package index

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
)

var (
	// ErrIndexNotFound is returned when the reference index file is absent.
	ErrIndexNotFound = errors.New("reference index not found")

	// ErrColumnCount is wrapped by ParseError for rows that are neither
	// 2 nor 3 columns wide.
	ErrColumnCount = errors.New("should have exactly 3 columns")
)

// ParseError locates a malformed row of a reference index.
type ParseError struct {
	File string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if errors.Is(e.Err, ErrColumnCount) {
		return fmt.Sprintf("Reference file %s %v (line %d)", e.File, e.Err, e.Line)
	}
	return fmt.Sprintf("Corrupted file on line %d: %s: %v", e.Line, e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ReadIndex parses the reference index at path.
func ReadIndex(path string) ([]SetRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, path)
		}
		return nil, fmt.Errorf("opening reference index: %w", err)
	}
	defer func() { _ = f.Close() }() // read-only file

	return ParseIndex(f, path)
}

// ParseIndex reads space-delimited "id name version" rows from r, or the
// legacy "id name" form without a version. Fields may be quoted. Blank lines
// are skipped. name is only used to label errors.
func ParseIndex(r io.Reader, name string) ([]SetRecord, error) {
	reader := csv.NewReader(r)
	reader.Comma = ' '
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	var records []SetRecord
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				return nil, &ParseError{File: name, Line: csvErr.Line, Err: csvErr.Err}
			}
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}

		line, _ := reader.FieldPos(0)
		rec, err := parseRow(row)
		if err != nil {
			return nil, &ParseError{File: name, Line: line, Err: err}
		}
		records = append(records, rec)
	}
}

func parseRow(row []string) (SetRecord, error) {
	if len(row) != 2 && len(row) != 3 {
		return SetRecord{}, fmt.Errorf("%w, got %d", ErrColumnCount, len(row))
	}

	id, err := strconv.Atoi(row[0])
	if err != nil {
		return SetRecord{}, fmt.Errorf("invalid id code %q: %w", row[0], err)
	}
	rec := SetRecord{Name: row[1], IDCode: id}

	if len(row) == 3 {
		v, err := strconv.Atoi(row[2])
		if err != nil {
			return SetRecord{}, fmt.Errorf("invalid version %q: %w", row[2], err)
		}
		rec.Version = &v
	}
	return rec, nil
}

// WriteIndex writes records in the three-column format, or two columns for
// records without a version.
func WriteIndex(w io.Writer, records []SetRecord) error {
	cw := csv.NewWriter(w)
	cw.Comma = ' '
	for _, r := range records {
		row := []string{strconv.Itoa(r.IDCode), r.Name}
		if r.Version != nil {
			row = append(row, strconv.Itoa(*r.Version))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
