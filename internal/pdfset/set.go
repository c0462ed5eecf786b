// SPDX-License-Identifier: MPL-2.0

// Package pdfset gives read access to an installed set: its .info metadata
// and the grids of each member. Metadata and grids are loaded on first use
// and cached by the handle that owns them. A Set is not safe for concurrent use.
package pdfset

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"gitlab.com/hepcedar/lhapdf-management/internal/grid"
	"gitlab.com/hepcedar/lhapdf-management/internal/index"
)

// Metadata keys read from the .info document.
const (
	KeyDescription = "SetDesc"
	KeyErrorType   = "ErrorType"
	KeyVersion     = "DataVersion"
	KeyNumMembers  = "NumMembers"
)

var (
	// ErrNotInstalled is returned when a directory does not hold a complete set.
	ErrNotInstalled = errors.New("set is not installed")

	// ErrMissingKey is returned when a metadata key is absent.
	ErrMissingKey = errors.New("key not found in info file")
)

type (
	// Set is a handle on an installed set directory.
	Set struct {
		name   string
		dir    string
		record *index.SetRecord

		info  map[string]any
		grids map[int][]grid.Grid
	}

	// MetadataError reports an unreadable .info document.
	MetadataError struct {
		File string
		Err  error
	}
)

func (e *MetadataError) Error() string {
	return fmt.Sprintf("reading set metadata %s: %v", e.File, e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// InfoPath returns the metadata file of the set named name under dir.
func InfoPath(dir, name string) string {
	return filepath.Join(dir, name, name+index.InfoSuffix)
}

// MemberPath returns the data file of member i of the set named name under dir.
func MemberPath(dir, name string, i int) string {
	return filepath.Join(dir, name, fmt.Sprintf("%s_%04d.dat", name, i))
}

// IsInstalled reports whether dataDir holds a complete set named name: both
// its .info file and its first member file must exist.
func IsInstalled(dataDir, name string) bool {
	return isFile(InfoPath(dataDir, name)) && isFile(MemberPath(dataDir, name, 0))
}

// Locate returns the first data path holding the set named name.
func Locate(paths iter.Seq[string], name string) (string, bool) {
	for p := range paths {
		if IsInstalled(p, name) {
			return p, true
		}
	}
	return "", false
}

// Open returns a handle on the set stored at setDir. record may be nil when
// the set is not known to the reference index.
func Open(setDir string, record *index.SetRecord) (*Set, error) {
	info, err := os.Stat(setDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotInstalled, setDir)
	}

	dataDir, name := filepath.Split(filepath.Clean(setDir))
	if !isFile(InfoPath(dataDir, name)) {
		return nil, fmt.Errorf("%w: no info file found for %s", ErrNotInstalled, name)
	}
	if !isFile(MemberPath(dataDir, name, 0)) {
		return nil, fmt.Errorf("%w: no dat file found for %s", ErrNotInstalled, name)
	}
	return &Set{name: name, dir: filepath.Clean(setDir), record: record}, nil
}

// Name returns the set name.
func (s *Set) Name() string { return s.name }

// Dir returns the set directory.
func (s *Set) Dir() string { return s.dir }

// Record returns the index record the handle was opened with, if any.
func (s *Set) Record() *index.SetRecord { return s.record }

// LHAID returns the numeric id from the reference index.
func (s *Set) LHAID() (int, bool) {
	if s.record == nil {
		return 0, false
	}
	return s.record.IDCode, true
}

// Info returns the parsed .info document.
func (s *Set) Info() (map[string]any, error) {
	if s.info != nil {
		return s.info, nil
	}
	path := filepath.Join(s.dir, s.name+index.InfoSuffix)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &MetadataError{File: path, Err: err}
	}
	info := make(map[string]any)
	if err := yaml.Unmarshal(data, &info); err != nil {
		return nil, &MetadataError{File: path, Err: err}
	}
	s.info = info
	return s.info, nil
}

// Get returns a metadata value, or ErrMissingKey.
func (s *Set) Get(key string) (any, error) {
	info, err := s.Info()
	if err != nil {
		return nil, err
	}
	v, ok := info[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: key=%s in %s", ErrMissingKey, key, s.name)
	}
	return v, nil
}

// Description returns SetDesc, or "" when absent.
func (s *Set) Description() (string, error) {
	return s.optionalString(KeyDescription)
}

// ErrorType returns ErrorType, or "" when absent.
func (s *Set) ErrorType() (string, error) {
	return s.optionalString(KeyErrorType)
}

// Version returns the installed DataVersion. ok is false when the metadata
// does not record one.
func (s *Set) Version() (version int, ok bool, err error) {
	v, err := s.Get(KeyVersion)
	if errors.Is(err, ErrMissingKey) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := asInt(KeyVersion, v)
	return n, err == nil, err
}

// NumMembers returns NumMembers.
func (s *Set) NumMembers() (int, error) {
	v, err := s.Get(KeyNumMembers)
	if err != nil {
		return 0, err
	}
	return asInt(KeyNumMembers, v)
}

// MemberGrids returns the grids of member i.
func (s *Set) MemberGrids(i int) ([]grid.Grid, error) {
	if g, ok := s.grids[i]; ok {
		return g, nil
	}
	g, err := grid.ParseFile(MemberPath(filepath.Dir(s.dir), s.name, i))
	if err != nil {
		return nil, err
	}
	if s.grids == nil {
		s.grids = make(map[int][]grid.Grid)
	}
	s.grids[i] = g
	return g, nil
}

// AllMemberGrids returns the grids of every member, indexed by member number.
func (s *Set) AllMemberGrids() ([][]grid.Grid, error) {
	n, err := s.NumMembers()
	if err != nil {
		return nil, err
	}
	all := make([][]grid.Grid, n)
	for i := range n {
		if all[i], err = s.MemberGrids(i); err != nil {
			return nil, fmt.Errorf("member %d of %s: %w", i, s.name, err)
		}
	}
	return all, nil
}

func (s *Set) optionalString(key string) (string, error) {
	v, err := s.Get(key)
	if errors.Is(err, ErrMissingKey) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}

func asInt(key string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("%s: want an integer, got %T (%v)", key, v, v)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
