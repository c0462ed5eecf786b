// SPDX-License-Identifier: MPL-2.0

package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// InfoSuffix is the extension of a set's metadata file.
const InfoSuffix = ".info"

type (
	// PathLister provides the known data paths, highest priority first.
	PathLister interface {
		Paths() iter.Seq[string]
	}

	// Fetcher retrieves a named item into a directory.
	Fetcher interface {
		Fetch(ctx context.Context, name, destination string, dry bool) error
	}

	// Store reconciles the reference index with the sets installed across
	// every known data path.
	Store struct {
		paths     PathLister
		indexPath string
		logger    *log.Logger
	}
)

// NewStore creates a Store reading the index at indexPath.
func NewStore(paths PathLister, indexPath string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Store{paths: paths, indexPath: indexPath, logger: logger}
}

// IndexPath returns the location of the reference index.
func (s *Store) IndexPath() string { return s.indexPath }

// ReferenceList parses the reference index.
func (s *Store) ReferenceList() ([]SetRecord, error) {
	s.logger.Debug("Reading reference index", "path", s.indexPath)
	records, err := ReadIndex(s.indexPath)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			s.logger.Errorf("Corrupted file on line %d: %s", perr.Line, perr.File)
		}
		return nil, err
	}
	return records, nil
}

// Installed returns the index records of every set installed in any data
// path. A set directory counts when it holds a same-named .info file. Names
// found on disk but absent from the index are left out. The result follows
// data path priority, then directory order, with duplicates removed.
func (s *Store) Installed() ([]SetRecord, error) {
	records, err := s.ReferenceList()
	if err != nil {
		return nil, err
	}
	reference := make(map[string]SetRecord, len(records))
	for _, r := range records {
		reference[r.Name] = r
	}

	seen := make(map[string]struct{})
	var installed []SetRecord
	for path := range s.paths.Paths() {
		names, err := candidates(path)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			if r, ok := reference[name]; ok {
				installed = append(installed, r)
			} else {
				s.logger.Debug("Ignoring set missing from the reference index", "name", name, "path", path)
			}
		}
	}
	return installed, nil
}

// Update fetches a fresh reference index into the index directory.
func (s *Store) Update(ctx context.Context, f Fetcher) error {
	dir, name := filepath.Split(s.indexPath)
	if err := f.Fetch(ctx, name, dir, false); err != nil {
		s.logger.Error("Unable to update the index reference file")
		return err
	}
	return nil
}

// candidates lists the set directories directly under dir. A missing dir
// yields no candidates.
func candidates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning data path %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && e.Type()&fs.ModeSymlink == 0 {
			continue
		}
		info, err := os.Stat(filepath.Join(dir, e.Name(), e.Name()+InfoSuffix))
		if err == nil && info.Mode().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
