// SPDX-License-Identifier: MPL-2.0

package datapath

import (
	"context"
	"errors"
	"io"
	"iter"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// ProductName is the directory name used under <prefix>/share.
	ProductName = "LHAPDF"
	// IndexFilename is the name of the reference index file.
	IndexFilename = "pdfsets.index"

	// DefaultCVMFSBase is the bulk-storage mirror tried first.
	DefaultCVMFSBase = "/cvmfs/sft.cern.ch/lcg/external/lhapdfsets/current/"
	// DefaultURLBase is the network mirror tried after the local mirror.
	DefaultURLBase = "http://lhapdfsets.web.cern.ch/lhapdfsets/current/"

	// EnvCVMFSBase overrides DefaultCVMFSBase.
	EnvCVMFSBase = "LHAPDF_CVMFSBASE"
	// EnvURLBase overrides DefaultURLBase.
	EnvURLBase = "LHAPDF_URLBASE"
	// EnvDataPath is the highest priority data path variable.
	EnvDataPath = "LHAPDF_DATA_PATH"
	// EnvLegacyDataPath is checked after EnvDataPath.
	EnvLegacyDataPath = "LHAPATH"

	legacyConfigTool    = "lhapdf-config"
	legacyConfigTimeout = 5 * time.Second
)

// ErrDataPathNotFound is wrapped by NotFoundError.
var ErrDataPathNotFound = errors.New("LHAPDF data directory not found")

//nolint:gochecknoglobals // Test seam for os.Executable().
var osExecutable = os.Executable

// BasePrefix is the system installation prefix checked after the prefix of
// the running binary (set via -ldflags for distribution packages).
//
//nolint:gochecknoglobals // Build-time configuration.
var BasePrefix = "/usr"

type (
	// NotFoundError reports that no usable data directory exists. Searched
	// lists the candidates that were considered, in priority order.
	NotFoundError struct {
		Searched []string
	}

	// Resolver holds the ordered data paths and sources of one resolution
	// context. The zero value is not usable; construct with New.
	Resolver struct {
		sources []string

		paths      []string
		discovered bool

		datapath string
		listdir  string

		getenv        func(string) string
		prefixes      []string
		legacyDataDir func() []string
		logger        *log.Logger
	}

	// Option configures a Resolver during construction.
	Option func(*Resolver)
)

// Error returns the remediation hint for a missing data directory.
func (e *NotFoundError) Error() string {
	msg := "no LHAPDF data directory found, you can create it with `lhapdf-management update --init`"
	if len(e.Searched) > 0 {
		msg += " (searched: " + strings.Join(e.Searched, ", ") + ")"
	}
	return msg
}

// Unwrap returns ErrDataPathNotFound so callers can use errors.Is.
func (e *NotFoundError) Unwrap() error { return ErrDataPathNotFound }

// WithGetenv replaces os.Getenv for environment lookups.
func WithGetenv(getenv func(string) string) Option {
	return func(r *Resolver) {
		r.getenv = getenv
	}
}

// WithPrefixes sets the installation prefixes checked during discovery. The
// first one is the "current" prefix used for the best-guess fallback.
func WithPrefixes(prefixes ...string) Option {
	return func(r *Resolver) {
		r.prefixes = slices.Clone(prefixes)
	}
}

// WithLegacyDataDir replaces the legacy installation lookup.
func WithLegacyDataDir(lookup func() []string) Option {
	return func(r *Resolver) {
		r.legacyDataDir = lookup
	}
}

// WithSources replaces the default seed sources.
func WithSources(sources ...string) Option {
	return func(r *Resolver) {
		r.sources = slices.Clone(sources)
	}
}

// WithLogger sets the logger used for non-fatal diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New creates a Resolver. Without WithSources the source list is seeded with
// the bulk-storage mirror and the network mirror, each overridable through
// its environment variable.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		getenv:        os.Getenv,
		legacyDataDir: lhapdfConfigDataDir,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.New(io.Discard)
	}
	if r.prefixes == nil {
		r.prefixes = defaultPrefixes()
	}
	if r.sources == nil {
		r.sources = []string{
			envOr(r.getenv, EnvCVMFSBase, DefaultCVMFSBase),
			envOr(r.getenv, EnvURLBase, DefaultURLBase),
		}
	}
	return r
}

// Sources returns the source list in priority order. The sequence reads the
// live list each time it is iterated.
func (r *Resolver) Sources() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, s := range slices.Clone(r.sources) {
			if !yield(s) {
				return
			}
		}
	}
}

// AddSource inserts a source at the front of the list (priority) or at the
// end. Duplicates are kept.
func (r *Resolver) AddSource(source string, priority bool) {
	if priority {
		r.sources = slices.Insert(r.sources, 0, source)
		return
	}
	r.sources = append(r.sources, source)
}

// Paths returns the data paths in discovery order. Discovery runs once, on
// the first call of any path accessor; the sequence is restartable.
func (r *Resolver) Paths() iter.Seq[string] {
	return func(yield func(string) bool) {
		r.ensureDiscovered()
		for _, p := range slices.Clone(r.paths) {
			if !yield(p) {
				return
			}
		}
	}
}

// AddPath inserts a data path at the front of the list (priority) or at the end.
func (r *Resolver) AddPath(path string, priority bool) {
	r.ensureDiscovered()
	if priority {
		r.paths = slices.Insert(r.paths, 0, path)
		return
	}
	r.paths = append(r.paths, path)
}

// DataPath returns the primary data path: the first known path, which must
// exist on disk. The result is cached after the first successful resolution.
func (r *Resolver) DataPath() (string, error) {
	if r.datapath != "" {
		return r.datapath, nil
	}

	r.ensureDiscovered()
	if len(r.paths) == 0 {
		return "", &NotFoundError{}
	}
	first := r.paths[0]
	if !isDir(first) {
		return "", &NotFoundError{Searched: []string{first}}
	}

	r.datapath = first
	return first, nil
}

// SetDataPath overrides the primary data path. The override is trusted: a
// path that is not an existing directory is logged, not rejected.
func (r *Resolver) SetDataPath(path string) {
	if !isDir(path) {
		r.logger.Errorf("The new LHAPDF data path %s is not a directory but I'll believe you", path)
	}
	r.datapath = path
}

// PossibleDataPath is like DataPath but never fails: it falls back to the
// first discovered path regardless of existence, and to the best guess
// <current prefix>/share/LHAPDF when nothing was discovered.
func (r *Resolver) PossibleDataPath() string {
	if p, err := r.DataPath(); err == nil {
		return p
	}
	if len(r.paths) > 0 {
		return r.paths[0]
	}
	return r.bestGuess()
}

// ListDir returns the directory holding the reference index. It defaults to
// the primary data path.
func (r *Resolver) ListDir() (string, error) {
	if r.listdir != "" {
		return r.listdir, nil
	}
	return r.DataPath()
}

// SetListDir overrides the index directory.
func (r *Resolver) SetListDir(path string) {
	r.listdir = path
}

// IndexPath returns the location of the reference index file.
func (r *Resolver) IndexPath() (string, error) {
	dir, err := r.ListDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, IndexFilename), nil
}

func (r *Resolver) ensureDiscovered() {
	if r.discovered {
		return
	}
	r.paths = r.discover()
	r.discovered = true
}

// discover collects candidate data paths. Environment variables always
// outrank the installation prefixes.
func (r *Resolver) discover() []string {
	var found []string

	for _, name := range []string{EnvDataPath, EnvLegacyDataPath} {
		if val := r.getenv(name); val != "" {
			found = append(found, val)
		}
	}

	for _, prefix := range r.prefixes {
		if prefix == "" {
			continue
		}
		candidate := filepath.Join(prefix, "share", ProductName)
		if !isDir(candidate) {
			continue
		}
		// Some distributions (e.g. Arch) keep the data under LHAPDF/lhapdf.
		if nested := filepath.Join(candidate, strings.ToLower(ProductName)); isDir(nested) {
			candidate = nested
		}
		found = append(found, candidate)
	}

	if r.legacyDataDir != nil {
		found = append(found, r.legacyDataDir()...)
	}

	r.logger.Debug("discovered data paths", "paths", found)
	return found
}

func (r *Resolver) bestGuess() string {
	prefix := ""
	if len(r.prefixes) > 0 {
		prefix = r.prefixes[0]
	}
	return filepath.Join(prefix, "share", ProductName)
}

// defaultPrefixes returns the prefix of the running binary (the parent of its
// bin directory) followed by BasePrefix.
func defaultPrefixes() []string {
	var prefixes []string
	if exe, err := osExecutable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		prefixes = append(prefixes, filepath.Dir(filepath.Dir(exe)))
	}
	if BasePrefix != "" && !slices.Contains(prefixes, BasePrefix) {
		prefixes = append(prefixes, BasePrefix)
	}
	return prefixes
}

// lhapdfConfigDataDir asks an independent LHAPDF installation for its data
// directories. A missing tool yields no paths.
func lhapdfConfigDataDir() []string {
	tool, err := exec.LookPath(legacyConfigTool)
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), legacyConfigTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, tool, "--datadir").Output()
	if err != nil {
		return nil
	}
	return splitPathList(string(out))
}

func splitPathList(s string) []string {
	var paths []string
	for _, field := range strings.Fields(s) {
		for p := range strings.SplitSeq(field, string(os.PathListSeparator)) {
			if p != "" {
				paths = append(paths, p)
			}
		}
	}
	return paths
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
