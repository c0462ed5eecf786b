// SPDX-License-Identifier: MPL-2.0

// Package install fetches set archives and extracts them into a data
// directory. It is the only package that changes installed sets on disk.
//
// Installs are not coordinated across processes: two concurrent installs of
// the same set into the same directory race, and callers that parallelize
// must keep set names disjoint.
package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gitlab.com/hepcedar/lhapdf-management/internal/platform"

	"github.com/charmbracelet/log"
)

// ArchiveSuffix is appended to a set name to form its archive name.
const ArchiveSuffix = ".tar.gz"

const (
	// Installed means the set was fetched and extracted.
	Installed Outcome = iota
	// DryRun means the archive was located but nothing was written.
	DryRun
	// AlreadyInstalled means the set directory existed and no upgrade was requested.
	AlreadyInstalled
)

var (
	// ErrInvalidName is returned for names that are not a single path
	// element, or that no platform could create as a directory.
	ErrInvalidName = errors.New("invalid set name")

	// ErrNoTarget is returned when Options.TargetPath is empty.
	ErrNoTarget = errors.New("no target directory")
)

type (
	// Outcome describes what Install did.
	Outcome int

	// Fetcher retrieves a named item into a directory.
	Fetcher interface {
		Fetch(ctx context.Context, name, destination string, dry bool) error
	}

	// Options controls a single install.
	Options struct {
		// Dry only checks that the archive can be fetched.
		Dry bool
		// Upgrade installs over an existing set directory. Files of the old
		// version that the new archive does not contain are left in place.
		Upgrade bool
		// Keep retains the archive next to the extracted set.
		Keep bool
		// TargetPath is the data directory to install into.
		TargetPath string
	}

	// Installer installs sets into a data directory.
	Installer struct {
		fetcher Fetcher
		logger  *log.Logger
	}
)

// String returns a human-readable outcome.
func (o Outcome) String() string {
	switch o {
	case Installed:
		return "installed"
	case DryRun:
		return "dry run"
	case AlreadyInstalled:
		return "already installed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// OK reports whether the outcome counts as success for the caller.
func (o Outcome) OK() bool { return o != AlreadyInstalled }

// New creates an Installer.
func New(f Fetcher, logger *log.Logger) *Installer {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Installer{fetcher: f, logger: logger}
}

// ArchiveName returns the archive file name for a set.
func ArchiveName(name string) string { return name + ArchiveSuffix }

// Install installs the set name into opts.TargetPath.
//
// Without Upgrade, an existing <target>/<name> directory short-circuits with
// AlreadyInstalled and no source is contacted. Only the target is checked;
// copies of the set in other data paths do not count.
//
// The archive is staged inside the target directory. A dry run stops after
// the fetch has reported the archive size. On a fresh install, a failed
// extraction removes whatever it had created.
func (i *Installer) Install(ctx context.Context, name string, opts Options) (Outcome, error) {
	if err := validateName(name); err != nil {
		return 0, err
	}
	if opts.TargetPath == "" {
		return 0, ErrNoTarget
	}

	setDir := filepath.Join(opts.TargetPath, name)
	if !opts.Upgrade {
		if info, err := os.Stat(setDir); err == nil && info.IsDir() {
			i.logger.Errorf("The PDF %s already exists at %s", name, opts.TargetPath)
			return AlreadyInstalled, nil
		}
	}

	archive := ArchiveName(name)
	if err := i.fetcher.Fetch(ctx, archive, opts.TargetPath, opts.Dry); err != nil {
		i.logger.Errorf("Unable to download the %s PDF", name)
		return 0, err
	}
	if opts.Dry {
		return DryRun, nil
	}

	archivePath := filepath.Join(opts.TargetPath, archive)
	created, err := ExtractArchive(archivePath, opts.TargetPath)
	if err != nil {
		i.logger.Errorf("Unable to extract %s to %s", archivePath, opts.TargetPath)
		if !opts.Upgrade {
			i.rollback(opts.TargetPath, created)
		}
		if !opts.Keep {
			if rmErr := os.Remove(archivePath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				i.logger.Warn("Unable to remove archive", "path", archivePath, "err", rmErr)
			}
		}
		return 0, err
	}

	if opts.Keep {
		i.logger.Debug("Keeping archive", "path", archivePath)
	} else if err := os.Remove(archivePath); err != nil {
		return 0, fmt.Errorf("removing archive %s: %w", archivePath, err)
	}

	i.logger.Debug("Installed set", "name", name, "path", setDir)
	return Installed, nil
}

// rollback removes the top-level entries a failed extraction created.
func (i *Installer) rollback(target string, created []string) {
	for _, top := range created {
		path := filepath.Join(target, top)
		if err := os.RemoveAll(path); err != nil {
			i.logger.Warn("Unable to clean up after failed extraction", "path", path, "err", err)
		}
	}
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name ||
		platform.IsWindowsReservedName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
