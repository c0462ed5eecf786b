// SPDX-License-Identifier: MPL-2.0

package install

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/gzip"
)

var (
	// ErrArchiveNotFound is returned when the archive to extract is absent.
	ErrArchiveNotFound = errors.New("archive not found")

	// ErrUnsafePath is returned for archive entries that would land outside
	// the destination directory.
	ErrUnsafePath = errors.New("archive entry escapes the destination")
)

// ExtractError reports a failed extraction.
type ExtractError struct {
	Archive string
	Entry   string
	Err     error
}

func (e *ExtractError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("extracting %s: %v", e.Archive, e.Err)
	}
	return fmt.Sprintf("extracting %s: entry %q: %v", e.Archive, e.Entry, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// ExtractArchive extracts a gzip-compressed tar archive into dest. Regular
// files are written to a temporary name and renamed into place. Entries with
// absolute paths, ".." components or links pointing outside dest are
// rejected. Every write goes through an os.Root on dest, so an entry reached
// through a previously extracted symlink cannot land outside it either.
//
// created lists, in archive order, the top-level entries that did not exist
// in dest before extraction. It is returned even on error so a caller can
// undo a partial extraction.
func ExtractArchive(archivePath, dest string) (created []string, err error) {
	f, err := os.Open(archivePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: cannot find %s", ErrArchiveNotFound, archivePath)
		}
		return nil, &ExtractError{Archive: archivePath, Err: err}
	}
	defer func() { _ = f.Close() }() // read-only file

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, &ExtractError{Archive: archivePath, Err: err}
	}
	defer func() { _ = gz.Close() }()

	root, err := os.OpenRoot(dest)
	if err != nil {
		return nil, &ExtractError{Archive: archivePath, Err: err}
	}
	defer func() { _ = root.Close() }()

	x := &extractor{root: root, seen: make(map[string]bool)}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return x.created, nil
		}
		if err != nil {
			return x.created, &ExtractError{Archive: archivePath, Err: err}
		}
		if err := x.entry(hdr, tr); err != nil {
			return x.created, &ExtractError{Archive: archivePath, Entry: hdr.Name, Err: err}
		}
	}
}

type extractor struct {
	root    *os.Root
	created []string
	seen    map[string]bool
	tmpSeq  int
}

func (x *extractor) entry(hdr *tar.Header, r io.Reader) error {
	rel, err := safeRel(hdr.Name)
	if err != nil {
		return err
	}
	if rel == "" {
		return nil
	}
	x.track(rel)
	target := filepath.FromSlash(rel)

	switch hdr.Typeflag {
	case tar.TypeDir:
		return rootErr(x.root.MkdirAll(target, dirMode(hdr)))
	case tar.TypeReg:
		return rootErr(x.writeFile(target, r, fileMode(hdr)))
	case tar.TypeSymlink:
		if err := checkLink(rel, hdr.Linkname, true); err != nil {
			return err
		}
		if err := x.root.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return rootErr(err)
		}
		_ = x.root.Remove(target) // replaced on upgrade
		if err := x.root.Symlink(hdr.Linkname, target); err != nil {
			return rootErr(err)
		}
		return x.checkResolved(target, hdr.Linkname)
	case tar.TypeLink:
		if err := checkLink(rel, hdr.Linkname, false); err != nil {
			return err
		}
		linkRel, _ := safeRel(hdr.Linkname)
		if err := x.root.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return rootErr(err)
		}
		_ = x.root.Remove(target)
		return rootErr(x.root.Link(filepath.FromSlash(linkRel), target))
	default:
		// Devices, fifos and pax metadata carry nothing a set needs.
		return nil
	}
}

// track records the top-level component of rel the first time it is seen,
// if it does not already exist in dest.
func (x *extractor) track(rel string) {
	top, _, _ := strings.Cut(rel, "/")
	if x.seen[top] {
		return
	}
	x.seen[top] = true
	if _, err := x.root.Lstat(top); errors.Is(err, fs.ErrNotExist) {
		x.created = append(x.created, top)
	}
}

// checkResolved follows the symlink just created at target on disk. A chain
// through earlier links can leave dest even when each target looks local, so
// any resolution the root refuses removes the link. Dangling links are kept.
func (x *extractor) checkResolved(target, linkname string) error {
	_, err := x.root.Stat(target)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	_ = x.root.Remove(target)
	return fmt.Errorf("%w: link target %q", ErrUnsafePath, linkname)
}

// checkLink rejects link targets resolving outside dest. Symlink targets are
// relative to the link's directory; hard link targets to the archive root.
func checkLink(rel, linkname string, symlink bool) error {
	if linkname == "" || path.IsAbs(linkname) || filepath.IsAbs(linkname) {
		return fmt.Errorf("%w: link target %q", ErrUnsafePath, linkname)
	}
	resolved := linkname
	if symlink {
		resolved = path.Join(path.Dir(rel), linkname)
	}
	if _, err := safeRel(resolved); err != nil {
		return fmt.Errorf("%w: link target %q", ErrUnsafePath, linkname)
	}
	return nil
}

// safeRel cleans an archive path and rejects absolute paths and parent
// traversal. The root entry maps to "".
func safeRel(name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if path.IsAbs(name) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: absolute path", ErrUnsafePath)
	}
	clean := path.Clean(name)
	if clean == "." {
		return "", nil
	}
	if clean == ".." || strings.HasPrefix(clean, "../") || slices.Contains(strings.Split(name, "/"), "..") {
		return "", fmt.Errorf("%w: parent traversal", ErrUnsafePath)
	}
	return clean, nil
}

// writeFile writes r to a temporary sibling of target and renames it into
// place.
func (x *extractor) writeFile(target string, r io.Reader, mode os.FileMode) (err error) {
	dir := filepath.Dir(target)
	if err := x.root.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	x.tmpSeq++
	tmpName := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(target), os.Getpid(), x.tmpSeq))
	tmp, err := x.root.OpenFile(tmpName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = x.root.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return x.root.Rename(tmpName, target)
}

// rootErr reports paths the root refused to follow as ErrUnsafePath.
func rootErr(err error) error {
	if err == nil || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return err
	}
	var perr *fs.PathError
	if errors.As(err, &perr) && perr.Err.Error() == "path escapes from parent" {
		return fmt.Errorf("%w: %w", ErrUnsafePath, err)
	}
	return err
}

func fileMode(hdr *tar.Header) os.FileMode {
	if m := hdr.FileInfo().Mode().Perm(); m != 0 {
		return m
	}
	return 0o644
}

func dirMode(hdr *tar.Header) os.FileMode {
	if m := hdr.FileInfo().Mode().Perm(); m != 0 {
		return m | 0o700
	}
	return 0o755
}
