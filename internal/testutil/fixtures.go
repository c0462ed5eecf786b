// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"archive/tar"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// MemberGrid is a member data file with a header and two blocks:
// 3 x values, 2 q values, 3 flavors and 2 x 1 x values.
const MemberGrid = `PdfType: central
Format: lhagrid1
---
1.0e-05 1.0e-01 1.0
1.5 10.0
-1 21 1
1.0 2.0 3.0
4.0 5.0 6.0
7.0 8.0 9.0
10.0 11.0 12.0
13.0 14.0 15.0
16.0 17.0 18.0
---
0.5 1.0
100.0
21 2
0.1 0.2
0.3 0.4
---
`

// SetFixture describes a set directory for WriteSet and WriteSetArchive.
type SetFixture struct {
	Name        string
	Description string
	ErrorType   string
	DataVersion int
	// NoVersion omits DataVersion from the .info file.
	NoVersion bool
	// Members defaults to 1.
	Members int
	// Extra files relative to the set directory.
	Extra map[string]string
}

// Files returns the fixture's files keyed by slash-separated path relative to
// the data directory, e.g. "CT10/CT10.info".
func (f SetFixture) Files() map[string]string {
	members := max(f.Members, 1)

	var info strings.Builder
	fmt.Fprintf(&info, "SetDesc: %q\n", f.Description)
	if f.ErrorType != "" {
		fmt.Fprintf(&info, "ErrorType: %s\n", f.ErrorType)
	}
	if !f.NoVersion {
		fmt.Fprintf(&info, "DataVersion: %d\n", f.DataVersion)
	}
	fmt.Fprintf(&info, "NumMembers: %d\n", members)

	files := map[string]string{
		path.Join(f.Name, f.Name+".info"): info.String(),
	}
	for i := range members {
		files[path.Join(f.Name, fmt.Sprintf("%s_%04d.dat", f.Name, i))] = MemberGrid
	}
	for rel, content := range f.Extra {
		files[path.Join(f.Name, rel)] = content
	}
	return files
}

// WriteSet materializes the fixture under dataDir and returns the set directory.
func WriteSet(t testing.TB, dataDir string, f SetFixture) string {
	t.Helper()
	for rel, content := range f.Files() {
		MustWriteFile(t, filepath.Join(dataDir, filepath.FromSlash(rel)), content)
	}
	return filepath.Join(dataDir, f.Name)
}

// WriteIndex writes a reference index with one line per row.
func WriteIndex(t testing.TB, path string, rows ...string) {
	t.Helper()
	MustWriteFile(t, path, strings.Join(rows, "\n")+"\n")
}

// ArchiveEntry is one member of a tar archive built by WriteArchive.
type ArchiveEntry struct {
	Name     string
	Content  string
	Typeflag byte
	Linkname string
}

// WriteSetArchive writes <dir>/<name>.tar.gz holding the fixture's files
// nested under <name>/, and returns the archive path.
func WriteSetArchive(t testing.TB, dir string, f SetFixture) string {
	t.Helper()
	files := f.Files()
	names := slices.Sorted(maps.Keys(files))

	entries := []ArchiveEntry{{Name: f.Name + "/", Typeflag: tar.TypeDir}}
	for _, name := range names {
		entries = append(entries, ArchiveEntry{Name: name, Content: files[name]})
	}
	return WriteArchive(t, filepath.Join(dir, f.Name+".tar.gz"), entries...)
}

// WriteArchive writes a gzip-compressed tar archive at path.
func WriteArchive(t testing.TB, path string, entries ...ArchiveEntry) string {
	t.Helper()
	MustMkdirAll(t, filepath.Dir(path))

	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create archive %s: %v", path, err)
	}
	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Typeflag: e.Typeflag, Linkname: e.Linkname, Mode: 0o644}
		switch e.Typeflag {
		case tar.TypeDir:
			hdr.Mode = 0o755
		case tar.TypeSymlink, tar.TypeLink:
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.Content))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("failed to write header %s: %v", e.Name, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.Content)); err != nil {
				t.Fatalf("failed to write %s: %v", e.Name, err)
			}
		}
	}

	MustClose(t, tw)
	MustClose(t, gz)
	MustClose(t, out)
	return path
}

// PackDir writes a gzip-compressed tar archive at dst holding the directory
// src under its base name, the layout of a published set archive. Unlike
// WriteArchive it reports failures instead of failing a test, for use from
// testscript commands.
func PackDir(src, dst string) (err error) {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)
	base := filepath.Dir(src)

	err = filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		_, err = tw.Write(content)
		return err
	})
	if err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}
