// SPDX-License-Identifier: MPL-2.0

package index

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"gitlab.com/hepcedar/lhapdf-management/internal/testutil"
)

type pathList []string

func (p pathList) Paths() iter.Seq[string] { return slices.Values(p) }

type fakeFetcher struct {
	calls []string
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, name, destination string, dry bool) error {
	f.calls = append(f.calls, filepath.Join(destination, name))
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(filepath.Join(destination, name), []byte("1 CT10 2\n"), 0o644)
}

func TestStore_ReferenceList(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	idx := filepath.Join(dir, "pdfsets.index")
	testutil.WriteIndex(t, idx, "1 CT10 1", "2 CT18 1")

	records, err := NewStore(pathList{dir}, idx, nil).ReferenceList()
	if err != nil {
		t.Fatalf("ReferenceList() error: %v", err)
	}
	if !slices.Equal(names(records), []string{"CT10", "CT18"}) {
		t.Errorf("ReferenceList() = %v", names(records))
	}
}

func TestStore_InstalledAcrossPaths(t *testing.T) {
	t.Parallel()

	primary := t.TempDir()
	secondary := t.TempDir()
	missing := filepath.Join(t.TempDir(), "absent")
	idx := filepath.Join(primary, "pdfsets.index")
	testutil.WriteIndex(t, idx, "1 CT10 1", "2 CT18 1", "3 MSHT20 1", "4 NNPDF40 1")

	testutil.WriteSet(t, primary, testutil.SetFixture{Name: "CT18"})
	testutil.WriteSet(t, primary, testutil.SetFixture{Name: "Orphan"})
	testutil.WriteSet(t, secondary, testutil.SetFixture{Name: "CT10"})
	testutil.WriteSet(t, secondary, testutil.SetFixture{Name: "CT18"})
	// A directory without its .info file is not an installed set.
	testutil.MustWriteFile(t, filepath.Join(secondary, "MSHT20", "MSHT20_0000.dat"), testutil.MemberGrid)
	testutil.MustWriteFile(t, filepath.Join(primary, "NNPDF40.tar.gz"), "not a directory")

	installed, err := NewStore(pathList{primary, missing, secondary}, idx, nil).Installed()
	if err != nil {
		t.Fatalf("Installed() error: %v", err)
	}
	if got, want := names(installed), []string{"CT18", "CT10"}; !slices.Equal(got, want) {
		t.Errorf("Installed() = %v, want %v", got, want)
	}
}

func TestStore_InstalledWithoutIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := NewStore(pathList{dir}, filepath.Join(dir, "pdfsets.index"), nil).Installed()
	if !errors.Is(err, ErrIndexNotFound) {
		t.Fatalf("Installed() error = %v, want ErrIndexNotFound", err)
	}
}

func TestStore_OutdatedScenario(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		reference        string
		installedVersion int
		wantOutdated     bool
	}{
		{"reference newer", "1 X 3", 2, true},
		{"installed newer", "1 X 2", 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			idx := filepath.Join(dir, "pdfsets.index")
			testutil.WriteIndex(t, idx, tt.reference)
			testutil.WriteSet(t, dir, testutil.SetFixture{Name: "X", DataVersion: tt.installedVersion})

			installed, err := NewStore(pathList{dir}, idx, nil).Installed()
			if err != nil {
				t.Fatalf("Installed() error: %v", err)
			}
			outdated, err := Outdated(installed, func(SetRecord) (int, bool, error) {
				return tt.installedVersion, true, nil
			})
			if err != nil {
				t.Fatalf("Outdated() error: %v", err)
			}
			if got := len(outdated) == 1; got != tt.wantOutdated {
				t.Errorf("outdated = %v, want %v", names(outdated), tt.wantOutdated)
			}
		})
	}
}

func TestStore_Update(t *testing.T) {
	t.Parallel()

	listDir := filepath.Join(t.TempDir(), "list")
	testutil.MustMkdirAll(t, listDir)
	idx := filepath.Join(listDir, "pdfsets.index")

	f := &fakeFetcher{}
	store := NewStore(pathList{}, idx, nil)
	if err := store.Update(t.Context(), f); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if !slices.Equal(f.calls, []string{idx}) {
		t.Errorf("fetch calls = %v, want [%s]", f.calls, idx)
	}
	records, err := store.ReferenceList()
	if err != nil || len(records) != 1 {
		t.Fatalf("ReferenceList() after Update = %v, %v", records, err)
	}

	boom := errors.New("all sources failed")
	if err := NewStore(pathList{}, idx, nil).Update(t.Context(), &fakeFetcher{err: boom}); !errors.Is(err, boom) {
		t.Errorf("Update() error = %v, want %v", err, boom)
	}
}
