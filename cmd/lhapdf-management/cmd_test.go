// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"gitlab.com/hepcedar/lhapdf-management/internal/config"
	"gitlab.com/hepcedar/lhapdf-management/internal/datapath"
	"gitlab.com/hepcedar/lhapdf-management/internal/fetch"
	"gitlab.com/hepcedar/lhapdf-management/internal/index"
	"gitlab.com/hepcedar/lhapdf-management/internal/install"
	"gitlab.com/hepcedar/lhapdf-management/internal/issue"
	"gitlab.com/hepcedar/lhapdf-management/internal/pdfset"
	"gitlab.com/hepcedar/lhapdf-management/internal/testutil"
)

type (
	// staticConfig is a ConfigProvider returning a fixed configuration.
	staticConfig struct {
		cfg *config.Config
		err error
	}

	// env is a sandbox with a data directory and a local mirror.
	env struct {
		data   string
		mirror string
		cfg    *config.Config
	}
)

func (s staticConfig) Load(context.Context, config.LoadOptions) (*config.Config, error) {
	if s.err != nil {
		return nil, s.err
	}
	cfg := *s.cfg
	return &cfg, nil
}

var (
	setA = testutil.SetFixture{Name: "NNPDF1", Description: "First NN fit", ErrorType: "replicas", DataVersion: 2, Members: 3}
	setB = testutil.SetFixture{Name: "NNPDF2", Description: "Second NN fit", ErrorType: "replicas", DataVersion: 1}
	setC = testutil.SetFixture{Name: "CT18", Description: "CT18 NNLO", ErrorType: "hessian", DataVersion: 1}
)

// newEnv creates a data directory and a mirror holding the index and the
// archives of setA, setB and setC. Both default sources point at local
// directories, the second of which does not exist.
func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	e := &env{
		data:   filepath.Join(root, "data"),
		mirror: filepath.Join(root, "mirror"),
	}
	testutil.MustMkdirAll(t, e.data)

	testutil.WriteIndex(t, filepath.Join(e.mirror, datapath.IndexFilename),
		"100 NNPDF1 3",
		"200 NNPDF2 1",
		"300 CT18 1",
	)
	for _, f := range []testutil.SetFixture{setA, setB, setC} {
		testutil.WriteSetArchive(t, e.mirror, f)
	}

	e.cfg = config.DefaultConfig()
	e.cfg.CVMFSBase = filepath.Join(root, "no-such-mirror") + string(filepath.Separator)
	e.cfg.URLBase = e.mirror + string(filepath.Separator)
	e.cfg.Fetch.Progress = false
	return e
}

// withIndex copies the mirror's index into the data directory.
func (e *env) withIndex(t *testing.T) *env {
	t.Helper()
	content := testutil.MustReadFile(t, filepath.Join(e.mirror, datapath.IndexFilename))
	testutil.MustWriteFile(t, filepath.Join(e.data, datapath.IndexFilename), content)
	return e
}

// run executes the CLI in-process with --pdfdir pointing at the sandbox.
func (e *env) run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	return execute(t, e.cfg, nil, append([]string{"--pdfdir", e.data}, args...)...)
}

// execute runs the CLI in-process with the given configuration and
// environment variables.
func execute(t *testing.T, cfg *config.Config, vars map[string]string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := NewApp(Dependencies{
		Config: staticConfig{cfg: cfg},
		Stdout: &out,
		Stderr: &errOut,
		Getenv: func(k string) string { return vars[k] },
	})
	root := newRootCommand(app)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func TestList(t *testing.T) {
	t.Parallel()

	e := newEnv(t).withIndex(t)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"all", []string{"list"}, []string{"NNPDF1", "NNPDF2", "CT18"}},
		{"alias", []string{"ls"}, []string{"NNPDF1", "NNPDF2", "CT18"}},
		{"pattern", []string{"list", "NN*"}, []string{"NNPDF1", "NNPDF2"}},
		{"any pattern", []string{"list", "CT18", "NNPDF2"}, []string{"NNPDF2", "CT18"}},
		{"codes", []string{"list", "--codes", "CT*"}, []string{"300 CT18"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stdout, _, err := e.run(t, tt.args...)
			if err != nil {
				t.Fatalf("run error = %v", err)
			}
			if got := lines(stdout); !slices.Equal(got, tt.want) {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestList_InstalledAndOutdated(t *testing.T) {
	t.Parallel()

	e := newEnv(t).withIndex(t)
	// NNPDF1 is at version 2 locally and 3 in the index; CT18 is current.
	testutil.WriteSet(t, e.data, setA)
	testutil.WriteSet(t, e.data, setC)
	// Unknown to the index, so never listed.
	testutil.WriteSet(t, e.data, testutil.SetFixture{Name: "Private", DataVersion: 1})

	stdout, _, err := e.run(t, "list", "--installed")
	if err != nil {
		t.Fatalf("list --installed error = %v", err)
	}
	got := lines(stdout)
	slices.Sort(got)
	if want := []string{"CT18", "NNPDF1"}; !slices.Equal(got, want) {
		t.Errorf("installed = %q, want %q", got, want)
	}

	stdout, _, err = e.run(t, "list", "--outdated")
	if err != nil {
		t.Fatalf("list --outdated error = %v", err)
	}
	if got := lines(stdout); !slices.Equal(got, []string{"NNPDF1"}) {
		t.Errorf("outdated = %q, want [NNPDF1]", got)
	}
}

func TestList_MissingIndex(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	_, _, err := e.run(t, "list")
	if !errors.Is(err, index.ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound, got %v", err)
	}
	if classifyError(err) != issue.IndexNotFoundId {
		t.Errorf("classifyError = %d, want IndexNotFoundId", classifyError(err))
	}
}

func TestShow(t *testing.T) {
	t.Parallel()

	e := newEnv(t).withIndex(t)
	testutil.WriteSet(t, e.data, setA)
	testutil.WriteSet(t, e.data, setB)

	stdout, _, err := e.run(t, "show", "NNPDF*")
	if err != nil {
		t.Fatalf("show error = %v", err)
	}

	cards := strings.Split(strings.TrimSuffix(stdout, "\n"), "\n\n\n")
	if len(cards) != 2 {
		t.Fatalf("expected 2 cards, got %d:\n%s", len(cards), stdout)
	}
	slices.Sort(cards)

	want := `NNPDF1
======
LHAPDF ID: 100
Version: 3
First NN fit
Number of members: 3
Error type: replicas`
	if cards[0] != want {
		t.Errorf("card =\n%s\nwant\n%s", cards[0], want)
	}
	if !strings.HasPrefix(cards[1], "NNPDF2\n======\nLHAPDF ID: 200\n") {
		t.Errorf("unexpected second card:\n%s", cards[1])
	}
}

func TestShow_NothingInstalled(t *testing.T) {
	t.Parallel()

	e := newEnv(t).withIndex(t)
	stdout, _, err := e.run(t, "show")
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	if stdout != "" {
		t.Errorf("expected no output, got %q", stdout)
	}
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	if _, _, err := e.run(t, "update"); err != nil {
		t.Fatalf("update error = %v", err)
	}

	got := testutil.MustReadFile(t, filepath.Join(e.data, datapath.IndexFilename))
	want := testutil.MustReadFile(t, filepath.Join(e.mirror, datapath.IndexFilename))
	if got != want {
		t.Errorf("index = %q, want %q", got, want)
	}
}

func TestUpdate_Init(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	fresh := filepath.Join(t.TempDir(), "fresh", "LHAPDF")
	vars := map[string]string{datapath.EnvDataPath: fresh}

	_, _, err := execute(t, e.cfg, vars, "update")
	if !errors.Is(err, datapath.ErrDataPathNotFound) {
		t.Fatalf("update without --init: expected ErrDataPathNotFound, got %v", err)
	}
	if testutil.Exists(fresh) {
		t.Fatal("update without --init must not create the data directory")
	}

	_, stderr, err := execute(t, e.cfg, vars, "update", "--init")
	if err != nil {
		t.Fatalf("update --init error = %v", err)
	}
	if !strings.Contains(stderr, "Creating the path") {
		t.Errorf("expected warning about creating the path, got %q", stderr)
	}
	if !testutil.Exists(filepath.Join(fresh, datapath.IndexFilename)) {
		t.Error("index not downloaded into the new data directory")
	}
}

func TestUpdate_AllSourcesFail(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.cfg.URLBase = filepath.Join(t.TempDir(), "empty") + string(filepath.Separator)

	_, stderr, err := e.run(t, "update")

	var fe *fetch.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *fetch.FetchError, got %T: %v", err, err)
	}
	if len(fe.Attempts) != 2 {
		t.Errorf("attempts = %d, want 2", len(fe.Attempts))
	}
	if strings.Count(stderr, "not found") != 2 {
		t.Errorf("expected one log line per source, got:\n%s", stderr)
	}
	if !strings.Contains(stderr, "Unable to update the index reference file") {
		t.Errorf("missing update failure message:\n%s", stderr)
	}
	if classifyError(err) != issue.FetchFailedId {
		t.Errorf("classifyError = %d, want FetchFailedId", classifyError(err))
	}
}

func TestInstall(t *testing.T) {
	t.Parallel()

	e := newEnv(t).withIndex(t)

	if _, _, err := e.run(t, "install", "CT18"); err != nil {
		t.Fatalf("install error = %v", err)
	}
	if !pdfset.IsInstalled(e.data, "CT18") {
		t.Fatal("CT18 not installed")
	}
	if testutil.Exists(filepath.Join(e.data, install.ArchiveName("CT18"))) {
		t.Error("archive should be removed without --keep")
	}

	before := testutil.DirSnapshot(t, e.data)
	_, stderr, err := e.run(t, "get", "CT18")
	if err == nil {
		t.Fatal("second install without --upgrade should fail")
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Errorf("expected ExitError with code 1, got %v", err)
	}
	if !strings.Contains(stderr, "already exists") {
		t.Errorf("expected already-exists message, got %q", stderr)
	}
	if after := testutil.DirSnapshot(t, e.data); !mapsEqual(before, after) {
		t.Error("second install changed the data directory")
	}

	if _, _, err := e.run(t, "upgrade", "CT18"); err != nil {
		t.Fatalf("upgrade error = %v", err)
	}
	if after := testutil.DirSnapshot(t, e.data); !mapsEqual(before, after) {
		t.Error("upgrade should reproduce a fresh install byte for byte")
	}
}

func TestInstall_Keep(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	if _, _, err := e.run(t, "install", "--keep", "NNPDF2"); err != nil {
		t.Fatalf("install error = %v", err)
	}
	if !testutil.Exists(filepath.Join(e.data, install.ArchiveName("NNPDF2"))) {
		t.Error("archive should be kept")
	}
}

func TestInstall_DryRun(t *testing.T) {
	t.Parallel()

	e := newEnv(t).withIndex(t)
	info, err := os.Stat(filepath.Join(e.mirror, install.ArchiveName("NNPDF1")))
	if err != nil {
		t.Fatal(err)
	}

	stdout, _, err := e.run(t, "install", "--dryrun", "NNPDF*")
	if err != nil {
		t.Fatalf("dry run error = %v", err)
	}

	wantFirst := fmt.Sprintf("NNPDF1.tar.gz [%s]", fetch.FormatBytes(info.Size()))
	got := lines(stdout)
	if len(got) != 2 || got[0] != wantFirst || !strings.HasPrefix(got[1], "NNPDF2.tar.gz [") {
		t.Errorf("dry run output = %q, first line want %q", got, wantFirst)
	}
	for _, name := range []string{"NNPDF1", "NNPDF2"} {
		if testutil.Exists(filepath.Join(e.data, name)) || testutil.Exists(filepath.Join(e.data, install.ArchiveName(name))) {
			t.Errorf("dry run wrote %s", name)
		}
	}
}

func TestInstall_Patterns(t *testing.T) {
	t.Parallel()

	e := newEnv(t).withIndex(t)

	if _, _, err := e.run(t, "install", "NN*"); err != nil {
		t.Fatalf("install error = %v", err)
	}
	for _, name := range []string{"NNPDF1", "NNPDF2"} {
		if !pdfset.IsInstalled(e.data, name) {
			t.Errorf("%s not installed", name)
		}
	}
	if testutil.Exists(filepath.Join(e.data, "CT18")) {
		t.Error("CT18 should not match NN*")
	}

	_, stderr, err := e.run(t, "install", "MSHT*")
	if !errors.Is(err, errNoMatch) {
		t.Fatalf("expected errNoMatch, got %v", err)
	}
	if !strings.Contains(stderr, "No PDF found matching the given pattern: MSHT*") {
		t.Errorf("missing no-match message: %q", stderr)
	}
	if classifyError(err) != issue.NoMatchingSetId {
		t.Errorf("classifyError = %d, want NoMatchingSetId", classifyError(err))
	}
}

func TestInstall_BatchContinuesAfterFailure(t *testing.T) {
	t.Parallel()

	e := newEnv(t).withIndex(t)
	// Listed in the index but missing from every source.
	testutil.MustWriteFile(t, filepath.Join(e.data, datapath.IndexFilename), "100 NNPDF1 3\n150 Missing 1\n300 CT18 1\n")

	_, stderr, err := e.run(t, "install", "Missing", "CT18")
	if !errors.Is(err, errItemsFailed) {
		t.Fatalf("expected errItemsFailed, got %v", err)
	}
	if !pdfset.IsInstalled(e.data, "CT18") {
		t.Error("CT18 should be installed after Missing failed")
	}
	if !strings.Contains(stderr, "Unable to download the Missing PDF") {
		t.Errorf("missing download failure message: %q", stderr)
	}
}

func TestInstall_SingleFailureReturnsCause(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	_, _, err := e.run(t, "install", "Missing")
	if !errors.Is(err, fetch.ErrAllSourcesFailed) {
		t.Fatalf("expected ErrAllSourcesFailed, got %v", err)
	}

	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *issue.ActionableError, got %T", err)
	}
	if ae.Operation != "install PDF set" || ae.Resource != "Missing" {
		t.Errorf("error context = %q on %q", ae.Operation, ae.Resource)
	}
	if len(ae.Suggestions) != 2 || !strings.Contains(ae.Suggestions[0], "Missing.tar.gz") {
		t.Errorf("suggestions = %q", ae.Suggestions)
	}
	if classifyError(err) != issue.FetchFailedId {
		t.Errorf("classifyError = %d, want FetchFailedId", classifyError(err))
	}
}

func TestInstallFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		err            error
		wantSuggestion string
	}{
		{"unsafe archive", &install.ExtractError{Archive: "X.tar.gz", Entry: "../x", Err: install.ErrUnsafePath}, "outside the set directory"},
		{"read-only target", &os.PathError{Op: "mkdir", Path: "/ro", Err: os.ErrPermission}, "--pdfdir"},
		{"other", errors.New("disk full"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := installFailure("CT18", tt.err)
			if !errors.Is(err, tt.err) {
				t.Fatalf("installFailure() lost its cause: %v", err)
			}
			if !strings.HasPrefix(err.Error(), "failed to install PDF set: CT18: ") {
				t.Errorf("Error() = %q", err.Error())
			}
			shown := formatErrorForDisplay(err, false)
			if tt.wantSuggestion == "" {
				if strings.Contains(shown, "•") {
					t.Errorf("unexpected suggestions:\n%s", shown)
				}
				return
			}
			if !strings.Contains(shown, tt.wantSuggestion) {
				t.Errorf("display missing %q:\n%s", tt.wantSuggestion, shown)
			}
		})
	}
}

func TestInstall_NoDataPath(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	vars := map[string]string{datapath.EnvDataPath: filepath.Join(e.data, "missing")}

	_, _, err := execute(t, e.cfg, vars, "install", "CT18")
	if !errors.Is(err, datapath.ErrDataPathNotFound) {
		t.Fatalf("expected ErrDataPathNotFound, got %v", err)
	}
	if classifyError(err) != issue.DataPathNotFoundId {
		t.Errorf("classifyError = %d, want DataPathNotFoundId", classifyError(err))
	}
}

func TestSourcesOrder(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.CVMFSBase = "/cvmfs/"
	cfg.URLBase = "https://example.org/"
	cfg.Sources = []string{"/cfg/one/", "/cfg/two/"}

	app := NewApp(Dependencies{Config: staticConfig{cfg: cfg}, Getenv: func(string) string { return "" }})
	app.flags.sources = []string{"/flag/one/", "/flag/two/"}

	svc, err := app.services(context.Background())
	if err != nil {
		t.Fatalf("services error = %v", err)
	}

	want := []string{"/flag/one/", "/flag/two/", "/cfg/one/", "/cfg/two/", "/cvmfs/", "https://example.org/"}
	if got := slices.Collect(svc.resolver.Sources()); !slices.Equal(got, want) {
		t.Errorf("sources = %q, want %q", got, want)
	}
}

func TestConfigLoadFailure(t *testing.T) {
	t.Parallel()

	loadErr := issue.NewErrorContext().
		WithOperation("load configuration").
		WithIssue(issue.ConfigLoadFailedId).
		Wrap(errors.New("bad file")).
		BuildError()

	app := NewApp(Dependencies{Config: staticConfig{err: loadErr}, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
	root := newRootCommand(app)
	root.SetArgs([]string{"list"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.ExecuteContext(context.Background())
	if !errors.Is(err, loadErr) {
		t.Fatalf("expected config error, got %v", err)
	}
	if classifyError(err) != issue.ConfigLoadFailedId {
		t.Errorf("classifyError = %d, want ConfigLoadFailedId", classifyError(err))
	}
}

func TestConfigDump(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	stdout, _, err := e.run(t, "config", "dump")
	if err != nil {
		t.Fatalf("config dump error = %v", err)
	}
	if stdout != config.GenerateCUE(e.cfg) {
		t.Errorf("dump = %q, want %q", stdout, config.GenerateCUE(e.cfg))
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want issue.Id
	}{
		{"unknown", errors.New("boom"), 0},
		{"data path", &datapath.NotFoundError{}, issue.DataPathNotFoundId},
		{"index missing", fmt.Errorf("read: %w", index.ErrIndexNotFound), issue.IndexNotFoundId},
		{"index corrupted", &index.ParseError{File: "pdfsets.index", Line: 3, Err: index.ErrColumnCount}, issue.IndexCorruptedId},
		{"no match", errNoMatch, issue.NoMatchingSetId},
		{"not installed", pdfset.ErrNotInstalled, issue.SetNotInstalledId},
		{"fetch", &fetch.FetchError{Name: "x.tar.gz"}, issue.FetchFailedId},
		{"extract", &install.ExtractError{Archive: "x.tar.gz", Err: install.ErrUnsafePath}, issue.ExtractionFailedId},
		{"permission", &os.PathError{Op: "mkdir", Path: "/x", Err: os.ErrPermission}, issue.PermissionDeniedId},
		{"linked issue wins", issue.NewErrorContext().WithOperation("x").WithIssue(issue.ConfigLoadFailedId).Wrap(errNoMatch).BuildError(), issue.ConfigLoadFailedId},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := classifyError(tt.err); got != tt.want {
				t.Errorf("classifyError() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRenderError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	renderError(&buf, errNoMatch, false, "notty")
	if !strings.Contains(buf.String(), errNoMatch.Error()) || !strings.Contains(buf.String(), "--verbose") {
		t.Errorf("unexpected non-verbose output:\n%s", buf.String())
	}

	buf.Reset()
	renderError(&buf, errNoMatch, true, "notty")
	if !strings.Contains(buf.String(), "No PDF set matches") {
		t.Errorf("verbose output should include the catalog entry:\n%s", buf.String())
	}
}

func TestGetVersionString(t *testing.T) {
	// Not parallel: mutates package-level Version/Commit/BuildDate vars.
	origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
	t.Cleanup(func() {
		Version, Commit, BuildDate = origVersion, origCommit, origBuildDate
	})

	Version, Commit, BuildDate = "v1.2.3", "abc1234", "2025-06-15T10:00:00Z"
	if got, want := getVersionString(), "v1.2.3 (commit: abc1234, built: 2025-06-15T10:00:00Z)"; got != want {
		t.Errorf("getVersionString() = %q, want %q", got, want)
	}

	Version = "dev"
	if got, want := getVersionString(), "dev (built from source)"; got != want {
		t.Errorf("getVersionString() = %q, want %q", got, want)
	}
}

func TestMask(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":           "",
		"abc":        "***",
		"abcd":       "****",
		"AKIAXYZ123": "******Z123",
	}
	for in, want := range tests {
		if got := mask(in); got != want {
			t.Errorf("mask(%q) = %q, want %q", in, got, want)
		}
	}
}

func mapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}
