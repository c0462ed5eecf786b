// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

const indexPath = "/usr/share/LHAPDF/pdfsets.index"

func TestActionableError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *ActionableError
		want string
	}{
		{
			name: "operation only",
			err:  &ActionableError{Operation: "update the reference index"},
			want: "failed to update the reference index",
		},
		{
			name: "set name as resource",
			err:  &ActionableError{Operation: "install PDF set", Resource: "CT18NNLO"},
			want: "failed to install PDF set: CT18NNLO",
		},
		{
			name: "missing index file",
			err: &ActionableError{
				Operation: "load reference index",
				Resource:  indexPath,
				Cause:     fs.ErrNotExist,
			},
			want: "failed to load reference index: " + indexPath + ": file does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActionableError_KeepsCause(t *testing.T) {
	t.Parallel()

	pathErr := &fs.PathError{Op: "open", Path: indexPath, Err: fs.ErrNotExist}
	err := NewErrorContext().
		WithOperation("load reference index").
		Wrap(fmt.Errorf("reading: %w", pathErr)).
		BuildError()

	if !errors.Is(err, fs.ErrNotExist) {
		t.Error("errors.Is should reach the wrapped fs.ErrNotExist")
	}
	var got *fs.PathError
	if !errors.As(err, &got) || got.Path != indexPath {
		t.Errorf("errors.As = %v, want the *fs.PathError for %s", got, indexPath)
	}
	if (&ActionableError{Operation: "list sets"}).Unwrap() != nil {
		t.Error("Unwrap() without a cause should be nil")
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	nested := &ActionableError{
		Operation:   "install PDF set",
		Resource:    "NNPDF40_nnlo_as_01180",
		Suggestions: []string{"Check that the set is published", "Add a mirror with --sources"},
		Cause: &ActionableError{
			Operation: "extract archive",
			Cause:     errors.New("unexpected EOF"),
		},
	}

	tests := []struct {
		name     string
		verbose  bool
		contains []string
		excludes []string
	}{
		{
			name:    "suggestions as bullets",
			verbose: false,
			contains: []string{
				"failed to install PDF set: NNPDF40_nnlo_as_01180: failed to extract archive: unexpected EOF",
				"\n\n  • Check that the set is published",
				"\n  • Add a mirror with --sources",
			},
			excludes: []string{"Error chain:"},
		},
		{
			name:    "verbose numbers each cause",
			verbose: true,
			contains: []string{
				"Error chain:",
				"\n  1. failed to extract archive: unexpected EOF",
				"\n  2. unexpected EOF",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := nested.Format(tt.verbose)
			for _, s := range tt.contains {
				if !strings.Contains(got, s) {
					t.Errorf("Format() missing %q\ngot:\n%s", s, got)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(got, s) {
					t.Errorf("Format() should not contain %q\ngot:\n%s", s, got)
				}
			}
		})
	}

	plain := &ActionableError{Operation: "list sets"}
	if got := plain.Format(true); got != "failed to list sets" {
		t.Errorf("Format() without suggestions or cause = %q", got)
	}
}

func TestErrorContext_Build(t *testing.T) {
	t.Parallel()

	ae := NewErrorContext().
		WithOperation("load configuration").
		WithResource("/home/user/.config/lhapdf-management/config.cue").
		WithSuggestion("Check the CUE syntax").
		WithSuggestions("Run 'lhapdf-management config dump' for the defaults", "Remove the file to start over").
		WithIssue(ConfigLoadFailedId).
		Wrap(errors.New("expected '}'")).
		Build()

	if ae == nil {
		t.Fatal("Build() returned nil")
	}
	if ae.Operation != "load configuration" || ae.Resource != "/home/user/.config/lhapdf-management/config.cue" {
		t.Errorf("context = %q on %q", ae.Operation, ae.Resource)
	}
	if len(ae.Suggestions) != 3 || ae.Suggestions[0] != "Check the CUE syntax" {
		t.Errorf("Suggestions = %q, want the single suggestion first then the batch", ae.Suggestions)
	}
	if ae.IssueID != ConfigLoadFailedId {
		t.Errorf("IssueID = %d, want %d", ae.IssueID, ConfigLoadFailedId)
	}
	if ae.Cause == nil || ae.Cause.Error() != "expected '}'" {
		t.Errorf("Cause = %v", ae.Cause)
	}
}

func TestErrorContext_NoOperation(t *testing.T) {
	t.Parallel()

	ctx := NewErrorContext().WithResource(indexPath).Wrap(fs.ErrNotExist)
	if ae := ctx.Build(); ae != nil {
		t.Errorf("Build() = %v, want nil", ae)
	}
	// A typed nil inside an error interface would compare non-nil.
	if err := ctx.BuildError(); err != nil {
		t.Errorf("BuildError() = %v, want untyped nil", err)
	}
}

func TestErrorContext_SharedAcrossFailures(t *testing.T) {
	t.Parallel()

	ctx := NewErrorContext().WithOperation("fetch").WithResource("pdfsets.index")

	first := ctx.Wrap(errors.New("cvmfs not mounted")).Build()
	second := ctx.Wrap(errors.New("HTTP 503")).Build()

	if first.Cause.Error() != "cvmfs not mounted" || second.Cause.Error() != "HTTP 503" {
		t.Errorf("causes = %v, %v", first.Cause, second.Cause)
	}
	if first.Resource != second.Resource {
		t.Error("context set before Wrap should carry over to every build")
	}
}
