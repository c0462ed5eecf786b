// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gitlab.com/hepcedar/lhapdf-management/internal/datapath"
	"gitlab.com/hepcedar/lhapdf-management/internal/fetch"
	"gitlab.com/hepcedar/lhapdf-management/internal/index"
	"gitlab.com/hepcedar/lhapdf-management/internal/install"
	"gitlab.com/hepcedar/lhapdf-management/internal/issue"
	"gitlab.com/hepcedar/lhapdf-management/internal/pdfset"
)

var (
	// errNoMatch is returned when install patterns select nothing.
	errNoMatch = errors.New("no PDF found matching the given pattern")
	// errItemsFailed is returned when some items of a batch failed.
	errItemsFailed = errors.New("some items failed")
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code int
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// classifyError maps a command failure to the issue catalog entry with
// remediation help. Zero means no entry applies.
func classifyError(err error) issue.Id {
	if linked := issue.IssueFor(err); linked != nil {
		return linked.Id()
	}

	var (
		indexErr   *index.ParseError
		extractErr *install.ExtractError
	)
	switch {
	case errors.Is(err, datapath.ErrDataPathNotFound):
		return issue.DataPathNotFoundId
	case errors.Is(err, index.ErrIndexNotFound):
		return issue.IndexNotFoundId
	case errors.As(err, &indexErr):
		return issue.IndexCorruptedId
	case errors.Is(err, errNoMatch):
		return issue.NoMatchingSetId
	case errors.Is(err, pdfset.ErrNotInstalled):
		return issue.SetNotInstalledId
	case errors.Is(err, fetch.ErrAllSourcesFailed):
		return issue.FetchFailedId
	case errors.As(err, &extractErr), errors.Is(err, install.ErrArchiveNotFound):
		return issue.ExtractionFailedId
	case errors.Is(err, os.ErrPermission):
		return issue.PermissionDeniedId
	default:
		return 0
	}
}

// formatErrorForDisplay formats an error for user display.
// ActionableErrors carry their suggestions; in verbose mode the full chain
// is shown as well.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}

// renderError prints err and, in verbose mode, the catalog help for it.
func renderError(stderr io.Writer, err error, verbose bool, style string) {
	fmt.Fprintf(stderr, "%s %s\n", ErrorStyle.Render("Error:"), formatErrorForDisplay(err, verbose))

	id := classifyError(err)
	if id == 0 {
		return
	}
	if !verbose {
		fmt.Fprintln(stderr, SubtitleStyle.Render("Run with --verbose for troubleshooting help."))
		return
	}
	if entry := issue.Get(id); entry != nil {
		if rendered, renderErr := entry.Render(style); renderErr == nil {
			fmt.Fprint(stderr, rendered)
		}
	}
}
