// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"gitlab.com/hepcedar/lhapdf-management/internal/index"
	"gitlab.com/hepcedar/lhapdf-management/internal/pdfset"

	"github.com/spf13/cobra"
)

type listOptions struct {
	patterns  []string
	installed bool
	outdated  bool
	codes     bool
}

func newListCommand(app *App) *cobra.Command {
	var opts listOptions

	cmd := &cobra.Command{
		Use:     "list [PATTERNS...]",
		Aliases: []string{"ls"},
		Short:   "List available PDF sets, optionally filtered and/or categorised by status",
		Long: `List the PDF sets of the reference index.

Patterns are shell-style globs matched against the whole set name; a set is
listed when any pattern matches.`,
		Example: `  lhapdf-management list
  lhapdf-management list --installed 'NNPDF*'
  lhapdf-management ls --codes CT18NNLO`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.patterns = args
			return runList(cmd.Context(), app, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.installed, "installed", false, "show only installed sets")
	cmd.Flags().BoolVar(&opts.outdated, "outdated", false, "show installed outdated sets")
	cmd.Flags().BoolVar(&opts.codes, "codes", false, "show ID codes")

	return cmd
}

func runList(ctx context.Context, app *App, opts listOptions) error {
	svc, err := app.services(ctx)
	if err != nil {
		return err
	}
	store, err := svc.store()
	if err != nil {
		return err
	}

	var records []index.SetRecord
	if opts.installed || opts.outdated {
		records, err = store.Installed()
	} else {
		records, err = store.ReferenceList()
	}
	if err != nil {
		return err
	}

	if records, err = index.Filter(records, opts.patterns); err != nil {
		return err
	}

	if opts.outdated {
		if records, err = index.Outdated(records, svc.installedVersion); err != nil {
			return err
		}
	}

	for _, r := range records {
		if opts.codes {
			fmt.Fprintf(app.stdout, "%d %s\n", r.IDCode, r.Name)
		} else {
			fmt.Fprintln(app.stdout, r.Name)
		}
	}
	return nil
}

// openSet opens the first installed copy of the set described by r.
func (s *services) openSet(r index.SetRecord) (*pdfset.Set, error) {
	dir, ok := pdfset.Locate(s.resolver.Paths(), r.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", pdfset.ErrNotInstalled, r.Name)
	}
	return pdfset.Open(filepath.Join(dir, r.Name), &r)
}

// installedVersion reads the data version from the installed set's metadata.
func (s *services) installedVersion(r index.SetRecord) (int, bool, error) {
	set, err := s.openSet(r)
	if err != nil {
		return 0, false, err
	}
	return set.Version()
}
