// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gitlab.com/hepcedar/lhapdf-management/internal/fetch"
	"gitlab.com/hepcedar/lhapdf-management/internal/index"
	"gitlab.com/hepcedar/lhapdf-management/internal/install"
	"gitlab.com/hepcedar/lhapdf-management/internal/issue"

	"github.com/spf13/cobra"
)

type installOptions struct {
	names   []string
	upgrade bool
	keep    bool
	dry     bool
}

func newInstallCommand(app *App) *cobra.Command {
	var opts installOptions

	cmd := &cobra.Command{
		Use:     "install PDF_NAME...",
		Aliases: []string{"get"},
		Short:   "Download and install new PDF set data files",
		Long: `Download and install PDF sets into the primary data directory.

When more than one name is given, or a name contains '*', the names are
treated as patterns and matched against the reference index.`,
		Example: `  lhapdf-management install CT18NNLO
  lhapdf-management install 'NNPDF40_*' --dryrun
  lhapdf-management get MSHT20nnlo_as118 --keep`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.names = args
			return runInstall(cmd.Context(), app, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.upgrade, "upgrade", false, "download and install a newer replacement if available")
	addInstallFlags(cmd, &opts)

	return cmd
}

func newUpgradeCommand(app *App) *cobra.Command {
	var opts installOptions

	cmd := &cobra.Command{
		Use:   "upgrade PDF_NAME...",
		Short: "Reinstall PDF sets over the installed copy",
		Long: `Same as 'install --upgrade': the sets are downloaded and extracted over
any existing copy. Files of the old version that the new archive does not
contain are left in place.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.names = args
			opts.upgrade = true
			return runInstall(cmd.Context(), app, opts)
		},
	}

	addInstallFlags(cmd, &opts)

	return cmd
}

func addInstallFlags(cmd *cobra.Command, opts *installOptions) {
	cmd.Flags().BoolVar(&opts.keep, "keep", false, "keep the downloaded tarball")
	cmd.Flags().BoolVar(&opts.dry, "dryrun", false, "don't actually download")
}

// runInstall installs every requested set. A failed set does not stop the
// remaining ones; the command fails if any set failed.
func runInstall(ctx context.Context, app *App, opts installOptions) error {
	svc, err := app.services(ctx)
	if err != nil {
		return err
	}

	names := opts.names
	if len(names) > 1 || strings.Contains(names[0], "*") {
		if names, err = svc.expandPatterns(opts.names); err != nil {
			return err
		}
	}

	target, err := svc.resolver.DataPath()
	if err != nil {
		return err
	}

	var (
		failed  int
		lastErr error
	)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}

		outcome, err := svc.installer.Install(ctx, name, install.Options{
			Dry:        opts.dry,
			Upgrade:    opts.upgrade,
			Keep:       opts.keep,
			TargetPath: target,
		})
		switch {
		case err != nil:
			failed++
			lastErr = err
			if len(names) > 1 {
				svc.logger.Error("Install failed", "set", name, "err", err)
			}
		case !outcome.OK():
			failed++
		default:
			svc.logger.Debug("Install finished", "set", name, "outcome", outcome)
		}
	}

	switch {
	case failed == 0:
		return nil
	case len(names) == 1 && lastErr != nil:
		return installFailure(names[0], lastErr)
	default:
		return &ExitError{Code: 1, Err: fmt.Errorf("%w: %d of %d sets not installed", errItemsFailed, failed, len(names))}
	}
}

// expandPatterns resolves install arguments against the reference index.
func (s *services) expandPatterns(patterns []string) ([]string, error) {
	store, err := s.store()
	if err != nil {
		return nil, err
	}
	records, err := store.ReferenceList()
	if err != nil {
		return nil, err
	}
	matched, err := index.Filter(records, patterns)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		joined := strings.Join(patterns, " ")
		s.logger.Errorf("No PDF found matching the given pattern: %s", joined)
		return nil, fmt.Errorf("%w: %s", errNoMatch, joined)
	}

	names := make([]string, len(matched))
	for i, r := range matched {
		names[i] = r.Name
	}
	return names, nil
}

// installFailure names the set a single install failed for and adds what the
// user can try next. The cause stays reachable with errors.Is and errors.As.
func installFailure(name string, err error) error {
	ctx := issue.NewErrorContext().
		WithOperation("install PDF set").
		WithResource(name).
		Wrap(err)

	var fetchErr *fetch.FetchError
	switch {
	case errors.As(err, &fetchErr):
		ctx.WithSuggestions(
			"Check that "+fetchErr.Name+" is published on the listed sources",
			"Add a mirror with --sources or the sources key in the config file",
		)
	case errors.Is(err, install.ErrUnsafePath):
		ctx.WithSuggestion("The archive contains entries outside the set directory; do not install it from this source")
	case errors.Is(err, install.ErrArchiveNotFound):
		ctx.WithSuggestion("Retry the install; the downloaded archive was removed before extraction")
	case errors.Is(err, os.ErrPermission):
		ctx.WithSuggestion("Use --pdfdir to install into a directory you can write to")
	}
	return ctx.BuildError()
}
