// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newUpdateCommand(app *App) *cobra.Command {
	var initDir bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Download and install a new PDF set index file",
		Long: `Download the reference index (pdfsets.index) into the list directory.

With --init the data directory is created first, so a fresh machine can be
set up with a single command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd.Context(), app, initDir)
		},
	}

	cmd.Flags().BoolVar(&initDir, "init", false, "create the data directory if it does not exist")

	return cmd
}

func runUpdate(ctx context.Context, app *App, initDir bool) error {
	svc, err := app.services(ctx)
	if err != nil {
		return err
	}

	if initDir {
		dir := svc.resolver.PossibleDataPath()
		svc.logger.Warn("Creating the path", "path", dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		if _, err := svc.resolver.DataPath(); err != nil {
			svc.resolver.SetDataPath(dir)
		}
	}

	store, err := svc.store()
	if err != nil {
		return err
	}
	return store.Update(ctx, svc.fetcher)
}
