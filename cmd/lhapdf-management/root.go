// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// newRootCommand builds the command tree around app.
func newRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lhapdf-management",
		Short: "Install, update and inspect LHAPDF PDF sets",
		Long: TitleStyle.Render("lhapdf-management") + SubtitleStyle.Render(" - Install, update and inspect LHAPDF PDF sets") + `

Sets are downloaded from an ordered list of sources: the CVMFS mirror,
the CERN web mirror, and any extra source given with --sources or in the
configuration file. The first source holding the file wins.

` + SubtitleStyle.Render("Examples:") + `
  lhapdf-management update --init        Create the data directory and fetch the index
  lhapdf-management list 'CT18*'         List the sets matching a pattern
  lhapdf-management install CT18NNLO     Install a set
  lhapdf-management list --outdated      Show installed sets with a newer release
  lhapdf-management show CT18NNLO        Show metadata of an installed set`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&app.flags.pdfdir, "pdfdir", "", "local path where the PDF sets are located")
	flags.StringVar(&app.flags.listdir, "listdir", "", "local path where the PDF index is located")
	flags.StringSliceVar(&app.flags.sources, "sources", nil, "sources to look for remote data, tried before the defaults")
	flags.BoolVarP(&app.flags.verbose, "verbose", "v", false, "increase verbosity level")
	flags.StringVar(&app.flags.configPath, "config", "", "config file (default is $HOME/.config/lhapdf-management/config.cue)")

	rootCmd.AddCommand(
		newListCommand(app),
		newShowCommand(app),
		newUpdateCommand(app),
		newInstallCommand(app),
		newUpgradeCommand(app),
		newConfigCommand(app),
	)

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits the process with the resulting status.
// It is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	rootCmd := newRootCommand(app)

	// fang installs the interrupt handler: Ctrl-C cancels the command
	// context, which stops an in-flight download.
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(func(w io.Writer, _ fang.Styles, err error) {
			renderError(w, err, app.verbose, app.style)
		}),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
