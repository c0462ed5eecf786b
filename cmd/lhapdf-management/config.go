// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strings"

	"gitlab.com/hepcedar/lhapdf-management/internal/config"

	"github.com/spf13/cobra"
)

// newConfigCommand creates the `config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage lhapdf-management configuration",
		Long: `Manage lhapdf-management configuration.

Configuration is stored in:
  - Linux: ~/.config/lhapdf-management/config.cue
  - macOS: ~/Library/Application Support/lhapdf-management/config.cue
  - Windows: %APPDATA%\lhapdf-management\config.cue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd.Context(), app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfigPath(app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	})

	return cfgCmd
}

func showConfig(ctx context.Context, app *App) error {
	cfg, err := app.loadConfig(ctx)
	if err != nil {
		return err
	}

	out := app.stdout
	keyStyle := CmdStyle
	valueStyle := SuccessStyle
	unset := SubtitleStyle.Render("(not set)")

	value := func(s string) string {
		if s == "" {
			return unset
		}
		return valueStyle.Render(s)
	}

	fmt.Fprintln(out, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(out)

	path, err := config.Resolve(app.loadOptions())
	if err != nil || path == "" {
		fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	} else {
		fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("Config file"), path)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("data_path"), value(cfg.DataPath))
	fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("list_dir"), value(cfg.ListDir))
	fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("cvmfs_base"), value(cfg.CVMFSBase))
	fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("url_base"), value(cfg.URLBase))

	fmt.Fprintf(out, "%s:\n", keyStyle.Render("sources"))
	if len(cfg.Sources) == 0 {
		fmt.Fprintf(out, "  %s\n", SubtitleStyle.Render("(none configured)"))
	}
	for _, s := range cfg.Sources {
		fmt.Fprintf(out, "  - %s\n", valueStyle.Render(s))
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("fetch"))
	timeout := "none"
	if cfg.Fetch.Timeout > 0 {
		timeout = cfg.Fetch.Timeout.String()
	}
	fmt.Fprintf(out, "  timeout: %s\n", valueStyle.Render(timeout))
	fmt.Fprintf(out, "  progress: %s\n", valueStyle.Render(fmt.Sprint(cfg.Fetch.Progress)))
	fmt.Fprintf(out, "  rate_limit: %s\n", valueStyle.Render(rateLimitString(cfg.Fetch.RateLimit)))
	fmt.Fprintf(out, "  user_agent: %s\n", value(cfg.Fetch.UserAgent))

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("s3"))
	fmt.Fprintf(out, "  endpoint: %s\n", value(cfg.S3.Endpoint))
	fmt.Fprintf(out, "  region: %s\n", value(cfg.S3.Region))
	fmt.Fprintf(out, "  access_key: %s\n", value(mask(cfg.S3.AccessKey)))
	fmt.Fprintf(out, "  secret_key: %s\n", value(mask(cfg.S3.SecretKey)))
	fmt.Fprintf(out, "  insecure: %s\n", valueStyle.Render(fmt.Sprint(cfg.S3.Insecure)))

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("ui"))
	fmt.Fprintf(out, "  color_scheme: %s\n", valueStyle.Render(cfg.UI.ColorScheme.String()))
	fmt.Fprintf(out, "  verbose: %s\n", valueStyle.Render(fmt.Sprint(cfg.UI.Verbose)))

	return nil
}

func initConfig(app *App) error {
	path, created, err := config.CreateDefaultConfig("")
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	if !created {
		fmt.Fprintf(app.stdout, "Configuration already exists at %s\n", path)
		return nil
	}
	fmt.Fprintf(app.stdout, "%s Created default configuration at %s\n", SuccessStyle.Render("✓"), path)
	return nil
}

func showConfigPath(app *App) error {
	cfgDir, err := config.ConfigDir()
	if err != nil {
		return err
	}

	fmt.Fprintf(app.stdout, "Config directory: %s\n", cfgDir)
	path, err := config.Resolve(app.loadOptions())
	if err != nil {
		return err
	}
	if path == "" {
		path = SubtitleStyle.Render("(none, using defaults)")
	}
	fmt.Fprintf(app.stdout, "Config file: %s\n", path)
	return nil
}

func rateLimitString(bps int64) string {
	if bps <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d B/s", bps)
}

// mask hides all but the last four characters of a secret.
func mask(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}
