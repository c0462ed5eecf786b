// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gitlab.com/hepcedar/lhapdf-management/internal/datapath"
	"gitlab.com/hepcedar/lhapdf-management/internal/issue"
	"gitlab.com/hepcedar/lhapdf-management/internal/platform"
	"gitlab.com/hepcedar/lhapdf-management/pkg/cueutil"

	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "lhapdf-management"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"

	// EnvS3AccessKey overrides s3.access_key.
	EnvS3AccessKey = "LHAPDF_S3_ACCESS_KEY"
	// EnvS3SecretKey overrides s3.secret_key.
	EnvS3SecretKey = "LHAPDF_S3_SECRET_KEY"
)

//go:embed config_schema.cue
var configSchema string

// envBindings maps config keys to the environment variables that override
// them. Environment values win over the config file.
var envBindings = []struct {
	key string
	env string
}{
	{"cvmfs_base", datapath.EnvCVMFSBase},
	{"url_base", datapath.EnvURLBase},
	{"s3.access_key", EnvS3AccessKey},
	{"s3.secret_key", EnvS3SecretKey},
}

// ConfigDir returns the configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	// Allow tests to override the config directory
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case platform.Windows:
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case platform.Darwin:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("data_path", defaults.DataPath)
	v.SetDefault("list_dir", defaults.ListDir)
	v.SetDefault("sources", defaults.Sources)
	v.SetDefault("cvmfs_base", defaults.CVMFSBase)
	v.SetDefault("url_base", defaults.URLBase)
	v.SetDefault("fetch.timeout", defaults.Fetch.Timeout)
	v.SetDefault("fetch.progress", defaults.Fetch.Progress)
	v.SetDefault("fetch.rate_limit", defaults.Fetch.RateLimit)
	v.SetDefault("fetch.user_agent", defaults.Fetch.UserAgent)
	v.SetDefault("s3.endpoint", defaults.S3.Endpoint)
	v.SetDefault("s3.region", defaults.S3.Region)
	v.SetDefault("s3.access_key", defaults.S3.AccessKey)
	v.SetDefault("s3.secret_key", defaults.S3.SecretKey)
	v.SetDefault("s3.insecure", defaults.S3.Insecure)
	v.SetDefault("ui.color_scheme", defaults.UI.ColorScheme)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)

	resolvedPath := ""

	// An explicit --config path is used exclusively and must exist.
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'lhapdf-management config init' to create a default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				WithIssue(issue.ConfigLoadFailedId).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		var err error
		resolvedPath, err = Resolve(opts)
		if err != nil {
			return nil, "", err
		}
	}

	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("Run 'lhapdf-management config dump' to see a valid configuration").
				Wrap(err).
				WithIssue(issue.ConfigLoadFailedId).
				BuildError()
		}
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, b := range envBindings {
		if val := getenv(b.env); val != "" {
			v.Set(b.key, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("parse configuration").
			WithResource(resolvedPath).
			WithSuggestion("Durations use Go syntax, e.g. \"30s\" or \"5m\"").
			Wrap(err).
			WithIssue(issue.ConfigLoadFailedId).
			BuildError()
	}

	if valid, errs := cfg.IsValid(); !valid {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			Wrap(errs[0]).
			WithIssue(issue.ConfigLoadFailedId).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

// loadCUEIntoViper validates the file against #Config and merges it over
// the defaults already registered on v.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	configMap, err := cueutil.DecodeMap(configSchema, data, "#Config", path)
	if err != nil {
		return err
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

func filePath(cfgDir string) string {
	return filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the default configuration into cfgDir (or the
// standard config directory when cfgDir is empty) unless a config file is
// already there. It returns the config file path and whether it was created.
func CreateDefaultConfig(cfgDir string) (string, bool, error) {
	cfgDir, err := configDirWithOverride(cfgDir)
	if err != nil {
		return "", false, err
	}

	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filePath(cfgDir)
	if _, err := os.Stat(cfgPath); err == nil {
		return cfgPath, false, nil
	}

	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to write config file: %w", err)
	}

	return cfgPath, true, nil
}

// GenerateCUE renders cfg as a config file accepted by the schema.
// Empty optional strings are left out; secrets are never written.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// lhapdf-management configuration file\n\n")

	writeOptional := func(indent, key, val string) {
		if val != "" {
			fmt.Fprintf(&sb, "%s%s: %q\n", indent, key, val)
		}
	}

	writeOptional("", "data_path", cfg.DataPath)
	writeOptional("", "list_dir", cfg.ListDir)
	if len(cfg.Sources) > 0 {
		sb.WriteString("sources: [\n")
		for _, s := range cfg.Sources {
			fmt.Fprintf(&sb, "\t%q,\n", s)
		}
		sb.WriteString("]\n")
	}
	writeOptional("", "cvmfs_base", cfg.CVMFSBase)
	writeOptional("", "url_base", cfg.URLBase)

	sb.WriteString("\nfetch: {\n")
	fmt.Fprintf(&sb, "\ttimeout: %q\n", cfg.Fetch.Timeout.String())
	fmt.Fprintf(&sb, "\tprogress: %v\n", cfg.Fetch.Progress)
	fmt.Fprintf(&sb, "\trate_limit: %d\n", cfg.Fetch.RateLimit)
	writeOptional("\t", "user_agent", cfg.Fetch.UserAgent)
	sb.WriteString("}\n")

	if cfg.S3.Endpoint != "" || cfg.S3.Region != "" || cfg.S3.Insecure {
		sb.WriteString("\ns3: {\n")
		writeOptional("\t", "endpoint", cfg.S3.Endpoint)
		writeOptional("\t", "region", cfg.S3.Region)
		fmt.Fprintf(&sb, "\tinsecure: %v\n", cfg.S3.Insecure)
		sb.WriteString("}\n")
	}

	sb.WriteString("\nui: {\n")
	colorScheme := cfg.UI.ColorScheme
	if colorScheme == "" {
		colorScheme = ColorSchemeAuto
	}
	fmt.Fprintf(&sb, "\tcolor_scheme: %q\n", colorScheme)
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	sb.WriteString("}\n")

	return sb.String()
}
