// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"cmp"
	"context"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"

	"gitlab.com/hepcedar/lhapdf-management/internal/config"
	"gitlab.com/hepcedar/lhapdf-management/internal/datapath"
	"gitlab.com/hepcedar/lhapdf-management/internal/fetch"
	"gitlab.com/hepcedar/lhapdf-management/internal/index"
	"gitlab.com/hepcedar/lhapdf-management/internal/install"
	"gitlab.com/hepcedar/lhapdf-management/internal/tui"

	"github.com/charmbracelet/log"
)

type (
	// App wires CLI services and shared dependencies. It is the composition
	// root of the CLI layer: every command handler receives the App and
	// builds the core components of one invocation through it.
	App struct {
		Config     ConfigProvider
		stdout     io.Writer
		stderr     io.Writer
		getenv     func(string) string
		httpClient *http.Client

		flags globalFlags

		// Resolved once the configuration is loaded.
		verbose bool
		style   string
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config     ConfigProvider
		Stdout     io.Writer
		Stderr     io.Writer
		Getenv     func(string) string
		HTTPClient *http.Client
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// globalFlags are the persistent flags shared by every command.
	globalFlags struct {
		pdfdir     string
		listdir    string
		sources    []string
		verbose    bool
		configPath string
	}

	// services holds the core components of one invocation.
	services struct {
		cfg       *config.Config
		logger    *log.Logger
		resolver  *datapath.Resolver
		fetcher   *fetch.Fetcher
		installer *install.Installer
	}
)

// NewApp creates an App, filling unset dependencies with production defaults.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config:     cmp.Or[ConfigProvider](deps.Config, config.NewProvider()),
		stdout:     cmp.Or[io.Writer](deps.Stdout, os.Stdout),
		stderr:     cmp.Or[io.Writer](deps.Stderr, os.Stderr),
		getenv:     deps.Getenv,
		httpClient: deps.HTTPClient,
	}
	if app.getenv == nil {
		app.getenv = os.Getenv
	}
	return app
}

func (a *App) loadOptions() config.LoadOptions {
	return config.LoadOptions{
		ConfigFilePath: a.flags.configPath,
		Getenv:         a.getenv,
	}
}

// loadConfig loads the configuration and applies its UI settings.
func (a *App) loadConfig(ctx context.Context) (*config.Config, error) {
	a.verbose = a.flags.verbose
	cfg, err := a.Config.Load(ctx, a.loadOptions())
	if err != nil {
		return nil, err
	}
	a.verbose = a.verbose || cfg.UI.Verbose
	a.style = cfg.UI.ColorScheme.GlamourStyle()
	return cfg, nil
}

// services loads the configuration and builds the resolver, fetcher and
// installer for one command. Sources are ordered --sources first, then the
// configured extra sources, then the two default bases; each list keeps the
// order it was given in.
func (a *App) services(ctx context.Context) (*services, error) {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	logger := newLogger(a.stderr, a.verbose)

	resolver := datapath.New(
		datapath.WithGetenv(a.getenv),
		datapath.WithSources(cfg.CVMFSBase, cfg.URLBase),
		datapath.WithLogger(logger),
	)
	for _, s := range slices.Backward(cfg.Sources) {
		resolver.AddSource(s, true)
	}
	for _, s := range slices.Backward(a.flags.sources) {
		resolver.AddSource(s, true)
	}
	if dir := cmp.Or(a.flags.pdfdir, cfg.DataPath); dir != "" {
		resolver.SetDataPath(dir)
		resolver.AddPath(dir, true)
	}
	if dir := cmp.Or(a.flags.listdir, cfg.ListDir); dir != "" {
		resolver.SetListDir(dir)
	}

	fetcher, err := a.newFetcher(cfg, resolver, logger)
	if err != nil {
		return nil, err
	}

	return &services{
		cfg:       cfg,
		logger:    logger,
		resolver:  resolver,
		fetcher:   fetcher,
		installer: install.New(fetcher, logger),
	}, nil
}

func (a *App) newFetcher(cfg *config.Config, sources *datapath.Resolver, logger *log.Logger) (*fetch.Fetcher, error) {
	httpOpts := []fetch.HTTPOption{fetch.WithTimeout(cfg.Fetch.Timeout)}
	if a.httpClient != nil {
		httpOpts = append(httpOpts, fetch.WithHTTPClient(a.httpClient))
	}
	if cfg.Fetch.UserAgent != "" {
		httpOpts = append(httpOpts, fetch.WithUserAgent(cfg.Fetch.UserAgent))
	}

	opts := []fetch.Option{
		fetch.WithHTTPTransport(fetch.NewHTTPTransport(httpOpts...)),
		fetch.WithRateLimit(cfg.Fetch.RateLimit),
		fetch.WithStdout(a.stdout),
		fetch.WithLogger(logger),
	}

	if cfg.S3.Endpoint != "" || slices.ContainsFunc(slices.Collect(sources.Sources()), isS3Source) {
		s3, err := fetch.NewS3Transport(fetch.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Insecure:  cfg.S3.Insecure,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, fetch.WithS3Transport(s3))
	}

	if cfg.Fetch.Progress && tui.IsTerminal(a.stderr) {
		opts = append(opts, fetch.WithProgress(tui.ProgressFunc(a.stderr)))
	}

	return fetch.New(sources, opts...), nil
}

// store opens the reference index of the list directory.
func (s *services) store() (*index.Store, error) {
	path, err := s.resolver.IndexPath()
	if err != nil {
		return nil, err
	}
	return index.NewStore(s.resolver, path, s.logger), nil
}

func newLogger(w io.Writer, verbose bool) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{Level: level})
}

func isS3Source(source string) bool {
	return strings.HasPrefix(source, "s3://")
}
