// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gitlab.com/hepcedar/lhapdf-management/internal/datapath"
)

const (
	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"
)

var (
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidFetchConfig is the sentinel error wrapped by InvalidFetchConfigError.
	ErrInvalidFetchConfig = errors.New("invalid fetch config")
	// ErrInvalidSource is returned for blank source entries.
	ErrInvalidSource = errors.New("invalid source")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	// It wraps ErrInvalidColorScheme for errors.Is() compatibility.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// InvalidFetchConfigError is returned when a FetchConfig has invalid fields.
	InvalidFetchConfigError struct {
		FieldErrors []error
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// DataPath overrides data path discovery when set.
		DataPath string `json:"data_path" mapstructure:"data_path"`
		// ListDir is where the reference index lives; defaults to the data path.
		ListDir string `json:"list_dir" mapstructure:"list_dir"`
		// Sources are tried before the default sources, in order.
		Sources []string `json:"sources" mapstructure:"sources"`
		// CVMFSBase is the default local mirror source.
		CVMFSBase string `json:"cvmfs_base" mapstructure:"cvmfs_base"`
		// URLBase is the default network source.
		URLBase string `json:"url_base" mapstructure:"url_base"`
		// Fetch configures downloads
		Fetch FetchConfig `json:"fetch" mapstructure:"fetch"`
		// S3 configures s3:// sources
		S3 S3Config `json:"s3" mapstructure:"s3"`
		// UI configures the user interface
		UI UIConfig `json:"ui" mapstructure:"ui"`
	}

	// FetchConfig configures network retrieval.
	FetchConfig struct {
		// Timeout bounds each request; zero means no timeout.
		Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
		// Progress shows a progress bar on terminals.
		Progress bool `json:"progress" mapstructure:"progress"`
		// RateLimit caps download speed in bytes per second; zero means unlimited.
		RateLimit int64 `json:"rate_limit" mapstructure:"rate_limit"`
		// UserAgent is sent with HTTP requests.
		UserAgent string `json:"user_agent" mapstructure:"user_agent"`
	}

	// S3Config holds S3 endpoint settings. Empty keys fall back to the
	// standard AWS environment variables.
	S3Config struct {
		Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
		Region    string `json:"region" mapstructure:"region"`
		AccessKey string `json:"access_key" mapstructure:"access_key"`
		SecretKey string `json:"secret_key" mapstructure:"secret_key"`
		Insecure  bool   `json:"insecure" mapstructure:"insecure"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// ColorScheme selects the style of rendered help
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
		// Verbose enables debug logging
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		CVMFSBase: datapath.DefaultCVMFSBase,
		URLBase:   datapath.DefaultURLBase,
		Fetch: FetchConfig{
			Progress: true,
		},
		UI: UIConfig{
			ColorScheme: ColorSchemeAuto,
		},
	}
}

// String returns the string representation of the ColorScheme.
func (c ColorScheme) String() string { return string(c) }

// IsValid returns whether the ColorScheme is one of the defined schemes.
// The zero value is treated as auto.
func (c ColorScheme) IsValid() (bool, []error) {
	switch c {
	case "", ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return true, nil
	default:
		return false, []error{&InvalidColorSchemeError{Value: c}}
	}
}

// GlamourStyle maps the scheme to a glamour style name; "" lets glamour
// detect the terminal background.
func (c ColorScheme) GlamourStyle() string {
	switch c {
	case ColorSchemeDark, ColorSchemeLight:
		return string(c)
	default:
		return ""
	}
}

// Error implements the error interface for InvalidColorSchemeError.
func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

// Unwrap returns ErrInvalidColorScheme for errors.Is() compatibility.
func (e *InvalidColorSchemeError) Unwrap() error { return ErrInvalidColorScheme }

// IsValid returns whether the FetchConfig has valid fields.
func (c FetchConfig) IsValid() (bool, []error) {
	var errs []error
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout: must not be negative, got %s", c.Timeout))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("fetch.rate_limit: must not be negative, got %d", c.RateLimit))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidFetchConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidFetchConfigError.
func (e *InvalidFetchConfigError) Error() string {
	return fmt.Sprintf("invalid fetch config: %v", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidFetchConfig for errors.Is() compatibility.
func (e *InvalidFetchConfigError) Unwrap() error { return ErrInvalidFetchConfig }

// IsValid returns whether the Config has valid fields, collecting the
// errors of every sub-component.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	for i, s := range c.Sources {
		if strings.TrimSpace(s) == "" {
			errs = append(errs, fmt.Errorf("%w: sources[%d] is blank", ErrInvalidSource, i))
		}
	}
	if valid, fieldErrs := c.Fetch.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.UI.ColorScheme.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig and the field errors.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}
