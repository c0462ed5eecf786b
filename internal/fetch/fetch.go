// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

var (
	// ErrAllSourcesFailed is wrapped by FetchError.
	ErrAllSourcesFailed = errors.New("no source could provide the item")

	// ErrSourceFileNotFound marks a local source that does not hold the item.
	ErrSourceFileNotFound = errors.New("source file not found")

	// ErrUnexpectedStatus marks a network response other than 200 OK.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// errNoTransport marks a source whose scheme has no configured transport.
	errNoTransport = errors.New("no transport configured for source")
)

type (
	// SourceLister provides the sources to try, highest priority first.
	SourceLister interface {
		Sources() iter.Seq[string]
	}

	// SourceError records the failure of one source.
	SourceError struct {
		Source  string // Source as configured
		Locator string // Path or URL actually tried
		Err     error
	}

	// FetchError is returned when every source failed. Attempts holds one
	// entry per source tried, in the order they were tried.
	FetchError struct {
		Name     string
		Attempts []*SourceError
	}

	// Fetcher tries sources in priority order. It is synchronous: each call
	// blocks until the item is realized or every source has failed.
	Fetcher struct {
		sources  SourceLister
		local    Transport
		http     Transport
		s3       Transport
		progress ProgressFunc
		limiter  *rate.Limiter
		stdout   io.Writer
		logger   *log.Logger
	}

	// Option configures a Fetcher during construction.
	Option func(*Fetcher)
)

// Error describes the failed source the same way for every transport.
func (e *SourceError) Error() string {
	if errors.Is(e.Err, ErrSourceFileNotFound) {
		return fmt.Sprintf("%s not found", e.Source)
	}
	return fmt.Sprintf("Unable to download from %s: %v", e.Locator, e.Err)
}

// Unwrap returns the transport error.
func (e *SourceError) Unwrap() error { return e.Err }

// Error lists every per-source failure, not just the last one.
func (e *FetchError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "unable to fetch %s", e.Name)
	if len(e.Attempts) == 0 {
		sb.WriteString(": no source was tried")
		return sb.String()
	}
	for _, a := range e.Attempts {
		sb.WriteString("\n  - ")
		sb.WriteString(a.Error())
	}
	return sb.String()
}

// Unwrap exposes ErrAllSourcesFailed and every attempt to errors.Is/As.
func (e *FetchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts)+1)
	errs = append(errs, ErrAllSourcesFailed)
	for _, a := range e.Attempts {
		errs = append(errs, a)
	}
	return errs
}

// WithHTTPTransport overrides the transport used for http(s) sources.
func WithHTTPTransport(t Transport) Option {
	return func(f *Fetcher) {
		f.http = t
	}
}

// WithS3Transport enables s3:// sources.
func WithS3Transport(t Transport) Option {
	return func(f *Fetcher) {
		f.s3 = t
	}
}

// WithProgress enables progress reporting for network transfers. Without it
// a single size line is logged once a download completes.
func WithProgress(p ProgressFunc) Option {
	return func(f *Fetcher) {
		f.progress = p
	}
}

// WithRateLimit caps transfers at bytesPerSec. Zero or negative disables the limit.
func WithRateLimit(bytesPerSec int64) Option {
	return func(f *Fetcher) {
		f.limiter = newLimiter(bytesPerSec)
	}
}

// WithStdout sets where dry-run size reports are printed.
func WithStdout(w io.Writer) Option {
	return func(f *Fetcher) {
		f.stdout = w
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher over the given sources.
func New(sources SourceLister, opts ...Option) *Fetcher {
	f := &Fetcher{
		sources: sources,
		local:   LocalTransport{},
		stdout:  os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.http == nil {
		f.http = NewHTTPTransport()
	}
	if f.logger == nil {
		f.logger = log.New(io.Discard)
	}
	return f
}

// Fetch realizes name at destination/name, creating destination if needed.
//
// Sources are tried in priority order; a failing source is recorded and the
// next one is tried. The first success returns nil. When dry is set, only the
// size of the item is queried and reported, and nothing is written.
//
// Cancelling ctx (e.g. on an interrupt) stops the remaining attempts of this
// fetch, which then fails like any other exhausted fetch.
func (f *Fetcher) Fetch(ctx context.Context, name, destination string, dry bool) error {
	if err := os.MkdirAll(destination, 0o755); err != nil {
		return fmt.Errorf("creating destination %s: %w", destination, err)
	}
	destPath := filepath.Join(destination, name)

	fetchErr := &FetchError{Name: name}
	for source := range f.sources.Sources() {
		if ctx.Err() != nil {
			f.logger.Error("Download halted by user")
			break
		}

		srcErr := f.fetchFrom(ctx, source, name, destPath, dry)
		if srcErr == nil {
			return nil
		}
		fetchErr.Attempts = append(fetchErr.Attempts, srcErr)

		if errors.Is(srcErr, context.Canceled) {
			f.logger.Error("Download halted by user")
			break
		}
		f.logger.Debug("source failed", "source", source, "err", srcErr.Err)
	}

	for _, a := range fetchErr.Attempts {
		f.logger.Error(a.Error())
	}
	return fetchErr
}

// fetchFrom tries a single source.
func (f *Fetcher) fetchFrom(ctx context.Context, source, name, destPath string, dry bool) *SourceError {
	transport, locator, remote, err := f.resolve(source, name)
	if err != nil {
		return &SourceError{Source: source, Locator: source + name, Err: err}
	}

	wrap := func(err error) *SourceError {
		return &SourceError{Source: source, Locator: locator, Err: err}
	}

	if dry {
		size, err := transport.Stat(ctx, locator)
		if err != nil {
			return wrap(err)
		}
		fmt.Fprintf(f.stdout, "%s [%s]\n", name, FormatBytes(size))
		return nil
	}

	if !remote {
		f.logger.Debugf("Copying the data from %s to %s", locator, destPath)
	}
	size, err := f.transfer(ctx, transport, locator, destPath, remote)
	if err != nil {
		return wrap(err)
	}
	if remote && f.progress == nil {
		f.logger.Infof("%s [%s]", locator, FormatBytes(size))
	}
	return nil
}

// resolve picks the transport for source and builds the locator for name.
func (f *Fetcher) resolve(source, name string) (transport Transport, locator string, remote bool, err error) {
	if local, ok := localPath(source); ok {
		return f.local, filepath.Join(local, name), false, nil
	}

	locator = source + name
	u, err := url.Parse(locator)
	if err != nil {
		return nil, "", true, fmt.Errorf("parsing source %q: %w", source, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "s3":
		if f.s3 == nil {
			return nil, "", true, fmt.Errorf("%w: %s", errNoTransport, u.Scheme)
		}
		return f.s3, locator, true, nil
	case "http", "https":
		return f.http, locator, true, nil
	default:
		return nil, "", true, fmt.Errorf("%w: %q", errNoTransport, u.Scheme)
	}
}

// transfer streams locator into a temporary file next to destPath and moves
// it into place, so destPath never holds a partial file.
func (f *Fetcher) transfer(ctx context.Context, t Transport, locator, destPath string, remote bool) (_ int64, err error) {
	body, total, err := t.Open(ctx, locator)
	if err != nil {
		return 0, err
	}
	defer func() { _ = body.Close() }() // read-only source

	tmp, err := os.CreateTemp(filepath.Dir(destPath), "."+filepath.Base(destPath)+".part-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(tmpName)
		}
	}()

	var r io.Reader = &contextReader{ctx: ctx, r: body}
	if f.limiter != nil {
		r = &limitedReader{ctx: ctx, r: r, limiter: f.limiter}
	}

	var w io.Writer = tmp
	var bar Progress
	if remote && f.progress != nil {
		bar = f.progress(filepath.Base(destPath), total)
		w = io.MultiWriter(tmp, progressWriter{bar})
	}

	written, copyErr := io.Copy(w, r)
	if bar != nil {
		bar.Finish()
	}
	closeErr := tmp.Close()
	if copyErr != nil {
		return 0, fmt.Errorf("writing %s: %w", destPath, copyErr)
	}
	if closeErr != nil {
		return 0, fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpName, destPath); err != nil {
		return 0, fmt.Errorf("moving download into place: %w", err)
	}
	renamed = true
	return written, nil
}

// localPath reports whether source is a bare local path (no network host)
// and returns the directory to read from.
func localPath(source string) (string, bool) {
	if source == "" {
		return "", false
	}
	if filepath.IsAbs(source) {
		return source, true
	}
	u, err := url.Parse(source)
	if err != nil {
		return "", false
	}
	switch {
	case u.Scheme == "file" && u.Host == "" && u.Path != "":
		return u.Path, true
	case u.Scheme == "" && u.Host == "" && u.Path != "":
		return source, true
	}
	return "", false
}

// contextReader stops a transfer once ctx is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
