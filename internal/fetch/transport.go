// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultUserAgent is sent with every HTTP request.
const DefaultUserAgent = "lhapdf-management"

type (
	// Transport retrieves items addressed by a locator.
	Transport interface {
		// Stat returns the size of the item in bytes.
		Stat(ctx context.Context, locator string) (int64, error)
		// Open returns the item's content and its size, or -1 when unknown.
		Open(ctx context.Context, locator string) (io.ReadCloser, int64, error)
	}

	// LocalTransport reads items from the local filesystem.
	LocalTransport struct{}

	// HTTPTransport retrieves items over HTTP(S).
	HTTPTransport struct {
		client    *http.Client
		userAgent string
	}

	// HTTPOption configures an HTTPTransport.
	HTTPOption func(*HTTPTransport)

	// S3Config holds the connection settings of an S3-compatible store.
	S3Config struct {
		Endpoint  string
		Region    string
		AccessKey string
		SecretKey string
		Insecure  bool
	}

	// S3Transport retrieves items from s3://bucket/key locators.
	S3Transport struct {
		client *minio.Client
	}
)

// Stat implements Transport.
func (LocalTransport) Stat(_ context.Context, locator string) (int64, error) {
	info, err := os.Stat(locator)
	if err != nil {
		return 0, localErr(err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%w: %s is a directory", ErrSourceFileNotFound, locator)
	}
	return info.Size(), nil
}

// Open implements Transport.
func (t LocalTransport) Open(ctx context.Context, locator string) (io.ReadCloser, int64, error) {
	size, err := t.Stat(ctx, locator)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(locator)
	if err != nil {
		return nil, 0, localErr(err)
	}
	return f, size, nil
}

func localErr(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrSourceFileNotFound, err)
	}
	return err
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) {
		t.client = c
	}
}

// WithTimeout bounds each request, body transfer included. Zero keeps the
// default of no timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(t *HTTPTransport) {
		if d > 0 {
			t.client = &http.Client{Timeout: d}
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(t *HTTPTransport) {
		if ua != "" {
			t.userAgent = ua
		}
	}
}

// NewHTTPTransport creates an HTTPTransport with the given options.
func NewHTTPTransport(opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		client:    &http.Client{},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Stat issues a HEAD request and reports Content-Length.
func (t *HTTPTransport) Stat(ctx context.Context, locator string) (int64, error) {
	resp, err := t.do(ctx, http.MethodHead, locator)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }() // HEAD has no body
	return max(resp.ContentLength, 0), nil
}

// Open issues a GET request.
func (t *HTTPTransport) Open(ctx context.Context, locator string) (io.ReadCloser, int64, error) {
	resp, err := t.do(ctx, http.MethodGet, locator)
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}

func (t *HTTPTransport) do(ctx context.Context, method, locator string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close() // error path; status is what matters
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}
	return resp, nil
}

// NewS3Transport connects to an S3-compatible endpoint. Static credentials
// are used when given; otherwise the standard AWS environment and the
// anonymous fallback are tried in turn.
func NewS3Transport(cfg S3Config) (*S3Transport, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
	}

	var creds *credentials.Credentials
	if cfg.AccessKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
			&credentials.Static{Value: credentials.Value{SignerType: credentials.SignatureAnonymous}},
		})
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: !cfg.Insecure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating S3 client for %s: %w", endpoint, err)
	}
	return &S3Transport{client: client}, nil
}

// Stat implements Transport.
func (t *S3Transport) Stat(ctx context.Context, locator string) (int64, error) {
	bucket, key, err := splitS3Locator(locator)
	if err != nil {
		return 0, err
	}
	info, err := t.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, s3Err(err)
	}
	return info.Size, nil
}

// Open implements Transport.
func (t *S3Transport) Open(ctx context.Context, locator string) (io.ReadCloser, int64, error) {
	size, err := t.Stat(ctx, locator)
	if err != nil {
		return nil, 0, err
	}
	bucket, key, _ := splitS3Locator(locator)
	obj, err := t.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, s3Err(err)
	}
	return obj, size, nil
}

func splitS3Locator(locator string) (bucket, key string, err error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", "", fmt.Errorf("parsing S3 locator: %w", err)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid S3 locator %q: want s3://bucket/key", locator)
	}
	return bucket, key, nil
}

func s3Err(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %w", ErrUnexpectedStatus, err)
	default:
		return err
	}
}
