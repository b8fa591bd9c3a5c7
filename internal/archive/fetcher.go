package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"bernet/internal/logging"
	"bernet/internal/store"
)

// HTTPError is a non-2xx response from an archive server.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("archive: GET %s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsNotFound reports whether err is an HTTPError with status 404.
func IsNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == http.StatusNotFound
}

// Recorder receives every verified archive. store.Store satisfies it.
type Recorder interface {
	RecordFetch(f *store.Fetch) (int64, error)
}

// Archive is a verified weight archive in the local cache.
type Archive struct {
	URL    string
	SHA256 string
	Path   string
	Size   int64
	// Cached is true when no download was needed.
	Cached bool
}

// Fetcher downloads weight archives into a content-addressed cache and refuses
// any whose digest differs from the expected one.
type Fetcher struct {
	cacheDir   string
	httpClient *http.Client
	logger     *slog.Logger
	recorder   Recorder
}

// Option configures the Fetcher during construction.
type Option func(*fetcherConfig) error

type fetcherConfig struct {
	cacheDir   string
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration
	recorder   Recorder
}

// New creates a Fetcher. Without WithCacheDir archives are cached under the
// system temp directory.
func New(opts ...Option) (*Fetcher, error) {
	cfg := &fetcherConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	cacheDir := cfg.cacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "bernet", "archives")
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	logger := cfg.logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Fetcher{
		cacheDir:   cacheDir,
		httpClient: httpClient,
		logger:     logger,
		recorder:   cfg.recorder,
	}, nil
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *fetcherConfig) error {
		cfg.httpClient = c
		return nil
	}
}

// WithLogger configures structured logging.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *fetcherConfig) error {
		cfg.logger = l
		return nil
	}
}

// WithTimeout sets a timeout on the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cfg *fetcherConfig) error {
		if d < 0 {
			return fmt.Errorf("archive: negative timeout %s", d)
		}
		cfg.timeout = d
		return nil
	}
}

// WithCacheDir sets the cache root. Archives land in <dir>/<sha256>/<basename>.
func WithCacheDir(dir string) Option {
	return func(cfg *fetcherConfig) error {
		if dir == "" {
			return errors.New("archive: cache dir is empty")
		}
		cfg.cacheDir = dir
		return nil
	}
}

// WithRecorder reports every verified archive to r.
func WithRecorder(r Recorder) Option {
	return func(cfg *fetcherConfig) error {
		cfg.recorder = r
		return nil
	}
}

// CacheDir returns the cache root.
func (f *Fetcher) CacheDir() string { return f.cacheDir }

// CachePath returns where the archive at rawURL with the given digest is cached.
func (f *Fetcher) CachePath(rawURL, sum string) string {
	return filepath.Join(f.cacheDir, sum, baseName(rawURL))
}

// Fetch returns the verified archive for rawURL. A cached copy is re-hashed
// first; a corrupted one is removed and downloaded once more. A download whose
// digest differs from want is an integrity violation and is never cached.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, want string) (*Archive, error) {
	want, err := normalizeDigest(want)
	if err != nil {
		return nil, err
	}
	dest := f.CachePath(rawURL, want)

	sum, size, err := SHA256File(dest)
	switch {
	case err == nil && sum == want:
		f.logger.DebugContext(ctx, "archive cache hit", "path", dest)
		return f.verified(ctx, &Archive{URL: rawURL, SHA256: want, Path: dest, Size: size, Cached: true})
	case err == nil:
		f.logger.WarnContext(ctx, "cached archive corrupted, fetching again", "path", dest, "got", sum)
		if err := os.Remove(dest); err != nil {
			return nil, fmt.Errorf("remove corrupted archive: %w", err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}

	size, err = f.download(ctx, rawURL, want, dest)
	if err != nil {
		return nil, err
	}
	return f.verified(ctx, &Archive{URL: rawURL, SHA256: want, Path: dest, Size: size})
}

func (f *Fetcher) verified(ctx context.Context, a *Archive) (*Archive, error) {
	if f.recorder != nil {
		_, err := f.recorder.RecordFetch(&store.Fetch{URL: a.URL, SHA256: a.SHA256, Path: a.Path, Size: a.Size})
		if err != nil {
			return nil, fmt.Errorf("record fetch: %w", err)
		}
	}
	f.logger.InfoContext(ctx, "archive verified", "url", a.URL, "sha256", a.SHA256, "size", a.Size, "cached", a.Cached)
	return a, nil
}

// download writes rawURL to a temp file next to dest and renames it into
// place only once its digest matches.
func (f *Fetcher) download(ctx context.Context, rawURL, want, dest string) (int64, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := f.Download(ctx, rawURL, tmp); err != nil {
		_ = tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}

	got, size, err := SHA256File(tmp.Name())
	if err != nil {
		return 0, err
	}
	if got != want {
		f.logger.ErrorContext(ctx, "archive checksum mismatch", "url", rawURL, "want", want, "got", got)
		return 0, mismatch(rawURL, want, got)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, fmt.Errorf("move archive into cache: %w", err)
	}
	return size, nil
}

// Download copies the resource at rawURL to w. Supported forms are http(s)://,
// file:// and plain filesystem paths.
func (f *Fetcher) Download(ctx context.Context, rawURL string, w io.Writer) error {
	rc, err := f.open(ctx, rawURL)
	if err != nil {
		return err
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("download %s: %w", rawURL, err)
	}
	return nil
}

func (f *Fetcher) open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("archive: parse url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("archive: create request: %w", err)
		}
		f.logger.InfoContext(ctx, "downloading archive", "url", rawURL)
		resp, err := f.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("archive: GET %s: %w", rawURL, err)
		}
		f.logger.DebugContext(ctx, "archive response", "status", resp.StatusCode, "length", resp.ContentLength)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return nil, &HTTPError{StatusCode: resp.StatusCode, URL: rawURL}
		}
		return resp.Body, nil
	case "file":
		return os.Open(u.Path)
	case "":
		return os.Open(rawURL)
	default:
		return nil, fmt.Errorf("archive: unsupported url scheme %q", u.Scheme)
	}
}

// baseName is the last path element of rawURL, or "archive" when it has none.
func baseName(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Scheme != "" {
		p = u.Path
	}
	b := path.Base(filepath.ToSlash(p))
	if b == "." || b == "/" || b == "" {
		return "archive"
	}
	return b
}
