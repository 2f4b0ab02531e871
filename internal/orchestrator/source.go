package orchestrator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfvalidator/internal/verdict"
)

// ObjectFetcher downloads s3:// references.
type ObjectFetcher interface {
	Download(ctx context.Context, ref string) ([]byte, error)
}

var (
	// ErrTooLarge is returned when a source exceeds the loader's byte limit.
	ErrTooLarge = verdict.ErrTooLarge
	// ErrSourceNotAllowed covers disabled source kinds, paths outside
	// LocalRoot and hosts missing from HTTPHosts.
	ErrSourceNotAllowed = errors.New("document source not allowed")
	// ErrSourceNotFound hides the underlying filesystem error from clients.
	ErrSourceNotFound = errors.New("document not found")
)

// Loader resolves document references into bytes. Supported forms:
// - file://path or absolute/relative filesystem paths (only under LocalRoot)
// - http(s):// URLs (only for hosts in HTTPHosts)
// - s3://bucket/key (when an ObjectFetcher is configured)
// - data:application/pdf;base64,... URLs
type Loader struct {
	S3       ObjectFetcher
	HTTP     *http.Client
	MaxBytes int64
	// LocalRoot is the directory local references must resolve into.
	// Empty disables local references.
	LocalRoot string
	// HTTPHosts lists hostnames remote references may point at. "*" allows
	// any host; empty disables remote references.
	HTTPHosts []string
}

// LoadDocument resolves ref into a Document named after its last path element.
func (l *Loader) LoadDocument(ctx context.Context, ref string) (verdict.Document, error) {
	// Strip optional #page fragment if present
	if i := strings.Index(ref, "#"); i >= 0 && !strings.HasPrefix(ref, "data:") {
		ref = ref[:i]
	}
	var (
		data []byte
		err  error
		name = filepath.Base(ref)
	)
	switch {
	case strings.HasPrefix(ref, "data:"):
		name = "inline.pdf"
		data, err = l.decodeDataURL(ref)
	case strings.HasPrefix(ref, "s3://"):
		if l.S3 == nil {
			return verdict.Document{}, fmt.Errorf("s3 source not configured: %s", ref)
		}
		data, err = l.S3.Download(ctx, ref)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		data, err = l.fetchHTTP(ctx, ref)
	default:
		var path string
		if path, err = l.localPath(strings.TrimPrefix(ref, "file://")); err == nil {
			data, err = l.readFile(path)
		}
	}
	if err != nil {
		return verdict.Document{}, err
	}
	log.Debug().Str("ref", redactRef(ref)).Int("bytes", len(data)).Msg("loaded document")
	return verdict.Document{Name: name, Data: data}, nil
}

// ReadDocument drains r into a Document, enforcing the size limit.
func (l *Loader) ReadDocument(name string, r io.Reader) (verdict.Document, error) {
	data, err := l.readAll(r)
	if err != nil {
		return verdict.Document{}, err
	}
	return verdict.Document{Name: name, Data: data}, nil
}

func (l *Loader) readAll(r io.Reader) ([]byte, error) {
	if l.MaxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, l.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.MaxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// localPath maps ref into LocalRoot. Relative refs are joined to the root;
// absolute refs and symlink targets must stay inside it.
func (l *Loader) localPath(ref string) (string, error) {
	if l.LocalRoot == "" {
		return "", fmt.Errorf("%w: local paths disabled", ErrSourceNotAllowed)
	}
	base, err := filepath.Abs(l.LocalRoot)
	if err != nil {
		return "", err
	}
	root, err := filepath.EvalSymlinks(base)
	if err != nil {
		return "", fmt.Errorf("local root: %w", err)
	}
	path := filepath.Clean(ref)
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	if !within(base, path) && !within(root, path) {
		return "", fmt.Errorf("%w: %s is outside the local root", ErrSourceNotAllowed, path)
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceNotFound, err)
	}
	if !within(root, resolved) {
		return "", fmt.Errorf("%w: %s resolves outside the local root", ErrSourceNotAllowed, path)
	}
	return resolved, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (l *Loader) hostAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, h := range l.HTTPHosts {
		if h == "*" || h == host {
			return true
		}
	}
	return false
}

func (l *Loader) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceNotFound, err)
	}
	defer f.Close()
	return l.readAll(f)
}

func (l *Loader) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if !l.hostAllowed(req.URL.Hostname()) {
		return nil, fmt.Errorf("%w: host %q", ErrSourceNotAllowed, req.URL.Hostname())
	}
	client := http.Client{}
	if l.HTTP != nil {
		client = *l.HTTP
	}
	// redirects are held to the same allow-list
	client.CheckRedirect = func(next *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		if !l.hostAllowed(next.URL.Hostname()) {
			return fmt.Errorf("%w: redirect to host %q", ErrSourceNotAllowed, next.URL.Hostname())
		}
		return nil
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: http %d", ErrSourceNotFound, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return l.readAll(resp.Body)
}

func (l *Loader) decodeDataURL(ref string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, errors.New("data url must be base64 encoded")
	}
	if l.MaxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(payload))) > l.MaxBytes+2 {
		return nil, ErrTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid data url: %w", err)
	}
	if l.MaxBytes > 0 && int64(len(data)) > l.MaxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// redactRef keeps data URLs and query strings out of the logs.
func redactRef(ref string) string {
	if strings.HasPrefix(ref, "data:") {
		return "data:..."
	}
	if i := strings.Index(ref, "?"); i >= 0 {
		return ref[:i]
	}
	return ref
}
