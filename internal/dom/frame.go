package dom

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
)

// FrameResolver loads the document behind an <iframe src>.
type FrameResolver interface {
	Resolve(base, src *url.URL) (*html.Node, error)
}

// maxFrameBytes caps how much of a framed document is read.
const maxFrameBytes = 8 << 20

// HTTPResolver fetches same-origin frames over HTTP. Cross-origin frames and
// non-HTTP schemes are denied, mirroring what a page script may read.
type HTTPResolver struct {
	client  *http.Client
	timeout time.Duration

	mu    sync.Mutex
	cache map[string]*html.Node
}

// NewHTTPResolver returns a resolver using client (http.DefaultClient when
// nil) with a per-fetch timeout.
func NewHTTPResolver(client *http.Client, timeout time.Duration) *HTTPResolver {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPResolver{client: client, timeout: timeout, cache: make(map[string]*html.Node)}
}

// Resolve implements FrameResolver.
func (r *HTTPResolver) Resolve(base, src *url.URL) (*html.Node, error) {
	if src.Scheme != "http" && src.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", ErrBoundaryDenied, src.Scheme)
	}
	if base == nil || !sameOrigin(base, src) {
		return nil, fmt.Errorf("%w: cross-origin frame %s", ErrBoundaryDenied, src.Redacted())
	}

	key := src.String()
	r.mu.Lock()
	if n, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return n, nil
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, fmt.Errorf("build frame request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch frame: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: frame returned %s", ErrBoundaryDenied, resp.Status)
	}

	root, err := html.Parse(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}

	r.mu.Lock()
	r.cache[key] = root
	r.mu.Unlock()
	return root, nil
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}
