package dom

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a parsed page plus the context needed to cross into its
// embedded frames.
type Document struct {
	root     *html.Node
	base     *url.URL
	resolver FrameResolver

	mu     sync.Mutex
	frames map[*html.Node]*Document
}

// Option configures a Document.
type Option func(*Document)

// WithBaseURL sets the URL the page was loaded from. Relative frame sources
// resolve against it and same-origin checks compare to it.
func WithBaseURL(u *url.URL) Option {
	return func(d *Document) { d.base = u }
}

// WithResolver sets how frames referenced by src are loaded. Without one,
// every src frame is denied.
func WithResolver(r FrameResolver) Option {
	return func(d *Document) { d.resolver = r }
}

// Parse reads an HTML document.
func Parse(r io.Reader, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return newDocument(root, opts...), nil
}

// ParseString reads an HTML document from s.
func ParseString(s string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(s), opts...)
}

func newDocument(root *html.Node, opts ...Option) *Document {
	d := &Document{root: root, frames: make(map[*html.Node]*Document)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Root returns the document node.
func (d *Document) Root() Node {
	return d.wrap(d.root)
}

// URL returns the base URL, or nil.
func (d *Document) URL() *url.URL {
	return d.base
}

// frame returns the document embedded by the iframe el, loading and caching
// it on first use.
func (d *Document) frame(el *html.Node) (*Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if sub, ok := d.frames[el]; ok {
		return sub, nil
	}

	sub, err := d.loadFrame(el)
	if err != nil {
		return nil, err
	}
	d.frames[el] = sub
	return sub, nil
}

func (d *Document) loadFrame(el *html.Node) (*Document, error) {
	if srcdoc, ok := attr(el, "srcdoc"); ok {
		root, err := html.Parse(strings.NewReader(srcdoc))
		if err != nil {
			root = textDocument(srcdoc)
		}
		return newDocument(root, WithBaseURL(d.base), WithResolver(d.resolver)), nil
	}

	src, ok := attr(el, "src")
	if !ok || strings.TrimSpace(src) == "" {
		return nil, nil
	}
	if d.resolver == nil {
		return nil, ErrBoundaryDenied
	}

	ref, err := url.Parse(strings.TrimSpace(src))
	if err != nil {
		return nil, fmt.Errorf("%w: bad frame src %q", ErrBoundaryDenied, src)
	}
	target := ref
	if d.base != nil {
		target = d.base.ResolveReference(ref)
	}

	root, err := d.resolver.Resolve(d.base, target)
	if err != nil {
		return nil, err
	}
	return newDocument(root, WithBaseURL(target), WithResolver(d.resolver)), nil
}

// textDocument wraps raw text in a minimal document so unparseable frame
// content still yields its text.
func textDocument(text string) *html.Node {
	doc := &html.Node{Type: html.DocumentNode}
	htmlEl := &html.Node{Type: html.ElementNode, Data: "html", DataAtom: atom.Html}
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	body.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	htmlEl.AppendChild(body)
	doc.AppendChild(htmlEl)
	return doc
}
