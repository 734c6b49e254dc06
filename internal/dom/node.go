// Package dom exposes parsed HTML pages as a tree of Nodes that can be
// walked across shadow roots and embedded frames.
//
// Shadow roots are read from declarative shadow DOM
// (<template shadowrootmode="open">). Embedded frames are <iframe> and
// <frame> elements; srcdoc content is parsed in place and src content is
// loaded through a FrameResolver. Crossing either boundary may fail with
// ErrBoundaryDenied, which callers are expected to skip over.
package dom

import (
	"errors"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrBoundaryDenied is returned when a shadow root is closed or an embedded
// frame cannot be read.
var ErrBoundaryDenied = errors.New("boundary crossing denied")

// Node is a handle into a hierarchical document.
type Node interface {
	// Tag is the lowercase element name, or "#document".
	Tag() string
	// Text is the rendered text of the subtree.
	Text() string
	Attribute(name string) (string, bool)
	Matches(p *Pattern) bool
	// Children returns element children, excluding shadow root templates.
	Children() []Node
	// Parent returns nil at the root of a document or shadow tree.
	Parent() Node
	// Shadow returns the attached shadow root, or nil when there is none.
	Shadow() (Node, error)
	// Embedded returns the root of a framed document, or nil when the node
	// does not embed one.
	Embedded() (Node, error)
}

type node struct {
	n   *html.Node
	doc *Document
}

func (d *Document) wrap(n *html.Node) Node {
	if n == nil {
		return nil
	}
	return &node{n: n, doc: d}
}

func (e *node) Tag() string {
	switch e.n.Type {
	case html.DocumentNode:
		return "#document"
	case html.ElementNode:
		return strings.ToLower(e.n.Data)
	default:
		return ""
	}
}

func (e *node) Text() string {
	return visibleText(e.n)
}

func (e *node) Attribute(name string) (string, bool) {
	return attr(e.n, name)
}

func (e *node) Matches(p *Pattern) bool {
	return p != nil && e.n.Type == html.ElementNode && p.sel.Match(e.n)
}

func (e *node) Children() []Node {
	var out []Node
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || isShadowRoot(c) {
			continue
		}
		out = append(out, e.doc.wrap(c))
	}
	return out
}

func (e *node) Parent() Node {
	if isShadowRoot(e.n) || e.n.Parent == nil {
		return nil
	}
	return e.doc.wrap(e.n.Parent)
}

func (e *node) Shadow() (Node, error) {
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		if !isShadowRoot(c) {
			continue
		}
		if mode, _ := shadowMode(c); mode == "closed" {
			return nil, ErrBoundaryDenied
		}
		return e.doc.wrap(c), nil
	}
	return nil, nil
}

func (e *node) Embedded() (Node, error) {
	if e.n.Type != html.ElementNode || (e.n.DataAtom != atom.Iframe && e.n.DataAtom != atom.Frame) {
		return nil, nil
	}
	sub, err := e.doc.frame(e.n)
	if err != nil || sub == nil {
		return nil, err
	}
	return sub.Root(), nil
}

// HTML returns the underlying html.Node of a Node created by this package.
func HTML(n Node) (*html.Node, bool) {
	e, ok := n.(*node)
	if !ok {
		return nil, false
	}
	return e.n, true
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

func shadowMode(n *html.Node) (string, bool) {
	if v, ok := attr(n, "shadowrootmode"); ok {
		return strings.ToLower(v), true
	}
	if v, ok := attr(n, "shadowroot"); ok {
		return strings.ToLower(v), true
	}
	return "", false
}

func isShadowRoot(n *html.Node) bool {
	if n.Type != html.ElementNode || n.DataAtom != atom.Template {
		return false
	}
	_, ok := shadowMode(n)
	return ok
}
