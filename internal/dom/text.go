package dom

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	skipText = map[atom.Atom]bool{
		atom.Script: true, atom.Style: true, atom.Noscript: true,
		atom.Template: true, atom.Head: true, atom.Iframe: true,
		atom.Frame: true, atom.Object: true, atom.Svg: true,
	}

	blockText = map[atom.Atom]bool{
		atom.Address: true, atom.Article: true, atom.Aside: true,
		atom.Blockquote: true, atom.Body: true, atom.Dd: true,
		atom.Details: true, atom.Dialog: true, atom.Div: true,
		atom.Dl: true, atom.Dt: true, atom.Fieldset: true,
		atom.Figcaption: true, atom.Figure: true, atom.Footer: true,
		atom.Form: true, atom.H1: true, atom.H2: true, atom.H3: true,
		atom.H4: true, atom.H5: true, atom.H6: true, atom.Header: true,
		atom.Hr: true, atom.Html: true, atom.Li: true, atom.Main: true,
		atom.Nav: true, atom.Ol: true, atom.Pre: true, atom.Section: true,
		atom.Summary: true, atom.Table: true, atom.Tr: true, atom.Ul: true,
	}

	extraBlankLines = regexp.MustCompile(`\n{3,}`)
)

// visibleText approximates innerText: hidden and non-rendered subtrees are
// skipped, whitespace collapses outside <pre>, block elements start new
// lines and paragraphs are separated by a blank line.
func visibleText(n *html.Node) string {
	var b textBuilder
	if isShadowRoot(n) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			b.walk(c, false)
		}
	} else {
		b.walk(n, false)
	}
	return strings.TrimSpace(extraBlankLines.ReplaceAllString(b.sb.String(), "\n\n"))
}

type textBuilder struct {
	sb        strings.Builder
	breaks    int
	space     bool
	lineStart bool
	started   bool
}

func (b *textBuilder) walk(n *html.Node, pre bool) {
	switch n.Type {
	case html.TextNode:
		if pre {
			b.raw(n.Data)
		} else {
			b.collapse(n.Data)
		}
		return
	case html.ElementNode:
		if skipText[n.DataAtom] {
			return
		}
		if _, hidden := attr(n, "hidden"); hidden {
			return
		}
	case html.DocumentNode:
	default:
		return
	}

	switch n.DataAtom {
	case atom.Br:
		b.breaks++
		return
	case atom.P:
		b.lineBreak(2)
	case atom.Td, atom.Th:
		b.space = true
	default:
		if blockText[n.DataAtom] {
			b.lineBreak(1)
		}
	}

	inPre := pre || n.DataAtom == atom.Pre
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.walk(c, inPre)
	}

	if n.DataAtom == atom.P {
		b.lineBreak(2)
	} else if blockText[n.DataAtom] {
		b.lineBreak(1)
	}
}

func (b *textBuilder) lineBreak(n int) {
	if n > b.breaks {
		b.breaks = n
	}
}

// flush emits pending line breaks or a pending space before content.
func (b *textBuilder) flush() {
	if b.started && b.breaks > 0 {
		b.sb.WriteString(strings.Repeat("\n", b.breaks))
		b.lineStart = true
		b.space = false
	} else if b.space && b.started && !b.lineStart {
		b.sb.WriteByte(' ')
	}
	b.breaks = 0
	b.space = false
	b.started = true
}

func (b *textBuilder) collapse(s string) {
	for _, r := range s {
		if unicode.IsSpace(r) {
			b.space = true
			continue
		}
		b.flush()
		b.sb.WriteRune(r)
		b.lineStart = false
	}
}

func (b *textBuilder) raw(s string) {
	if s == "" {
		return
	}
	b.flush()
	b.sb.WriteString(s)
	b.lineStart = strings.HasSuffix(s, "\n")
}
