package dom

import (
	"hash/fnv"
	"io"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// Diff reports the elements of next that have no counterpart in prev, in
// document order and topmost first: once an element is reported its
// descendants are not.
//
// Sibling lists are aligned by content, not position. Children whose whole
// subtree is unchanged are matched first (longest common subsequence), so
// an element inserted before an existing sibling does not take over that
// sibling's identity. The remaining children between two anchors are paired
// in order by tag, id and class, and paired elements are diffed
// recursively; an element left unpaired is inserted. A paired element whose
// text changed yields nothing, so text-only edits are not reported.
// Frames are not diffed.
func Diff(prev, next *Document) []Node {
	if next == nil {
		return nil
	}
	var inserted []*html.Node
	if prev == nil {
		inserted = elementChildren(next.root)
	} else {
		d := differ{sigs: make(map[*html.Node]uint64)}
		inserted = d.align(prev.root, next.root, nil)
	}

	out := make([]Node, 0, len(inserted))
	for _, n := range inserted {
		out = append(out, next.wrap(n))
	}
	return out
}

type differ struct {
	sigs map[*html.Node]uint64
}

func (d *differ) align(a, b *html.Node, out []*html.Node) []*html.Node {
	as, bs := elementChildren(a), elementChildren(b)
	ai, bi := 0, 0
	for _, p := range d.common(as, bs) {
		out = d.gap(as[ai:p[0]], bs[bi:p[1]], out)
		ai, bi = p[0]+1, p[1]+1
	}
	return d.gap(as[ai:], bs[bi:], out)
}

// gap pairs the unanchored children between two matched siblings.
func (d *differ) gap(as, bs []*html.Node, out []*html.Node) []*html.Node {
	from := 0
	for _, b := range bs {
		key := shallowKey(b)
		match := -1
		for i := from; i < len(as); i++ {
			if shallowKey(as[i]) == key {
				match = i
				break
			}
		}
		if match < 0 {
			out = append(out, b)
			continue
		}
		from = match + 1
		out = d.align(as[match], b, out)
	}
	return out
}

// common returns index pairs of a longest common subsequence of as and bs
// under subtree equality, in increasing order.
func (d *differ) common(as, bs []*html.Node) [][2]int {
	sa := make([]uint64, len(as))
	for i, n := range as {
		sa[i] = d.signature(n)
	}
	sb := make([]uint64, len(bs))
	for i, n := range bs {
		sb[i] = d.signature(n)
	}

	// lengths[i][j] is the LCS length of sa[i:] and sb[j:].
	lengths := make([][]int, len(sa)+1)
	for i := range lengths {
		lengths[i] = make([]int, len(sb)+1)
	}
	for i := len(sa) - 1; i >= 0; i-- {
		for j := len(sb) - 1; j >= 0; j-- {
			switch {
			case sa[i] == sb[j]:
				lengths[i][j] = lengths[i+1][j+1] + 1
			case lengths[i+1][j] >= lengths[i][j+1]:
				lengths[i][j] = lengths[i+1][j]
			default:
				lengths[i][j] = lengths[i][j+1]
			}
		}
	}

	var pairs [][2]int
	for i, j := 0, 0; i < len(sa) && j < len(sb); {
		switch {
		case sa[i] == sb[j]:
			pairs = append(pairs, [2]int{i, j})
			i++
			j++
		case lengths[i+1][j] >= lengths[i][j+1]:
			i++
		default:
			j++
		}
	}
	return pairs
}

// signature hashes an element's tag, attributes, text and descendants.
func (d *differ) signature(n *html.Node) uint64 {
	if s, ok := d.sigs[n]; ok {
		return s
	}
	h := fnv.New64a()
	writeSubtree(h, n)
	s := h.Sum64()
	d.sigs[n] = s
	return s
}

func writeSubtree(w io.Writer, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		_, _ = w.Write([]byte("\x00t" + n.Data))
		return
	case html.ElementNode:
	default:
		return
	}
	_, _ = w.Write([]byte("\x00<" + strings.ToLower(n.Data)))
	attrs := make([]string, 0, len(n.Attr))
	for _, a := range n.Attr {
		attrs = append(attrs, strings.ToLower(a.Key)+"="+a.Val)
	}
	sort.Strings(attrs)
	for _, a := range attrs {
		_, _ = w.Write([]byte("\x00a" + a))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeSubtree(w, c)
	}
	_, _ = w.Write([]byte("\x00>"))
}

// shallowKey identifies an element across edits to its content.
func shallowKey(n *html.Node) string {
	id, _ := attr(n, "id")
	class, _ := attr(n, "class")
	return strings.ToLower(n.Data) + "#" + id + "." + strings.Join(strings.Fields(class), ".")
}

func elementChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}
