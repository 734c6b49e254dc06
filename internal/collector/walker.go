package collector

import (
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextkeeper/internal/dom"
	"github.com/fyrsmithlabs/contextkeeper/internal/logging"
)

// maxFrameDepth bounds nested embedded documents, so a frame that embeds its
// own page cannot loop.
const maxFrameDepth = 8

// Walker searches a tree depth first, crossing shadow and embedded
// boundaries. A boundary that fails to resolve is skipped and counted.
type Walker struct {
	logger *logging.Logger
}

// NewWalker creates a walker. A nil logger discards debug output.
func NewWalker(logger *logging.Logger) *Walker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Walker{logger: logger}
}

type walkItem struct {
	node   dom.Node
	frames int
}

// Walk visits root and every node reachable from it in pre-order until visit
// returns false. A host's shadow tree is visited before its light children.
func (w *Walker) Walk(root dom.Node, visit func(dom.Node) bool) {
	if root == nil {
		return
	}
	stack := []walkItem{{node: root}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visit(it.node) {
			return
		}
		next := w.expand(it)
		for i := len(next) - 1; i >= 0; i-- {
			stack = append(stack, next[i])
		}
	}
}

func (w *Walker) expand(it walkItem) []walkItem {
	n := it.node
	var out []walkItem

	if sr, err := n.Shadow(); err != nil {
		w.denied("shadow", n, err)
	} else if sr != nil {
		out = append(out, walkItem{node: sr, frames: it.frames})
	}

	if it.frames < maxFrameDepth {
		if sub, err := n.Embedded(); err != nil {
			w.denied("embedded", n, err)
		} else if sub != nil {
			out = append(out, walkItem{node: sub, frames: it.frames + 1})
		}
	}

	for _, c := range n.Children() {
		out = append(out, walkItem{node: c, frames: it.frames})
	}
	return out
}

func (w *Walker) denied(kind string, n dom.Node, err error) {
	BoundaryDenied.WithLabelValues(kind).Inc()
	w.logger.Underlying().Debug("boundary skipped",
		zap.String("kind", kind),
		zap.String("tag", n.Tag()),
		zap.Error(err),
	)
}

// FindAll returns every node under root, root included, that matches p.
func (w *Walker) FindAll(root dom.Node, p *dom.Pattern) []dom.Node {
	var found []dom.Node
	w.Walk(root, func(n dom.Node) bool {
		if n.Matches(p) {
			found = append(found, n)
		}
		return true
	})
	return found
}

// FindFirst returns the first node under root matching p, or nil.
func (w *Walker) FindFirst(root dom.Node, p *dom.Pattern) dom.Node {
	var found dom.Node
	w.Walk(root, func(n dom.Node) bool {
		if n.Matches(p) {
			found = n
			return false
		}
		return true
	})
	return found
}
