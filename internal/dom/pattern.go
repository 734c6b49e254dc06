package dom

import (
	"fmt"

	"github.com/andybalholm/cascadia"
)

// Pattern is a compiled CSS selector group.
type Pattern struct {
	expr string
	sel  cascadia.SelectorGroup
}

// Compile parses a CSS selector such as `div[data-testid="message"]`.
func Compile(expr string) (*Pattern, error) {
	sel, err := cascadia.ParseGroup(expr)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", expr, err)
	}
	return &Pattern{expr: expr, sel: sel}, nil
}

// MustCompile is Compile for static patterns; it panics on error.
func MustCompile(expr string) *Pattern {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// CompileAll compiles patterns in order.
func CompileAll(exprs []string) ([]*Pattern, error) {
	out := make([]*Pattern, 0, len(exprs))
	for _, e := range exprs {
		p, err := Compile(e)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (p *Pattern) String() string {
	return p.expr
}
