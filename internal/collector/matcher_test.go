package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/contextkeeper/internal/dom"
)

func candidateTexts(cs []Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Text)
	}
	return out
}

func TestMatcher_FirstPatternWins(t *testing.T) {
	doc := parse(t, `<body>
<div data-testid="message">from testid</div>
<div class="message">from class</div>
</body>`)

	got := defaultMatcher().Match(doc.Root())
	assert.Equal(t, []string{"from testid"}, candidateTexts(got))
}

func TestMatcher_EmptyMatchesFallThrough(t *testing.T) {
	doc := parse(t, `<body>
<div role="listitem">   </div>
<div class="chat-message">  real text  </div>
</body>`)

	got := defaultMatcher().Match(doc.Root())
	require.Len(t, got, 1)
	assert.Equal(t, "real text", got[0].Text)
	assert.Equal(t, "div", got[0].Node.Tag())
}

func TestMatcher_NoMatch(t *testing.T) {
	doc := parse(t, `<body><p>nothing to see</p></body>`)
	assert.Empty(t, defaultMatcher().Match(doc.Root()))
}

func TestMatcher_Discover(t *testing.T) {
	t.Run("uses patterns when they match", func(t *testing.T) {
		doc := parse(t, `<body><main><div class="message">a</div><p>b</p></main></body>`)
		assert.Equal(t, []string{"a"}, candidateTexts(defaultMatcher().Discover(doc.Root())))
	})

	t.Run("falls back to main children", func(t *testing.T) {
		doc := parse(t, `<body><nav>menu</nav><main><article>first</article><section> </section><article>second</article></main></body>`)
		assert.Equal(t, []string{"first", "second"}, candidateTexts(defaultMatcher().Discover(doc.Root())))
	})

	t.Run("finds main inside shadow root", func(t *testing.T) {
		doc := parse(t, `<body><app-root><template shadowrootmode="open"><main><p>one</p><p>two</p></main></template></app-root></body>`)
		assert.Equal(t, []string{"one", "two"}, candidateTexts(defaultMatcher().Discover(doc.Root())))
	})

	t.Run("falls back to body children", func(t *testing.T) {
		doc := parse(t, `<body><header>title</header><div>content</div></body>`)
		assert.Equal(t, []string{"title", "content"}, candidateTexts(defaultMatcher().Discover(doc.Root())))
	})

	t.Run("subtree root without body", func(t *testing.T) {
		doc := parse(t, `<body><section id="s"><p>x</p><p>y</p></section></body>`)
		root := find(t, doc.Root(), "#s")
		assert.Equal(t, []string{"x", "y"}, candidateTexts(defaultMatcher().Discover(root)))
	})
}

func TestMatcher_Patterns(t *testing.T) {
	ps := []*dom.Pattern{dom.MustCompile(".a"), dom.MustCompile(".b")}
	m := NewMatcher(ps, nil)
	assert.Equal(t, ps, m.Patterns())
}
