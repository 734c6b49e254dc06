package dom

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string, opts ...Option) *Document {
	t.Helper()
	doc, err := ParseString(src, opts...)
	require.NoError(t, err)
	return doc
}

// find returns the first element under n matching expr, depth first,
// without crossing boundaries.
func find(n Node, expr string) Node {
	p := MustCompile(expr)
	if n.Matches(p) {
		return n
	}
	for _, c := range n.Children() {
		if f := find(c, expr); f != nil {
			return f
		}
	}
	return nil
}

func TestNode_Basics(t *testing.T) {
	doc := mustParse(t, `<html><body><div id="a" data-author="Claude" class="msg"><span>hi</span></div></body></html>`)

	root := doc.Root()
	assert.Equal(t, "#document", root.Tag())
	assert.Nil(t, root.Parent())

	div := find(root, "#a")
	require.NotNil(t, div)
	assert.Equal(t, "div", div.Tag())
	v, ok := div.Attribute("DATA-AUTHOR")
	assert.True(t, ok)
	assert.Equal(t, "Claude", v)
	_, ok = div.Attribute("missing")
	assert.False(t, ok)

	assert.True(t, div.Matches(MustCompile(".msg")))
	assert.False(t, div.Matches(MustCompile("span")))
	assert.Equal(t, "body", div.Parent().Tag())
	require.Len(t, div.Children(), 1)
	assert.Equal(t, "span", div.Children()[0].Tag())

	sh, err := div.Shadow()
	assert.NoError(t, err)
	assert.Nil(t, sh)
	emb, err := div.Embedded()
	assert.NoError(t, err)
	assert.Nil(t, emb)
}

func TestNode_ShadowRoot(t *testing.T) {
	doc := mustParse(t, `<body>
<chat-view id="open"><template shadowrootmode="open"><div class="message">inside</div></template><p>light</p></chat-view>
<chat-view id="closed"><template shadowrootmode="closed"><div class="message">secret</div></template></chat-view>
</body>`)

	open := find(doc.Root(), "#open")
	require.NotNil(t, open)

	// shadow templates are not light children
	kids := open.Children()
	require.Len(t, kids, 1)
	assert.Equal(t, "p", kids[0].Tag())

	sr, err := open.Shadow()
	require.NoError(t, err)
	require.NotNil(t, sr)
	assert.Nil(t, sr.Parent())
	assert.Equal(t, "inside", sr.Text())
	require.Len(t, sr.Children(), 1)
	assert.Equal(t, "inside", sr.Children()[0].Text())

	closed := find(doc.Root(), "#closed")
	_, err = closed.Shadow()
	assert.ErrorIs(t, err, ErrBoundaryDenied)
}

func TestNode_EmbeddedSrcdoc(t *testing.T) {
	doc := mustParse(t, `<body><iframe srcdoc="<div class='message'>framed</div>"></iframe></body>`)

	frame := find(doc.Root(), "iframe")
	require.NotNil(t, frame)

	sub, err := frame.Embedded()
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "#document", sub.Tag())
	assert.Equal(t, "framed", sub.Text())

	again, err := frame.Embedded()
	require.NoError(t, err)
	assert.Equal(t, sub.Text(), again.Text())
}

func TestNode_EmbeddedSrcDeniedWithoutResolver(t *testing.T) {
	doc := mustParse(t, `<body><iframe src="/frame"></iframe></body>`)
	_, err := find(doc.Root(), "iframe").Embedded()
	assert.ErrorIs(t, err, ErrBoundaryDenied)
}

func TestHTTPResolver(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/frame" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<div class="message">from frame</div>`))
	}))
	defer srv.Close()

	base, err := url.Parse(srv.URL + "/chat/1")
	require.NoError(t, err)
	resolver := NewHTTPResolver(srv.Client(), 0)

	t.Run("same origin fetches and caches", func(t *testing.T) {
		doc := mustParse(t, `<body><iframe src="/frame"></iframe></body>`, WithBaseURL(base), WithResolver(resolver))
		sub, err := find(doc.Root(), "iframe").Embedded()
		require.NoError(t, err)
		assert.Equal(t, "from frame", sub.Text())

		doc2 := mustParse(t, `<body><iframe src="/frame"></iframe></body>`, WithBaseURL(base), WithResolver(resolver))
		_, err = find(doc2.Root(), "iframe").Embedded()
		require.NoError(t, err)
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("cross origin denied", func(t *testing.T) {
		doc := mustParse(t, `<body><iframe src="https://ads.example.net/x"></iframe></body>`, WithBaseURL(base), WithResolver(resolver))
		_, err := find(doc.Root(), "iframe").Embedded()
		assert.True(t, errors.Is(err, ErrBoundaryDenied))
	})

	t.Run("non-200 denied", func(t *testing.T) {
		doc := mustParse(t, `<body><iframe src="/missing"></iframe></body>`, WithBaseURL(base), WithResolver(resolver))
		_, err := find(doc.Root(), "iframe").Embedded()
		assert.ErrorIs(t, err, ErrBoundaryDenied)
	})

	t.Run("javascript scheme denied", func(t *testing.T) {
		doc := mustParse(t, `<body><iframe src="javascript:void(0)"></iframe></body>`, WithBaseURL(base), WithResolver(resolver))
		_, err := find(doc.Root(), "iframe").Embedded()
		assert.ErrorIs(t, err, ErrBoundaryDenied)
	})
}

func TestCompile(t *testing.T) {
	_, err := Compile(`div[data-testid="message"]`)
	assert.NoError(t, err)

	_, err = Compile(`div[`)
	assert.Error(t, err)

	ps, err := CompileAll([]string{".a", ".b, .c"})
	require.NoError(t, err)
	assert.Len(t, ps, 2)
	assert.Equal(t, ".b, .c", ps[1].String())

	assert.Panics(t, func() { MustCompile("[[") })
}
