package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisibleText(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"collapses whitespace", `<div>  Hello
		   world  </div>`, "Hello world"},
		{"inline elements join", `<div>Hello <b>big</b> world</div>`, "Hello big world"},
		{"br breaks line", `<div>one<br>two<br><br>three</div>`, "one\ntwo\n\nthree"},
		{"blocks break lines", `<div><div>a</div><div>b</div></div>`, "a\nb"},
		{"paragraphs get blank line", `<div><p>first</p><p>second</p></div>`, "first\n\nsecond"},
		{"skips script and style", `<div>a<script>var x=1</script><style>.x{}</style>b</div>`, "ab"},
		{"skips hidden", `<div>a<span hidden>secret</span> b</div>`, "a b"},
		{"pre keeps whitespace", "<div><pre>x  =  1\n  y</pre></div>", "x  =  1\n  y"},
		{"caps blank lines", `<div>a<br><br><br><br>b</div>`, "a\n\nb"},
		{"table cells separated", `<table><tr><td>a</td><td>b</td></tr></table>`, "a b"},
		{"list items", `<ul><li>one</li><li>two</li></ul>`, "one\ntwo"},
		{"empty", `<div>   </div>`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseString("<body>" + tt.html + "</body>")
			assert.NoError(t, err)
			assert.Equal(t, tt.want, doc.Root().Text())
		})
	}
}
