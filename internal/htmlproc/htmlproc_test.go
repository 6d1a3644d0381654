package htmlproc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProc() *Processor {
	return NewProcessor(0, 0)
}

func TestProcessExtractsTitleTextAndLinks(t *testing.T) {
	html := `<html><head><title>  Hello World  </title></head>
<body>
<nav>skip this navigation content entirely</nav>
<p>This is a perfectly ordinary paragraph of body text.</p>
<a href="/b">next page</a>
<a href="https://other.example/c">external page</a>
</body></html>`

	res := testProc().Process([]byte(html), "https://example.com/a")
	require.False(t, res.Failed, "expected successful parse")
	assert.Equal(t, "Hello World", res.Title)
	assert.NotContains(t, res.Text, "navigation", "expected nav subtree to be stripped")
	assert.Contains(t, res.Text, "ordinary paragraph")
	require.Len(t, res.Links, 2)
	assert.Equal(t, "https://example.com/b", res.Links[0])
}

func TestProcessStripsScriptAndStyle(t *testing.T) {
	html := `<html><head><title>T</title><style>.a{color:red}body text inside style block that is long enough</style></head>
<body><script>var xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx = 1;</script><p>Real paragraph content here for the page.</p></body></html>`

	res := testProc().Process([]byte(html), "https://example.com/")
	assert.NotContains(t, res.Text, "color:red")
	assert.NotContains(t, res.Text, "xxxxxxxx")
}

func TestProcessFiltersLinksByPolicy(t *testing.T) {
	html := `<html><body>
<a href="/report.pdf">pdf</a>
<a href="javascript:void(0)">js</a>
<a href="/download/thing">download</a>
<a href="/page">ok</a>
</body></html>`

	res := testProc().Process([]byte(html), "https://example.com/")
	require.Len(t, res.Links, 1)
	assert.Equal(t, "https://example.com/page", res.Links[0])
}

func TestProcessCapsLinksAt50(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < 100; i++ {
		sb.WriteString(`<a href="/p">x</a>`)
	}
	sb.WriteString("</body></html>")

	res := testProc().Process([]byte(sb.String()), "https://example.com/")
	assert.Len(t, res.Links, MaxLinks)
}

func TestProcessTruncatesOversizedHTML(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<html><head><title>Big</title></head><body>")
	for i := 0; i < DefaultMaxHTMLBytes; i++ {
		sb.WriteString("a")
	}
	sb.WriteString("</body></html>")

	// Should not panic and should still produce a result without retaining
	// more than DefaultMaxHTMLBytes of input.
	res := testProc().Process([]byte(sb.String()), "https://example.com/")
	_ = res
}

func TestProcessEmptyPageYieldsNoLinks(t *testing.T) {
	res := testProc().Process([]byte(`<html><head><title>Empty</title></head><body></body></html>`), "https://example.com/")
	require.False(t, res.Failed, "a page with a title should not be a parse failure")
	assert.Empty(t, res.Links)
}

func TestProcessUnparsableYieldsFailed(t *testing.T) {
	res := testProc().Process([]byte(""), "https://example.com/")
	assert.True(t, res.Failed, "expected empty document with no title/text/links to be a parse failure")
}
