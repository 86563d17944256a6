package rewrite

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/waymirror/waymirror/internal/archive"
	"github.com/waymirror/waymirror/internal/pathmap"
)

func newTestRewriter(t *testing.T) (*Rewriter, *pathmap.Mapper) {
	t.Helper()
	scope, err := archive.NewScope("http://example.com/", nil)
	require.NoError(t, err)
	mapper := pathmap.New()
	return New(scope, mapper, zap.NewNop()), mapper
}

func TestRewriteHTMLAssetAndAnchorPaths(t *testing.T) {
	t.Parallel()

	r, mapper := newTestRewriter(t)
	pagePath := mapper.Map("http://example.com/blog/post", archive.PriorityPage)
	require.Equal(t, "example.com/blog/post.html", pagePath)

	page := `<html><body>
	  <a href="/about">About</a>
	  <img src="/img/logo.png">
	  <a href="https://other.org/x">External</a>
	  <a href="mailto:hi@example.com">Mail</a>
	</body></html>`

	out, err := r.RewriteHTML([]byte(page), "http://example.com/blog/post", pagePath)
	require.NoError(t, err)
	html := string(out)

	require.Contains(t, html, `href="../about.html"`)
	require.Contains(t, html, `src="../../assets/images/example.com/img/logo.png"`)
	require.Contains(t, html, `href="https://other.org/x"`)
	require.Contains(t, html, `href="mailto:hi@example.com"`)
}

func TestRewriteHTMLAgreesWithMapper(t *testing.T) {
	t.Parallel()

	r, mapper := newTestRewriter(t)
	pagePath := mapper.Map("http://example.com/", archive.PriorityPage)

	page := `<html><body><img src="/img/logo.png"></body></html>`
	out, err := r.RewriteHTML([]byte(page), "http://example.com/", pagePath)
	require.NoError(t, err)

	// The asset's mapped path must match what the scheduler will store.
	assetPath := mapper.Map("http://example.com/img/logo.png", archive.PriorityAsset)
	require.Equal(t, "assets/images/example.com/img/logo.png", assetPath)
	require.Contains(t, string(out), `src="assets/images/example.com/img/logo.png"`)
}

func TestRewriteHTMLUnwrapsArchiveURLs(t *testing.T) {
	t.Parallel()

	r, mapper := newTestRewriter(t)
	pagePath := mapper.Map("http://example.com/", archive.PriorityPage)

	page := `<html><body>
	  <a href="https://web.archive.org/web/20200101000000/http://example.com/about">About</a>
	</body></html>`

	out, err := r.RewriteHTML([]byte(page), "http://example.com/", pagePath)
	require.NoError(t, err)
	require.Contains(t, string(out), `href="about.html"`)
}

func TestRewriteHTMLDropsArchiveChrome(t *testing.T) {
	t.Parallel()

	r, mapper := newTestRewriter(t)
	pagePath := mapper.Map("http://example.com/", archive.PriorityPage)

	page := `<html><head>
	  <script src="https://web.archive.org/_static/js/wombat.js"></script>
	  <script>var wb = "archive.org playback";</script>
	</head><body>
	  <div id="wm-ipp-base">toolbar</div>
	  <p>content</p>
	</body></html>`

	out, err := r.RewriteHTML([]byte(page), "http://example.com/", pagePath)
	require.NoError(t, err)
	html := string(out)

	require.NotContains(t, html, "wm-ipp-base")
	require.NotContains(t, html, "wombat")
	require.NotContains(t, html, "playback")
	require.Contains(t, html, "<p>content</p>")
}

func TestRewriteCSS(t *testing.T) {
	t.Parallel()

	r, mapper := newTestRewriter(t)
	cssPath := mapper.Map("http://example.com/styles/site.css", archive.PriorityAsset)
	require.Equal(t, "assets/css/example.com/styles/site.css", cssPath)

	css := []byte(`body { background: url("/img/bg.png"); } .x { color: red; }`)
	out := r.RewriteCSS(css, "http://example.com/styles/site.css", cssPath)

	require.Contains(t, string(out), `url("../../../images/example.com/img/bg.png")`)
	require.Contains(t, string(out), ".x { color: red; }")
}

func TestRewriteCSSLeavesExternalRefs(t *testing.T) {
	t.Parallel()

	r, mapper := newTestRewriter(t)
	cssPath := mapper.Map("http://example.com/styles/site.css", archive.PriorityAsset)

	css := []byte(`.a { background: url(https://cdn.other.org/x.png); }`)
	out := r.RewriteCSS(css, "http://example.com/styles/site.css", cssPath)
	require.Equal(t, css, out)
}

func TestRelativePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, target, want string
	}{
		{"example.com/index.html", "example.com/about.html", "about.html"},
		{"example.com/blog/post.html", "example.com/about.html", "../about.html"},
		{"example.com/index.html", "assets/css/example.com/site.css", "../assets/css/example.com/site.css"},
		{"index.html", "assets/app.js", "assets/app.js"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, relativePath(tc.from, tc.target), "%s -> %s", tc.from, tc.target)
	}
}

func TestRewriteHTMLMalformedDoesNotPanic(t *testing.T) {
	t.Parallel()

	r, mapper := newTestRewriter(t)
	pagePath := mapper.Map("http://example.com/", archive.PriorityPage)

	// html.Parse is lenient; truncated markup still renders something.
	out, err := r.RewriteHTML([]byte("<html><body><a href='/x'>unterminated"), "http://example.com/", pagePath)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(out), "unterminated"))
}
