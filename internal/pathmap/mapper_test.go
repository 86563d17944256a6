package pathmap

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/waymirror/waymirror/internal/archive"
)

func TestMapIsDeterministic(t *testing.T) {
	t.Parallel()

	m := New()
	first := m.Map("http://example.com/about", archive.PriorityPage)
	second := m.Map("http://example.com/about", archive.PriorityPage)
	require.Equal(t, first, second)
	require.Equal(t, "example.com/about.html", first)
}

func TestMapPageLayout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want string
	}{
		{"root becomes index", "http://example.com/", "example.com/index.html"},
		{"trailing slash becomes index", "http://example.com/blog/", "example.com/blog/index.html"},
		{"extensionless gets html", "http://example.com/contact", "example.com/contact.html"},
		{"existing extension kept", "http://example.com/page.php", "example.com/page.php"},
		{"query folded into filename", "http://example.com/p.html?id=2", "example.com/p_id_2.html"},
		{"unsafe chars escaped", "http://example.com/a b/c|d", "example.com/a_b/c_d.html"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, New().Map(tc.url, archive.PriorityPage))
		})
	}
}

func TestMapAssetPartitions(t *testing.T) {
	t.Parallel()

	m := New()
	require.Equal(t,
		"assets/css/example.com/styles/site.css",
		m.Map("http://example.com/styles/site.css", archive.PriorityAsset))
	require.Equal(t,
		"assets/js/example.com/js/app.js",
		m.Map("http://example.com/js/app.js", archive.PriorityAsset))
	require.Equal(t,
		"assets/images/example.com/img/logo.png",
		m.Map("http://example.com/img/logo.png", archive.PriorityAsset))
	require.Equal(t,
		"assets/files/example.com/docs/report.pdf",
		m.Map("http://example.com/docs/report.pdf", archive.PriorityAsset))
}

func TestMapDistinctURLsNeverCollide(t *testing.T) {
	t.Parallel()

	m := New()
	// Both URLs sanitize to the same candidate path.
	a := m.Map("http://example.com/a|b", archive.PriorityPage)
	b := m.Map("http://example.com/a_b", archive.PriorityPage)
	require.NotEqual(t, a, b)

	// The losing URL keeps its disambiguated path on re-mapping.
	require.Equal(t, b, m.Map("http://example.com/a_b", archive.PriorityPage))
}

func TestMapQueryDistinguishesResources(t *testing.T) {
	t.Parallel()

	m := New()
	plain := m.Map("http://example.com/list", archive.PriorityPage)
	paged := m.Map("http://example.com/list?page=2", archive.PriorityPage)
	require.NotEqual(t, plain, paged)
}

func TestMapConcurrentAgreement(t *testing.T) {
	t.Parallel()

	m := New()
	urls := make([]string, 50)
	for i := range urls {
		urls[i] = fmt.Sprintf("http://example.com/page-%d", i)
	}

	results := make([][]string, 4)
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			out := make([]string, len(urls))
			for i, u := range urls {
				out[i] = m.Map(u, archive.PriorityPage)
			}
			results[g] = out
		}(g)
	}
	wg.Wait()

	for g := 1; g < 4; g++ {
		require.Equal(t, results[0], results[g])
	}

	seen := make(map[string]struct{})
	for _, p := range results[0] {
		_, dup := seen[p]
		require.False(t, dup, "path %s assigned twice", p)
		seen[p] = struct{}{}
	}
}
