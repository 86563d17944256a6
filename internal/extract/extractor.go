// Package extract discovers links and asset references in fetched content.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/waymirror/waymirror/internal/archive"
)

// navSelectors match the containers a site typically uses for its menu.
// Anchors inside any of them are crawled first.
var navSelectors = []string{
	"nav",
	"header",
	".menu",
	".navigation",
	"#menu",
	"#nav",
	".navbar",
	`[role="navigation"]`,
	".main-menu",
	".primary-menu",
	".top-menu",
	"#primary-menu",
	".header-menu",
}

// assetAttrs lists the tag/attribute pairs that reference page assets.
var assetAttrs = map[string][]string{
	"img":    {"src", "data-src"},
	"script": {"src"},
	"link":   {"href"},
	"audio":  {"src"},
	"video":  {"src"},
	"source": {"src"},
}

var cssURLRef = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)

var skippedSchemes = []string{"javascript:", "mailto:", "tel:", "data:", "#"}

// Extractor parses HTML and CSS bodies into prioritized link sets.
// Stateless apart from the crawl scope; safe for concurrent use.
type Extractor struct {
	scope  *archive.Scope
	logger *zap.Logger
}

// New builds an Extractor scoped to the crawl's root domain.
func New(scope *archive.Scope, logger *zap.Logger) *Extractor {
	return &Extractor{scope: scope, logger: logger}
}

// ExtractHTML parses an HTML document and returns its in-scope links
// (navigation links first, then body links, document order within each
// class), its asset references, and the out-of-scope URLs it mentions.
// A body that cannot be decoded or parsed yields ErrMalformedContent.
func (e *Extractor) ExtractHTML(body []byte, contentType string, baseURL string) (archive.PageRefs, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return archive.PageRefs{}, fmt.Errorf("parse base url: %w", err)
	}

	doc, err := parseDocument(body, contentType)
	if err != nil {
		return archive.PageRefs{}, err
	}

	var refs archive.PageRefs
	seen := make(map[string]struct{})

	addLink := func(raw string, priority archive.Priority) {
		target, ok := e.resolve(base, raw)
		if !ok {
			return
		}
		if _, dup := seen[target.normalized]; dup {
			return
		}
		seen[target.normalized] = struct{}{}
		if !target.inScope {
			refs.External = append(refs.External, target.normalized)
			return
		}
		refs.Links = append(refs.Links, archive.Link{URL: target.normalized, Priority: priority})
	}

	// Navigation anchors first so they land ahead of body links.
	doc.Find(strings.Join(navSelectors, ", ")).Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		addLink(sel.AttrOr("href", ""), archive.PriorityNav)
	})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		addLink(sel.AttrOr("href", ""), archive.PriorityPage)
	})

	// One pass in document order keeps asset ordering stable.
	doc.Find("img, script, link, audio, video, source").Each(func(_ int, sel *goquery.Selection) {
		attrs, ok := assetAttrs[goquery.NodeName(sel)]
		if !ok {
			return
		}
		for _, attr := range attrs {
			raw, present := sel.Attr(attr)
			if !present {
				continue
			}
			target, resolved := e.resolve(base, raw)
			if !resolved || !target.inScope {
				continue
			}
			if _, dup := seen[target.normalized]; dup {
				continue
			}
			seen[target.normalized] = struct{}{}
			refs.Assets = append(refs.Assets, target.normalized)
		}
	})

	return refs, nil
}

// ExtractCSS returns the in-scope url(...) references of a stylesheet,
// resolved against its own URL. CSS never yields page links.
func (e *Extractor) ExtractCSS(body []byte, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var assets []string
	seen := make(map[string]struct{})
	for _, m := range cssURLRef.FindAllSubmatch(body, -1) {
		target, ok := e.resolve(base, string(m[1]))
		if !ok || !target.inScope {
			continue
		}
		if _, dup := seen[target.normalized]; dup {
			continue
		}
		seen[target.normalized] = struct{}{}
		assets = append(assets, target.normalized)
	}
	return assets
}

type resolvedLink struct {
	normalized string
	inScope    bool
}

// resolve cleans an in-document reference, joins it with the base URL,
// and normalizes it. The second return is false for references that are
// not crawlable at all (empty, fragments, javascript:, data:, ...).
func (e *Extractor) resolve(base *url.URL, raw string) (resolvedLink, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return resolvedLink{}, false
	}
	for _, prefix := range skippedSchemes {
		if strings.HasPrefix(raw, prefix) {
			return resolvedLink{}, false
		}
	}

	cleaned := archive.CleanArchiveURL(raw)
	ref, err := url.Parse(cleaned)
	if err != nil {
		return resolvedLink{}, false
	}
	abs := base.ResolveReference(ref)

	// A relative "/web/<timestamp>/..." reference resolves back onto the
	// archive host; strip the wrapper once more after resolution.
	if recleaned := archive.CleanArchiveURL(abs.String()); recleaned != abs.String() {
		abs, err = url.Parse(recleaned)
		if err != nil {
			return resolvedLink{}, false
		}
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return resolvedLink{}, false
	}

	normalized, err := archive.NormalizeURL(abs.String())
	if err != nil {
		return resolvedLink{}, false
	}
	return resolvedLink{
		normalized: normalized,
		inScope:    e.scope.Contains(abs),
	}, true
}

// parseDocument charset-decodes the body to UTF-8 and parses it.
func parseDocument(body []byte, contentType string) (*goquery.Document, error) {
	enc, _, _ := charset.DetermineEncoding(body, contentType)
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		if !utf8.Valid(body) {
			return nil, fmt.Errorf("%w: decode to utf-8: %v", archive.ErrMalformedContent, err)
		}
		decoded = body
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(decoded))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", archive.ErrMalformedContent, err)
	}
	return doc, nil
}
