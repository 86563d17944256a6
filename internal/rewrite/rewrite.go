// Package rewrite adjusts stored content so a mirror browses offline.
package rewrite

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/waymirror/waymirror/internal/archive"
)

// attrTargets lists the attributes rewritten per tag.
var attrTargets = map[string][]string{
	"a":      {"href"},
	"img":    {"src", "data-src"},
	"script": {"src"},
	"link":   {"href"},
	"audio":  {"src"},
	"video":  {"src"},
	"source": {"src"},
}

var skippedSchemes = []string{"javascript:", "mailto:", "tel:", "data:", "#"}

var cssURLRef = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)

// Rewriter replaces in-scope references with relative local paths using
// the run's path mapper, so every component agrees on storage locations.
type Rewriter struct {
	scope  *archive.Scope
	mapper archive.PathMapper
	logger *zap.Logger
}

// New builds a Rewriter sharing the crawl scope and path mapper.
func New(scope *archive.Scope, mapper archive.PathMapper, logger *zap.Logger) *Rewriter {
	return &Rewriter{scope: scope, mapper: mapper, logger: logger}
}

// RewriteHTML returns the page with in-scope anchors and asset
// references pointed at their local paths (relative to pagePath),
// out-of-scope anchors normalized to their cleaned absolute URL, and
// archive replay chrome removed.
func (r *Rewriter) RewriteHTML(body []byte, pageURL string, pagePath string) ([]byte, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", archive.ErrMalformedContent, err)
	}

	dropArchiveChrome(doc)

	for tag, attrs := range attrTargets {
		isAnchor := tag == "a"
		doc.Find(tag).Each(func(_ int, sel *goquery.Selection) {
			for _, attr := range attrs {
				raw, ok := sel.Attr(attr)
				if !ok {
					continue
				}
				if replacement, ok := r.rewriteRef(base, pagePath, raw, isAnchor); ok {
					sel.SetAttr(attr, replacement)
				}
			}
		})
	}

	html, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return []byte(html), nil
}

// RewriteCSS points in-scope url(...) references at their local asset
// paths, relative to the stylesheet's own location. Unresolvable
// references pass through untouched.
func (r *Rewriter) RewriteCSS(body []byte, cssURL string, cssPath string) []byte {
	base, err := url.Parse(cssURL)
	if err != nil {
		return body
	}

	return cssURLRef.ReplaceAllFunc(body, func(match []byte) []byte {
		sub := cssURLRef.FindSubmatch(match)
		if sub == nil {
			return match
		}
		replacement, ok := r.rewriteRef(base, cssPath, string(sub[1]), false)
		if !ok {
			return match
		}
		return []byte(fmt.Sprintf("url(%q)", replacement))
	})
}

// rewriteRef maps one reference. For in-scope URLs it returns the
// relative path from the containing document to the target's mapped
// location; for out-of-scope anchors it returns the cleaned absolute
// URL. The second return is false when the reference must not change.
func (r *Rewriter) rewriteRef(base *url.URL, fromPath, raw string, isAnchor bool) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	for _, prefix := range skippedSchemes {
		if strings.HasPrefix(raw, prefix) {
			return "", false
		}
	}

	cleaned := archive.CleanArchiveURL(raw)
	ref, err := url.Parse(cleaned)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if recleaned := archive.CleanArchiveURL(abs.String()); recleaned != abs.String() {
		if abs, err = url.Parse(recleaned); err != nil {
			return "", false
		}
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}

	normalized, err := archive.NormalizeURL(abs.String())
	if err != nil {
		return "", false
	}

	if !r.scope.Contains(abs) {
		// Cross-domain references keep their cleaned absolute URL.
		if cleaned != raw {
			return normalized, true
		}
		return "", false
	}

	priority := archive.PriorityAsset
	if isAnchor {
		priority = archive.PriorityPage
	}
	target := r.mapper.Map(normalized, priority)
	return relativePath(fromPath, target), true
}

// relativePath computes the slash-separated path from the directory of
// from to target; both are run-root relative.
func relativePath(from, target string) string {
	fromDir := path.Dir(from)
	if fromDir == "." {
		return target
	}

	fromParts := strings.Split(fromDir, "/")
	targetParts := strings.Split(target, "/")

	common := 0
	for common < len(fromParts) && common < len(targetParts) && fromParts[common] == targetParts[common] {
		common++
	}

	var out []string
	for i := common; i < len(fromParts); i++ {
		out = append(out, "..")
	}
	out = append(out, targetParts[common:]...)
	return strings.Join(out, "/")
}

// dropArchiveChrome removes the replay toolbar and injected archive
// scripts so the mirror shows the original page only.
func dropArchiveChrome(doc *goquery.Document) {
	doc.Find("#wm-ipp-base, #wm-ipp-print, #wm-ipp").Remove()
	doc.Find(`script[src*="archive.org"], link[href*="archive.org"], iframe[src*="archive.org"]`).Remove()
	doc.Find("script, style").Each(func(_ int, sel *goquery.Selection) {
		if strings.Contains(sel.Text(), "archive.org") {
			sel.Remove()
		}
	})
}
