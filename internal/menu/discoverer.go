package menu

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/menulytics/sitefinder/internal/fetch"
	"github.com/menulytics/sitefinder/internal/hostlimit"
	"github.com/menulytics/sitefinder/internal/model"
)

// domScope pairs an anchor scope selector with its discovery method tag.
// Order is priority order: a header hit beats a nav hit beats a footer hit.
type domScope struct {
	selector string
	method   string
}

var domScopes = []domScope{
	{"header a", model.MethodHeader},
	{"nav a", model.MethodNav},
	{"footer a", model.MethodFooter},
	{"body a", model.MethodLinkText},
}

// Discoverer runs the menu discovery cascade against a validated homepage.
type Discoverer struct {
	fetcher *fetch.Fetcher
	prober  *prober
	logger  *zap.Logger
}

// New constructs a Discoverer. limiter may be nil.
func New(fetcher *fetch.Fetcher, timeout time.Duration, limiter *hostlimit.Limiter, userAgent string, logger *zap.Logger) *Discoverer {
	return &Discoverer{
		fetcher: fetcher,
		prober:  newProber(timeout, limiter, userAgent),
		logger:  logger,
	}
}

// Discover finds a menu page or file on homepageURL. The cascade stops at
// the first success: DOM scopes in priority order, then sitemaps, then
// common slugs. A miss everywhere returns an invalid result, not an error.
func (d *Discoverer) Discover(ctx context.Context, homepageURL string) model.MenuResult {
	if res, ok := d.scanDOM(ctx, homepageURL); ok {
		return res
	}
	if res, ok := d.scanSitemaps(ctx, homepageURL); ok {
		return res
	}
	if res, ok := d.probeSlugs(ctx, homepageURL); ok {
		return res
	}
	return model.MenuResult{}
}

// scanDOM fetches the homepage and walks anchors scope by scope. Within a
// scope candidates validate in document order; the first HTML hit wins
// immediately, while a PDF hit is held so a later HTML link can still beat
// it. Only when a scope ends with a lone PDF does the PDF win.
func (d *Discoverer) scanDOM(ctx context.Context, homepageURL string) (model.MenuResult, bool) {
	page, err := d.fetcher.Fetch(ctx, homepageURL)
	if err != nil || page.StatusCode < 200 || page.StatusCode >= 300 {
		d.logger.Debug("homepage fetch failed for menu scan",
			zap.String("url", homepageURL), zap.Error(err))
		return model.MenuResult{}, false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(page.Body)))
	if err != nil {
		return model.MenuResult{}, false
	}

	pageURL := page.FinalURL
	if pageURL == "" {
		pageURL = homepageURL
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return model.MenuResult{}, false
	}

	probed := make(map[string]probeResult)
	for _, scope := range domScopes {
		sel := doc.Find(scope.selector)
		if scope.method == model.MethodLinkText {
			// The catch-all body scope skips anchors already owned by a
			// prioritized scope.
			sel = sel.Not("header a, nav a, footer a")
		}

		candidates := d.collectAnchors(sel, base)
		var pdfHit *model.MenuResult
		for _, cand := range candidates {
			key := hostPath(cand)
			res, done := probed[key]
			if !done {
				res = d.prober.probe(ctx, cand)
				probed[key] = res
			}
			if !res.valid {
				continue
			}
			hit := menuResultFrom(cand, scope.method, res)
			if !res.isPDF {
				return hit, true
			}
			if pdfHit == nil {
				pdfHit = &hit
			}
		}
		if pdfHit != nil {
			return *pdfHit, true
		}
	}
	return model.MenuResult{}, false
}

// collectAnchors extracts keyword-matching candidate URLs from sel in
// document order, deduplicated by host+path.
func (d *Discoverer) collectAnchors(sel *goquery.Selection, base *url.URL) []string {
	seen := make(map[string]struct{})
	var out []string
	sel.Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") ||
			strings.HasPrefix(href, "javascript:") {
			return
		}
		if !matchesKeyword(anchorText(a)) {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		resolved.Fragment = ""
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		// A link back to the homepage itself is navigation, not a menu.
		if resolved.Hostname() == base.Hostname() && strings.TrimSuffix(resolved.Path, "/") == strings.TrimSuffix(base.Path, "/") {
			return
		}

		key := hostPath(resolved.String())
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, resolved.String())
	})
	return out
}

// anchorText combines the signals a menu link can hide its label in:
// visible text, title, aria-label, and data-* attributes.
func anchorText(a *goquery.Selection) string {
	var b strings.Builder
	b.WriteString(a.Text())
	if title, ok := a.Attr("title"); ok {
		b.WriteString(" " + title)
	}
	if label, ok := a.Attr("aria-label"); ok {
		b.WriteString(" " + label)
	}
	for _, node := range a.Nodes {
		for _, attr := range node.Attr {
			if strings.HasPrefix(attr.Key, "data-") {
				b.WriteString(" " + attr.Val)
			}
		}
	}
	return b.String()
}

// scanSitemaps validates keyword-matching sitemap URLs, preferring HTML
// hits over PDF hits.
func (d *Discoverer) scanSitemaps(ctx context.Context, homepageURL string) (model.MenuResult, bool) {
	candidates := d.sitemapCandidates(ctx, homepageURL)
	var pdfHit *model.MenuResult
	for _, cand := range candidates {
		res := d.prober.probe(ctx, cand)
		if !res.valid {
			continue
		}
		hit := menuResultFrom(cand, model.MethodSitemap, res)
		if !res.isPDF {
			return hit, true
		}
		if pdfHit == nil {
			pdfHit = &hit
		}
	}
	if pdfHit != nil {
		return *pdfHit, true
	}
	return model.MenuResult{}, false
}

// probeSlugs tries the fixed slug list in order, first valid hit wins.
func (d *Discoverer) probeSlugs(ctx context.Context, homepageURL string) (model.MenuResult, bool) {
	base, err := url.Parse(homepageURL)
	if err != nil {
		return model.MenuResult{}, false
	}
	root := base.Scheme + "://" + base.Host
	for _, slug := range menuSlugs {
		cand := root + slug
		res := d.prober.probe(ctx, cand)
		if res.valid {
			return menuResultFrom(cand, model.MethodSlug, res), true
		}
	}
	return model.MenuResult{}, false
}

// fetchBody GETs rawURL and returns the body when the response is 2xx.
func (d *Discoverer) fetchBody(ctx context.Context, rawURL string) ([]byte, bool) {
	resp, err := d.prober.request(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, false
	}
	return body, true
}

func menuResultFrom(candURL, method string, res probeResult) model.MenuResult {
	u := res.finalURL
	if u == "" {
		u = candURL
	}
	return model.MenuResult{
		URL:         u,
		Method:      method,
		HTTPStatus:  res.status,
		ContentType: res.contentType,
		IsPDF:       res.isPDF,
		IsValid:     true,
	}
}

func hostPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return strings.ToLower(u.Hostname()) + strings.TrimSuffix(u.Path, "/")
}
