package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/menulytics/sitefinder/internal/metrics"
	"github.com/menulytics/sitefinder/internal/model"
)

// blockBackoff is how long all searchers pause after a detected block page.
const blockBackoff = 10 * time.Second

// blockMarkers in the response body indicate a CAPTCHA / bot interstitial.
var blockMarkers = []string{
	"unusual traffic",
	"captcha",
	"anomaly-modal",
	"bot detection",
}

// DuckDuckGo scrapes the DuckDuckGo HTML results page. No API key needed,
// which makes it the free first-line search fallback.
type DuckDuckGo struct {
	baseURL       string
	client        *http.Client
	gate          *RateGate
	userAgent     string
	maxCandidates int
	logger        *zap.Logger
}

// NewDuckDuckGo constructs the scraper. gate must be the process-global
// one. An empty baseURL uses the public HTML endpoint.
func NewDuckDuckGo(baseURL string, gate *RateGate, userAgent string, timeout time.Duration, maxCandidates int, logger *zap.Logger) *DuckDuckGo {
	if baseURL == "" {
		baseURL = "https://html.duckduckgo.com/html/"
	}
	return &DuckDuckGo{
		baseURL:       baseURL,
		client:        &http.Client{Timeout: timeout},
		gate:          gate,
		userAgent:     userAgent,
		maxCandidates: maxCandidates,
		logger:        logger,
	}
}

// Search queries for the restaurant's official site and returns ranked
// candidates. A detected block page backs off and returns no results; it is
// not an error.
func (d *DuckDuckGo) Search(ctx context.Context, name, city string) ([]model.Candidate, error) {
	if err := d.gate.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := d.baseURL + "?q=" + url.QueryEscape(buildQuery(name, city))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		metrics.ObserveSearchCall("duckduckgo", "error")
		return nil, fmt.Errorf("duckduckgo request: %w", err)
	}
	defer resp.Body.Close()
	metrics.ObserveOutboundRequest("search", resp.StatusCode)

	if resp.StatusCode == http.StatusTooManyRequests {
		d.blocked("status 429")
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		metrics.ObserveSearchCall("duckduckgo", "error")
		return nil, fmt.Errorf("parse results page: %w", err)
	}

	if marker := d.findBlockMarker(doc); marker != "" {
		d.blocked(marker)
		return nil, nil
	}

	results := d.extractResults(doc)
	var scored []scoredResult
	for _, r := range results {
		scored = append(scored, scoredResult{
			url:   r.url,
			title: r.title,
			score: scoreResult(r.url, r.title, name, city),
		})
	}
	cands := rankAndCap(scored, model.MethodDuckDuckGo, d.maxCandidates)

	outcome := "ok"
	if len(cands) == 0 {
		outcome = "empty"
	}
	metrics.ObserveSearchCall("duckduckgo", outcome)
	d.logger.Debug("duckduckgo searched",
		zap.String("name", name),
		zap.Int("raw_results", len(results)),
		zap.Int("candidates", len(cands)),
	)
	return cands, nil
}

func (d *DuckDuckGo) blocked(reason string) {
	metrics.ObserveSearchCall("duckduckgo", "blocked")
	d.logger.Warn("search block detected, backing off",
		zap.String("engine", "duckduckgo"),
		zap.String("reason", reason),
		zap.Duration("backoff", blockBackoff),
	)
	d.gate.Backoff(blockBackoff)
}

func (d *DuckDuckGo) findBlockMarker(doc *goquery.Document) string {
	text := strings.ToLower(doc.Text())
	for _, marker := range blockMarkers {
		if strings.Contains(text, marker) {
			return marker
		}
	}
	return ""
}

type rawResult struct {
	url   string
	title string
}

// extractResults pulls result links via the primary selector, falling back
// to redirect-wrapped links when the page layout variant requires it.
func (d *DuckDuckGo) extractResults(doc *goquery.Document) []rawResult {
	var out []rawResult
	doc.Find("a.result__a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		if target := unwrapRedirect(href); target != "" {
			out = append(out, rawResult{url: target, title: strings.TrimSpace(sel.Text())})
		}
	})
	if len(out) > 0 {
		return out
	}

	doc.Find("div.result a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if target := unwrapRedirect(href); target != "" {
			out = append(out, rawResult{url: target, title: strings.TrimSpace(sel.Text())})
		}
	})
	return out
}

// unwrapRedirect resolves DuckDuckGo's /l/?uddg=<encoded> indirection and
// filters out non-http targets.
func unwrapRedirect(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.Contains(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			href = target
			u, err = url.Parse(href)
			if err != nil {
				return ""
			}
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if u.Host == "" {
		return ""
	}
	return u.String()
}
