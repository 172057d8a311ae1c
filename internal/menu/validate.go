package menu

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/menulytics/sitefinder/internal/hostlimit"
	"github.com/menulytics/sitefinder/internal/metrics"
)

// probeResult classifies one menu candidate URL.
type probeResult struct {
	valid       bool
	isPDF       bool
	status      int
	contentType string
	finalURL    string
}

// prober issues HEAD→GET→sniff probes for menu candidates.
type prober struct {
	client    *http.Client
	limiter   *hostlimit.Limiter
	userAgent string
}

func newProber(timeout time.Duration, limiter *hostlimit.Limiter, userAgent string) *prober {
	return &prober{
		client:    &http.Client{Timeout: timeout},
		limiter:   limiter,
		userAgent: userAgent,
	}
}

// probe classifies rawURL as HTML, PDF, or invalid. When the content type
// is absent or ambiguous it falls back to sniffing the first body bytes for
// a %PDF- prefix or an <html tag.
func (p *prober) probe(ctx context.Context, rawURL string) probeResult {
	var res probeResult
	work := func() error {
		res = p.probeLocked(ctx, rawURL)
		return nil
	}
	if p.limiter != nil {
		if err := p.limiter.Do(ctx, rawURL, work); err != nil {
			return probeResult{}
		}
		return res
	}
	_ = work()
	return res
}

func (p *prober) probeLocked(ctx context.Context, rawURL string) probeResult {
	resp, err := p.request(ctx, http.MethodHead, rawURL)
	if err != nil || resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode >= 400 {
		if resp != nil {
			resp.Body.Close()
		}
		resp, err = p.request(ctx, http.MethodGet, rawURL)
	}
	if err != nil {
		metrics.ObserveOutboundRequest("validate", 0)
		return probeResult{}
	}
	defer resp.Body.Close()
	metrics.ObserveOutboundRequest("validate", resp.StatusCode)

	res := probeResult{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		finalURL:    resp.Request.URL.String(),
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return res
	}

	switch classifyContentType(res.contentType) {
	case kindHTML:
		res.valid = true
	case kindPDF:
		res.valid = true
		res.isPDF = true
	default:
		// Ambiguous type; a HEAD response has no body to sniff, so fetch
		// the head of the document.
		body := resp.Body
		if resp.Request.Method == http.MethodHead {
			getResp, getErr := p.request(ctx, http.MethodGet, rawURL)
			if getErr != nil {
				return res
			}
			defer getResp.Body.Close()
			body = getResp.Body
			res.status = getResp.StatusCode
			res.finalURL = getResp.Request.URL.String()
		}
		head, _ := io.ReadAll(io.LimitReader(body, 1024))
		switch {
		case bytes.HasPrefix(head, []byte("%PDF-")):
			res.valid = true
			res.isPDF = true
		case bytes.Contains(bytes.ToLower(head), []byte("<html")):
			res.valid = true
		}
	}
	return res
}

func (p *prober) request(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)
	return p.client.Do(req)
}

type contentKind int

const (
	kindUnknown contentKind = iota
	kindHTML
	kindPDF
)

func classifyContentType(ct string) contentKind {
	ct = strings.ToLower(ct)
	switch {
	case strings.Contains(ct, "text/html"), strings.Contains(ct, "application/xhtml"):
		return kindHTML
	case strings.Contains(ct, "application/pdf"):
		return kindPDF
	default:
		return kindUnknown
	}
}
