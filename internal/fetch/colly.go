// Package fetch provides the shared HTML page fetcher used by the site
// verifier and menu discoverer.
package fetch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/menulytics/sitefinder/internal/hostlimit"
	"github.com/menulytics/sitefinder/internal/metrics"
)

// Page is a fetched document plus response metadata.
type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Fetcher retrieves pages through a tuned Colly collector, one clone per
// call, gated by the per-host limiter.
type Fetcher struct {
	baseCollector *colly.Collector
	limiter       *hostlimit.Limiter
	logger        *zap.Logger
}

// Config controls the Fetcher transport.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Transport replaces the default pooled transport when set.
	Transport http.RoundTripper
}

// New constructs a configured Colly-based Fetcher. limiter may be nil.
func New(cfg Config, limiter *hostlimit.Limiter, logger *zap.Logger) *Fetcher {
	base := colly.NewCollector(colly.UserAgent(cfg.UserAgent))
	base.AllowURLRevisit = true
	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          128,
			MaxIdleConnsPerHost:   8,
			IdleConnTimeout:       30 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: cfg.Timeout,
			ForceAttemptHTTP2:     true,
		}
	}
	base.WithTransport(transport)
	base.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		baseCollector: base,
		limiter:       limiter,
		logger:        logger,
	}
}

// Fetch retrieves rawURL. Transport-level failures are returned as errors;
// non-2xx responses come back as a Page with the status set.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	if f.limiter != nil {
		var page Page
		err := f.limiter.Do(ctx, rawURL, func() error {
			var ferr error
			page, ferr = f.fetch(ctx, rawURL)
			return ferr
		})
		return page, err
	}
	return f.fetch(ctx, rawURL)
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (Page, error) {
	collector := f.baseCollector.Clone()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		page := Page{
			URL:        rawURL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte{}, r.Body...),
		}
		if r.Headers != nil {
			page.ContentType = r.Headers.Get("Content-Type")
		}
		send(fetchResult{page: page})
	})

	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		// Colly reports HTTP error statuses through OnError; keep the
		// status so callers can distinguish 404 from a dead host.
		if r != nil && r.StatusCode > 0 {
			page := Page{
				URL:        rawURL,
				StatusCode: r.StatusCode,
				Body:       append([]byte{}, r.Body...),
			}
			if r.Request != nil && r.Request.URL != nil {
				page.FinalURL = r.Request.URL.String()
			}
			if r.Headers != nil {
				page.ContentType = r.Headers.Get("Content-Type")
			}
			send(fetchResult{page: page})
			return
		}
		send(fetchResult{err: err})
	})

	if err := collector.Visit(rawURL); err != nil {
		metrics.ObserveOutboundRequest("fetch", 0)
		return Page{}, err
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return Page{}, err
		}
		if res.err != nil {
			metrics.ObserveOutboundRequest("fetch", 0)
			f.logger.Debug("fetch failed", zap.String("url", rawURL), zap.Error(res.err))
			return Page{}, res.err
		}
		metrics.ObserveOutboundRequest("fetch", res.page.StatusCode)
		return res.page, nil
	default:
		return Page{}, errors.New("colly fetch produced no result")
	}
}

type fetchResult struct {
	page Page
	err  error
}
