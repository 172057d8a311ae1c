package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/menulytics/sitefinder/internal/metrics"
	"github.com/menulytics/sitefinder/internal/model"
)

// Google answers official-site queries through the Custom Search API,
// falling back to SerpAPI when only that key is configured. Every call
// spends from the caller-supplied per-run budget; a successful name+city
// lookup is cached in-process so retries within a run are free.
type Google struct {
	apiKey     string
	cx         string
	serpAPIKey string

	cseBaseURL  string
	serpBaseURL string

	client        *http.Client
	maxCandidates int
	logger        *zap.Logger

	mu    sync.Mutex
	cache map[string][]model.Candidate
}

// NewGoogle constructs the paid-search client. It is inert (Enabled false)
// without credentials.
func NewGoogle(apiKey, cx, serpAPIKey string, timeout time.Duration, maxCandidates int, logger *zap.Logger) *Google {
	return &Google{
		apiKey:        apiKey,
		cx:            cx,
		serpAPIKey:    serpAPIKey,
		cseBaseURL:    "https://www.googleapis.com/customsearch/v1",
		serpBaseURL:   "https://serpapi.com/search.json",
		client:        &http.Client{Timeout: timeout},
		maxCandidates: maxCandidates,
		logger:        logger,
		cache:         make(map[string][]model.Candidate),
	}
}

// Enabled reports whether any backend has credentials.
func (g *Google) Enabled() bool {
	return (g.apiKey != "" && g.cx != "") || g.serpAPIKey != ""
}

// SearchOfficialSite queries for the restaurant's official website. The
// budget is decremented per upstream call and the search refused once it is
// exhausted (returning no candidates, not an error).
func (g *Google) SearchOfficialSite(ctx context.Context, name, city string, budget *Budget) ([]model.Candidate, error) {
	if !g.Enabled() {
		return nil, nil
	}

	key := name + "|" + city
	g.mu.Lock()
	if cached, ok := g.cache[key]; ok {
		g.mu.Unlock()
		return cached, nil
	}
	g.mu.Unlock()

	if budget != nil && !budget.Take() {
		metrics.ObserveSearchCall("google", "budget_exhausted")
		g.logger.Debug("google budget exhausted", zap.String("name", name))
		return nil, nil
	}

	var (
		results []scoredResult
		err     error
	)
	if g.apiKey != "" && g.cx != "" {
		results, err = g.searchCSE(ctx, name, city)
	} else {
		results, err = g.searchSerpAPI(ctx, name, city)
	}
	if err != nil {
		metrics.ObserveSearchCall("google", "error")
		return nil, err
	}

	for i := range results {
		results[i].score = scoreResult(results[i].url, results[i].title, name, city)
	}
	cands := rankAndCap(results, model.MethodGoogle, g.maxCandidates)

	outcome := "ok"
	if len(cands) == 0 {
		outcome = "empty"
	}
	metrics.ObserveSearchCall("google", outcome)

	if len(cands) > 0 {
		g.mu.Lock()
		g.cache[key] = cands
		g.mu.Unlock()
	}
	return cands, nil
}

type cseResponse struct {
	Items []struct {
		Link  string `json:"link"`
		Title string `json:"title"`
	} `json:"items"`
}

func (g *Google) searchCSE(ctx context.Context, name, city string) ([]scoredResult, error) {
	params := url.Values{
		"key": {g.apiKey},
		"cx":  {g.cx},
		"q":   {buildQuery(name, city)},
		"num": {"10"},
	}
	var decoded cseResponse
	if err := g.getJSON(ctx, g.cseBaseURL+"?"+params.Encode(), &decoded); err != nil {
		return nil, fmt.Errorf("custom search: %w", err)
	}
	out := make([]scoredResult, 0, len(decoded.Items))
	for _, item := range decoded.Items {
		out = append(out, scoredResult{url: item.Link, title: item.Title})
	}
	return out, nil
}

type serpResponse struct {
	OrganicResults []struct {
		Link  string `json:"link"`
		Title string `json:"title"`
	} `json:"organic_results"`
}

func (g *Google) searchSerpAPI(ctx context.Context, name, city string) ([]scoredResult, error) {
	params := url.Values{
		"api_key": {g.serpAPIKey},
		"engine":  {"google"},
		"q":       {buildQuery(name, city)},
	}
	var decoded serpResponse
	if err := g.getJSON(ctx, g.serpBaseURL+"?"+params.Encode(), &decoded); err != nil {
		return nil, fmt.Errorf("serpapi search: %w", err)
	}
	out := make([]scoredResult, 0, len(decoded.OrganicResults))
	for _, item := range decoded.OrganicResults {
		out = append(out, scoredResult{url: item.Link, title: item.Title})
	}
	return out, nil
}

func (g *Google) getJSON(ctx context.Context, endpoint string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		metrics.ObserveOutboundRequest("search", 0)
		return err
	}
	defer resp.Body.Close()
	metrics.ObserveOutboundRequest("search", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(into)
}
