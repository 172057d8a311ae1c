package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/menulytics/sitefinder/internal/guess"
	"github.com/menulytics/sitefinder/internal/metrics"
	"github.com/menulytics/sitefinder/internal/model"
	"github.com/menulytics/sitefinder/internal/search"
	"github.com/menulytics/sitefinder/internal/urlcheck"
	"github.com/menulytics/sitefinder/internal/verify"
)

// statsCollector accumulates run counters across workers.
type statsCollector struct {
	mu sync.Mutex
	s  model.RunStats
}

func (c *statsCollector) seen()          { c.add(func(s *model.RunStats) { s.TotalSeen++ }) }
func (c *statsCollector) osmTagged()     { c.add(func(s *model.RunStats) { s.WithOSMWebsite++ }) }
func (c *statsCollector) validated()     { c.add(func(s *model.RunStats) { s.ValidatedWebsite++ }) }
func (c *statsCollector) googleSuccess() { c.add(func(s *model.RunStats) { s.GoogleFallbackSuccess++ }) }
func (c *statsCollector) menuFound()     { c.add(func(s *model.RunStats) { s.WithMenuURL++ }) }

func (c *statsCollector) add(fn func(*model.RunStats)) {
	c.mu.Lock()
	fn(&c.s)
	c.mu.Unlock()
}

func (c *statsCollector) snapshot() model.RunStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}

// websiteOutcome is an accepted (or absent) website for one place.
type websiteOutcome struct {
	accepted     bool
	url          string
	effectiveURL string
	method       string
	status       int
	contentType  string
	html         string
}

// homepage returns the best URL to continue from.
func (o websiteOutcome) homepage() string {
	if o.effectiveURL != "" {
		return o.effectiveURL
	}
	return o.url
}

// processPlace runs the full resolution chain for one place. Failures are
// logged and recorded on the row; they never abort the run.
func (p *Pipeline) processPlace(ctx context.Context, runID string, place model.Place, budget *search.Budget, stats *statsCollector) {
	stats.seen()

	id := model.RestaurantID(runID, place.ElementType, place.ElementID)
	logger := p.d.Logger.With(zap.String("restaurant_id", id), zap.String("name", place.Name))
	now := p.d.Clock.Now()

	row := model.Restaurant{
		ID:          id,
		RunID:       runID,
		ElementType: place.ElementType,
		ElementID:   place.ElementID,
		Name:        place.Name,
		Address:     place.Address,
		Lat:         place.Lat,
		Lon:         place.Lon,
		Phone:       place.Phone,
		Tags:        place.Tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.d.Store.UpsertRestaurant(ctx, row); err != nil {
		logger.Error("persisting restaurant failed", zap.Error(err))
		return
	}

	outcome := p.resolveWebsite(ctx, id, place, budget, stats, logger)
	if outcome.accepted {
		stats.validated()
		metrics.ObserveWebsiteResolved(outcome.method)
		if outcome.method == model.MethodGoogle {
			stats.googleSuccess()
		}
		checked := p.d.Clock.Now()
		row.WebsiteURL = outcome.url
		row.WebsiteEffectiveURL = outcome.effectiveURL
		row.WebsiteMethod = outcome.method
		row.WebsiteHTTPStatus = outcome.status
		row.WebsiteContentType = outcome.contentType
		row.WebsiteIsValid = true
		row.WebsiteLastCheckedAt = &checked

		p.rememberWebsite(ctx, place, outcome, logger)
		p.snapshotHomepage(ctx, runID, place, outcome, logger)

		menuRes := p.d.Menus.Discover(ctx, outcome.homepage())
		p.recordMenuCheck(ctx, id, outcome.homepage(), menuRes)
		menuChecked := p.d.Clock.Now()
		row.MenuLastCheckedAt = &menuChecked
		if menuRes.IsValid {
			stats.menuFound()
			metrics.ObserveMenuFound(menuRes.Method)
			row.MenuURL = menuRes.URL
			row.MenuMethod = menuRes.Method
			row.MenuHTTPStatus = menuRes.HTTPStatus
			row.MenuContentType = menuRes.ContentType
			row.MenuIsPDF = menuRes.IsPDF
			row.MenuIsValid = true
		}
	}

	row.UpdatedAt = p.d.Clock.Now()
	if err := p.d.Store.UpsertRestaurant(ctx, row); err != nil {
		logger.Error("persisting restaurant outcome failed", zap.Error(err))
	}
}

// resolveWebsite walks the discovery strategies in trust order and stops at
// the first accepted candidate.
func (p *Pipeline) resolveWebsite(ctx context.Context, id string, place model.Place, budget *search.Budget, stats *statsCollector, logger *zap.Logger) websiteOutcome {
	identity := model.IdentityOf(place)

	// Stated websites from the place tags are trusted; they only need to
	// resolve to a reachable non-social HTML page.
	candidates := urlcheck.CandidatesFromTags(place.Tags)
	if len(candidates) > 0 {
		stats.osmTagged()
	}
	for _, cand := range candidates {
		res := p.d.Validator.Validate(ctx, cand.URL)
		p.recordWebsiteCheck(ctx, id, model.MethodOSM, res)
		if res.IsValid {
			return outcomeFrom(model.MethodOSM, res, "")
		}
	}

	// Everything below needs a name to search by.
	if strings.TrimSpace(place.Name) == "" {
		return websiteOutcome{}
	}

	// A cache hit was already validated for this name and city, so it is
	// accepted without probing it again.
	if p.d.Reuse != nil {
		if cached, ok, err := p.d.Reuse.Get(ctx, place.Name, place.Address.City); err != nil {
			logger.Warn("reuse cache lookup failed", zap.Error(err))
		} else if ok {
			res := model.ValidationResult{CandidateURL: cached, EffectiveURL: cached, IsValid: true}
			p.recordWebsiteCheck(ctx, id, model.MethodReuse, res)
			return outcomeFrom(model.MethodReuse, res, "")
		}
	}

	guesses := guess.Generate(place.Name, place.Address.City, p.cfg.TLDs)
	if len(guesses) > p.cfg.MaxGuessProbes {
		guesses = guesses[:p.cfg.MaxGuessProbes]
	}
	for _, g := range guesses {
		res := p.d.Validator.Validate(ctx, g)
		p.recordWebsiteCheck(ctx, id, model.MethodHeuristic, res)
		if !res.IsValid {
			continue
		}
		if out, ok := p.verifyIdentity(ctx, model.MethodHeuristic, res, identity, logger); ok {
			return out
		}
	}

	if p.d.DuckDuckGo != nil {
		cands, err := p.d.DuckDuckGo.Search(ctx, place.Name, place.Address.City)
		if err != nil {
			logger.Warn("duckduckgo search failed", zap.Error(err))
		}
		if out, ok := p.trySearchCandidates(ctx, id, model.MethodDuckDuckGo, cands, identity, logger); ok {
			return out
		}
	}

	if p.d.Google != nil && p.d.Google.Enabled() {
		cands, err := p.d.Google.SearchOfficialSite(ctx, place.Name, place.Address.City, budget)
		if err != nil {
			logger.Warn("google search failed", zap.Error(err))
		}
		if out, ok := p.trySearchCandidates(ctx, id, model.MethodGoogle, cands, identity, logger); ok {
			return out
		}
	}

	return websiteOutcome{}
}

// trySearchCandidates validates and identity-checks search results in rank
// order.
func (p *Pipeline) trySearchCandidates(ctx context.Context, id, method string, cands []model.Candidate, identity model.Identity, logger *zap.Logger) (websiteOutcome, bool) {
	for _, cand := range cands {
		if cand.IsSocial || verify.IsAggregatorHost(cand.URL) {
			continue
		}
		res := p.d.Validator.Validate(ctx, cand.URL)
		p.recordWebsiteCheck(ctx, id, method, res)
		if !res.IsValid {
			continue
		}
		if out, ok := p.verifyIdentity(ctx, method, res, identity, logger); ok {
			return out, true
		}
	}
	return websiteOutcome{}, false
}

// verifyIdentity scores the candidate page against the place identity.
// Discovered (non-stated) websites are accepted only above the threshold.
func (p *Pipeline) verifyIdentity(ctx context.Context, method string, res model.ValidationResult, identity model.Identity, logger *zap.Logger) (websiteOutcome, bool) {
	target := res.EffectiveURL
	if target == "" {
		target = res.CandidateURL
	}
	page := p.d.Verifier.FetchHTML(ctx, target)
	if page.Err != nil || page.HTML == "" {
		return websiteOutcome{}, false
	}
	score := p.d.Verifier.MatchScore(target, page.HTML, identity)
	logger.Debug("identity scored",
		zap.String("url", target),
		zap.String("method", method),
		zap.Int("score", score),
	)
	if score < p.cfg.MinScore {
		return websiteOutcome{}, false
	}
	return outcomeFrom(method, res, page.HTML), true
}

func outcomeFrom(method string, res model.ValidationResult, html string) websiteOutcome {
	return websiteOutcome{
		accepted:     true,
		url:          res.CandidateURL,
		effectiveURL: res.EffectiveURL,
		method:       method,
		status:       res.HTTPStatus,
		contentType:  res.ContentType,
		html:         html,
	}
}

func (p *Pipeline) rememberWebsite(ctx context.Context, place model.Place, outcome websiteOutcome, logger *zap.Logger) {
	if p.d.Reuse == nil || outcome.method == model.MethodReuse || strings.TrimSpace(place.Name) == "" {
		return
	}
	if err := p.d.Reuse.Put(ctx, place.Name, place.Address.City, outcome.homepage()); err != nil {
		logger.Warn("reuse cache store failed", zap.Error(err))
	}
}

// snapshotHomepage archives the accepted homepage HTML when a snapshot
// store is configured. Paths without captured HTML are fetched once more.
func (p *Pipeline) snapshotHomepage(ctx context.Context, runID string, place model.Place, outcome websiteOutcome, logger *zap.Logger) {
	if p.d.Snapshots == nil {
		return
	}
	html := outcome.html
	if html == "" {
		page := p.d.Verifier.FetchHTML(ctx, outcome.homepage())
		if page.Err != nil || page.HTML == "" {
			return
		}
		html = page.HTML
	}
	path := fmt.Sprintf("%s/%s/%s-%d.html", p.cfg.SnapshotPrefix, runID, place.ElementType, place.ElementID)
	if _, err := p.d.Snapshots.Put(ctx, path, "text/html; charset=utf-8", []byte(html)); err != nil {
		logger.Warn("homepage snapshot failed", zap.Error(err))
	}
}

func (p *Pipeline) recordWebsiteCheck(ctx context.Context, id, method string, res model.ValidationResult) {
	metrics.ObserveCheck(string(model.CheckTargetWebsite), method, res.IsValid)
	check := model.Check{
		RestaurantID: id,
		Target:       model.CheckTargetWebsite,
		CandidateURL: res.CandidateURL,
		Method:       method,
		HTTPStatus:   res.HTTPStatus,
		ContentType:  res.ContentType,
		EffectiveURL: res.EffectiveURL,
		IsValid:      res.IsValid,
		ErrorMessage: res.ErrorMessage,
		CheckedAt:    p.d.Clock.Now(),
	}
	if err := p.d.Store.InsertCheck(ctx, check); err != nil {
		p.d.Logger.Error("recording website check failed", zap.String("restaurant_id", id), zap.Error(err))
	}
}

func (p *Pipeline) recordMenuCheck(ctx context.Context, id, homepage string, res model.MenuResult) {
	metrics.ObserveCheck(string(model.CheckTargetMenu), res.Method, res.IsValid)
	check := model.Check{
		RestaurantID: id,
		Target:       model.CheckTargetMenu,
		CandidateURL: homepage,
		Method:       res.Method,
		HTTPStatus:   res.HTTPStatus,
		ContentType:  res.ContentType,
		IsValid:      res.IsValid,
		CheckedAt:    p.d.Clock.Now(),
	}
	if res.IsValid {
		check.CandidateURL = res.URL
		check.EffectiveURL = res.URL
	}
	if err := p.d.Store.InsertCheck(ctx, check); err != nil {
		p.d.Logger.Error("recording menu check failed", zap.String("restaurant_id", id), zap.Error(err))
	}
}
