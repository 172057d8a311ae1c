// Package ingest orchestrates a crawl run: geocode the location, enumerate
// places, resolve and validate each restaurant's website, then hunt for a
// menu URL, all under bounded concurrency.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/menulytics/sitefinder/internal/events"
	"github.com/menulytics/sitefinder/internal/geo"
	"github.com/menulytics/sitefinder/internal/menu"
	"github.com/menulytics/sitefinder/internal/metrics"
	"github.com/menulytics/sitefinder/internal/model"
	"github.com/menulytics/sitefinder/internal/overpass"
	"github.com/menulytics/sitefinder/internal/search"
	"github.com/menulytics/sitefinder/internal/urlcheck"
	"github.com/menulytics/sitefinder/internal/verify"
)

const (
	defaultConcurrency    = 5
	maxConcurrency        = 10
	defaultMaxGuessProbes = 16
)

// Config tunes one Pipeline instance.
type Config struct {
	Concurrency    int
	MinScore       int
	TLDs           []string
	GoogleBudget   int
	MaxGuessProbes int
	SnapshotPrefix string
	EventsTopic    string
}

// Deps collects the pipeline's collaborators. Reuse, Snapshots, Publisher,
// DuckDuckGo, and Google are optional; a nil value disables that step.
type Deps struct {
	Store      model.Store
	Reuse      model.ReuseCache
	Snapshots  model.SnapshotStore
	Publisher  model.Publisher
	Geo        *geo.Resolver
	Places     *overpass.Fetcher
	Validator  *urlcheck.Validator
	Verifier   *verify.Verifier
	DuckDuckGo *search.DuckDuckGo
	Google     *search.Google
	Menus      *menu.Discoverer
	Clock      model.Clock
	Logger     *zap.Logger
}

// Pipeline executes crawl runs.
type Pipeline struct {
	cfg Config
	d   Deps
}

// New constructs a Pipeline, applying defaults for zero config values and
// capping the worker pool size.
func New(cfg Config, d Deps) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Concurrency > maxConcurrency {
		cfg.Concurrency = maxConcurrency
	}
	if cfg.MaxGuessProbes <= 0 {
		cfg.MaxGuessProbes = defaultMaxGuessProbes
	}
	if d.Clock == nil {
		d.Clock = model.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, d: d}
}

// Start registers a new run and executes it in the background, returning
// the run id immediately.
func (p *Pipeline) Start(ctx context.Context, locationQuery string) (string, error) {
	run, err := p.createRun(ctx, locationQuery)
	if err != nil {
		return "", err
	}
	go p.execute(context.Background(), run)
	return run.ID, nil
}

// Run executes a crawl synchronously and returns the completed run row.
func (p *Pipeline) Run(ctx context.Context, locationQuery string) (model.CrawlRun, error) {
	run, err := p.createRun(ctx, locationQuery)
	if err != nil {
		return model.CrawlRun{}, err
	}
	p.execute(ctx, run)
	return p.d.Store.GetRun(ctx, run.ID)
}

func (p *Pipeline) createRun(ctx context.Context, locationQuery string) (model.CrawlRun, error) {
	if locationQuery == "" {
		return model.CrawlRun{}, fmt.Errorf("location query is required")
	}
	run := model.CrawlRun{
		ID:            uuid.NewString(),
		LocationQuery: locationQuery,
		Provider:      "osm",
		Status:        model.RunStatusPending,
		StartedAt:     p.d.Clock.Now(),
	}
	if err := p.d.Store.CreateRun(ctx, run); err != nil {
		return model.CrawlRun{}, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

func (p *Pipeline) execute(ctx context.Context, run model.CrawlRun) {
	logger := p.d.Logger.With(zap.String("run_id", run.ID), zap.String("location", run.LocationQuery))
	started := p.d.Clock.Now()

	area, err := p.d.Geo.Resolve(ctx, run.LocationQuery)
	if err != nil {
		logger.Warn("geocoding failed", zap.Error(err))
		p.fail(ctx, run.ID, model.RunStats{}, err)
		return
	}
	bbox := area.BBox
	if err := p.d.Store.UpdateRunArea(ctx, run.ID, area.AreaID, &bbox); err != nil {
		logger.Error("persisting run area failed", zap.Error(err))
		p.fail(ctx, run.ID, model.RunStats{}, err)
		return
	}

	places, err := p.d.Places.Fetch(ctx, area)
	if err != nil {
		logger.Warn("place enumeration failed", zap.Error(err))
		p.fail(ctx, run.ID, model.RunStats{}, err)
		return
	}
	metrics.ObservePlaces(len(places))
	logger.Info("places enumerated", zap.Int("count", len(places)))

	budget := search.NewBudget(p.cfg.GoogleBudget)
	var stats statsCollector

	jobs := make(chan model.Place)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Concurrency; i++ {
		g.Go(func() error {
			metrics.WorkerStarted()
			defer metrics.WorkerStopped()
			for place := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				p.processPlace(gctx, run.ID, place, budget, &stats)
			}
			return nil
		})
	}

feed:
	for _, place := range places {
		select {
		case jobs <- place:
		case <-gctx.Done():
			break feed
		}
	}
	close(jobs)
	waitErr := g.Wait()

	final := stats.snapshot()
	if waitErr != nil {
		logger.Warn("run aborted", zap.Error(waitErr))
		p.fail(ctx, run.ID, final, waitErr)
		return
	}

	completedAt := p.d.Clock.Now()
	if err := p.d.Store.CompleteRun(ctx, run.ID, model.RunStatusCompleted, final, "", completedAt); err != nil {
		logger.Error("completing run failed", zap.Error(err))
		return
	}
	metrics.ObserveRunDuration(completedAt.Sub(started))
	logger.Info("run completed",
		zap.Int("total_seen", final.TotalSeen),
		zap.Int("validated_website", final.ValidatedWebsite),
		zap.Int("with_menu_url", final.WithMenuURL),
	)
	p.publishCompletion(ctx, run, final, completedAt)
}

func (p *Pipeline) fail(ctx context.Context, runID string, stats model.RunStats, cause error) {
	if err := p.d.Store.CompleteRun(ctx, runID, model.RunStatusFailed, stats, cause.Error(), p.d.Clock.Now()); err != nil {
		p.d.Logger.Error("marking run failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func (p *Pipeline) publishCompletion(ctx context.Context, run model.CrawlRun, stats model.RunStats, completedAt time.Time) {
	if p.d.Publisher == nil || p.cfg.EventsTopic == "" {
		return
	}
	payload := events.RunCompleted{
		RunID:         run.ID,
		LocationQuery: run.LocationQuery,
		Status:        string(model.RunStatusCompleted),
		TotalSeen:     stats.TotalSeen,
		WithMenuURL:   stats.WithMenuURL,
		CompletedAt:   completedAt.Format(time.RFC3339),
	}
	if _, err := p.d.Publisher.Publish(ctx, p.cfg.EventsTopic, payload); err != nil {
		p.d.Logger.Warn("publishing run completion failed", zap.String("run_id", run.ID), zap.Error(err))
	}
}
