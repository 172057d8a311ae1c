// Package main wires together the restaurant website discovery service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/menulytics/sitefinder/internal/api"
	"github.com/menulytics/sitefinder/internal/config"
	"github.com/menulytics/sitefinder/internal/events"
	"github.com/menulytics/sitefinder/internal/fetch"
	"github.com/menulytics/sitefinder/internal/geo"
	"github.com/menulytics/sitefinder/internal/hostlimit"
	"github.com/menulytics/sitefinder/internal/ingest"
	"github.com/menulytics/sitefinder/internal/logging"
	"github.com/menulytics/sitefinder/internal/menu"
	"github.com/menulytics/sitefinder/internal/metrics"
	"github.com/menulytics/sitefinder/internal/model"
	"github.com/menulytics/sitefinder/internal/overpass"
	"github.com/menulytics/sitefinder/internal/reuse"
	"github.com/menulytics/sitefinder/internal/search"
	"github.com/menulytics/sitefinder/internal/snapshot"
	memorystore "github.com/menulytics/sitefinder/internal/store/memory"
	postgresstore "github.com/menulytics/sitefinder/internal/store/postgres"
	"github.com/menulytics/sitefinder/internal/urlcheck"
	"github.com/menulytics/sitefinder/internal/verify"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer closeStore()

	reuseCache := buildReuseCache(cfg, logger)
	snapshots, err := buildSnapshotStore(ctx, cfg)
	if err != nil {
		logger.Fatal("snapshot store init failed", zap.Error(err))
	}
	publisher, closePublisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("event publisher init failed", zap.Error(err))
	}
	defer closePublisher()

	timeout := cfg.HTTPTimeout()
	limiter := hostlimit.New(cfg.Crawler.PerHostMax)
	fetcher := fetch.New(fetch.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   timeout,
	}, limiter, logger.Named("fetch"))

	var ddg *search.DuckDuckGo
	if cfg.Search.DuckDuckGoEnabled {
		ddg = search.NewDuckDuckGo("", search.NewRateGate(cfg.Search.RatePerSecond),
			cfg.HTTP.UserAgent, timeout, cfg.Search.MaxCandidates, logger.Named("ddg"))
	}
	var google *search.Google
	if cfg.GoogleConfigured() {
		google = search.NewGoogle(cfg.Search.GoogleAPIKey, cfg.Search.GoogleCX, cfg.Search.SerpAPIKey,
			timeout, cfg.Search.MaxCandidates, logger.Named("google"))
	}

	pipeline := ingest.New(ingest.Config{
		Concurrency:    cfg.Crawler.Concurrency,
		MinScore:       cfg.Verify.MinScore,
		TLDs:           cfg.Guess.TLDs,
		GoogleBudget:   cfg.Search.GoogleBudget,
		SnapshotPrefix: cfg.Snapshot.Prefix,
		EventsTopic:    cfg.Events.Topic,
	}, ingest.Deps{
		Store:      store,
		Reuse:      reuseCache,
		Snapshots:  snapshots,
		Publisher:  publisher,
		Geo:        geo.NewResolver(cfg.Geo.BaseURL, cfg.HTTP.UserAgent, timeout, logger.Named("geo")),
		Places:     overpass.NewFetcher(cfg.Overpass.BaseURL, cfg.HTTP.UserAgent, timeout, logger.Named("overpass")),
		Validator:  urlcheck.NewValidator(timeout, limiter, cfg.HTTP.UserAgent, logger.Named("validate")),
		Verifier:   verify.New(fetcher, logger.Named("verify")),
		DuckDuckGo: ddg,
		Google:     google,
		Menus:      menu.New(fetcher, timeout, limiter, cfg.HTTP.UserAgent, logger.Named("menu")),
		Logger:     logger.Named("ingest"),
	})

	apiServer := api.NewServer(pipeline, store, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
}

// buildStore prefers Postgres and falls back to the in-memory store when no
// DSN is configured.
func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (model.Store, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Warn("db.dsn not set, using in-memory store")
		return memorystore.New(), func() {}, nil
	}
	pg, err := postgresstore.New(ctx, postgresstore.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
	})
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

func buildReuseCache(cfg config.Config, logger *zap.Logger) model.ReuseCache {
	if cfg.Redis.Addr == "" {
		logger.Info("redis.addr not set, using in-process reuse cache")
		return reuse.NewMemory()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return reuse.NewRedis(client, 0)
}

func buildSnapshotStore(ctx context.Context, cfg config.Config) (model.SnapshotStore, error) {
	switch cfg.Snapshot.Backend {
	case "":
		return nil, nil
	case "memory":
		return snapshot.NewMemory(), nil
	case "local":
		return snapshot.NewLocal(cfg.Snapshot.LocalDir)
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return snapshot.NewGCS(client, cfg.Snapshot.GCSBucket)
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Snapshot.Backend)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (model.Publisher, func(), error) {
	if cfg.Events.ProjectID == "" {
		logger.Info("events.project_id not set, run events disabled")
		return nil, func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	pub, err := events.NewPubSub(client)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	return pub, closeFn, nil
}
