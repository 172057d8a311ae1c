// Package postgres provides the Postgres-backed Store implementation.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/menulytics/sitefinder/internal/model"
)

// ErrNotFound signals that the requested row does not exist.
var ErrNotFound = errors.New("record not found")

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists crawl runs, restaurant rows, and check entries.
//
// Expected schema:
//
//	CREATE TABLE crawl_runs (
//	    id TEXT PRIMARY KEY,
//	    location_query TEXT NOT NULL,
//	    provider TEXT NOT NULL,
//	    area_id BIGINT,
//	    bbox JSONB,
//	    status TEXT NOT NULL,
//	    stats JSONB NOT NULL DEFAULT '{}',
//	    started_at TIMESTAMPTZ NOT NULL,
//	    completed_at TIMESTAMPTZ,
//	    error_message TEXT NOT NULL DEFAULT ''
//	);
//
//	CREATE TABLE ext_restaurants (
//	    id TEXT PRIMARY KEY,
//	    run_id TEXT NOT NULL REFERENCES crawl_runs(id),
//	    element_type TEXT NOT NULL,
//	    element_id BIGINT NOT NULL,
//	    name TEXT NOT NULL,
//	    address JSONB NOT NULL DEFAULT '{}',
//	    lat DOUBLE PRECISION NOT NULL,
//	    lon DOUBLE PRECISION NOT NULL,
//	    phone TEXT NOT NULL DEFAULT '',
//	    tags JSONB NOT NULL DEFAULT '{}',
//	    website_url TEXT NOT NULL DEFAULT '',
//	    website_effective_url TEXT NOT NULL DEFAULT '',
//	    website_method TEXT NOT NULL DEFAULT '',
//	    website_http_status INT NOT NULL DEFAULT 0,
//	    website_content_type TEXT NOT NULL DEFAULT '',
//	    website_is_social BOOLEAN NOT NULL DEFAULT FALSE,
//	    website_is_valid BOOLEAN NOT NULL DEFAULT FALSE,
//	    website_last_checked_at TIMESTAMPTZ,
//	    menu_url TEXT NOT NULL DEFAULT '',
//	    menu_method TEXT NOT NULL DEFAULT '',
//	    menu_http_status INT NOT NULL DEFAULT 0,
//	    menu_content_type TEXT NOT NULL DEFAULT '',
//	    menu_is_pdf BOOLEAN NOT NULL DEFAULT FALSE,
//	    menu_is_valid BOOLEAN NOT NULL DEFAULT FALSE,
//	    menu_last_checked_at TIMESTAMPTZ,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE ext_restaurant_checks (
//	    id BIGSERIAL PRIMARY KEY,
//	    restaurant_id TEXT NOT NULL,
//	    target TEXT NOT NULL,
//	    candidate_url TEXT NOT NULL,
//	    method TEXT NOT NULL,
//	    http_status INT NOT NULL DEFAULT 0,
//	    content_type TEXT NOT NULL DEFAULT '',
//	    effective_url TEXT NOT NULL DEFAULT '',
//	    is_valid BOOLEAN NOT NULL,
//	    error_message TEXT NOT NULL DEFAULT '',
//	    checked_at TIMESTAMPTZ NOT NULL
//	);
type Store struct {
	pool pgPool
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool pgPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateRun inserts a new crawl run row.
func (s *Store) CreateRun(ctx context.Context, run model.CrawlRun) error {
	bboxJSON, err := marshalNullable(run.BBox)
	if err != nil {
		return fmt.Errorf("marshal bbox: %w", err)
	}
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	query := `
INSERT INTO crawl_runs (
	id, location_query, provider, area_id, bbox, status, stats, started_at, error_message
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err = s.pool.Exec(ctx, query,
		run.ID,
		run.LocationQuery,
		run.Provider,
		run.AreaID,
		bboxJSON,
		string(run.Status),
		statsJSON,
		run.StartedAt,
		run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert crawl run: %w", err)
	}
	return nil
}

// UpdateRunArea records the resolved search area and flips the run to running.
func (s *Store) UpdateRunArea(ctx context.Context, runID string, areaID *int64, bbox *model.BBox) error {
	bboxJSON, err := marshalNullable(bbox)
	if err != nil {
		return fmt.Errorf("marshal bbox: %w", err)
	}
	query := `
UPDATE crawl_runs
SET area_id = $1, bbox = $2, status = $3
WHERE id = $4`
	_, err = s.pool.Exec(ctx, query, areaID, bboxJSON, string(model.RunStatusRunning), runID)
	if err != nil {
		return fmt.Errorf("update run area: %w", err)
	}
	return nil
}

// CompleteRun marks the run finished with its final stats.
func (s *Store) CompleteRun(ctx context.Context, runID string, status model.RunStatus, stats model.RunStats, errMsg string, completedAt time.Time) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	query := `
UPDATE crawl_runs
SET status = $1, stats = $2, error_message = $3, completed_at = $4
WHERE id = $5`
	_, err = s.pool.Exec(ctx, query, string(status), statsJSON, errMsg, completedAt, runID)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// GetRun loads a single run or returns ErrNotFound.
func (s *Store) GetRun(ctx context.Context, runID string) (model.CrawlRun, error) {
	query := `
SELECT id, location_query, provider, area_id, bbox, status, stats, started_at, completed_at, error_message
FROM crawl_runs
WHERE id = $1`
	var (
		run       model.CrawlRun
		status    string
		bboxJSON  []byte
		statsJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.LocationQuery,
		&run.Provider,
		&run.AreaID,
		&bboxJSON,
		&status,
		&statsJSON,
		&run.StartedAt,
		&run.CompletedAt,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CrawlRun{}, ErrNotFound
		}
		return model.CrawlRun{}, fmt.Errorf("get run: %w", err)
	}
	run.Status = model.RunStatus(status)
	if len(bboxJSON) > 0 {
		var bbox model.BBox
		if err := json.Unmarshal(bboxJSON, &bbox); err != nil {
			return model.CrawlRun{}, fmt.Errorf("unmarshal bbox: %w", err)
		}
		run.BBox = &bbox
	}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &run.Stats); err != nil {
			return model.CrawlRun{}, fmt.Errorf("unmarshal stats: %w", err)
		}
	}
	return run, nil
}

// UpsertRestaurant inserts the row or replaces its mutable fields when the
// deterministic id already exists. created_at survives updates.
func (s *Store) UpsertRestaurant(ctx context.Context, r model.Restaurant) error {
	if r.ID == "" {
		return fmt.Errorf("restaurant id is required")
	}
	addressJSON, err := json.Marshal(r.Address)
	if err != nil {
		return fmt.Errorf("marshal address: %w", err)
	}
	tagsJSON, err := json.Marshal(r.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	query := `
INSERT INTO ext_restaurants (
	id, run_id, element_type, element_id, name, address, lat, lon, phone, tags,
	website_url, website_effective_url, website_method, website_http_status,
	website_content_type, website_is_social, website_is_valid, website_last_checked_at,
	menu_url, menu_method, menu_http_status, menu_content_type, menu_is_pdf,
	menu_is_valid, menu_last_checked_at, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,
	$11,$12,$13,$14,$15,$16,$17,$18,
	$19,$20,$21,$22,$23,$24,$25,$26,$27
)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	address = EXCLUDED.address,
	lat = EXCLUDED.lat,
	lon = EXCLUDED.lon,
	phone = EXCLUDED.phone,
	tags = EXCLUDED.tags,
	website_url = EXCLUDED.website_url,
	website_effective_url = EXCLUDED.website_effective_url,
	website_method = EXCLUDED.website_method,
	website_http_status = EXCLUDED.website_http_status,
	website_content_type = EXCLUDED.website_content_type,
	website_is_social = EXCLUDED.website_is_social,
	website_is_valid = EXCLUDED.website_is_valid,
	website_last_checked_at = EXCLUDED.website_last_checked_at,
	menu_url = EXCLUDED.menu_url,
	menu_method = EXCLUDED.menu_method,
	menu_http_status = EXCLUDED.menu_http_status,
	menu_content_type = EXCLUDED.menu_content_type,
	menu_is_pdf = EXCLUDED.menu_is_pdf,
	menu_is_valid = EXCLUDED.menu_is_valid,
	menu_last_checked_at = EXCLUDED.menu_last_checked_at,
	updated_at = EXCLUDED.updated_at`
	_, err = s.pool.Exec(ctx, query,
		r.ID, r.RunID, r.ElementType, r.ElementID, r.Name, addressJSON, r.Lat, r.Lon, r.Phone, tagsJSON,
		r.WebsiteURL, r.WebsiteEffectiveURL, r.WebsiteMethod, r.WebsiteHTTPStatus,
		r.WebsiteContentType, r.WebsiteIsSocial, r.WebsiteIsValid, r.WebsiteLastCheckedAt,
		r.MenuURL, r.MenuMethod, r.MenuHTTPStatus, r.MenuContentType, r.MenuIsPDF,
		r.MenuIsValid, r.MenuLastCheckedAt, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert restaurant: %w", err)
	}
	return nil
}

const restaurantColumns = `
id, run_id, element_type, element_id, name, address, lat, lon, phone, tags,
website_url, website_effective_url, website_method, website_http_status,
website_content_type, website_is_social, website_is_valid, website_last_checked_at,
menu_url, menu_method, menu_http_status, menu_content_type, menu_is_pdf,
menu_is_valid, menu_last_checked_at, created_at, updated_at`

// GetRestaurant loads one restaurant row or returns ErrNotFound.
func (s *Store) GetRestaurant(ctx context.Context, id string) (model.Restaurant, error) {
	query := `SELECT ` + restaurantColumns + ` FROM ext_restaurants WHERE id = $1`
	row := s.pool.QueryRow(ctx, query, id)
	r, err := scanRestaurant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Restaurant{}, ErrNotFound
		}
		return model.Restaurant{}, fmt.Errorf("get restaurant: %w", err)
	}
	return r, nil
}

// ListRestaurants returns all rows of one run ordered by name.
func (s *Store) ListRestaurants(ctx context.Context, runID string) ([]model.Restaurant, error) {
	query := `SELECT ` + restaurantColumns + ` FROM ext_restaurants WHERE run_id = $1 ORDER BY name, id`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list restaurants: %w", err)
	}
	defer rows.Close()

	var out []model.Restaurant
	for rows.Next() {
		r, err := scanRestaurant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan restaurant row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list restaurants: %w", err)
	}
	return out, nil
}

// InsertCheck appends one audit entry.
func (s *Store) InsertCheck(ctx context.Context, c model.Check) error {
	query := `
INSERT INTO ext_restaurant_checks (
	restaurant_id, target, candidate_url, method, http_status, content_type,
	effective_url, is_valid, error_message, checked_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := s.pool.Exec(ctx, query,
		c.RestaurantID,
		string(c.Target),
		c.CandidateURL,
		c.Method,
		c.HTTPStatus,
		c.ContentType,
		c.EffectiveURL,
		c.IsValid,
		c.ErrorMessage,
		c.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	return nil
}

func scanRestaurant(row pgx.Row) (model.Restaurant, error) {
	var (
		r           model.Restaurant
		addressJSON []byte
		tagsJSON    []byte
	)
	err := row.Scan(
		&r.ID, &r.RunID, &r.ElementType, &r.ElementID, &r.Name, &addressJSON, &r.Lat, &r.Lon, &r.Phone, &tagsJSON,
		&r.WebsiteURL, &r.WebsiteEffectiveURL, &r.WebsiteMethod, &r.WebsiteHTTPStatus,
		&r.WebsiteContentType, &r.WebsiteIsSocial, &r.WebsiteIsValid, &r.WebsiteLastCheckedAt,
		&r.MenuURL, &r.MenuMethod, &r.MenuHTTPStatus, &r.MenuContentType, &r.MenuIsPDF,
		&r.MenuIsValid, &r.MenuLastCheckedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return model.Restaurant{}, err
	}
	if len(addressJSON) > 0 {
		if err := json.Unmarshal(addressJSON, &r.Address); err != nil {
			return model.Restaurant{}, fmt.Errorf("unmarshal address: %w", err)
		}
	}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &r.Tags); err != nil {
			return model.Restaurant{}, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	return r, nil
}

// marshalNullable keeps a nil bbox as SQL NULL instead of JSON null.
func marshalNullable(bbox *model.BBox) ([]byte, error) {
	if bbox == nil {
		return nil, nil
	}
	return json.Marshal(bbox)
}
