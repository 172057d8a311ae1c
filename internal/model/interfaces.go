package model

import (
	"context"
	"time"
)

// Store persists runs, restaurant rows, and check entries.
type Store interface {
	CreateRun(ctx context.Context, run CrawlRun) error
	UpdateRunArea(ctx context.Context, runID string, areaID *int64, bbox *BBox) error
	CompleteRun(ctx context.Context, runID string, status RunStatus, stats RunStats, errMsg string, completedAt time.Time) error
	GetRun(ctx context.Context, runID string) (CrawlRun, error)

	// UpsertRestaurant inserts the row or updates it in place when the
	// deterministic id already exists.
	UpsertRestaurant(ctx context.Context, r Restaurant) error
	GetRestaurant(ctx context.Context, id string) (Restaurant, error)
	ListRestaurants(ctx context.Context, runID string) ([]Restaurant, error)

	// InsertCheck appends an audit entry. Checks are never updated.
	InsertCheck(ctx context.Context, c Check) error
}

// ReuseCache remembers validated websites by business name and city so
// later places (and later runs, for a shared backend) can skip rediscovery.
type ReuseCache interface {
	Get(ctx context.Context, name, city string) (string, bool, error)
	Put(ctx context.Context, name, city, websiteURL string) error
}

// SnapshotStore archives raw page bodies and returns a storage URI.
type SnapshotStore interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes run-completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
