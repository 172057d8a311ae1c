// Package memory provides an in-memory Store for tests and local runs.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/menulytics/sitefinder/internal/model"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store keeps everything in maps behind one mutex.
type Store struct {
	mu          sync.Mutex
	runs        map[string]model.CrawlRun
	restaurants map[string]model.Restaurant
	checks      []model.Check
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		runs:        make(map[string]model.CrawlRun),
		restaurants: make(map[string]model.Restaurant),
	}
}

// CreateRun stores a new run; duplicate ids are rejected.
func (s *Store) CreateRun(_ context.Context, run model.CrawlRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

// UpdateRunArea records the resolved search area and flips the run to running.
func (s *Store) UpdateRunArea(_ context.Context, runID string, areaID *int64, bbox *model.BBox) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return ErrNotFound
	}
	run.AreaID = areaID
	run.BBox = bbox
	run.Status = model.RunStatusRunning
	s.runs[runID] = run
	return nil
}

// CompleteRun marks the run finished with its final stats.
func (s *Store) CompleteRun(_ context.Context, runID string, status model.RunStatus, stats model.RunStats, errMsg string, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return ErrNotFound
	}
	run.Status = status
	run.Stats = stats
	run.ErrorMessage = errMsg
	run.CompletedAt = &completedAt
	s.runs[runID] = run
	return nil
}

// GetRun loads a single run or returns ErrNotFound.
func (s *Store) GetRun(_ context.Context, runID string) (model.CrawlRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return model.CrawlRun{}, ErrNotFound
	}
	return run, nil
}

// UpsertRestaurant inserts or replaces the row, preserving created_at on update.
func (s *Store) UpsertRestaurant(_ context.Context, r model.Restaurant) error {
	if r.ID == "" {
		return fmt.Errorf("restaurant id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.restaurants[r.ID]; ok {
		r.CreatedAt = prev.CreatedAt
	}
	s.restaurants[r.ID] = r
	return nil
}

// GetRestaurant loads one row or returns ErrNotFound.
func (s *Store) GetRestaurant(_ context.Context, id string) (model.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.restaurants[id]
	if !ok {
		return model.Restaurant{}, ErrNotFound
	}
	return r, nil
}

// ListRestaurants returns all rows of one run ordered by name.
func (s *Store) ListRestaurants(_ context.Context, runID string) ([]model.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Restaurant
	for _, r := range s.restaurants {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// InsertCheck appends one audit entry.
func (s *Store) InsertCheck(_ context.Context, c model.Check) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, c)
	return nil
}

// Checks returns a copy of all audit entries, oldest first.
func (s *Store) Checks() []model.Check {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Check, len(s.checks))
	copy(out, s.checks)
	return out
}
