package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/menulytics/sitefinder/internal/model"
)

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	started := time.Unix(1700000000, 0).UTC()

	run := model.CrawlRun{
		ID:            "run-1",
		LocationQuery: "Utrecht, Netherlands",
		Provider:      "osm",
		Status:        model.RunStatusPending,
		StartedAt:     started,
	}
	require.NoError(t, s.CreateRun(ctx, run))
	require.Error(t, s.CreateRun(ctx, run))

	areaID := int64(3600000123)
	require.NoError(t, s.UpdateRunArea(ctx, "run-1", &areaID, &model.BBox{West: 4.9, South: 52.0, East: 5.2, North: 52.2}))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, model.RunStatusRunning, got.Status)
	require.NotNil(t, got.AreaID)
	require.Equal(t, areaID, *got.AreaID)

	done := started.Add(time.Minute)
	stats := model.RunStats{TotalSeen: 3, ValidatedWebsite: 2}
	require.NoError(t, s.CompleteRun(ctx, "run-1", model.RunStatusCompleted, stats, "", done))

	got, err = s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, model.RunStatusCompleted, got.Status)
	require.Equal(t, stats, got.Stats)
	require.NotNil(t, got.CompletedAt)

	_, err = s.GetRun(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertRestaurantPreservesCreatedAt(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	created := time.Unix(1700000000, 0).UTC()

	r := model.Restaurant{
		ID:        model.RestaurantID("run-1", "node", 42),
		RunID:     "run-1",
		Name:      "De Gouden Leeuw",
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, s.UpsertRestaurant(ctx, r))

	r.WebsiteURL = "https://degoudenleeuw.nl"
	r.WebsiteIsValid = true
	r.CreatedAt = created.Add(time.Hour)
	r.UpdatedAt = created.Add(time.Hour)
	require.NoError(t, s.UpsertRestaurant(ctx, r))

	got, err := s.GetRestaurant(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, created, got.CreatedAt)
	require.True(t, got.WebsiteIsValid)

	list, err := s.ListRestaurants(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestUpsertRestaurantRequiresID(t *testing.T) {
	t.Parallel()

	require.Error(t, New().UpsertRestaurant(context.Background(), model.Restaurant{}))
}

func TestListRestaurantsOrdersByName(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	for i, name := range []string{"Zout", "Aroma", "Merlot"} {
		require.NoError(t, s.UpsertRestaurant(ctx, model.Restaurant{
			ID:    model.RestaurantID("run-1", "node", int64(i)),
			RunID: "run-1",
			Name:  name,
		}))
	}

	list, err := s.ListRestaurants(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "Aroma", list[0].Name)
	require.Equal(t, "Merlot", list[1].Name)
	require.Equal(t, "Zout", list[2].Name)
}

func TestInsertCheckAppends(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.InsertCheck(ctx, model.Check{RestaurantID: "a", Target: model.CheckTargetWebsite}))
	require.NoError(t, s.InsertCheck(ctx, model.Check{RestaurantID: "a", Target: model.CheckTargetMenu}))

	checks := s.Checks()
	require.Len(t, checks, 2)
	require.Equal(t, model.CheckTargetWebsite, checks[0].Target)
	require.Equal(t, model.CheckTargetMenu, checks[1].Target)
}
