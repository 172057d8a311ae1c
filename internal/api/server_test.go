package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/menulytics/sitefinder/internal/config"
	"github.com/menulytics/sitefinder/internal/model"
	"github.com/menulytics/sitefinder/internal/store/memory"
)

type stubStarter struct {
	runID    string
	lastQ    string
	startErr error
}

func (s *stubStarter) Start(_ context.Context, locationQuery string) (string, error) {
	s.lastQ = locationQuery
	return s.runID, s.startErr
}

func newTestServer(t *testing.T, starter *stubStarter, st *memory.Store, cfg config.Config) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(starter, st, cfg, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestSubmitRunAccepted(t *testing.T) {
	t.Parallel()

	starter := &stubStarter{runID: "run-1"}
	srv := newTestServer(t, starter, memory.New(), config.Config{})

	body := bytes.NewBufferString(`{"location_query":"Utrecht, Netherlands"}`)
	resp, err := http.Post(srv.URL+"/v1/runs", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var decoded map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.Equal(t, "run-1", decoded["run_id"])
	require.Equal(t, "Utrecht, Netherlands", starter.lastQ)
}

func TestSubmitRunRejectsMissingQuery(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubStarter{}, memory.New(), config.Config{})

	resp, err := http.Post(srv.URL+"/v1/runs", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2, err := http.Post(srv.URL+"/v1/runs", "application/json", bytes.NewBufferString(`not json`))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubStarter{}, memory.New(), config.Config{})

	resp, err := http.Get(srv.URL + "/v1/runs/unknown")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetRunReturnsRun(t *testing.T) {
	t.Parallel()

	st := memory.New()
	started := time.Unix(1700000000, 0).UTC()
	require.NoError(t, st.CreateRun(context.Background(), model.CrawlRun{
		ID:            "run-1",
		LocationQuery: "Utrecht, Netherlands",
		Provider:      "osm",
		Status:        model.RunStatusRunning,
		StartedAt:     started,
	}))
	srv := newTestServer(t, &stubStarter{}, st, config.Config{})

	resp, err := http.Get(srv.URL + "/v1/runs/run-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded struct {
		Run model.CrawlRun `json:"run"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.Equal(t, "run-1", decoded.Run.ID)
	require.Equal(t, model.RunStatusRunning, decoded.Run.Status)
}

func TestListRestaurants(t *testing.T) {
	t.Parallel()

	st := memory.New()
	ctx := context.Background()
	require.NoError(t, st.CreateRun(ctx, model.CrawlRun{ID: "run-1", Status: model.RunStatusCompleted}))
	require.NoError(t, st.UpsertRestaurant(ctx, model.Restaurant{
		ID:             model.RestaurantID("run-1", "node", 42),
		RunID:          "run-1",
		Name:           "De Gouden Leeuw",
		WebsiteURL:     "https://degoudenleeuw.nl",
		WebsiteIsValid: true,
	}))
	srv := newTestServer(t, &stubStarter{}, st, config.Config{})

	resp, err := http.Get(srv.URL + "/v1/runs/run-1/restaurants")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded struct {
		RunID       string             `json:"run_id"`
		Restaurants []model.Restaurant `json:"restaurants"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.Equal(t, "run-1", decoded.RunID)
	require.Len(t, decoded.Restaurants, 1)
	require.Equal(t, "De Gouden Leeuw", decoded.Restaurants[0].Name)

	// Unknown runs 404 rather than returning an empty list.
	resp2, err := http.Get(srv.URL + "/v1/runs/unknown/restaurants")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "secret"
	srv := newTestServer(t, &stubStarter{runID: "run-1"}, memory.New(), cfg)

	resp, err := http.Get(srv.URL + "/v1/runs/unknown")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/runs/unknown", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "secret")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubStarter{}, memory.New(), config.Config{})

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reqID := resp.Header.Get("X-Request-ID")
	require.NotEmpty(t, reqID)
}
