package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/menulytics/sitefinder/internal/events"
	"github.com/menulytics/sitefinder/internal/fetch"
	"github.com/menulytics/sitefinder/internal/geo"
	"github.com/menulytics/sitefinder/internal/menu"
	"github.com/menulytics/sitefinder/internal/model"
	"github.com/menulytics/sitefinder/internal/overpass"
	"github.com/menulytics/sitefinder/internal/reuse"
	"github.com/menulytics/sitefinder/internal/search"
	"github.com/menulytics/sitefinder/internal/snapshot"
	"github.com/menulytics/sitefinder/internal/store/memory"
	"github.com/menulytics/sitefinder/internal/urlcheck"
	"github.com/menulytics/sitefinder/internal/verify"
)

const testUA = "sitefinder-test"

// newHTMLServer serves per-path HTML pages and 404s everything else.
func newHTMLServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPipelineEndToEnd(t *testing.T) {
	// Aurora: stated website tag plus a header menu link.
	siteA := newHTMLServer(t, map[string]string{
		"/": `<html><head><title>Bistro Aurora Utrecht</title></head><body>
			<header><a href="/menukaart">Menukaart</a></header>
			<p>Bistro Aurora, Domplein 1, 3512 JC Utrecht</p>
		</body></html>`,
		"/menukaart": `<html><body>voorgerechten en hoofdgerechten</body></html>`,
	})

	// Bella: no stated website; found via the search fallback. The page
	// carries enough identity signal to clear the acceptance threshold.
	siteB := newHTMLServer(t, map[string]string{
		"/": `<html><head><title>Trattoria Bella</title></head><body>
			<h1>Trattoria Bella</h1>
			<p>Bellastraat 12, 3511 AB Utrecht</p>
		</body></html>`,
	})

	geoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"osm_type":"relation","osm_id":123,
			"boundingbox":["52.0","52.2","4.9","5.2"],"display_name":"Utrecht, Nederland"}]`))
	}))
	t.Cleanup(geoSrv.Close)

	ovpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"elements":[
			{"type":"node","id":1,"lat":52.09,"lon":5.12,
			 "tags":{"name":"Bistro Aurora","amenity":"restaurant","website":%q,"addr:city":"Utrecht"}},
			{"type":"node","id":2,"lat":52.08,"lon":5.11,
			 "tags":{"name":"Trattoria Bella","amenity":"restaurant","addr:city":"Utrecht","addr:street":"Bellastraat"}},
			{"type":"node","id":3,"lat":52.07,"lon":5.10,
			 "tags":{"name":"Cafe Nergens","amenity":"restaurant","addr:city":"Utrecht"}}
		]}`, siteA.URL+"/")
	}))
	t.Cleanup(ovpSrv.Close)

	// Search results always point at Bella's site; only Bella's own
	// identity should accept it.
	ddgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><body>
			<div class="result"><a class="result__a" href="%s/">Trattoria Bella</a></div>
		</body></html>`, siteB.URL)
	}))
	t.Cleanup(ddgSrv.Close)

	logger := zap.NewNop()
	timeout := 5 * time.Second
	fetcher := fetch.New(fetch.Config{UserAgent: testUA, Timeout: timeout}, nil, logger)

	st := memory.New()
	reuseCache := reuse.NewMemory()
	snaps := snapshot.NewMemory()
	pub := events.NewMemory()

	pipe := New(Config{
		Concurrency:    3,
		MinScore:       40,
		TLDs:           []string{".invalid"},
		MaxGuessProbes: 2,
		SnapshotPrefix: "homepages",
		EventsTopic:    "run-events",
	}, Deps{
		Store:      st,
		Reuse:      reuseCache,
		Snapshots:  snaps,
		Publisher:  pub,
		Geo:        geo.NewResolver(geoSrv.URL, testUA, timeout, logger),
		Places:     overpass.NewFetcher(ovpSrv.URL, testUA, timeout, logger),
		Validator:  urlcheck.NewValidator(timeout, nil, testUA, logger),
		Verifier:   verify.New(fetcher, logger),
		DuckDuckGo: search.NewDuckDuckGo(ddgSrv.URL+"/html/", search.NewRateGate(1000), testUA, timeout, 5, logger),
		Menus:      menu.New(fetcher, timeout, nil, testUA, logger),
		Logger:     logger,
	})

	run, err := pipe.Run(context.Background(), "Utrecht, Netherlands")
	require.NoError(t, err)
	require.Equal(t, model.RunStatusCompleted, run.Status)
	require.NotNil(t, run.AreaID)
	require.Equal(t, int64(3600000123), *run.AreaID)

	require.Equal(t, 3, run.Stats.TotalSeen)
	require.Equal(t, 1, run.Stats.WithOSMWebsite)
	require.Equal(t, 2, run.Stats.ValidatedWebsite)
	require.Equal(t, 0, run.Stats.GoogleFallbackSuccess)
	require.Equal(t, 1, run.Stats.WithMenuURL)

	ctx := context.Background()

	aurora, err := st.GetRestaurant(ctx, model.RestaurantID(run.ID, "node", 1))
	require.NoError(t, err)
	require.True(t, aurora.WebsiteIsValid)
	require.Equal(t, model.MethodOSM, aurora.WebsiteMethod)
	require.True(t, aurora.MenuIsValid)
	require.Equal(t, model.MethodHeader, aurora.MenuMethod)
	require.Contains(t, aurora.MenuURL, "/menukaart")

	bella, err := st.GetRestaurant(ctx, model.RestaurantID(run.ID, "node", 2))
	require.NoError(t, err)
	require.True(t, bella.WebsiteIsValid)
	require.Equal(t, model.MethodDuckDuckGo, bella.WebsiteMethod)
	require.False(t, bella.MenuIsValid)

	nergens, err := st.GetRestaurant(ctx, model.RestaurantID(run.ID, "node", 3))
	require.NoError(t, err)
	require.False(t, nergens.WebsiteIsValid)
	require.Empty(t, nergens.WebsiteMethod)

	// Accepted homepages are archived and remembered for reuse.
	cached, ok, err := reuseCache.Get(ctx, "Trattoria Bella", "Utrecht")
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, cached, siteB.URL)

	_, ok = snaps.Get(fmt.Sprintf("homepages/%s/node-2.html", run.ID))
	require.True(t, ok)

	// Every validation attempt leaves an audit row.
	checks := st.Checks()
	require.NotEmpty(t, checks)
	var osmChecks, ddgChecks, menuChecks int
	for _, c := range checks {
		switch {
		case c.Target == model.CheckTargetWebsite && c.Method == model.MethodOSM:
			osmChecks++
		case c.Target == model.CheckTargetWebsite && c.Method == model.MethodDuckDuckGo:
			ddgChecks++
		case c.Target == model.CheckTargetMenu:
			menuChecks++
		}
	}
	require.Equal(t, 1, osmChecks)
	require.GreaterOrEqual(t, ddgChecks, 1)
	require.Equal(t, 2, menuChecks)

	// Completion is announced once.
	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "run-events", msgs[0].Topic)
	payload := msgs[0].Payload.(events.RunCompleted)
	require.Equal(t, run.ID, payload.RunID)
	require.Equal(t, 3, payload.TotalSeen)
}

func newGeoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"osm_type":"relation","osm_id":123,
			"boundingbox":["52.0","52.2","4.9","5.2"],"display_name":"Utrecht, Nederland"}]`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newOverpassServer(t *testing.T, elements string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"elements":[` + elements + `]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPipelineReuseAcceptsCachedWebsite(t *testing.T) {
	t.Parallel()

	// The cached site was validated when it entered the cache; its server
	// being gone by now must not matter.
	gone := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	cachedURL := gone.URL + "/"
	gone.Close()

	geoSrv := newGeoServer(t)
	ovpSrv := newOverpassServer(t, `{"type":"node","id":1,"lat":52.09,"lon":5.12,
		"tags":{"name":"Bistro Aurora","amenity":"restaurant","addr:city":"Utrecht"}}`)

	logger := zap.NewNop()
	timeout := 2 * time.Second
	fetcher := fetch.New(fetch.Config{UserAgent: testUA, Timeout: timeout}, nil, logger)

	st := memory.New()
	reuseCache := reuse.NewMemory()
	require.NoError(t, reuseCache.Put(context.Background(), "Bistro Aurora", "Utrecht", cachedURL))

	pipe := New(Config{MinScore: 40, TLDs: []string{".invalid"}, MaxGuessProbes: 1}, Deps{
		Store:     st,
		Reuse:     reuseCache,
		Geo:       geo.NewResolver(geoSrv.URL, testUA, timeout, logger),
		Places:    overpass.NewFetcher(ovpSrv.URL, testUA, timeout, logger),
		Validator: urlcheck.NewValidator(timeout, nil, testUA, logger),
		Verifier:  verify.New(fetcher, logger),
		Menus:     menu.New(fetcher, timeout, nil, testUA, logger),
		Logger:    logger,
	})

	run, err := pipe.Run(context.Background(), "Utrecht, Netherlands")
	require.NoError(t, err)
	require.Equal(t, model.RunStatusCompleted, run.Status)
	require.Equal(t, 1, run.Stats.ValidatedWebsite)

	row, err := st.GetRestaurant(context.Background(), model.RestaurantID(run.ID, "node", 1))
	require.NoError(t, err)
	require.True(t, row.WebsiteIsValid)
	require.Equal(t, model.MethodReuse, row.WebsiteMethod)
	require.Equal(t, cachedURL, row.WebsiteURL)
	require.False(t, row.MenuIsValid)

	var reuseChecks int
	for _, c := range st.Checks() {
		if c.Target == model.CheckTargetWebsite && c.Method == model.MethodReuse {
			require.True(t, c.IsValid)
			reuseChecks++
		}
	}
	require.Equal(t, 1, reuseChecks)
}

// rewriteTransport resolves every requested host to one test server,
// standing in for DNS when probing synthesized domains.
type rewriteTransport struct {
	host string
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = "http"
	r.URL.Host = t.host
	return http.DefaultTransport.RoundTrip(r)
}

func TestPipelineHeuristicGuessAcceptance(t *testing.T) {
	t.Parallel()

	site := newHTMLServer(t, map[string]string{
		"/": `<html><head><title>Kota Radja</title></head><body>
			<h1>Kota Radja</h1>
			<p>Radjastraat 7, 3512 KR Utrecht</p>
		</body></html>`,
	})
	transport := rewriteTransport{host: strings.TrimPrefix(site.URL, "http://")}

	geoSrv := newGeoServer(t)
	ovpSrv := newOverpassServer(t, `{"type":"node","id":1,"lat":52.09,"lon":5.12,
		"tags":{"name":"Kota Radja","amenity":"restaurant","addr:city":"Utrecht",
		"addr:street":"Radjastraat","addr:housenumber":"7","addr:postcode":"3512 KR"}}`)

	logger := zap.NewNop()
	timeout := 2 * time.Second
	fetcher := fetch.New(fetch.Config{UserAgent: testUA, Timeout: timeout, Transport: transport}, nil, logger)
	client := &http.Client{Timeout: timeout, Transport: transport}

	st := memory.New()
	pipe := New(Config{MinScore: 40, TLDs: []string{".invalid"}, MaxGuessProbes: 2}, Deps{
		Store:     st,
		Geo:       geo.NewResolver(geoSrv.URL, testUA, timeout, logger),
		Places:    overpass.NewFetcher(ovpSrv.URL, testUA, timeout, logger),
		Validator: urlcheck.NewValidatorWithClient(client, nil, testUA, logger),
		Verifier:  verify.New(fetcher, logger),
		Menus:     menu.New(fetcher, timeout, nil, testUA, logger),
		Logger:    logger,
	})

	run, err := pipe.Run(context.Background(), "Utrecht, Netherlands")
	require.NoError(t, err)
	require.Equal(t, model.RunStatusCompleted, run.Status)
	require.Equal(t, 0, run.Stats.WithOSMWebsite)
	require.Equal(t, 1, run.Stats.ValidatedWebsite)

	row, err := st.GetRestaurant(context.Background(), model.RestaurantID(run.ID, "node", 1))
	require.NoError(t, err)
	require.True(t, row.WebsiteIsValid)
	require.Equal(t, model.MethodHeuristic, row.WebsiteMethod)
	require.Equal(t, "https://kotaradja.invalid", row.WebsiteURL)
}

func TestNewClampsConcurrency(t *testing.T) {
	t.Parallel()

	pipe := New(Config{Concurrency: 64}, Deps{Store: memory.New(), Logger: zap.NewNop()})
	require.Equal(t, maxConcurrency, pipe.cfg.Concurrency)

	pipe = New(Config{}, Deps{Store: memory.New(), Logger: zap.NewNop()})
	require.Equal(t, defaultConcurrency, pipe.cfg.Concurrency)
}

func TestPipelineGeocodeFailureFailsRun(t *testing.T) {
	t.Parallel()

	geoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(geoSrv.Close)

	logger := zap.NewNop()
	st := memory.New()
	pipe := New(Config{MinScore: 40}, Deps{
		Store:     st,
		Geo:       geo.NewResolver(geoSrv.URL, testUA, time.Second, logger),
		Places:    overpass.NewFetcher("http://127.0.0.1:0", testUA, time.Second, logger),
		Validator: urlcheck.NewValidator(time.Second, nil, testUA, logger),
		Logger:    logger,
	})

	run, err := pipe.Run(context.Background(), "Nowhere, Nowhereland")
	require.NoError(t, err)
	require.Equal(t, model.RunStatusFailed, run.Status)
	require.NotEmpty(t, run.ErrorMessage)
	require.NotNil(t, run.CompletedAt)
}

func TestPipelineRequiresLocation(t *testing.T) {
	t.Parallel()

	pipe := New(Config{}, Deps{Store: memory.New(), Logger: zap.NewNop()})
	_, err := pipe.Run(context.Background(), "")
	require.Error(t, err)
}
