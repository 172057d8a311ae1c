package overpass

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/menulytics/sitefinder/internal/geo"
	"github.com/menulytics/sitefinder/internal/model"
)

func TestFetchAreaQuery(t *testing.T) {
	t.Parallel()

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		gotQuery = string(body)
		_, _ = w.Write([]byte(`{"elements": [
			{"type": "node", "id": 101, "lat": 52.37, "lon": 4.89,
			 "tags": {"name": "De Gouden Leeuw", "amenity": "restaurant",
			          "phone": "+31201234567",
			          "addr:street": "Damstraat", "addr:housenumber": "12",
			          "addr:postcode": "1012 JM", "addr:city": "Amsterdam",
			          "website": "https://degoudenleeuw.nl"}},
			{"type": "way", "id": 202,
			 "center": {"lat": 52.36, "lon": 4.88},
			 "tags": {"name": "Bistro Zonder", "amenity": "restaurant",
			          "contact:phone": "+31207654321"}}
		]}`))
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(srv.URL, "sitefinder-test", time.Second, zap.NewNop())
	areaID := int64(3600271110)
	places, err := f.Fetch(context.Background(), geo.Area{AreaID: &areaID})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if !strings.Contains(gotQuery, "area%283600271110%29") && !strings.Contains(gotQuery, "area(3600271110)") {
		t.Fatalf("query does not scope to area: %q", gotQuery)
	}
	if len(places) != 2 {
		t.Fatalf("got %d places", len(places))
	}

	first := places[0]
	if first.ElementType != "node" || first.ElementID != 101 {
		t.Fatalf("first element = %s/%d", first.ElementType, first.ElementID)
	}
	if first.Name != "De Gouden Leeuw" || first.Phone != "+31201234567" {
		t.Fatalf("first identity = %q / %q", first.Name, first.Phone)
	}
	if first.Address.Street != "Damstraat" || first.Address.Housenumber != "12" {
		t.Fatalf("first address = %+v", first.Address)
	}

	second := places[1]
	if second.Lat != 52.36 || second.Lon != 4.88 {
		t.Fatalf("way center not used: %v,%v", second.Lat, second.Lon)
	}
	if second.Phone != "+31207654321" {
		t.Fatalf("contact:phone fallback not applied: %q", second.Phone)
	}
}

func TestFetchBBoxQuery(t *testing.T) {
	t.Parallel()

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		gotQuery = string(body)
		_, _ = w.Write([]byte(`{"elements": []}`))
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(srv.URL, "sitefinder-test", time.Second, zap.NewNop())
	_, err := f.Fetch(context.Background(), geo.Area{
		BBox: model.BBox{West: 4.0, South: 52.0, East: 5.0, North: 53.0},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(gotQuery, "52.0") {
		t.Fatalf("bbox not in query: %q", gotQuery)
	}
	if strings.Contains(gotQuery, "area(") {
		t.Fatalf("bbox query must not reference an area: %q", gotQuery)
	}
}

func TestFetchUpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(srv.URL, "sitefinder-test", time.Second, zap.NewNop())
	_, err := f.Fetch(context.Background(), geo.Area{})
	var upstream *model.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
}
