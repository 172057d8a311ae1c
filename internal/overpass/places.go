// Package overpass enumerates candidate restaurants from an
// Overpass-compatible place source.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/menulytics/sitefinder/internal/geo"
	"github.com/menulytics/sitefinder/internal/metrics"
	"github.com/menulytics/sitefinder/internal/model"
)

// Fetcher queries the Overpass API for restaurant elements.
type Fetcher struct {
	baseURL   string
	userAgent string
	client    *http.Client
	logger    *zap.Logger
}

// NewFetcher constructs a Fetcher. Overpass queries can be slow, so the
// client timeout is tripled relative to the per-candidate timeout.
func NewFetcher(baseURL, userAgent string, timeout time.Duration, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		baseURL:   baseURL,
		userAgent: userAgent,
		client:    &http.Client{Timeout: 3 * timeout},
		logger:    logger,
	}
}

type overpassElement struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"center,omitempty"`
	Tags map[string]string `json:"tags"`
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

// Fetch enumerates amenity=restaurant elements inside the resolved area.
func (f *Fetcher) Fetch(ctx context.Context, area geo.Area) ([]model.Place, error) {
	query := buildQuery(area)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL,
		strings.NewReader(url.Values{"data": {query}}.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build overpass request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.client.Do(req)
	if err != nil {
		metrics.ObserveOutboundRequest("overpass", 0)
		return nil, &model.UpstreamError{Service: "overpass", Err: err}
	}
	defer resp.Body.Close()
	metrics.ObserveOutboundRequest("overpass", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &model.UpstreamError{Service: "overpass", Status: resp.StatusCode}
	}

	var decoded overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &model.UpstreamError{Service: "overpass", Err: fmt.Errorf("decode response: %w", err)}
	}

	places := make([]model.Place, 0, len(decoded.Elements))
	for _, el := range decoded.Elements {
		places = append(places, normalizeElement(el))
	}
	f.logger.Info("places enumerated", zap.Int("count", len(places)))
	return places, nil
}

// buildQuery prefers the area scope; only bbox-backed areas fall back to a
// bounded query.
func buildQuery(area geo.Area) string {
	if area.AreaID != nil {
		return fmt.Sprintf(
			`[out:json][timeout:60];area(%d)->.a;nwr["amenity"="restaurant"](area.a);out center tags;`,
			*area.AreaID)
	}
	b := area.BBox
	return fmt.Sprintf(
		`[out:json][timeout:60];nwr["amenity"="restaurant"](%f,%f,%f,%f);out center tags;`,
		b.South, b.West, b.North, b.East)
}

func normalizeElement(el overpassElement) model.Place {
	lat, lon := el.Lat, el.Lon
	if el.Center != nil {
		lat, lon = el.Center.Lat, el.Center.Lon
	}
	tags := el.Tags
	if tags == nil {
		tags = map[string]string{}
	}
	phone := tags["phone"]
	if phone == "" {
		phone = tags["contact:phone"]
	}
	return model.Place{
		ElementType: el.Type,
		ElementID:   el.ID,
		Name:        tags["name"],
		Lat:         lat,
		Lon:         lon,
		Phone:       phone,
		Tags:        tags,
		Address: model.Address{
			Street:      tags["addr:street"],
			Housenumber: tags["addr:housenumber"],
			Postcode:    tags["addr:postcode"],
			City:        tags["addr:city"],
			Country:     tags["addr:country"],
		},
	}
}
