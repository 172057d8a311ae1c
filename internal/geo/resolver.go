// Package geo resolves a free-form location query to an Overpass area or
// bounding box via a Nominatim-compatible geocoder.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/menulytics/sitefinder/internal/metrics"
	"github.com/menulytics/sitefinder/internal/model"
)

// ErrGeocodeNotFound is returned when the geocoder has no result for the query.
var ErrGeocodeNotFound = errors.New("geocode: no results for query")

// Overpass derives area ids for relation-backed regions by adding this
// offset to the OSM relation id.
const overpassAreaOffset = int64(3600000000)

// Area is the resolved scope of a run: an Overpass area id when the top
// geocoder hit is a relation, always with a bounding box.
type Area struct {
	AreaID *int64
	BBox   model.BBox
}

// Resolver queries a Nominatim-compatible geocoding endpoint.
type Resolver struct {
	baseURL   string
	userAgent string
	client    *http.Client
	logger    *zap.Logger
}

// NewResolver constructs a Resolver. timeout bounds each lookup.
func NewResolver(baseURL, userAgent string, timeout time.Duration, logger *zap.Logger) *Resolver {
	return &Resolver{
		baseURL:   baseURL,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

type nominatimResult struct {
	OSMType     string    `json:"osm_type"`
	OSMID       int64     `json:"osm_id"`
	DisplayName string    `json:"display_name"`
	BoundingBox []string  `json:"boundingbox"`
}

// Resolve looks up locationQuery and returns the top result's area scope.
func (r *Resolver) Resolve(ctx context.Context, locationQuery string) (Area, error) {
	endpoint := fmt.Sprintf("%s/search?q=%s&format=json&limit=1",
		r.baseURL, url.QueryEscape(locationQuery))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Area{}, fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		metrics.ObserveOutboundRequest("geocode", 0)
		return Area{}, &model.UpstreamError{Service: "geocoder", Err: err}
	}
	defer resp.Body.Close()
	metrics.ObserveOutboundRequest("geocode", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Area{}, &model.UpstreamError{Service: "geocoder", Status: resp.StatusCode}
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Area{}, &model.UpstreamError{Service: "geocoder", Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(results) == 0 {
		return Area{}, ErrGeocodeNotFound
	}

	top := results[0]
	bbox, err := reorderBBox(top.BoundingBox)
	if err != nil {
		return Area{}, &model.UpstreamError{Service: "geocoder", Err: err}
	}

	area := Area{BBox: bbox}
	if top.OSMType == "relation" {
		id := overpassAreaOffset + top.OSMID
		area.AreaID = &id
	}

	r.logger.Debug("geocode resolved",
		zap.String("query", locationQuery),
		zap.String("display_name", top.DisplayName),
		zap.Bool("has_area", area.AreaID != nil),
	)
	return area, nil
}

// reorderBBox converts Nominatim's [south, north, west, east] strings into
// the (west, south, east, north) box the rest of the pipeline uses.
func reorderBBox(raw []string) (model.BBox, error) {
	if len(raw) != 4 {
		return model.BBox{}, fmt.Errorf("boundingbox has %d entries, want 4", len(raw))
	}
	vals := make([]float64, 4)
	for i, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.BBox{}, fmt.Errorf("boundingbox entry %q: %w", s, err)
		}
		vals[i] = v
	}
	return model.BBox{South: vals[0], North: vals[1], West: vals[2], East: vals[3]}, nil
}
