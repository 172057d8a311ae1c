// Package model defines core types shared across subsystems.
package model

import (
	"fmt"
	"time"
)

// RunStatus represents the lifecycle state of a crawl run.
type RunStatus string

// Run status values persisted in crawl_runs.
const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// BBox is a bounding box ordered west, south, east, north.
type BBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// RunStats aggregates per-run coverage counters.
type RunStats struct {
	TotalSeen             int `json:"total_seen"`
	WithOSMWebsite        int `json:"with_osm_website"`
	ValidatedWebsite      int `json:"validated_website"`
	GoogleFallbackSuccess int `json:"google_fallback_success"`
	WithMenuURL           int `json:"with_menu_url"`
}

// CrawlRun represents one bounded execution of the ingestion pipeline.
type CrawlRun struct {
	ID            string     `json:"id"`
	LocationQuery string     `json:"location_query"`
	Provider      string     `json:"provider"`
	AreaID        *int64     `json:"area_id,omitempty"`
	BBox          *BBox      `json:"bbox,omitempty"`
	Status        RunStatus  `json:"status"`
	Stats         RunStats   `json:"stats"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

// Address holds the structured address tags of an OSM place.
type Address struct {
	Street      string `json:"street,omitempty"`
	Housenumber string `json:"housenumber,omitempty"`
	Postcode    string `json:"postcode,omitempty"`
	City        string `json:"city,omitempty"`
	Country     string `json:"country,omitempty"`
}

// Place is a raw restaurant candidate enumerated from the place source.
type Place struct {
	ElementType string            `json:"element_type"`
	ElementID   int64             `json:"element_id"`
	Name        string            `json:"name"`
	Lat         float64           `json:"lat"`
	Lon         float64           `json:"lon"`
	Phone       string            `json:"phone,omitempty"`
	Address     Address           `json:"address"`
	Tags        map[string]string `json:"tags"`
}

// RestaurantID derives the deterministic row key for a place within a run.
// Re-processing the same element in the same run hits the same row.
func RestaurantID(runID, elementType string, elementID int64) string {
	return fmt.Sprintf("%s:%s:%d", runID, elementType, elementID)
}

// Restaurant is the persisted per-place outcome row (ext_restaurants).
type Restaurant struct {
	ID          string            `json:"id"`
	RunID       string            `json:"run_id"`
	ElementType string            `json:"element_type"`
	ElementID   int64             `json:"element_id"`
	Name        string            `json:"name"`
	Address     Address           `json:"address"`
	Lat         float64           `json:"lat"`
	Lon         float64           `json:"lon"`
	Phone       string            `json:"phone,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`

	WebsiteURL             string     `json:"website_url,omitempty"`
	WebsiteEffectiveURL    string     `json:"website_effective_url,omitempty"`
	WebsiteMethod          string     `json:"website_method,omitempty"`
	WebsiteHTTPStatus      int        `json:"website_http_status,omitempty"`
	WebsiteContentType     string     `json:"website_content_type,omitempty"`
	WebsiteIsSocial        bool       `json:"website_is_social"`
	WebsiteIsValid         bool       `json:"website_is_valid"`
	WebsiteLastCheckedAt   *time.Time `json:"website_last_checked_at,omitempty"`

	MenuURL           string     `json:"menu_url,omitempty"`
	MenuMethod        string     `json:"menu_method,omitempty"`
	MenuHTTPStatus    int        `json:"menu_http_status,omitempty"`
	MenuContentType   string     `json:"menu_content_type,omitempty"`
	MenuIsPDF         bool       `json:"menu_is_pdf"`
	MenuIsValid       bool       `json:"menu_is_valid"`
	MenuLastCheckedAt *time.Time `json:"menu_last_checked_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CheckTarget identifies which artifact a validation attempt was for.
type CheckTarget string

// Check targets persisted in ext_restaurant_checks.
const (
	CheckTargetWebsite CheckTarget = "website"
	CheckTargetMenu    CheckTarget = "menu"
)

// Discovery method values recorded on accepted websites and menus.
const (
	MethodOSM        = "osm"
	MethodHeuristic  = "heuristic"
	MethodReuse      = "reuse"
	MethodDuckDuckGo = "duckduckgo"
	MethodGoogle     = "google"
	MethodHeader     = "header"
	MethodNav        = "nav"
	MethodFooter     = "footer"
	MethodLinkText   = "link_text"
	MethodSitemap    = "sitemap"
	MethodSlug       = "slug"
)

// Check is one append-only audit entry per validation attempt.
type Check struct {
	RestaurantID string      `json:"restaurant_id"`
	Target       CheckTarget `json:"target"`
	CandidateURL string      `json:"candidate_url"`
	Method       string      `json:"method"`
	HTTPStatus   int         `json:"http_status,omitempty"`
	ContentType  string      `json:"content_type,omitempty"`
	EffectiveURL string      `json:"effective_url,omitempty"`
	IsValid      bool        `json:"is_valid"`
	ErrorMessage string      `json:"error_message,omitempty"`
	CheckedAt    time.Time   `json:"checked_at"`
}

// Candidate is an unvalidated URL proposed by a discovery strategy.
type Candidate struct {
	URL      string `json:"url"`
	Source   string `json:"source"`
	IsSocial bool   `json:"is_social"`
}

// ValidationResult is the outcome of probing one candidate URL.
// Network failures land in ErrorMessage with IsValid false; they are a
// normal outcome, not an error return.
type ValidationResult struct {
	CandidateURL string `json:"candidate_url"`
	EffectiveURL string `json:"effective_url,omitempty"`
	HTTPStatus   int    `json:"http_status,omitempty"`
	ContentType  string `json:"content_type,omitempty"`
	IsValid      bool   `json:"is_valid"`
	IsSocial     bool   `json:"is_social"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// MenuResult is the outcome of the menu discovery cascade.
type MenuResult struct {
	URL         string `json:"url,omitempty"`
	Method      string `json:"method,omitempty"`
	HTTPStatus  int    `json:"http_status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	IsPDF       bool   `json:"is_pdf"`
	IsValid     bool   `json:"is_valid"`
}

// Identity is the expected business identity a candidate page is scored against.
type Identity struct {
	Name        string
	Street      string
	Housenumber string
	Postcode    string
	City        string
	Phone       string
}

// IdentityOf builds the verification identity for a place.
func IdentityOf(p Place) Identity {
	return Identity{
		Name:        p.Name,
		Street:      p.Address.Street,
		Housenumber: p.Address.Housenumber,
		Postcode:    p.Address.Postcode,
		City:        p.Address.City,
		Phone:       p.Phone,
	}
}
