// Package verify scores candidate pages against a known restaurant identity.
//
// Domain guessing and search results are unreliable; a page must textually
// corroborate the expected identity before it is accepted.
package verify

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/menulytics/sitefinder/internal/fetch"
	"github.com/menulytics/sitefinder/internal/model"
	"github.com/menulytics/sitefinder/internal/textutil"
	"github.com/menulytics/sitefinder/internal/urlcheck"
)

// Score weights. Additive, clamped to [0,100].
const (
	weightHostFullName   = 30
	weightHostCoreToken  = 22
	weightTitleOverlap   = 20
	weightTitleCoreToken = 15
	weightStreetMatch    = 25
	weightPostcodeShape  = 15
	weightCityMatch      = 10
	weightPhoneMatch     = 10

	penaltyAggregatorHost  = 60
	penaltyNegativeKeyword = 20

	titleOverlapThreshold = 0.6
	minPhoneDigits        = 6
)

// aggregatorHosts are directories, marketplaces, and review sites that are
// never an official restaurant website. Subdomains match too.
var aggregatorHosts = []string{
	"tripadvisor.com",
	"tripadvisor.nl",
	"thefork.com",
	"thefork.nl",
	"iens.nl",
	"yelp.com",
	"yelp.nl",
	"ubereats.com",
	"thuisbezorgd.nl",
	"takeaway.com",
	"deliveroo.nl",
	"just-eat.com",
	"restaurantgids.nl",
	"eet.nu",
	"opentable.com",
	"opentable.nl",
	"google.com",
	"maps.google.com",
	"booking.com",
	"groupon.nl",
	"foursquare.com",
	"zomato.com",
}

// negativeKeywords in visible text suggest a directory or social profile
// rather than the restaurant's own site.
var negativeKeywords = []string{
	"tripadvisor",
	"thuisbezorgd",
	"ubereats",
	"deliveroo",
	"reviews van gasten",
	"bekijk alle restaurants",
	"marketplace",
	"vergelijk restaurants",
}

// dutchPostcode matches the NL "1234 AB" shape; genericPostcode catches
// other European formats loosely.
var (
	dutchPostcode   = regexp.MustCompile(`\b[1-9][0-9]{3}\s?[A-Za-z]{2}\b`)
	genericPostcode = regexp.MustCompile(`\b[0-9]{4,5}\b`)
)

// IsAggregatorHost reports whether rawURL belongs to a known directory,
// marketplace, or review platform.
func IsAggregatorHost(rawURL string) bool {
	host := urlcheck.Hostname(rawURL)
	if host == "" {
		return false
	}
	for _, agg := range aggregatorHosts {
		if host == agg || strings.HasSuffix(host, "."+agg) {
			return true
		}
	}
	return false
}

// HTMLResult is the outcome of fetching a candidate page for verification.
type HTMLResult struct {
	HTML         string
	Status       int
	ContentType  string
	EffectiveURL string
	Err          error
}

// Verifier fetches candidate pages and computes identity-match scores.
type Verifier struct {
	fetcher *fetch.Fetcher
	logger  *zap.Logger
}

// New constructs a Verifier on the shared page fetcher.
func New(fetcher *fetch.Fetcher, logger *zap.Logger) *Verifier {
	return &Verifier{fetcher: fetcher, logger: logger}
}

// FetchHTML retrieves rawURL and returns its HTML. Non-HTML content types
// yield an empty HTML string with the metadata still populated.
func (v *Verifier) FetchHTML(ctx context.Context, rawURL string) HTMLResult {
	page, err := v.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return HTMLResult{Err: err}
	}
	res := HTMLResult{
		Status:       page.StatusCode,
		ContentType:  page.ContentType,
		EffectiveURL: page.FinalURL,
	}
	if urlcheck.IsHTMLLike(page.ContentType) || looksLikeHTML(page.Body) {
		res.HTML = string(page.Body)
	}
	return res
}

func looksLikeHTML(body []byte) bool {
	head := body
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.Contains(bytes.ToLower(head), []byte("<html"))
}

// MatchScore scores a candidate page at rawURL against the expected
// identity, returning 0..100. Higher means stronger textual corroboration.
func (v *Verifier) MatchScore(rawURL, html string, identity model.Identity) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		v.logger.Debug("unparsable candidate page", zap.String("url", rawURL), zap.Error(err))
		return 0
	}

	host := urlcheck.Hostname(rawURL)
	bodyText := textutil.Fold(doc.Find("body").Text())
	title := doc.Find("title").Text()
	h1 := doc.Find("h1").Text()
	titleAndH1 := title + " " + h1

	score := 0

	compactName := textutil.Compact(identity.Name)
	coreTokens := textutil.CoreTokens(identity.Name)
	switch {
	case compactName != "" && strings.Contains(host, compactName):
		score += weightHostFullName
	case hostContainsToken(host, coreTokens):
		score += weightHostCoreToken
	}

	if textutil.TokenOverlap(identity.Name, titleAndH1) >= titleOverlapThreshold {
		score += weightTitleOverlap
	}
	if tokenInText(textutil.Fold(titleAndH1), coreTokens) {
		score += weightTitleCoreToken
	}

	if identity.Street != "" && identity.Housenumber != "" {
		street := textutil.Fold(identity.Street)
		if strings.Contains(bodyText, street) && strings.Contains(bodyText, textutil.Fold(identity.Housenumber)) {
			score += weightStreetMatch
		}
	}

	if hasPostcodeShape(bodyText, identity.Postcode) {
		score += weightPostcodeShape
	}

	if identity.City != "" && strings.Contains(bodyText, textutil.Fold(identity.City)) {
		score += weightCityMatch
	}

	if phoneMatches(bodyText, identity.Phone) {
		score += weightPhoneMatch
	}

	if IsAggregatorHost(rawURL) {
		score -= penaltyAggregatorHost
	}
	for _, kw := range negativeKeywords {
		if strings.Contains(bodyText, kw) {
			score -= penaltyNegativeKeyword
			break
		}
	}

	return clamp(score, 0, 100)
}

func hostContainsToken(host string, tokens []string) bool {
	for _, tok := range tokens {
		if len(tok) >= 3 && strings.Contains(host, tok) {
			return true
		}
	}
	return false
}

func tokenInText(text string, tokens []string) bool {
	for _, tok := range tokens {
		if len(tok) >= 3 && strings.Contains(text, tok) {
			return true
		}
	}
	return false
}

func hasPostcodeShape(bodyText, expected string) bool {
	if expected != "" {
		folded := textutil.Fold(expected)
		compact := strings.ReplaceAll(folded, " ", "")
		if strings.Contains(strings.ReplaceAll(bodyText, " ", ""), compact) {
			return true
		}
	}
	return dutchPostcode.MatchString(bodyText) || (expected == "" && genericPostcode.MatchString(bodyText))
}

func phoneMatches(bodyText, phone string) bool {
	run := textutil.DigitRun(phone)
	if len(run) < minPhoneDigits {
		// Formatted numbers break into short runs; rebuild from all digits.
		var digits strings.Builder
		for _, r := range phone {
			if r >= '0' && r <= '9' {
				digits.WriteRune(r)
			}
		}
		run = digits.String()
		if len(run) < minPhoneDigits {
			return false
		}
	}
	var bodyDigits strings.Builder
	for _, r := range bodyText {
		if r >= '0' && r <= '9' {
			bodyDigits.WriteRune(r)
		} else {
			bodyDigits.WriteRune(' ')
		}
	}
	// Compare against the digits-only rendering so separators don't matter.
	compactBody := strings.ReplaceAll(bodyDigits.String(), " ", "")
	tail := run
	if len(tail) > minPhoneDigits {
		tail = tail[len(tail)-minPhoneDigits:]
	}
	return strings.Contains(compactBody, tail)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// String implements a debug rendering for HTMLResult.
func (r HTMLResult) String() string {
	return fmt.Sprintf("status=%d type=%q html=%d bytes err=%v", r.Status, r.ContentType, len(r.HTML), r.Err)
}
