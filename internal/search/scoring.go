package search

import (
	"sort"
	"strings"

	"github.com/menulytics/sitefinder/internal/model"
	"github.com/menulytics/sitefinder/internal/textutil"
	"github.com/menulytics/sitefinder/internal/urlcheck"
	"github.com/menulytics/sitefinder/internal/verify"
)

// preferredTLDs get a ranking bonus; the market is Dutch-first.
var preferredTLDs = map[string]float64{
	".nl":  3,
	".be":  2,
	".com": 1.5,
	".eu":  1,
}

type scoredResult struct {
	url   string
	title string
	score float64
}

// scoreResult ranks one search hit for likelihood of being the official
// site of the named restaurant.
func scoreResult(rawURL, title, name, city string) float64 {
	host := urlcheck.Hostname(rawURL)
	if host == "" {
		return -100
	}

	var score float64
	for tld, bonus := range preferredTLDs {
		if strings.HasSuffix(host, tld) {
			score += bonus
			break
		}
	}

	compact := textutil.Compact(name)
	if compact != "" && strings.Contains(strings.ReplaceAll(host, "-", ""), compact) {
		score += 6
	} else {
		for _, tok := range textutil.CoreTokens(name) {
			if len(tok) >= 3 && strings.Contains(host, tok) {
				score += 3
				break
			}
		}
	}

	score += 4 * textutil.TokenOverlap(name, title)
	if city != "" && strings.Contains(textutil.Fold(title), textutil.Fold(city)) {
		score += 1
	}

	if verify.IsAggregatorHost(rawURL) || urlcheck.IsSocial(rawURL) {
		score -= 10
	}
	return score
}

// rankAndCap sorts results by score descending, dedupes by host, and
// returns at most capN candidates tagged with source.
func rankAndCap(results []scoredResult, source string, capN int) []model.Candidate {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	seen := make(map[string]struct{})
	var out []model.Candidate
	for _, r := range results {
		host := urlcheck.Hostname(r.url)
		if host == "" {
			continue
		}
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}
		out = append(out, model.Candidate{
			URL:      r.url,
			Source:   source,
			IsSocial: urlcheck.IsSocial(r.url),
		})
		if capN > 0 && len(out) >= capN {
			break
		}
	}
	return out
}

// excludedSites are appended to search queries as -site: filters so known
// non-official results never spend result slots.
var excludedSites = []string{
	"facebook.com",
	"instagram.com",
	"tripadvisor.nl",
	"tripadvisor.com",
	"thefork.nl",
	"thuisbezorgd.nl",
	"ubereats.com",
	"deliveroo.nl",
	"yelp.com",
}

func buildQuery(name, city string) string {
	var b strings.Builder
	b.WriteString(`"` + name + `"`)
	if city != "" {
		b.WriteString(" " + city)
	}
	for _, site := range excludedSites {
		b.WriteString(" -site:" + site)
	}
	return b.String()
}
