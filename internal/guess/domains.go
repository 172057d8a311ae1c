// Package guess generates heuristic domain candidates for a restaurant
// from its name and city.
package guess

import (
	"strings"

	"github.com/menulytics/sitefinder/internal/textutil"
)

// DefaultTLDs is the fallback TLD list when configuration leaves it empty.
var DefaultTLDs = []string{".nl", ".com", ".eu", ".be"}

// Generate builds candidate homepage URLs, most name-faithful first.
// Seeds cross the compact and hyphenated forms of the full name and its
// core tokens with optional city suffixes and a "restaurant" affix, then
// every seed crosses the TLD list with a www. variant of each host.
func Generate(name, city string, tlds []string) []string {
	if len(tlds) == 0 {
		tlds = DefaultTLDs
	}

	seeds := seedsFor(name, city)
	seen := make(map[string]struct{})
	var out []string
	for _, seed := range seeds {
		for _, tld := range tlds {
			host := seed + ensureDot(tld)
			for _, u := range []string{"https://" + host, "https://www." + host} {
				if _, dup := seen[u]; dup {
					continue
				}
				seen[u] = struct{}{}
				out = append(out, u)
			}
		}
	}
	return out
}

func ensureDot(tld string) string {
	if strings.HasPrefix(tld, ".") {
		return tld
	}
	return "." + tld
}

// seedsFor produces the ordered, deduplicated hostname stems.
func seedsFor(name, city string) []string {
	compact := textutil.Compact(name)
	if compact == "" {
		return nil
	}
	hyphen := textutil.Hyphenated(name)
	core := strings.Join(textutil.CoreTokens(name), "")
	coreHyphen := strings.Join(textutil.CoreTokens(name), "-")
	cityCompact := textutil.Compact(city)

	var seeds []string
	seen := make(map[string]struct{})
	push := func(s string) {
		if s == "" || strings.HasPrefix(s, "-") || strings.HasSuffix(s, "-") {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		seeds = append(seeds, s)
	}

	// Full name first, core tokens next, city-combined and affixed forms
	// after, preserving faithfulness order.
	push(compact)
	push(hyphen)
	push(core)
	push(coreHyphen)
	if cityCompact != "" {
		push(compact + cityCompact)
		push(hyphen + "-" + cityCompact)
		push(core + cityCompact)
		push(coreHyphen + "-" + cityCompact)
	}
	push("restaurant" + compact)
	push(compact + "restaurant")
	push("restaurant-" + hyphen)
	push(core + "-restaurant")

	return seeds
}
