package urlcheck

import (
	"sort"

	"github.com/menulytics/sitefinder/internal/model"
)

// websiteTags lists OSM tags that may carry an official site, in source
// preference order. The dedicated website tags outrank the generic url ones.
var websiteTags = []struct {
	tag    string
	source string
	rank   int
}{
	{"website", "website", 0},
	{"contact:website", "website", 0},
	{"url", "url", 1},
	{"contact:url", "url", 1},
}

// CandidatesFromTags extracts, normalizes, and ranks website candidates from
// a raw OSM tag map. Candidates are deduplicated by host; non-social
// website-tagged candidates come first, generic url-tagged ones next, social
// links last.
func CandidatesFromTags(tags map[string]string) []model.Candidate {
	type ranked struct {
		cand model.Candidate
		rank int
		pos  int
	}

	seen := make(map[string]struct{})
	var out []ranked
	for pos, wt := range websiteTags {
		raw, ok := tags[wt.tag]
		if !ok || raw == "" {
			continue
		}
		normalized, err := Normalize(raw)
		if err != nil {
			continue
		}
		host := Hostname(normalized)
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}

		cand := model.Candidate{
			URL:      normalized,
			Source:   wt.source,
			IsSocial: IsSocial(normalized),
		}
		rank := wt.rank
		if cand.IsSocial {
			rank = 2
		}
		out = append(out, ranked{cand: cand, rank: rank, pos: pos})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].rank != out[j].rank {
			return out[i].rank < out[j].rank
		}
		return out[i].pos < out[j].pos
	})

	cands := make([]model.Candidate, len(out))
	for i, r := range out {
		cands[i] = r.cand
	}
	return cands
}
