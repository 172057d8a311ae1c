package menu

import (
	"context"
	"encoding/xml"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// maxNestedSitemaps bounds recursion through sitemap index files.
const maxNestedSitemaps = 10

type sitemapURLSet struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapIndex struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// sitemapCandidates collects keyword-matching URLs from the site's
// sitemap(s). Malformed XML skips that sitemap and the traversal continues.
func (d *Discoverer) sitemapCandidates(ctx context.Context, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	root := base.Scheme + "://" + base.Host

	// /sitemap.xml may itself be a urlset or an index; the conventional
	// index path is the fallback.
	budget := maxNestedSitemaps
	urls := d.collectSitemap(ctx, root+"/sitemap.xml", &budget)
	if len(urls) == 0 {
		urls = d.collectSitemap(ctx, root+"/sitemap_index.xml", &budget)
	}

	var out []string
	for _, loc := range urls {
		if pathMatchesKeyword(loc) {
			out = append(out, loc)
		}
	}
	return out
}

// collectSitemap reads one sitemap document, which is either a urlset or an
// index. Index entries are followed depth-first; the budget is shared across
// the whole traversal so nested indexes cannot expand it.
func (d *Discoverer) collectSitemap(ctx context.Context, sitemapURL string, budget *int) []string {
	body, ok := d.fetchBody(ctx, sitemapURL)
	if !ok {
		return nil
	}

	var set sitemapURLSet
	if err := xml.Unmarshal(body, &set); err != nil {
		d.logger.Debug("skipping malformed sitemap", zap.String("url", sitemapURL), zap.Error(err))
		return nil
	}
	if len(set.URLs) > 0 {
		out := make([]string, 0, len(set.URLs))
		for _, u := range set.URLs {
			if loc := strings.TrimSpace(u.Loc); loc != "" {
				out = append(out, loc)
			}
		}
		return out
	}

	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err != nil {
		return nil
	}
	var out []string
	for _, sm := range index.Sitemaps {
		if *budget <= 0 {
			break
		}
		loc := strings.TrimSpace(sm.Loc)
		if loc == "" {
			continue
		}
		*budget--
		out = append(out, d.collectSitemap(ctx, loc, budget)...)
	}
	return out
}

// pathMatchesKeyword tests the decoded URL path against the menu keywords.
func pathMatchesKeyword(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := u.Path
	if decoded, err := url.PathUnescape(path); err == nil {
		path = decoded
	}
	return matchesKeyword(path)
}
