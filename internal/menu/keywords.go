// Package menu locates a menu page or file on a validated restaurant
// homepage via DOM scanning, sitemap traversal, and slug probing.
package menu

import (
	"strings"

	"github.com/menulytics/sitefinder/internal/textutil"
)

// menuKeywords match anchor text and sitemap paths, Dutch first since the
// source data is. Compared after diacritic folding.
var menuKeywords = []string{
	"menukaart",
	"menu",
	"kaart",
	"spijskaart",
	"wijnkaart",
	"eten",
	"drinken",
	"dranken",
	"gerechten",
	"lunch",
	"diner",
	"borrel",
	"dinner",
	"food",
	"drinks",
	"carte",
}

// menuSlugs are probed in order as a last resort.
var menuSlugs = []string{
	"/menu",
	"/menukaart",
	"/kaart",
	"/eten",
	"/dranken",
	"/drinken",
	"/lunch",
	"/diner",
	"/gerechten",
	"/menu.pdf",
	"/menukaart.pdf",
}

// matchesKeyword reports whether the folded text contains a menu keyword.
func matchesKeyword(text string) bool {
	folded := textutil.Fold(text)
	if folded == "" {
		return false
	}
	for _, kw := range menuKeywords {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}
