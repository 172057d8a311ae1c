package urlcheck

import "strings"

// socialHosts are never accepted as an official restaurant website. Matches
// include subdomains (m.facebook.com, nl-nl.facebook.com).
var socialHosts = []string{
	"facebook.com",
	"instagram.com",
	"twitter.com",
	"x.com",
	"tiktok.com",
	"youtube.com",
	"linkedin.com",
	"pinterest.com",
	"snapchat.com",
	"whatsapp.com",
	"wa.me",
	"t.me",
	"linktr.ee",
}

// IsSocial reports whether rawURL points at a known social platform.
func IsSocial(rawURL string) bool {
	host := Hostname(rawURL)
	if host == "" {
		return false
	}
	for _, social := range socialHosts {
		if host == social || strings.HasSuffix(host, "."+social) {
			return true
		}
	}
	return false
}
