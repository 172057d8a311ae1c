package verify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/menulytics/sitefinder/internal/fetch"
	"github.com/menulytics/sitefinder/internal/model"
)

var testIdentity = model.Identity{
	Name:        "Restaurant De Gouden Leeuw",
	Street:      "Damstraat",
	Housenumber: "12",
	Postcode:    "1012 JM",
	City:        "Amsterdam",
	Phone:       "+31 20 123 4567",
}

func newVerifier(t *testing.T) *Verifier {
	t.Helper()
	f := fetch.New(fetch.Config{UserAgent: "sitefinder-test", Timeout: 2 * time.Second}, nil, zap.NewNop())
	return New(f, zap.NewNop())
}

func fullMatchPage() string {
	return `<html><head><title>De Gouden Leeuw - Amsterdam</title></head>
<body><h1>De Gouden Leeuw</h1>
<p>Damstraat 12, 1012 JM Amsterdam</p>
<p>Bel ons: 020 123 4567</p>
</body></html>`
}

func TestMatchScoreStrongIdentity(t *testing.T) {
	t.Parallel()

	v := newVerifier(t)
	score := v.MatchScore("https://degoudenleeuw.nl", fullMatchPage(), testIdentity)
	if score < 80 {
		t.Fatalf("full-identity page scored %d, want >= 80", score)
	}
}

func TestMatchScoreMonotonicPositiveEvidence(t *testing.T) {
	t.Parallel()

	v := newVerifier(t)
	withoutAddress := `<html><head><title>De Gouden Leeuw</title></head>
<body><h1>De Gouden Leeuw</h1><p>Welkom</p></body></html>`
	withAddress := `<html><head><title>De Gouden Leeuw</title></head>
<body><h1>De Gouden Leeuw</h1><p>Welkom</p><p>Damstraat 12</p></body></html>`

	base := v.MatchScore("https://degoudenleeuw.nl", withoutAddress, testIdentity)
	better := v.MatchScore("https://degoudenleeuw.nl", withAddress, testIdentity)
	if better < base {
		t.Fatalf("adding a street match lowered the score: %d -> %d", base, better)
	}
}

func TestMatchScoreMonotonicNegativeEvidence(t *testing.T) {
	t.Parallel()

	v := newVerifier(t)
	clean := fullMatchPage()
	tainted := strings.Replace(clean, "Bel ons", "tripadvisor zegt - Bel ons", 1)

	base := v.MatchScore("https://degoudenleeuw.nl", clean, testIdentity)
	worse := v.MatchScore("https://degoudenleeuw.nl", tainted, testIdentity)
	if worse > base {
		t.Fatalf("adding 'tripadvisor' raised the score: %d -> %d", base, worse)
	}
	if worse >= base {
		t.Fatalf("negative keyword should reduce the score: %d -> %d", base, worse)
	}
}

func TestMatchScoreAggregatorHostDisqualified(t *testing.T) {
	t.Parallel()

	v := newVerifier(t)
	score := v.MatchScore("https://www.tripadvisor.nl/Restaurant_Review", fullMatchPage(), testIdentity)
	direct := v.MatchScore("https://degoudenleeuw.nl", fullMatchPage(), testIdentity)
	if score >= direct {
		t.Fatalf("aggregator host score %d should be well below direct %d", score, direct)
	}
	if direct-score < penaltyAggregatorHost-10 {
		t.Fatalf("aggregator penalty too small: %d vs %d", score, direct)
	}
}

func TestIsAggregatorHost(t *testing.T) {
	t.Parallel()

	if !IsAggregatorHost("https://www.thefork.nl/restaurant/x") {
		t.Fatal("thefork.nl should be an aggregator")
	}
	if IsAggregatorHost("https://degoudenleeuw.nl") {
		t.Fatal("own domain should not be an aggregator")
	}
}

func TestFetchHTML(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>hi</html>"))
		case "/pdf":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4"))
		}
	}))
	t.Cleanup(srv.Close)

	v := newVerifier(t)
	res := v.FetchHTML(context.Background(), srv.URL+"/")
	if res.Err != nil || res.HTML == "" {
		t.Fatalf("html fetch: %v", res)
	}

	res = v.FetchHTML(context.Background(), srv.URL+"/pdf")
	if res.Err != nil {
		t.Fatalf("pdf fetch: %v", res.Err)
	}
	if res.HTML != "" {
		t.Fatalf("pdf must not yield HTML, got %q", res.HTML)
	}
	if res.Status != 200 {
		t.Fatalf("metadata should survive non-HTML responses: %v", res)
	}
}
