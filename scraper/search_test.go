package scraper

import (
	"net/url"
	"strings"
	"testing"

	"github.com/use-agent/pricescout/models"
)

func TestBuildSearchQuery(t *testing.T) {
	cases := []struct {
		name     string
		req      models.ScrapeRequest
		cardName string
		want     string
	}{
		{
			name:     "name only",
			req:      models.ScrapeRequest{CardNumber: "RA04-EN016"},
			cardName: "Dark Magician",
			want:     "Dark Magician",
		},
		{
			name:     "falls back to card number",
			req:      models.ScrapeRequest{CardNumber: "RA04-EN016"},
			cardName: "",
			want:     "RA04-EN016",
		},
		{
			name:     "numeric art variant becomes ordinal",
			req:      models.ScrapeRequest{CardNumber: "RA04-EN016", ArtVariant: "7"},
			cardName: "Dark Magician",
			want:     "Dark Magician 7th art",
		},
		{
			name:     "first art",
			req:      models.ScrapeRequest{CardNumber: "RA04-EN016", ArtVariant: "1"},
			cardName: "Dark Magician",
			want:     "Dark Magician 1st art",
		},
		{
			name:     "named art variant appended verbatim",
			req:      models.ScrapeRequest{CardNumber: "RA04-EN016", ArtVariant: "Arkana"},
			cardName: "Dark Magician",
			want:     "Dark Magician Arkana",
		},
		{
			name:     "art hint dropped when name unresolved",
			req:      models.ScrapeRequest{CardNumber: "RA04-EN016", ArtVariant: "7"},
			cardName: "",
			want:     "RA04-EN016",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := BuildSearchQuery(&c.req, c.cardName); got != c.want {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestBuildSearchURL(t *testing.T) {
	raw := BuildSearchURL("Dark Magician", "Quarter Century Secret Rare", "Quarter Century Bonanza")

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("built URL does not parse: %v", err)
	}
	if !strings.HasPrefix(raw, "https://www.tcgplayer.com/search/yugioh/product?") {
		t.Errorf("unexpected URL base: %s", raw)
	}

	q := u.Query()
	for key, want := range map[string]string{
		"Language":        "English",
		"productLineName": "yugioh",
		"view":            "grid",
		"q":               "Dark Magician",
		"Rarity":          "Quarter Century Secret Rare",
		"setName":         "Quarter Century Bonanza",
	} {
		if got := q.Get(key); got != want {
			t.Errorf("query %s = %q, want %q", key, got, want)
		}
	}
}

func TestBuildSearchURLOmitsEmptyFilters(t *testing.T) {
	u, err := url.Parse(BuildSearchURL("Dark Magician", "", ""))
	if err != nil {
		t.Fatalf("built URL does not parse: %v", err)
	}
	q := u.Query()
	if q.Has("Rarity") || q.Has("setName") {
		t.Errorf("empty filters must be omitted, got %s", u.RawQuery)
	}
}

func TestOrdinalSuffix(t *testing.T) {
	cases := map[string]string{
		"1": "st", "2": "nd", "3": "rd", "4": "th",
		"11": "th", "12": "th", "13": "th",
		"21": "st", "22": "nd", "23": "rd", "101": "st",
	}
	for n, want := range cases {
		if got := ordinalSuffix(n); got != want {
			t.Errorf("ordinalSuffix(%s) = %q, want %q", n, got, want)
		}
	}
}
