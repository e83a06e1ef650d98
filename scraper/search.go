package scraper

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/use-agent/pricescout/models"
)

const searchBase = "https://www.tcgplayer.com/search/yugioh/product"

// BuildSearchQuery composes the search term. Art-variant hints are folded
// into the query because the marketplace titles alternate artworks inline
// ("Dark Magician (7th Art)") rather than as a filterable attribute.
func BuildSearchQuery(req *models.ScrapeRequest, cardName string) string {
	q := cardName
	if q == "" {
		q = req.CardNumber
	}
	if req.ArtVariant == "" || cardName == "" {
		return q
	}

	art := strings.TrimSpace(req.ArtVariant)
	if isDigits(art) {
		return q + " " + art + ordinalSuffix(art) + " art"
	}
	return q + " " + art
}

func ordinalSuffix(n string) string {
	if len(n) >= 2 && n[len(n)-2] == '1' {
		return "th"
	}
	switch n[len(n)-1] {
	case '1':
		return "st"
	case '2':
		return "nd"
	case '3':
		return "rd"
	}
	return "th"
}

// BuildSearchURL builds the marketplace search URL, narrowing by rarity and
// set name where known. Narrower searches keep the candidate list small and
// the variant selector honest.
func BuildSearchURL(query, rarityFilter, setName string) string {
	v := url.Values{}
	v.Set("Language", "English")
	v.Set("productLineName", "yugioh")
	v.Set("view", "grid")
	v.Set("q", query)
	if rarityFilter != "" {
		v.Set("Rarity", rarityFilter)
	}
	if setName != "" {
		v.Set("setName", setName)
	}
	return searchBase + "?" + v.Encode()
}

// jsResultsState reports how many product listings have rendered and
// whether the page explicitly shows a no-results message. Zero of both
// means the results are still loading.
const jsResultsState = `() => {
	const tiles = document.querySelectorAll(
		'[data-testid="product-tile"], .product-card, .search-result__product, a[href*="/product/"]:not([href*="/seller/"])');
	const noResults = document.querySelector('.no-results, [data-testid="no-results"]') !== null ||
		/\b0 results\b|no results found/i.test(document.body ? document.body.innerText.slice(0, 4000) : '');
	return { count: tiles.length, noResults: noResults };
}`

// jsIsProductPage detects the search surface skipping straight to a product
// page when a query matches exactly one listing.
const jsIsProductPage = `() => document.querySelector(
	'.product-details, .product-title, h1[data-testid="product-name"]') !== null`

// jsHarvestCandidates collects the product links visible on a results page
// together with the listing-count hint shown on each tile.
const jsHarvestCandidates = `() => {
	const seen = new Set();
	const out = [];
	const anchors = document.querySelectorAll(
		'a[class*="product-card"], div.search-result__product a, a[href*="/product/"]');
	for (const a of anchors) {
		if (!a.href || !a.href.includes('/product/') ||
			a.href.includes('/seller/') || seen.has(a.href)) continue;
		seen.add(a.href);
		const text = (a.textContent || '').trim();
		let listings = 0;
		const m = text.match(/(\d[\d,]*)\s+listings?/i);
		if (m) listings = parseInt(m[1].replace(/,/g, ''), 10);
		out.push({ title: text, url: a.href, listings: listings });
	}
	return out;
}`

// jsPriceReady checks for price-bearing elements specifically. A generic
// "the page has a table" check passes before price data is populated and
// produces spurious nulls, so the probe requires currency text inside the
// known price surfaces.
const jsPriceReady = `() => {
	const containers = document.querySelectorAll(
		'section.price-points, div.price-guide-container, [class*="price-point"], [class*="price-guide"]');
	for (const c of containers) {
		if (/\$\s*[\d,]+/.test(c.textContent || '')) return true;
	}
	for (const row of document.querySelectorAll('tr')) {
		const t = (row.textContent || '').toLowerCase();
		if (t.includes('market price') && t.includes('$')) return true;
	}
	return false;
}`

// jsDiagnostic snapshots page shape counters for failure reports.
const jsDiagnostic = `() => ({
	title: document.title || '',
	tables: document.querySelectorAll('table').length,
	rows: document.querySelectorAll('tr').length,
	priceLike: ((document.body ? document.body.innerText : '').match(/\$\s*[\d,]+/g) || []).length,
})`

type resultsState struct {
	Count     int  `json:"count"`
	NoResults bool `json:"noResults"`
}

type harvestedLink struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Listings int    `json:"listings"`
}

// waitForResults polls the rendered results until listings appear, the page
// declares no results, or ctx expires. It returns the listing count seen.
func waitForResults(ctx context.Context, page *rod.Page) (int, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		res, err := page.Context(ctx).Eval(jsResultsState)
		if err == nil {
			var state resultsState
			if uerr := res.Value.Unmarshal(&state); uerr == nil {
				if state.Count > 0 {
					return state.Count, nil
				}
				if state.NoResults {
					return 0, nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// waitForPrice polls for populated price-bearing elements. Expiry is not an
// error by itself; extraction still gets its chance on whatever rendered.
func waitForPrice(ctx context.Context, page *rod.Page) bool {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		if res, err := page.Context(ctx).Eval(jsPriceReady); err == nil && res.Value.Bool() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// harvestCandidates pulls the product links off the rendered results page.
func harvestCandidates(ctx context.Context, page *rod.Page) ([]models.CandidateVariant, error) {
	res, err := page.Context(ctx).Eval(jsHarvestCandidates)
	if err != nil {
		return nil, err
	}
	var links []harvestedLink
	if err := res.Value.Unmarshal(&links); err != nil {
		return nil, err
	}

	candidates := make([]models.CandidateVariant, 0, len(links))
	for _, l := range links {
		candidates = append(candidates, InferCandidate(l.Title, l.URL, l.Listings))
	}
	return candidates, nil
}

// snapshotDiagnostic captures page shape counters, best-effort: a page that
// cannot even be evaluated yields an empty diagnostic rather than an error.
func snapshotDiagnostic(page *rod.Page) *models.Diagnostic {
	res, err := page.Eval(jsDiagnostic)
	if err != nil {
		return &models.Diagnostic{}
	}
	var d struct {
		Title     string `json:"title"`
		Tables    int    `json:"tables"`
		Rows      int    `json:"rows"`
		PriceLike int    `json:"priceLike"`
	}
	if err := res.Value.Unmarshal(&d); err != nil {
		return &models.Diagnostic{}
	}
	return &models.Diagnostic{
		PageTitle:      d.Title,
		TableCount:     d.Tables,
		RowCount:       d.Rows,
		PriceLikeCount: d.PriceLike,
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
