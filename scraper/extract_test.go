package scraper

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc
}

const structuredFixture = `<html><body>
<table class="price-guide">
	<tr><th>Label</th><th>Value</th></tr>
	<tr><td>Market Price</td><td>$12.34</td></tr>
	<tr><td>TCG Low</td><td>$9.99</td></tr>
	<tr><td>Shipping</td><td>$4.00</td></tr>
</table>
</body></html>`

func TestStructuredPass(t *testing.T) {
	pair, name, ok := Extract(mustDoc(t, structuredFixture))
	if !ok {
		t.Fatal("extraction missed on labeled table")
	}
	if name != "structured" {
		t.Errorf("pass = %q, want structured", name)
	}
	if pair.MarketPrice == nil || *pair.MarketPrice != 12.34 {
		t.Errorf("MarketPrice = %v, want 12.34", pair.MarketPrice)
	}
	if pair.Price == nil || *pair.Price != 9.99 {
		t.Errorf("Price = %v, want 9.99", pair.Price)
	}
}

func TestContainerPassAppliesWhenLabelsMissing(t *testing.T) {
	// No labeled rows anywhere, only the container markup: this document
	// proves the second pass actually runs when the first misses.
	const fixture = `<html><body>
	<section class="price-points">
		<ul>
			<li><span>Market</span> <span>$45.00</span></li>
			<li><span>Listed</span> <span>$39.50</span></li>
		</ul>
	</section>
	</body></html>`

	pair, name, ok := Extract(mustDoc(t, fixture))
	if !ok {
		t.Fatal("extraction missed on container markup")
	}
	if name != "container" {
		t.Errorf("pass = %q, want container", name)
	}
	if pair.MarketPrice == nil || *pair.MarketPrice != 45.00 {
		t.Errorf("MarketPrice = %v, want 45.00", pair.MarketPrice)
	}
	if pair.Price == nil || *pair.Price != 39.50 {
		t.Errorf("Price = %v, want 39.50", pair.Price)
	}
}

func TestHeuristicPassIsLastResort(t *testing.T) {
	const fixture = `<html><body>
	<div>Cheapest copy from $3.21 with shipping, usually sells near $4.50</div>
	</body></html>`

	pair, name, ok := Extract(mustDoc(t, fixture))
	if !ok {
		t.Fatal("extraction missed on plain text")
	}
	if name != "heuristic" {
		t.Errorf("pass = %q, want heuristic", name)
	}
	if pair.Price == nil || *pair.Price != 3.21 {
		t.Errorf("Price = %v, want 3.21", pair.Price)
	}
	if pair.MarketPrice == nil || *pair.MarketPrice != 4.50 {
		t.Errorf("MarketPrice = %v, want 4.50", pair.MarketPrice)
	}
}

func TestHeuristicIgnoresScriptText(t *testing.T) {
	const fixture = `<html><body>
	<script>var price = "$999.99";</script>
	<div>On sale for $5.00</div>
	</body></html>`

	pair, _, ok := Extract(mustDoc(t, fixture))
	if !ok {
		t.Fatal("extraction missed")
	}
	if pair.Price == nil || *pair.Price != 5.00 {
		t.Errorf("Price = %v, want 5.00 (script content must be invisible)", pair.Price)
	}
}

func TestExtractMissesOnEmptyPage(t *testing.T) {
	_, _, ok := Extract(mustDoc(t, `<html><body><p>Loading…</p></body></html>`))
	if ok {
		t.Fatal("extraction claimed success on a page with no prices")
	}
}

func TestParseCurrency(t *testing.T) {
	cases := []struct {
		in   string
		want *float64
	}{
		{"$12.34", f(12.34)},
		{"$ 1,234.56", f(1234.56)},
		{"$1,000", f(1000)},
		{"from $0.99 each", f(0.99)},
		{"$0.00", nil},      // zero is "not observed"
		{"$60000", nil},     // above plausibility ceiling
		{"12.34", nil},      // no currency symbol
		{"free", nil},
		{"", nil},
	}
	for _, c := range cases {
		got := parseCurrency(c.in)
		switch {
		case c.want == nil && got != nil:
			t.Errorf("parseCurrency(%q) = %v, want nil", c.in, *got)
		case c.want != nil && got == nil:
			t.Errorf("parseCurrency(%q) = nil, want %v", c.in, *c.want)
		case c.want != nil && got != nil && *got != *c.want:
			t.Errorf("parseCurrency(%q) = %v, want %v", c.in, *got, *c.want)
		}
	}
}

func TestPassesArePure(t *testing.T) {
	// Running the same pass repeatedly over the same snapshot must yield
	// identical results; passes keep no state between calls.
	doc := mustDoc(t, structuredFixture)
	for i := 0; i < 3; i++ {
		pair := structuredPass(doc)
		if pair.MarketPrice == nil || *pair.MarketPrice != 12.34 {
			t.Fatalf("run %d: MarketPrice = %v, want 12.34", i, pair.MarketPrice)
		}
	}
}

func TestDiagnose(t *testing.T) {
	d := Diagnose(mustDoc(t, `<html><head><title>Sold Out | Marketplace</title></head><body>
	<table><tr><td>a</td></tr><tr><td>b</td></tr></table>
	<p>was $10.00 now unavailable</p>
	</body></html>`))

	if d.PageTitle != "Sold Out | Marketplace" {
		t.Errorf("PageTitle = %q", d.PageTitle)
	}
	if d.TableCount != 1 {
		t.Errorf("TableCount = %d, want 1", d.TableCount)
	}
	if d.RowCount != 2 {
		t.Errorf("RowCount = %d, want 2", d.RowCount)
	}
	if d.PriceLikeCount != 1 {
		t.Errorf("PriceLikeCount = %d, want 1", d.PriceLikeCount)
	}
	if d.BodySample == "" {
		t.Error("BodySample is empty")
	}
}

func TestProductIDFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://www.tcgplayer.com/product/12345/yugioh-dark-magician", "12345"},
		{"https://www.tcgplayer.com/product/98765?Language=English", "98765"},
		{"https://www.tcgplayer.com/product/42", "42"},
		{"https://www.tcgplayer.com/search/yugioh", ""},
		{"https://www.tcgplayer.com/product/abc", ""},
	}
	for _, c := range cases {
		if got := ProductIDFromURL(c.url); got != c.want {
			t.Errorf("ProductIDFromURL(%q) = %q, want %q", c.url, got, c.want)
		}
	}
}

func f(v float64) *float64 { return &v }
