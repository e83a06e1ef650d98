package scraper

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/use-agent/pricescout/models"
)

// PricePair is the extractor's output: the lowest listed price and the
// marketplace's market-price figure. Nil means "not observed", never zero.
type PricePair struct {
	Price       *float64
	MarketPrice *float64
}

// Found reports whether at least one price was observed. A pass that found
// neither has not matched.
func (p PricePair) Found() bool {
	return p.Price != nil || p.MarketPrice != nil
}

// Pass is one extraction strategy: a pure function from a DOM snapshot to a
// price pair. Passes hold no state and may be run in isolation.
type Pass struct {
	Name string
	Fn   func(doc *goquery.Document) PricePair
}

// Passes returns the ordered extraction strategies. The orchestrator tries
// them in sequence and stops at the first that finds anything:
//
//  1. structured — rows whose label cell names a recognizable price label
//  2. container  — known price-container class markers, for layouts where
//     the verbatim labels moved
//  3. heuristic  — first currency tokens in visible text, last resort
func Passes() []Pass {
	return []Pass{
		{Name: "structured", Fn: structuredPass},
		{Name: "container", Fn: containerPass},
		{Name: "heuristic", Fn: heuristicPass},
	}
}

// Extract runs the passes in order against one snapshot and returns the
// first hit plus the name of the pass that produced it. ok is false when
// every pass missed.
func Extract(doc *goquery.Document) (pair PricePair, passName string, ok bool) {
	for _, p := range Passes() {
		if got := p.Fn(doc); got.Found() {
			return got, p.Name, true
		}
	}
	return PricePair{}, "", false
}

// ExtractFromHTML parses raw HTML and runs Extract on it.
func ExtractFromHTML(html string) (PricePair, string, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return PricePair{}, "", false, err
	}
	pair, name, ok := Extract(doc)
	return pair, name, ok, nil
}

var (
	currencyPattern = regexp.MustCompile(`\$\s*([\d,]+(?:\.\d{1,2})?)`)

	// Compiled once; the container pass runs them on every extraction.
	priceContainerSel = cascadia.MustCompile(
		`section.price-points li, div.price-guide-container tr, [class*="price-point"], [class*="price-guide"] tr`)
	rowSel   = cascadia.MustCompile(`tr`)
	cellSel  = cascadia.MustCompile(`td, th`)
	tableSel = cascadia.MustCompile(`table`)
)

var marketLabels = []string{"market price"}

var lowLabels = []string{"tcg low", "tcg direct low", "low price", "listed median"}

// structuredPass reads explicitly labeled table rows: a cell naming the
// price ("Market Price", "TCG Low", ...) followed by a cell carrying the
// currency text.
func structuredPass(doc *goquery.Document) PricePair {
	var pair PricePair

	doc.FindMatcher(rowSel).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.FindMatcher(cellSel)
		if cells.Length() < 2 {
			return true
		}

		labelIdx := -1
		isMarket := false
		cells.EachWithBreak(func(i int, cell *goquery.Selection) bool {
			text := strings.ToLower(cell.Text())
			if matchesAny(text, marketLabels) {
				labelIdx, isMarket = i, true
				return false
			}
			if matchesAny(text, lowLabels) || (strings.Contains(text, "low") && !strings.Contains(text, "market")) {
				labelIdx, isMarket = i, false
				return false
			}
			return true
		})
		if labelIdx < 0 {
			return true
		}

		// The price sits in a cell after the label.
		for i := labelIdx + 1; i < cells.Length(); i++ {
			if v := parseCurrency(cells.Eq(i).Text()); v != nil {
				if isMarket && pair.MarketPrice == nil {
					pair.MarketPrice = v
				} else if !isMarket && pair.Price == nil {
					pair.Price = v
				}
				break
			}
		}
		return pair.MarketPrice == nil || pair.Price == nil
	})

	return pair
}

// containerPass targets the marketplace's price-container markup directly.
// It survives label rewording as long as the class patterns hold.
func containerPass(doc *goquery.Document) PricePair {
	var pair PricePair

	doc.FindMatcher(priceContainerSel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		text := strings.ToLower(el.Text())
		v := parseCurrency(text)
		if v == nil {
			return true
		}
		// A market-labeled element never feeds the low price; mislabeling
		// is worse than missing one of the pair.
		if strings.Contains(text, "market") {
			if pair.MarketPrice == nil {
				pair.MarketPrice = v
			}
		} else if pair.Price == nil {
			pair.Price = v
		}
		return pair.MarketPrice == nil || pair.Price == nil
	})

	return pair
}

// heuristicPass scans the page's visible text for the first currency tokens.
// Last resort for layouts where neither labels nor containers are found.
func heuristicPass(doc *goquery.Document) PricePair {
	var pair PricePair
	for _, m := range currencyPattern.FindAllString(visibleText(doc), 2) {
		v := parseCurrency(m)
		if v == nil {
			continue
		}
		if pair.Price == nil {
			pair.Price = v
		} else if pair.MarketPrice == nil {
			pair.MarketPrice = v
		}
	}
	return pair
}

// Diagnose summarizes what the snapshot contained, so a total extraction
// miss can be told apart from "this card simply has no listings".
func Diagnose(doc *goquery.Document) *models.Diagnostic {
	body := visibleText(doc)
	sample := strings.Join(strings.Fields(body), " ")
	if len(sample) > 200 {
		sample = sample[:200]
	}
	return &models.Diagnostic{
		PageTitle:      strings.TrimSpace(doc.Find("title").First().Text()),
		TableCount:     doc.FindMatcher(tableSel).Length(),
		RowCount:       doc.FindMatcher(rowSel).Length(),
		PriceLikeCount: len(currencyPattern.FindAllString(body, -1)),
		BodySample:     sample,
	}
}

// parseCurrency parses the first currency token in text. Symbols and
// thousands separators are stripped; malformed or out-of-range tokens are
// absent, never zero.
func parseCurrency(text string) *float64 {
	m := currencyPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || v <= 0 || v > 50000 {
		return nil
	}
	return &v
}

// visibleText returns the document's body text with script and style
// content removed.
func visibleText(doc *goquery.Document) string {
	clone := doc.Selection.Clone()
	clone.Find("script, style, noscript").Remove()
	return clone.Text()
}

func matchesAny(text string, labels []string) bool {
	for _, l := range labels {
		if strings.Contains(text, l) {
			return true
		}
	}
	return false
}

// ProductIDFromURL derives the marketplace product identifier from a
// product page URL ("/product/12345/..." yields "12345").
func ProductIDFromURL(url string) string {
	const marker = "/product/"
	i := strings.Index(url, marker)
	if i < 0 {
		return ""
	}
	rest := url[i+len(marker):]
	end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
	if end == 0 {
		return ""
	}
	if end < 0 {
		return rest
	}
	return rest[:end]
}
