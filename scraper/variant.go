package scraper

import (
	"strings"

	"github.com/use-agent/pricescout/models"
)

// Score weights for variant matching. The card number is the strongest
// signal because it uniquely names one printing; rarity and art narrow the
// near-duplicates; corroborating signals only ever break near-ties.
const (
	scoreCardNumber    = 40
	scoreRarity        = 20
	scoreArtVariant    = 15
	scoreCorroborating = 5
)

// knownRarities is scanned against listing titles to infer the printed
// rarity when the marketplace does not expose it as structured data.
// Longer names first so "quarter century secret rare" wins over "secret rare".
var knownRarities = []string{
	"quarter century secret rare",
	"quarter century ultra rare",
	"prismatic collector's rare",
	"prismatic secret rare",
	"platinum secret rare",
	"starlight rare",
	"ultimate rare",
	"platinum rare",
	"ghost rare",
	"secret rare",
	"ultra rare",
	"super rare",
	"rare",
	"common",
}

// InferCandidate builds a CandidateVariant from the raw title, URL and
// listing count harvested off a search results page.
func InferCandidate(title, url string, listingCount int) models.CandidateVariant {
	c := models.CandidateVariant{
		Title:        strings.TrimSpace(title),
		URL:          url,
		ListingCount: listingCount,
	}

	if m := cardNumberPattern.FindString(strings.ToUpper(c.Title + " " + url)); m != "" {
		c.SetCode = ExtractSetCode(m)
	}

	c.Rarity = printedRarity(c.Title)
	c.ArtMarker = ExtractArtVersion(c.Title)
	return c
}

// printedRarity scans text for the longest known rarity it names, in
// normalized form. Empty when no known rarity appears.
func printedRarity(text string) string {
	normalized := NormalizeRarity(text)
	for _, r := range knownRarities {
		if nr := NormalizeRarity(r); strings.Contains(normalized, nr) {
			return nr
		}
	}
	return ""
}

func isKnownRarity(normalized string) bool {
	for _, r := range knownRarities {
		if normalized == NormalizeRarity(r) {
			return true
		}
	}
	return false
}

// ScoreCandidate rates one candidate against the requested card identity.
// Purely additive and deterministic: the same inputs always yield the same
// score.
func ScoreCandidate(req *models.ScrapeRequest, c *models.CandidateVariant) int {
	score := 0
	haystack := strings.ToLower(c.Title + " " + c.URL)

	if num := strings.ToLower(strings.TrimSpace(req.CardNumber)); num != "" &&
		strings.Contains(haystack, num) {
		score += scoreCardNumber
	}

	if req.CardRarity != "" && rarityScoreMatch(req.CardRarity, c) {
		score += scoreRarity
	}

	if req.ArtVariant != "" && c.ArtMarker != "" &&
		NormalizeArtVariant(req.ArtVariant) == NormalizeArtVariant(c.ArtMarker) {
		score += scoreArtVariant
	}

	// Corroborating signals.
	if sc := ExtractSetCode(req.CardNumber); sc != "" && sc == c.SetCode {
		score += scoreCorroborating
	}
	if req.CardName != "" && containsAllWords(haystack, req.CardName) {
		score += scoreCorroborating
	}

	return score
}

// SelectVariant picks the best-scored candidate. Ties prefer the candidate
// with more live listings (more liquid market data), then the one seen
// first. A top score of zero means no acceptable match at all.
func SelectVariant(req *models.ScrapeRequest, candidates []models.CandidateVariant) (*models.CandidateVariant, int) {
	var best *models.CandidateVariant
	bestScore := 0

	for i := range candidates {
		c := &candidates[i]
		score := ScoreCandidate(req, c)
		if score == 0 {
			continue
		}
		switch {
		case best == nil, score > bestScore:
			best, bestScore = c, score
		case score == bestScore && c.ListingCount > best.ListingCount:
			best = c
		}
	}

	return best, bestScore
}

// rarityScoreMatch requires an exact printed-rarity match. Rarity names
// nest ("Ultra Rare" is a substring of "Quarter Century Ultra Rare"), so a
// containment check would credit every superset printing and let the
// tie-break pick the wrong, often far pricier, one.
func rarityScoreMatch(requested string, c *models.CandidateVariant) bool {
	want := NormalizeRarity(requested)
	if want == "" {
		return false
	}
	if want == c.Rarity {
		return true
	}
	// A rarity on the known list either appears in the title (and was
	// inferred above) or is not printed there.
	if isKnownRarity(want) {
		return false
	}
	// Rarities missing from the known list fall back to the printed text,
	// on word boundaries, unless the text is just part of the longer
	// rarity name the title carries.
	if c.Rarity != "" && strings.Contains(c.Rarity, want) {
		return false
	}
	return strings.Contains(" "+NormalizeRarity(c.Title)+" ", " "+want+" ")
}

func containsAllWords(haystack, phrase string) bool {
	words := strings.Fields(strings.ToLower(phrase))
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !strings.Contains(haystack, w) {
			return false
		}
	}
	return true
}
