package scraper

import (
	"regexp"
	"strings"
)

// rarityAbbrev expands the shorthand collectors commonly type for printed
// rarities. Only applied when the whole input is the abbreviation.
var rarityAbbrev = map[string]string{
	"c":    "common",
	"r":    "rare",
	"sr":   "secret rare",
	"scr":  "secret rare",
	"spr":  "super rare",
	"ur":   "ultra rare",
	"ulr":  "ultra rare",
	"gr":   "ghost rare",
	"gsr":  "ghost rare",
	"str":  "starlight rare",
	"stsr": "starlight rare",
	"plr":  "platinum rare",
	"psr":  "platinum secret rare",
	"qcsr": "quarter century secret rare",
	"qcur": "quarter century ultra rare",
	"pcr":  "prismatic collector's rare",
	"utr":  "ultimate rare",
}

var (
	punctPattern       = regexp.MustCompile(`[^a-z0-9]+`)
	artVersionPattern  = regexp.MustCompile(`(?i)(\d+)(?:st|nd|rd|th)?\s*art`)
	setCodePattern     = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9]{1,3})-`)
	bareOrdinalPattern = regexp.MustCompile(`^(\d+)(?:st|nd|rd|th)?$`)
	cardNumberPattern  = regexp.MustCompile(`\b([A-Z][A-Z0-9]{1,3}-[A-Z]{0,2}\d{2,3})\b`)
)

// NormalizeRarity lowercases a rarity string, collapses punctuation and
// whitespace, and expands whole-string abbreviations, so "Quarter-Century
// Secret Rare", "QCSR" and "quarter century secret rare" all compare equal.
func NormalizeRarity(rarity string) string {
	normalized := strings.TrimSpace(punctPattern.ReplaceAllString(strings.ToLower(rarity), " "))
	if full, ok := rarityAbbrev[normalized]; ok {
		// Expansions are normalized too: "pcr" maps to a name with an
		// apostrophe in it.
		normalized = strings.TrimSpace(punctPattern.ReplaceAllString(full, " "))
	}
	return normalized
}

// RarityMatches reports whether two rarity strings name the same printing
// rarity after normalization.
func RarityMatches(a, b string) bool {
	na, nb := NormalizeRarity(a), NormalizeRarity(b)
	return na != "" && na == nb
}

// NormalizeArtVariant canonicalizes an art-variant hint. Numbered artworks
// become "<n> art"; named artworks (e.g. "Arkana") are lowercased.
func NormalizeArtVariant(artVariant string) string {
	if artVariant == "" {
		return ""
	}
	if m := artVersionPattern.FindStringSubmatch(artVariant); m != nil {
		return m[1] + " art"
	}
	normalized := strings.TrimSpace(punctPattern.ReplaceAllString(strings.ToLower(artVariant), " "))
	// A bare ordinal ("7", "7th") means the same as "7th art".
	if m := bareOrdinalPattern.FindStringSubmatch(normalized); m != nil {
		return m[1] + " art"
	}
	return normalized
}

// ExtractArtVersion pulls a numbered art marker out of free text, e.g.
// "Dark Magician (7th Art)" yields "7 art". Empty when no marker exists.
func ExtractArtVersion(text string) string {
	if m := artVersionPattern.FindStringSubmatch(text); m != nil {
		return m[1] + " art"
	}
	return ""
}

// ExtractSetCode returns the set prefix of a printed card number:
// "RA04-EN016" yields "RA04". Empty when the number has no recognizable
// set prefix.
func ExtractSetCode(cardNumber string) string {
	if m := setCodePattern.FindStringSubmatch(strings.TrimSpace(cardNumber)); m != nil {
		return strings.ToUpper(m[1])
	}
	return ""
}

// MarketplaceRarityFilter converts a requested rarity into the Title Case
// filter value the marketplace's search accepts. Unknown rarities map to
// their normalized Title Case form, which the site treats as no-op filters.
func MarketplaceRarityFilter(rarity string) string {
	normalized := NormalizeRarity(rarity)
	if normalized == "" {
		return ""
	}
	words := strings.Fields(normalized)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
