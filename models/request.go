package models

// ScrapeRequest is the payload for POST /api/v1/cards/price.
// It identifies one printed card variant. Immutable once bound.
type ScrapeRequest struct {
	// CardNumber is the printed set number, e.g. "RA04-EN016". Required.
	CardNumber string `json:"card_number" binding:"required"`

	// CardName is an optional search hint. When empty the service tries
	// to resolve it from the card catalog before searching.
	CardName string `json:"card_name,omitempty"`

	// CardRarity is the printed rarity, e.g. "Quarter Century Secret Rare".
	// Required: it drives variant matching on the marketplace.
	CardRarity string `json:"card_rarity" binding:"required"`

	// ArtVariant distinguishes alternate artworks of the same printing,
	// e.g. "1st Art" or "Arkana". Optional.
	ArtVariant string `json:"art_variant,omitempty"`

	// ForceRefresh bypasses the cached result and always scrapes.
	ForceRefresh bool `json:"force_refresh,omitempty"`
}

// CandidateVariant is one product listing harvested from a marketplace
// search results page. Produced transiently per search; never persisted.
type CandidateVariant struct {
	// Title is the listing's visible title text.
	Title string

	// URL is the product detail page link.
	URL string

	// SetCode is the set prefix inferred from the title or URL, if any.
	SetCode string

	// Rarity is the rarity string inferred from the title, if any.
	Rarity string

	// ArtMarker is the art-variant hint inferred from the title, if any.
	ArtMarker string

	// ListingCount is the number of live listings shown for the product.
	// Used only to break score ties toward more liquid market data.
	ListingCount int
}
