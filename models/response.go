package models

import "time"

// PriceResult is the outcome of one scrape operation. It is created by the
// orchestrator and owned by the caller after return; never mutated afterwards.
type PriceResult struct {
	// Success indicates whether a usable price pair was obtained.
	// A failed extraction is reported truthfully, never coerced to success.
	Success bool `json:"success"`

	CardNumber string `json:"card_number"`
	CardName   string `json:"card_name,omitempty"`
	CardRarity string `json:"card_rarity"`
	ArtVariant string `json:"art_variant,omitempty"`

	// TCGPrice is the lowest listed price. Null when not observed.
	TCGPrice *float64 `json:"tcg_price"`

	// TCGMarketPrice is the marketplace's market-price figure. Null when
	// not observed.
	TCGMarketPrice *float64 `json:"tcg_market_price"`

	// SourceURL is the product page the prices were read from.
	SourceURL string `json:"source_url,omitempty"`

	// ProductID is the marketplace product identifier, when derivable
	// from the product URL.
	ProductID string `json:"product_id,omitempty"`

	// VariantSelected describes the listing the selector picked.
	VariantSelected string `json:"variant_selected,omitempty"`

	// Cached indicates the result was served from the price store rather
	// than a live scrape.
	Cached bool `json:"cached"`

	ScrapedAt time.Time `json:"scraped_at"`

	// Diagnostic carries page-observation details for failed or null
	// extractions, distinguishing "no such listing" from "could not
	// observe the listing".
	Diagnostic *Diagnostic `json:"diagnostic,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// Diagnostic is a snapshot of what the scraper saw on the page when an
// operation failed or produced null prices.
type Diagnostic struct {
	PageTitle      string `json:"page_title,omitempty"`
	TableCount     int    `json:"table_count"`
	RowCount       int    `json:"row_count"`
	PriceLikeCount int    `json:"price_like_count"`
	BodySample     string `json:"body_sample,omitempty"`
	ErrorKind      string `json:"error_kind,omitempty"`
}

// ErrorResponse is the body for requests rejected before scraping starts
// (validation, auth, rate limiting, admission saturation).
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// PoolStats reports the state of the browser session pool.
type PoolStats struct {
	PoolSize       int `json:"pool_size"`
	ActiveContexts int `json:"active_contexts"`
	RecycledCount  int `json:"recycled_count"`
	DegradedSlots  int `json:"degraded_slots"`
	QueueDepth     int `json:"queue_depth"`
}

// GateStats reports the state of the admission gate.
type GateStats struct {
	Capacity int `json:"capacity"`
	InUse    int `json:"in_use"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	GateStats GateStats `json:"gate_stats"`
	Version   string    `json:"version"`
}
