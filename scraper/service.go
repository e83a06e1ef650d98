package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/pricescout/browser"
	"github.com/use-agent/pricescout/config"
	"github.com/use-agent/pricescout/gate"
	"github.com/use-agent/pricescout/models"
)

// Catalog resolves card identity against the read-only card database.
// Lookups are advisory: the service proceeds on catalog failure rather
// than letting a metadata outage block price scraping.
type Catalog interface {
	// CardName resolves a card number to its canonical name.
	CardName(ctx context.Context, cardNumber string) (string, error)

	// HasRarity reports whether the card is printed at the given rarity.
	HasRarity(ctx context.Context, cardNumber, rarity string) (bool, error)

	// SetName resolves a set code prefix ("RA04") to the set's full name.
	SetName(ctx context.Context, setCode string) (string, error)
}

// PriceStore is the persistent cache of completed lookups.
type PriceStore interface {
	// GetFresh returns the cached result for the identity if one exists
	// and is still within its freshness window.
	GetFresh(cardNumber, rarity, artVariant string) (*models.PriceResult, bool)

	// GetAny returns the most recent cached result regardless of age.
	GetAny(cardNumber, rarity, artVariant string) (*models.PriceResult, bool)

	// Put stores a completed result, overwriting any previous entry for
	// the same identity.
	Put(result *models.PriceResult) error
}

// runFunc matches Run; tests swap it to exercise the service without a
// browser.
type runFunc func(ctx context.Context, cfg config.ScraperConfig, bctx pageOpener, in Input) (*Outcome, error)

// Service owns the scrape pipeline: admission, session checkout, the
// orchestrated scrape, and cache read/write around it.
type Service struct {
	cfg     config.ScraperConfig
	gate    *gate.Gate
	pool    *browser.Pool
	store   PriceStore
	catalog Catalog
	run     runFunc
}

// NewService wires the pipeline. store and catalog may be nil in tests.
func NewService(cfg config.ScraperConfig, g *gate.Gate, p *browser.Pool, st PriceStore, cat Catalog) *Service {
	return &Service{
		cfg:     cfg,
		gate:    g,
		pool:    p,
		store:   st,
		catalog: cat,
		run:     Run,
	}
}

// ScrapePrice resolves one card identity to market prices.
//
// The returned PriceResult is non-nil whenever the identity was valid: on
// failure it carries Success=false, the error detail, and any diagnostic
// captured before the failure. The error return is what the API layer maps
// to an HTTP status.
func (s *Service) ScrapePrice(ctx context.Context, req *models.ScrapeRequest) (*models.PriceResult, error) {
	normalize(req)
	if req.CardNumber == "" || req.CardRarity == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput,
			"card_number and card_rarity are required", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	log := slog.With("card_number", req.CardNumber, "rarity", req.CardRarity,
		"art_variant", req.ArtVariant)

	// ── Cache read ────────────────────────────────────────────────────
	if !req.ForceRefresh && s.store != nil {
		if cached, ok := s.store.GetFresh(req.CardNumber, req.CardRarity, req.ArtVariant); ok {
			log.Debug("serving cached price", "scraped_at", cached.ScrapedAt)
			cached.Cached = true
			return cached, nil
		}
	}

	// ── Catalog resolution ───────────────────────────────────────────
	in := Input{Request: req}
	if s.catalog != nil {
		s.resolveCatalog(ctx, req, &in, log)
	}
	if in.RarityFilter == "" {
		in.RarityFilter = MarketplaceRarityFilter(req.CardRarity)
	}

	// ── Admission ─────────────────────────────────────────────────────
	ticket, err := s.gate.Acquire(ctx)
	if err != nil {
		return s.failure(req, nil, err), err
	}
	defer ticket.Release()

	// ── Session checkout ──────────────────────────────────────────────
	handle, err := s.pool.AcquireContext(ctx)
	if err != nil {
		return s.failure(req, nil, err), err
	}
	defer handle.Release()

	opener, ok := handle.Context().(pageOpener)
	if !ok {
		err := models.NewScrapeError(models.ErrCodeInternal,
			"browser context cannot open pages", nil)
		return s.failure(req, nil, err), err
	}

	// ── Scrape ────────────────────────────────────────────────────────
	out, err := s.safeRun(ctx, opener, in)
	if err != nil {
		// A vanished price with a previous sighting is worth more than
		// an error: serve the stale value, flagged as cached.
		if models.CodeOf(err) == models.ErrCodePriceNotFound && s.store != nil {
			if stale, ok := s.store.GetAny(req.CardNumber, req.CardRarity, req.ArtVariant); ok && stale.Success {
				log.Info("price missing on page, serving stale cache", "scraped_at", stale.ScrapedAt)
				stale.Cached = true
				return stale, nil
			}
		}
		log.Warn("scrape failed", "error", err)
		return s.failure(req, out, err), err
	}

	result := s.success(req, in.CardName, out)
	if s.store != nil {
		if perr := s.store.Put(result); perr != nil {
			log.Warn("failed to cache result", "error", perr)
		}
	}
	return result, nil
}

// resolveCatalog fills Input from catalog lookups. Every branch is
// best-effort: an unknown card or unreachable catalog narrows the search
// less but never aborts it.
func (s *Service) resolveCatalog(ctx context.Context, req *models.ScrapeRequest, in *Input, log *slog.Logger) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if req.CardName != "" {
		in.CardName = req.CardName
	} else if name, err := s.catalog.CardName(cctx, req.CardNumber); err == nil {
		in.CardName = name
	} else {
		log.Debug("card name unresolved, searching by number", "error", err)
	}

	if known, err := s.catalog.HasRarity(cctx, req.CardNumber, req.CardRarity); err == nil && !known {
		// The catalog lags new printings, so an unknown rarity is a
		// warning, not a rejection.
		log.Warn("rarity not listed in catalog for this card, proceeding anyway")
	}

	if code := ExtractSetCode(req.CardNumber); code != "" {
		if setName, err := s.catalog.SetName(cctx, code); err == nil {
			in.SetName = setName
		}
	}
}

// safeRun isolates the orchestrator behind a recover so a panic inside
// page handling surfaces as an error and the deferred ticket and handle
// releases still run.
func (s *Service) safeRun(ctx context.Context, opener pageOpener, in Input) (out *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scrape panicked", "panic", r,
				"card_number", in.Request.CardNumber)
			out = nil
			err = models.NewScrapeError(models.ErrCodeInternal,
				fmt.Sprintf("scrape panicked: %v", r), nil)
		}
	}()
	return s.run(ctx, s.cfg, opener, in)
}

func (s *Service) success(req *models.ScrapeRequest, cardName string, out *Outcome) *models.PriceResult {
	name := cardName
	if name == "" {
		name = req.CardName
	}
	return &models.PriceResult{
		Success:         true,
		CardNumber:      req.CardNumber,
		CardName:        name,
		CardRarity:      req.CardRarity,
		ArtVariant:      req.ArtVariant,
		TCGPrice:        out.Prices.Price,
		TCGMarketPrice:  out.Prices.MarketPrice,
		SourceURL:       out.SourceURL,
		ProductID:       out.ProductID,
		VariantSelected: out.VariantSelected,
		ScrapedAt:       time.Now().UTC(),
	}
}

func (s *Service) failure(req *models.ScrapeRequest, out *Outcome, err error) *models.PriceResult {
	res := &models.PriceResult{
		Success:    false,
		CardNumber: req.CardNumber,
		CardName:   req.CardName,
		CardRarity: req.CardRarity,
		ArtVariant: req.ArtVariant,
		ScrapedAt:  time.Now().UTC(),
	}
	if out != nil {
		res.SourceURL = out.SourceURL
		res.ProductID = out.ProductID
		res.VariantSelected = out.VariantSelected
		res.Diagnostic = out.Diagnostic
	}
	var serr *models.ScrapeError
	if e, ok := err.(*models.ScrapeError); ok {
		serr = e
	} else {
		serr = models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
	}
	res.Error = serr.ToDetail()
	return res
}

// normalize canonicalizes the request in place. Rarity abbreviations are
// expanded up front so the cache key, the search filter, and the stored
// record all agree on one spelling.
func normalize(req *models.ScrapeRequest) {
	req.CardNumber = strings.ToUpper(strings.TrimSpace(req.CardNumber))
	req.CardName = strings.TrimSpace(req.CardName)
	req.CardRarity = MarketplaceRarityFilter(strings.TrimSpace(req.CardRarity))
	req.ArtVariant = strings.TrimSpace(req.ArtVariant)
}
