package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"

	"github.com/use-agent/pricescout/config"
	"github.com/use-agent/pricescout/models"
)

// state labels the phases of one scrape operation. They appear in logs and
// in navigation-failure diagnostics.
type state string

const (
	stateInit            state = "init"
	stateSearch          state = "search"
	stateSelectVariant   state = "select_variant"
	stateNavigateProduct state = "navigate_product"
	stateWaitForPrice    state = "wait_for_price"
	stateExtract         state = "extract"
)

// pageOpener is the slice of a browser context the orchestrator needs.
type pageOpener interface {
	NewPage() (*rod.Page, error)
}

// Input carries one resolved scrape job: the caller's request plus the
// catalog lookups the service performed up front.
type Input struct {
	Request *models.ScrapeRequest

	// CardName is the catalog-resolved name, empty if unresolved.
	CardName string

	// RarityFilter narrows the search when the marketplace knows the
	// rarity spelling; empty means no filter.
	RarityFilter string

	// SetName narrows the search by set when the set code resolved.
	SetName string
}

// Outcome is what a completed scrape hands back to the service layer.
type Outcome struct {
	Prices          PricePair
	SourceURL       string
	ProductID       string
	VariantSelected string
	ExtractPass     string
	Diagnostic      *models.Diagnostic
}

// Run drives one scrape through its states on a page opened from bctx.
// Each state gets its own deadline carved from ctx; a state that overruns
// fails the operation with the error the API maps for that state.
//
// The page lives in a disposable incognito context, so cleanup is just
// closing the page; the context itself is disposed by the pool release.
func Run(ctx context.Context, cfg config.ScraperConfig, bctx pageOpener, in Input) (*Outcome, error) {
	req := in.Request
	log := slog.With("card_number", req.CardNumber, "rarity", req.CardRarity)

	// ── INIT ──────────────────────────────────────────────────────────
	// Stagger simultaneous starts so concurrent requests do not hit the
	// search surface in lockstep.
	if cfg.MaxStaggerDelay > 0 {
		stagger := time.Duration(rand.Int63n(int64(cfg.MaxStaggerDelay)))
		select {
		case <-time.After(stagger):
		case <-ctx.Done():
			return nil, models.NewScrapeError(models.ErrCodeNavigation,
				"request expired before launch", ctx.Err())
		}
	}

	page, err := bctx.NewPage()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserLaunch,
			"failed to open page", err)
	}
	defer func() { _ = page.Close() }()

	if router := setupHijack(page, cfg.BlockedResourceTypes); router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── SEARCH ────────────────────────────────────────────────────────
	query := BuildSearchQuery(req, in.CardName)
	searchURL := BuildSearchURL(query, in.RarityFilter, in.SetName)

	count, onProduct, err := runSearch(ctx, cfg, page, searchURL)
	if err != nil {
		return nil, err
	}

	// A narrowed search that finds nothing gets one retry on the bare
	// query: marketplace rarity and set spellings drift from the catalog's.
	if count == 0 && !onProduct && (in.RarityFilter != "" || in.SetName != "") {
		log.Info("narrowed search empty, retrying without filters", "query", query)
		searchURL = BuildSearchURL(query, "", "")
		count, onProduct, err = runSearch(ctx, cfg, page, searchURL)
		if err != nil {
			return nil, err
		}
	}

	out := &Outcome{}

	// Single-hit queries can land on the product page directly. Trust the
	// redirect only after scoring the landing page's title like any other
	// candidate; a wrong-product redirect must still be rejected.
	if onProduct {
		title := evalStringOrEmpty(page, `() => document.title`)
		pageURL := evalStringOrEmpty(page, `() => window.location.href`)
		c := InferCandidate(title, pageURL, 0)
		if score := ScoreCandidate(req, &c); score == 0 {
			return nil, models.NewScrapeError(models.ErrCodeNoVariantFound,
				fmt.Sprintf("search redirected to a non-matching product for %q", req.CardNumber), nil)
		}
		out.SourceURL = pageURL
		out.ProductID = ProductIDFromURL(pageURL)
		out.VariantSelected = title
		log.Debug("search landed on product page", "url", pageURL)
	} else {
		if count == 0 {
			return nil, models.NewScrapeError(models.ErrCodeNoVariantFound,
				fmt.Sprintf("no search results for %q", query), nil)
		}

		// ── SELECT_VARIANT ────────────────────────────────────────────
		candidates, err := harvestCandidates(ctx, page)
		if err != nil {
			return nil, categorizeError(err, stateSelectVariant, "failed to read search results")
		}
		selected, score := SelectVariant(req, candidates)
		if selected == nil {
			return nil, models.NewScrapeError(models.ErrCodeNoVariantFound,
				fmt.Sprintf("none of %d results matched card %q rarity %q",
					len(candidates), req.CardNumber, req.CardRarity), nil)
		}
		log.Debug("variant selected",
			"title", selected.Title, "score", score, "listings", selected.ListingCount)

		// ── NAVIGATE_PRODUCT ──────────────────────────────────────────
		navCtx, cancel := context.WithTimeout(ctx, cfg.NavigationTimeout)
		err = page.Context(navCtx).Navigate(selected.URL)
		if err == nil {
			_ = page.Context(navCtx).WaitDOMStable(300*time.Millisecond, 0.1)
		}
		cancel()
		if err != nil {
			serr := categorizeError(err, stateNavigateProduct, "navigation to product page failed")
			out.Diagnostic = snapshotDiagnostic(page)
			out.Diagnostic.ErrorKind = string(stateNavigateProduct)
			return out, serr
		}

		out.SourceURL = selected.URL
		out.ProductID = ProductIDFromURL(selected.URL)
		out.VariantSelected = selected.Title
	}

	// ── WAIT_FOR_PRICE ────────────────────────────────────────────────
	// Expiry here is not fatal: extraction still runs over whatever
	// rendered, and only an empty extraction reports PriceNotFound.
	waitCtx, cancel := context.WithTimeout(ctx, cfg.PriceWaitTimeout)
	ready := waitForPrice(waitCtx, page)
	cancel()
	if !ready {
		log.Debug("price elements not confirmed before deadline, extracting anyway")
	}

	// ── EXTRACT ───────────────────────────────────────────────────────
	html, err := page.Context(ctx).HTML()
	if err != nil {
		return out, categorizeError(err, stateExtract, "failed to read product page")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return out, models.NewScrapeError(models.ErrCodePriceNotFound,
			"product page could not be parsed", err)
	}
	pair, passName, found := Extract(doc)
	if !found {
		out.Diagnostic = Diagnose(doc)
		out.Diagnostic.ErrorKind = string(stateExtract)
		return out, models.NewScrapeError(models.ErrCodePriceNotFound,
			fmt.Sprintf("no price data on product page for %q", req.CardNumber), nil)
	}

	out.Prices = pair
	out.ExtractPass = passName
	log.Info("price extracted",
		"pass", passName, "product_id", out.ProductID, "variant", out.VariantSelected)
	return out, nil
}

// runSearch navigates to the search URL and waits for results to render.
// It reports the listing count and whether the marketplace skipped the
// results page entirely and landed on a product page.
func runSearch(ctx context.Context, cfg config.ScraperConfig, page *rod.Page, searchURL string) (int, bool, error) {
	searchCtx, cancel := context.WithTimeout(ctx, cfg.SearchTimeout)
	defer cancel()

	p := page.Context(searchCtx)
	if err := p.Navigate(searchURL); err != nil {
		return 0, false, categorizeError(err, stateSearch, "navigation to search page failed")
	}
	_ = p.WaitDOMStable(300*time.Millisecond, 0.1)

	if res, err := p.Eval(jsIsProductPage); err == nil && res.Value.Bool() {
		return 0, true, nil
	}

	count, err := waitForResults(searchCtx, page)
	if err != nil {
		return 0, false, categorizeError(err, stateSearch, "search results did not render")
	}
	return count, false, nil
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (useful for optional metadata extraction).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// categorizeError wraps raw errors into typed ScrapeErrors so the API layer
// can map them to appropriate HTTP status codes.
func categorizeError(err error, st state, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeNavigation,
			fmt.Sprintf("%s: deadline exceeded in %s", msg, st), err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeNavigation, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
