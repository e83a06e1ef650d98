// Package store persists completed price lookups in an embedded Badger
// database. Entries stay readable past their freshness window so the
// service can fall back to a stale price when a live scrape comes back
// empty.
package store

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/use-agent/pricescout/config"
	"github.com/use-agent/pricescout/models"
)

// PriceRecord is the stored form of a completed lookup, keyed by the
// normalized card identity.
type PriceRecord struct {
	ID              string `badgerhold:"key"`
	CardNumber      string
	CardName        string
	CardRarity      string
	ArtVariant      string
	TCGPrice        *float64
	TCGMarketPrice  *float64
	SourceURL       string
	ProductID       string
	VariantSelected string
	Success         bool
	ScrapedAt       time.Time
}

// Store wraps badgerhold with the freshness semantics of the price cache.
type Store struct {
	db       *badgerhold.Store
	freshFor time.Duration
}

// Open opens (or creates) the database at cfg.Path.
func Open(cfg config.StoreConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	// badger's own logger is noisy; slog covers our side.
	options.Options = badger.DefaultOptions(cfg.Path).WithLogger(nil)

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open price store: %w", err)
	}
	slog.Info("price store opened", "path", cfg.Path, "fresh_for", cfg.FreshFor)

	return &Store{db: db, freshFor: cfg.FreshFor}, nil
}

// Key builds the composite identity key. Tokens are lowercased and
// stripped of punctuation; abbreviation expansion ("QCSR") happens in the
// service before anything reaches the store.
func Key(cardNumber, rarity, artVariant string) string {
	parts := []string{
		strings.ToUpper(strings.TrimSpace(cardNumber)),
		normalizeToken(rarity),
		normalizeToken(artVariant),
	}
	return strings.Join(parts, "|")
}

// GetFresh returns the cached result if it exists and is younger than the
// freshness window.
func (s *Store) GetFresh(cardNumber, rarity, artVariant string) (*models.PriceResult, bool) {
	rec, ok := s.get(cardNumber, rarity, artVariant)
	if !ok || time.Since(rec.ScrapedAt) > s.freshFor {
		return nil, false
	}
	return rec.toResult(), true
}

// GetAny returns the cached result regardless of age.
func (s *Store) GetAny(cardNumber, rarity, artVariant string) (*models.PriceResult, bool) {
	rec, ok := s.get(cardNumber, rarity, artVariant)
	if !ok {
		return nil, false
	}
	return rec.toResult(), true
}

// Put stores a completed result, replacing any previous entry for the
// identity.
func (s *Store) Put(result *models.PriceResult) error {
	rec := &PriceRecord{
		ID:              Key(result.CardNumber, result.CardRarity, result.ArtVariant),
		CardNumber:      result.CardNumber,
		CardName:        result.CardName,
		CardRarity:      result.CardRarity,
		ArtVariant:      result.ArtVariant,
		TCGPrice:        result.TCGPrice,
		TCGMarketPrice:  result.TCGMarketPrice,
		SourceURL:       result.SourceURL,
		ProductID:       result.ProductID,
		VariantSelected: result.VariantSelected,
		Success:         result.Success,
		ScrapedAt:       result.ScrapedAt,
	}
	if rec.ScrapedAt.IsZero() {
		rec.ScrapedAt = time.Now().UTC()
	}
	if err := s.db.Upsert(rec.ID, rec); err != nil {
		return fmt.Errorf("store price record: %w", err)
	}
	return nil
}

// Count returns the number of stored records, fresh or stale.
func (s *Store) Count() (int, error) {
	n, err := s.db.Count(&PriceRecord{}, nil)
	if err != nil {
		return 0, fmt.Errorf("count price records: %w", err)
	}
	return int(n), nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(cardNumber, rarity, artVariant string) (*PriceRecord, bool) {
	var rec PriceRecord
	err := s.db.Get(Key(cardNumber, rarity, artVariant), &rec)
	if err != nil {
		if err != badgerhold.ErrNotFound {
			slog.Warn("price store read failed", "error", err)
		}
		return nil, false
	}
	return &rec, true
}

func (r *PriceRecord) toResult() *models.PriceResult {
	return &models.PriceResult{
		Success:         r.Success,
		CardNumber:      r.CardNumber,
		CardName:        r.CardName,
		CardRarity:      r.CardRarity,
		ArtVariant:      r.ArtVariant,
		TCGPrice:        r.TCGPrice,
		TCGMarketPrice:  r.TCGMarketPrice,
		SourceURL:       r.SourceURL,
		ProductID:       r.ProductID,
		VariantSelected: r.VariantSelected,
		ScrapedAt:       r.ScrapedAt,
	}
}

// normalizeToken lowercases and strips punctuation so key lookups survive
// cosmetic spelling differences.
func normalizeToken(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
