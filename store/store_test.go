package store

import (
	"testing"
	"time"

	"github.com/use-agent/pricescout/config"
	"github.com/use-agent/pricescout/models"
)

func openTestStore(t *testing.T, freshFor time.Duration) *Store {
	t.Helper()
	s, err := Open(config.StoreConfig{Path: t.TempDir(), FreshFor: freshFor})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func price(v float64) *float64 { return &v }

func sample(scrapedAt time.Time) *models.PriceResult {
	return &models.PriceResult{
		Success:         true,
		CardNumber:      "RA04-EN016",
		CardName:        "Dark Magician",
		CardRarity:      "Quarter Century Secret Rare",
		ArtVariant:      "7",
		TCGPrice:        price(9.99),
		TCGMarketPrice:  price(12.34),
		SourceURL:       "https://www.tcgplayer.com/product/12345/x",
		ProductID:       "12345",
		VariantSelected: "Dark Magician (7th Art)",
		ScrapedAt:       scrapedAt,
	}
}

func TestPutAndGetFresh(t *testing.T) {
	s := openTestStore(t, 24*time.Hour)

	if err := s.Put(sample(time.Now().UTC())); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok := s.GetFresh("RA04-EN016", "Quarter Century Secret Rare", "7")
	if !ok {
		t.Fatal("fresh entry not found")
	}
	if got.TCGPrice == nil || *got.TCGPrice != 9.99 {
		t.Errorf("TCGPrice = %v, want 9.99", got.TCGPrice)
	}
	if got.TCGMarketPrice == nil || *got.TCGMarketPrice != 12.34 {
		t.Errorf("TCGMarketPrice = %v, want 12.34", got.TCGMarketPrice)
	}
	if got.ProductID != "12345" {
		t.Errorf("ProductID = %q, want 12345", got.ProductID)
	}
}

func TestGetFreshRejectsExpired(t *testing.T) {
	s := openTestStore(t, time.Hour)

	if err := s.Put(sample(time.Now().UTC().Add(-2 * time.Hour))); err != nil {
		t.Fatalf("put: %v", err)
	}

	if _, ok := s.GetFresh("RA04-EN016", "Quarter Century Secret Rare", "7"); ok {
		t.Error("expired entry served as fresh")
	}

	// The stale entry still exists for explicit fallback reads.
	got, ok := s.GetAny("RA04-EN016", "Quarter Century Secret Rare", "7")
	if !ok {
		t.Fatal("stale entry lost")
	}
	if got.TCGPrice == nil || *got.TCGPrice != 9.99 {
		t.Errorf("stale TCGPrice = %v, want 9.99", got.TCGPrice)
	}
}

func TestGetFreshMissingEntry(t *testing.T) {
	s := openTestStore(t, time.Hour)
	if _, ok := s.GetFresh("ZZZZ-EN000", "Common", ""); ok {
		t.Error("found an entry that was never stored")
	}
}

func TestPutOverwrites(t *testing.T) {
	s := openTestStore(t, 24*time.Hour)

	first := sample(time.Now().UTC().Add(-time.Minute))
	if err := s.Put(first); err != nil {
		t.Fatalf("put: %v", err)
	}

	second := sample(time.Now().UTC())
	second.TCGPrice = price(15.00)
	if err := s.Put(second); err != nil {
		t.Fatalf("second put: %v", err)
	}

	got, ok := s.GetFresh("RA04-EN016", "Quarter Century Secret Rare", "7")
	if !ok {
		t.Fatal("entry not found after overwrite")
	}
	if got.TCGPrice == nil || *got.TCGPrice != 15.00 {
		t.Errorf("TCGPrice = %v, want overwritten 15.00", got.TCGPrice)
	}

	if n, err := s.Count(); err != nil || n != 1 {
		t.Errorf("Count = %d, %v; want 1, nil", n, err)
	}
}

func TestKeyNormalization(t *testing.T) {
	// Cosmetic spelling differences of the same identity map to one key;
	// distinct identities never collide.
	if Key("ra04-en016", "Quarter-Century Secret Rare", "7th") !=
		Key("RA04-EN016 ", "quarter century secret rare", "7TH") {
		t.Error("equivalent identities produced different keys")
	}
	if Key("RA04-EN016", "Ultra Rare", "") == Key("RA04-EN016", "Secret Rare", "") {
		t.Error("different rarities collided")
	}
	if Key("RA04-EN016", "Ultra Rare", "1") == Key("RA04-EN016", "Ultra Rare", "2") {
		t.Error("different art variants collided")
	}
}

func TestNullPricesRoundTrip(t *testing.T) {
	s := openTestStore(t, 24*time.Hour)

	r := sample(time.Now().UTC())
	r.TCGPrice = nil
	r.TCGMarketPrice = price(3.00)
	if err := s.Put(r); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok := s.GetFresh("RA04-EN016", "Quarter Century Secret Rare", "7")
	if !ok {
		t.Fatal("entry not found")
	}
	if got.TCGPrice != nil {
		t.Errorf("TCGPrice = %v, want nil preserved", *got.TCGPrice)
	}
	if got.TCGMarketPrice == nil || *got.TCGMarketPrice != 3.00 {
		t.Errorf("TCGMarketPrice = %v, want 3.00", got.TCGMarketPrice)
	}
}
