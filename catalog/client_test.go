package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/pricescout/config"
)

func testServer(t *testing.T, setsCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/cardsetsinfo.php", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("setcode") != "RA04-EN016" {
			http.Error(w, `{"error":"no card found"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Dark Magician","set_name":"Quarter Century Bonanza","set_code":"RA04-EN016","set_rarity":"Quarter Century Secret Rare"}`))
	})
	mux.HandleFunc("/cardsets.php", func(w http.ResponseWriter, r *http.Request) {
		if setsCalls != nil {
			setsCalls.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"set_name":"Quarter Century Bonanza","set_code":"RA04"},
			{"set_name":"Legend of Blue Eyes White Dragon","set_code":"LOB"}
		]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testClient(t *testing.T, baseURL string) *Client {
	return New(config.CatalogConfig{
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
		SetsTTL: time.Hour,
	})
}

func TestCardName(t *testing.T) {
	srv := testServer(t, nil)
	c := testClient(t, srv.URL)

	name, err := c.CardName(context.Background(), "RA04-EN016")
	if err != nil {
		t.Fatalf("CardName failed: %v", err)
	}
	if name != "Dark Magician" {
		t.Errorf("name = %q, want Dark Magician", name)
	}

	if _, err := c.CardName(context.Background(), "ZZZZ-EN000"); err == nil {
		t.Error("unknown card number must fail")
	}
}

func TestHasRarity(t *testing.T) {
	srv := testServer(t, nil)
	c := testClient(t, srv.URL)

	ok, err := c.HasRarity(context.Background(), "RA04-EN016", "Quarter-Century Secret Rare")
	if err != nil {
		t.Fatalf("HasRarity failed: %v", err)
	}
	if !ok {
		t.Error("punctuation variants of the printed rarity must match")
	}

	ok, err = c.HasRarity(context.Background(), "RA04-EN016", "Common")
	if err != nil {
		t.Fatalf("HasRarity failed: %v", err)
	}
	if ok {
		t.Error("wrong rarity reported as present")
	}
}

func TestSetNameMemoized(t *testing.T) {
	var calls atomic.Int32
	srv := testServer(t, &calls)
	c := testClient(t, srv.URL)

	for i := 0; i < 3; i++ {
		name, err := c.SetName(context.Background(), "ra04")
		if err != nil {
			t.Fatalf("SetName failed: %v", err)
		}
		if name != "Quarter Century Bonanza" {
			t.Errorf("name = %q", name)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("set index fetched %d times, want 1 (memoized)", got)
	}

	if _, err := c.SetName(context.Background(), "NOPE"); err == nil {
		t.Error("unknown set code must fail")
	}
}

func TestSetNameServesStaleIndexDuringRefresh(t *testing.T) {
	block := make(chan struct{})
	refreshStarted := make(chan struct{}, 2)
	var seeded atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/cardsets.php", func(w http.ResponseWriter, r *http.Request) {
		if seeded.Swap(true) {
			// Any fetch after the first is a refresh; hold it.
			refreshStarted <- struct{}{}
			<-block
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"set_name":"Quarter Century Bonanza","set_code":"RA04"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	defer close(block)

	c := New(config.CatalogConfig{
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
		SetsTTL: time.Nanosecond, // every lookup sees a stale index
	})

	if _, err := c.SetName(context.Background(), "RA04"); err != nil {
		t.Fatalf("initial SetName failed: %v", err)
	}

	// Start a lookup that gets stuck refreshing against the blocked server,
	// and wait until its fetch is provably in flight.
	refreshing := make(chan struct{})
	go func() {
		defer close(refreshing)
		_, _ = c.SetName(context.Background(), "RA04")
	}()
	select {
	case <-refreshStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh fetch never started")
	}

	// While that refresh is in flight, lookups must answer from the stale
	// snapshot instead of queueing behind the request.
	done := make(chan error, 1)
	go func() {
		_, err := c.SetName(context.Background(), "RA04")
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("stale-snapshot SetName failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SetName blocked behind an in-flight index refresh")
	}
	select {
	case <-refreshing:
		t.Fatal("refresh completed early; the concurrent lookup did not overlap it")
	default:
	}
}

func TestPrintingMemoized(t *testing.T) {
	srv := testServer(t, nil)
	c := testClient(t, srv.URL)

	if _, err := c.CardName(context.Background(), "RA04-EN016"); err != nil {
		t.Fatalf("CardName failed: %v", err)
	}
	srv.Close() // further lookups must be served from memory

	name, err := c.CardName(context.Background(), "ra04-en016")
	if err != nil {
		t.Fatalf("memoized CardName failed: %v", err)
	}
	if name != "Dark Magician" {
		t.Errorf("name = %q", name)
	}
}
