// Package catalog is a read-only client for the card database API. The
// scrape service uses it to resolve printed card numbers to names, verify
// requested rarities, and expand set codes into the set names the
// marketplace search filters on.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/pricescout/config"
)

// Client queries the card database with a memoized set index. All methods
// are safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client

	mu           sync.Mutex
	setsByCode   map[string]string
	setsLoadedAt time.Time
	setsLoading  bool
	setsTTL      time.Duration

	// printings memoizes per-number lookups; printings never change once
	// published, so entries live for the process lifetime.
	printings map[string]printing
}

type printing struct {
	Name   string `json:"name"`
	SetN   string `json:"set_name"`
	Code   string `json:"set_code"`
	Rarity string `json:"set_rarity"`
}

type cardSet struct {
	SetName string `json:"set_name"`
	SetCode string `json:"set_code"`
}

// New builds a client from config.
func New(cfg config.CatalogConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		http:       &http.Client{Timeout: cfg.Timeout},
		setsTTL:    cfg.SetsTTL,
		setsByCode: map[string]string{},
		printings:  map[string]printing{},
	}
}

// CardName resolves a printed card number ("RA04-EN016") to the card's
// canonical name.
func (c *Client) CardName(ctx context.Context, cardNumber string) (string, error) {
	p, err := c.printing(ctx, cardNumber)
	if err != nil {
		return "", err
	}
	return p.Name, nil
}

// HasRarity reports whether the card number's known printing carries the
// requested rarity. The database records one rarity per printing code, so
// a false here can mean an unlisted reprint rather than a bad request;
// callers treat it as advisory.
func (c *Client) HasRarity(ctx context.Context, cardNumber, rarity string) (bool, error) {
	p, err := c.printing(ctx, cardNumber)
	if err != nil {
		return false, err
	}
	return normalizeRarity(p.Rarity) == normalizeRarity(rarity), nil
}

// SetName expands a set code ("RA04") to its full set name using the
// memoized set index.
func (c *Client) SetName(ctx context.Context, setCode string) (string, error) {
	index, err := c.setIndex(ctx)
	if err != nil {
		return "", err
	}
	name, ok := index[strings.ToUpper(setCode)]
	if !ok {
		return "", fmt.Errorf("unknown set code %q", setCode)
	}
	return name, nil
}

// setIndex returns a usable snapshot of the set-code index, refreshing it
// when stale. The fetch runs outside the lock so concurrent lookups read
// the previous snapshot instead of queueing behind the request. Installed
// snapshots are never mutated, only replaced.
func (c *Client) setIndex(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()
	snapshot := c.setsByCode
	fresh := len(snapshot) > 0 && time.Since(c.setsLoadedAt) <= c.setsTTL
	refreshing := c.setsLoading
	if !fresh && !refreshing {
		c.setsLoading = true
	}
	c.mu.Unlock()

	if fresh {
		return snapshot, nil
	}
	if refreshing && len(snapshot) > 0 {
		// Another lookup is already refreshing; a stale index beats
		// waiting behind its request.
		return snapshot, nil
	}

	index, err := c.fetchSets(ctx)

	c.mu.Lock()
	if !refreshing {
		c.setsLoading = false
	}
	if err == nil {
		c.setsByCode = index
		c.setsLoadedAt = time.Now()
	}
	c.mu.Unlock()

	if err != nil {
		if len(snapshot) > 0 {
			slog.Warn("set index refresh failed, using stale index", "error", err)
			return snapshot, nil
		}
		return nil, err
	}
	slog.Debug("set index refreshed", "sets", len(index))
	return index, nil
}

func (c *Client) printing(ctx context.Context, cardNumber string) (printing, error) {
	key := strings.ToUpper(strings.TrimSpace(cardNumber))

	c.mu.Lock()
	if p, ok := c.printings[key]; ok {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	var p printing
	endpoint := c.baseURL + "/cardsetsinfo.php?setcode=" + url.QueryEscape(key)
	if err := c.getJSON(ctx, endpoint, &p); err != nil {
		return printing{}, fmt.Errorf("lookup printing %q: %w", cardNumber, err)
	}
	if p.Name == "" {
		return printing{}, fmt.Errorf("card number %q not in catalog", cardNumber)
	}

	c.mu.Lock()
	c.printings[key] = p
	c.mu.Unlock()
	return p, nil
}

// fetchSets downloads and shapes the full set index. No locks held.
func (c *Client) fetchSets(ctx context.Context) (map[string]string, error) {
	var sets []cardSet
	if err := c.getJSON(ctx, c.baseURL+"/cardsets.php", &sets); err != nil {
		return nil, fmt.Errorf("load set index: %w", err)
	}

	index := make(map[string]string, len(sets))
	for _, s := range sets {
		if s.SetCode != "" && s.SetName != "" {
			index[strings.ToUpper(s.SetCode)] = s.SetName
		}
	}
	return index, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, endpoint)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32*1024*1024))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// normalizeRarity mirrors the scraper's rarity comparison closely enough
// for an advisory check: lowercase, punctuation stripped.
func normalizeRarity(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
