package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Gate      GateConfig
	Store     StoreConfig
	Catalog   CatalogConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the session pool and the underlying Chrome processes.
type BrowserConfig struct {
	// PoolSize is the number of long-lived browser processes. Must equal
	// Gate.Capacity; the mismatch is a fatal configuration error.
	PoolSize int // default: 2

	// MaxUsesPerBrowser is the context count after which a browser
	// process is recycled (terminated and relaunched).
	MaxUsesPerBrowser int // default: 40

	// LaunchRetries is the number of relaunch attempts before a slot is
	// marked permanently degraded.
	LaunchRetries int // default: 2

	// Headless controls whether Chrome runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string
}

// ScraperConfig carries the per-state timeouts of the scrape state machine.
type ScraperConfig struct {
	// SearchTimeout bounds SEARCH: navigation to the results page plus
	// the results-rendered polling signal.
	SearchTimeout time.Duration // default: 25s

	// NavigationTimeout bounds NAVIGATE_PRODUCT.
	NavigationTimeout time.Duration // default: 20s

	// PriceWaitTimeout bounds WAIT_FOR_PRICE polling.
	PriceWaitTimeout time.Duration // default: 15s

	// MaxStaggerDelay is the upper bound of the randomized pre-launch
	// delay that spreads simultaneous request starts.
	MaxStaggerDelay time.Duration // default: 400ms

	// RequestTimeout is the hard deadline for one whole scrape operation.
	RequestTimeout time.Duration // default: 90s

	// BlockedResourceTypes lists Chrome resource types dropped at the
	// network layer. Prices render without them; skipping them cuts page
	// weight and settle time.
	BlockedResourceTypes []string // default: Image, Font, Media
}

// GateConfig controls the concurrency admission gate.
type GateConfig struct {
	// Capacity is the number of simultaneous scrape operations admitted.
	Capacity int // default: 2

	// WaitBudget is how long a caller blocks for a slot before the gate
	// reports AdmissionTimeout (the API maps it to 503).
	WaitBudget time.Duration // default: 30s
}

// StoreConfig controls the persistent price cache.
type StoreConfig struct {
	// Path is the badger data directory.
	Path string // default: "./data/prices"

	// FreshFor is how long a stored result is considered fresh.
	FreshFor time.Duration // default: 24h
}

// CatalogConfig controls the read-only card-data API client.
type CatalogConfig struct {
	BaseURL string        // default: "https://db.ygoprodeck.com/api/v7"
	Timeout time.Duration // default: 10s

	// SetsTTL is how long the set-code to set-name index is memoized.
	SetsTTL time.Duration // default: 12h
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool // default: false
	APIKeys []string
}

// RateLimitConfig bounds how fast clients may start scrape operations.
// Scrapes hold a browser for seconds, so limits are phrased per minute.
type RateLimitConfig struct {
	// SharedPerMinute caps admissions across all clients together, sized
	// against what the browser pool can actually work through.
	SharedPerMinute float64 // default: 60
	SharedBurst     int     // default: 10

	// ClientPerMinute caps one identity (API key, else IP) so a single
	// integration cannot drain the shared budget.
	ClientPerMinute float64 // default: 20
	ClientBurst     int     // default: 5
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("PRICESCOUT_HOST", "0.0.0.0"),
			Port: envIntOr("PRICESCOUT_PORT", 8080),
			Mode: envOr("PRICESCOUT_MODE", "release"),
		},
		Browser: BrowserConfig{
			PoolSize:          envIntOr("PRICESCOUT_POOL_SIZE", 2),
			MaxUsesPerBrowser: envIntOr("PRICESCOUT_MAX_USES", 40),
			LaunchRetries:     envIntOr("PRICESCOUT_LAUNCH_RETRIES", 2),
			Headless:          envBoolOr("PRICESCOUT_HEADLESS", true),
			NoSandbox:         envBoolOr("PRICESCOUT_NO_SANDBOX", false),
			BrowserBin:        os.Getenv("PRICESCOUT_BROWSER_BIN"),
		},
		Scraper: ScraperConfig{
			SearchTimeout:     envDurationOr("PRICESCOUT_SEARCH_TIMEOUT", 25*time.Second),
			NavigationTimeout: envDurationOr("PRICESCOUT_NAV_TIMEOUT", 20*time.Second),
			PriceWaitTimeout:  envDurationOr("PRICESCOUT_PRICE_WAIT_TIMEOUT", 15*time.Second),
			MaxStaggerDelay:   envDurationOr("PRICESCOUT_MAX_STAGGER", 400*time.Millisecond),
			RequestTimeout:    envDurationOr("PRICESCOUT_REQUEST_TIMEOUT", 90*time.Second),
			BlockedResourceTypes: envSliceOr("PRICESCOUT_BLOCKED_RESOURCES",
				[]string{"Image", "Font", "Media"}),
		},
		Gate: GateConfig{
			Capacity:   envIntOr("PRICESCOUT_GATE_CAPACITY", 2),
			WaitBudget: envDurationOr("PRICESCOUT_GATE_WAIT", 30*time.Second),
		},
		Store: StoreConfig{
			Path:     envOr("PRICESCOUT_STORE_PATH", "./data/prices"),
			FreshFor: envDurationOr("PRICESCOUT_CACHE_TTL", 24*time.Hour),
		},
		Catalog: CatalogConfig{
			BaseURL: envOr("PRICESCOUT_CATALOG_URL", "https://db.ygoprodeck.com/api/v7"),
			Timeout: envDurationOr("PRICESCOUT_CATALOG_TIMEOUT", 10*time.Second),
			SetsTTL: envDurationOr("PRICESCOUT_CATALOG_SETS_TTL", 12*time.Hour),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PRICESCOUT_AUTH_ENABLED", false),
			APIKeys: envSliceOr("PRICESCOUT_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			SharedPerMinute: envFloatOr("PRICESCOUT_RATE_SHARED_PER_MIN", 60),
			SharedBurst:     envIntOr("PRICESCOUT_RATE_SHARED_BURST", 10),
			ClientPerMinute: envFloatOr("PRICESCOUT_RATE_CLIENT_PER_MIN", 20),
			ClientBurst:     envIntOr("PRICESCOUT_RATE_CLIENT_BURST", 5),
		},
		Log: LogConfig{
			Level:  envOr("PRICESCOUT_LOG_LEVEL", "info"),
			Format: envOr("PRICESCOUT_LOG_FORMAT", "json"),
		},
	}
}

// Validate rejects configurations that would break the resource model.
// Gate capacity and pool size bound the same resource from two sides;
// letting them drift reintroduces either exhaustion or idle capacity.
func (c *Config) Validate() error {
	if c.Browser.PoolSize < 1 {
		return fmt.Errorf("pool size must be at least 1, got %d", c.Browser.PoolSize)
	}
	if c.Gate.Capacity != c.Browser.PoolSize {
		return fmt.Errorf("gate capacity (%d) must equal browser pool size (%d)",
			c.Gate.Capacity, c.Browser.PoolSize)
	}
	if c.Browser.MaxUsesPerBrowser < 1 {
		return fmt.Errorf("max uses per browser must be at least 1, got %d", c.Browser.MaxUsesPerBrowser)
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
