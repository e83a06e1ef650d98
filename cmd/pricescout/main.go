package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/pricescout/api"
	"github.com/use-agent/pricescout/browser"
	"github.com/use-agent/pricescout/catalog"
	"github.com/use-agent/pricescout/config"
	"github.com/use-agent/pricescout/gate"
	"github.com/use-agent/pricescout/scraper"
	"github.com/use-agent/pricescout/store"
)

func main() {
	// ── 1. Load and validate configuration ──────────────────────────
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("pricescout starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"poolSize", cfg.Browser.PoolSize,
		"gateCapacity", cfg.Gate.Capacity,
	)

	// ── 3. Open the price store ──────────────────────────────────────
	st, err := store.Open(cfg.Store)
	if err != nil {
		slog.Error("failed to open price store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// ── 4. Card catalog client ───────────────────────────────────────
	cat := catalog.New(cfg.Catalog)

	// ── 5. Browser session pool ──────────────────────────────────────
	// Sessions launch lazily on first checkout, so startup stays fast
	// and a broken Chrome install surfaces as a degraded slot rather
	// than a crash loop.
	pool := browser.NewPool(browser.Options{
		Size:          cfg.Browser.PoolSize,
		MaxUses:       cfg.Browser.MaxUsesPerBrowser,
		LaunchRetries: cfg.Browser.LaunchRetries,
	}, browser.NewRodLauncher(cfg.Browser))
	defer pool.Close()

	// ── 6. Admission gate + scrape service ───────────────────────────
	g := gate.New(cfg.Gate.Capacity, cfg.Gate.WaitBudget)
	svc := scraper.NewService(cfg.Scraper, g, pool, st, cat)

	// ── 7. Setup router ───────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(api.Deps{
		Service: svc,
		Pool:    pool,
		Gate:    g,
		Store:   st,
		Catalog: cat,
		Config:  cfg,
		Start:   startTime,
	})

	// ── 8. Start HTTP server ──────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 9. Graceful shutdown ──────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// pool.Close() and st.Close() run via defer — session teardown and
	// a final badger flush.
	slog.Info("pricescout stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
