// Benchmark tool for the price endpoint: measures cold-scrape latency and
// warm-cache latency for a fixed card list, prints a summary table, and
// writes a JSON report.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// CLI flags
var (
	apiURL = flag.String("api-url", "http://localhost:8080", "Pricescout API base URL")
	apiKey = flag.String("api-key", "", "API key for authenticated requests")
	runs   = flag.Int("runs", 3, "Number of warm runs per card for averaging")
	output = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// Test cards covering common lookup shapes.
var testCards = []struct {
	Label   string
	Number  string
	Name    string
	Rarity  string
	Variant string
}{
	{"Plain", "LOB-005", "Dark Magician", "Ultra Rare", ""},
	{"Modern reprint", "RA04-EN016", "", "Quarter Century Secret Rare", ""},
	{"Art variant", "RA04-EN016", "", "Quarter Century Secret Rare", "7"},
	{"Abbreviated rarity", "MP24-EN250", "", "QCSR", ""},
}

// --- Request / Response types (mirrors models package) ---

type priceRequest struct {
	CardNumber   string `json:"card_number"`
	CardName     string `json:"card_name,omitempty"`
	CardRarity   string `json:"card_rarity"`
	ArtVariant   string `json:"art_variant,omitempty"`
	ForceRefresh bool   `json:"force_refresh,omitempty"`
}

type priceResponse struct {
	Success         bool         `json:"success"`
	TCGPrice        *float64     `json:"tcg_price"`
	TCGMarketPrice  *float64     `json:"tcg_market_price"`
	VariantSelected string       `json:"variant_selected"`
	Cached          bool         `json:"cached"`
	Error           *errorDetail `json:"error,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --- Benchmark result types ---

type runResult struct {
	Run       int    `json:"run"`
	LatencyMs int64  `json:"latency_ms"`
	Cached    bool   `json:"cached"`
	HasPrice  bool   `json:"has_price"`
	HasMarket bool   `json:"has_market"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

type cardResult struct {
	Label      string      `json:"label"`
	CardNumber string      `json:"card_number"`
	Rarity     string      `json:"rarity"`
	ColdMs     int64       `json:"cold_ms"`
	WarmRuns   []runResult `json:"warm_runs"`
	WarmAvgMs  float64     `json:"warm_avg_ms"`
	CacheHits  int         `json:"cache_hits"`
}

type benchmarkReport struct {
	Timestamp   string       `json:"timestamp"`
	APIURL      string       `json:"api_url"`
	RunsPerCard int          `json:"runs_per_card"`
	Results     []cardResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== Pricescout Benchmark Suite ===")
	fmt.Printf("API URL:    %s\n", *apiURL)
	fmt.Printf("Warm runs:  %d\n", *runs)
	fmt.Printf("Output:     %s\n", *output)
	fmt.Println()

	// Quick connectivity check.
	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure pricescout is running\n")
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		APIURL:      *apiURL,
		RunsPerCard: *runs,
	}

	for _, tc := range testCards {
		fmt.Printf("Benchmarking [%s] %s %s ...\n", tc.Label, tc.Number, tc.Rarity)
		cr := cardResult{Label: tc.Label, CardNumber: tc.Number, Rarity: tc.Rarity}

		// Cold run: force a live scrape so the cache cannot flatter us.
		fmt.Printf("  Cold ... ")
		cold := lookupCard(tc.Number, tc.Name, tc.Rarity, tc.Variant, true, 0)
		if cold.Success {
			fmt.Printf("OK  %dms\n", cold.LatencyMs)
		} else {
			fmt.Printf("FAILED: %s\n", cold.Error)
		}
		cr.ColdMs = cold.LatencyMs

		// Warm runs should be cache hits.
		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Warm %d/%d ... ", i, *runs)
			rr := lookupCard(tc.Number, tc.Name, tc.Rarity, tc.Variant, false, i)
			if rr.Success {
				fmt.Printf("OK  %dms  cached=%v\n", rr.LatencyMs, rr.Cached)
			} else {
				fmt.Printf("FAILED: %s\n", rr.Error)
			}
			if rr.Cached {
				cr.CacheHits++
			}
			cr.WarmRuns = append(cr.WarmRuns, rr)
		}

		cr.WarmAvgMs = averageLatency(cr.WarmRuns)
		report.Results = append(report.Results, cr)
		fmt.Println()
	}

	printTable(report.Results, *runs)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func lookupCard(number, name, rarity, variant string, forceRefresh bool, run int) runResult {
	rr := runResult{Run: run}

	bodyBytes, err := json.Marshal(priceRequest{
		CardNumber:   number,
		CardName:     name,
		CardRarity:   rarity,
		ArtVariant:   variant,
		ForceRefresh: forceRefresh,
	})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest("POST", *apiURL+"/api/v1/cards/price", bytes.NewReader(bodyBytes))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	client := &http.Client{Timeout: 120 * time.Second}
	start := time.Now()
	resp, err := client.Do(req)
	rr.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	var pr priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	rr.Success = pr.Success
	rr.Cached = pr.Cached
	rr.HasPrice = pr.TCGPrice != nil
	rr.HasMarket = pr.TCGMarketPrice != nil
	if pr.Error != nil {
		rr.Error = pr.Error.Message
	}
	return rr
}

func averageLatency(runs []runResult) float64 {
	var sum float64
	var n int
	for _, r := range runs {
		if !r.Success {
			continue
		}
		sum += float64(r.LatencyMs)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func printTable(results []cardResult, warmRuns int) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Card\tRarity\tCold\tWarm Avg\tCache Hits\n")
	fmt.Fprintf(w, "────\t──────\t────\t────────\t──────────\n")

	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%dms\t%.0fms\t%d/%d\n",
			r.CardNumber,
			truncate(r.Rarity, 30),
			r.ColdMs,
			r.WarmAvgMs,
			r.CacheHits, warmRuns,
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
