package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	appconfig "signalflow/config"
)

func testConfig(baseURL string) *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.Source.Binance.BaseURL = baseURL
	cfg.Source.Binance.TimeoutSeconds = 2
	cfg.Source.Binance.ConnectionPool.MaxIdleConns = 4
	cfg.Source.Binance.ConnectionPool.MaxConnsPerHost = 4
	cfg.Source.Binance.RateLimit.RequestsPerSecond = 1000
	cfg.Source.Binance.RateLimit.BurstSize = 100
	cfg.Scanner.QuoteAsset = "USDT"
	cfg.Thresholds.IPBanCooldownMinutes = 10
	return cfg
}

func TestSymbolsFiltersUniverse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathExchangeInfo {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"symbols":[
			{"symbol":"BTCUSDT","status":"TRADING","quoteAsset":"USDT"},
			{"symbol":"ETHBUSD","status":"TRADING","quoteAsset":"BUSD"},
			{"symbol":"OLDUSDT","status":"SETTLING","quoteAsset":"USDT"},
			{"symbol":"ETHUSDT","status":"TRADING","quoteAsset":"USDT"}
		]}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	symbols, err := client.Symbols(context.Background())
	if err != nil {
		t.Fatalf("Symbols returned error: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "BTCUSDT" || symbols[1] != "ETHUSDT" {
		t.Fatalf("unexpected universe: %v", symbols)
	}
}

func TestKlinesParsesPositionalColumns(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("interval"); got != "5m" {
			t.Errorf("interval = %q, want 5m", got)
		}
		w.Write([]byte(`[
			[1700000000000,"100.0","110.0","90.0","105.0","1234.5",1700000299999,"500000.25",10,"1","1","0"],
			[1700000300000,"105.0","115.0","95.0","108.0","2000.0",1700000599999,"750000.00",12,"1","1","0"]
		]`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	candles := client.Klines(context.Background(), "BTCUSDT", "5m", 2)
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	first := candles[0]
	if first.Open != 100 || first.High != 110 || first.Low != 90 || first.Close != 105 {
		t.Fatalf("unexpected OHLC: %+v", first)
	}
	if first.QuoteVolume != 500000.25 {
		t.Fatalf("QuoteVolume = %v, want 500000.25", first.QuoteVolume)
	}
	if first.Volume != 1234.5 {
		t.Fatalf("Volume = %v, want 1234.5", first.Volume)
	}
}

func TestBanResponseTripsBreaker(t *testing.T) {
	var requests int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))

	if _, ok := client.Price(context.Background(), "BTCUSDT"); ok {
		t.Fatal("expected price fetch to fail on 403")
	}
	if got := atomic.LoadInt64(&requests); got != 1 {
		t.Fatalf("expected 1 upstream request, got %d", got)
	}

	// While the pause is active no further requests reach the network.
	if oi := client.OpenInterest(context.Background(), "BTCUSDT"); oi != nil {
		t.Fatalf("expected nil open interest during pause, got %+v", oi)
	}
	if got := atomic.LoadInt64(&requests); got != 1 {
		t.Fatalf("breaker leaked a request upstream: %d total", got)
	}
}

func TestTimeoutReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(3 * time.Second)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Source.Binance.TimeoutSeconds = 1
	client := NewClient(cfg)

	start := time.Now()
	if points := client.OpenInterestHist(context.Background(), "BTCUSDT", "1h", 49); points != nil {
		t.Fatalf("expected nil on timeout, got %d points", len(points))
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout did not bound the request, took %s", elapsed)
	}
}

func TestRatioSeriesParsing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathTopLSRatio {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "288" {
			t.Errorf("limit = %q, want 288", got)
		}
		w.Write([]byte(`[
			{"longShortRatio":"1.25","timestamp":1700000000000},
			{"longShortRatio":"not-a-number","timestamp":1700000300000},
			{"longShortRatio":"1.50","timestamp":1700000600000}
		]`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	points := client.TopLongShortRatio(context.Background(), "BTCUSDT", "5m", 288)
	if len(points) != 2 {
		t.Fatalf("expected 2 parseable points, got %d", len(points))
	}
	if points[0].Value != 1.25 || points[1].Value != 1.5 {
		t.Fatalf("unexpected values: %+v", points)
	}
}

func TestMalformedBodyReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"truncated":`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	if pi := client.PremiumIndex(context.Background(), "BTCUSDT"); pi != nil {
		t.Fatalf("expected nil on malformed body, got %+v", pi)
	}
}
