package processor

import (
	"context"
	"fmt"
	"testing"

	appconfig "signalflow/config"
	"signalflow/internal/model"
)

type fakeUpstream struct {
	oiContracts float64
	hasOI       bool
	price       float64
	hasPrice    bool

	oiHist  map[string][]model.OIPoint
	top     map[string][]model.SeriesPoint
	global  map[string][]model.SeriesPoint
	klines  map[string][]model.Candle
	premium *model.PremiumIndex
	funding []model.FundingPoint
}

func (f *fakeUpstream) OpenInterest(_ context.Context, symbol string) *model.OpenInterest {
	if !f.hasOI {
		return nil
	}
	return &model.OpenInterest{Symbol: symbol, OpenInterest: f.oiContracts, Time: 1}
}

func (f *fakeUpstream) Price(context.Context, string) (float64, bool) {
	return f.price, f.hasPrice
}

func (f *fakeUpstream) OpenInterestHist(_ context.Context, _, period string, limit int) []model.OIPoint {
	return f.oiHist[fmt.Sprintf("%s:%d", period, limit)]
}

func (f *fakeUpstream) TopLongShortRatio(_ context.Context, _, period string, limit int) []model.SeriesPoint {
	return f.top[fmt.Sprintf("%s:%d", period, limit)]
}

func (f *fakeUpstream) GlobalLongShortRatio(_ context.Context, _, period string, limit int) []model.SeriesPoint {
	return f.global[fmt.Sprintf("%s:%d", period, limit)]
}

func (f *fakeUpstream) Klines(_ context.Context, _, interval string, limit int) []model.Candle {
	return f.klines[fmt.Sprintf("%s:%d", interval, limit)]
}

func (f *fakeUpstream) PremiumIndex(context.Context, string) *model.PremiumIndex {
	return f.premium
}

func (f *fakeUpstream) FundingRateHistory(context.Context, string, int) []model.FundingPoint {
	return f.funding
}

// rampSeries builds n ascending-timestamp points starting at base and
// moving by step per point.
func rampSeries(n int, base, step float64) []model.SeriesPoint {
	points := make([]model.SeriesPoint, n)
	for i := range points {
		points[i] = model.SeriesPoint{
			Timestamp: int64(1700000000000 + i*300000),
			Value:     base + float64(i)*step,
		}
	}
	return points
}

func rampOI(n int, base, step float64) []model.OIPoint {
	points := make([]model.OIPoint, n)
	for i := range points {
		points[i] = model.OIPoint{
			Timestamp:            int64(1700000000000 + i*3600000),
			SumOpenInterest:      base + float64(i)*step,
			SumOpenInterestValue: (base + float64(i)*step) * 2,
		}
	}
	return points
}

func twoCandles(closeThen, closeNow, quoteThen, quoteNow float64) []model.Candle {
	return []model.Candle{
		{OpenTime: 1, High: closeThen, Low: closeThen, Close: closeThen, Volume: 1, QuoteVolume: quoteThen},
		{OpenTime: 2, High: closeNow, Low: closeNow, Close: closeNow, Volume: 1, QuoteVolume: quoteNow},
	}
}

func richUpstream() *fakeUpstream {
	u := &fakeUpstream{
		oiContracts: 3_000_000,
		hasOI:       true,
		price:       2,
		hasPrice:    true,
		oiHist:      map[string][]model.OIPoint{},
		top:         map[string][]model.SeriesPoint{},
		global:      map[string][]model.SeriesPoint{},
		klines:      map[string][]model.Candle{},
		premium:     &model.PremiumIndex{Symbol: "AAAUSDT", LastFundingRate: 0.0005},
	}

	// OI notional climbs 10M per hour, 200k per 5m step.
	u.oiHist["1h:49"] = rampOI(49, 100_000_000, 5_000_000)
	u.oiHist["5m:4"] = rampOI(4, 100_000_000, 100_000)

	// Top traders getting longer while the crowd gets shorter.
	u.top["5m:288"] = rampSeries(49, 1.0, 0.01)
	u.global["5m:288"] = rampSeries(49, 2.0, -0.01)
	u.top["5m:3"] = rampSeries(3, 1.40, 0.05)
	u.global["5m:3"] = rampSeries(3, 1.90, -0.01)
	u.top["15m:96"] = rampSeries(96, 1.0, 0.005)
	u.global["15m:96"] = rampSeries(96, 1.5, 0)
	u.top["5m:48"] = rampSeries(48, 1.0, 0.004)
	u.global["5m:48"] = rampSeries(48, 1.5, 0.002)
	u.top["5m:12"] = rampSeries(12, 1.0, 0.01)
	u.global["5m:12"] = rampSeries(12, 1.5, 0)
	u.top["5m:2"] = rampSeries(2, 1.0, 0.02)
	u.global["5m:2"] = rampSeries(2, 1.5, 0.01)
	u.global["5m:1"] = rampSeries(1, 1.8, 0)

	u.klines["5m:2"] = twoCandles(100, 101, 1_000_000, 1_500_000)
	u.klines["15m:2"] = twoCandles(100, 102, 1_000_000, 2_000_000)
	u.klines["1h:2"] = twoCandles(100, 105, 1_000_000, 2_500_000)
	u.klines["4h:2"] = twoCandles(100, 106, 1_000_000, 3_000_000)
	u.klines["12h:2"] = twoCandles(100, 108, 1_000_000, 3_500_000)
	u.klines["1d:2"] = twoCandles(100, 110, 1_000_000, 3_000_000)

	return u
}

func testProcessorConfig() *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.Thresholds.MinimumOpenInterestUSD = 1_000_000
	cfg.Thresholds.FundingRateHigh = 0.001
	cfg.Thresholds.FundingRateLow = -0.001
	return cfg
}

func TestProcessDerivesFullRecord(t *testing.T) {
	u := richUpstream()
	p := New(testProcessorConfig(), u)

	record, err := p.Process(context.Background(), "AAAUSDT")
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if record == nil {
		t.Fatal("expected a record, got nil")
	}

	if record.Symbol != "AAAUSDT" {
		t.Errorf("Symbol = %q", record.Symbol)
	}
	if record.Price != 2 {
		t.Errorf("Price = %v, want 2", record.Price)
	}
	if record.OpenInterest != 6_000_000 {
		t.Errorf("OpenInterest = %v, want 6000000", record.OpenInterest)
	}

	// Ratio history climbs 0.01 per 5m step.
	if record.LSTopPositionRatioChange5m != "0.0100" {
		t.Errorf("LSTopPositionRatioChange5m = %q", record.LSTopPositionRatioChange5m)
	}
	if record.LSTopPositionRatioChange4h != "0.4800" {
		t.Errorf("LSTopPositionRatioChange4h = %q", record.LSTopPositionRatioChange4h)
	}
	if record.LSGlobalAccountRatioChange1h != "-0.1200" {
		t.Errorf("LSGlobalAccountRatioChange1h = %q", record.LSGlobalAccountRatioChange1h)
	}

	// All long/short and divergence deltas are positive.
	if record.LSConvictionScore != 100 {
		t.Errorf("LSConvictionScore = %d, want 100", record.LSConvictionScore)
	}
	if record.DivVectorConvictionScore != 100 {
		t.Errorf("DivVectorConvictionScore = %d, want 100", record.DivVectorConvictionScore)
	}
	if record.Alpha7Score != 100 {
		t.Errorf("Alpha7Score = %v, want 100", record.Alpha7Score)
	}

	// OI up 120M over 24h, whales longer, crowd flat, ratio rising.
	if record.AIScore != 100 {
		t.Errorf("AIScore = %d, want 100", record.AIScore)
	}
	if record.OpenInterestChange24h != "240.00M" {
		t.Errorf("OpenInterestChange24h = %q", record.OpenInterestChange24h)
	}
	if record.OI24hNotional != "240.00M" {
		t.Errorf("OI24hNotional = %q", record.OI24hNotional)
	}

	// First cycle has no previous open interest to diff against.
	if record.OpenInterestChange1m != "0.00M" {
		t.Errorf("OpenInterestChange1m = %q", record.OpenInterestChange1m)
	}
	if record.OpenInterestPercent1m != "N/A" {
		t.Errorf("OpenInterestPercent1m = %q", record.OpenInterestPercent1m)
	}

	if record.TopTraderTrend24h != "Uptrend" {
		t.Errorf("TopTraderTrend24h = %q", record.TopTraderTrend24h)
	}

	if record.Volume24h != "2.00M" {
		t.Errorf("Volume24h = %q", record.Volume24h)
	}
	if record.PriceChange24h != "10.00%" {
		t.Errorf("PriceChange24h = %q", record.PriceChange24h)
	}
	if record.PriceChange1h != "5.00%" {
		t.Errorf("PriceChange1h = %q", record.PriceChange1h)
	}

	// lastFundingRate 0.0005 scaled to percent.
	if record.FundingRate != "0.0500" {
		t.Errorf("FundingRate = %q", record.FundingRate)
	}
	if record.FundingRateSuggestion != "Neutral" {
		t.Errorf("FundingRateSuggestion = %q", record.FundingRateSuggestion)
	}
	// No settlement history was provided.
	if record.FundingRateChange1h != "N/A" {
		t.Errorf("FundingRateChange1h = %q", record.FundingRateChange1h)
	}

	if record.MarketCap != "N/A" {
		t.Errorf("MarketCap = %q", record.MarketCap)
	}
	// No moving-average candles were provided.
	if record.MA15m != "N/A" {
		t.Errorf("MA15m = %q", record.MA15m)
	}
	// No reference candles were installed.
	if record.RelativeStrength24h != "N/A" {
		t.Errorf("RelativeStrength24h = %q", record.RelativeStrength24h)
	}
}

func TestProcessFiltersLowOpenInterest(t *testing.T) {
	u := richUpstream()
	u.oiContracts = 100 // 200 USD of notional

	p := New(testProcessorConfig(), u)
	record, err := p.Process(context.Background(), "DUSTUSDT")
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if record != nil {
		t.Fatalf("expected low-OI symbol to be filtered, got %+v", record)
	}
}

func TestProcessMissingEverythingStillYieldsRecord(t *testing.T) {
	u := &fakeUpstream{
		oiHist: map[string][]model.OIPoint{},
		top:    map[string][]model.SeriesPoint{},
		global: map[string][]model.SeriesPoint{},
		klines: map[string][]model.Candle{},
	}
	cfg := testProcessorConfig()
	cfg.Thresholds.MinimumOpenInterestUSD = 0

	p := New(cfg, u)
	record, err := p.Process(context.Background(), "BBBUSDT")
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if record == nil {
		t.Fatal("expected record for zero-floor config")
	}

	if record.Price != 0 || record.OpenInterest != 0 {
		t.Errorf("expected zero price and OI, got %v / %v", record.Price, record.OpenInterest)
	}
	if record.DivergenceVector24h != "N/A" || record.AlphaDivergenceScore15m != "N/A" {
		t.Errorf("expected N/A divergences, got %q / %q", record.DivergenceVector24h, record.AlphaDivergenceScore15m)
	}
	if record.LSTopPositionRatioChange5m != "N/A" {
		t.Errorf("ratio change = %q, want N/A", record.LSTopPositionRatioChange5m)
	}
	// Short OI histories still report 0, not N/A.
	if record.OpenInterestChange24h != "0.00M" {
		t.Errorf("OpenInterestChange24h = %q, want 0.00M", record.OpenInterestChange24h)
	}
	if record.FundingRate != "N/A" {
		t.Errorf("FundingRate = %q, want N/A", record.FundingRate)
	}
	if record.TopTraderTrend24h != "Sideways" {
		t.Errorf("TopTraderTrend24h = %q, want Sideways", record.TopTraderTrend24h)
	}
	if record.AIScore != 0 {
		t.Errorf("AIScore = %d, want 0", record.AIScore)
	}
}

func TestProcessTracksMinuteDeltaAcrossCycles(t *testing.T) {
	u := richUpstream()
	p := New(testProcessorConfig(), u)

	if _, err := p.Process(context.Background(), "AAAUSDT"); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	// Price moves 2 -> 2.1, lifting the notional from 6.0M to 6.3M.
	u.price = 2.1
	record, err := p.Process(context.Background(), "AAAUSDT")
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}

	if record.OpenInterestChange1m != "0.30M" {
		t.Errorf("OpenInterestChange1m = %q, want 0.30M", record.OpenInterestChange1m)
	}
	if record.OpenInterestPercent1m != "5.00%" {
		t.Errorf("OpenInterestPercent1m = %q, want 5.00%%", record.OpenInterestPercent1m)
	}
}

func TestProcessOIConvictionExcludesUnknownMinuteDelta(t *testing.T) {
	u := richUpstream()
	p := New(testProcessorConfig(), u)

	// First pass: every hist-derived OI delta is positive and the 1m
	// delta does not exist yet, so the score must be a clean 100 rather
	// than diluted by an unknowable slot.
	first, err := p.Process(context.Background(), "AAAUSDT")
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if first.OIConvictionScore != 100 {
		t.Errorf("first-pass OIConvictionScore = %d, want 100", first.OIConvictionScore)
	}

	// Second pass with an unchanged notional: the 1m delta is now a
	// known zero and counts toward the denominator (35/36 rounds to 97).
	second, err := p.Process(context.Background(), "AAAUSDT")
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if second.OIConvictionScore != 97 {
		t.Errorf("second-pass OIConvictionScore = %d, want 97", second.OIConvictionScore)
	}
}

func TestProcessRelativeStrengthAgainstReference(t *testing.T) {
	u := richUpstream()
	p := New(testProcessorConfig(), u)

	// Reference moved 1% while the symbol moved 10%.
	p.SetReference(twoCandles(100, 101, 0, 0))

	record, err := p.Process(context.Background(), "AAAUSDT")
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if record.RelativeStrength24h != "10.00" {
		t.Errorf("RelativeStrength24h = %q, want 10.00", record.RelativeStrength24h)
	}
}
