// Package processor turns one symbol's raw upstream data into a derived
// signal record. Each pass fans out all REST reads concurrently, then
// feeds the results through the indicator library and formats the
// record's display fields.
package processor

import (
	"context"
	"sync"
	"time"

	appconfig "signalflow/config"
	"signalflow/internal/indicator"
	"signalflow/internal/model"
	"signalflow/logger"
)

// Upstream is the slice of the exchange client the processor consumes.
// Every method reports missing data as a nil slice, nil pointer or a
// false ok flag rather than an error.
type Upstream interface {
	OpenInterest(ctx context.Context, symbol string) *model.OpenInterest
	Price(ctx context.Context, symbol string) (float64, bool)
	OpenInterestHist(ctx context.Context, symbol, period string, limit int) []model.OIPoint
	TopLongShortRatio(ctx context.Context, symbol, period string, limit int) []model.SeriesPoint
	GlobalLongShortRatio(ctx context.Context, symbol, period string, limit int) []model.SeriesPoint
	Klines(ctx context.Context, symbol, interval string, limit int) []model.Candle
	PremiumIndex(ctx context.Context, symbol string) *model.PremiumIndex
	FundingRateHistory(ctx context.Context, symbol string, limit int) []model.FundingPoint
}

type prevState struct {
	openInterestUSD float64
	set             bool
}

// Processor derives records for symbols. It keeps a small amount of
// cross-cycle state: the previous pass's open-interest notional per
// symbol (for the 1-minute delta) and the current cycle's reference
// candles (for relative strength).
type Processor struct {
	config   *appconfig.Config
	upstream Upstream
	log      *logger.Log

	mu        sync.Mutex
	prev      map[string]prevState
	reference []model.Candle
}

// New builds a processor on top of the given upstream client.
func New(cfg *appconfig.Config, upstream Upstream) *Processor {
	return &Processor{
		config:   cfg,
		upstream: upstream,
		log:      logger.GetLogger(),
		prev:     make(map[string]prevState),
	}
}

// SetReference installs the reference asset's daily candles for the
// current cycle. The scheduler refreshes these once per cycle so every
// symbol's relative strength is measured against the same window.
func (p *Processor) SetReference(candles []model.Candle) {
	p.mu.Lock()
	p.reference = candles
	p.mu.Unlock()
}

// fetched collects the raw fan-out results for one symbol.
type fetched struct {
	openInterest *model.OpenInterest
	price        float64
	priceOK      bool

	oiHist1h []model.OIPoint
	oiHist5m []model.OIPoint

	topHist    []model.SeriesPoint
	globalHist []model.SeriesPoint

	top15m    []model.SeriesPoint
	global15m []model.SeriesPoint

	top24h    []model.SeriesPoint
	global24h []model.SeriesPoint

	top4h    []model.SeriesPoint
	global4h []model.SeriesPoint

	top1h    []model.SeriesPoint
	global1h []model.SeriesPoint

	topDiv15m    []model.SeriesPoint
	globalDiv15m []model.SeriesPoint

	topDiv5m    []model.SeriesPoint
	globalDiv5m []model.SeriesPoint

	globalLatest []model.SeriesPoint

	klines5m  []model.Candle
	klines15m []model.Candle
	klines1h  []model.Candle
	klines4h  []model.Candle
	klines12h []model.Candle
	klines1d  []model.Candle

	maCandles15m []model.Candle
	maCandles1h  []model.Candle
	maCandles4h  []model.Candle

	premium     *model.PremiumIndex
	fundingHist []model.FundingPoint
}

const maPeriod = 20

func (p *Processor) fetchAll(ctx context.Context, symbol string) *fetched {
	f := &fetched{}
	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	run(func() { f.openInterest = p.upstream.OpenInterest(ctx, symbol) })
	run(func() { f.price, f.priceOK = p.upstream.Price(ctx, symbol) })

	run(func() { f.oiHist1h = p.upstream.OpenInterestHist(ctx, symbol, "1h", 49) })
	run(func() { f.oiHist5m = p.upstream.OpenInterestHist(ctx, symbol, "5m", 4) })

	run(func() { f.topHist = p.upstream.TopLongShortRatio(ctx, symbol, "5m", 288) })
	run(func() { f.globalHist = p.upstream.GlobalLongShortRatio(ctx, symbol, "5m", 288) })

	run(func() { f.top15m = p.upstream.TopLongShortRatio(ctx, symbol, "5m", 3) })
	run(func() { f.global15m = p.upstream.GlobalLongShortRatio(ctx, symbol, "5m", 3) })

	run(func() { f.top24h = p.upstream.TopLongShortRatio(ctx, symbol, "15m", 96) })
	run(func() { f.global24h = p.upstream.GlobalLongShortRatio(ctx, symbol, "15m", 96) })

	run(func() { f.top4h = p.upstream.TopLongShortRatio(ctx, symbol, "5m", 48) })
	run(func() { f.global4h = p.upstream.GlobalLongShortRatio(ctx, symbol, "5m", 48) })

	run(func() { f.top1h = p.upstream.TopLongShortRatio(ctx, symbol, "5m", 12) })
	run(func() { f.global1h = p.upstream.GlobalLongShortRatio(ctx, symbol, "5m", 12) })

	run(func() { f.topDiv15m = p.upstream.TopLongShortRatio(ctx, symbol, "5m", 3) })
	run(func() { f.globalDiv15m = p.upstream.GlobalLongShortRatio(ctx, symbol, "5m", 3) })

	run(func() { f.topDiv5m = p.upstream.TopLongShortRatio(ctx, symbol, "5m", 2) })
	run(func() { f.globalDiv5m = p.upstream.GlobalLongShortRatio(ctx, symbol, "5m", 2) })

	run(func() { f.globalLatest = p.upstream.GlobalLongShortRatio(ctx, symbol, "5m", 1) })

	run(func() { f.klines5m = p.upstream.Klines(ctx, symbol, "5m", 2) })
	run(func() { f.klines15m = p.upstream.Klines(ctx, symbol, "15m", 2) })
	run(func() { f.klines1h = p.upstream.Klines(ctx, symbol, "1h", 2) })
	run(func() { f.klines4h = p.upstream.Klines(ctx, symbol, "4h", 2) })
	run(func() { f.klines12h = p.upstream.Klines(ctx, symbol, "12h", 2) })
	run(func() { f.klines1d = p.upstream.Klines(ctx, symbol, "1d", 2) })

	run(func() { f.maCandles15m = p.upstream.Klines(ctx, symbol, "15m", maPeriod) })
	run(func() { f.maCandles1h = p.upstream.Klines(ctx, symbol, "1h", maPeriod) })
	run(func() { f.maCandles4h = p.upstream.Klines(ctx, symbol, "4h", maPeriod) })

	run(func() { f.premium = p.upstream.PremiumIndex(ctx, symbol) })
	run(func() { f.fundingHist = p.upstream.FundingRateHistory(ctx, symbol, 1000) })

	wg.Wait()
	return f
}

// Process derives one symbol's record. A nil record with a nil error
// means the symbol fell below the open-interest floor and was filtered
// out of the universe for this cycle.
func (p *Processor) Process(ctx context.Context, symbol string) (*model.Record, error) {
	start := time.Now()
	f := p.fetchAll(ctx, symbol)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var price float64
	if f.priceOK {
		price = f.price
	}

	var openInterestUSD float64
	if f.openInterest != nil && price != 0 {
		openInterestUSD = f.openInterest.OpenInterest * price
	}

	if openInterestUSD < p.config.Thresholds.MinimumOpenInterestUSD {
		p.log.WithComponent("processor").WithFields(logger.Fields{
			"symbol":      symbol,
			"oi_notional": openInterestUSD,
		}).Debug("symbol below open interest floor")
		return nil, nil
	}

	p.mu.Lock()
	prev := p.prev[symbol]
	reference := p.reference
	p.mu.Unlock()

	div24h, div24hOK := indicator.DivergenceVector(f.top24h, f.global24h)
	div4h, div4hOK := indicator.DivergenceVector(f.top4h, f.global4h)
	div1h, div1hOK := indicator.DivergenceVector(f.top1h, f.global1h)
	div15m, div15mOK := indicator.DivergenceVector(f.topDiv15m, f.globalDiv15m)
	div5m, div5mOK := indicator.DivergenceVector(f.topDiv5m, f.globalDiv5m)

	oiChange5m := indicator.OIChange(f.oiHist5m, 1)
	oiChange15m := indicator.OIChange(f.oiHist5m, 3)
	oiChange1h := indicator.OIChange(f.oiHist1h, 1)
	oiChange4h := indicator.OIChange(f.oiHist1h, 4)
	oiChange12h := indicator.OIChange(f.oiHist1h, 12)
	oiChange24h := indicator.OIChange(f.oiHist1h, 24)
	oiChange48h := indicator.OIChange(f.oiHist1h, 48)

	oiPercent5m := indicator.OIPercentChange(f.oiHist5m, 1)
	oiPercent15m := indicator.OIPercentChange(f.oiHist5m, 3)
	oiPercent1h := indicator.OIPercentChange(f.oiHist1h, 1)
	oiPercent4h := indicator.OIPercentChange(f.oiHist1h, 4)
	oiPercent12h := indicator.OIPercentChange(f.oiHist1h, 12)
	oiPercent24h := indicator.OIPercentChange(f.oiHist1h, 24)
	oiPercent48h := indicator.OIPercentChange(f.oiHist1h, 48)

	var oiChange1m, oiPercent1m float64
	if prev.set && prev.openInterestUSD != 0 {
		oiChange1m = openInterestUSD - prev.openInterestUSD
		oiPercent1m = (oiChange1m / prev.openInterestUSD) * 100
	}

	// The 1m slot is only knowable once a previous cycle recorded the
	// notional; before that it must not dilute the denominator.
	oiConviction := indicator.OIConvictionScore(
		[8]float64{oiChange1m, oiChange5m, oiChange15m, oiChange1h, oiChange4h, oiChange12h, oiChange24h, oiChange48h},
		[8]bool{prev.set, true, true, true, true, true, true, true},
	)

	alphaDiv15m, alphaDiv15mOK := indicator.AlphaDivergence(f.top15m, f.global15m, oiConviction)

	lsTopChange5m, lsTop5mOK := indicator.RatioChange(f.topHist, 1)
	lsTopChange15m, lsTop15mOK := indicator.RatioChange(f.topHist, 3)
	lsTopChange30m, lsTop30mOK := indicator.RatioChange(f.topHist, 6)
	lsTopChange1h, lsTop1hOK := indicator.RatioChange(f.topHist, 12)
	lsTopChange4h, lsTop4hOK := indicator.RatioChange(f.topHist, 48)

	lsGlobalChange5m, lsGlobal5mOK := indicator.RatioChange(f.globalHist, 1)
	lsGlobalChange15m, lsGlobal15mOK := indicator.RatioChange(f.globalHist, 3)
	lsGlobalChange30m, lsGlobal30mOK := indicator.RatioChange(f.globalHist, 6)
	lsGlobalChange1h, lsGlobal1hOK := indicator.RatioChange(f.globalHist, 12)
	lsGlobalChange4h, lsGlobal4hOK := indicator.RatioChange(f.globalHist, 48)

	lsConviction := indicator.LSConvictionScore(
		[4]float64{lsTopChange15m, lsTopChange30m, lsTopChange1h, lsTopChange4h},
		[4]bool{lsTop15mOK, lsTop30mOK, lsTop1hOK, lsTop4hOK},
	)
	divConviction := indicator.DivVectorConvictionScore(
		[3]float64{div15m, div1h, div4h},
		[3]bool{div15mOK, div1hOK, div4hOK},
	)

	aiScore := indicator.AIScore(oiChange24h, div24h, div24hOK, lsTopChange4h, lsTop4hOK)
	alpha7 := indicator.Alpha7(lsConviction, divConviction)

	vwapDev15m := indicator.VWAPDeviation(price, indicator.VWAP(f.klines15m))
	vwapDev4h := indicator.VWAPDeviation(price, indicator.VWAP(f.klines4h))
	vwapDev1d := indicator.VWAPDeviation(price, indicator.VWAP(f.klines1d))

	priceChange1h, priceChange1hOK := indicator.PriceChange(f.klines1h)
	priceChange24h, priceChange24hOK := indicator.PriceChange(f.klines1d)

	var fundingRate float64
	var fundingOK bool
	if f.premium != nil {
		fundingRate = f.premium.LastFundingRate
		fundingOK = true
	}
	fundingChange15m, f15mOK := indicator.FundingVariation(f.fundingHist, 0.25)
	fundingChange1h, f1hOK := indicator.FundingVariation(f.fundingHist, 1)
	fundingChange4h, f4hOK := indicator.FundingVariation(f.fundingHist, 4)
	fundingChange24h, f24hOK := indicator.FundingVariation(f.fundingHist, 24)
	fundingChange48h, f48hOK := indicator.FundingVariation(f.fundingHist, 48)

	ma15m, ma15mOK := indicator.MovingAverage(f.maCandles15m, maPeriod)
	ma1h, ma1hOK := indicator.MovingAverage(f.maCandles1h, maPeriod)
	ma4h, ma4hOK := indicator.MovingAverage(f.maCandles4h, maPeriod)

	strength, strengthOK := indicator.RelativeStrength(f.klines1d, reference)

	var topRatio float64
	topRatioOK := len(f.top15m) > 0
	if topRatioOK {
		topRatio = f.top15m[0].Value
	}
	var globalRatio float64
	globalRatioOK := len(f.globalLatest) > 0
	if globalRatioOK {
		globalRatio = f.globalLatest[0].Value
	}

	record := &model.Record{
		Symbol:        symbol,
		Price:         price,
		OpenInterest:  openInterestUSD,
		OI24hNotional: formatMillions(oiChange24h),
		Volume24h:     formatMillions(indicator.VolumeChange(f.klines1d)),
		MarketCap:     "N/A",
		Timestamp:     time.Now().Format("15:04:05"),

		AIScore:                 aiScore,
		Alpha7Score:             alpha7,
		AlphaDivergenceScore15m: formatNonZeroRatio(alphaDiv15m, alphaDiv15mOK),

		OIConvictionScore:        oiConviction,
		LSConvictionScore:        lsConviction,
		DivVectorConvictionScore: divConviction,

		DivergenceVector24h: formatNonZeroRatio(div24h, div24hOK),
		DivergenceVector4h:  formatNonZeroRatio(div4h, div4hOK),
		DivergenceVector1h:  formatNonZeroRatio(div1h, div1hOK),
		DivergenceVector15m: formatNonZeroRatio(div15m, div15mOK),
		DivergenceVector5m:  formatNonZeroRatio(div5m, div5mOK),

		TopTraderTrend24h: indicator.Trend24h(f.top24h),

		LSTopPositionRatio:          formatRatio(topRatio, topRatioOK),
		LSTopPositionRatioChange5m:  formatRatio(lsTopChange5m, lsTop5mOK),
		LSTopPositionRatioChange15m: formatRatio(lsTopChange15m, lsTop15mOK),
		LSTopPositionRatioChange30m: formatRatio(lsTopChange30m, lsTop30mOK),
		LSTopPositionRatioChange1h:  formatRatio(lsTopChange1h, lsTop1hOK),
		LSTopPositionRatioChange4h:  formatRatio(lsTopChange4h, lsTop4hOK),

		LSGlobalAccountRatio:          formatRatio(globalRatio, globalRatioOK),
		LSGlobalAccountRatioChange5m:  formatRatio(lsGlobalChange5m, lsGlobal5mOK),
		LSGlobalAccountRatioChange15m: formatRatio(lsGlobalChange15m, lsGlobal15mOK),
		LSGlobalAccountRatioChange30m: formatRatio(lsGlobalChange30m, lsGlobal30mOK),
		LSGlobalAccountRatioChange1h:  formatRatio(lsGlobalChange1h, lsGlobal1hOK),
		LSGlobalAccountRatioChange4h:  formatRatio(lsGlobalChange4h, lsGlobal4hOK),

		VWAPDeviation15m: formatPercent(vwapDev15m),
		VWAPDeviation4h:  formatPercent(vwapDev4h),
		VWAPDeviation1d:  formatPercent(vwapDev1d),

		OpenInterestChange1m:  formatMillions(oiChange1m),
		OpenInterestChange5m:  formatMillions(oiChange5m),
		OpenInterestChange15m: formatMillions(oiChange15m),
		OpenInterestChange1h:  formatMillions(oiChange1h),
		OpenInterestChange4h:  formatMillions(oiChange4h),
		OpenInterestChange12h: formatMillions(oiChange12h),
		OpenInterestChange24h: formatMillions(oiChange24h),
		OpenInterestChange48h: formatMillions(oiChange48h),

		OpenInterestPercent1m:  formatNonZeroPercent(oiPercent1m),
		OpenInterestPercent5m:  formatNonZeroPercent(oiPercent5m),
		OpenInterestPercent15m: formatNonZeroPercent(oiPercent15m),
		OpenInterestPercent1h:  formatNonZeroPercent(oiPercent1h),
		OpenInterestPercent4h:  formatNonZeroPercent(oiPercent4h),
		OpenInterestPercent12h: formatNonZeroPercent(oiPercent12h),
		OpenInterestPercent24h: formatNonZeroPercent(oiPercent24h),
		OpenInterestPercent48h: formatNonZeroPercent(oiPercent48h),

		VolumeChange5m:  formatMillions(indicator.VolumeChange(f.klines5m)),
		VolumeChange15m: formatMillions(indicator.VolumeChange(f.klines15m)),
		VolumeChange1h:  formatMillions(indicator.VolumeChange(f.klines1h)),
		VolumeChange4h:  formatMillions(indicator.VolumeChange(f.klines4h)),
		VolumeChange12h: formatMillions(indicator.VolumeChange(f.klines12h)),
		VolumeChange24h: formatMillions(indicator.VolumeChange(f.klines1d)),

		PriceChange1h:  formatOptionalPercent(priceChange1h, priceChange1hOK),
		PriceChange24h: formatOptionalPercent(priceChange24h, priceChange24hOK),

		FundingRate:           formatNonZeroRatio(fundingRate*100, fundingOK),
		FundingRateChange15m:  formatFundingChange(fundingChange15m, f15mOK),
		FundingRateChange1h:   formatFundingChange(fundingChange1h, f1hOK),
		FundingRateChange4h:   formatFundingChange(fundingChange4h, f4hOK),
		FundingRateChange24h:  formatFundingChange(fundingChange24h, f24hOK),
		FundingRateChange48h:  formatFundingChange(fundingChange48h, f48hOK),
		FundingRateSuggestion: indicator.FundingSuggestion(fundingRate, fundingOK, p.config.Thresholds.FundingRateHigh, p.config.Thresholds.FundingRateLow),

		MA15m: formatRatio(ma15m, ma15mOK),
		MA1h:  formatRatio(ma1h, ma1hOK),
		MA4h:  formatRatio(ma4h, ma4hOK),

		RelativeStrength24h: formatStrength(strength, strengthOK),
	}

	p.mu.Lock()
	p.prev[symbol] = prevState{openInterestUSD: openInterestUSD, set: true}
	p.mu.Unlock()

	if elapsed := time.Since(start); elapsed > 10*time.Second {
		logger.LogPerformanceEntry(p.log.WithComponent("processor"), "processor", "process_symbol", elapsed, logger.Fields{
			"symbol": symbol,
		})
	}

	return record, nil
}
