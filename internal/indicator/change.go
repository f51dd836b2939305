package indicator

import "signalflow/internal/model"

// OIChange returns the absolute open-interest change in quote-currency
// notional between the latest point and the one `candles` back. A series
// too short to span the window yields 0, not a missing value; the
// conviction score relies on that asymmetry.
func OIChange(points []model.OIPoint, candles int) float64 {
	if candles <= 0 || len(points) <= candles {
		return 0
	}
	p := sortedOI(points)
	now := p[len(p)-1].SumOpenInterestValue
	then := p[len(p)-1-candles].SumOpenInterestValue
	return now - then
}

// OIPercentChange returns the percentage change of open interest in
// contracts over the same window. 0 on insufficient data or a zero base.
func OIPercentChange(points []model.OIPoint, candles int) float64 {
	if candles <= 0 || len(points) <= candles {
		return 0
	}
	p := sortedOI(points)
	now := p[len(p)-1].SumOpenInterest
	then := p[len(p)-1-candles].SumOpenInterest
	if then == 0 {
		return 0
	}
	return ((now - then) / then) * 100
}

// RatioChange returns the long/short ratio delta between the latest point
// and the one `candles` back. Unlike OIChange, a series too short for the
// window reports not-computable rather than 0.
func RatioChange(points []model.SeriesPoint, candles int) (float64, bool) {
	if candles <= 0 || len(points) <= candles {
		return 0, false
	}
	p := sortedSeries(points)
	now := p[len(p)-1].Value
	then := p[len(p)-1-candles].Value
	return now - then, true
}

// VolumeChange is the quote-volume delta between the last two candles.
func VolumeChange(candles []model.Candle) float64 {
	if len(candles) < 2 {
		return 0
	}
	return candles[len(candles)-1].QuoteVolume - candles[len(candles)-2].QuoteVolume
}

// PriceChange is the close-to-close percentage change between the first
// and second candle of a two-candle window.
func PriceChange(candles []model.Candle) (float64, bool) {
	if len(candles) < 2 {
		return 0, false
	}
	then := candles[0].Close
	now := candles[1].Close
	if then == 0 {
		return 0, false
	}
	return ((now - then) / then) * 100, true
}
