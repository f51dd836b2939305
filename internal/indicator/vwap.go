package indicator

import "signalflow/internal/model"

// VWAP accumulates the volume-weighted typical price (H+L+C)/3 over the
// whole candle window. Zero candles or zero cumulative volume yield 0.
func VWAP(candles []model.Candle) float64 {
	var sumPV, sumV float64
	for _, c := range candles {
		typical := (c.High + c.Low + c.Close) / 3
		sumPV += typical * c.Volume
		sumV += c.Volume
	}
	if sumV == 0 {
		return 0
	}
	return sumPV / sumV
}

// VWAPDeviation is the percentage distance of price from vwap, 0 when
// vwap itself is 0.
func VWAPDeviation(price, vwap float64) float64 {
	if vwap <= 0 {
		return 0
	}
	return ((price - vwap) / vwap) * 100
}
