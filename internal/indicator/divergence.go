package indicator

import "signalflow/internal/model"

// DivergenceVector measures how much top-trader positioning moved against
// the crowd over the window: (last-first of top) - (last-first of global).
// Both series must be non-empty, of equal length and hold at least two
// points; otherwise the vector is not computable and ok is false.
func DivergenceVector(top, global []model.SeriesPoint) (float64, bool) {
	if len(top) < 2 || len(global) < 2 || len(top) != len(global) {
		return 0, false
	}

	t := sortedSeries(top)
	g := sortedSeries(global)

	whaleChange := t[len(t)-1].Value - t[0].Value
	crowdChange := g[len(g)-1].Value - g[0].Value

	return whaleChange - crowdChange, true
}

// AlphaDivergence computes the 15-minute alpha divergence: the raw
// three-point divergence amplified by the OI conviction score. With a
// conviction of 0 the multiplier is exactly 1; conviction never flips
// the sign of the raw divergence.
func AlphaDivergence(top, global []model.SeriesPoint, oiConviction int) (float64, bool) {
	if len(top) < 3 || len(global) < 3 {
		return 0, false
	}

	t := sortedSeries(top)
	g := sortedSeries(global)

	topChange := t[2].Value - t[0].Value
	globalChange := g[2].Value - g[0].Value

	divergence := topChange - globalChange
	multiplier := 1 + (float64(oiConviction)/10)*0.5

	return divergence * multiplier, true
}
