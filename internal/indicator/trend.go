package indicator

import "signalflow/internal/model"

// Trend labels returned by Trend24h.
const (
	TrendUp       = "Uptrend"
	TrendDown     = "Downtrend"
	TrendSideways = "Sideways"
)

// Trend24h compares a fast moving average over the last 12 points with a
// slow moving average over the full 24h window of 15-minute samples. The
// ±0.5% band around the slow average is a noise filter; inside the band
// the trend is Sideways. Fewer than 96 points (a full day) is always
// Sideways.
func Trend24h(points []model.SeriesPoint) string {
	if len(points) < 96 {
		return TrendSideways
	}

	p := sortedSeries(points)

	var slowSum float64
	for _, pt := range p {
		slowSum += pt.Value
	}
	slowMA := slowSum / float64(len(p))

	fast := p[len(p)-12:]
	var fastSum float64
	for _, pt := range fast {
		fastSum += pt.Value
	}
	fastMA := fastSum / float64(len(fast))

	switch {
	case fastMA > slowMA*1.005:
		return TrendUp
	case fastMA < slowMA*0.995:
		return TrendDown
	default:
		return TrendSideways
	}
}
