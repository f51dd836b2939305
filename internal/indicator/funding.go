package indicator

import "signalflow/internal/model"

// Funding-rate suggestion labels.
const (
	FundingHigh    = "High"
	FundingLow     = "Low"
	FundingNeutral = "Neutral"
)

// FundingVariation returns the percentage change of the funding rate from
// the first settlement at or before hoursBack hours ago to the latest
// settlement. Not computable when fewer than two points exist, no entry
// is old enough, or the base rate is 0.
func FundingVariation(points []model.FundingPoint, hoursBack float64) (float64, bool) {
	if len(points) < 2 {
		return 0, false
	}

	p := sortedFundingDesc(points)

	latest := p[0].FundingRate
	target := p[0].FundingTime - int64(hoursBack*60*60*1000)

	var past *model.FundingPoint
	for i := 1; i < len(p); i++ {
		if p[i].FundingTime <= target {
			past = &p[i]
			break
		}
	}
	if past == nil || past.FundingRate == 0 {
		return 0, false
	}

	return ((latest - past.FundingRate) / past.FundingRate) * 100, true
}

// FundingSuggestion buckets the current funding rate against configured
// high/low thresholds.
func FundingSuggestion(rate float64, ok bool, high, low float64) string {
	if !ok {
		return FundingNeutral
	}
	if rate > high {
		return FundingHigh
	}
	if rate < low {
		return FundingLow
	}
	return FundingNeutral
}
