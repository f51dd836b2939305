package indicator

import "math"

// Delta is one timeframe-specific input to a conviction score. Invalid
// deltas are excluded from both the signed sum and the denominator.
type Delta struct {
	Weight float64
	Value  float64
	Valid  bool
}

// ConvictionScore is the sign-weighted average of a set of deltas scaled
// to [-100, 100]. A positive delta contributes its full weight, a
// negative one subtracts it, a zero delta contributes nothing but still
// counts toward the denominator. All deltas invalid yields 0.
func ConvictionScore(deltas []Delta) int {
	var score, maxScore float64
	for _, d := range deltas {
		if !d.Valid {
			continue
		}
		maxScore += d.Weight
		if d.Value > 0 {
			score += d.Weight
		} else if d.Value < 0 {
			score -= d.Weight
		}
	}
	if maxScore == 0 {
		return 0
	}
	return int(math.Round((score / maxScore) * 100))
}

// OI conviction weights grow monotonically with timeframe length: a
// 48-hour build-up counts eight times a 1-minute blip.
var oiWeights = [8]float64{1, 2, 3, 4, 5, 6, 7, 8}

// OIConvictionScore scores the eight open-interest deltas ordered
// 1m, 5m, 15m, 1h, 4h, 12h, 24h, 48h.
func OIConvictionScore(changes [8]float64, valid [8]bool) int {
	deltas := make([]Delta, len(oiWeights))
	for i, w := range oiWeights {
		deltas[i] = Delta{Weight: w, Value: changes[i], Valid: valid[i]}
	}
	return ConvictionScore(deltas)
}

// LSConvictionScore scores the long/short ratio deltas ordered
// 15m, 30m, 1h, 4h with weights 2..5.
func LSConvictionScore(changes [4]float64, valid [4]bool) int {
	weights := [4]float64{2, 3, 4, 5}
	deltas := make([]Delta, len(weights))
	for i, w := range weights {
		deltas[i] = Delta{Weight: w, Value: changes[i], Valid: valid[i]}
	}
	return ConvictionScore(deltas)
}

// DivVectorConvictionScore scores the divergence vectors ordered
// 15m, 1h, 4h with weights 1..3.
func DivVectorConvictionScore(vectors [3]float64, valid [3]bool) int {
	weights := [3]float64{1, 2, 3}
	deltas := make([]Delta, len(weights))
	for i, w := range weights {
		deltas[i] = Delta{Weight: w, Value: vectors[i], Valid: valid[i]}
	}
	return ConvictionScore(deltas)
}

// Alpha7 blends the two conviction scores into the composite directional
// signal: 60% long/short conviction, 40% divergence-vector conviction.
// Consumers treat |score| > 50 as directional and the alert threshold
// sits around 75-80.
func Alpha7(lsConviction, divVectorConviction int) float64 {
	return 0.60*float64(lsConviction) + 0.40*float64(divVectorConviction)
}
