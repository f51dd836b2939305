package indicator

import "math"

// oiNotionalThreshold is the 24h open-interest change (quote notional)
// below which the OI component of the AI score stays neutral.
const oiNotionalThreshold = 4_000_000

// AIScore is a fixed-weight sign blend of the 24h OI change, the 24h
// divergence vector and the 4h long/short ratio change, scaled to ±100.
// Invalid inputs contribute nothing.
func AIScore(oiChange24h float64, div24h float64, divOK bool, lsChange4h float64, lsOK bool) int {
	const (
		wOI  = 0.4
		wDiv = 0.35
		wLS  = 0.25
	)

	var score float64

	if oiChange24h > oiNotionalThreshold {
		score += wOI
	} else if oiChange24h < -oiNotionalThreshold {
		score -= wOI
	}

	if divOK {
		if div24h > 0 {
			score += wDiv
		} else if div24h < 0 {
			score -= wDiv
		}
	}

	if lsOK {
		if lsChange4h > 0 {
			score += wLS
		} else if lsChange4h < 0 {
			score -= wLS
		}
	}

	return int(math.Round(score * 100))
}
