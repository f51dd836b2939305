package indicator

import "signalflow/internal/model"

// MovingAverage is the simple average of the last `period` closes.
// Not computable when the window holds fewer candles than the period.
func MovingAverage(candles []model.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period {
		return 0, false
	}
	var sum float64
	for _, c := range candles[len(candles)-period:] {
		sum += c.Close
	}
	return sum / float64(period), true
}
