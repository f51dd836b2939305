package indicator

import "signalflow/internal/model"

// RelativeStrength divides the symbol's percentage price change over a
// candle window by the reference asset's change over the same window.
// When the reference did not move, a rising symbol scores 100 and a flat
// or falling one 0. Windows shorter than two candles, or a zero opening
// reference price, are not computable.
func RelativeStrength(symbol, reference []model.Candle) (float64, bool) {
	if len(symbol) < 2 || len(reference) < 2 {
		return 0, false
	}

	symOpen := symbol[0].Close
	refOpen := reference[0].Close
	if refOpen == 0 || symOpen == 0 {
		return 0, false
	}

	symChange := (symbol[len(symbol)-1].Close - symOpen) / symOpen * 100
	refChange := (reference[len(reference)-1].Close - refOpen) / refOpen * 100

	if refChange == 0 {
		if symChange > 0 {
			return 100, true
		}
		return 0, true
	}

	return symChange / refChange, true
}
