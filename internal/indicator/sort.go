package indicator

import (
	"sort"

	"signalflow/internal/model"
)

// The upstream history endpoints do not guarantee response order, so
// every transform that compares "now" against "N candles ago" sorts a
// private copy first. Inputs are never mutated.

func sortedSeries(points []model.SeriesPoint) []model.SeriesPoint {
	out := make([]model.SeriesPoint, len(points))
	copy(out, points)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

func sortedOI(points []model.OIPoint) []model.OIPoint {
	out := make([]model.OIPoint, len(points))
	copy(out, points)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

func sortedFundingDesc(points []model.FundingPoint) []model.FundingPoint {
	out := make([]model.FundingPoint, len(points))
	copy(out, points)
	sort.Slice(out, func(i, j int) bool { return out[i].FundingTime > out[j].FundingTime })
	return out
}
