package indicator

import (
	"math"
	"testing"

	"signalflow/internal/model"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestDivergenceVectorFormula(t *testing.T) {
	top := ratioSeries(1.0, 1.4)
	global := ratioSeries(1.0, 1.1)

	got, ok := DivergenceVector(top, global)
	if !ok {
		t.Fatalf("expected computable vector")
	}
	if !almostEqual(got, 0.3) {
		t.Fatalf("expected 0.3, got %v", got)
	}
}

func TestDivergenceVectorIsNotAntisymmetric(t *testing.T) {
	// The formula is (topLast-topFirst)-(globalLast-globalFirst), which is
	// the negation only when both windows span the same values. Verify the
	// exact formula rather than an assumed symmetry.
	top := ratioSeries(1.0, 1.4)
	global := ratioSeries(2.0, 2.1)

	ab, _ := DivergenceVector(top, global)
	ba, _ := DivergenceVector(global, top)
	if !almostEqual(ab, 0.3) || !almostEqual(ba, -0.3) {
		t.Fatalf("unexpected vectors %v / %v", ab, ba)
	}
}

func TestDivergenceVectorPreconditions(t *testing.T) {
	if _, ok := DivergenceVector(nil, ratioSeries(1, 2)); ok {
		t.Fatalf("nil top series must not be computable")
	}
	if _, ok := DivergenceVector(ratioSeries(1), ratioSeries(1)); ok {
		t.Fatalf("single-point series must not be computable")
	}
	if _, ok := DivergenceVector(ratioSeries(1, 2, 3), ratioSeries(1, 2)); ok {
		t.Fatalf("length mismatch must not be computable")
	}
}

func TestAlphaDivergenceMultiplier(t *testing.T) {
	top := ratioSeries(1.0, 1.1, 1.5)
	global := ratioSeries(1.0, 1.0, 1.2)
	raw := (1.5 - 1.0) - (1.2 - 1.0)

	got, ok := AlphaDivergence(top, global, 0)
	if !ok || !almostEqual(got, raw) {
		t.Fatalf("conviction 0 must leave divergence unmodified, got %v", got)
	}

	got, ok = AlphaDivergence(top, global, 100)
	if !ok || !almostEqual(got, raw*6) {
		t.Fatalf("conviction 100 must scale by 6, got %v", got)
	}
}

func TestAlphaDivergenceInsufficientData(t *testing.T) {
	if _, ok := AlphaDivergence(ratioSeries(1, 2), ratioSeries(1, 2, 3), 0); ok {
		t.Fatalf("two-point top series must not be computable")
	}
}

func TestTrend24h(t *testing.T) {
	rising := make([]model.SeriesPoint, 96)
	falling := make([]model.SeriesPoint, 96)
	flat := make([]model.SeriesPoint, 96)
	for i := range rising {
		rising[i] = model.SeriesPoint{Timestamp: int64(i), Value: 1 + float64(i)*0.01}
		falling[i] = model.SeriesPoint{Timestamp: int64(i), Value: 2 - float64(i)*0.01}
		flat[i] = model.SeriesPoint{Timestamp: int64(i), Value: 1.5}
	}

	if got := Trend24h(rising); got != TrendUp {
		t.Fatalf("expected %s, got %s", TrendUp, got)
	}
	if got := Trend24h(falling); got != TrendDown {
		t.Fatalf("expected %s, got %s", TrendDown, got)
	}
	if got := Trend24h(flat); got != TrendSideways {
		t.Fatalf("expected %s, got %s", TrendSideways, got)
	}
	if got := Trend24h(rising[:95]); got != TrendSideways {
		t.Fatalf("short series must be %s regardless of shape, got %s", TrendSideways, got)
	}
}

func TestVWAP(t *testing.T) {
	single := []model.Candle{{High: 10, Low: 8, Close: 9, Volume: 100}}
	if got := VWAP(single); got != 9 {
		t.Fatalf("single-candle VWAP must equal typical price, got %v", got)
	}
	if got := VWAP(nil); got != 0 {
		t.Fatalf("empty window VWAP must be 0, got %v", got)
	}
	noVolume := []model.Candle{{High: 10, Low: 8, Close: 9, Volume: 0}}
	if got := VWAP(noVolume); got != 0 {
		t.Fatalf("zero cumulative volume must yield 0, got %v", got)
	}
}

func TestVWAPDeviation(t *testing.T) {
	if got := VWAPDeviation(101, 100); !almostEqual(got, 1) {
		t.Fatalf("expected 1%%, got %v", got)
	}
	if got := VWAPDeviation(101, 0); got != 0 {
		t.Fatalf("zero vwap must yield 0, got %v", got)
	}
}
