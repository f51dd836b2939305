package processor

import "fmt"

// Formatting helpers for derived record fields. Values that could not be
// computed render as the literal "N/A"; the zero-tolerant variants keep
// a genuine 0 visible, the zero-suppressing variants treat 0 as missing
// to match how consumers read the fields.

func formatMillions(v float64) string {
	return fmt.Sprintf("%.2fM", v/1e6)
}

func formatRatio(v float64, ok bool) string {
	if !ok {
		return "N/A"
	}
	return fmt.Sprintf("%.4f", v)
}

func formatNonZeroRatio(v float64, ok bool) string {
	if !ok || v == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.4f", v)
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

func formatNonZeroPercent(v float64) string {
	if v == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", v)
}

func formatOptionalPercent(v float64, ok bool) string {
	if !ok {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", v)
}

func formatFundingChange(v float64, ok bool) string {
	if !ok {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", v)
}

func formatStrength(v float64, ok bool) string {
	if !ok {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", v)
}
