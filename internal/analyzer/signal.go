package analyzer

import "github.com/rewired-gh/strikewatch/internal/models"

// SignalRule is the metric pattern that flags a row. All comparisons must hold:
// DiffLtpVol < MaxDiffLtpVol, DiffAvgVol > MinDiffAvgVol,
// MinAvgRatio <= AvgRatio <= MaxAvgRatio, DiffAvgOi > MinDiffAvgOi.
type SignalRule struct {
	MaxDiffLtpVol float64
	MinDiffAvgVol float64
	MinAvgRatio   float64
	MaxAvgRatio   float64
	MinDiffAvgOi  float64
}

func DefaultSignalRule() SignalRule {
	return SignalRule{
		MaxDiffLtpVol: 0,
		MinDiffAvgVol: 0,
		MinAvgRatio:   0.1,
		MaxAvgRatio:   1,
		MinDiffAvgOi:  0,
	}
}

// Match reports whether row is flagged.
func (r SignalRule) Match(row models.DerivedRow) bool {
	return row.DiffLtpVol < r.MaxDiffLtpVol &&
		row.DiffAvgVol > r.MinDiffAvgVol &&
		row.AvgRatio >= r.MinAvgRatio &&
		row.AvgRatio <= r.MaxAvgRatio &&
		row.DiffAvgOi > r.MinDiffAvgOi
}

// Flagged returns the flagged rows in input order.
func Flagged(rows []models.DerivedRow, rule SignalRule) []models.DerivedRow {
	var out []models.DerivedRow
	for _, row := range rows {
		if rule.Match(row) {
			out = append(out, row)
		}
	}
	return out
}

// DetectSignal reports whether any row of the current snapshot is flagged.
// It has no memory of earlier snapshots.
func DetectSignal(rows []models.DerivedRow, rule SignalRule) bool {
	for _, row := range rows {
		if rule.Match(row) {
			return true
		}
	}
	return false
}
