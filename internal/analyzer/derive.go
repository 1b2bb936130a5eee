package analyzer

import (
	"math"
	"sort"
	"strconv"

	"github.com/rewired-gh/strikewatch/internal/models"
)

// StrikeValue parses a strike key for ordering. Keys that do not parse order as 0.
func StrikeValue(key string) float64 {
	v, err := strconv.ParseFloat(key, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// DeriveRow computes the metrics of one strike pair. Any metric that overflows reads as 0.
func DeriveRow(p models.StrikePair) models.DerivedRow {
	ce, pe := p.CE, p.PE
	fin := models.Finite

	diffLtpVol := fin(ce.LtpVol - pe.LtpVol)
	diffAvgVol := fin(ce.AvgVol - pe.AvgVol)
	sumAvgVol := fin(ce.AvgVol + pe.AvgVol)

	var avgRatio float64
	if diffAvgVol != 0 {
		avgRatio = fin(math.Abs(sumAvgVol / diffAvgVol / 10))
	}

	ceVWAP, peVWAP := ce.VWAP(), pe.VWAP()

	return models.DerivedRow{
		Strike:      p.Strike,
		StrikeValue: StrikeValue(p.Strike),
		SumLtpVol:   fin(ce.LtpVol + pe.LtpVol),
		DiffLtpVol:  diffLtpVol,
		SumAvgVol:   sumAvgVol,
		DiffAvgVol:  diffAvgVol,
		AvgRatio:    avgRatio,
		SumAvgOi:    fin(ce.AvgOi + pe.AvgOi),
		DiffAvgOi:   fin(ce.AvgOi - pe.AvgOi),
		DiffLtpAvg:  fin(diffLtpVol - diffAvgVol),
		VwapSum:     fin(ceVWAP + peVWAP),
		VwapDiff:    fin(ceVWAP - peVWAP),
	}
}

// Derive computes one row per strike in ascending strike order, and the min/max of
// every metric across exactly those rows. No rows yields an empty Ranges.
func Derive(pairs map[string]models.StrikePair) ([]models.DerivedRow, models.Ranges) {
	strikes := make([]string, 0, len(pairs))
	for s := range pairs {
		strikes = append(strikes, s)
	}
	sort.Slice(strikes, func(i, j int) bool {
		vi, vj := StrikeValue(strikes[i]), StrikeValue(strikes[j])
		if vi != vj {
			return vi < vj
		}
		return strikes[i] < strikes[j]
	})

	ranges := make(models.Ranges, len(models.MetricFields))
	if len(strikes) == 0 {
		return []models.DerivedRow{}, ranges
	}
	for _, f := range models.MetricFields {
		ranges[f] = models.MetricRange{Min: math.Inf(1), Max: math.Inf(-1)}
	}

	rows := make([]models.DerivedRow, 0, len(strikes))
	for _, s := range strikes {
		row := DeriveRow(pairs[s])
		for _, f := range models.MetricFields {
			r := ranges[f]
			v := row.Value(f)
			r.Min = math.Min(r.Min, v)
			r.Max = math.Max(r.Max, v)
			ranges[f] = r
		}
		rows = append(rows, row)
	}
	return rows, ranges
}

// Analyze runs Pair then Derive on a raw snapshot.
func Analyze(rows []models.InstrumentRow, policy Policy) ([]models.DerivedRow, models.Ranges) {
	return Derive(Pair(rows, policy))
}
