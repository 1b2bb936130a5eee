package models

// Field names a column of DerivedRow. Values match the JSON names.
type Field string

const (
	FieldStrike     Field = "strike"
	FieldSumLtpVol  Field = "sumLtpVol"
	FieldDiffLtpVol Field = "diffLtpVol"
	FieldSumAvgVol  Field = "sumAvgVol"
	FieldDiffAvgVol Field = "diffAvgVol"
	FieldAvgRatio   Field = "avgRatio"
	FieldSumAvgOi   Field = "sumAvgOi"
	FieldDiffAvgOi  Field = "diffAvgOi"
	FieldDiffLtpAvg Field = "diffLtpAvg"
	FieldVwapSum    Field = "vwapSum"
	FieldVwapDiff   Field = "vwapDiff"
)

// MetricFields are the fields whose ranges are tracked per cycle.
var MetricFields = []Field{
	FieldSumLtpVol,
	FieldDiffLtpVol,
	FieldSumAvgVol,
	FieldDiffAvgVol,
	FieldAvgRatio,
	FieldSumAvgOi,
	FieldDiffAvgOi,
	FieldDiffLtpAvg,
	FieldVwapSum,
	FieldVwapDiff,
}

// Valid reports whether f names a sortable column.
func (f Field) Valid() bool {
	if f == FieldStrike {
		return true
	}
	for _, m := range MetricFields {
		if f == m {
			return true
		}
	}
	return false
}

// DerivedRow is the analyzer's output for one strike.
type DerivedRow struct {
	Strike      string  `json:"strike"`
	StrikeValue float64 `json:"-"`
	SumLtpVol   float64 `json:"sumLtpVol"`
	DiffLtpVol  float64 `json:"diffLtpVol"`
	SumAvgVol   float64 `json:"sumAvgVol"`
	DiffAvgVol  float64 `json:"diffAvgVol"`
	AvgRatio    float64 `json:"avgRatio"`
	SumAvgOi    float64 `json:"sumAvgOi"`
	DiffAvgOi   float64 `json:"diffAvgOi"`
	DiffLtpAvg  float64 `json:"diffLtpAvg"`
	VwapSum     float64 `json:"vwapSum"`
	VwapDiff    float64 `json:"vwapDiff"`
}

// Value returns the numeric value of field f. Unknown fields read as 0.
func (r DerivedRow) Value(f Field) float64 {
	switch f {
	case FieldStrike:
		return r.StrikeValue
	case FieldSumLtpVol:
		return r.SumLtpVol
	case FieldDiffLtpVol:
		return r.DiffLtpVol
	case FieldSumAvgVol:
		return r.SumAvgVol
	case FieldDiffAvgVol:
		return r.DiffAvgVol
	case FieldAvgRatio:
		return r.AvgRatio
	case FieldSumAvgOi:
		return r.SumAvgOi
	case FieldDiffAvgOi:
		return r.DiffAvgOi
	case FieldDiffLtpAvg:
		return r.DiffLtpAvg
	case FieldVwapSum:
		return r.VwapSum
	case FieldVwapDiff:
		return r.VwapDiff
	default:
		return 0
	}
}

// MetricRange is the min/max of one field across a cycle's rows.
type MetricRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Ranges maps each metric field to its range for the current cycle.
type Ranges map[Field]MetricRange
