// Package models defines the core domain entities: instrument rows, strike pairs, derived rows,
// and the audit records kept per poll cycle.
package models

import "math"

// InstrumentRow is one option-instrument leg from a feed snapshot.
// StrikeKey is the trimmed string form of the strike and is the grouping key.
type InstrumentRow struct {
	StrikeKey    string  `json:"strike_key"`
	LTP          float64 `json:"ltp"`
	TotalVolume  float64 `json:"total_volume"`
	AveragePrice float64 `json:"average_price"`
	OpenInterest float64 `json:"open_interest"`
}

// Leg holds one side of a strike pair together with its per-leg products.
// The zero Leg is the placeholder used when a strike has a single row.
type Leg struct {
	LTP          float64 `json:"ltp"`
	Volume       float64 `json:"volume"`
	AveragePrice float64 `json:"average_price"`
	OpenInterest float64 `json:"open_interest"`
	LtpVol       float64 `json:"ltp_vol"`
	AvgVol       float64 `json:"avg_vol"`
	AvgOi        float64 `json:"avg_oi"`
}

// Finite returns v, or 0 when v is NaN or infinite.
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// NewLeg computes the per-leg products for a row. Products that overflow read as 0.
func NewLeg(r InstrumentRow) Leg {
	ltp, vol := Finite(r.LTP), Finite(r.TotalVolume)
	avg, oi := Finite(r.AveragePrice), Finite(r.OpenInterest)
	return Leg{
		LTP:          ltp,
		Volume:       vol,
		AveragePrice: avg,
		OpenInterest: oi,
		LtpVol:       Finite(ltp * vol),
		AvgVol:       Finite(avg * vol),
		AvgOi:        Finite(ltp * oi),
	}
}

// VWAP approximates the leg's volume-weighted price as LtpVol / Volume.
func (l Leg) VWAP() float64 {
	if l.Volume == 0 {
		return 0
	}
	return Finite(l.LtpVol / l.Volume)
}

// StrikePair is the CE/PE assignment for one strike. HasPE is false when PE is the placeholder.
type StrikePair struct {
	Strike string `json:"strike"`
	CE     Leg    `json:"ce"`
	PE     Leg    `json:"pe"`
	HasPE  bool   `json:"has_pe"`
}
