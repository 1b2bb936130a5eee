package models

import (
	"errors"
	"time"
)

// Cycle is the audit record of one poll cycle.
type Cycle struct {
	ID        string        `json:"id"`
	FetchedAt time.Time     `json:"fetched_at"`
	Rows      int           `json:"rows"`
	Strikes   int           `json:"strikes"`
	Signal    bool          `json:"signal"`
	Duration  time.Duration `json:"duration"`
}

// Validate checks cycle field constraints.
func (c *Cycle) Validate() error {
	if c.ID == "" {
		return errors.New("cycle ID must not be empty")
	}
	if c.FetchedAt.IsZero() {
		return errors.New("fetched at must be set")
	}
	if c.Rows < 0 {
		return errors.New("row count must not be negative")
	}
	if c.Strikes < 0 {
		return errors.New("strike count must not be negative")
	}
	if c.Strikes > c.Rows {
		return errors.New("strike count must be <= row count")
	}
	if c.Signal && c.Strikes == 0 {
		return errors.New("a signalling cycle must have at least one strike")
	}
	return nil
}

// SignalRecord is one flagged strike within a cycle.
type SignalRecord struct {
	CycleID    string    `json:"cycle_id"`
	Strike     string    `json:"strike"`
	DiffLtpVol float64   `json:"diffLtpVol"`
	DiffAvgVol float64   `json:"diffAvgVol"`
	AvgRatio   float64   `json:"avgRatio"`
	DiffAvgOi  float64   `json:"diffAvgOi"`
	SumLtpVol  float64   `json:"sumLtpVol"`
	DetectedAt time.Time `json:"detected_at"`
	Notified   bool      `json:"notified"`
}

// NewSignalRecord builds the record of a flagged row.
func NewSignalRecord(cycleID string, row DerivedRow, at time.Time) SignalRecord {
	return SignalRecord{
		CycleID:    cycleID,
		Strike:     row.Strike,
		DiffLtpVol: row.DiffLtpVol,
		DiffAvgVol: row.DiffAvgVol,
		AvgRatio:   row.AvgRatio,
		DiffAvgOi:  row.DiffAvgOi,
		SumLtpVol:  row.SumLtpVol,
		DetectedAt: at,
	}
}
