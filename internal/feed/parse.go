package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rewired-gh/strikewatch/internal/models"
)

// Column names in the snapshot feed.
const (
	colStrike       = "Strike Price"
	colLTP          = "LTP"
	colTotalVolume  = "T.Volume"
	colAveragePrice = "Avg Price"
	colOpenInterest = "OI"
)

// envelope is the backend's response wrapper.
type envelope struct {
	Success *bool             `json:"success"`
	Message string            `json:"message"`
	Data    []json.RawMessage `json:"data"`
}

// DecodeSnapshot decodes a feed body: either {"data":[...]} or a bare array of rows.
func DecodeSnapshot(body []byte) ([]models.InstrumentRow, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty snapshot body")
	}

	var raw []json.RawMessage
	if body[0] == '[' {
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode rows: %w", err)
		}
	} else {
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("failed to decode envelope: %w", err)
		}
		if env.Success != nil && !*env.Success {
			return nil, fmt.Errorf("feed reported failure: %s", env.Message)
		}
		raw = env.Data
	}

	records := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		var rec map[string]any
		if err := json.Unmarshal(r, &rec); err != nil {
			// Non-object entries carry no strike and are dropped like blank strikes.
			continue
		}
		records = append(records, rec)
	}
	return ParseRows(records), nil
}

// LoadFile reads a snapshot saved in feed format.
func LoadFile(path string) ([]models.InstrumentRow, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return DecodeSnapshot(body)
}

// ParseRows maps feed records to typed rows. Numeric fields that are missing or
// unparseable become 0; records with a blank strike are dropped.
func ParseRows(records []map[string]any) []models.InstrumentRow {
	rows := make([]models.InstrumentRow, 0, len(records))
	for _, rec := range records {
		key := strikeKey(rec[colStrike])
		if key == "" {
			continue
		}
		rows = append(rows, models.InstrumentRow{
			StrikeKey:    key,
			LTP:          number(rec[colLTP]),
			TotalVolume:  number(rec[colTotalVolume]),
			AveragePrice: number(rec[colAveragePrice]),
			OpenInterest: number(rec[colOpenInterest]),
		})
	}
	return rows
}

func strikeKey(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case float64:
		// A numeric zero strike is treated as missing.
		if s == 0 {
			return ""
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		if !s {
			return ""
		}
		return "true"
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}

// number parses the leading float of v the way a lenient client would; anything else is 0.
func number(v any) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case json.Number:
		f, _ = n.Float64()
	case string:
		f = leadingFloat(strings.TrimSpace(n))
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// leadingFloat parses the longest numeric prefix of s, so "12.5 Cr" reads as 12.5.
func leadingFloat(s string) float64 {
	end := 0
	seenDigit, seenDot, seenExp := false, false, false
scan:
	for end < len(s) {
		c := s[end]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
		case (c == '+' || c == '-') && (end == 0 || s[end-1] == 'e' || s[end-1] == 'E'):
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
		case (c == 'e' || c == 'E') && seenDigit && !seenExp:
			seenExp = true
		default:
			break scan
		}
		end++
	}
	for end > 0 {
		if f, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return f
		}
		end--
	}
	return 0
}
