package analyzer

import (
	"sort"
	"strings"

	"github.com/rewired-gh/strikewatch/internal/models"
)

// SortConfig is the active sort column and direction. An empty Field means unsorted.
type SortConfig struct {
	Field     models.Field `json:"field"`
	Ascending bool         `json:"ascending"`
}

// NextSort applies the column-toggle rule: the same field flips direction,
// a different field starts ascending.
func NextSort(current SortConfig, field models.Field) SortConfig {
	if current.Field == field {
		return SortConfig{Field: field, Ascending: !current.Ascending}
	}
	return SortConfig{Field: field, Ascending: true}
}

// SortBy returns a stably sorted copy of rows.
func SortBy(rows []models.DerivedRow, field models.Field, ascending bool) []models.DerivedRow {
	out := make([]models.DerivedRow, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Value(field), out[j].Value(field)
		if ascending {
			return a < b
		}
		return a > b
	})
	return out
}

// FilterByStrike returns the rows whose strike contains substr, ignoring case.
func FilterByStrike(rows []models.DerivedRow, substr string) []models.DerivedRow {
	needle := strings.ToLower(substr)
	out := make([]models.DerivedRow, 0, len(rows))
	for _, r := range rows {
		if strings.Contains(strings.ToLower(r.Strike), needle) {
			out = append(out, r)
		}
	}
	return out
}
