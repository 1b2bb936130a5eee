// Package analyzer pairs CE/PE legs per strike, derives the strike metrics and their
// cycle ranges, and evaluates the signal rule. Every function is pure.
package analyzer

import (
	"fmt"
	"sort"

	"github.com/rewired-gh/strikewatch/internal/models"
)

// Policy decides what happens to a strike with fewer than two rows.
type Policy int

const (
	// PolicyZeroLeg keeps the strike and uses a zero-valued PE leg.
	PolicyZeroLeg Policy = iota
	// PolicyDropIncomplete drops the strike.
	PolicyDropIncomplete
)

// ParsePolicy maps the config spelling to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "zero_leg":
		return PolicyZeroLeg, nil
	case "drop":
		return PolicyDropIncomplete, nil
	default:
		return PolicyZeroLeg, fmt.Errorf("unknown incomplete strike policy %q", s)
	}
}

func (p Policy) String() string {
	if p == PolicyDropIncomplete {
		return "drop"
	}
	return "zero_leg"
}

// Pair groups rows by strike key and assigns the highest-LTP row to CE and the
// second-highest to PE. Ties keep input order. Rows beyond the second are ignored.
func Pair(rows []models.InstrumentRow, policy Policy) map[string]models.StrikePair {
	groups := make(map[string][]models.InstrumentRow)
	for _, r := range rows {
		if r.StrikeKey == "" {
			continue
		}
		groups[r.StrikeKey] = append(groups[r.StrikeKey], r)
	}

	pairs := make(map[string]models.StrikePair, len(groups))
	for strike, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].LTP > group[j].LTP
		})

		pair := models.StrikePair{
			Strike: strike,
			CE:     models.NewLeg(group[0]),
		}
		if len(group) > 1 {
			pair.PE = models.NewLeg(group[1])
			pair.HasPE = true
		} else if policy == PolicyDropIncomplete {
			continue
		}
		pairs[strike] = pair
	}
	return pairs
}
