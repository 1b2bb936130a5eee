package analyzer

import (
	"fmt"
	"math"

	"github.com/rewired-gh/strikewatch/internal/models"
)

// NeutralColor is returned for a missing or degenerate range.
const NeutralColor = "white"

const blueChannel = 200

// Color is a cell background on the red-to-green scale.
type Color struct {
	R, G, B int
	Neutral bool
}

func (c Color) String() string {
	if c.Neutral {
		return NeutralColor
	}
	return fmt.Sprintf("rgb(%d,%d,%d)", c.R, c.G, c.B)
}

// MarshalText renders the color as a CSS color value.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses the output of MarshalText.
func (c *Color) UnmarshalText(text []byte) error {
	if string(text) == NeutralColor {
		*c = Color{Neutral: true}
		return nil
	}
	var out Color
	if _, err := fmt.Sscanf(string(text), "rgb(%d,%d,%d)", &out.R, &out.G, &out.B); err != nil {
		return fmt.Errorf("invalid color %q: %w", text, err)
	}
	*c = out
	return nil
}

// ColorFor places value within rng: the range minimum is pure red, the maximum pure green.
func ColorFor(value float64, rng models.MetricRange, ok bool) Color {
	if !ok || rng.Max == rng.Min {
		return Color{Neutral: true}
	}
	ratio := (value - rng.Min) / (rng.Max - rng.Min)
	ratio = math.Max(0, math.Min(1, ratio))
	return Color{
		R: int(math.Round(255 * (1 - ratio))),
		G: int(math.Round(255 * ratio)),
		B: blueChannel,
	}
}

// RowColors returns the color of every metric cell of row.
func RowColors(row models.DerivedRow, ranges models.Ranges) map[models.Field]Color {
	colors := make(map[models.Field]Color, len(models.MetricFields))
	for _, f := range models.MetricFields {
		rng, ok := ranges[f]
		colors[f] = ColorFor(row.Value(f), rng, ok)
	}
	return colors
}
