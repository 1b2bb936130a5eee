package monitor

import (
	"sync"
	"time"

	"github.com/rewired-gh/strikewatch/internal/analyzer"
	"github.com/rewired-gh/strikewatch/internal/models"
)

// View is an immutable rendering of the controller state. Rows are in display
// order with the filter applied; Colors is parallel to Rows.
type View struct {
	CycleID   string                            `json:"cycle_id"`
	UpdatedAt time.Time                         `json:"updated_at"`
	Rows      []models.DerivedRow               `json:"rows"`
	Colors    []map[models.Field]analyzer.Color `json:"colors"`
	Ranges    models.Ranges                     `json:"ranges"`
	Sort      analyzer.SortConfig               `json:"sort"`
	Filter    string                            `json:"filter"`
	Signal    bool                              `json:"signal"`
	Flagged   []string                          `json:"flagged"`
	Total     int                               `json:"total"`
}

// Controller owns the derived state of the latest snapshot and the user's sort
// and filter choices. All methods are safe for concurrent use.
type Controller struct {
	mu sync.RWMutex

	policy analyzer.Policy
	rule   analyzer.SignalRule

	raw       []models.InstrumentRow
	rows      []models.DerivedRow // strike order
	display   []models.DerivedRow // rows in current sort order
	ranges    models.Ranges
	flagged   []models.DerivedRow
	base      analyzer.SortConfig // configured order, applied to every snapshot
	sort      analyzer.SortConfig // order display follows
	last      analyzer.SortConfig // last user choice, for toggling
	filter    string
	cycleID   string
	updatedAt time.Time
}

// NewController creates an empty controller.
func NewController(policy analyzer.Policy, rule analyzer.SignalRule) *Controller {
	return &Controller{
		policy: policy,
		rule:   rule,
		ranges: models.Ranges{},
	}
}

// SetDefaultSort sets the order every snapshot starts from. An empty field means strike order.
func (c *Controller) SetDefaultSort(cfg analyzer.SortConfig) View {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = cfg
	c.sort = cfg
	c.applySort()
	return c.viewLocked()
}

// OnSnapshot replaces all derived state with the analysis of rows. Display order
// returns to the default order, dropping any user sort; the filter text is kept.
func (c *Controller) OnSnapshot(cycleID string, rows []models.InstrumentRow) View {
	derived, ranges := analyzer.Analyze(rows, c.policy)
	flagged := analyzer.Flagged(derived, c.rule)

	raw := make([]models.InstrumentRow, len(rows))
	copy(raw, rows)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw = raw
	c.rows = derived
	c.sort = c.base
	c.applySort()
	c.ranges = ranges
	c.flagged = flagged
	c.cycleID = cycleID
	c.updatedAt = time.Now()
	return c.viewLocked()
}

// SortBy applies the column-toggle rule for field and re-sorts the current rows.
// It toggles against the order on screen, or against the last user choice when
// the rows are in strike order.
func (c *Controller) SortBy(field models.Field) View {
	c.mu.Lock()
	defer c.mu.Unlock()
	from := c.sort
	if from.Field == "" {
		from = c.last
	}
	c.sort = analyzer.NextSort(from, field)
	c.last = c.sort
	c.applySort()
	return c.viewLocked()
}

// Filter sets the strike filter text. An empty string shows every row.
func (c *Controller) Filter(text string) View {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = text
	return c.viewLocked()
}

// View returns a copy of the current state.
func (c *Controller) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewLocked()
}

// Flagged returns a copy of the flagged rows of the latest snapshot, in strike order.
func (c *Controller) Flagged() []models.DerivedRow {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.DerivedRow, len(c.flagged))
	copy(out, c.flagged)
	return out
}

// Raw returns a copy of the rows of the latest snapshot.
func (c *Controller) Raw() []models.InstrumentRow {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.InstrumentRow, len(c.raw))
	copy(out, c.raw)
	return out
}

func (c *Controller) applySort() {
	if c.sort.Field == "" {
		c.display = c.rows
		return
	}
	c.display = analyzer.SortBy(c.rows, c.sort.Field, c.sort.Ascending)
}

func (c *Controller) viewLocked() View {
	ranges := make(models.Ranges, len(c.ranges))
	for f, r := range c.ranges {
		ranges[f] = r
	}
	flagged := make([]string, len(c.flagged))
	for i, r := range c.flagged {
		flagged[i] = r.Strike
	}
	return render(View{
		CycleID:   c.cycleID,
		UpdatedAt: c.updatedAt,
		Ranges:    ranges,
		Sort:      c.sort,
		Filter:    c.filter,
		Signal:    len(c.flagged) > 0,
		Flagged:   flagged,
		Total:     len(c.rows),
	}, c.display)
}

// render fills Rows and Colors of v from rows, applying v.Filter. rows is never modified.
func render(v View, rows []models.DerivedRow) View {
	if v.Filter != "" {
		rows = analyzer.FilterByStrike(rows, v.Filter)
	}
	v.Rows = make([]models.DerivedRow, len(rows))
	copy(v.Rows, rows)
	v.Colors = make([]map[models.Field]analyzer.Color, len(rows))
	for i, r := range rows {
		v.Colors[i] = analyzer.RowColors(r, v.Ranges)
	}
	return v
}

// Resorted returns a copy of v sorted by field. v itself is unchanged.
func (v View) Resorted(field models.Field, ascending bool) View {
	out := v
	out.Sort = analyzer.SortConfig{Field: field, Ascending: ascending}
	return render(out, analyzer.SortBy(v.Rows, field, ascending))
}

// Refiltered returns a copy of v narrowed to strikes containing text.
func (v View) Refiltered(text string) View {
	out := v
	out.Filter = text
	return render(out, v.Rows)
}
