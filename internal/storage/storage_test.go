package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/rewired-gh/strikewatch/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(100, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testCycle(id string, fetchedAt time.Time) *models.Cycle {
	return &models.Cycle{
		ID:        id,
		FetchedAt: fetchedAt,
		Rows:      4,
		Strikes:   2,
		Signal:    true,
		Duration:  15 * time.Millisecond,
	}
}

func testRows() []models.InstrumentRow {
	return []models.InstrumentRow{
		{StrikeKey: "100", LTP: 50, TotalVolume: 10, AveragePrice: 40, OpenInterest: 5},
		{StrikeKey: "100", LTP: 30, TotalVolume: 20, AveragePrice: 25, OpenInterest: 8},
	}
}

func TestStorage_AddAndGetCycle(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()
	c := testCycle("cycle-1", now)

	if err := s.AddCycle(c, testRows()); err != nil {
		t.Fatalf("AddCycle: %v", err)
	}
	got, err := s.GetCycle("cycle-1")
	if err != nil {
		t.Fatalf("GetCycle: %v", err)
	}
	if got.ID != c.ID || got.Rows != 4 || got.Strikes != 2 || !got.Signal {
		t.Errorf("got %+v, want %+v", got, c)
	}
	if !got.FetchedAt.Equal(time.Unix(0, now.UnixNano())) {
		t.Errorf("fetched_at = %v, want %v", got.FetchedAt, now)
	}
	if got.Duration != 15*time.Millisecond {
		t.Errorf("duration = %v", got.Duration)
	}
}

func TestStorage_AddCycle_Invalid(t *testing.T) {
	s := newTestStorage(t)
	if err := s.AddCycle(&models.Cycle{}, nil); err == nil {
		t.Error("expected validation error")
	}
}

func TestStorage_GetCycle_NotFound(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.GetCycle("nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.LoadRawRows("nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for raw rows, got %v", err)
	}
}

func TestStorage_RawRowsRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	if err := s.AddCycle(testCycle("c", time.Now()), testRows()); err != nil {
		t.Fatalf("AddCycle: %v", err)
	}
	got, err := s.LoadRawRows("c")
	if err != nil {
		t.Fatalf("LoadRawRows: %v", err)
	}
	if !reflect.DeepEqual(got, testRows()) {
		t.Errorf("raw rows = %+v, want %+v", got, testRows())
	}

	empty := &models.Cycle{ID: "empty", FetchedAt: time.Now()}
	if err := s.AddCycle(empty, nil); err != nil {
		t.Fatalf("AddCycle(empty): %v", err)
	}
	got, err = s.LoadRawRows("empty")
	if err != nil {
		t.Fatalf("LoadRawRows(empty): %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d rows, want 0", len(got))
	}
}

func TestStorage_SignalsAndNotified(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()
	if err := s.AddCycle(testCycle("c1", now), testRows()); err != nil {
		t.Fatalf("AddCycle: %v", err)
	}

	records := []models.SignalRecord{
		models.NewSignalRecord("c1", models.DerivedRow{Strike: "100", DiffLtpVol: -5, DiffAvgVol: 10, AvgRatio: 0.4, DiffAvgOi: 2}, now),
		models.NewSignalRecord("c1", models.DerivedRow{Strike: "150", DiffLtpVol: -1, DiffAvgVol: 3, AvgRatio: 0.9, DiffAvgOi: 1}, now),
	}
	if err := s.AddSignals(records); err != nil {
		t.Fatalf("AddSignals: %v", err)
	}
	if err := s.AddSignals(nil); err != nil {
		t.Fatalf("AddSignals(nil): %v", err)
	}

	got, err := s.GetRecentSignals(10)
	if err != nil {
		t.Fatalf("GetRecentSignals: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d signals, want 2", len(got))
	}
	if got[0].Strike != "100" || got[0].AvgRatio != 0.4 || got[0].Notified {
		t.Errorf("unexpected first signal: %+v", got[0])
	}

	if err := s.MarkNotified("c1"); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	got, _ = s.GetRecentSignals(1)
	if len(got) != 1 || !got[0].Notified {
		t.Errorf("expected one notified signal, got %+v", got)
	}
}

func TestStorage_GetRecentCycles(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()
	for i := 0; i < 3; i++ {
		if err := s.AddCycle(testCycle(fmt.Sprintf("c-%d", i), now.Add(time.Duration(i)*time.Second)), nil); err != nil {
			t.Fatalf("AddCycle: %v", err)
		}
	}
	cycles, err := s.GetRecentCycles(2)
	if err != nil {
		t.Fatalf("GetRecentCycles: %v", err)
	}
	if len(cycles) != 2 || cycles[0].ID != "c-2" || cycles[1].ID != "c-1" {
		t.Errorf("got %+v, want c-2, c-1", cycles)
	}
}

func TestStorage_RotateCycles(t *testing.T) {
	s, err := New(5, ":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	now := time.Now()
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("c-%d", i)
		if err := s.AddCycle(testCycle(id, now.Add(-time.Duration(10-i)*time.Second)), nil); err != nil {
			t.Fatalf("AddCycle: %v", err)
		}
		rec := models.NewSignalRecord(id, models.DerivedRow{Strike: "100"}, now)
		if err := s.AddSignals([]models.SignalRecord{rec}); err != nil {
			t.Fatalf("AddSignals: %v", err)
		}
	}

	if err := s.RotateCycles(); err != nil {
		t.Fatalf("RotateCycles: %v", err)
	}

	cycles, err := s.GetRecentCycles(100)
	if err != nil {
		t.Fatalf("GetRecentCycles: %v", err)
	}
	if len(cycles) != 5 {
		t.Errorf("got %d cycles after rotation, want 5", len(cycles))
	}
	if _, err := s.GetCycle("c-0"); !errors.Is(err, ErrNotFound) {
		t.Error("oldest cycle should have been rotated out")
	}
	signals, err := s.GetRecentSignals(100)
	if err != nil {
		t.Fatalf("GetRecentSignals: %v", err)
	}
	if len(signals) != 5 {
		t.Errorf("got %d signals after rotation, want 5 (cascade)", len(signals))
	}
}

func TestStorage_FileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "strikewatch.db")
	s, err := New(10, path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.AddCycle(testCycle("persisted", time.Now()), testRows()); err != nil {
		t.Fatalf("AddCycle: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := New(10, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.GetCycle("persisted"); err != nil {
		t.Errorf("cycle not persisted: %v", err)
	}
}
