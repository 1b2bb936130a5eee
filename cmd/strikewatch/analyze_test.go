package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/strikewatch/internal/config"
	"github.com/rewired-gh/strikewatch/internal/models"
	"github.com/rewired-gh/strikewatch/internal/monitor"
	"github.com/rewired-gh/strikewatch/internal/publish"
)

func loadDefaults(t *testing.T) {
	t.Helper()
	c, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg = c
}

func snapshotRows() []models.InstrumentRow {
	return []models.InstrumentRow{
		{StrikeKey: "100", LTP: 10, TotalVolume: 100, AveragePrice: 50, OpenInterest: 10},
		{StrikeKey: "100", LTP: 9, TotalVolume: 200, AveragePrice: 5, OpenInterest: 1},
		{StrikeKey: "150", LTP: 40, TotalVolume: 10, AveragePrice: 30, OpenInterest: 5},
		{StrikeKey: "150", LTP: 20, TotalVolume: 10, AveragePrice: 20, OpenInterest: 5},
	}
}

func TestPrintAnalysis(t *testing.T) {
	loadDefaults(t)

	var buf bytes.Buffer
	if err := printAnalysis(&buf, "file", snapshotRows(), &viewFlags{}); err != nil {
		t.Fatalf("printAnalysis: %v", err)
	}
	out := buf.String()

	for _, want := range []string{"diffLtpVol", "vwapDiff", "2 of 2 strikes shown", "SIGNAL: 100"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "  100") > strings.Index(out, "  150") {
		t.Errorf("rows should be in strike order:\n%s", out)
	}
}

func TestPrintAnalysis_Flags(t *testing.T) {
	loadDefaults(t)

	var buf bytes.Buffer
	flags := &viewFlags{sort: "diffLtpVol", desc: true, filter: "15"}
	if err := printAnalysis(&buf, "file", snapshotRows(), flags); err != nil {
		t.Fatalf("printAnalysis: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "1 of 2 strikes shown (filter \"15\")") {
		t.Errorf("unexpected summary:\n%s", out)
	}

	if err := printAnalysis(&buf, "file", snapshotRows(), &viewFlags{sort: "bogus"}); err == nil {
		t.Error("expected error for unknown sort field")
	}
}

func TestPrintAnalysis_NoSignal(t *testing.T) {
	loadDefaults(t)

	var buf bytes.Buffer
	if err := printAnalysis(&buf, "file", snapshotRows()[2:], &viewFlags{}); err != nil {
		t.Fatalf("printAnalysis: %v", err)
	}
	if !strings.Contains(buf.String(), "No signal") {
		t.Errorf("expected no signal:\n%s", buf.String())
	}
}

func TestPrintCycles(t *testing.T) {
	var buf bytes.Buffer
	printCycles(&buf, []models.Cycle{
		{ID: "c1", FetchedAt: time.Date(2025, 10, 17, 9, 30, 0, 0, time.UTC), Rows: 4, Strikes: 2, Signal: true, Duration: time.Second},
	})
	out := buf.String()
	if !strings.Contains(out, "c1") || !strings.Contains(out, "2025-10-17 09:30:00") || !strings.Contains(out, "true") {
		t.Errorf("unexpected cycle listing:\n%s", out)
	}
}

type fakeViewSource struct {
	view monitor.View
	err  error
}

func (f fakeViewSource) Latest(context.Context) (monitor.View, error) {
	return f.view, f.err
}

func TestPrintLatest(t *testing.T) {
	loadDefaults(t)
	c := monitor.NewController(cfg.Policy(), cfg.SignalRule())
	v := c.OnSnapshot("cycle-7", snapshotRows())

	var buf bytes.Buffer
	if err := printLatest(context.Background(), &buf, fakeViewSource{view: v}, &viewFlags{filter: "15"}); err != nil {
		t.Fatalf("printLatest: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Cycle cycle-7", "1 of 2 strikes shown", "SIGNAL: 100"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := printLatest(context.Background(), &buf, fakeViewSource{err: publish.ErrNoView}, &viewFlags{}); err != nil {
		t.Fatalf("printLatest with no view: %v", err)
	}
	if !strings.Contains(buf.String(), "No view published yet") {
		t.Errorf("unexpected output: %q", buf.String())
	}

	boom := errors.New("connection refused")
	if err := printLatest(context.Background(), &buf, fakeViewSource{err: boom}, &viewFlags{}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}
