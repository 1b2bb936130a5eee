// Package monitor owns the analysis state and runs the poll loop that feeds it:
// fetch, analyze, record, notify, broadcast.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/strikewatch/internal/logger"
	"github.com/rewired-gh/strikewatch/internal/models"
)

// Source returns the full current snapshot.
type Source interface {
	Fetch(ctx context.Context) ([]models.InstrumentRow, error)
}

// Notifier delivers signal, error and recovery messages.
type Notifier interface {
	SendSignal(at time.Time, flagged []models.DerivedRow) error
	SendError(cycleErr error) error
	SendRecovery(failureCount int) error
}

// Recorder persists the audit log of each cycle.
type Recorder interface {
	AddCycle(cycle *models.Cycle, raw []models.InstrumentRow) error
	AddSignals(records []models.SignalRecord) error
	MarkNotified(cycleID string) error
	RotateCycles() error
}

// Broadcaster pushes a freshly computed view to consumers.
type Broadcaster interface {
	Publish(ctx context.Context, v View) error
}

// Monitor runs poll cycles against a Source and fans the results out.
type Monitor struct {
	source       Source
	controller   *Controller
	recorder     Recorder
	notifiers    []Notifier
	broadcasters []Broadcaster

	consecutiveFailures int
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithRecorder stores every cycle in r.
func WithRecorder(r Recorder) Option {
	return func(m *Monitor) { m.recorder = r }
}

// WithNotifier adds a notifier.
func WithNotifier(n Notifier) Option {
	return func(m *Monitor) { m.notifiers = append(m.notifiers, n) }
}

// WithBroadcaster adds a broadcaster.
func WithBroadcaster(b Broadcaster) Option {
	return func(m *Monitor) { m.broadcasters = append(m.broadcasters, b) }
}

func New(source Source, controller *Controller, opts ...Option) *Monitor {
	m := &Monitor{source: source, controller: controller}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Controller returns the state the monitor feeds.
func (m *Monitor) Controller() *Controller {
	return m.controller
}

// RunCycle performs one fetch-analyze-publish pass. Only a fetch failure fails the cycle;
// storage, notification and broadcast failures are logged.
func (m *Monitor) RunCycle(ctx context.Context) (View, error) {
	start := time.Now()
	logger.Debug("Starting poll cycle")

	// Shutdown must not abort a fetch in flight; the client timeout bounds it.
	rows, err := m.source.Fetch(context.WithoutCancel(ctx))
	if err != nil {
		return View{}, fmt.Errorf("failed to fetch snapshot: %w", err)
	}

	cycleID := uuid.New().String()
	view := m.controller.OnSnapshot(cycleID, rows)
	flagged := m.controller.Flagged()
	logger.Info("Cycle %s: %d rows, %d strikes, %d flagged", cycleID, len(rows), view.Total, len(flagged))

	m.record(cycleID, view, rows, flagged, time.Since(start))

	if len(flagged) > 0 {
		m.notifySignal(cycleID, view.UpdatedAt, flagged)
	}

	for _, b := range m.broadcasters {
		if err := b.Publish(ctx, view); err != nil {
			logger.Warn("Failed to broadcast view: %v", err)
		}
	}

	logger.Debug("Poll cycle completed in %v", time.Since(start))
	return view, nil
}

func (m *Monitor) record(cycleID string, view View, rows []models.InstrumentRow, flagged []models.DerivedRow, took time.Duration) {
	if m.recorder == nil {
		return
	}
	cycle := &models.Cycle{
		ID:        cycleID,
		FetchedAt: view.UpdatedAt,
		Rows:      len(rows),
		Strikes:   view.Total,
		Signal:    len(flagged) > 0,
		Duration:  took,
	}
	if err := m.recorder.AddCycle(cycle, rows); err != nil {
		logger.Warn("Failed to record cycle %s: %v", cycleID, err)
		return
	}
	records := make([]models.SignalRecord, len(flagged))
	for i, row := range flagged {
		records[i] = models.NewSignalRecord(cycleID, row, view.UpdatedAt)
	}
	if err := m.recorder.AddSignals(records); err != nil {
		logger.Warn("Failed to record signals for cycle %s: %v", cycleID, err)
	}
}

// notifySignal alerts on every signalling cycle; there is no de-duplication across cycles.
func (m *Monitor) notifySignal(cycleID string, at time.Time, flagged []models.DerivedRow) {
	delivered := false
	for _, n := range m.notifiers {
		if err := n.SendSignal(at, flagged); err != nil {
			logger.Error("Failed to send signal notification: %v", err)
			continue
		}
		delivered = true
	}
	if delivered && m.recorder != nil {
		if err := m.recorder.MarkNotified(cycleID); err != nil {
			logger.Warn("Failed to mark cycle %s notified: %v", cycleID, err)
		}
	}
}

// handleCycleResult tracks consecutive failures: one error notification when a failure
// streak starts, one recovery notification when it ends.
func (m *Monitor) handleCycleResult(err error) {
	if err != nil {
		m.consecutiveFailures++
		logger.Error("Poll cycle failed: %v", err)
		if m.consecutiveFailures == 1 {
			for _, n := range m.notifiers {
				if sendErr := n.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification: %v", sendErr)
				}
			}
		}
		return
	}
	if m.consecutiveFailures > 0 {
		for _, n := range m.notifiers {
			if sendErr := n.SendRecovery(m.consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send recovery notification: %v", sendErr)
			}
		}
	}
	m.consecutiveFailures = 0
}

// Run executes one cycle immediately, then one per interval until ctx is cancelled.
// Cycles never overlap: a slow cycle causes ticks to be dropped.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Debug("Running initial poll cycle")
	_, err := m.RunCycle(ctx)
	m.handleCycleResult(err)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Poll loop stopped")
			return

		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			_, err := m.RunCycle(ctx)
			m.handleCycleResult(err)
			if m.recorder != nil {
				if err := m.recorder.RotateCycles(); err != nil {
					logger.Warn("Failed to rotate cycles: %v", err)
				}
			}
		}
	}
}
