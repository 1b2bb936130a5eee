// Package storage provides SQLite-backed persistence for the poll-cycle audit log:
// cycles, flagged strikes, and the compressed raw snapshot of each cycle.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/strikewatch/internal/models"
)

// ErrNotFound is returned when a cycle does not exist.
var ErrNotFound = errors.New("not found")

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db        *sql.DB
	maxCycles int
	enc       *zstd.Encoder
	dec       *zstd.Decoder
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/strikewatch/data.db.
func New(maxCycles int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "strikewatch", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	s := &Storage{db: db, maxCycles: maxCycles, enc: enc, dec: dec}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
			id          TEXT PRIMARY KEY,
			fetched_at  INTEGER NOT NULL,
			row_count   INTEGER NOT NULL,
			strike_count INTEGER NOT NULL,
			signal      INTEGER NOT NULL DEFAULT 0,
			duration_ns INTEGER NOT NULL DEFAULT 0,
			raw         BLOB
		)`,
		`CREATE TABLE IF NOT EXISTS signals (
			cycle_id      TEXT NOT NULL REFERENCES cycles(id) ON DELETE CASCADE,
			strike        TEXT NOT NULL,
			diff_ltp_vol  REAL NOT NULL,
			diff_avg_vol  REAL NOT NULL,
			avg_ratio     REAL NOT NULL,
			diff_avg_oi   REAL NOT NULL,
			sum_ltp_vol   REAL NOT NULL,
			detected_at   INTEGER NOT NULL,
			notified      INTEGER DEFAULT 0,
			PRIMARY KEY (cycle_id, strike)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_fetched_at ON cycles(fetched_at)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_detected_at ON signals(detected_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AddCycle stores a cycle and the zstd-compressed JSON of its raw rows.
func (s *Storage) AddCycle(cycle *models.Cycle, raw []models.InstrumentRow) error {
	if err := cycle.Validate(); err != nil {
		return fmt.Errorf("invalid cycle: %w", err)
	}
	if raw == nil {
		raw = []models.InstrumentRow{}
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal raw rows: %w", err)
	}
	compressed := s.enc.EncodeAll(payload, nil)

	_, err = s.db.Exec(`
		INSERT INTO cycles (id, fetched_at, row_count, strike_count, signal, duration_ns, raw)
		VALUES (?,?,?,?,?,?,?)`,
		cycle.ID, cycle.FetchedAt.UnixNano(), cycle.Rows, cycle.Strikes,
		boolToInt(cycle.Signal), int64(cycle.Duration), compressed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cycle: %w", err)
	}
	return nil
}

func (s *Storage) GetCycle(id string) (*models.Cycle, error) {
	row := s.db.QueryRow(`SELECT `+cycleCols+` FROM cycles WHERE id = ?`, id)
	c, err := scanCycle(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cycle %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cycle: %w", err)
	}
	return c, nil
}

// GetRecentCycles returns up to k cycles, newest first.
func (s *Storage) GetRecentCycles(k int) ([]models.Cycle, error) {
	rows, err := s.db.Query(`SELECT `+cycleCols+` FROM cycles ORDER BY fetched_at DESC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	cycles := []models.Cycle{}
	for rows.Next() {
		c, err := scanCycle(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		cycles = append(cycles, *c)
	}
	return cycles, rows.Err()
}

// LoadRawRows decompresses the raw snapshot stored with a cycle.
func (s *Storage) LoadRawRows(id string) ([]models.InstrumentRow, error) {
	var compressed []byte
	err := s.db.QueryRow(`SELECT raw FROM cycles WHERE id = ?`, id).Scan(&compressed)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cycle %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load raw rows: %w", err)
	}

	payload, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress raw rows: %w", err)
	}
	var rows []models.InstrumentRow
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raw rows: %w", err)
	}
	return rows, nil
}

// AddSignals stores the flagged strikes of one cycle in a single transaction.
func (s *Storage) AddSignals(records []models.SignalRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range records {
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO signals
				(cycle_id, strike, diff_ltp_vol, diff_avg_vol, avg_ratio, diff_avg_oi,
				 sum_ltp_vol, detected_at, notified)
			VALUES (?,?,?,?,?,?,?,?,?)`,
			r.CycleID, r.Strike, r.DiffLtpVol, r.DiffAvgVol, r.AvgRatio, r.DiffAvgOi,
			r.SumLtpVol, r.DetectedAt.UnixNano(), boolToInt(r.Notified),
		)
		if err != nil {
			return fmt.Errorf("failed to insert signal: %w", err)
		}
	}
	return tx.Commit()
}

// MarkNotified flags every signal of a cycle as delivered.
func (s *Storage) MarkNotified(cycleID string) error {
	if _, err := s.db.Exec(`UPDATE signals SET notified = 1 WHERE cycle_id = ?`, cycleID); err != nil {
		return fmt.Errorf("failed to mark signals notified: %w", err)
	}
	return nil
}

// GetRecentSignals returns up to k flagged strikes, newest first.
func (s *Storage) GetRecentSignals(k int) ([]models.SignalRecord, error) {
	rows, err := s.db.Query(`
		SELECT cycle_id, strike, diff_ltp_vol, diff_avg_vol, avg_ratio, diff_avg_oi,
		       sum_ltp_vol, detected_at, notified
		FROM signals ORDER BY detected_at DESC, strike ASC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	records := []models.SignalRecord{}
	for rows.Next() {
		var r models.SignalRecord
		var detectedAtNano int64
		var notified int

		err := rows.Scan(
			&r.CycleID, &r.Strike, &r.DiffLtpVol, &r.DiffAvgVol, &r.AvgRatio, &r.DiffAvgOi,
			&r.SumLtpVol, &detectedAtNano, &notified,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		r.DetectedAt = time.Unix(0, detectedAtNano)
		r.Notified = notified != 0
		records = append(records, r)
	}
	return records, rows.Err()
}

// RotateCycles keeps at most maxCycles newest cycles by fetched_at.
// Cascading deletes remove the associated signals.
func (s *Storage) RotateCycles() error {
	_, err := s.db.Exec(`
		DELETE FROM cycles WHERE id NOT IN (
			SELECT id FROM cycles ORDER BY fetched_at DESC LIMIT ?
		)`, s.maxCycles)
	if err != nil {
		return fmt.Errorf("failed to rotate cycles: %w", err)
	}
	return nil
}

const cycleCols = `id, fetched_at, row_count, strike_count, signal, duration_ns`

func scanCycle(scan func(...any) error) (*models.Cycle, error) {
	var c models.Cycle
	var fetchedAtNano, durationNano int64
	var signal int
	err := scan(&c.ID, &fetchedAtNano, &c.Rows, &c.Strikes, &signal, &durationNano)
	if err != nil {
		return nil, err
	}
	c.FetchedAt = time.Unix(0, fetchedAtNano)
	c.Signal = signal != 0
	c.Duration = time.Duration(durationNano)
	return &c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
