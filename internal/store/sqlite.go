package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/sciencebuddy/internal/domain"
	_ "modernc.org/sqlite"
)

const (
	maxUpdateAttempts = 5
	busyBaseDelay     = 50 * time.Millisecond
)

var errVersionConflict = errors.New("optimistic lock failed: progress version changed")

// SQLiteStore keeps one row per (class, student, unit). Updates read the row,
// merge in memory and write back only if the row version is unchanged,
// retrying on conflict.
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// NewSQLite creates a new SQLite-backed progress store.
func NewSQLite(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, log: logger, now: time.Now}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS unit_progress (
		class_number TEXT NOT NULL,
		student_number TEXT NOT NULL,
		unit TEXT NOT NULL,
		current_stage TEXT NOT NULL,
		progress_json TEXT NOT NULL,
		version INTEGER NOT NULL,
		last_access INTEGER NOT NULL,
		PRIMARY KEY (class_number, student_number, unit)
	);
	CREATE INDEX IF NOT EXISTS idx_unit_progress_class ON unit_progress(class_number);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Get returns the stored progress or the default.
func (s *SQLiteStore) Get(ctx context.Context, id domain.LearnerIdentity, unit string) domain.UnitProgress {
	p, _, err := s.read(ctx, id, unit)
	if err != nil {
		s.log.Warn("Failed to read progress, using default", "error", err,
			"class_number", id.ClassNumber, "student_number", id.StudentNumber, "unit", unit)
		return domain.NewUnitProgress()
	}
	return p
}

// Update merges fields with an optimistic compare-and-swap on the row version.
func (s *SQLiteStore) Update(ctx context.Context, id domain.LearnerIdentity, unit string, stage *domain.Stage, fields domain.Fields) domain.UnitProgress {
	if err := id.Validate(); err != nil {
		s.log.Warn("Refusing to persist progress for invalid identity", "error", err, "unit", unit)
		return apply(domain.NewUnitProgress(), stage, fields, s.now())
	}

	var merged domain.UnitProgress
	var lastErr error
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		if attempt > 0 {
			delay := busyBaseDelay * time.Duration(1<<(attempt-1))
			s.log.Debug("Progress update conflicted, retrying",
				"class_number", id.ClassNumber,
				"student_number", id.StudentNumber,
				"unit", unit,
				"attempt", attempt+1,
				"delay", delay)
			if err := sleepContext(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		current, version, err := s.read(ctx, id, unit)
		if err != nil {
			lastErr = err
			if isSQLiteConflictError(err) {
				continue
			}
			break
		}

		merged = apply(current, stage, fields, s.now())
		lastErr = s.compareAndSwap(ctx, id, unit, merged, version)
		if lastErr == nil {
			return merged
		}
		if !errors.Is(lastErr, errVersionConflict) && !isSQLiteConflictError(lastErr) {
			break
		}
	}

	if merged.CurrentStage == "" {
		merged = apply(domain.NewUnitProgress(), stage, fields, s.now())
	}
	s.log.Error("Failed to save progress", "error", lastErr,
		"class_number", id.ClassNumber, "student_number", id.StudentNumber, "unit", unit)
	return merged
}

// List returns every stored record ordered by class, student and unit.
func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	query := `
		SELECT class_number, student_number, unit, progress_json
		FROM unit_progress
		ORDER BY CAST(class_number AS INTEGER), CAST(student_number AS INTEGER), unit`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.log.Warn("Failed to close progress rows", "error", closeErr)
		}
	}()

	var records []Record
	for rows.Next() {
		var rec Record
		var raw string
		if err := rows.Scan(&rec.Identity.ClassNumber, &rec.Identity.StudentNumber, &rec.Unit, &raw); err != nil {
			return nil, fmt.Errorf("scan progress row: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &rec.Progress); err != nil {
			s.log.Warn("Skipping corrupt progress row", "error", err, "unit", rec.Unit)
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress rows: %w", err)
	}
	return records, nil
}

// read returns the stored progress and its version. Version 0 means no row.
func (s *SQLiteStore) read(ctx context.Context, id domain.LearnerIdentity, unit string) (domain.UnitProgress, int64, error) {
	query := `
		SELECT progress_json, version FROM unit_progress
		WHERE class_number = ? AND student_number = ? AND unit = ?`

	var raw string
	var version int64
	err := s.db.QueryRowContext(ctx, query, id.ClassNumber, id.StudentNumber, unit).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewUnitProgress(), 0, nil
	}
	if err != nil {
		return domain.UnitProgress{}, 0, fmt.Errorf("scan progress row: %w", err)
	}

	p := domain.NewUnitProgress()
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		// A corrupt row is overwritten by the next successful update.
		s.log.Warn("Progress row is corrupt, using default", "error", err, "unit", unit)
		return domain.NewUnitProgress(), version, nil
	}
	return p, version, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *SQLiteStore) compareAndSwap(ctx context.Context, id domain.LearnerIdentity, unit string, p domain.UnitProgress, expectedVersion int64) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	var result sql.Result
	if expectedVersion == 0 {
		result, err = s.db.ExecContext(ctx, `
			INSERT INTO unit_progress (class_number, student_number, unit, current_stage, progress_json, version, last_access)
			VALUES (?, ?, ?, ?, ?, 1, ?)
			ON CONFLICT(class_number, student_number, unit) DO NOTHING`,
			id.ClassNumber, id.StudentNumber, unit, string(p.CurrentStage), string(raw), p.LastAccess.Unix())
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE unit_progress
			SET current_stage = ?, progress_json = ?, version = version + 1, last_access = ?
			WHERE class_number = ? AND student_number = ? AND unit = ? AND version = ?`,
			string(p.CurrentStage), string(raw), p.LastAccess.Unix(),
			id.ClassNumber, id.StudentNumber, unit, expectedVersion)
	}
	if err != nil {
		return fmt.Errorf("write progress: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return errVersionConflict
	}
	return nil
}
