// Package store persists per-learner, per-unit progress.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/sciencebuddy/internal/blob"
	"github.com/ashureev/sciencebuddy/internal/domain"
)

// Store is the progress store. Reads never fail: a missing or unreadable
// record yields the default progress. Write failures are logged and
// swallowed so a turn is never blocked on bookkeeping.
type Store interface {
	// Get returns the stored progress or a fresh default.
	Get(ctx context.Context, id domain.LearnerIdentity, unit string) domain.UnitProgress

	// Update reads the record, merges fields into the sub-state of stage
	// (the current stage when stage is nil), advances the current stage when
	// stage is ahead of it, stamps LastAccess and writes the record back.
	// It returns the merged progress even when the write fails.
	Update(ctx context.Context, id domain.LearnerIdentity, unit string, stage *domain.Stage, fields domain.Fields) domain.UnitProgress

	// List returns every stored record.
	List(ctx context.Context) ([]Record, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// Record is one stored progress entry with its key.
type Record struct {
	Identity domain.LearnerIdentity `json:"identity"`
	Unit     string                 `json:"unit"`
	Progress domain.UnitProgress    `json:"progress"`
}

// StagePtr returns a pointer to s for use with Update.
func StagePtr(s domain.Stage) *domain.Stage {
	return &s
}

func apply(p domain.UnitProgress, stage *domain.Stage, fields domain.Fields, now time.Time) domain.UnitProgress {
	p = p.Clone()
	if !p.CurrentStage.Valid() {
		p.CurrentStage = domain.StagePrediction
	}
	target := p.CurrentStage
	if stage != nil && stage.Valid() {
		target = *stage
		p.Advance(target)
	}
	p.Merge(target, fields)
	p.LastAccess = now
	return p
}

// Open returns the progress store named by backend. The document store
// keeps its single document in blobs; the SQLite store uses dbPath.
func Open(backend string, blobs blob.Store, dbPath string, logger *slog.Logger) (Store, error) {
	switch backend {
	case "document", "":
		return NewDocumentStore(blobs, logger), nil
	case "sqlite":
		s, err := NewSQLite(dbPath, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
