package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/sciencebuddy/internal/domain"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "progress.db"), nil)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_UpdateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	id := learner(t, "1", "7")

	if p := s.Get(ctx, id, unitMetal); p.CurrentStage != domain.StagePrediction {
		t.Fatalf("Expected default prediction stage, got %s", p.CurrentStage)
	}

	s.Update(ctx, id, unitMetal, nil, domain.Fields{domain.FieldConversationCount: 1})
	s.Update(ctx, id, unitMetal, nil, domain.Fields{domain.FieldSummaryCreated: true})

	p := s.Get(ctx, id, unitMetal)
	if p.StageProgress.Prediction.ConversationCount != 1 || !p.StageProgress.Prediction.SummaryCreated {
		t.Errorf("Unexpected prediction state: %+v", p.StageProgress.Prediction)
	}
}

func TestSQLiteStore_StageNeverRegresses(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	id := learner(t, "3", "12")

	s.Update(ctx, id, unitMetal, StagePtr(domain.StageExperiment), domain.Fields{domain.FieldStarted: true})
	p := s.Update(ctx, id, unitMetal, StagePtr(domain.StagePrediction), domain.Fields{domain.FieldLastMessage: "もう一回"})

	if p.CurrentStage != domain.StageExperiment {
		t.Errorf("Expected experiment, got %s", p.CurrentStage)
	}
	if got := s.Get(ctx, id, unitMetal); got.CurrentStage != domain.StageExperiment {
		t.Errorf("Expected stored experiment, got %s", got.CurrentStage)
	}
}

func TestSQLiteStore_ConcurrentUpdatesSameRecord(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	id := learner(t, "1", "1")

	fields := []string{domain.FieldStarted, domain.FieldSummaryCreated}
	var wg sync.WaitGroup
	for _, f := range fields {
		wg.Add(1)
		go func(field string) {
			defer wg.Done()
			s.Update(ctx, id, unitMetal, nil, domain.Fields{field: true})
		}(f)
	}
	wg.Wait()

	p := s.Get(ctx, id, unitMetal)
	if !p.StageProgress.Prediction.Started || !p.StageProgress.Prediction.SummaryCreated {
		t.Errorf("Expected both merges to survive, got %+v", p.StageProgress.Prediction)
	}
}

func TestSQLiteStore_List(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	for i := 10; i >= 1; i-- {
		s.Update(ctx, learner(t, "2", fmt.Sprint(i)), unitMetal, nil, domain.Fields{domain.FieldStarted: true})
	}

	records, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 10 {
		t.Fatalf("Expected 10 records, got %d", len(records))
	}
	if records[0].Identity.StudentNumber != "1" || records[9].Identity.StudentNumber != "10" {
		t.Errorf("Expected numeric ordering, got %s..%s", records[0].Identity.StudentNumber, records[9].Identity.StudentNumber)
	}
}

func TestSQLiteStore_ListLogsToStoreLogger(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	s, err := NewSQLite(filepath.Join(t.TempDir(), "progress.db"), slog.New(slog.NewTextHandler(&buf, nil)))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	s.Update(ctx, learner(t, "1", "7"), unitMetal, nil, domain.Fields{domain.FieldConversationCount: 1})
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO unit_progress (class_number, student_number, unit, current_stage, progress_json, version, last_access)
		VALUES ('1', '8', ?, 'prediction', '{not json', 1, 0)`, unitMetal); err != nil {
		t.Fatalf("insert corrupt row: %v", err)
	}

	records, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 || records[0].Identity.StudentNumber != "7" {
		t.Errorf("Expected only the readable record, got %+v", records)
	}
	if !strings.Contains(buf.String(), "Skipping corrupt progress row") {
		t.Errorf("Expected the warning on the store logger, got %q", buf.String())
	}
}
