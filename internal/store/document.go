package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/sciencebuddy/internal/blob"
	"github.com/ashureev/sciencebuddy/internal/domain"
)

// ProgressDocumentKey names the single document holding all learners' progress.
const ProgressDocumentKey = "learning_progress.json"

type documentRecord struct {
	ClassNumber   string `json:"class_number"`
	StudentNumber string `json:"student_number"`
	Unit          string `json:"unit"`
	domain.UnitProgress
}

// DocumentStore keeps all progress in one JSON document. Every Update reads
// the whole document, merges one record and writes the whole document back
// while holding a document-wide lock. The lock is in-process only: two
// processes sharing the same blob still race and the last write wins.
type DocumentStore struct {
	blobs blob.Store
	key   string
	log   *slog.Logger
	now   func() time.Time

	mu sync.Mutex
}

// NewDocumentStore creates a store over blobs.
func NewDocumentStore(blobs blob.Store, logger *slog.Logger) *DocumentStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentStore{
		blobs: blobs,
		key:   ProgressDocumentKey,
		log:   logger,
		now:   time.Now,
	}
}

// Get returns the stored progress or the default.
func (s *DocumentStore) Get(ctx context.Context, id domain.LearnerIdentity, unit string) domain.UnitProgress {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load(ctx)
	if rec, ok := doc[id.ProgressKey(unit)]; ok {
		return rec.UnitProgress
	}
	return domain.NewUnitProgress()
}

// Update performs a whole-document read, merge and write.
func (s *DocumentStore) Update(ctx context.Context, id domain.LearnerIdentity, unit string, stage *domain.Stage, fields domain.Fields) domain.UnitProgress {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load(ctx)
	key := id.ProgressKey(unit)
	current := domain.NewUnitProgress()
	if rec, ok := doc[key]; ok {
		current = rec.UnitProgress
	}
	merged := apply(current, stage, fields, s.now())

	if err := id.Validate(); err != nil {
		s.log.Warn("Refusing to persist progress for invalid identity", "error", err, "unit", unit)
		return merged
	}

	doc[key] = documentRecord{
		ClassNumber:   id.ClassNumber,
		StudentNumber: id.StudentNumber,
		Unit:          unit,
		UnitProgress:  merged,
	}
	if err := s.save(ctx, doc); err != nil {
		s.log.Error("Failed to save progress", "error", err,
			"class_number", id.ClassNumber, "student_number", id.StudentNumber, "unit", unit)
	}
	return merged
}

// List returns every record in the document, ordered by key.
func (s *DocumentStore) List(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load(ctx)
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	records := make([]Record, 0, len(keys))
	for _, k := range keys {
		rec := doc[k]
		records = append(records, Record{
			Identity: domain.LearnerIdentity{ClassNumber: rec.ClassNumber, StudentNumber: rec.StudentNumber},
			Unit:     rec.Unit,
			Progress: rec.UnitProgress,
		})
	}
	return records, nil
}

// Ping checks that the document can be read. A missing document is fine.
func (s *DocumentStore) Ping(ctx context.Context) error {
	if _, err := s.blobs.Read(ctx, s.key); err != nil && !errors.Is(err, blob.ErrNotFound) {
		return err
	}
	return nil
}

// Close is a no-op. The blob store is shared with the learning log and
// belongs to the caller.
func (s *DocumentStore) Close() error {
	return nil
}

// load reads the document. Missing or corrupt documents load as empty.
func (s *DocumentStore) load(ctx context.Context) map[string]documentRecord {
	doc := make(map[string]documentRecord)
	data, err := s.blobs.Read(ctx, s.key)
	if errors.Is(err, blob.ErrNotFound) {
		return doc
	}
	if err != nil {
		s.log.Warn("Failed to read progress document, starting empty", "error", err)
		return doc
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.Warn("Progress document is corrupt, starting empty", "error", err)
		return make(map[string]documentRecord)
	}
	return doc
}

func (s *DocumentStore) save(ctx context.Context, doc map[string]documentRecord) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress document: %w", err)
	}
	if err := s.blobs.Write(ctx, s.key, data); err != nil {
		return fmt.Errorf("write progress document: %w", err)
	}
	return nil
}
