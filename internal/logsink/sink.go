// Package logsink keeps the append-only learning log, one JSON array
// document per calendar day.
package logsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/sciencebuddy/internal/blob"
	"github.com/ashureev/sciencebuddy/internal/domain"
)

const (
	partitionPrefix = "learning_log_"
	partitionSuffix = ".json"
	dayLayout       = "20060102"
)

// Sink appends log entries to per-day documents. Appends rewrite the whole
// day document and are serialised within the process.
type Sink struct {
	blobs blob.Store
	log   *slog.Logger
	now   func() time.Time

	mu sync.Mutex
}

// New creates a sink over blobs.
func New(blobs blob.Store, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{blobs: blobs, log: logger, now: time.Now}
}

// DayKey formats t as an 8-digit day key.
func DayKey(t time.Time) string {
	return t.Format(dayLayout)
}

// PartitionName returns the document name for a day key.
func PartitionName(day string) string {
	return partitionPrefix + day + partitionSuffix
}

func validDay(day string) bool {
	if len(day) != len(dayLayout) {
		return false
	}
	_, err := time.Parse(dayLayout, day)
	return err == nil
}

// Append adds entry to the document for day.
func (s *Sink) Append(ctx context.Context, day string, entry domain.LogEntry) error {
	if !validDay(day) {
		return fmt.Errorf("invalid day key %q", day)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := PartitionName(day)
	entries, raw, err := s.read(ctx, name)
	if err != nil && raw == nil {
		return fmt.Errorf("read learning log %s: %w", name, err)
	}
	if err != nil {
		// Keep the unreadable document aside instead of overwriting it.
		backup := fmt.Sprintf("%s%s.corrupt-%d%s", partitionPrefix, day, s.now().Unix(), partitionSuffix)
		if writeErr := s.blobs.Write(ctx, backup, raw); writeErr != nil {
			return fmt.Errorf("back up corrupt log %s: %w", name, writeErr)
		}
		s.log.Warn("Learning log was corrupt, starting a new document", "day", day, "backup", backup, "error", err)
		entries = nil
	}

	entries = append(entries, entry)
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal learning log: %w", err)
	}
	if err := s.blobs.Write(ctx, name, data); err != nil {
		return fmt.Errorf("write learning log %s: %w", name, err)
	}
	return nil
}

// Record appends entry under the day of its timestamp and logs failures
// instead of returning them.
func (s *Sink) Record(ctx context.Context, entry domain.LogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	if err := s.Append(ctx, DayKey(entry.Timestamp), entry); err != nil {
		s.log.Error("Failed to append learning log", "error", err,
			"log_type", entry.LogType, "unit", entry.Unit,
			"class_number", entry.ClassNumber, "student_number", entry.StudentNumber)
	}
}

// LoadDay returns the entries for day. A missing, unreadable or corrupt
// day yields an empty list.
func (s *Sink) LoadDay(ctx context.Context, day string) []domain.LogEntry {
	if !validDay(day) {
		return []domain.LogEntry{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, _, err := s.read(ctx, PartitionName(day))
	if err != nil {
		s.log.Warn("Learning log is unreadable", "day", day, "error", err)
		return []domain.LogEntry{}
	}
	if entries == nil {
		return []domain.LogEntry{}
	}
	return entries
}

// Days returns the day keys that have a log document, newest first.
func (s *Sink) Days(ctx context.Context) ([]string, error) {
	keys, err := s.blobs.List(ctx, partitionPrefix)
	if err != nil {
		return nil, fmt.Errorf("list learning logs: %w", err)
	}
	var days []string
	for _, k := range keys {
		day := strings.TrimSuffix(strings.TrimPrefix(k, partitionPrefix), partitionSuffix)
		if PartitionName(day) == k && validDay(day) {
			days = append(days, day)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	return days, nil
}

// read returns the decoded entries. A missing document is not an error.
// On a decode error the raw bytes are returned alongside it.
func (s *Sink) read(ctx context.Context, name string) ([]domain.LogEntry, []byte, error) {
	data, err := s.blobs.Read(ctx, name)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	var entries []domain.LogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, data, fmt.Errorf("decode %s: %w", name, err)
	}
	return entries, data, nil
}

// Conversation rebuilds a learner's full chat transcript for one unit from
// the chat entries of logType, oldest day first. Entries missing either
// side of the exchange contribute only the side they have.
func (s *Sink) Conversation(ctx context.Context, id domain.LearnerIdentity, unit string, logType domain.LogType) ([]domain.Message, error) {
	days, err := s.Days(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(days)

	var msgs []domain.Message
	for _, day := range days {
		for _, e := range s.LoadDay(ctx, day) {
			if e.LogType != logType || e.Unit != unit || e.Identity() != id {
				continue
			}
			if text, _ := e.Data["user_message"].(string); text != "" {
				msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: text})
			}
			if text, _ := e.Data["ai_response"].(string); text != "" {
				msgs = append(msgs, domain.Message{Role: domain.RoleAssistant, Content: text})
			}
		}
	}
	return msgs, nil
}
