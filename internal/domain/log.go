package domain

import "time"

// LogType classifies a learning log entry.
type LogType string

const (
	LogPredictionChat    LogType = "prediction_chat"
	LogPredictionSummary LogType = "prediction_summary"
	LogReflectionChat    LogType = "reflection_chat"
	LogFinalSummary      LogType = "final_summary"
)

// ChatLogType returns the log type for a conversation turn in stage.
func ChatLogType(stage Stage) LogType {
	if stage == StageReflection {
		return LogReflectionChat
	}
	return LogPredictionChat
}

// SummaryLogType returns the log type for a summary generated in stage.
func SummaryLogType(stage Stage) LogType {
	if stage == StageReflection {
		return LogFinalSummary
	}
	return LogPredictionSummary
}

// LogEntry is one append-only record in the learning log.
type LogEntry struct {
	Timestamp     time.Time      `json:"timestamp"`
	ClassNumber   string         `json:"class_number"`
	StudentNumber string         `json:"student_number"`
	Unit          string         `json:"unit"`
	LogType       LogType        `json:"log_type"`
	Data          map[string]any `json:"data"`
}

// NewLogEntry builds an entry stamped with now.
func NewLogEntry(id LearnerIdentity, unit string, logType LogType, data map[string]any) LogEntry {
	return LogEntry{
		Timestamp:     time.Now(),
		ClassNumber:   id.ClassNumber,
		StudentNumber: id.StudentNumber,
		Unit:          unit,
		LogType:       logType,
		Data:          data,
	}
}

// Identity returns the learner the entry belongs to.
func (e LogEntry) Identity() LearnerIdentity {
	return LearnerIdentity{ClassNumber: e.ClassNumber, StudentNumber: e.StudentNumber}
}
