package domain

import "time"

// Field names accepted by UnitProgress.Merge.
const (
	FieldStarted             = "started"
	FieldCompleted           = "completed"
	FieldConversationCount   = "conversation_count"
	FieldSummaryCreated      = "summary_created"
	FieldLastMessage         = "last_message"
	FieldSummary             = "summary"
	FieldConversationHistory = "conversation_history"
)

// Fields is a generic partial update applied to one stage's sub-state.
type Fields map[string]any

// ChatStageState is the sub-state of a stage that carries a conversation.
type ChatStageState struct {
	Started           bool   `json:"started"`
	ConversationCount int    `json:"conversation_count"`
	SummaryCreated    bool   `json:"summary_created"`
	LastMessage       string `json:"last_message,omitempty"`
	Summary           string `json:"summary,omitempty"`
}

// ExperimentState is the sub-state of the experiment stage. Completed is advisory.
type ExperimentState struct {
	Started   bool `json:"started"`
	Completed bool `json:"completed"`
}

// StageState groups the per-stage sub-states.
type StageState struct {
	Prediction ChatStageState  `json:"prediction"`
	Experiment ExperimentState `json:"experiment"`
	Reflection ChatStageState  `json:"reflection"`
}

// UnitProgress is one learner's position in one unit.
type UnitProgress struct {
	CurrentStage        Stage               `json:"current_stage"`
	StageProgress       StageState          `json:"stage_progress"`
	LastAccess          time.Time           `json:"last_access"`
	ConversationHistory map[Stage][]Message `json:"conversation_history,omitempty"`
}

// NewUnitProgress returns the default record for a learner who has not started a unit.
func NewUnitProgress() UnitProgress {
	return UnitProgress{CurrentStage: StagePrediction}
}

// Chat returns the conversation sub-state for a chat stage, or nil.
func (p *UnitProgress) Chat(stage Stage) *ChatStageState {
	switch stage {
	case StagePrediction:
		return &p.StageProgress.Prediction
	case StageReflection:
		return &p.StageProgress.Reflection
	default:
		return nil
	}
}

// History returns a copy of the stored conversation for stage.
func (p UnitProgress) History(stage Stage) []Message {
	msgs := p.ConversationHistory[stage]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Clone returns a deep copy.
func (p UnitProgress) Clone() UnitProgress {
	c := p
	if p.ConversationHistory != nil {
		c.ConversationHistory = make(map[Stage][]Message, len(p.ConversationHistory))
		for st, msgs := range p.ConversationHistory {
			c.ConversationHistory[st] = append([]Message(nil), msgs...)
		}
	}
	return c
}

// Advance moves CurrentStage to stage when stage is later. It never moves backwards.
func (p *UnitProgress) Advance(stage Stage) {
	if !p.CurrentStage.Valid() {
		p.CurrentStage = StagePrediction
	}
	if stage.After(p.CurrentStage) {
		p.CurrentStage = stage
	}
}

// Merge applies fields to the sub-state of stage. Keys the stage does not
// know and values of the wrong type are ignored.
func (p *UnitProgress) Merge(stage Stage, fields Fields) {
	if stage == StageExperiment {
		exp := &p.StageProgress.Experiment
		if v, ok := fields[FieldStarted].(bool); ok {
			exp.Started = v
		}
		if v, ok := fields[FieldCompleted].(bool); ok {
			exp.Completed = v
		}
		return
	}

	chat := p.Chat(stage)
	if chat == nil {
		return
	}
	if v, ok := fields[FieldStarted].(bool); ok {
		chat.Started = v
	}
	if v, ok := asInt(fields[FieldConversationCount]); ok && v >= 0 {
		chat.ConversationCount = v
	}
	if v, ok := fields[FieldSummaryCreated].(bool); ok {
		chat.SummaryCreated = v
	}
	if v, ok := fields[FieldLastMessage].(string); ok {
		chat.LastMessage = v
	}
	if v, ok := fields[FieldSummary].(string); ok {
		chat.Summary = v
	}
	if v, ok := fields[FieldConversationHistory].([]Message); ok {
		if p.ConversationHistory == nil {
			p.ConversationHistory = make(map[Stage][]Message)
		}
		p.ConversationHistory[stage] = append([]Message(nil), v...)
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), n == float64(int(n))
	default:
		return 0, false
	}
}
