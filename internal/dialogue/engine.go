// Package dialogue drives the prediction → experiment → reflection inquiry
// cycle: one chat turn at a time, stage summaries and stage transitions.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/sciencebuddy/internal/completion"
	"github.com/ashureev/sciencebuddy/internal/content"
	"github.com/ashureev/sciencebuddy/internal/domain"
	"github.com/ashureev/sciencebuddy/internal/store"
)

var (
	// ErrNotChatStage is returned for chat operations on experiment or done.
	ErrNotChatStage = errors.New("stage does not accept conversation")

	// ErrStageLocked is returned when the learner has not reached the stage yet.
	ErrStageLocked = errors.New("stage not reached yet")

	// ErrSummaryMissing is returned when leaving prediction without a summary.
	ErrSummaryMissing = errors.New("prediction summary has not been created")
)

// ProgressStore is the part of store.Store the engine needs.
type ProgressStore interface {
	Get(ctx context.Context, id domain.LearnerIdentity, unit string) domain.UnitProgress
	Update(ctx context.Context, id domain.LearnerIdentity, unit string, stage *domain.Stage, fields domain.Fields) domain.UnitProgress
}

// Completer sends a conversation to the generative backend.
type Completer interface {
	Complete(ctx context.Context, msgs []domain.Message, opts completion.Options) (string, error)
}

// LogRecorder appends learning log entries. Failures are its own concern.
type LogRecorder interface {
	Record(ctx context.Context, entry domain.LogEntry)
}

// TranscriptReader rebuilds a stage's full conversation from the learning
// log. Stored progress keeps only the latest messages.
type TranscriptReader interface {
	Conversation(ctx context.Context, id domain.LearnerIdentity, unit string, logType domain.LogType) ([]domain.Message, error)
}

// Deps are the engine's collaborators. Logs and Transcripts may be nil;
// without Transcripts summaries use the stored history.
type Deps struct {
	Progress    ProgressStore
	Content     content.Provider
	Completer   Completer
	Logs        LogRecorder
	Transcripts TranscriptReader
}

// Engine runs dialogue operations. It keeps no per-learner state; every
// operation re-reads progress from the store.
type Engine struct {
	progress    ProgressStore
	content     content.Provider
	completer   Completer
	logs        LogRecorder
	transcripts TranscriptReader
	policy      Policy
	log         *slog.Logger
}

// NewEngine creates an engine. Zero policy fields take their defaults.
func NewEngine(deps Deps, policy Policy, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	logs := deps.Logs
	if logs == nil {
		logs = discardLogs{}
	}
	return &Engine{
		progress:    deps.Progress,
		content:     deps.Content,
		completer:   deps.Completer,
		logs:        logs,
		transcripts: deps.Transcripts,
		policy:      policy.withDefaults(),
		log:         logger,
	}
}

// Policy returns the effective policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// TurnResult is the outcome of one learner turn.
type TurnResult struct {
	Reply             string       `json:"reply"`
	Stage             domain.Stage `json:"stage"`
	ConversationCount int          `json:"conversation_count"`
	SuggestSummary    bool         `json:"suggest_summary"`
}

// HandleTurn sends one learner utterance in a chat stage and returns the
// assistant's reply. Progress and the learning log are written only after
// a reply was obtained; a gateway failure leaves both untouched.
func (e *Engine) HandleTurn(ctx context.Context, id domain.LearnerIdentity, unit string, stage domain.Stage, utterance string) (TurnResult, error) {
	progress, err := e.openChat(ctx, id, unit, stage)
	if err != nil {
		return TurnResult{}, err
	}

	text := utterance
	if e.policy.Normalize {
		text = Normalize(text)
	}

	chat := progress.Chat(stage)
	turn := chat.ConversationCount + 1
	history := progress.History(stage)

	system := buildSystemPrompt(promptInput{
		instruction: e.content.UnitInstruction(unit),
		unit:        e.unit(unit),
		task:        e.content.TaskText(unit),
		stage:       stage,
		turn:        turn,
		prediction:  progress.StageProgress.Prediction.Summary,
		guidance:    e.guidance(unit, stage, turn, progress.StageProgress.Prediction.Summary),
		signals:     DetectSignals(text),
	})

	userMsg := domain.Message{Role: domain.RoleUser, Content: text}
	msgs := make([]domain.Message, 0, len(history)+2)
	msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: system})
	msgs = append(msgs, history...)
	msgs = append(msgs, userMsg)

	raw, err := e.completer.Complete(ctx, msgs, completion.Options{
		Temperature: e.policy.Temperature(stage),
		MaxTokens:   e.policy.MaxTokens,
		Timeout:     e.policy.Timeout,
	})
	if err != nil {
		e.log.Warn("Dialogue turn failed", "error", err, "unit", unit, "stage", stage,
			"class_number", id.ClassNumber, "student_number", id.StudentNumber)
		return TurnResult{}, err
	}
	reply := e.clean(raw)

	history = append(history, userMsg, domain.Message{Role: domain.RoleAssistant, Content: reply})
	history = domain.TruncateHistory(history, e.policy.HistoryLimit)

	e.progress.Update(ctx, id, unit, store.StagePtr(stage), domain.Fields{
		domain.FieldStarted:             true,
		domain.FieldConversationCount:   turn,
		domain.FieldLastMessage:         text,
		domain.FieldConversationHistory: history,
	})

	e.logs.Record(ctx, domain.NewLogEntry(id, unit, domain.ChatLogType(stage), map[string]any{
		"stage":              string(stage),
		"user_message":       text,
		"ai_response":        reply,
		"conversation_count": turn,
	}))

	return TurnResult{
		Reply:             reply,
		Stage:             stage,
		ConversationCount: turn,
		SuggestSummary:    turn >= e.policy.SummaryThreshold,
	}, nil
}

// GenerateStageSummary asks for a closing statement built only from the
// conversation. A nil conversation means the whole stage conversation from
// the learning log, falling back to the stored history; an empty
// priorSummary during reflection means the stored prediction summary.
// A successful reflection summary finishes the unit.
func (e *Engine) GenerateStageSummary(ctx context.Context, id domain.LearnerIdentity, unit string, stage domain.Stage, conversation []domain.Message, priorSummary string) (string, error) {
	progress, err := e.openChat(ctx, id, unit, stage)
	if err != nil {
		return "", err
	}
	if conversation == nil {
		conversation = e.stageConversation(ctx, id, unit, stage, progress)
	}
	if stage == domain.StageReflection && priorSummary == "" {
		priorSummary = progress.StageProgress.Prediction.Summary
	}

	prompt, err := buildSummaryPrompt(stage, summaryData{
		Unit:       unit,
		Task:       e.content.TaskText(unit),
		Prediction: priorSummary,
		Transcript: transcript(conversation),
	})
	if err != nil {
		return "", err
	}

	raw, err := e.completer.Complete(ctx, []domain.Message{{Role: domain.RoleUser, Content: prompt}}, completion.Options{
		Temperature: e.policy.SummaryTemperature,
		MaxTokens:   e.policy.MaxTokens,
		Timeout:     e.policy.Timeout,
	})
	if err != nil {
		e.log.Warn("Summary generation failed", "error", err, "unit", unit, "stage", stage,
			"class_number", id.ClassNumber, "student_number", id.StudentNumber)
		return "", err
	}
	summary := e.clean(raw)

	e.progress.Update(ctx, id, unit, store.StagePtr(stage), domain.Fields{
		domain.FieldSummaryCreated: true,
		domain.FieldSummary:        summary,
	})

	var data map[string]any
	if stage == domain.StageReflection {
		e.progress.Update(ctx, id, unit, store.StagePtr(domain.StageDone), nil)
		data = map[string]any{
			"final_summary":           summary,
			"prediction_summary":      priorSummary,
			"reflection_conversation": conversation,
		}
	} else {
		data = map[string]any{
			"summary":      summary,
			"conversation": conversation,
		}
	}
	e.logs.Record(ctx, domain.NewLogEntry(id, unit, domain.SummaryLogType(stage), data))

	return summary, nil
}

// ConfirmPredictionSummary moves the learner from prediction to the
// experiment once the prediction summary exists.
func (e *Engine) ConfirmPredictionSummary(ctx context.Context, id domain.LearnerIdentity, unit string) (domain.UnitProgress, error) {
	progress := e.progress.Get(ctx, id, unit)
	if !progress.StageProgress.Prediction.SummaryCreated {
		return progress, ErrSummaryMissing
	}
	return e.progress.Update(ctx, id, unit, store.StagePtr(domain.StageExperiment), domain.Fields{
		domain.FieldStarted: true,
	}), nil
}

// CompleteExperiment records that the learner finished the experiment.
// Completion is advisory; reflection does not require it.
func (e *Engine) CompleteExperiment(ctx context.Context, id domain.LearnerIdentity, unit string) (domain.UnitProgress, error) {
	progress := e.progress.Get(ctx, id, unit)
	if domain.StageExperiment.After(progress.CurrentStage) {
		return progress, ErrStageLocked
	}
	return e.progress.Update(ctx, id, unit, store.StagePtr(domain.StageExperiment), domain.Fields{
		domain.FieldStarted:   true,
		domain.FieldCompleted: true,
	}), nil
}

// EnterReflection moves the learner from the experiment to reflection.
func (e *Engine) EnterReflection(ctx context.Context, id domain.LearnerIdentity, unit string) (domain.UnitProgress, error) {
	progress := e.progress.Get(ctx, id, unit)
	if domain.StageExperiment.After(progress.CurrentStage) {
		return progress, ErrStageLocked
	}
	e.progress.Update(ctx, id, unit, store.StagePtr(domain.StageExperiment), domain.Fields{
		domain.FieldStarted: true,
	})
	return e.progress.Update(ctx, id, unit, store.StagePtr(domain.StageReflection), nil), nil
}

// ResumeState is what a client needs to redraw a unit after a reload.
type ResumeState struct {
	Unit            string                            `json:"unit"`
	Task            string                            `json:"task"`
	Progress        domain.UnitProgress               `json:"progress"`
	Conversations   map[domain.Stage][]domain.Message `json:"conversations"`
	OpeningQuestion string                            `json:"opening_question,omitempty"`
	SuggestSummary  bool                              `json:"suggest_summary"`
}

// Resume returns the learner's progress in unit together with the stored
// conversations and, for an empty chat stage, its opening question.
func (e *Engine) Resume(ctx context.Context, id domain.LearnerIdentity, unit string) ResumeState {
	progress := e.progress.Get(ctx, id, unit)
	state := ResumeState{
		Unit:          unit,
		Task:          e.content.TaskText(unit),
		Progress:      progress,
		Conversations: make(map[domain.Stage][]domain.Message),
	}
	for _, stage := range []domain.Stage{domain.StagePrediction, domain.StageReflection} {
		if msgs := progress.History(stage); len(msgs) > 0 {
			state.Conversations[stage] = msgs
		}
	}

	current := progress.CurrentStage
	if chat := progress.Chat(current); chat != nil {
		if len(state.Conversations[current]) == 0 {
			state.OpeningQuestion = e.content.OpeningQuestion(unit, current)
		}
		state.SuggestSummary = !chat.SummaryCreated && chat.ConversationCount >= e.policy.SummaryThreshold
	}
	return state
}

// openChat validates a chat operation and returns the current progress.
func (e *Engine) openChat(ctx context.Context, id domain.LearnerIdentity, unit string, stage domain.Stage) (domain.UnitProgress, error) {
	if !stage.IsChat() {
		return domain.UnitProgress{}, fmt.Errorf("%w: %s", ErrNotChatStage, stage)
	}
	progress := e.progress.Get(ctx, id, unit)
	if stage.After(progress.CurrentStage) {
		return progress, fmt.Errorf("%w: %s", ErrStageLocked, stage)
	}
	return progress, nil
}

// stageConversation prefers the logged transcript, which is never
// truncated. The stored history wins when the log holds less of it.
func (e *Engine) stageConversation(ctx context.Context, id domain.LearnerIdentity, unit string, stage domain.Stage, progress domain.UnitProgress) []domain.Message {
	history := progress.History(stage)
	if e.transcripts == nil {
		return history
	}
	full, err := e.transcripts.Conversation(ctx, id, unit, domain.ChatLogType(stage))
	if err != nil {
		e.log.Warn("Failed to read logged conversation, using stored history", "error", err,
			"unit", unit, "stage", stage, "class_number", id.ClassNumber, "student_number", id.StudentNumber)
		return history
	}
	if len(full) < len(history) {
		return history
	}
	return full
}

func (e *Engine) unit(name string) content.Unit {
	u, ok := e.content.Unit(name)
	if !ok {
		u = content.Unit{Name: name}
	}
	return u
}

// guidance renders the fragment for turn. Unit catalog entries may replace
// both the table and individual fragments.
func (e *Engine) guidance(unit string, stage domain.Stage, turn int, prediction string) string {
	u := e.unit(unit)

	table := e.policy.Guidance[stage]
	if rows, ok := u.Guidance[stage]; ok && len(rows) > 0 {
		table = GuidanceTable(rows)
	}
	key := table.Lookup(turn)
	if key == "" {
		return ""
	}

	src, ok := u.Fragments[key]
	if !ok {
		src = e.policy.Fragments[key]
	}
	text, err := renderFragment(src, guidanceData{Unit: u, Turn: turn, Prediction: prediction})
	if err != nil {
		e.log.Warn("Guidance fragment is invalid", "error", err, "unit", unit, "key", key)
	}
	return text
}

// clean extracts the learner-facing text. If extraction leaves nothing the
// raw reply is used without its markdown.
func (e *Engine) clean(raw string) string {
	if reply := CleanReply(raw); reply != "" {
		return reply
	}
	return StripMarkdown(strings.TrimSpace(raw))
}

type discardLogs struct{}

func (discardLogs) Record(context.Context, domain.LogEntry) {}
