package domain

import (
	"errors"
	"testing"
)

func TestNewLearnerIdentity(t *testing.T) {
	id, err := NewLearnerIdentity(" 1 ", "7")
	if err != nil {
		t.Fatalf("NewLearnerIdentity failed: %v", err)
	}
	if id.Key() != "1_7" {
		t.Errorf("Expected key 1_7, got %s", id.Key())
	}

	for _, tc := range [][2]string{{"", "7"}, {"1", ""}, {"a", "7"}, {"1", "7b"}} {
		if _, err := NewLearnerIdentity(tc[0], tc[1]); !errors.Is(err, ErrInvalidIdentity) {
			t.Errorf("Expected ErrInvalidIdentity for %v, got %v", tc, err)
		}
	}
}

func TestAdvanceNeverMovesBackwards(t *testing.T) {
	p := NewUnitProgress()
	p.Advance(StageReflection)
	if p.CurrentStage != StageReflection {
		t.Fatalf("Expected reflection, got %s", p.CurrentStage)
	}

	p.Advance(StagePrediction)
	p.Advance(StageExperiment)
	if p.CurrentStage != StageReflection {
		t.Errorf("Expected stage to stay reflection, got %s", p.CurrentStage)
	}

	p.Advance(StageDone)
	if p.CurrentStage != StageDone {
		t.Errorf("Expected done, got %s", p.CurrentStage)
	}
}

func TestMergeChatStage(t *testing.T) {
	p := NewUnitProgress()
	history := []Message{{Role: RoleUser, Content: "熱くなると思う"}}

	p.Merge(StagePrediction, Fields{
		FieldStarted:             true,
		FieldConversationCount:   1,
		FieldLastMessage:         "熱くなると思う",
		FieldConversationHistory: history,
		FieldCompleted:           true, // not a prediction field
		"unknown":                "ignored",
	})

	pred := p.StageProgress.Prediction
	if !pred.Started || pred.ConversationCount != 1 || pred.LastMessage != "熱くなると思う" {
		t.Errorf("Unexpected prediction state: %+v", pred)
	}
	if p.StageProgress.Experiment.Completed {
		t.Error("Expected experiment to be untouched")
	}
	if got := p.History(StagePrediction); len(got) != 1 {
		t.Errorf("Expected 1 history entry, got %d", len(got))
	}

	history[0].Content = "changed"
	if p.History(StagePrediction)[0].Content != "熱くなると思う" {
		t.Error("Expected merge to copy history")
	}
}

func TestMergeIgnoresWrongTypes(t *testing.T) {
	p := NewUnitProgress()
	p.Merge(StageReflection, Fields{
		FieldStarted:           "yes",
		FieldConversationCount: "3",
		FieldSummaryCreated:    1,
	})

	refl := p.StageProgress.Reflection
	if refl.Started || refl.ConversationCount != 0 || refl.SummaryCreated {
		t.Errorf("Expected reflection to be untouched, got %+v", refl)
	}
}

func TestMergeExperimentStage(t *testing.T) {
	p := NewUnitProgress()
	p.Merge(StageExperiment, Fields{FieldStarted: true, FieldConversationCount: 4})

	if !p.StageProgress.Experiment.Started {
		t.Error("Expected experiment started")
	}
	if p.StageProgress.Prediction.ConversationCount != 0 {
		t.Error("Expected prediction to be untouched")
	}
}

func TestTruncateHistory(t *testing.T) {
	var msgs []Message
	for i := 0; i < 12; i++ {
		msgs = append(msgs, Message{Role: RoleUser, Content: string(rune('a' + i))})
	}

	got := TruncateHistory(msgs, 10)
	if len(got) != 10 {
		t.Fatalf("Expected 10 messages, got %d", len(got))
	}
	if got[0].Content != "c" {
		t.Errorf("Expected oldest kept message c, got %s", got[0].Content)
	}
	if len(TruncateHistory(msgs, 0)) != 12 {
		t.Error("Expected non-positive limit to keep everything")
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := NewUnitProgress()
	p.Merge(StagePrediction, Fields{FieldConversationHistory: []Message{{Role: RoleUser, Content: "x"}}})

	c := p.Clone()
	c.ConversationHistory[StagePrediction][0].Content = "y"
	if p.ConversationHistory[StagePrediction][0].Content != "x" {
		t.Error("Expected clone to not share history")
	}
}
