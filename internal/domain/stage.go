package domain

import "fmt"

// Stage is one phase of the inquiry cycle.
type Stage string

const (
	StagePrediction Stage = "prediction"
	StageExperiment Stage = "experiment"
	StageReflection Stage = "reflection"
	StageDone       Stage = "done"
)

var stageOrder = map[Stage]int{
	StagePrediction: 0,
	StageExperiment: 1,
	StageReflection: 2,
	StageDone:       3,
}

// ParseStage converts a wire value into a Stage.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown stage %q", s)
	}
	return st, nil
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := stageOrder[s]
	return ok
}

// IsChat reports whether the stage has a learner conversation.
func (s Stage) IsChat() bool {
	return s == StagePrediction || s == StageReflection
}

// After reports whether s comes later in the cycle than other.
func (s Stage) After(other Stage) bool {
	a, okA := stageOrder[s]
	b, okB := stageOrder[other]
	return okA && okB && a > b
}

func (s Stage) String() string {
	return string(s)
}
