// Package content resolves curriculum content: task text, per-unit
// instructions, opening questions and the unit catalog.
package content

import (
	"fmt"

	"github.com/ashureev/sciencebuddy/internal/domain"
)

// DefaultInstruction is used when a unit has no prompt file.
const DefaultInstruction = `あなたは小学生向けの産婆法（ソクラテス式問答法）を実践する理科指導者です。小学生のレベルに合わせた簡単な質問で、学習者自身に気づかせることが目的です。

## 基本指針
- 1つずつ聞く - 複数の質問を同時にしない
- 身近な例で考えさせる
- 学習者の発言を受け止める - まず肯定してから次の質問
- 経験を聞く - 「前に見たことある？」「どんな時に？」

## 絶対に守ること
- 1文で短く質問する（20文字以内を目指す）
- 小学生が知らない専門用語は使わない
- 複雑な例え話はしない
- 1回に1つのことだけ聞く
- JSON形式では絶対に回答しない
- 普通の文章で質問する`

var defaultOpeningQuestions = map[domain.Stage]string{
	domain.StagePrediction: "どんな結果になると思う？そう思った理由も教えてね。",
	domain.StageReflection: "実験でどんなことが起こったかな？見たことを教えてね。",
}

// Provider is the read-only curriculum content source.
type Provider interface {
	// TaskText returns the task statement, or a generated placeholder question.
	TaskText(unit string) string

	// UnitInstruction returns the unit's system instruction, or DefaultInstruction.
	UnitInstruction(unit string) string

	// OpeningQuestion returns the first assistant message for a chat stage.
	OpeningQuestion(unit string, stage domain.Stage) string

	// Unit returns the catalog entry for a unit.
	Unit(name string) (Unit, bool)

	// Units returns unit names in catalog order.
	Units() []string
}

// GuidanceRow selects a guidance fragment for every turn up to UpTo.
// A row with UpTo <= 0 matches any turn.
type GuidanceRow struct {
	UpTo int    `yaml:"up_to" json:"up_to"`
	Key  string `yaml:"key" json:"key"`
}

// Unit is one catalog entry.
type Unit struct {
	Name                   string                         `yaml:"name" json:"name"`
	Viewpoint              string                         `yaml:"viewpoint" json:"viewpoint,omitempty"`
	FocusActivities        []string                       `yaml:"focus_activities" json:"focus_activities,omitempty"`
	LifeExperiences        []string                       `yaml:"life_experiences" json:"life_experiences,omitempty"`
	Keywords               []string                       `yaml:"keywords" json:"keywords,omitempty"`
	SocraticQuestions      []string                       `yaml:"socratic_questions" json:"socratic_questions,omitempty"`
	ExperienceProbes       []string                       `yaml:"experience_probes" json:"experience_probes,omitempty"`
	LowExperienceQuestions []string                       `yaml:"low_experience_questions" json:"low_experience_questions,omitempty"`
	OpeningQuestions       map[domain.Stage]string        `yaml:"opening_questions" json:"opening_questions,omitempty"`
	Guidance               map[domain.Stage][]GuidanceRow `yaml:"guidance" json:"-"`
	Fragments              map[string]string              `yaml:"fragments" json:"-"`
}

type catalogFile struct {
	Units []Unit `yaml:"units"`
}

// PlaceholderTask is the task text used when a unit has no task file.
func PlaceholderTask(unit string) string {
	return fmt.Sprintf("%sについて実験を行います。どのような結果になると予想しますか？", unit)
}
