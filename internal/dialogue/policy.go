package dialogue

import (
	"time"

	"github.com/ashureev/sciencebuddy/internal/completion"
	"github.com/ashureev/sciencebuddy/internal/content"
	"github.com/ashureev/sciencebuddy/internal/domain"
)

// Guidance fragment keys.
const (
	GuidanceExpression = "prediction_expression"
	GuidanceExperience = "prediction_experience"
	GuidanceReasoning  = "prediction_reasoning"
	GuidanceResult     = "reflection_result"
	GuidanceCompare    = "reflection_compare"
	GuidanceConnect    = "reflection_connect"
)

// GuidanceTable maps turn numbers to guidance fragment keys. Rows are
// checked in order; the first with turn <= UpTo wins, and UpTo <= 0 matches
// every turn.
type GuidanceTable []content.GuidanceRow

// Lookup returns the fragment key for turn, or "" if no row matches.
func (t GuidanceTable) Lookup(turn int) string {
	for _, row := range t {
		if row.UpTo <= 0 || turn <= row.UpTo {
			return row.Key
		}
	}
	return ""
}

// Policy holds the tunable dialogue constants.
type Policy struct {
	// SummaryThreshold is the number of learner turns after which a stage
	// summary is offered.
	SummaryThreshold int

	// HistoryLimit caps the stored conversation per stage, in messages.
	HistoryLimit int

	Temperatures map[domain.Stage]float64

	// SummaryTemperature applies to stage summaries. Zero takes the default.
	SummaryTemperature float64
	MaxTokens          int
	Timeout            time.Duration

	// Normalize rewrites childish and family expressions in learner text.
	Normalize bool

	Guidance  map[domain.Stage]GuidanceTable
	Fragments map[string]string
}

// DefaultPolicy returns the classroom defaults.
func DefaultPolicy() Policy {
	return Policy{
		SummaryThreshold: 2,
		HistoryLimit:     10,
		Temperatures: map[domain.Stage]float64{
			domain.StagePrediction: 0.7,
			domain.StageReflection: 0.3,
		},
		SummaryTemperature: 0.2,
		MaxTokens:          completion.DefaultMaxTokens,
		Timeout:            completion.DefaultTimeout,
		Normalize:          true,
		Guidance: map[domain.Stage]GuidanceTable{
			domain.StagePrediction: {
				{UpTo: 2, Key: GuidanceExpression},
				{UpTo: 4, Key: GuidanceExperience},
				{Key: GuidanceReasoning},
			},
			domain.StageReflection: {
				{UpTo: 2, Key: GuidanceResult},
				{UpTo: 4, Key: GuidanceCompare},
				{Key: GuidanceConnect},
			},
		},
		Fragments: defaultFragments,
	}
}

// Temperature returns the sampling temperature for a chat stage.
func (p Policy) Temperature(stage domain.Stage) float64 {
	return p.Temperatures[stage]
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.SummaryThreshold <= 0 {
		p.SummaryThreshold = def.SummaryThreshold
	}
	if p.HistoryLimit <= 0 {
		p.HistoryLimit = def.HistoryLimit
	}
	if p.Temperatures == nil {
		p.Temperatures = def.Temperatures
	}
	if p.SummaryTemperature <= 0 {
		p.SummaryTemperature = def.SummaryTemperature
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = def.MaxTokens
	}
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.Guidance == nil {
		p.Guidance = def.Guidance
	}
	if p.Fragments == nil {
		p.Fragments = def.Fragments
	}
	return p
}

// defaultFragments are text/template sources rendered with guidanceData.
var defaultFragments = map[string]string{
	GuidanceExpression: `【現在の段階：体験的な表現から一般的な表現へ】
学習者の感覚的な言葉をまず受け止め、理科の言葉に少しずつ近づけてください。
- 「ふわふわ」「ぶくぶく」のような言葉は、どんな様子だったかを聞き返す
- 「熱い」「冷たい」と感じたときは、どこで、どんなふうに感じたかを聞く`,

	GuidanceExperience: `【現在の段階：生活経験や前に学んだこととの関連付け】
予想と、生活の中の経験や前に学んだことを結びつけてください。
{{- with pick .Unit.ExperienceProbes 0}}
- 経験を引き出す質問の例：「{{.}}」
{{- end}}
{{- with pick .Unit.LowExperienceQuestions 0}}
- 経験が少なそうなときの質問の例：「{{.}}」
{{- end}}`,

	GuidanceReasoning: `【現在の段階：予想の根拠をはっきりさせる】
予想の理由を学習者自身の言葉で言えるようにしてください。
- 「どうしてそう思ったのかな？」と理由を聞く
- 理由が出ていれば、予想と理由をつなげて言えるように促す`,

	GuidanceResult: `【現在の段階：実験結果の言語化】
実験で見たことや起こったことを、学習者が自分の言葉で話せるように聞いてください。`,

	GuidanceCompare: `【現在の段階：言葉の引き上げと予想との比較】
結果を理科の言葉で言い直せるように支え、予想と比べて合っていたかを聞いてください。
- 例：「ぶくぶくしていた」→「泡がたくさん出ていた」
{{- with .Prediction}}
- 学習者の予想：「{{.}}」
{{- end}}`,

	GuidanceConnect: `【現在の段階：経験との関連付けと、きまりへの足がかり】
結果を生活の経験やほかの場面と結びつけ、きまりとしてまとめられるように促してください。
{{- with pick .Unit.ExperienceProbes 1}}
- 経験を引き出す質問の例：「{{.}}」
{{- end}}`,
}
