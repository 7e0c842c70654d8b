package dialogue

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/ashureev/sciencebuddy/internal/content"
	"github.com/ashureev/sciencebuddy/internal/domain"
)

const responseRules = `【応答ルール】
1. 1回の応答で聞く質問は1つだけにする
2. 短く、小学生にわかる言葉で話す
3. 学習者の発言をまず受け止めてから質問する
4. 答えや正解を先に教えない
5. 学習者が言っていないことを決めつけない
6. JSON形式やマークダウンの記号は使わない
7. 普通の文章で返答する`

var fragmentFuncs = template.FuncMap{
	"pick": func(list []string, i int) string {
		if i < 0 || i >= len(list) {
			return ""
		}
		return list[i]
	},
}

type guidanceData struct {
	Unit       content.Unit
	Turn       int
	Prediction string
}

type promptInput struct {
	instruction string
	unit        content.Unit
	task        string
	stage       domain.Stage
	turn        int
	prediction  string
	guidance    string
	signals     Signals
}

func buildSystemPrompt(in promptInput) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(in.instruction))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "【学習単元】%s\n", in.unit.Name)
	fmt.Fprintf(&b, "【課題】%s\n", in.task)
	if in.stage == domain.StageReflection && in.prediction != "" {
		fmt.Fprintf(&b, "【学習者の予想】%s\n", in.prediction)
	}
	fmt.Fprintf(&b, "【対話回数】%d回目\n", in.turn)

	if in.guidance != "" {
		b.WriteString("\n")
		b.WriteString(in.guidance)
		b.WriteString("\n")
	}

	if traits := unitTraits(in.unit); traits != "" {
		b.WriteString("\n【単元特性】\n")
		b.WriteString(traits)
	}

	if hints := in.signals.Hints(); len(hints) > 0 {
		b.WriteString("\n【学習者の様子】\n")
		for _, h := range hints {
			b.WriteString("- " + h + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(responseRules)
	return b.String()
}

func unitTraits(u content.Unit) string {
	var b strings.Builder
	line := func(label string, values ...string) {
		var kept []string
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				kept = append(kept, v)
			}
		}
		if len(kept) > 0 {
			fmt.Fprintf(&b, "- %s：%s\n", label, strings.Join(kept, "、"))
		}
	}
	line("見方・考え方", u.Viewpoint)
	line("重点活動", u.FocusActivities...)
	line("生活経験", u.LifeExperiences...)
	line("キーワード", u.Keywords...)
	if len(u.SocraticQuestions) > 0 {
		b.WriteString("- 問いかけの例：\n")
		for _, q := range u.SocraticQuestions {
			b.WriteString("  - " + q + "\n")
		}
	}
	return b.String()
}

// renderFragment executes a guidance fragment template. A broken template
// is returned as literal text.
func renderFragment(src string, data guidanceData) (string, error) {
	tmpl, err := template.New("guidance").Funcs(fragmentFuncs).Parse(src)
	if err != nil {
		return src, fmt.Errorf("parse guidance fragment: %w", err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return src, fmt.Errorf("render guidance fragment: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}

type summaryData struct {
	Unit       string
	Task       string
	Prediction string
	Transcript string
}

var summaryTemplates = map[domain.Stage]*template.Template{
	domain.StagePrediction: template.Must(template.New("prediction_summary").Parse(`以下の対話内容「のみ」を基に、学習者が実際に発言した内容をまとめて予想文を作成してください。

重要な制約:
1. 対話に出てこなかった内容は絶対に追加しない
2. 学習者が実際に言った言葉や表現をできるだけ使う
3. 学習者が話した経験や根拠のみを含める
4. 対話で言及されていない例や理由は一切使わない
5. 1〜2文の短い予想文にまとめる
6. 「〜と思います。なぜなら〜」の形で、「〜と思います。」「〜だと予想します。」のように終える
7. マークダウン記法は一切使わない

課題文: {{.Task}}
単元: {{.Unit}}

対話履歴:
{{.Transcript}}`)),

	domain.StageReflection: template.Must(template.New("final_summary").Parse(`以下の対話内容「のみ」を基に、学習者が実際に発言した内容をまとめて考察文を作成してください。

重要な制約:
1. 対話に出てこなかった内容は絶対に追加しない
2. 学習者が実際に言った実験結果のみを使う
3. 学習者が実際に話した経験や考えのみを含める
4. 対話で言及されていない結論や解釈は一切追加しない
5. 定型文の形式を守る：「(結果)という結果であった。(予想)と予想していたが、(合っていた/誤っていた)。このことから(経験や既習事項)は〜と考えた」
6. マークダウン記法は一切使わない
7. 学習者の実際の表現をできるだけ使う

単元: {{.Unit}}
学習者の予想: {{.Prediction}}

考察対話履歴:
{{.Transcript}}`)),
}

func buildSummaryPrompt(stage domain.Stage, data summaryData) (string, error) {
	tmpl, ok := summaryTemplates[stage]
	if !ok {
		return "", ErrNotChatStage
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render summary prompt: %w", err)
	}
	return b.String(), nil
}

func transcript(msgs []domain.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		speaker := "AI"
		if m.Role == domain.RoleUser {
			speaker = "学習者"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, m.Content)
	}
	return b.String()
}
