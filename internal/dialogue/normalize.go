package dialogue

import "strings"

// expressionReplacer rewrites onomatopoeia into plain phrases and every
// parent word into お家の人.
var expressionReplacer = strings.NewReplacer(
	"ふわふわ", "柔らかかったんだね",
	"べたべた", "ねばねばしていたんだね",
	"ざらざら", "でこぼこしていたんだね",
	"つるつる", "なめらかだったんだね",
	"ぶよぶよ", "弾力があったんだね",
	"ぶくぶく", "泡が出ていたんだね",
	"ごぼごぼ", "音がしていたんだね",
	"ぐるぐる", "回っていたんだね",
	"ふわり", "ゆっくり動いたんだね",
	"ひらひら", "軽やかに動いたんだね",
	"あつあつ", "熱かったんだね",
	"ひんやり", "冷たかったんだね",
	"ぽかぽか", "あたたかかったんだね",
	"いっぱい", "たくさんあったんだね",
	"ちょっぴり", "少しだったんだね",
	"どんどん", "だんだん変わったんだね",
	"お母さん", "お家の人",
	"おかあさん", "お家の人",
	"ママ", "お家の人",
	"お父さん", "お家の人",
	"おとうさん", "お家の人",
	"パパ", "お家の人",
)

// Normalize rewrites childish and family expressions in learner text.
func Normalize(text string) string {
	return expressionReplacer.Replace(text)
}

var (
	confusedMarkers   = []string{"分からない", "わからない", "難しい", "よく見えない"}
	reasoningMarkers  = []string{"なぜなら", "だから", "理由は"}
	understoodMarkers = []string{"分かった", "わかった", "なるほど"}
	dailyLifeMarkers  = []string{"家で", "普段", "お風呂", "料理", "見たことある", "前に", "いつも"}
)

// Signals are keyword heuristics over one learner utterance.
type Signals struct {
	Confused   bool
	Reasoned   bool
	Understood bool
	DailyLife  bool
}

// DetectSignals scans text for the marker phrases.
func DetectSignals(text string) Signals {
	return Signals{
		Confused:   containsAny(text, confusedMarkers),
		Reasoned:   containsAny(text, reasoningMarkers),
		Understood: containsAny(text, understoodMarkers) && !containsAny(text, confusedMarkers),
		DailyLife:  containsAny(text, dailyLifeMarkers),
	}
}

// Hints returns prompt lines describing the learner's state.
func (s Signals) Hints() []string {
	var hints []string
	if s.Confused {
		hints = append(hints, "学習者は難しく感じているようです。もっと身近な例を使って、答えやすい質問にしてください。")
	}
	if s.Reasoned {
		hints = append(hints, "学習者はすでに理由を話しています。理由を受け止めて、もう少し詳しく聞いてください。")
	}
	if s.Understood {
		hints = append(hints, "学習者は納得している様子です。次の考えにつなげる質問をしてください。")
	}
	if s.DailyLife {
		hints = append(hints, "学習者は生活の経験を話しています。その経験をくわしく聞いてください。")
	}
	return hints
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
