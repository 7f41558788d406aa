// Package judges adapts the LLM transport to the ports.Judge contract: it
// renders a race into a prompt, asks one provider for a finishing order and
// folds every outcome, including failures, into a ProviderVerdict.
package judges

import (
	"bytes"
	"fmt"
	"strconv"
	"text/template"
	"time"

	"github.com/ahrav/go-magi/internal/domain"
)

// DefaultPromptTemplate asks for a single trifecta, a confidence label and a
// short rationale in a fixed layout that ParseReply understands.
const DefaultPromptTemplate = `あなたはボートレース予想の専門家です。以下のレースを分析し、予想を行ってください。

【レース情報】
会場: {{orDash .VenueName}}
日付: {{date .RaceDate}}
レース: {{.RaceNo}}R {{raceName .}}

【出走表】
{{range $i, $e := .Entries}}{{if $i}}
{{end}}{{$e.Lane}}号艇: {{orDash $e.RacerName}} ({{orDash $e.RacerClass}})
  全国勝率: {{f2 $e.WinRateAll}} / 当地勝率: {{f2 $e.WinRateLocal}}
  モーター2連率: {{f1 $e.MotorRate}}% / ボート2連率: {{f1 $e.BoatRate}}%
  平均ST: {{f2 $e.AvgStartTiming}} / 今節: {{orDash $e.CurrentSeriesResults}}
{{end}}
【出力形式】
必ず以下の形式で回答してください：

■予想買い目（3連単）
[買い目を1つだけ記載。例: 1-3-4]

■自信度
[高/中/低 のいずれか]

■分析
[200文字以内で簡潔に根拠を説明]
`

// DefaultSystemPrompt is sent as the system message on every request.
const DefaultSystemPrompt = "あなたはボートレース予想の専門家です。"

// PromptRenderer turns a RaceContext into prompt text. It is immutable and
// safe for concurrent use.
type PromptRenderer struct {
	tmpl *template.Template
}

// NewPromptRenderer compiles text. An empty text selects DefaultPromptTemplate.
func NewPromptRenderer(text string) (*PromptRenderer, error) {
	if text == "" {
		text = DefaultPromptTemplate
	}
	tmpl, err := template.New("race").Funcs(promptFuncs()).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing prompt template: %w", err)
	}
	return &PromptRenderer{tmpl: tmpl}, nil
}

// Render executes the template for race.
func (r *PromptRenderer) Render(race domain.RaceContext) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, race); err != nil {
		return "", fmt.Errorf("rendering prompt for race %d: %w", race.RaceID, err)
	}
	return buf.String(), nil
}

func promptFuncs() template.FuncMap {
	return template.FuncMap{
		"f1": func(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) },
		"f2": func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) },
		"orDash": func(s string) string {
			if s == "" {
				return "-"
			}
			return s
		},
		"date": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.Format("2006-01-02")
		},
		// raceName falls back to the ordinal title used on race cards.
		"raceName": func(r domain.RaceContext) string {
			if r.RaceName != "" {
				return r.RaceName
			}
			return fmt.Sprintf("第%dレース", r.RaceNo)
		},
	}
}
