package judges

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/ahrav/go-magi/internal/domain"
)

// Reply is the structured content of a provider's answer.
type Reply struct {
	// Prediction is the finishing-order token, e.g. "1-3-4".
	Prediction string
	// Confidence is empty when the reply carries no recognizable label.
	Confidence domain.ConfidenceLabel
	Analysis   string
}

// Token patterns in priority order: the token under the heading, a labeled
// token anywhere, then any token.
var predictionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`■予想買い目[^\n]*\n\s*(\d-\d-\d)`),
	regexp.MustCompile(`買い目:\s*(\d-\d-\d)`),
	regexp.MustCompile(`(\d-\d-\d)`),
}

var confidencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`■(?:自信度|信頼度)[^\n]*\n\s*(高|中|低)`),
	regexp.MustCompile(`(?:自信度|信頼度):\s*(高|中|低)`),
}

var analysisPattern = regexp.MustCompile(`■分析[^\n]*\n([\s\S]*)`)

var confidenceLabels = map[string]domain.ConfidenceLabel{
	"高": domain.ConfidenceHigh,
	"中": domain.ConfidenceMedium,
	"低": domain.ConfidenceLow,
}

// Dash variants NFKC leaves alone.
var dashes = strings.NewReplacer(
	"\u2010", "-", // hyphen
	"\u2011", "-", // non-breaking hyphen
	"\u2012", "-", // figure dash
	"\u2013", "-", // en dash
	"\u2212", "-", // minus sign
)

// NormalizeReply folds full-width digits, colons and dashes to ASCII.
func NormalizeReply(text string) string {
	return dashes.Replace(norm.NFKC.String(text))
}

// ParseReply extracts the finishing order, confidence label and analysis
// from a reply. ok is false when no finishing-order token is present.
func ParseReply(text string) (r Reply, ok bool) {
	text = NormalizeReply(text)

	for _, re := range predictionPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			r.Prediction = m[1]
			break
		}
	}
	if r.Prediction == "" {
		return Reply{}, false
	}

	for _, re := range confidencePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			r.Confidence = confidenceLabels[m[1]]
			break
		}
	}

	if m := analysisPattern.FindStringSubmatch(text); m != nil {
		r.Analysis = strings.TrimSpace(m[1])
	} else {
		r.Analysis = strings.TrimSpace(text)
	}
	return r, true
}
