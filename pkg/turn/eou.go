package turn

import (
	"context"
	"strings"
	"unicode"

	"github.com/teslashibe/inbound-agent/pkg/llm"
)

// Probabilities returned by EOUModel.
const (
	probComplete   = 0.95
	probParticle   = 0.85
	probAmbiguous  = 0.5
	probIncomplete = 0.05
)

// languageRules holds the trailing words that signal an unfinished or
// finished utterance in one language.
type languageRules struct {
	threshold  float64
	continuing map[string]bool
	final      map[string]bool
}

func words(s string) map[string]bool {
	m := make(map[string]bool)
	for _, w := range strings.Split(s, ",") {
		m[strings.TrimSpace(w)] = true
	}
	return m
}

var defaultRules = map[string]languageRules{
	"en": {
		threshold:  0.15,
		continuing: words("and,but,or,so,because,if,then,the,a,an,to,of,with,for,my,your,um,uh,like,is,are,was,that,which"),
		final:      words("thanks,thank you,please,bye,okay,ok,yes,no"),
	},
	"vi": {
		threshold:  0.15,
		continuing: words("và,nhưng,hoặc,hay,vì,nếu,thì,là,của,với,cho,để,mà,ừm,à thì,cái,những,các,một"),
		final:      words("không,chưa,ạ,nhé,nhỉ,hả,vậy,đi,với ạ,cảm ơn,vâng,dạ,rồi"),
	},
}

// EOUModel is a lightweight end-of-utterance estimator that reads the
// punctuation and trailing words of the last user message.
type EOUModel struct {
	rules map[string]languageRules
}

// NewEOUModel creates a detector for English and Vietnamese.
func NewEOUModel() *EOUModel {
	return &EOUModel{rules: defaultRules}
}

// SupportsLanguage reports whether lang has rules.
func (m *EOUModel) SupportsLanguage(lang string) bool {
	_, ok := m.rules[BaseLanguage(lang)]
	return ok
}

// UnlikelyThreshold returns the per-language threshold.
func (m *EOUModel) UnlikelyThreshold(lang string) (float64, bool) {
	r, ok := m.rules[BaseLanguage(lang)]
	if !ok {
		return 0, false
	}
	return r.threshold, true
}

// PredictEndOfTurn scores the last user message.
func (m *EOUModel) PredictEndOfTurn(ctx context.Context, chatCtx *llm.ChatContext) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return m.score(chatCtx.LastUserText()), nil
}

func (m *EOUModel) score(text string) float64 {
	text = strings.TrimSpace(strings.ToLower(text))
	if text == "" {
		return probAmbiguous
	}

	last, _ := lastRune(text)
	switch {
	case strings.ContainsRune(".!?…", last):
		return probComplete
	case strings.ContainsRune(",;:-–", last):
		return probIncomplete
	}

	trimmed := strings.TrimRightFunc(text, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return probAmbiguous
	}

	tail1 := fields[len(fields)-1]
	tail2 := tail1
	if len(fields) > 1 {
		tail2 = fields[len(fields)-2] + " " + tail1
	}

	for _, r := range m.rules {
		if r.continuing[tail2] || r.continuing[tail1] {
			return probIncomplete
		}
	}
	for _, r := range m.rules {
		if r.final[tail2] || r.final[tail1] {
			return probParticle
		}
	}
	return probAmbiguous
}

func lastRune(s string) (rune, bool) {
	r := []rune(s)
	if len(r) == 0 {
		return 0, false
	}
	return r[len(r)-1], true
}

var _ Detector = (*EOUModel)(nil)
