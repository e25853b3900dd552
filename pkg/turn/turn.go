// Package turn decides when a user has finished speaking.
//
// VAD detects voice activity; the turn detector looks at what was said and
// estimates whether the utterance is complete. Endpointing turns that
// estimate into a wait before the agent replies.
package turn

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/teslashibe/inbound-agent/pkg/llm"
)

// Detector estimates the probability that the user has finished their turn.
type Detector interface {
	// PredictEndOfTurn returns a probability in [0, 1] for the last user
	// message in chatCtx being a complete turn.
	PredictEndOfTurn(ctx context.Context, chatCtx *llm.ChatContext) (float64, error)

	// UnlikelyThreshold returns the probability below which the turn is
	// considered unfinished. ok is false for unsupported languages.
	UnlikelyThreshold(lang string) (threshold float64, ok bool)

	// SupportsLanguage reports whether the detector handles lang.
	SupportsLanguage(lang string) bool
}

// ErrInvalidEndpointing is returned for negative or inverted delays.
var ErrInvalidEndpointing = errors.New("turn: endpointing requires 0 <= min <= max")

// Endpointing bounds how long the agent waits after the user stops speaking.
type Endpointing struct {
	// MinDelay is used when the detector believes the turn is complete.
	MinDelay time.Duration

	// MaxDelay is used when the detector believes the user will continue.
	MaxDelay time.Duration
}

// DefaultEndpointing returns 0.5s / 5s.
func DefaultEndpointing() Endpointing {
	return Endpointing{MinDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Validate checks the bounds.
func (e Endpointing) Validate() error {
	if e.MinDelay < 0 || e.MaxDelay < e.MinDelay {
		return ErrInvalidEndpointing
	}
	return nil
}

// Delay picks the wait for an end-of-turn probability.
func (e Endpointing) Delay(prob, threshold float64) time.Duration {
	if prob < threshold {
		return e.MaxDelay
	}
	return e.MinDelay
}

// BaseLanguage reduces a BCP 47 tag to its primary subtag ("vi-VN" -> "vi").
func BaseLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	return lang
}
