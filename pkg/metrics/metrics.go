// Package metrics defines the metrics a voice agent emits and a collector
// that aggregates them into a usage summary.
package metrics

import (
	"time"
)

// Kind identifies the pipeline stage a metrics record came from.
type Kind string

const (
	KindSTT Kind = "stt"
	KindLLM Kind = "llm"
	KindTTS Kind = "tts"
	KindVAD Kind = "vad"
	KindEOU Kind = "eou"
)

// AgentMetrics is implemented by every metrics record.
type AgentMetrics interface {
	Kind() Kind
	At() time.Time
}

// STTMetrics reports speech recognition usage.
type STTMetrics struct {
	RequestID     string
	Timestamp     time.Time
	Duration      time.Duration // Time spent waiting on the provider (0 for streams)
	AudioDuration time.Duration // Audio sent for recognition
	Streamed      bool
}

// LLMMetrics reports one language model generation.
type LLMMetrics struct {
	RequestID        string
	SpeechID         string
	Timestamp        time.Time
	TTFT             time.Duration // Time to first token
	Duration         time.Duration // Full generation time
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	TokensPerSecond  float64
	Cancelled        bool
}

// TTSMetrics reports one synthesis request.
type TTSMetrics struct {
	RequestID       string
	SpeechID        string
	Timestamp       time.Time
	TTFB            time.Duration // Time to first audio byte
	Duration        time.Duration // Full synthesis time
	AudioDuration   time.Duration
	CharactersCount int
	Cancelled       bool
	Streamed        bool
}

// VADMetrics reports detector load for one utterance.
type VADMetrics struct {
	Timestamp         time.Time
	IdleTime          time.Duration
	InferenceCount    int
	InferenceDuration time.Duration
}

// EOUMetrics reports end-of-utterance timing.
type EOUMetrics struct {
	SpeechID string
	// Timestamp of the committed user turn.
	Timestamp time.Time
	// EndOfUtteranceDelay is the time from end of speech to turn commit.
	EndOfUtteranceDelay time.Duration
	// TranscriptionDelay is the time from end of speech to final transcript.
	TranscriptionDelay time.Duration
	// Probability reported by the turn detector, -1 if none was used.
	Probability float64
}

func (m STTMetrics) Kind() Kind    { return KindSTT }
func (m STTMetrics) At() time.Time { return m.Timestamp }
func (m LLMMetrics) Kind() Kind    { return KindLLM }
func (m LLMMetrics) At() time.Time { return m.Timestamp }
func (m TTSMetrics) Kind() Kind    { return KindTTS }
func (m TTSMetrics) At() time.Time { return m.Timestamp }
func (m VADMetrics) Kind() Kind    { return KindVAD }
func (m VADMetrics) At() time.Time { return m.Timestamp }
func (m EOUMetrics) Kind() Kind    { return KindEOU }
func (m EOUMetrics) At() time.Time { return m.Timestamp }
