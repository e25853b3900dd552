// Package stt provides streaming speech recognition for the voice pipeline.
//
// A Provider opens one Stream per participant. Audio frames are pushed in,
// recognition events come out on a channel in arrival order.
package stt

import (
	"context"
	"time"

	"github.com/teslashibe/inbound-agent/pkg/audio"
)

// Provider opens recognition streams.
type Provider interface {
	// Stream opens a live recognition session.
	Stream(ctx context.Context) (Stream, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Stream is a live recognition session.
type Stream interface {
	// PushFrame sends audio for recognition.
	PushFrame(f audio.Frame) error

	// Flush asks the recognizer to finalize buffered audio.
	Flush() error

	// Events delivers recognition events. It is closed when the stream ends.
	Events() <-chan SpeechEvent

	// Close ends the session.
	Close() error
}

// EventType classifies a SpeechEvent.
type EventType int

const (
	StartOfSpeech EventType = iota
	InterimTranscript
	FinalTranscript
	EndOfSpeech
	RecognitionUsage
)

func (t EventType) String() string {
	switch t {
	case StartOfSpeech:
		return "start_of_speech"
	case InterimTranscript:
		return "interim_transcript"
	case FinalTranscript:
		return "final_transcript"
	case EndOfSpeech:
		return "end_of_speech"
	case RecognitionUsage:
		return "recognition_usage"
	default:
		return "unknown"
	}
}

// SpeechData is one recognition hypothesis.
type SpeechData struct {
	Text       string
	Language   string
	Confidence float64
	StartTime  time.Duration
	EndTime    time.Duration
}

// SpeechEvent is emitted by a Stream.
type SpeechEvent struct {
	Type         EventType
	RequestID    string
	Alternatives []SpeechData

	// AudioDuration is set on RecognitionUsage events.
	AudioDuration time.Duration
}

// Text returns the best alternative's transcript.
func (e SpeechEvent) Text() string {
	if len(e.Alternatives) == 0 {
		return ""
	}
	return e.Alternatives[0].Text
}
