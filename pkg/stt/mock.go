package stt

import (
	"context"
	"sync"

	"github.com/teslashibe/inbound-agent/pkg/audio"
)

// Mock implements Provider for testing. Each opened stream is recorded
// and can be driven with Emit.
type Mock struct {
	// StreamFunc overrides stream creation when set.
	StreamFunc func(ctx context.Context) (Stream, error)

	mu      sync.Mutex
	streams []*MockStream
}

// NewMock creates a mock provider.
func NewMock() *Mock {
	return &Mock{}
}

// Stream opens a MockStream.
func (m *Mock) Stream(ctx context.Context) (Stream, error) {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx)
	}
	s := NewMockStream()
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	return s, nil
}

// Close is a no-op.
func (m *Mock) Close() error {
	return nil
}

// Streams returns the streams opened so far.
func (m *Mock) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockStream(nil), m.streams...)
}

// MockStream records pushed audio and replays events supplied by the test.
type MockStream struct {
	events chan SpeechEvent

	mu      sync.Mutex
	frames  int
	flushes int
	closed  bool
}

// NewMockStream creates a stream with a buffered event channel.
func NewMockStream() *MockStream {
	return &MockStream{events: make(chan SpeechEvent, eventBuffer)}
}

// PushFrame counts the frame.
func (s *MockStream) PushFrame(f audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.frames++
	return nil
}

// Flush counts the call.
func (s *MockStream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

// Events returns the event channel.
func (s *MockStream) Events() <-chan SpeechEvent {
	return s.events
}

// Emit delivers e to the consumer. It is a no-op after Close.
func (s *MockStream) Emit(e SpeechEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.events <- e
	}
}

// Transcript emits a final transcript bracketed by start and end of speech.
func (s *MockStream) Transcript(text, lang string) {
	s.Emit(SpeechEvent{Type: StartOfSpeech})
	s.Emit(SpeechEvent{Type: FinalTranscript, Alternatives: []SpeechData{{Text: text, Language: lang, Confidence: 1}}})
	s.Emit(SpeechEvent{Type: EndOfSpeech})
}

// Frames returns how many frames were pushed.
func (s *MockStream) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Flushes returns how many times Flush was called.
func (s *MockStream) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

// Close closes the event channel.
func (s *MockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

var _ Provider = (*Mock)(nil)
