package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Mock implements Provider for testing.
type Mock struct {
	// ChatFunc is called when Chat is invoked.
	ChatFunc func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// StreamFunc is called when Stream is invoked.
	StreamFunc func(ctx context.Context, req *ChatRequest) (Stream, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu       sync.Mutex
	calls    []string
	requests []*ChatRequest
}

// NewMock creates a mock that replies with reply, streamed word by word.
func NewMock(reply string) *Mock {
	return &Mock{
		ChatFunc: func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			return &ChatResponse{
				RequestID:    uuid.NewString(),
				Message:      Message{Role: RoleAssistant, Content: reply},
				FinishReason: "stop",
				Usage:        Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
			}, nil
		},
		StreamFunc: func(ctx context.Context, req *ChatRequest) (Stream, error) {
			return NewSliceStream(splitWords(reply), &Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}), nil
		},
	}
}

// Chat calls ChatFunc and records the call.
func (m *Mock) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	m.record("Chat", req)
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	return nil, WrapError("mock", ErrNoChoices)
}

// Stream calls StreamFunc and records the call.
func (m *Mock) Stream(ctx context.Context, req *ChatRequest) (Stream, error) {
	m.record("Stream", req)
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	return NewSliceStream(nil, nil), nil
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record("Close", nil)
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Calls returns the recorded method calls.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Requests returns the recorded requests.
func (m *Mock) Requests() []*ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ChatRequest(nil), m.requests...)
}

func (m *Mock) record(call string, req *ChatRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	if req != nil {
		m.requests = append(m.requests, req)
	}
}

// SliceStream replays fixed deltas, then a final chunk with usage.
type SliceStream struct {
	mu     sync.Mutex
	id     string
	deltas []string
	usage  *Usage
	pos    int
	closed bool
}

// NewSliceStream creates a stream over deltas.
func NewSliceStream(deltas []string, usage *Usage) *SliceStream {
	return &SliceStream{id: uuid.NewString(), deltas: deltas, usage: usage}
}

// Recv returns the next delta.
func (s *SliceStream) Recv() (*StreamChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStreamClosed
	}
	if s.pos < len(s.deltas) {
		d := s.deltas[s.pos]
		s.pos++
		return &StreamChunk{RequestID: s.id, Delta: d}, nil
	}
	return &StreamChunk{RequestID: s.id, FinishReason: "stop", Usage: s.usage, Done: true}, nil
}

// Close marks the stream closed.
func (s *SliceStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func splitWords(s string) []string {
	fields := strings.Fields(s)
	for i := range fields {
		if i > 0 {
			fields[i] = " " + fields[i]
		}
	}
	return fields
}

var _ Provider = (*Mock)(nil)
