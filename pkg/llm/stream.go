package llm

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

// sseStream implements Stream over a server-sent events body.
type sseStream struct {
	reader *bufio.Reader
	body   io.ReadCloser

	mu     sync.Mutex
	closed bool
	id     string
}

func newSSEStream(body io.ReadCloser) *sseStream {
	return &sseStream{
		reader: bufio.NewReader(body),
		body:   body,
	}
}

// Recv returns the next stream chunk.
func (s *sseStream) Recv() (*StreamChunk, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrStreamClosed
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err == io.EOF {
			return &StreamChunk{RequestID: s.id, Done: true}, nil
		}
		if err != nil {
			return nil, WrapError(providerOpenAI, fmt.Errorf("read stream: %w", err))
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return &StreamChunk{RequestID: s.id, Done: true}, nil
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			// Skip malformed events
			continue
		}
		if event.ID != "" {
			s.id = event.ID
		}

		chunk := &StreamChunk{RequestID: s.id}
		if event.Usage != nil {
			u := event.Usage.toUsage()
			chunk.Usage = &u
		}
		if len(event.Choices) > 0 {
			chunk.Delta = event.Choices[0].Delta.Content
			chunk.FinishReason = event.Choices[0].FinishReason
		}

		if chunk.Delta == "" && chunk.FinishReason == "" && chunk.Usage == nil {
			continue
		}
		return chunk, nil
	}
}

// Close stops the stream.
func (s *sseStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

// streamEvent is the SSE event format.
type streamEvent struct {
	ID      string `json:"id"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			Role    string `json:"role"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *apiUsage `json:"usage"`
}
