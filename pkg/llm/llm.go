// Package llm provides chat completion for the voice pipeline.
//
// The Provider interface abstracts an OpenAI-compatible chat API. The agent
// streams replies token by token so synthesis can start on the first sentence.
//
// Example usage:
//
//	client, _ := llm.NewClient(
//	    llm.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    llm.WithModel("gpt-4o-mini"),
//	)
//	defer client.Close()
//
//	chatCtx := llm.NewChatContext().Append(llm.RoleSystem, "You are helpful.")
//	stream, _ := client.Stream(ctx, &llm.ChatRequest{Messages: chatCtx.Messages()})
//	defer stream.Close()
package llm

import (
	"context"
)

// Provider is the chat completion interface used by the agent.
type Provider interface {
	// Chat generates a complete response.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream generates a response incrementally.
	Stream(ctx context.Context, req *ChatRequest) (Stream, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Stream is a streaming response.
type Stream interface {
	// Recv returns the next chunk. A chunk with Done set ends the stream.
	Recv() (*StreamChunk, error)

	// Close stops the stream and releases resources.
	Close() error
}

// StreamChunk is a piece of a streaming response.
type StreamChunk struct {
	// RequestID identifies the completion.
	RequestID string

	// Delta is the incremental text content.
	Delta string

	// FinishReason indicates why generation stopped (stop, length).
	FinishReason string

	// Usage is set on the chunk that reports token counts, usually the last.
	Usage *Usage

	// Done is true when the stream is complete.
	Done bool
}

// ChatRequest for chat completions.
type ChatRequest struct {
	// Messages is the conversation history.
	Messages []Message

	// Model overrides the default model.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0.0-2.0).
	Temperature float64

	// Stop sequences that halt generation.
	Stop []string
}

// ChatResponse from chat completion.
type ChatResponse struct {
	RequestID    string
	Message      Message
	FinishReason string
	Usage        Usage
	Model        string
	LatencyMs    int64
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
