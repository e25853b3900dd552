package metrics

import (
	"fmt"
	"sync"
	"time"
)

// UsageSummary aggregates billable usage across a session.
type UsageSummary struct {
	LLMPromptTokens     int
	LLMCompletionTokens int
	TTSCharactersCount  int
	STTAudioDuration    time.Duration
}

// String formats the summary for logs.
func (u UsageSummary) String() string {
	return fmt.Sprintf("llm_prompt_tokens=%d llm_completion_tokens=%d tts_characters=%d stt_audio=%s",
		u.LLMPromptTokens, u.LLMCompletionTokens, u.TTSCharactersCount,
		u.STTAudioDuration.Round(time.Millisecond))
}

// UsageCollector accumulates metrics over an agent's lifetime.
// It is append-only and goroutine-safe.
type UsageCollector struct {
	mu      sync.Mutex
	events  []AgentMetrics
	summary UsageSummary
}

// NewUsageCollector creates an empty collector.
func NewUsageCollector() *UsageCollector {
	return &UsageCollector{}
}

// Collect appends m and folds it into the summary.
func (c *UsageCollector) Collect(m AgentMetrics) {
	if m == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, m)

	switch v := m.(type) {
	case LLMMetrics:
		c.summary.LLMPromptTokens += v.PromptTokens
		c.summary.LLMCompletionTokens += v.CompletionTokens
	case TTSMetrics:
		c.summary.TTSCharactersCount += v.CharactersCount
	case STTMetrics:
		c.summary.STTAudioDuration += v.AudioDuration
	}
}

// Summary returns the aggregated usage.
func (c *UsageCollector) Summary() UsageSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}

// Len returns the number of collected records.
func (c *UsageCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// Events returns a copy of the collected records in arrival order.
func (c *UsageCollector) Events() []AgentMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AgentMetrics, len(c.events))
	copy(out, c.events)
	return out
}
