package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/inbound-agent/pkg/llm"
	"github.com/teslashibe/inbound-agent/pkg/metrics"
	"github.com/teslashibe/inbound-agent/pkg/tts"
)

// playoutLead is how far ahead of real time audio may be published.
const playoutLead = 100 * time.Millisecond

// playout plays queued speech one utterance at a time.
func (a *Agent) playout() {
	defer a.wg.Done()
	defer func() {
		for {
			select {
			case h := <-a.speechQ:
				h.finish(true)
			default:
				return
			}
		}
	}()

	for {
		select {
		case <-a.ctx.Done():
			return
		case h := <-a.speechQ:
			a.play(h)
			if len(a.speechQ) == 0 && a.ctx.Err() == nil {
				a.setState(StateListening)
			}
		}
	}
}

// play speaks h and records it in the chat context.
func (a *Agent) play(h *SpeechHandle) {
	if h.ctx.Err() != nil {
		h.finish(true)
		return
	}

	a.setCurrent(h)
	defer a.setCurrent(nil)

	var sentences <-chan string
	if h.reply {
		a.setState(StateThinking)
		sentences = a.generate(h)
	} else {
		ch := make(chan string, 1)
		ch <- h.text
		close(ch)
		sentences = ch
	}

	for sentence := range sentences {
		if h.ctx.Err() != nil {
			continue
		}
		if err := a.synthesize(h, sentence); err != nil && h.ctx.Err() == nil {
			a.logger.Error("synthesis failed", "speech_id", h.id, "error", err)
			h.cancel()
		}
	}

	interrupted := h.Interrupted() || a.ctx.Err() != nil
	if text := h.Text(); text != "" {
		a.chatCtx.AppendMessage(llm.Message{
			Role:        llm.RoleAssistant,
			Content:     text,
			Interrupted: interrupted,
		})
		a.publishTranscript(a.opts.Identity, text, true)
	}
	h.finish(interrupted)
	a.logger.Debug("speech done", "speech_id", h.id, "interrupted", interrupted)
}

// generate streams a reply for the current chat context and yields it
// sentence by sentence.
func (a *Agent) generate(h *SpeechHandle) <-chan string {
	out := make(chan string, 4)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer close(out)

		m := metrics.LLMMetrics{SpeechID: h.id}
		start := time.Now()
		defer func() {
			m.Timestamp = time.Now()
			m.Duration = time.Since(start)
			m.Cancelled = h.ctx.Err() != nil
			if secs := m.Duration.Seconds(); secs > 0 {
				m.TokensPerSecond = float64(m.CompletionTokens) / secs
			}
			a.emit(m)
		}()

		stream, err := a.opts.LLM.Stream(h.ctx, &llm.ChatRequest{Messages: a.chatCtx.Messages()})
		if err != nil {
			if h.ctx.Err() == nil {
				a.logger.Error("llm stream failed", "speech_id", h.id, "error", err)
			}
			return
		}
		defer stream.Close()

		send := func(s string) bool {
			select {
			case out <- s:
				return true
			case <-h.ctx.Done():
				return false
			}
		}

		var buf sentenceBuffer
		for {
			chunk, err := stream.Recv()
			if err != nil {
				if h.ctx.Err() == nil && !errors.Is(err, context.Canceled) {
					a.logger.Error("llm stream error", "speech_id", h.id, "error", err)
				}
				return
			}
			if chunk.RequestID != "" {
				m.RequestID = chunk.RequestID
			}
			if chunk.Usage != nil {
				m.PromptTokens = chunk.Usage.PromptTokens
				m.CompletionTokens = chunk.Usage.CompletionTokens
				m.TotalTokens = chunk.Usage.TotalTokens
			}
			if chunk.Delta != "" {
				if m.TTFT == 0 {
					m.TTFT = time.Since(start)
				}
				for _, s := range buf.Add(chunk.Delta) {
					if !send(s) {
						return
					}
				}
			}
			if chunk.Done {
				break
			}
		}

		if rest := buf.Flush(); rest != "" {
			send(rest)
		}
	}()

	return out
}

// synthesize streams text through TTS and publishes it to the room at
// real-time pace.
func (a *Agent) synthesize(h *SpeechHandle, text string) error {
	m := metrics.TTSMetrics{
		RequestID:       uuid.NewString(),
		SpeechID:        h.id,
		CharactersCount: len([]rune(text)),
		Streamed:        true,
	}
	start := time.Now()
	defer func() {
		m.Timestamp = time.Now()
		m.Duration = time.Since(start)
		m.Cancelled = h.ctx.Err() != nil
		a.emit(m)
	}()

	stream, err := a.opts.TTS.Stream(h.ctx, text)
	if err != nil {
		return err
	}
	reader := tts.NewFrameReader(stream)
	defer reader.Close()

	a.mu.Lock()
	room := a.room
	a.mu.Unlock()

	var playStart time.Time
	var played time.Duration
	for {
		f, ok, err := reader.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if playStart.IsZero() {
			m.TTFB = time.Since(start)
			playStart = time.Now()
			h.playing.Store(true)
			h.addSpoken(text)
			a.setState(StateSpeaking)
		}

		if err := room.PublishAudio(h.ctx, f); err != nil {
			if h.ctx.Err() != nil {
				return nil
			}
			a.logger.Debug("publish audio failed", "error", err)
		}
		played += f.Duration()
		m.AudioDuration = played

		if wait := time.Until(playStart.Add(played - playoutLead)); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-h.ctx.Done():
				timer.Stop()
				return nil
			}
		}
	}
}
