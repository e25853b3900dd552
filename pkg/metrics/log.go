package metrics

import (
	"context"
	"log/slog"
	"time"
)

// Log writes exactly one structured record for m.
func Log(logger *slog.Logger, m AgentMetrics) {
	if logger == nil || m == nil {
		return
	}

	var attrs []slog.Attr
	switch v := m.(type) {
	case STTMetrics:
		attrs = []slog.Attr{
			slog.String("request_id", v.RequestID),
			ms("audio_duration_ms", v.AudioDuration),
			slog.Bool("streamed", v.Streamed),
		}
	case LLMMetrics:
		attrs = []slog.Attr{
			slog.String("speech_id", v.SpeechID),
			ms("ttft_ms", v.TTFT),
			ms("duration_ms", v.Duration),
			slog.Int("prompt_tokens", v.PromptTokens),
			slog.Int("completion_tokens", v.CompletionTokens),
			slog.Float64("tokens_per_second", v.TokensPerSecond),
			slog.Bool("cancelled", v.Cancelled),
		}
	case TTSMetrics:
		attrs = []slog.Attr{
			slog.String("speech_id", v.SpeechID),
			ms("ttfb_ms", v.TTFB),
			ms("duration_ms", v.Duration),
			ms("audio_duration_ms", v.AudioDuration),
			slog.Int("characters", v.CharactersCount),
			slog.Bool("cancelled", v.Cancelled),
		}
	case VADMetrics:
		attrs = []slog.Attr{
			ms("idle_time_ms", v.IdleTime),
			slog.Int("inference_count", v.InferenceCount),
			ms("inference_duration_ms", v.InferenceDuration),
		}
	case EOUMetrics:
		attrs = []slog.Attr{
			slog.String("speech_id", v.SpeechID),
			ms("end_of_utterance_delay_ms", v.EndOfUtteranceDelay),
			ms("transcription_delay_ms", v.TranscriptionDelay),
			slog.Float64("probability", v.Probability),
		}
	}

	attrs = append([]slog.Attr{slog.String("kind", string(m.Kind()))}, attrs...)
	logger.LogAttrs(context.Background(), slog.LevelInfo, "metrics collected", attrs...)
}

func ms(key string, d time.Duration) slog.Attr {
	return slog.Int64(key, d.Milliseconds())
}
