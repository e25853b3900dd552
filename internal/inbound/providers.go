package inbound

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/teslashibe/inbound-agent/internal/config"
	"github.com/teslashibe/inbound-agent/pkg/llm"
	"github.com/teslashibe/inbound-agent/pkg/persona"
	"github.com/teslashibe/inbound-agent/pkg/stt"
	"github.com/teslashibe/inbound-agent/pkg/tts"
)

// Providers are the speech and language backends for one call.
type Providers struct {
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider
}

// Close releases every provider.
func (p *Providers) Close() error {
	var errs []error
	if p.STT != nil {
		errs = append(errs, p.STT.Close())
	}
	if p.LLM != nil {
		errs = append(errs, p.LLM.Close())
	}
	if p.TTS != nil {
		errs = append(errs, p.TTS.Close())
	}
	return errors.Join(errs...)
}

// CloudProviders returns a ProvidersFunc building Deepgram, an
// OpenAI-compatible chat client and ElevenLabs from the persona settings.
func CloudProviders(creds config.Credentials, logger *slog.Logger) ProvidersFunc {
	return func(p persona.Persona) (*Providers, error) {
		recognizer, err := stt.NewDeepgram(
			stt.WithAPIKey(creds.DeepgramKey),
			stt.WithModel(p.STT.Model),
			stt.WithLanguage(p.STT.Language),
			stt.WithInterimResults(p.STT.InterimResults),
			stt.WithSmartFormat(p.STT.SmartFormat),
			stt.WithPunctuate(p.STT.Punctuate),
			stt.WithFillerWords(p.STT.FillerWords),
			stt.WithProfanityFilter(p.STT.ProfanityFilter),
			stt.WithKeywords(p.STT.Keywords...),
			stt.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("deepgram: %w", err)
		}

		llmOpts := []llm.Option{
			llm.WithAPIKey(creds.OpenAIKey),
			llm.WithModel(p.LLM.Model),
			llm.WithTemperature(p.LLM.Temperature),
			llm.WithLogger(logger),
		}
		if p.LLM.MaxTokens > 0 {
			llmOpts = append(llmOpts, llm.WithMaxTokens(p.LLM.MaxTokens))
		}
		if creds.OpenAIBaseURL != "" {
			llmOpts = append(llmOpts, llm.WithBaseURL(creds.OpenAIBaseURL))
		}
		chat, err := llm.NewClient(llmOpts...)
		if err != nil {
			recognizer.Close()
			return nil, fmt.Errorf("openai: %w", err)
		}

		synth, err := tts.NewElevenLabs(
			tts.WithAPIKey(creds.ElevenLabsKey),
			tts.WithVoice(p.TTS.Voice),
			tts.WithModel(p.TTS.Model),
			tts.WithLanguage(p.TTS.Language),
			tts.WithLogger(logger),
		)
		if err != nil {
			recognizer.Close()
			chat.Close()
			return nil, fmt.Errorf("elevenlabs: %w", err)
		}

		return &Providers{STT: recognizer, LLM: chat, TTS: synth}, nil
	}
}
