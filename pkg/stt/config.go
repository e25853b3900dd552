package stt

import (
	"log/slog"
	"time"

	"github.com/teslashibe/inbound-agent/pkg/audio"
)

// Config holds recognizer configuration.
type Config struct {
	APIKey  string
	BaseURL string

	Model           string
	Language        string
	InterimResults  bool
	SmartFormat     bool
	Punctuate       bool
	FillerWords     bool
	ProfanityFilter bool
	Keywords        []string

	// EndpointingMs is the provider-side silence before speech_final.
	EndpointingMs int

	SampleRate int

	KeepAlive   time.Duration
	DialTimeout time.Duration

	Logger *slog.Logger
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL sets the websocket endpoint.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithModel sets the recognition model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithLanguage sets the recognition language (e.g. "vi", "en-US").
func WithLanguage(lang string) Option {
	return func(c *Config) { c.Language = lang }
}

// WithInterimResults toggles interim transcripts.
func WithInterimResults(on bool) Option {
	return func(c *Config) { c.InterimResults = on }
}

// WithSmartFormat toggles smart formatting.
func WithSmartFormat(on bool) Option {
	return func(c *Config) { c.SmartFormat = on }
}

// WithPunctuate toggles punctuation.
func WithPunctuate(on bool) Option {
	return func(c *Config) { c.Punctuate = on }
}

// WithFillerWords toggles filler word transcription.
func WithFillerWords(on bool) Option {
	return func(c *Config) { c.FillerWords = on }
}

// WithProfanityFilter toggles the profanity filter.
func WithProfanityFilter(on bool) Option {
	return func(c *Config) { c.ProfanityFilter = on }
}

// WithKeywords boosts recognition of the given terms.
func WithKeywords(words ...string) Option {
	return func(c *Config) { c.Keywords = append(c.Keywords, words...) }
}

// WithEndpointing sets the provider-side endpointing in milliseconds.
func WithEndpointing(ms int) Option {
	return func(c *Config) { c.EndpointingMs = ms }
}

// WithSampleRate sets the rate audio is sent at.
func WithSampleRate(rate int) Option {
	return func(c *Config) { c.SampleRate = rate }
}

// WithKeepAlive sets the keepalive interval.
func WithKeepAlive(d time.Duration) Option {
	return func(c *Config) { c.KeepAlive = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns defaults for Deepgram live streaming.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        "wss://api.deepgram.com/v1/listen",
		Model:          "nova-2-general",
		Language:       "en-US",
		InterimResults: true,
		SmartFormat:    true,
		Punctuate:      true,
		FillerWords:    true,
		EndpointingMs:  25,
		SampleRate:     audio.SampleRate16k,
		KeepAlive:      5 * time.Second,
		DialTimeout:    10 * time.Second,
		Logger:         slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	if c.SampleRate <= 0 {
		return ErrInvalidSampleRate
	}
	return nil
}
