// Package vad provides voice activity detection for participant audio.
//
// A VAD is loaded once per worker process and shared across jobs; it holds
// only immutable options. Each participant gets its own Stream, which is
// where detection state lives.
//
//	detector, err := vad.Load()
//	stream := detector.Stream()
//	for frame := range frames {
//	    for _, ev := range stream.Push(frame) {
//	        if ev.Type == vad.EndOfSpeech { ... }
//	    }
//	}
package vad

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/inbound-agent/pkg/audio"
)

// Options tunes speech detection.
type Options struct {
	// ActivationThreshold is the speech probability (0.0-1.0) above which a
	// window counts as speech.
	ActivationThreshold float64

	// MinSpeechDuration of continuous speech before StartOfSpeech fires.
	MinSpeechDuration time.Duration

	// MinSilenceDuration of continuous silence before EndOfSpeech fires.
	MinSilenceDuration time.Duration

	// PrefixPadding of audio kept before speech start and included in events.
	PrefixPadding time.Duration

	// MaxBufferedSpeech caps the audio buffered for one utterance.
	MaxBufferedSpeech time.Duration

	// SampleRate frames are resampled to before inference.
	SampleRate int

	// FloorDBFS and CeilDBFS map frame energy to probability.
	// Energy at the floor is 0, at the ceiling is 1.
	FloorDBFS float64
	CeilDBFS  float64
}

// Option is a functional option for Load.
type Option func(*Options)

// WithActivationThreshold sets the speech probability threshold.
func WithActivationThreshold(t float64) Option {
	return func(o *Options) { o.ActivationThreshold = t }
}

// WithMinSpeechDuration sets the minimum speech before StartOfSpeech.
func WithMinSpeechDuration(d time.Duration) Option {
	return func(o *Options) { o.MinSpeechDuration = d }
}

// WithMinSilenceDuration sets the minimum silence before EndOfSpeech.
func WithMinSilenceDuration(d time.Duration) Option {
	return func(o *Options) { o.MinSilenceDuration = d }
}

// WithPrefixPadding sets the audio kept before speech start.
func WithPrefixPadding(d time.Duration) Option {
	return func(o *Options) { o.PrefixPadding = d }
}

// WithEnergyRange sets the dBFS range mapped to probability 0..1.
func WithEnergyRange(floor, ceil float64) Option {
	return func(o *Options) {
		o.FloorDBFS = floor
		o.CeilDBFS = ceil
	}
}

// DefaultOptions returns defaults tuned for 16kHz telephony-grade speech.
func DefaultOptions() Options {
	return Options{
		ActivationThreshold: 0.5,
		MinSpeechDuration:   50 * time.Millisecond,
		MinSilenceDuration:  550 * time.Millisecond,
		PrefixPadding:       500 * time.Millisecond,
		MaxBufferedSpeech:   60 * time.Second,
		SampleRate:          audio.SampleRate16k,
		FloorDBFS:           -55,
		CeilDBFS:            -25,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.ActivationThreshold <= 0 || o.ActivationThreshold >= 1 {
		return errors.New("vad: activation threshold must be between 0 and 1")
	}
	if o.MinSpeechDuration < 0 || o.MinSilenceDuration < 0 || o.PrefixPadding < 0 {
		return errors.New("vad: durations must not be negative")
	}
	if o.SampleRate <= 0 {
		return errors.New("vad: sample rate must be positive")
	}
	if o.CeilDBFS <= o.FloorDBFS {
		return fmt.Errorf("vad: energy ceiling %.1f must exceed floor %.1f", o.CeilDBFS, o.FloorDBFS)
	}
	return nil
}

// VAD is a loaded detector. It is immutable and safe for concurrent use;
// per-participant state lives in Stream.
type VAD struct {
	id   string
	opts Options
}

// Load validates options and returns a reusable detector handle.
func Load(opts ...Option) (*VAD, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return &VAD{id: uuid.NewString(), opts: o}, nil
}

// ID uniquely identifies this loaded instance.
func (v *VAD) ID() string {
	return v.id
}

// Options returns the detector options.
func (v *VAD) Options() Options {
	return v.opts
}

// Stream creates a new detection stream.
func (v *VAD) Stream() *Stream {
	return newStream(v.opts)
}
