// Package audio provides PCM frames and the codecs used on the room transport.
//
// Frames carry 16-bit signed samples. Multi-channel audio is interleaved.
package audio

import (
	"errors"
	"math"
	"time"
)

// Common sample rates.
const (
	SampleRate16k = 16000
	SampleRate24k = 24000
	SampleRate48k = 48000
)

// FrameDuration is the duration of frames exchanged with participants.
const FrameDuration = 20 * time.Millisecond

// ErrInvalidFormat is returned for frames with a zero sample rate or channel count.
var ErrInvalidFormat = errors.New("audio: invalid frame format")

// Frame is a block of PCM16 audio.
type Frame struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// NewFrame creates a frame from raw PCM16 little-endian bytes.
func NewFrame(pcm []byte, sampleRate, channels int) Frame {
	return Frame{
		Samples:    BytesToSamples(pcm),
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

// SamplesPerChannel returns the number of samples in each channel.
func (f Frame) SamplesPerChannel() int {
	if f.Channels <= 0 {
		return 0
	}
	return len(f.Samples) / f.Channels
}

// Duration returns the playback duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.SamplesPerChannel()) * time.Second / time.Duration(f.SampleRate)
}

// Bytes returns the frame as PCM16 little-endian bytes.
func (f Frame) Bytes() []byte {
	return SamplesToBytes(f.Samples)
}

// Validate checks the frame format.
func (f Frame) Validate() error {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return ErrInvalidFormat
	}
	return nil
}

// Mono returns the frame downmixed to one channel.
func (f Frame) Mono() Frame {
	if f.Channels != 2 {
		return f
	}
	return Frame{Samples: StereoToMono(f.Samples), SampleRate: f.SampleRate, Channels: 1}
}

// Resample returns a mono frame at the target sample rate.
func (f Frame) Resample(rate int) Frame {
	m := f.Mono()
	if m.SampleRate == rate {
		return m
	}
	return Frame{Samples: Resample(m.Samples, m.SampleRate, rate), SampleRate: rate, Channels: 1}
}

// RMS returns the normalized root mean square amplitude (0.0-1.0).
func (f Frame) RMS() float64 {
	return math.Sqrt(CalculateRMS(f.Samples))
}

// DBFS returns the frame level in decibels relative to full scale.
// Silence returns -120.
func (f Frame) DBFS() float64 {
	rms := f.RMS()
	if rms <= 1e-6 {
		return -120
	}
	return 20 * math.Log10(rms)
}

// Silence returns a silent mono frame of the given duration.
func Silence(d time.Duration, sampleRate int) Frame {
	n := int(d * time.Duration(sampleRate) / time.Second)
	return Frame{Samples: make([]int16, n), SampleRate: sampleRate, Channels: 1}
}
