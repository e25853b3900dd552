package audio

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// maxOpusPacket bounds a single encoded packet.
const maxOpusPacket = 1500

// OpusEncoder encodes 20ms mono frames at 48kHz.
type OpusEncoder struct {
	enc *opus.Encoder
	buf []byte
}

// NewOpusEncoder creates a VoIP-tuned mono opus encoder.
func NewOpusEncoder() (*OpusEncoder, error) {
	enc, err := opus.NewEncoder(SampleRate48k, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus encoder: %w", err)
	}
	return &OpusEncoder{enc: enc, buf: make([]byte, maxOpusPacket)}, nil
}

// Encode encodes one frame. The frame must hold exactly one opus frame
// worth of samples (use a Chunker at 48kHz/20ms).
func (e *OpusEncoder) Encode(f Frame) ([]byte, error) {
	if f.SampleRate != SampleRate48k || f.Channels != 1 {
		return nil, ErrInvalidFormat
	}
	n, err := e.enc.Encode(f.Samples, e.buf)
	if err != nil {
		return nil, fmt.Errorf("audio: opus encode: %w", err)
	}
	out := make([]byte, n)
	copy(out, e.buf[:n])
	return out, nil
}

// OpusDecoder decodes mono opus packets to 48kHz frames.
type OpusDecoder struct {
	dec *opus.Decoder
	pcm []int16
}

// NewOpusDecoder creates a mono opus decoder.
func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(SampleRate48k, 1)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	// 120ms is the largest opus frame.
	return &OpusDecoder{dec: dec, pcm: make([]int16, SampleRate48k*120/1000)}, nil
}

// Decode decodes one packet.
func (d *OpusDecoder) Decode(packet []byte) (Frame, error) {
	n, err := d.dec.Decode(packet, d.pcm)
	if err != nil {
		return Frame{}, fmt.Errorf("audio: opus decode: %w", err)
	}
	samples := make([]int16, n)
	copy(samples, d.pcm[:n])
	return Frame{Samples: samples, SampleRate: SampleRate48k, Channels: 1}, nil
}
