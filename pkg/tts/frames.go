package tts

import (
	"github.com/teslashibe/inbound-agent/pkg/audio"
)

// FrameReader turns an AudioStream of PCM16 bytes into fixed-size frames.
type FrameReader struct {
	stream  AudioStream
	chunker *audio.Chunker
	rate    int
	odd     []byte
	pending []audio.Frame
	done    bool
}

// NewFrameReader reads 20 ms mono frames at the stream's sample rate.
func NewFrameReader(stream AudioStream) *FrameReader {
	rate := stream.Format().SampleRate
	if rate <= 0 {
		rate = SampleRateFromEncoding(stream.Format().Encoding)
	}
	return &FrameReader{
		stream:  stream,
		chunker: audio.NewChunker(rate, audio.FrameDuration),
		rate:    rate,
	}
}

// Next returns the next frame. ok is false once the stream is exhausted.
func (r *FrameReader) Next() (f audio.Frame, ok bool, err error) {
	for len(r.pending) == 0 {
		if r.done {
			return audio.Frame{}, false, nil
		}

		chunk, err := r.stream.Read()
		if err != nil {
			return audio.Frame{}, false, err
		}
		if chunk == nil {
			r.done = true
			if last, ok := r.chunker.Flush(); ok {
				r.pending = append(r.pending, last)
			}
			continue
		}
		if len(chunk) == 0 {
			continue
		}

		data := append(r.odd, chunk...)
		even := len(data) &^ 1
		r.odd = append([]byte(nil), data[even:]...)

		in := audio.NewFrame(data[:even], r.rate, 1)
		r.pending = append(r.pending, r.chunker.Write(in)...)
	}

	f = r.pending[0]
	r.pending = r.pending[1:]
	return f, true, nil
}

// Close closes the underlying stream.
func (r *FrameReader) Close() error {
	return r.stream.Close()
}
