package audio

import "time"

// Chunker re-slices a stream of mono frames into fixed-duration frames.
// It is not safe for concurrent use.
type Chunker struct {
	sampleRate int
	size       int
	buf        []int16
}

// NewChunker creates a chunker emitting frames of duration d at sampleRate.
func NewChunker(sampleRate int, d time.Duration) *Chunker {
	size := int(d * time.Duration(sampleRate) / time.Second)
	if size <= 0 {
		size = 1
	}
	return &Chunker{sampleRate: sampleRate, size: size}
}

// Size returns the number of samples per emitted frame.
func (c *Chunker) Size() int {
	return c.size
}

// Write resamples f to the chunker rate and returns any complete frames.
func (c *Chunker) Write(f Frame) []Frame {
	c.buf = append(c.buf, f.Resample(c.sampleRate).Samples...)

	var out []Frame
	for len(c.buf) >= c.size {
		samples := make([]int16, c.size)
		copy(samples, c.buf[:c.size])
		out = append(out, Frame{Samples: samples, SampleRate: c.sampleRate, Channels: 1})
		c.buf = c.buf[c.size:]
	}
	return out
}

// Flush returns the remaining samples padded with silence to a full frame,
// or false if nothing is buffered.
func (c *Chunker) Flush() (Frame, bool) {
	if len(c.buf) == 0 {
		return Frame{}, false
	}
	samples := make([]int16, c.size)
	copy(samples, c.buf)
	c.buf = c.buf[:0]
	return Frame{Samples: samples, SampleRate: c.sampleRate, Channels: 1}, true
}

// Reset discards buffered samples.
func (c *Chunker) Reset() {
	c.buf = c.buf[:0]
}
