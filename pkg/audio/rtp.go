package audio

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/pion/rtp"
)

// RTP payload types used on the room transport.
const (
	PayloadTypePCM16 uint8 = 96  // L16 mono, 16kHz, little-endian
	PayloadTypeOpus  uint8 = 111 // opus mono, 48kHz clock
)

// ErrUnknownPayload is returned for RTP packets with an unsupported payload type.
var ErrUnknownPayload = errors.New("audio: unknown RTP payload type")

// Codec identifies how a participant encodes audio.
type Codec string

const (
	CodecPCM16 Codec = "pcm16"
	CodecOpus  Codec = "opus"
)

// ParseCodec returns the codec for a name, defaulting to PCM16.
func ParseCodec(name string) Codec {
	if Codec(name) == CodecOpus {
		return CodecOpus
	}
	return CodecPCM16
}

// PayloadType returns the RTP payload type for the codec.
func (c Codec) PayloadType() uint8 {
	if c == CodecOpus {
		return PayloadTypeOpus
	}
	return PayloadTypePCM16
}

// ClockRate returns the RTP clock rate for the codec.
func (c Codec) ClockRate() int {
	if c == CodecOpus {
		return SampleRate48k
	}
	return SampleRate16k
}

// Packetizer wraps encoded payloads in RTP packets with a running
// sequence number and timestamp.
type Packetizer struct {
	ssrc        uint32
	payloadType uint8
	seq         uint16
	ts          uint32
	started     bool
}

// NewPacketizer creates a packetizer with a random SSRC and initial sequence.
func NewPacketizer(payloadType uint8) *Packetizer {
	return &Packetizer{
		ssrc:        rand.Uint32(),
		payloadType: payloadType,
		seq:         uint16(rand.Uint32()),
		ts:          rand.Uint32(),
	}
}

// SSRC returns the synchronization source identifier.
func (p *Packetizer) SSRC() uint32 {
	return p.ssrc
}

// Packetize builds a marshaled RTP packet. samples is the number of clock
// ticks the payload covers. The first packet of a talkspurt carries the marker bit.
func (p *Packetizer) Packetize(payload []byte, samples int) ([]byte, error) {
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         !p.started,
			PayloadType:    p.payloadType,
			SequenceNumber: p.seq,
			Timestamp:      p.ts,
			SSRC:           p.ssrc,
		},
		Payload: payload,
	}
	p.started = true
	p.seq++
	p.ts += uint32(samples)

	data, err := pkt.Marshal()
	if err != nil {
		return nil, fmt.Errorf("audio: marshal rtp: %w", err)
	}
	return data, nil
}

// Depacketizer turns RTP packets back into frames.
type Depacketizer struct {
	opus    *OpusDecoder
	lastSeq uint16
	seen    bool
	lost    int
}

// NewDepacketizer creates a depacketizer. The opus decoder is created lazily.
func NewDepacketizer() *Depacketizer {
	return &Depacketizer{}
}

// Lost returns the number of packets detected missing from sequence gaps.
func (d *Depacketizer) Lost() int {
	return d.lost
}

// Depacketize parses an RTP packet and decodes its payload.
func (d *Depacketizer) Depacketize(data []byte) (Frame, error) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(data); err != nil {
		return Frame{}, fmt.Errorf("audio: unmarshal rtp: %w", err)
	}

	if d.seen {
		if gap := pkt.SequenceNumber - d.lastSeq; gap > 1 && gap < 1<<15 {
			d.lost += int(gap - 1)
		}
	}
	d.seen = true
	d.lastSeq = pkt.SequenceNumber

	switch pkt.PayloadType {
	case PayloadTypePCM16:
		return NewFrame(pkt.Payload, SampleRate16k, 1), nil
	case PayloadTypeOpus:
		if d.opus == nil {
			dec, err := NewOpusDecoder()
			if err != nil {
				return Frame{}, err
			}
			d.opus = dec
		}
		return d.opus.Decode(pkt.Payload)
	default:
		return Frame{}, fmt.Errorf("%w: %d", ErrUnknownPayload, pkt.PayloadType)
	}
}

// Encoder converts agent frames into RTP packets for one participant codec.
type Encoder struct {
	codec      Codec
	chunker    *Chunker
	packetizer *Packetizer
	opus       *OpusEncoder
}

// NewEncoder creates an encoder for the codec.
func NewEncoder(codec Codec) (*Encoder, error) {
	e := &Encoder{
		codec:      codec,
		chunker:    NewChunker(codec.ClockRate(), FrameDuration),
		packetizer: NewPacketizer(codec.PayloadType()),
	}
	if codec == CodecOpus {
		enc, err := NewOpusEncoder()
		if err != nil {
			return nil, err
		}
		e.opus = enc
	}
	return e, nil
}

// Encode returns zero or more marshaled RTP packets for the frame.
func (e *Encoder) Encode(f Frame) ([][]byte, error) {
	var packets [][]byte
	for _, chunk := range e.chunker.Write(f) {
		pkt, err := e.packetize(chunk)
		if err != nil {
			return packets, err
		}
		packets = append(packets, pkt)
	}
	return packets, nil
}

// Flush emits any buffered audio padded to a full frame.
func (e *Encoder) Flush() ([]byte, error) {
	chunk, ok := e.chunker.Flush()
	if !ok {
		return nil, nil
	}
	return e.packetize(chunk)
}

func (e *Encoder) packetize(chunk Frame) ([]byte, error) {
	var payload []byte
	if e.opus != nil {
		encoded, err := e.opus.Encode(chunk)
		if err != nil {
			return nil, err
		}
		payload = encoded
	} else {
		payload = chunk.Bytes()
	}
	return e.packetizer.Packetize(payload, len(chunk.Samples))
}
