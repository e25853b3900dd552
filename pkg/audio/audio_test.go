package audio

import (
	"errors"
	"testing"
	"time"

	"github.com/pion/rtp"
)

func tone(n int, amp int16) []int16 {
	s := make([]int16, n)
	for i := range s {
		if i%2 == 0 {
			s[i] = amp
		} else {
			s[i] = -amp
		}
	}
	return s
}

func TestFrameDuration(t *testing.T) {
	f := Frame{Samples: make([]int16, 320), SampleRate: SampleRate16k, Channels: 1}
	if f.Duration() != 20*time.Millisecond {
		t.Errorf("Duration = %v, want 20ms", f.Duration())
	}

	stereo := Frame{Samples: make([]int16, 640), SampleRate: SampleRate16k, Channels: 2}
	if stereo.Duration() != 20*time.Millisecond {
		t.Errorf("stereo Duration = %v, want 20ms", stereo.Duration())
	}
	if stereo.Mono().Channels != 1 || len(stereo.Mono().Samples) != 320 {
		t.Error("Mono did not downmix")
	}
}

func TestBytesRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768}
	out := BytesToSamples(SamplesToBytes(in))
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("sample %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestResampleLength(t *testing.T) {
	out := Resample(make([]int16, 480), SampleRate48k, SampleRate16k)
	if len(out) != 160 {
		t.Errorf("len = %d, want 160", len(out))
	}
}

func TestDBFS(t *testing.T) {
	silent := Silence(20*time.Millisecond, SampleRate16k)
	if silent.DBFS() != -120 {
		t.Errorf("silence DBFS = %f", silent.DBFS())
	}

	loud := Frame{Samples: tone(320, 16000), SampleRate: SampleRate16k, Channels: 1}
	if db := loud.DBFS(); db < -7 || db > -5 {
		t.Errorf("loud DBFS = %f, want about -6", db)
	}
}

func TestChunker(t *testing.T) {
	c := NewChunker(SampleRate16k, 20*time.Millisecond)
	if c.Size() != 320 {
		t.Fatalf("Size = %d", c.Size())
	}

	out := c.Write(Frame{Samples: make([]int16, 500), SampleRate: SampleRate16k, Channels: 1})
	if len(out) != 1 {
		t.Fatalf("got %d frames, want 1", len(out))
	}

	out = c.Write(Frame{Samples: make([]int16, 200), SampleRate: SampleRate16k, Channels: 1})
	if len(out) != 1 {
		t.Fatalf("got %d frames, want 1", len(out))
	}

	rest, ok := c.Flush()
	if !ok || len(rest.Samples) != 320 {
		t.Errorf("Flush = %v, %d samples", ok, len(rest.Samples))
	}
	if _, ok := c.Flush(); ok {
		t.Error("second Flush should be empty")
	}
}

func TestPCMPacketRoundTrip(t *testing.T) {
	enc, err := NewEncoder(CodecPCM16)
	if err != nil {
		t.Fatal(err)
	}

	packets, err := enc.Encode(Frame{Samples: tone(640, 1000), SampleRate: SampleRate16k, Channels: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(packets) != 2 {
		t.Fatalf("got %d packets, want 2", len(packets))
	}

	var first, second rtp.Packet
	if err := first.Unmarshal(packets[0]); err != nil {
		t.Fatal(err)
	}
	if err := second.Unmarshal(packets[1]); err != nil {
		t.Fatal(err)
	}
	if !first.Marker || second.Marker {
		t.Error("marker bit should only be set on the first packet")
	}
	if second.SequenceNumber != first.SequenceNumber+1 {
		t.Error("sequence numbers not consecutive")
	}
	if second.Timestamp-first.Timestamp != 320 {
		t.Errorf("timestamp delta = %d, want 320", second.Timestamp-first.Timestamp)
	}

	dep := NewDepacketizer()
	frame, err := dep.Depacketize(packets[0])
	if err != nil {
		t.Fatal(err)
	}
	if frame.SampleRate != SampleRate16k || len(frame.Samples) != 320 {
		t.Errorf("frame = %d Hz, %d samples", frame.SampleRate, len(frame.Samples))
	}
	if frame.Samples[0] != 1000 {
		t.Errorf("sample = %d, want 1000", frame.Samples[0])
	}
}

func TestDepacketizerLossAndUnknown(t *testing.T) {
	p := NewPacketizer(PayloadTypePCM16)
	a, _ := p.Packetize(make([]byte, 640), 320)
	p.Packetize(make([]byte, 640), 320)
	c, _ := p.Packetize(make([]byte, 640), 320)

	dep := NewDepacketizer()
	if _, err := dep.Depacketize(a); err != nil {
		t.Fatal(err)
	}
	if _, err := dep.Depacketize(c); err != nil {
		t.Fatal(err)
	}
	if dep.Lost() != 1 {
		t.Errorf("Lost = %d, want 1", dep.Lost())
	}

	bad := NewPacketizer(8)
	pkt, _ := bad.Packetize([]byte{1, 2}, 1)
	if _, err := dep.Depacketize(pkt); !errors.Is(err, ErrUnknownPayload) {
		t.Errorf("err = %v, want ErrUnknownPayload", err)
	}
}

func TestOpusRoundTrip(t *testing.T) {
	enc, err := NewEncoder(CodecOpus)
	if err != nil {
		t.Fatalf("opus unavailable: %v", err)
	}

	packets, err := enc.Encode(Frame{Samples: tone(320, 4000), SampleRate: SampleRate16k, Channels: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}

	frame, err := NewDepacketizer().Depacketize(packets[0])
	if err != nil {
		t.Fatal(err)
	}
	if frame.SampleRate != SampleRate48k || len(frame.Samples) != 960 {
		t.Errorf("decoded %d Hz, %d samples", frame.SampleRate, len(frame.Samples))
	}
}

func TestParseCodec(t *testing.T) {
	if ParseCodec("opus") != CodecOpus {
		t.Error("opus not parsed")
	}
	if ParseCodec("") != CodecPCM16 || ParseCodec("g711") != CodecPCM16 {
		t.Error("unknown codecs should default to pcm16")
	}
}
