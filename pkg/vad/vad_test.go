package vad

import (
	"testing"
	"time"

	"github.com/teslashibe/inbound-agent/pkg/audio"
)

func speechFrame() audio.Frame {
	s := make([]int16, 320)
	for i := range s {
		if i%2 == 0 {
			s[i] = 8000
		} else {
			s[i] = -8000
		}
	}
	return audio.Frame{Samples: s, SampleRate: audio.SampleRate16k, Channels: 1}
}

func silentFrame() audio.Frame {
	return audio.Silence(20*time.Millisecond, audio.SampleRate16k)
}

func collect(s *Stream, f audio.Frame, n int) []Event {
	var out []Event
	for i := 0; i < n; i++ {
		out = append(out, s.Push(f)...)
	}
	return out
}

func count(events []Event, t EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func TestLoadDefaults(t *testing.T) {
	v, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v.ID() == "" {
		t.Error("expected an instance ID")
	}
	if v.Options().MinSilenceDuration != 550*time.Millisecond {
		t.Errorf("MinSilenceDuration = %v", v.Options().MinSilenceDuration)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"threshold zero", WithActivationThreshold(0)},
		{"threshold one", WithActivationThreshold(1)},
		{"negative silence", WithMinSilenceDuration(-time.Second)},
		{"inverted energy", WithEnergyRange(-20, -40)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.opt); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSpeechLifecycle(t *testing.T) {
	v, _ := Load(WithMinSpeechDuration(40*time.Millisecond), WithMinSilenceDuration(100*time.Millisecond))
	s := v.Stream()

	events := collect(s, silentFrame(), 10)
	if count(events, StartOfSpeech) != 0 {
		t.Fatal("silence should not start speech")
	}
	if count(events, InferenceDone) != 10 {
		t.Errorf("InferenceDone = %d, want 10", count(events, InferenceDone))
	}

	events = collect(s, speechFrame(), 10)
	if count(events, StartOfSpeech) != 1 {
		t.Fatalf("StartOfSpeech = %d, want 1", count(events, StartOfSpeech))
	}
	if !s.Speaking() {
		t.Error("stream should be speaking")
	}

	events = collect(s, silentFrame(), 4)
	if count(events, EndOfSpeech) != 0 {
		t.Fatal("EndOfSpeech fired before min silence")
	}

	events = collect(s, silentFrame(), 2)
	if count(events, EndOfSpeech) != 1 {
		t.Fatalf("EndOfSpeech = %d, want 1", count(events, EndOfSpeech))
	}
	if s.Speaking() {
		t.Error("stream should not be speaking")
	}

	var end Event
	for _, ev := range events {
		if ev.Type == EndOfSpeech {
			end = ev
		}
	}
	if len(end.Frames) == 0 {
		t.Error("EndOfSpeech should carry utterance frames")
	}
	if end.SpeechDuration < 180*time.Millisecond {
		t.Errorf("SpeechDuration = %v", end.SpeechDuration)
	}
	if end.InferenceCount == 0 {
		t.Error("expected inference count on EndOfSpeech")
	}
}

func TestPrefixPaddingBounded(t *testing.T) {
	v, _ := Load(WithPrefixPadding(100 * time.Millisecond))
	s := v.Stream()
	collect(s, silentFrame(), 50)
	if s.prefixDur > 120*time.Millisecond {
		t.Errorf("prefix buffer grew to %v", s.prefixDur)
	}
}

func TestStreamsAreIndependent(t *testing.T) {
	v, _ := Load(WithMinSpeechDuration(20 * time.Millisecond))
	a, b := v.Stream(), v.Stream()
	collect(a, speechFrame(), 3)
	if !a.Speaking() || b.Speaking() {
		t.Error("streams from one VAD must not share state")
	}
}
