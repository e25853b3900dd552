package vad

import (
	"time"

	"github.com/teslashibe/inbound-agent/pkg/audio"
)

// EventType identifies a VAD event.
type EventType int

const (
	// StartOfSpeech fires once speech has lasted MinSpeechDuration.
	StartOfSpeech EventType = iota
	// InferenceDone fires for every processed frame.
	InferenceDone
	// EndOfSpeech fires once silence has lasted MinSilenceDuration.
	EndOfSpeech
)

func (t EventType) String() string {
	switch t {
	case StartOfSpeech:
		return "start_of_speech"
	case InferenceDone:
		return "inference_done"
	case EndOfSpeech:
		return "end_of_speech"
	default:
		return "unknown"
	}
}

// Event is emitted by Stream.Push.
type Event struct {
	Type      EventType
	Timestamp time.Time

	// Probability of speech in the last frame.
	Probability float64

	// Speaking reports the debounced state after this frame.
	Speaking bool

	// SpeechDuration and SilenceDuration are the lengths of the current
	// speech and silence runs.
	SpeechDuration  time.Duration
	SilenceDuration time.Duration

	// Frames holds the utterance audio, including prefix padding.
	// Set on StartOfSpeech and EndOfSpeech only.
	Frames []audio.Frame

	// Inference statistics since the previous EndOfSpeech.
	InferenceCount    int
	InferenceDuration time.Duration
	IdleTime          time.Duration
}

// Stream is per-participant detection state. It is not safe for concurrent use.
type Stream struct {
	opts Options

	speaking       bool
	speechRun      time.Duration
	silenceRun     time.Duration
	pubSpeechDur   time.Duration
	pubSilenceDur  time.Duration
	prefix         []audio.Frame
	prefixDur      time.Duration
	speech         []audio.Frame
	speechDur      time.Duration
	inferenceCount int
	inferenceTotal time.Duration
	lastSpeechEnd  time.Time
	now            func() time.Time
}

func newStream(opts Options) *Stream {
	return &Stream{opts: opts, now: time.Now, lastSpeechEnd: time.Now()}
}

// Speaking reports whether the stream is currently inside speech.
func (s *Stream) Speaking() bool {
	return s.speaking
}

// probability maps frame energy into 0..1.
func (s *Stream) probability(f audio.Frame) float64 {
	db := f.DBFS()
	p := (db - s.opts.FloorDBFS) / (s.opts.CeilDBFS - s.opts.FloorDBFS)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Push processes one frame and returns the resulting events in order.
func (s *Stream) Push(f audio.Frame) []Event {
	start := s.now()
	frame := f.Resample(s.opts.SampleRate)
	dur := frame.Duration()
	prob := s.probability(frame)
	s.inferenceCount++
	s.inferenceTotal += s.now().Sub(start)

	isSpeech := prob >= s.opts.ActivationThreshold
	var events []Event

	if s.speaking {
		s.appendSpeech(frame, dur)
	} else {
		s.appendPrefix(frame, dur)
	}

	if isSpeech {
		s.speechRun += dur
		s.silenceRun = 0
		if s.speaking {
			s.pubSpeechDur += dur
			s.pubSilenceDur = 0
		}
	} else {
		s.silenceRun += dur
		s.speechRun = 0
		if s.speaking {
			s.pubSilenceDur += dur
		}
	}

	if !s.speaking && isSpeech && s.speechRun >= s.opts.MinSpeechDuration {
		s.speaking = true
		s.pubSpeechDur = s.speechRun
		s.pubSilenceDur = 0
		s.speech = append(s.speech[:0], s.prefix...)
		s.speechDur = s.prefixDur
		s.prefix = nil
		s.prefixDur = 0
		events = append(events, s.event(StartOfSpeech, prob, true))
	}

	events = append(events, s.event(InferenceDone, prob, false))

	if s.speaking && !isSpeech && s.silenceRun >= s.opts.MinSilenceDuration {
		s.speaking = false
		ev := s.event(EndOfSpeech, prob, true)
		events = append(events, ev)
		s.speech = nil
		s.speechDur = 0
		s.pubSpeechDur = 0
		s.inferenceCount = 0
		s.inferenceTotal = 0
		s.lastSpeechEnd = s.now()
	}

	return events
}

func (s *Stream) event(t EventType, prob float64, withFrames bool) Event {
	ev := Event{
		Type:              t,
		Timestamp:         s.now(),
		Probability:       prob,
		Speaking:          s.speaking,
		SpeechDuration:    s.pubSpeechDur,
		SilenceDuration:   s.pubSilenceDur,
		InferenceCount:    s.inferenceCount,
		InferenceDuration: s.inferenceTotal,
	}
	if t == EndOfSpeech {
		ev.IdleTime = ev.Timestamp.Sub(s.lastSpeechEnd) - s.pubSpeechDur - s.pubSilenceDur
		if ev.IdleTime < 0 {
			ev.IdleTime = 0
		}
	}
	if withFrames {
		ev.Frames = make([]audio.Frame, len(s.speech))
		copy(ev.Frames, s.speech)
	}
	return ev
}

func (s *Stream) appendPrefix(f audio.Frame, dur time.Duration) {
	s.prefix = append(s.prefix, f)
	s.prefixDur += dur
	for len(s.prefix) > 1 && s.prefixDur-s.prefix[0].Duration() >= s.opts.PrefixPadding {
		s.prefixDur -= s.prefix[0].Duration()
		s.prefix = s.prefix[1:]
	}
}

func (s *Stream) appendSpeech(f audio.Frame, dur time.Duration) {
	if s.opts.MaxBufferedSpeech > 0 && s.speechDur+dur > s.opts.MaxBufferedSpeech {
		return
	}
	s.speech = append(s.speech, f)
	s.speechDur += dur
}

// Reset clears detection state.
func (s *Stream) Reset() {
	*s = *newStream(s.opts)
}
