package agent

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/inbound-agent/pkg/audio"
	"github.com/teslashibe/inbound-agent/pkg/llm"
	"github.com/teslashibe/inbound-agent/pkg/metrics"
	"github.com/teslashibe/inbound-agent/pkg/stt"
	"github.com/teslashibe/inbound-agent/pkg/tts"
	"github.com/teslashibe/inbound-agent/pkg/turn"
	"github.com/teslashibe/inbound-agent/pkg/vad"
)

type fakeRoom struct {
	mu          sync.Mutex
	frames      int
	states      []string
	transcripts []string
}

func (r *fakeRoom) PublishAudio(ctx context.Context, f audio.Frame) error {
	r.mu.Lock()
	r.frames++
	r.mu.Unlock()
	return nil
}

func (r *fakeRoom) PublishTranscript(identity, text string, final bool) error {
	if final {
		r.mu.Lock()
		r.transcripts = append(r.transcripts, identity+": "+text)
		r.mu.Unlock()
	}
	return nil
}

func (r *fakeRoom) PublishState(state string) error {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.mu.Unlock()
	return nil
}

func (r *fakeRoom) frameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func (r *fakeRoom) stateLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

type fakeParticipant struct {
	frames chan audio.Frame
	done   chan struct{}
	once   sync.Once
}

func newFakeParticipant() *fakeParticipant {
	return &fakeParticipant{
		frames: make(chan audio.Frame, 100),
		done:   make(chan struct{}),
	}
}

func (p *fakeParticipant) Identity() string                { return "caller" }
func (p *fakeParticipant) AudioFrames() <-chan audio.Frame { return p.frames }
func (p *fakeParticipant) Done() <-chan struct{}           { return p.done }
func (p *fakeParticipant) leave()                          { p.once.Do(func() { close(p.done) }) }

// speak pushes n frames of a loud tone.
func (p *fakeParticipant) speak(n int) {
	for i := 0; i < n; i++ {
		samples := make([]int16, 320)
		for j := range samples {
			samples[j] = int16(16000 * math.Sin(2*math.Pi*440*float64(j)/16000))
		}
		p.frames <- audio.Frame{Samples: samples, SampleRate: audio.SampleRate16k, Channels: 1}
	}
}

type recorder struct {
	mu     sync.Mutex
	events []metrics.AgentMetrics
}

func (r *recorder) OnMetrics(m metrics.AgentMetrics) error {
	r.mu.Lock()
	r.events = append(r.events, m)
	r.mu.Unlock()
	return nil
}

func (r *recorder) kinds() map[metrics.Kind]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[metrics.Kind]int)
	for _, m := range r.events {
		out[m.Kind()]++
	}
	return out
}

func (r *recorder) first(kind metrics.Kind) metrics.AgentMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.events {
		if m.Kind() == kind {
			return m
		}
	}
	return nil
}

type fixedDetector struct {
	prob float64
}

func (d fixedDetector) PredictEndOfTurn(ctx context.Context, chatCtx *llm.ChatContext) (float64, error) {
	return d.prob, nil
}
func (d fixedDetector) UnlikelyThreshold(lang string) (float64, bool) { return 0.15, true }
func (d fixedDetector) SupportsLanguage(lang string) bool             { return true }

func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

type testRig struct {
	agent *Agent
	room  *fakeRoom
	part  *fakeParticipant
	stt   *stt.Mock
	llm   *llm.Mock
	tts   *tts.Mock
	rec   *recorder
}

func newTestRig(t *testing.T, modify func(*Options)) *testRig {
	t.Helper()
	v, err := vad.Load()
	if err != nil {
		t.Fatal(err)
	}
	rig := &testRig{
		room: &fakeRoom{},
		part: newFakeParticipant(),
		stt:  stt.NewMock(),
		llm:  llm.NewMock("Chào anh. Em có thể giúp gì ạ?"),
		tts:  tts.NewMock(),
		rec:  &recorder{},
	}
	opts := Options{
		VAD:                     v,
		STT:                     rig.stt,
		LLM:                     rig.llm,
		TTS:                     rig.tts,
		ChatContext:             llm.NewChatContext().Append(llm.RoleSystem, "You are a helpful receptionist."),
		Endpointing:             turn.Endpointing{MinDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond},
		Observer:                rig.rec,
		InterruptSpeechDuration: 60 * time.Millisecond,
	}
	if modify != nil {
		modify(&opts)
	}
	a, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	rig.agent = a
	t.Cleanup(func() { a.Close() })
	return rig
}

func (r *testRig) start(t *testing.T) {
	t.Helper()
	if err := r.agent.Start(context.Background(), r.room, r.part); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	v, _ := vad.Load()
	full := Options{VAD: v, STT: stt.NewMock(), LLM: llm.NewMock("hi"), TTS: tts.NewMock()}

	tests := []struct {
		name   string
		modify func(*Options)
		want   error
	}{
		{"no vad", func(o *Options) { o.VAD = nil }, ErrNoVAD},
		{"no stt", func(o *Options) { o.STT = nil }, ErrNoSTT},
		{"no llm", func(o *Options) { o.LLM = nil }, ErrNoLLM},
		{"no tts", func(o *Options) { o.TTS = nil }, ErrNoTTS},
		{"inverted endpointing", func(o *Options) {
			o.Endpointing = turn.Endpointing{MinDelay: time.Second, MaxDelay: time.Millisecond}
		}, turn.ErrInvalidEndpointing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := full
			tt.modify(&opts)
			if _, err := New(opts); !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewDefaults(t *testing.T) {
	v, _ := vad.Load()
	a, err := New(Options{VAD: v, STT: stt.NewMock(), LLM: llm.NewMock("hi"), TTS: tts.NewMock()})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if a.Endpointing() != turn.DefaultEndpointing() {
		t.Errorf("Endpointing = %+v", a.Endpointing())
	}
	if a.ChatContext() == nil || a.ChatContext().Len() != 0 {
		t.Error("ChatContext should default to empty")
	}
	if a.State() != StateInitializing {
		t.Errorf("State = %s, want initializing", a.State())
	}
}

func TestStartErrors(t *testing.T) {
	rig := newTestRig(t, nil)

	if _, err := rig.agent.Say(context.Background(), "hello", true); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Say before Start = %v", err)
	}
	if err := rig.agent.Start(context.Background(), nil, rig.part); !errors.Is(err, ErrNilRoom) {
		t.Errorf("nil room = %v", err)
	}
	if err := rig.agent.Start(context.Background(), rig.room, nil); !errors.Is(err, ErrNilParticipant) {
		t.Errorf("nil participant = %v", err)
	}

	rig.start(t)
	if err := rig.agent.Start(context.Background(), rig.room, rig.part); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("double Start = %v", err)
	}
	if rig.agent.State() != StateListening {
		t.Errorf("State = %s, want listening", rig.agent.State())
	}
}

func TestSay(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.start(t)

	h, err := rig.agent.Say(context.Background(), "Xin chào!", true)
	if err != nil {
		t.Fatalf("Say: %v", err)
	}
	if h.Interrupted() {
		t.Error("speech should not be interrupted")
	}
	if !h.AllowInterruptions() {
		t.Error("AllowInterruptions should be true")
	}
	if rig.room.frameCount() == 0 {
		t.Error("no audio published")
	}

	msgs := rig.agent.ChatContext().Messages()
	last := msgs[len(msgs)-1]
	if last.Role != llm.RoleAssistant || last.Content != "Xin chào!" {
		t.Errorf("last message = %+v", last)
	}

	eventually(t, time.Second, func() bool { return rig.rec.kinds()[metrics.KindTTS] == 1 })
	m := rig.rec.first(metrics.KindTTS).(metrics.TTSMetrics)
	if m.CharactersCount != len([]rune("Xin chào!")) || m.SpeechID != h.ID() {
		t.Errorf("tts metrics = %+v", m)
	}

	states := strings.Join(rig.room.stateLog(), ",")
	if !strings.Contains(states, "speaking,listening") {
		t.Errorf("states = %s", states)
	}
}

func TestSayEmpty(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.start(t)

	if _, err := rig.agent.Say(context.Background(), "  ", true); !errors.Is(err, ErrEmptyText) {
		t.Errorf("err = %v", err)
	}
}

func TestUserTurnReply(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.start(t)

	eventually(t, time.Second, func() bool { return len(rig.stt.Streams()) == 1 })
	rig.stt.Streams()[0].Transcript("xin chào", "vi")

	eventually(t, 3*time.Second, func() bool {
		return rig.agent.ChatContext().Count(llm.RoleAssistant) == 1
	})

	msgs := rig.agent.ChatContext().Messages()
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}
	if msgs[1].Role != llm.RoleUser || msgs[1].Content != "xin chào" {
		t.Errorf("user message = %+v", msgs[1])
	}
	if msgs[2].Content != "Chào anh. Em có thể giúp gì ạ?" {
		t.Errorf("assistant message = %q", msgs[2].Content)
	}

	reqs := rig.llm.Requests()
	if len(reqs) != 1 || len(reqs[0].Messages) != 2 {
		t.Fatalf("llm requests = %+v", reqs)
	}

	// two sentences were synthesized
	eventually(t, time.Second, func() bool { return rig.rec.kinds()[metrics.KindTTS] == 2 })
	kinds := rig.rec.kinds()
	if kinds[metrics.KindEOU] != 1 || kinds[metrics.KindLLM] != 1 {
		t.Errorf("metrics kinds = %v", kinds)
	}
	lm := rig.rec.first(metrics.KindLLM).(metrics.LLMMetrics)
	if lm.PromptTokens != 10 || lm.CompletionTokens != 5 || lm.Cancelled {
		t.Errorf("llm metrics = %+v", lm)
	}
}

func TestEndpointingUsesDetector(t *testing.T) {
	tests := []struct {
		name     string
		prob     float64
		minDelay time.Duration
		maxDelay time.Duration
	}{
		{"likely end of turn", 0.9, 0, 200 * time.Millisecond},
		{"unlikely end of turn", 0.01, 200 * time.Millisecond, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newTestRig(t, func(o *Options) {
				o.TurnDetector = fixedDetector{prob: tt.prob}
				o.Endpointing = turn.Endpointing{MinDelay: 10 * time.Millisecond, MaxDelay: 300 * time.Millisecond}
			})
			rig.start(t)

			eventually(t, time.Second, func() bool { return len(rig.stt.Streams()) == 1 })
			rig.stt.Streams()[0].Transcript("cho em hỏi", "vi")

			eventually(t, 2*time.Second, func() bool { return rig.rec.kinds()[metrics.KindEOU] == 1 })
			m := rig.rec.first(metrics.KindEOU).(metrics.EOUMetrics)
			if m.Probability != tt.prob {
				t.Errorf("Probability = %v, want %v", m.Probability, tt.prob)
			}
			if m.EndOfUtteranceDelay < tt.minDelay || m.EndOfUtteranceDelay > tt.maxDelay {
				t.Errorf("EndOfUtteranceDelay = %v, want in [%v, %v]", m.EndOfUtteranceDelay, tt.minDelay, tt.maxDelay)
			}
		})
	}
}

func TestInterruption(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.start(t)

	long := strings.Repeat("Một hai ba bốn năm. ", 10)
	result := make(chan *SpeechHandle, 1)
	go func() {
		h, err := rig.agent.Say(context.Background(), long, true)
		if err != nil {
			t.Error(err)
		}
		result <- h
	}()

	eventually(t, time.Second, func() bool { return rig.room.frameCount() > 0 })
	rig.part.speak(10)

	select {
	case h := <-result:
		if !h.Interrupted() {
			t.Error("speech should be interrupted")
		}
	case <-time.After(time.Second):
		t.Fatal("Say did not return after interruption")
	}

	msgs := rig.agent.ChatContext().Messages()
	last := msgs[len(msgs)-1]
	if last.Role != llm.RoleAssistant || !last.Interrupted {
		t.Errorf("last message = %+v", last)
	}
}

func TestNonInterruptibleSpeech(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.start(t)

	text := strings.Repeat("a", 40)
	result := make(chan *SpeechHandle, 1)
	go func() {
		h, _ := rig.agent.Say(context.Background(), text, false)
		result <- h
	}()

	eventually(t, time.Second, func() bool { return rig.room.frameCount() > 0 })
	rig.part.speak(10)

	select {
	case h := <-result:
		if h.Interrupted() {
			t.Error("non-interruptible speech was interrupted")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Say did not return")
	}
}

func TestObserverFailuresContained(t *testing.T) {
	var calls sync.WaitGroup
	calls.Add(1)
	var once sync.Once

	rig := newTestRig(t, func(o *Options) {
		o.Observer = ObserverFunc(func(m metrics.AgentMetrics) error {
			once.Do(calls.Done)
			panic("observer exploded")
		})
	})
	rig.start(t)

	h, err := rig.agent.Say(context.Background(), "Xin chào!", true)
	if err != nil || h.Interrupted() {
		t.Fatalf("Say: %v interrupted=%v", err, h.Interrupted())
	}
	calls.Wait()

	if _, err := rig.agent.Say(context.Background(), "Vẫn hoạt động.", true); err != nil {
		t.Errorf("agent stopped after observer panic: %v", err)
	}
}

func TestClose(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.start(t)

	if err := rig.agent.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-rig.agent.Done():
	default:
		t.Error("Done not closed")
	}
	if rig.agent.State() != StateEnded {
		t.Errorf("State = %s, want ended", rig.agent.State())
	}
	if _, err := rig.agent.Say(context.Background(), "hello", true); !errors.Is(err, ErrClosed) {
		t.Errorf("Say after Close = %v", err)
	}
	if err := rig.agent.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	states := rig.room.stateLog()
	if states[len(states)-1] != string(StateEnded) {
		t.Errorf("last state = %s", states[len(states)-1])
	}
}

func TestParticipantLeaveEndsAgent(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.start(t)

	rig.part.leave()
	select {
	case <-rig.agent.Done():
	case <-time.After(time.Second):
		t.Fatal("agent did not stop after participant left")
	}
}

func TestContextCancelEndsAgent(t *testing.T) {
	rig := newTestRig(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := rig.agent.Start(ctx, rig.room, rig.part); err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case <-rig.agent.Done():
	case <-time.After(time.Second):
		t.Fatal("agent did not stop after context cancel")
	}
}
