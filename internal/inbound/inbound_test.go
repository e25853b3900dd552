package inbound

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/inbound-agent/pkg/agent"
	"github.com/teslashibe/inbound-agent/pkg/audio"
	"github.com/teslashibe/inbound-agent/pkg/llm"
	"github.com/teslashibe/inbound-agent/pkg/metrics"
	"github.com/teslashibe/inbound-agent/pkg/persona"
	"github.com/teslashibe/inbound-agent/pkg/room"
	"github.com/teslashibe/inbound-agent/pkg/stt"
	"github.com/teslashibe/inbound-agent/pkg/tts"
	"github.com/teslashibe/inbound-agent/pkg/vad"
	"github.com/teslashibe/inbound-agent/pkg/worker"
)

// trace records calls across the fakes in order.
type trace struct {
	mu    sync.Mutex
	calls []string
}

func (t *trace) add(format string, args ...any) {
	t.mu.Lock()
	t.calls = append(t.calls, fmt.Sprintf(format, args...))
	t.mu.Unlock()
}

func (t *trace) list() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

type fakeRoom struct{}

func (fakeRoom) PublishAudio(ctx context.Context, f audio.Frame) error     { return nil }
func (fakeRoom) PublishTranscript(identity, text string, final bool) error { return nil }
func (fakeRoom) PublishState(state string) error                           { return nil }

type fakeParticipant struct {
	identity string
	frames   chan audio.Frame
	done     chan struct{}
}

func newFakeParticipant(identity string) *fakeParticipant {
	return &fakeParticipant{
		identity: identity,
		frames:   make(chan audio.Frame),
		done:     make(chan struct{}),
	}
}

func (p *fakeParticipant) Identity() string                { return p.identity }
func (p *fakeParticipant) AudioFrames() <-chan audio.Frame { return p.frames }
func (p *fakeParticipant) Done() <-chan struct{}           { return p.done }

type fakeJob struct {
	id          string
	proc        *worker.JobProcess
	trace       *trace
	participant *fakeParticipant
	connectErr  error
	waitErr     error
}

func (j *fakeJob) ID() string               { return j.id }
func (j *fakeJob) Room() agent.Room         { return fakeRoom{} }
func (j *fakeJob) Proc() *worker.JobProcess { return j.proc }

func (j *fakeJob) Connect(ctx context.Context, sub room.AutoSubscribe) error {
	j.trace.add("connect:%s", sub)
	return j.connectErr
}

func (j *fakeJob) WaitForParticipant(ctx context.Context) (agent.Participant, error) {
	j.trace.add("wait")
	if j.waitErr != nil {
		return nil, j.waitErr
	}
	return j.participant, nil
}

type fakeSession struct {
	trace    *trace
	opts     agent.Options
	startErr error
	sayErr   error

	started     agent.Participant
	greeting    string
	interruptOK bool
	closed      bool
	done        chan struct{}
}

func (s *fakeSession) Start(ctx context.Context, r agent.Room, p agent.Participant) error {
	s.trace.add("start")
	s.started = p
	return s.startErr
}

func (s *fakeSession) Say(ctx context.Context, text string, allow bool) (*agent.SpeechHandle, error) {
	s.trace.add("say")
	s.greeting = text
	s.interruptOK = allow
	return nil, s.sayErr
}

func (s *fakeSession) Done() <-chan struct{} { return s.done }

func (s *fakeSession) Close() error {
	s.trace.add("close")
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

type rig struct {
	handler  *Handler
	job      *fakeJob
	trace    *trace
	sessions []*fakeSession
	phases   []Phase
	logs     *bytes.Buffer
	mu       sync.Mutex
}

func newRig(t *testing.T) *rig {
	t.Helper()
	p, err := persona.Get("epacific-vi")
	if err != nil {
		t.Fatal(err)
	}
	proc := worker.NewJobProcess()
	if err := Prewarm(proc); err != nil {
		t.Fatal(err)
	}

	r := &rig{trace: &trace{}, logs: &bytes.Buffer{}}
	r.job = &fakeJob{
		id:          "AJ_test",
		proc:        proc,
		trace:       r.trace,
		participant: newFakeParticipant("caller"),
	}
	r.handler = &Handler{
		Persona: p,
		Providers: func(p persona.Persona) (*Providers, error) {
			r.trace.add("providers")
			return &Providers{STT: stt.NewMock(), LLM: llm.NewMock("Dạ."), TTS: tts.NewMock()}, nil
		},
		NewSession: func(opts agent.Options) (Session, error) {
			r.trace.add("new")
			s := &fakeSession{trace: r.trace, opts: opts, done: make(chan struct{})}
			r.mu.Lock()
			r.sessions = append(r.sessions, s)
			r.mu.Unlock()
			return s, nil
		},
		OnPhase: func(jobID string, phase Phase) {
			r.mu.Lock()
			r.phases = append(r.phases, phase)
			r.mu.Unlock()
		},
		Logger: slog.New(slog.NewJSONHandler(r.logs, nil)),
	}
	return r
}

func (r *rig) session(t *testing.T) *fakeSession {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) == 0 {
		t.Fatal("no session constructed")
	}
	return r.sessions[len(r.sessions)-1]
}

func TestPrewarm(t *testing.T) {
	proc := worker.NewJobProcess()
	if err := Prewarm(proc); err != nil {
		t.Fatal(err)
	}
	v, err := worker.Value[*vad.VAD](proc, VADKey)
	if err != nil || v == nil {
		t.Fatalf("vad = %v, %v", v, err)
	}
}

func TestRunOrder(t *testing.T) {
	r := newRig(t)

	call, err := r.handler.Run(context.Background(), r.job)
	if err != nil {
		t.Fatal(err)
	}
	defer call.Close()

	want := []string{"connect:" + room.AudioOnly.String(), "wait", "providers", "new", "start", "say"}
	got := r.trace.list()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", got, want)
	}

	wantPhases := []Phase{PhaseIdle, PhaseConnecting, PhaseAwaitingParticipant, PhaseAssembling, PhaseActive}
	if fmt.Sprint(r.phases) != fmt.Sprint(wantPhases) {
		t.Errorf("phases = %v, want %v", r.phases, wantPhases)
	}

	s := r.session(t)
	if s.started == nil || s.started.Identity() != "caller" {
		t.Errorf("started with %v", s.started)
	}
	if s.greeting != r.handler.Persona.Greeting || !s.interruptOK {
		t.Errorf("greeting = %q allow=%v", s.greeting, s.interruptOK)
	}
}

func TestRunAssemblesOptions(t *testing.T) {
	r := newRig(t)

	call, err := r.handler.Run(context.Background(), r.job)
	if err != nil {
		t.Fatal(err)
	}
	defer call.Close()

	opts := r.session(t).opts
	msgs := opts.ChatContext.Messages()
	if len(msgs) != 1 || msgs[0].Role != llm.RoleSystem || msgs[0].Content != r.handler.Persona.Instructions {
		t.Errorf("chat context = %v", msgs)
	}
	if opts.ChatContext != call.ChatContext {
		t.Error("call should share the agent chat context")
	}
	if opts.VAD == nil || opts.STT == nil || opts.LLM == nil || opts.TTS == nil || opts.TurnDetector == nil {
		t.Error("missing provider in options")
	}
	if opts.Endpointing.MinDelay != 500*time.Millisecond || opts.Endpointing.MaxDelay != 5*time.Second {
		t.Errorf("endpointing = %+v", opts.Endpointing)
	}
	if opts.Language != "vi" {
		t.Errorf("language = %q", opts.Language)
	}
}

func TestConnectFailure(t *testing.T) {
	r := newRig(t)
	r.job.connectErr = room.ErrRoomClosed

	_, err := r.handler.Run(context.Background(), r.job)
	if !errors.Is(err, room.ErrRoomClosed) {
		t.Fatalf("err = %v", err)
	}

	for _, c := range r.trace.list() {
		if c == "wait" || c == "new" || c == "providers" {
			t.Errorf("unexpected call %q after connect failure", c)
		}
	}
	if last := r.phases[len(r.phases)-1]; last != PhaseEnded {
		t.Errorf("last phase = %s", last)
	}
}

func TestWaitFailure(t *testing.T) {
	r := newRig(t)
	r.job.waitErr = worker.ErrParticipantTimeout

	_, err := r.handler.Run(context.Background(), r.job)
	if !errors.Is(err, worker.ErrParticipantTimeout) {
		t.Fatalf("err = %v", err)
	}
	for _, c := range r.trace.list() {
		if c == "new" || c == "start" {
			t.Errorf("unexpected call %q after wait failure", c)
		}
	}
}

func TestStartFailure(t *testing.T) {
	r := newRig(t)
	boom := errors.New("stt unavailable")
	r.handler.NewSession = func(opts agent.Options) (Session, error) {
		s := &fakeSession{trace: r.trace, opts: opts, startErr: boom, done: make(chan struct{})}
		r.sessions = append(r.sessions, s)
		return s, nil
	}

	_, err := r.handler.Run(context.Background(), r.job)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	calls := r.trace.list()
	if calls[len(calls)-1] != "close" {
		t.Errorf("calls = %v, want session closed without greeting", calls)
	}
}

func TestGreetingCutShort(t *testing.T) {
	r := newRig(t)
	r.handler.NewSession = func(opts agent.Options) (Session, error) {
		s := &fakeSession{trace: r.trace, opts: opts, sayErr: agent.ErrClosed, done: make(chan struct{})}
		r.sessions = append(r.sessions, s)
		return s, nil
	}

	call, err := r.handler.Run(context.Background(), r.job)
	if err != nil {
		t.Fatalf("caller hanging up during the greeting is not an error: %v", err)
	}
	call.Close()
}

func TestMetricsObserver(t *testing.T) {
	r := newRig(t)

	call, err := r.handler.Run(context.Background(), r.job)
	if err != nil {
		t.Fatal(err)
	}
	defer call.Close()

	observer := r.session(t).opts.Observer
	events := []metrics.AgentMetrics{
		metrics.LLMMetrics{RequestID: "req-1", PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		metrics.TTSMetrics{RequestID: "req-2", CharactersCount: 42},
	}
	for i, m := range events {
		before := strings.Count(r.logs.String(), "\n")
		if err := observer.OnMetrics(m); err != nil {
			t.Fatal(err)
		}
		if got := strings.Count(r.logs.String(), "\n") - before; got != 1 {
			t.Errorf("event %d: %d log records, want 1", i, got)
		}
		if call.Usage.Len() != i+1 {
			t.Errorf("event %d: collector has %d events", i, call.Usage.Len())
		}
	}
}

func TestVADSharedAcrossJobs(t *testing.T) {
	r := newRig(t)

	for i := 0; i < 2; i++ {
		job := &fakeJob{
			id:          fmt.Sprintf("AJ_%d", i),
			proc:        r.job.proc,
			trace:       r.trace,
			participant: newFakeParticipant("caller"),
		}
		call, err := r.handler.Run(context.Background(), job)
		if err != nil {
			t.Fatal(err)
		}
		call.Close()
	}

	if len(r.sessions) != 2 {
		t.Fatalf("sessions = %d", len(r.sessions))
	}
	if r.sessions[0].opts.VAD != r.sessions[1].opts.VAD {
		t.Error("jobs should share one VAD")
	}
	if r.sessions[0].opts.ChatContext == r.sessions[1].opts.ChatContext {
		t.Error("jobs should not share a chat context")
	}
}

func TestMissingVAD(t *testing.T) {
	r := newRig(t)
	r.job.proc = worker.NewJobProcess()

	if _, err := r.handler.Run(context.Background(), r.job); !errors.Is(err, worker.ErrMissingValue) {
		t.Errorf("err = %v", err)
	}
}
