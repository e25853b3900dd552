// Package agent runs a voice pipeline for one participant in a room.
//
// Microphone audio flows through VAD and streaming STT. When the user stops
// speaking, the turn detector and endpointing decide how long to wait before
// the transcript is committed to the chat context. The reply is streamed from
// the LLM, cut into sentences, synthesized and played back to the room in
// real time. Speech from the user interrupts interruptible playout.
//
// Example usage:
//
//	a, err := agent.New(agent.Options{
//	    VAD:          v,
//	    STT:          sttProvider,
//	    LLM:          llmProvider,
//	    TTS:          ttsProvider,
//	    TurnDetector: turn.NewEOUModel(),
//	    ChatContext:  chatCtx,
//	    Observer:     agent.ObserverFunc(onMetrics),
//	})
//	if err := a.Start(ctx, room, participant); err != nil { ... }
//	a.Say(ctx, "Hello!", true)
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/inbound-agent/pkg/audio"
	"github.com/teslashibe/inbound-agent/pkg/llm"
	"github.com/teslashibe/inbound-agent/pkg/metrics"
	"github.com/teslashibe/inbound-agent/pkg/stt"
	"github.com/teslashibe/inbound-agent/pkg/tts"
	"github.com/teslashibe/inbound-agent/pkg/turn"
	"github.com/teslashibe/inbound-agent/pkg/vad"
)

// Common errors returned by the agent.
var (
	ErrNoVAD           = errors.New("agent: VAD required")
	ErrNoSTT           = errors.New("agent: STT provider required")
	ErrNoLLM           = errors.New("agent: LLM provider required")
	ErrNoTTS           = errors.New("agent: TTS provider required")
	ErrNilRoom         = errors.New("agent: room required")
	ErrNilParticipant  = errors.New("agent: participant required")
	ErrAlreadyStarted  = errors.New("agent: already started")
	ErrNotStarted      = errors.New("agent: not started")
	ErrClosed          = errors.New("agent: closed")
	ErrEmptyText       = errors.New("agent: empty text")
	ErrSpeechQueueFull = errors.New("agent: speech queue full")
)

// State is the agent lifecycle state published to the room.
type State string

const (
	StateInitializing State = "initializing"
	StateListening    State = "listening"
	StateThinking     State = "thinking"
	StateSpeaking     State = "speaking"
	StateEnded        State = "ended"
)

// Room is where the agent publishes audio and signalling.
type Room interface {
	PublishAudio(ctx context.Context, f audio.Frame) error
	PublishTranscript(identity, text string, final bool) error
	PublishState(state string) error
}

// Participant is the remote caller the agent listens to.
type Participant interface {
	Identity() string
	AudioFrames() <-chan audio.Frame
	Done() <-chan struct{}
}

const (
	// DefaultInterruptSpeechDuration is how long the user must speak over
	// the agent before playout stops.
	DefaultInterruptSpeechDuration = 500 * time.Millisecond

	// DefaultIdentity is used for agent transcripts.
	DefaultIdentity = "agent"

	speechQueueSize = 8
	eouTimeout      = 2 * time.Second
)

// Options configures an Agent.
type Options struct {
	VAD *vad.VAD
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider

	// TurnDetector is optional. Without one every turn uses MinDelay.
	TurnDetector turn.Detector

	// Endpointing defaults to turn.DefaultEndpointing when zero.
	Endpointing turn.Endpointing

	// ChatContext is shared with the agent and grows as the call goes on.
	// Defaults to an empty context.
	ChatContext *llm.ChatContext

	// Observer receives metrics events. Optional.
	Observer MetricsObserver

	// Language is the fallback for turn detection when STT reports none.
	Language string

	// InterruptSpeechDuration defaults to DefaultInterruptSpeechDuration.
	InterruptSpeechDuration time.Duration

	// Identity labels agent transcripts. Defaults to DefaultIdentity.
	Identity string

	Logger *slog.Logger
}

// Agent is a voice pipeline bound to one room and participant.
type Agent struct {
	opts     Options
	chatCtx  *llm.ChatContext
	observer MetricsObserver
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       State
	started     bool
	closed      bool
	room        Room
	participant Participant
	current     *SpeechHandle

	speechQ chan *SpeechHandle
	wg      sync.WaitGroup
	done    chan struct{}

	metricsMu     sync.Mutex
	metricsCh     chan metrics.AgentMetrics
	metricsClosed bool
	metricsDone   chan struct{}
}

// New validates opts and creates an agent in the initializing state.
func New(opts Options) (*Agent, error) {
	switch {
	case opts.VAD == nil:
		return nil, ErrNoVAD
	case opts.STT == nil:
		return nil, ErrNoSTT
	case opts.LLM == nil:
		return nil, ErrNoLLM
	case opts.TTS == nil:
		return nil, ErrNoTTS
	}

	if opts.Endpointing == (turn.Endpointing{}) {
		opts.Endpointing = turn.DefaultEndpointing()
	}
	if err := opts.Endpointing.Validate(); err != nil {
		return nil, err
	}
	if opts.ChatContext == nil {
		opts.ChatContext = llm.NewChatContext()
	}
	if opts.InterruptSpeechDuration <= 0 {
		opts.InterruptSpeechDuration = DefaultInterruptSpeechDuration
	}
	if opts.Identity == "" {
		opts.Identity = DefaultIdentity
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Agent{
		opts:     opts,
		chatCtx:  opts.ChatContext,
		observer: opts.Observer,
		logger:   opts.Logger.With("component", "agent"),
		ctx:      ctx,
		cancel:   cancel,
		state:    StateInitializing,
		speechQ:  make(chan *SpeechHandle, speechQueueSize),
		done:     make(chan struct{}),
	}, nil
}

// ChatContext returns the conversation history.
func (a *Agent) ChatContext() *llm.ChatContext {
	return a.chatCtx
}

// Endpointing returns the effective endpointing delays.
func (a *Agent) Endpointing() turn.Endpointing {
	return a.opts.Endpointing
}

// State returns the current lifecycle state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Done is closed once the agent has shut down.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// Start begins listening to p and publishing to room. It returns once the
// pipeline goroutines are running. The agent stops when ctx is cancelled,
// the participant leaves, or Close is called.
func (a *Agent) Start(ctx context.Context, room Room, p Participant) error {
	if room == nil {
		return ErrNilRoom
	}
	if p == nil {
		return ErrNilParticipant
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.started {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	a.room = room
	a.participant = p
	a.mu.Unlock()

	sttStream, err := a.opts.STT.Stream(a.ctx)
	if err != nil {
		a.mu.Lock()
		a.started = false
		a.room = nil
		a.participant = nil
		a.mu.Unlock()
		return fmt.Errorf("agent: open stt stream: %w", err)
	}

	if a.observer != nil {
		a.metricsCh = make(chan metrics.AgentMetrics, metricsBuffer)
		a.metricsDone = make(chan struct{})
		go a.dispatchMetrics()
	}

	vadEvents := make(chan vad.Event, 16)
	a.wg.Add(3)
	go a.ingest(p, sttStream, vadEvents)
	go a.run(p, sttStream, vadEvents)
	go a.playout()

	stop := context.AfterFunc(ctx, func() { a.Close() })
	go func() {
		select {
		case <-p.Done():
			a.logger.Info("participant left", "identity", p.Identity())
			a.Close()
		case <-a.ctx.Done():
		}
		stop()
	}()

	a.logger.Info("agent started", "participant", p.Identity())
	a.setState(StateListening)
	return nil
}

// Say speaks text and blocks until it has been played or interrupted.
// The spoken text is added to the chat context. Cancelling ctx interrupts
// the speech.
func (a *Agent) Say(ctx context.Context, text string, allowInterruptions bool) (*SpeechHandle, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	a.mu.Lock()
	started, closed := a.started, a.closed
	a.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if !started {
		return nil, ErrNotStarted
	}

	h := newSpeechHandle(a.ctx, text, false, allowInterruptions)
	select {
	case a.speechQ <- h:
	case <-a.ctx.Done():
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case <-h.Done():
		return h, nil
	case <-ctx.Done():
		h.interrupt(true)
		return h, ctx.Err()
	case <-a.done:
		h.finish(true)
		return h, ErrClosed
	}
}

// Interrupt stops the current speech if it allows interruptions.
func (a *Agent) Interrupt() bool {
	a.mu.Lock()
	cur := a.current
	a.mu.Unlock()
	if cur == nil {
		return false
	}
	return cur.interrupt(false)
}

// Close stops the pipeline and waits for it to drain. It is safe to call
// more than once.
func (a *Agent) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return nil
	}
	a.closed = true
	started := a.started
	a.mu.Unlock()

	a.cancel()
	a.wg.Wait()
	if started {
		a.setState(StateEnded)
	}
	a.closeMetrics()
	close(a.done)

	a.logger.Info("agent closed")
	return nil
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	if a.state == s || a.state == StateEnded {
		a.mu.Unlock()
		return
	}
	prev := a.state
	a.state = s
	room := a.room
	a.mu.Unlock()

	a.logger.Debug("state changed", "from", prev, "to", s)
	if room != nil {
		if err := room.PublishState(string(s)); err != nil {
			a.logger.Debug("publish state failed", "error", err)
		}
	}
}

func (a *Agent) setCurrent(h *SpeechHandle) {
	a.mu.Lock()
	a.current = h
	a.mu.Unlock()
}

func (a *Agent) currentSpeech() *SpeechHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *Agent) publishTranscript(identity, text string, final bool) {
	a.mu.Lock()
	room := a.room
	a.mu.Unlock()
	if room == nil {
		return
	}
	if err := room.PublishTranscript(identity, text, final); err != nil {
		a.logger.Debug("publish transcript failed", "error", err)
	}
}
