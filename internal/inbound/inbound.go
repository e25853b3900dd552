// Package inbound is the per-call entrypoint of the inbound agent.
//
// Prewarm loads the VAD once per worker process. For every job, Handler
// seeds the chat context with the persona instructions, connects to the
// room audio-only, waits for the caller, assembles the voice pipeline,
// starts it and greets the caller.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/inbound-agent/pkg/agent"
	"github.com/teslashibe/inbound-agent/pkg/llm"
	"github.com/teslashibe/inbound-agent/pkg/metrics"
	"github.com/teslashibe/inbound-agent/pkg/persona"
	"github.com/teslashibe/inbound-agent/pkg/room"
	"github.com/teslashibe/inbound-agent/pkg/turn"
	"github.com/teslashibe/inbound-agent/pkg/vad"
	"github.com/teslashibe/inbound-agent/pkg/worker"
)

// VADKey is where Prewarm stores the shared *vad.VAD.
const VADKey = "vad"

// Prewarm loads the VAD into the process state shared by all jobs.
func Prewarm(proc *worker.JobProcess) error {
	v, err := vad.Load()
	if err != nil {
		return fmt.Errorf("load vad: %w", err)
	}
	return proc.Set(VADKey, v)
}

// Phase is how far a call has progressed through setup.
type Phase string

const (
	PhaseIdle                Phase = "idle"
	PhaseConnecting          Phase = "connecting"
	PhaseAwaitingParticipant Phase = "awaiting_participant"
	PhaseAssembling          Phase = "assembling"
	PhaseActive              Phase = "active"
	PhaseEnded               Phase = "ended"
)

// Job is the part of a worker job the entrypoint uses.
type Job interface {
	ID() string
	Room() agent.Room
	Proc() *worker.JobProcess
	Connect(ctx context.Context, sub room.AutoSubscribe) error
	WaitForParticipant(ctx context.Context) (agent.Participant, error)
}

// Session is a running voice pipeline. *agent.Agent implements it.
type Session interface {
	Start(ctx context.Context, r agent.Room, p agent.Participant) error
	Say(ctx context.Context, text string, allowInterruptions bool) (*agent.SpeechHandle, error)
	Done() <-chan struct{}
	Close() error
}

// NewSessionFunc builds a Session from assembled options.
type NewSessionFunc func(opts agent.Options) (Session, error)

// ProvidersFunc builds the cloud providers for a persona.
type ProvidersFunc func(p persona.Persona) (*Providers, error)

// Handler runs calls for one persona.
type Handler struct {
	Persona   persona.Persona
	Providers ProvidersFunc

	// NewSession defaults to agent.New.
	NewSession NewSessionFunc

	// OnPhase, when set, is called on every phase change.
	OnPhase func(jobID string, phase Phase)

	Logger *slog.Logger
}

// Call is a started conversation.
type Call struct {
	JobID       string
	Session     Session
	Participant agent.Participant
	ChatContext *llm.ChatContext
	Usage       *metrics.UsageCollector
	Greeting    *agent.SpeechHandle

	providers *Providers
}

// Close stops the session and releases the providers.
func (c *Call) Close() error {
	err := c.Session.Close()
	if c.providers != nil {
		err = errors.Join(err, c.providers.Close())
	}
	return err
}

// Run connects, waits for the caller and starts the pipeline. It returns
// once the greeting has been played or interrupted. The caller owns the
// returned Call and must Close it.
func (h *Handler) Run(ctx context.Context, job Job) (*Call, error) {
	logger := h.logger().With("job_id", job.ID(), "persona", h.Persona.Name)
	h.phase(job, PhaseIdle)

	chatCtx := llm.NewChatContext().Append(llm.RoleSystem, h.Persona.Instructions)

	h.phase(job, PhaseConnecting)
	if err := job.Connect(ctx, room.AudioOnly); err != nil {
		h.phase(job, PhaseEnded)
		return nil, err
	}

	h.phase(job, PhaseAwaitingParticipant)
	participant, err := job.WaitForParticipant(ctx)
	if err != nil {
		h.phase(job, PhaseEnded)
		return nil, fmt.Errorf("wait for participant: %w", err)
	}
	logger.Info("starting voice assistant", "participant", participant.Identity())

	h.phase(job, PhaseAssembling)
	call, err := h.assemble(job, chatCtx, participant, logger)
	if err != nil {
		h.phase(job, PhaseEnded)
		return nil, err
	}

	if err := call.Session.Start(ctx, job.Room(), participant); err != nil {
		call.Close()
		h.phase(job, PhaseEnded)
		return nil, fmt.Errorf("start agent: %w", err)
	}
	h.phase(job, PhaseActive)

	handle, err := call.Session.Say(ctx, h.Persona.Greeting, true)
	switch {
	case err == nil:
		call.Greeting = handle
	case errors.Is(err, agent.ErrClosed), ctx.Err() != nil:
		logger.Info("call ended during greeting")
	default:
		call.Close()
		h.phase(job, PhaseEnded)
		return nil, fmt.Errorf("greeting: %w", err)
	}
	return call, nil
}

// assemble builds the providers, the metrics observer and the session.
func (h *Handler) assemble(job Job, chatCtx *llm.ChatContext, p agent.Participant, logger *slog.Logger) (*Call, error) {
	v, err := worker.Value[*vad.VAD](job.Proc(), VADKey)
	if err != nil {
		return nil, err
	}
	if h.Providers == nil {
		return nil, errors.New("inbound: no provider factory")
	}
	providers, err := h.Providers(h.Persona)
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}

	usage := metrics.NewUsageCollector()
	metricsLogger := logger.With("component", "metrics")
	observer := agent.ObserverFunc(func(m metrics.AgentMetrics) error {
		metrics.Log(metricsLogger, m)
		usage.Collect(m)
		return nil
	})

	newSession := h.NewSession
	if newSession == nil {
		newSession = func(opts agent.Options) (Session, error) { return agent.New(opts) }
	}
	session, err := newSession(agent.Options{
		VAD:          v,
		STT:          providers.STT,
		LLM:          providers.LLM,
		TTS:          providers.TTS,
		TurnDetector: turn.NewEOUModel(),
		Endpointing:  h.Persona.Endpointing.Turn(),
		ChatContext:  chatCtx,
		Observer:     observer,
		Language:     h.Persona.Language,
		Logger:       logger,
	})
	if err != nil {
		providers.Close()
		return nil, fmt.Errorf("create agent: %w", err)
	}

	return &Call{
		JobID:       job.ID(),
		Session:     session,
		Participant: p,
		ChatContext: chatCtx,
		Usage:       usage,
		providers:   providers,
	}, nil
}

// Entrypoint is the worker entrypoint. It runs the call until the caller
// leaves or the job is cancelled, then logs the usage summary.
func (h *Handler) Entrypoint(ctx context.Context, job *worker.JobContext) error {
	start := time.Now()
	call, err := h.Run(ctx, workerJob{job})
	if err != nil {
		return err
	}

	select {
	case <-call.Session.Done():
	case <-call.Participant.Done():
	case <-ctx.Done():
	}

	if err := call.Close(); err != nil {
		job.Logger.Warn("closing call", "error", err)
	}
	h.phase(workerJob{job}, PhaseEnded)

	job.Logger.Info("usage summary",
		"summary", call.Usage.Summary().String(),
		"turns", call.ChatContext.Count(llm.RoleUser),
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

func (h *Handler) phase(job Job, p Phase) {
	h.logger().Debug("call phase", "job_id", job.ID(), "phase", p)
	if h.OnPhase != nil {
		h.OnPhase(job.ID(), p)
	}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// workerJob adapts *worker.JobContext to Job.
type workerJob struct {
	job *worker.JobContext
}

func (w workerJob) ID() string               { return w.job.ID }
func (w workerJob) Room() agent.Room         { return w.job.Room }
func (w workerJob) Proc() *worker.JobProcess { return w.job.Proc }

func (w workerJob) Connect(ctx context.Context, sub room.AutoSubscribe) error {
	return w.job.Connect(ctx, sub)
}

func (w workerJob) WaitForParticipant(ctx context.Context) (agent.Participant, error) {
	p, err := w.job.WaitForParticipant(ctx, "")
	if err != nil {
		return nil, err
	}
	return p, nil
}
