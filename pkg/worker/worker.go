// Package worker runs agent jobs: one job per room, dispatched when the
// room's first caller joins.
//
// A worker prewarms shared process state once, then serves the room
// transport and a small HTTP API. Each created room gets a JobContext and
// the entrypoint runs on its own goroutine until it returns.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/inbound-agent/pkg/room"
)

// EntrypointFunc runs one job. Returning ends the job; a non-nil error
// also closes the job's room.
type EntrypointFunc func(ctx context.Context, job *JobContext) error

// PrewarmFunc initializes process-wide state before any job runs.
type PrewarmFunc func(proc *JobProcess) error

// ErrNoEntrypoint is returned by New without an entrypoint.
var ErrNoEntrypoint = errors.New("worker: entrypoint required")

// Defaults for Options.
const (
	DefaultListenAddr      = ":8081"
	DefaultMaxJobs         = 8
	DefaultShutdownTimeout = 10 * time.Second

	maxJobHistory = 100
)

// Options configures a Worker.
type Options struct {
	AgentName  string
	Entrypoint EntrypointFunc
	Prewarm    PrewarmFunc

	ListenAddr string
	MaxJobs    int

	// ParticipantTimeout bounds JobContext.WaitForParticipant. Zero waits
	// until the room closes or the job is cancelled.
	ParticipantTimeout time.Duration

	ShutdownTimeout time.Duration

	// LogLevel is the --log-level default for the start command.
	LogLevel string
	Logger   *slog.Logger
}

// Worker dispatches jobs for rooms.
type Worker struct {
	opts   Options
	proc   *JobProcess
	server *room.Server
	app    *fiber.App
	logger *slog.Logger

	sem chan struct{}

	mu     sync.Mutex
	ctx    context.Context
	jobs   map[string]*JobInfo
	active sync.WaitGroup

	jobsStarted  atomic.Uint64
	jobsFailed   atomic.Uint64
	jobsRejected atomic.Uint64
}

// New runs Prewarm and builds the worker. A prewarm failure is returned
// as is; the process should not serve jobs without it.
func New(opts Options) (*Worker, error) {
	if opts.Entrypoint == nil {
		return nil, ErrNoEntrypoint
	}
	if opts.ListenAddr == "" {
		opts.ListenAddr = DefaultListenAddr
	}
	if opts.MaxJobs <= 0 {
		opts.MaxJobs = DefaultMaxJobs
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("component", "worker", "agent_name", opts.AgentName)

	proc := NewJobProcess()
	if opts.Prewarm != nil {
		start := time.Now()
		if err := opts.Prewarm(proc); err != nil {
			return nil, fmt.Errorf("worker: prewarm: %w", err)
		}
		logger.Info("prewarm complete", "duration", time.Since(start).Round(time.Millisecond), "values", proc.Len())
	}
	proc.freeze()

	w := &Worker{
		opts:   opts,
		proc:   proc,
		server: room.NewServer(opts.Logger),
		logger: logger,
		sem:    make(chan struct{}, opts.MaxJobs),
		jobs:   make(map[string]*JobInfo),
	}
	w.server.OnRoomCreated(w.dispatch)
	w.app = w.newApp()
	return w, nil
}

// Proc returns the shared process state.
func (w *Worker) Proc() *JobProcess { return w.proc }

// Server returns the room server.
func (w *Worker) Server() *room.Server { return w.server }

// App returns the HTTP app serving the transport and API.
func (w *Worker) App() *fiber.App { return w.app }

func (w *Worker) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               w.opts.AgentName,
		DisableStartupMessage: true,
	})

	app.Use(fiberrecover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	w.server.RegisterRoutes(app)

	api := app.Group("/api")
	w.server.RegisterAPIRoutes(api)
	api.Get("/jobs", func(c *fiber.Ctx) error {
		jobs := w.Jobs()
		return c.JSON(fiber.Map{
			"jobs":  jobs,
			"count": len(jobs),
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(w.Health())
	})

	return app
}

// Health is the /health payload.
type Health struct {
	Status       string `json:"status"`
	AgentName    string `json:"agent_name"`
	Prewarmed    bool   `json:"prewarmed"`
	ActiveJobs   int    `json:"active_jobs"`
	MaxJobs      int    `json:"max_jobs"`
	JobsStarted  uint64 `json:"jobs_started"`
	JobsFailed   uint64 `json:"jobs_failed"`
	JobsRejected uint64 `json:"jobs_rejected"`
	Rooms        int    `json:"rooms"`
}

// Health reports worker load.
func (w *Worker) Health() Health {
	return Health{
		Status:       "ok",
		AgentName:    w.opts.AgentName,
		Prewarmed:    w.proc.Frozen(),
		ActiveJobs:   len(w.sem),
		MaxJobs:      w.opts.MaxJobs,
		JobsStarted:  w.jobsStarted.Load(),
		JobsFailed:   w.jobsFailed.Load(),
		JobsRejected: w.jobsRejected.Load(),
		Rooms:        w.server.Stats().Rooms,
	}
}

// Jobs returns known jobs, newest first.
func (w *Worker) Jobs() []JobInfo {
	w.mu.Lock()
	out := make([]JobInfo, 0, len(w.jobs))
	for _, j := range w.jobs {
		out = append(out, *j)
	}
	w.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Started.After(out[j].Started) })
	return out
}

// Run serves until ctx is cancelled, then stops accepting callers, cancels
// running jobs and waits for them to finish.
func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		w.logger.Info("worker listening", "addr", w.opts.ListenAddr, "max_jobs", w.opts.MaxJobs)
		if err := w.app.Listen(w.opts.ListenAddr); err != nil {
			return fmt.Errorf("worker: listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		w.logger.Info("worker shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), w.opts.ShutdownTimeout)
		defer cancel()

		w.server.CloseAll()
		err := w.app.ShutdownWithContext(shutdownCtx)

		done := make(chan struct{})
		go func() {
			w.active.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			w.logger.Warn("jobs still running at shutdown timeout")
		}
		return err
	})

	return g.Wait()
}

// dispatch starts a job for a newly created room. It never blocks.
func (w *Worker) dispatch(r *room.Room) {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		w.logger.Warn("rejecting room, worker not running", "room", r.Name())
		r.Close()
		return
	}

	select {
	case w.sem <- struct{}{}:
	default:
		w.jobsRejected.Add(1)
		w.logger.Warn("rejecting room, at capacity", "room", r.Name(), "max_jobs", w.opts.MaxJobs)
		r.Close()
		return
	}

	info := &JobInfo{
		ID:      "AJ_" + uuid.NewString()[:12],
		Room:    r.Name(),
		State:   JobRunning,
		Started: time.Now(),
	}
	w.mu.Lock()
	w.jobs[info.ID] = info
	w.mu.Unlock()

	w.jobsStarted.Add(1)
	w.active.Add(1)
	go w.runJob(ctx, r, info)
}

func (w *Worker) runJob(parent context.Context, r *room.Room, info *JobInfo) {
	defer w.active.Done()
	defer func() { <-w.sem }()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go func() {
		select {
		case <-r.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	logger := w.logger.With("job_id", info.ID, "room", r.Name())
	job := &JobContext{
		ID:                 info.ID,
		Room:               r,
		Proc:               w.proc,
		Logger:             logger,
		participantTimeout: w.opts.ParticipantTimeout,
	}

	logger.Info("job started")
	err := w.callEntrypoint(ctx, job)
	job.runShutdownCallbacks()
	r.Disconnect()

	w.mu.Lock()
	info.Finished = time.Now()
	if err != nil {
		info.State = JobFailed
		info.Error = err.Error()
	} else {
		info.State = JobSucceeded
	}
	w.pruneLocked()
	w.mu.Unlock()

	if err != nil {
		w.jobsFailed.Add(1)
		logger.Error("job failed", "error", err, "duration", time.Since(info.Started).Round(time.Millisecond))
		r.Close()
		return
	}
	logger.Info("job finished", "duration", time.Since(info.Started).Round(time.Millisecond))
}

// pruneLocked drops the oldest finished jobs beyond maxJobHistory.
func (w *Worker) pruneLocked() {
	for len(w.jobs) > maxJobHistory {
		var oldest *JobInfo
		for _, j := range w.jobs {
			if j.State != JobRunning && (oldest == nil || j.Started.Before(oldest.Started)) {
				oldest = j
			}
		}
		if oldest == nil {
			return
		}
		delete(w.jobs, oldest.ID)
	}
}

func (w *Worker) callEntrypoint(ctx context.Context, job *JobContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker: entrypoint panicked: %v", r)
		}
	}()
	return w.opts.Entrypoint(ctx, job)
}
