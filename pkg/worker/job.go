package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/inbound-agent/pkg/room"
)

// ErrParticipantTimeout is returned when no participant joins in time.
var ErrParticipantTimeout = errors.New("worker: timed out waiting for participant")

// JobState is the lifecycle of one job.
type JobState string

const (
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// JobContext is handed to the entrypoint for one room.
type JobContext struct {
	ID     string
	Room   *room.Room
	Proc   *JobProcess
	Logger *slog.Logger

	participantTimeout time.Duration

	mu        sync.Mutex
	callbacks []func()
}

// Connect joins the agent to the room.
func (j *JobContext) Connect(ctx context.Context, sub room.AutoSubscribe) error {
	j.Logger.Info("connecting to room", "room", j.Room.Name(), "auto_subscribe", sub.String())
	if err := j.Room.Connect(ctx, sub); err != nil {
		return fmt.Errorf("connect to room %s: %w", j.Room.Name(), err)
	}
	return nil
}

// WaitForParticipant blocks until a remote participant is present.
// identity "" accepts anyone. The worker's participant timeout applies
// when configured; otherwise only ctx bounds the wait.
func (j *JobContext) WaitForParticipant(ctx context.Context, identity string) (*room.RemoteParticipant, error) {
	if j.participantTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.participantTimeout)
		defer cancel()
	}

	p, err := j.Room.WaitForParticipant(ctx, identity)
	if errors.Is(err, context.DeadlineExceeded) && j.participantTimeout > 0 {
		return nil, fmt.Errorf("%w after %s", ErrParticipantTimeout, j.participantTimeout)
	}
	return p, err
}

// AddShutdownCallback registers fn to run when the job ends.
// Callbacks run in reverse registration order.
func (j *JobContext) AddShutdownCallback(fn func()) {
	j.mu.Lock()
	j.callbacks = append(j.callbacks, fn)
	j.mu.Unlock()
}

func (j *JobContext) runShutdownCallbacks() {
	j.mu.Lock()
	callbacks := j.callbacks
	j.callbacks = nil
	j.mu.Unlock()

	for i := len(callbacks) - 1; i >= 0; i-- {
		func() {
			defer func() {
				if r := recover(); r != nil {
					j.Logger.Error("shutdown callback panicked", "panic", r)
				}
			}()
			callbacks[i]()
		}()
	}
}

// JobInfo is a job snapshot for the API.
type JobInfo struct {
	ID       string    `json:"id"`
	Room     string    `json:"room"`
	State    JobState  `json:"state"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished,omitempty"`
	Error    string    `json:"error,omitempty"`
}
