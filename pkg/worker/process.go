package worker

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

var (
	// ErrProcessFrozen is returned when userdata is written after prewarm.
	ErrProcessFrozen = errors.New("worker: process userdata is read-only after prewarm")

	// ErrMissingValue is returned by Value for unknown keys.
	ErrMissingValue = errors.New("worker: missing process value")
)

// JobProcess holds state shared by every job in one worker process.
// Prewarm fills Userdata; afterwards it is frozen and safe to read from
// concurrent jobs without locking on the caller's side.
type JobProcess struct {
	PID       int
	StartedAt time.Time

	mu       sync.RWMutex
	userdata map[string]any
	frozen   bool
}

// NewJobProcess creates an empty, writable process.
func NewJobProcess() *JobProcess {
	return &JobProcess{
		PID:       os.Getpid(),
		StartedAt: time.Now(),
		userdata:  make(map[string]any),
	}
}

// Set stores a value. It fails once the process is frozen.
func (p *JobProcess) Set(key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frozen {
		return fmt.Errorf("%w: %q", ErrProcessFrozen, key)
	}
	p.userdata[key] = v
	return nil
}

// Get returns a value by key.
func (p *JobProcess) Get(key string) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.userdata[key]
	return v, ok
}

// Len returns the number of stored values.
func (p *JobProcess) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.userdata)
}

// Frozen reports whether prewarm has completed.
func (p *JobProcess) Frozen() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frozen
}

func (p *JobProcess) freeze() {
	p.mu.Lock()
	p.frozen = true
	p.mu.Unlock()
}

// Value returns the value stored under key as a T.
func Value[T any](p *JobProcess, key string) (T, error) {
	var zero T
	v, ok := p.Get(key)
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrMissingValue, key)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("worker: process value %q is %T, not %T", key, v, zero)
	}
	return t, nil
}
