package agent

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// SpeechHandle tracks one agent utterance, scripted or generated.
type SpeechHandle struct {
	id                 string
	text               string
	reply              bool
	allowInterruptions bool

	ctx    context.Context
	cancel context.CancelFunc

	interrupted atomic.Bool
	playing     atomic.Bool
	done        chan struct{}
	once        sync.Once

	mu     sync.Mutex
	spoken []string
}

func newSpeechHandle(parent context.Context, text string, reply, allowInterruptions bool) *SpeechHandle {
	ctx, cancel := context.WithCancel(parent)
	return &SpeechHandle{
		id:                 "SP_" + uuid.NewString()[:12],
		text:               text,
		reply:              reply,
		allowInterruptions: allowInterruptions,
		ctx:                ctx,
		cancel:             cancel,
		done:               make(chan struct{}),
	}
}

// ID returns the speech ID used in metrics.
func (h *SpeechHandle) ID() string { return h.id }

// AllowInterruptions reports whether user speech may cut this utterance.
func (h *SpeechHandle) AllowInterruptions() bool { return h.allowInterruptions }

// Interrupted reports whether playout was cut short.
func (h *SpeechHandle) Interrupted() bool { return h.interrupted.Load() }

// Done is closed when playout has finished or was interrupted.
func (h *SpeechHandle) Done() <-chan struct{} { return h.done }

// Text returns what was actually spoken.
func (h *SpeechHandle) Text() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return strings.Join(h.spoken, " ")
}

// interrupt cancels the speech. Without force it is refused when
// interruptions are not allowed.
func (h *SpeechHandle) interrupt(force bool) bool {
	if !force && !h.allowInterruptions {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
	}
	h.interrupted.Store(true)
	h.cancel()
	return true
}

func (h *SpeechHandle) addSpoken(text string) {
	h.mu.Lock()
	h.spoken = append(h.spoken, text)
	h.mu.Unlock()
}

func (h *SpeechHandle) finish(interrupted bool) {
	h.once.Do(func() {
		if interrupted {
			h.interrupted.Store(true)
		}
		h.cancel()
		close(h.done)
	})
}
