// Package delivery implements the Delivery Endpoint (C5): a frame FIFO
// with pull and push modes, mutually exclusive for the lifetime of a
// session. It is grounded on the channel-backed single-slot Buffer used
// elsewhere in this codebase's lineage, and on the fan-out Flow type's
// shutdown-drain discipline.
package delivery

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/fernbridge/rtpcore/internal/handler"
)

// PushHook takes ownership of a delivered frame. It is invoked
// synchronously on the Processor goroutine.
type PushHook func(ctx interface{}, frame *handler.Frame)

// ErrModeLocked is returned by InstallPushHook once a frame has already
// been delivered through pull mode, or once a push hook is already
// installed.
var ErrModeLocked = errors.New("delivery: mode already fixed for this session")

// Endpoint is either a mutex-protected pull FIFO or a push hook, never
// both.
type Endpoint struct {
	mu sync.Mutex

	hook    PushHook
	hookCtx interface{}

	fifo []*handler.Frame

	// modeFixed becomes true the first time a frame is enqueued or
	// delivered, locking in pull-vs-push for the rest of the session.
	modeFixed bool

	shutdown chan struct{}
	once     sync.Once
}

// New creates an Endpoint in pull mode by default; installing a push hook
// before the first frame switches it to push mode.
func New() *Endpoint {
	return &Endpoint{shutdown: make(chan struct{})}
}

// InstallPushHook registers ctx/hook as the push destination. Fails if a
// frame has already been delivered in pull mode this session, or if a push
// hook is already installed: the two modes, and a session's hook, are fixed
// once set.
func (e *Endpoint) InstallPushHook(ctx interface{}, hook PushHook) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hook != nil || (e.modeFixed && e.hook == nil) {
		return errors.WithStack(ErrModeLocked)
	}
	e.hook = hook
	e.hookCtx = ctx
	e.modeFixed = true
	return nil
}

// Deliver is called by the Processor for every frame emitted by the
// handler chain. In push mode it calls the hook synchronously; in pull
// mode it appends to the FIFO.
func (e *Endpoint) Deliver(frame *handler.Frame) {
	e.mu.Lock()
	e.modeFixed = true
	hook, ctx := e.hook, e.hookCtx
	if hook == nil {
		e.fifo = append(e.fifo, frame)
	}
	e.mu.Unlock()

	if hook != nil {
		hook(ctx, frame)
	}
}

func (e *Endpoint) popHead() (*handler.Frame, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.fifo) == 0 {
		return nil, false
	}
	frame := e.fifo[0]
	e.fifo[0] = nil
	e.fifo = e.fifo[1:]
	return frame, true
}

// PullBlocking polls for a frame at 5ms granularity until one is
// available or Shutdown is called, in which case it returns nil.
func (e *Endpoint) PullBlocking() *handler.Frame {
	return e.pull(0, 5*time.Millisecond)
}

// PullWithTimeout polls for a frame at 1ms granularity, bounded by
// timeout; returns nil on shutdown or expiry.
func (e *Endpoint) PullWithTimeout(timeout time.Duration) *handler.Frame {
	return e.pull(timeout, time.Millisecond)
}

func (e *Endpoint) pull(timeout time.Duration, interval time.Duration) *handler.Frame {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if frame, ok := e.popHead(); ok {
		return frame
	}

	for {
		select {
		case <-e.shutdown:
			return nil
		case <-deadline:
			return nil
		case <-ticker.C:
			if frame, ok := e.popHead(); ok {
				return frame
			}
		}
	}
}

// Shutdown unblocks any pending pull calls, returning nil to them. Safe to
// call multiple times.
func (e *Endpoint) Shutdown() {
	e.once.Do(func() { close(e.shutdown) })
}

// Drain clears and discards any frames remaining in the pull FIFO,
// releasing their references so they can be garbage collected. Used by
// Lifecycle's Stop.
func (e *Endpoint) Drain() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.fifo {
		e.fifo[i] = nil
	}
	e.fifo = nil
}

// Len reports the number of frames currently queued for pull. Intended
// for tests and diagnostics.
func (e *Endpoint) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.fifo)
}
