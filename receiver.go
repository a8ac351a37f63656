package ingest

import (
	"net"
	"time"

	"github.com/fernbridge/rtpcore/internal/priority"
	"github.com/fernbridge/rtpcore/internal/ring"
)

// pollTimeout bounds how long the Receiver can block waiting for
// readability before it re-checks shutdown.
const pollTimeout = 100 * time.Millisecond

var rlog = log.WithTag("receiver")

// receiver is the single producer goroutine: it polls Socket, writes
// datagrams into successive ring slots, growing the ring under pressure,
// and signals the Processor once per round that yielded at least one
// datagram.
type receiver struct {
	sock Socket
	r    *ring.Ring

	// signal wakes the Processor; fatal reports a terminal I/O error back
	// to the lifecycle for shutdown.
	signal func()
	fatal  func(error)
}

func newReceiver(sock Socket, r *ring.Ring, signal func(), fatal func(error)) *receiver {
	return &receiver{sock: sock, r: r, signal: signal, fatal: fatal}
}

// run is the Receiver's loop. It returns when shutdown is closed or a
// fatal I/O error occurs.
func (rc *receiver) run(shutdown <-chan struct{}) {
	priority.Raise(priority.Elevated)
	rlog.Debug("starting")
	defer rlog.Debug("stopped")

	for {
		select {
		case <-shutdown:
			return
		default:
		}

		n, err := rc.pollAndDrain()
		if err != nil {
			rlog.Error("fatal I/O error: %v", err)
			rc.fatal(err)
			return
		}
		if n > 0 {
			rc.signal()
		}
	}
}

// pollAndDrain waits for readability (or pollTimeout) and then drains the
// socket in a non-blocking loop into successive ring slots, returning the
// number of datagrams received. A nil error with n == 0 means the poll
// timed out or the drain ended on a would-block condition, neither of
// which is fatal.
func (rc *receiver) pollAndDrain() (n int, err error) {
	if setErr := rc.sock.SetReadDeadline(time.Now().Add(pollTimeout)); setErr != nil {
		return 0, setErr
	}

	for {
		w := rc.r.NextWriteSlot()
		if rc.r.WouldOverrun(w) {
			rc.r.GrowLocked(ring.GrowthSize(rc.r.Len()))
			w = rc.r.NextWriteSlot()
		}

		buf := rc.r.BeginWrite(w)
		read, _, readErr := rc.sock.ReadFrom(buf)
		if readErr != nil {
			if n == 0 && isTimeout(readErr) {
				// First read of the round timed out: nothing arrived this
				// poll interval, not fatal.
				return 0, nil
			}
			if isTimeout(readErr) || isTemporary(readErr) {
				// End of burst: no more datagrams ready right now.
				return n, nil
			}
			return n, readErr
		}
		if read == 0 {
			return n, nil
		}

		rc.r.CommitWrite(w, read)
		n++

		// Subsequent reads this round must not block: only drain what is
		// already queued on the socket.
		if setErr := rc.sock.SetReadDeadline(time.Now()); setErr != nil {
			return n, setErr
		}
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func isTemporary(err error) bool {
	type temporary interface {
		Temporary() bool
	}
	te, ok := err.(temporary)
	return ok && te.Temporary()
}
