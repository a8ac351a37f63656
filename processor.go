package ingest

import (
	"sync"

	"github.com/fernbridge/rtpcore/internal/delivery"
	"github.com/fernbridge/rtpcore/internal/handler"
	"github.com/fernbridge/rtpcore/internal/priority"
	"github.com/fernbridge/rtpcore/internal/ring"
)

var plog = log.WithTag("processor")

// processor is the single consumer goroutine: it waits on a condition
// variable, then drains every slot the Receiver has published since the
// last drain, dispatching each through the handler registry and emitting
// any produced frames to the Delivery Endpoint.
type processor struct {
	r        *ring.Ring
	registry *handler.Registry
	endpoint *delivery.Endpoint
	flags    int32

	mu       sync.Mutex
	cond     *sync.Cond
	shutdown bool
}

func newProcessor(r *ring.Ring, registry *handler.Registry, endpoint *delivery.Endpoint, flags int32) *processor {
	p := &processor{r: r, registry: registry, endpoint: endpoint, flags: flags}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// signal wakes the Processor, called by the Receiver after a round that
// published at least one datagram.
func (p *processor) signal() {
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
}

// requestShutdown wakes the Processor even if the ring is empty, so that
// stop() can observe it exiting promptly.
func (p *processor) requestShutdown() {
	p.mu.Lock()
	p.shutdown = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// run is the Processor's loop. It returns once shutdown has been
// requested and the ring has been fully drained.
func (p *processor) run(done chan<- struct{}) {
	defer close(done)
	priority.Raise(priority.Normal)
	plog.Debug("starting")
	defer plog.Debug("stopped")

	for {
		p.mu.Lock()
		for p.r.IsEmpty() && !p.shutdown {
			p.cond.Wait()
		}
		shuttingDown := p.shutdown
		p.mu.Unlock()

		p.drain()

		if shuttingDown && p.r.IsEmpty() {
			return
		}
	}
}

// drain holds the ring lock for its entire duration, serializing against
// concurrent Receiver-triggered growth, and processes every slot between
// the last read index (exclusive) and the current write index
// (inclusive).
func (p *processor) drain() {
	p.r.Lock()
	defer p.r.Unlock()

	if p.r.IsEmptyLocked() {
		return
	}

	n := p.r.LenLocked()
	writeIndex := p.r.WriteIndexLocked()
	readIndex := ring.FirstReadIndex(p.r.ReadIndexLocked(), n)

	for {
		p.r.AdvanceRead(readIndex)
		slot := p.r.SlotAtLocked(readIndex)
		p.dispatch(slot)

		if readIndex == writeIndex {
			return
		}
		readIndex = p.r.NextLocked(readIndex)
	}
}

func (p *processor) dispatch(slot ring.Slot) {
	p.registry.Dispatch(slot.Read, slot.Data[:slot.Read], p.flags, p.endpoint.Deliver)
}
