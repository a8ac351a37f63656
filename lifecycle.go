package ingest

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/fernbridge/rtpcore/internal/delivery"
	"github.com/fernbridge/rtpcore/internal/ring"
	"github.com/fernbridge/rtpcore/internal/srtcp"
)

var llog = log.WithTag("lifecycle")

// Core owns the Receiver/Processor pair, the ring buffer, the handler
// registry, and the Delivery Endpoint for one reception session. Start,
// Stop, and Resize follow a vote-counted singleton-loop shape: Start and
// Stop must be called in matched pairs.
type Core struct {
	mu sync.Mutex

	cfg Config
	r   *ring.Ring

	endpoint *delivery.Endpoint
	srtcp    *srtcp.Context

	rc     *receiver
	pc     *processor
	rcDone chan struct{}
	pcDone chan struct{}

	shutdown      chan struct{}
	closeShutdown sync.Once
	votes         int

	fatalOnce sync.Once
	fatalErr  error
}

// New validates cfg and constructs a Core, but does not start any
// goroutines; call Start for that.
func New(cfg Config) (*Core, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Core{
		cfg:      cfg,
		r:        ring.New(cfg.bufferSize()),
		endpoint: delivery.New(),
	}

	if !cfg.LocalKeys.Empty() || !cfg.RemoteKeys.Empty() {
		sc, err := srtcp.NewContext(cfg.LocalKeys, cfg.RemoteKeys, cfg.Cipher)
		if err != nil {
			return nil, errors.Wrap(err, "ingest: construct SRTCP context")
		}
		c.srtcp = sc
	}

	if cfg.PushHook != nil {
		if err := c.endpoint.InstallPushHook(cfg.PushHookCtx, cfg.PushHook); err != nil {
			return nil, errors.Wrap(err, "ingest: install push hook")
		}
	}

	return c, nil
}

// Endpoint returns the Delivery Endpoint, for pull-mode consumers and for
// installing a push hook after construction (before the first frame, per
// the Delivery Endpoint's own mode-lock rule).
func (c *Core) Endpoint() *delivery.Endpoint {
	return c.endpoint
}

// SRTCP returns the SRTCP context, or nil if neither LocalKeys nor
// RemoteKeys were configured.
func (c *Core) SRTCP() *srtcp.Context {
	return c.srtcp
}

// Ring exposes the ring buffer, chiefly so handlers and tests can observe
// its size without reaching into unexported Core fields.
func (c *Core) Ring() *ring.Ring {
	return c.r
}

// Start spawns the Receiver and Processor goroutines. Each call to Start
// must be matched by a call to Stop; nested Start calls after the first
// are a no-op beyond bookkeeping.
func (c *Core) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.votes++
	if c.votes > 1 {
		return
	}

	c.shutdown = make(chan struct{})
	c.closeShutdown = sync.Once{}
	c.pcDone = make(chan struct{})
	c.rcDone = make(chan struct{})

	c.pc = newProcessor(c.r, c.cfg.Registry, c.endpoint, c.cfg.Flags)
	c.rc = newReceiver(c.cfg.Socket, c.r, c.pc.signal, c.reportFatal)

	go c.pc.run(c.pcDone)
	go func() {
		defer close(c.rcDone)
		c.rc.run(c.shutdown)
	}()

	llog.Info("started")
}

// Stop sets the shutdown flag, wakes the Processor, joins both
// goroutines, and clears any remaining frames in the pull FIFO. Safe to
// call even if a fatal Receiver error already triggered shutdown.
func (c *Core) Stop() {
	c.mu.Lock()
	if c.votes == 0 {
		c.mu.Unlock()
		return
	}
	c.votes--
	if c.votes > 0 {
		c.mu.Unlock()
		return
	}
	shutdown, pc, rcDone, pcDone := c.shutdown, c.pc, c.rcDone, c.pcDone
	c.mu.Unlock()

	// The blocking joins below must happen outside c.mu: reportFatal also
	// needs c.mu briefly, and it runs on the Receiver goroutine this call
	// is waiting to join.
	c.closeShutdown.Do(func() { close(shutdown) })
	pc.requestShutdown()
	<-rcDone
	<-pcDone

	c.endpoint.Shutdown()
	c.endpoint.Drain()

	llog.Info("stopped")
}

// Resize destroys the current ring and allocates a new one of the given
// total byte capacity. Must not be called while Start is in effect.
func (c *Core) Resize(totalBytes int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.votes > 0 {
		return errors.New("ingest: Resize called while running")
	}
	c.r = ring.New(totalBytes)
	return nil
}

func (c *Core) reportFatal(err error) {
	c.fatalOnce.Do(func() {
		c.fatalErr = err
	})

	c.mu.Lock()
	running := c.votes > 0
	shutdown, pc := c.shutdown, c.pc
	c.mu.Unlock()

	if !running {
		return
	}
	c.closeShutdown.Do(func() { close(shutdown) })
	pc.requestShutdown()
}

// Err returns the fatal error that triggered an unrequested shutdown, if
// any.
func (c *Core) Err() error {
	return c.fatalErr
}
