// Package ingest implements the RTP/RTCP reception core: a Receiver that
// polls a socket into a growable ring buffer, a Processor that drains the
// ring through a keyed handler chain, and a Delivery Endpoint that hands
// finished frames to either a pull queue or a push callback. SRTCP
// encryption/authentication is applied along the way by internal/srtcp.
package ingest

import (
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/fernbridge/rtpcore/internal/delivery"
	"github.com/fernbridge/rtpcore/internal/handler"
	"github.com/fernbridge/rtpcore/internal/logging"
	"github.com/fernbridge/rtpcore/internal/srtcp"
)

var log = logging.DefaultLogger.WithTag("ingest")

// defaultBufferSizeBytes is the initial ring capacity: 4 MiB.
const defaultBufferSizeBytes = 4 * 1024 * 1024

// Socket is the minimal collaborator the Receiver needs to poll and read
// datagrams. *net.UDPConn and any other net.PacketConn satisfy it.
type Socket interface {
	SetReadDeadline(t time.Time) error
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
}

// Config configures a Core (C7).
type Config struct {
	// Socket supplies datagrams to the Receiver. Required.
	Socket Socket

	// BufferSizeBytes sets the initial ring capacity. Zero uses the
	// default of 4 MiB.
	BufferSizeBytes int

	// PushHook, if set, switches the Delivery Endpoint to push mode:
	// every frame is delivered synchronously on the Processor goroutine
	// instead of being queued for pull.
	PushHook delivery.PushHook
	// PushHookCtx is passed through to PushHook verbatim.
	PushHookCtx interface{}

	// Flags is forwarded verbatim to every handler invocation.
	Flags int32

	// LocalKeys/RemoteKeys configure the SRTCP transform for outbound and
	// inbound traffic, respectively. Leave both zero to run without
	// SRTCP (handlers that need it should check Core.SRTCP() for nil).
	LocalKeys  srtcp.KeySet
	RemoteKeys srtcp.KeySet
	// Cipher selects the SRTCP encryption transform. Defaults to
	// AESCounterMode; set NullCipher for unencrypted SRTCP sessions.
	Cipher srtcp.Cipher

	// Registry holds the primary/auxiliary handler chain the Processor
	// dispatches every datagram through. Required.
	Registry *handler.Registry
}

func (c *Config) bufferSize() int {
	if c.BufferSizeBytes > 0 {
		return c.BufferSizeBytes
	}
	return defaultBufferSizeBytes
}

func (c *Config) validate() error {
	if c.Socket == nil {
		return errors.New("ingest: config: Socket is required")
	}
	if c.Registry == nil {
		return errors.New("ingest: config: Registry is required")
	}
	if c.BufferSizeBytes < 0 {
		return errors.Errorf("ingest: config: BufferSizeBytes must be >= 0, got %d", c.BufferSizeBytes)
	}
	return nil
}
