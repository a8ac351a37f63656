// Package handler implements the keyed primary/auxiliary dispatch chain
// (C3) that the Processor drives for every datagram it drains from the
// ring. It generalizes the tag-keyed registry pattern used elsewhere in
// this codebase's lineage (a map from an identifier to a handler function)
// to the primary-plus-ordered-auxiliaries shape the reception core needs.
package handler

import (
	"math/rand"

	"github.com/pkg/errors"

	"github.com/fernbridge/rtpcore/internal/logging"
)

var log = logging.DefaultLogger.WithTag("handler")

// Result is the tagged outcome of a handler call. Modeled as a small enum
// rather than a bare integer, per the design note that a result should be
// a tagged variant in a strongly-typed implementation.
type Result int8

const (
	// Ok means the packet was consumed but produced no frame.
	Ok Result = iota
	// PktNotHandled means this handler does not recognize the packet;
	// try the next one in the chain.
	PktNotHandled
	// PktModified means this primary handler produced a frame; its
	// auxiliaries should now run.
	PktModified
	// PktReady means an auxiliary produced exactly one frame, ready for
	// delivery.
	PktReady
	// MultiplePktsReady means an auxiliary's getter should be drained
	// repeatedly, each call yielding one frame, until it stops returning
	// PktReady.
	MultiplePktsReady
	// GenericError means the handler failed; log and move on.
	GenericError
)

func (r Result) String() string {
	switch r {
	case Ok:
		return "Ok"
	case PktNotHandled:
		return "PktNotHandled"
	case PktModified:
		return "PktModified"
	case PktReady:
		return "PktReady"
	case MultiplePktsReady:
		return "MultiplePktsReady"
	case GenericError:
		return "GenericError"
	default:
		return "Unknown"
	}
}

// Frame is an opaque parsed-packet structure owned by the producer until
// it is enqueued or handed to a callback, at which point ownership
// transfers to the consumer.
type Frame struct {
	// Flags are forwarded verbatim from the configuration.
	Flags int32
	// Payload is the frame's parsed/transformed contents.
	Payload []byte
	// SSRC identifies the originating source, when known.
	SSRC uint32
}

// PrimaryFunc classifies or transforms a raw datagram. It must not retain
// data beyond the call unless it copies it into the returned Frame.
type PrimaryFunc func(length int, data []byte, flags int32, out **Frame) Result

// AuxiliaryFunc is dispatched after a primary handler reports PktModified.
type AuxiliaryFunc func(ctx interface{}, flags int32, frame **Frame) Result

// GetterFunc drains additional frames from a MultiplePktsReady auxiliary.
type GetterFunc func(ctx interface{}, frame **Frame) Result

type auxiliaryEntry struct {
	handler AuxiliaryFunc
	getter  GetterFunc
	ctx     interface{}
}

type primaryEntry struct {
	handler PrimaryFunc
	aux     []auxiliaryEntry
}

// Registry is a keyed set of primary handlers, each carrying an ordered
// list of auxiliary handlers. The zero value is ready to use.
//
// Handlers are iterated in insertion order of primaries; for each primary
// that reports PktModified, its auxiliaries are iterated in insertion
// order.
type Registry struct {
	order []uint32
	byKey map[uint32]*primaryEntry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{byKey: make(map[uint32]*primaryEntry)}
}

// InstallPrimary registers a primary handler under a freshly chosen,
// uniformly random, non-zero, unused 32-bit key. Returns 0 if handler is
// nil.
func (reg *Registry) InstallPrimary(h PrimaryFunc) uint32 {
	if h == nil {
		return 0
	}
	if reg.byKey == nil {
		reg.byKey = make(map[uint32]*primaryEntry)
	}

	var key uint32
	for {
		key = rand.Uint32()
		if key == 0 {
			continue
		}
		if _, exists := reg.byKey[key]; !exists {
			break
		}
	}

	reg.byKey[key] = &primaryEntry{handler: h}
	reg.order = append(reg.order, key)
	return key
}

// ErrUnknownKey is returned by InstallAuxiliary when the key is not
// registered.
var ErrUnknownKey = errors.New("handler: unknown primary key")

// ErrNilHandler is returned by InstallAuxiliary when handler is nil.
var ErrNilHandler = errors.New("handler: nil auxiliary handler")

// InstallAuxiliary appends an auxiliary handler+getter pair to the
// primary identified by key, in insertion order. ctx may be nil for
// closure-style auxiliaries that capture their own state.
func (reg *Registry) InstallAuxiliary(key uint32, h AuxiliaryFunc, getter GetterFunc, ctx interface{}) error {
	if h == nil {
		return errors.WithStack(ErrNilHandler)
	}
	entry, ok := reg.byKey[key]
	if !ok {
		return errors.Wrapf(ErrUnknownKey, "key %08x", key)
	}
	entry.aux = append(entry.aux, auxiliaryEntry{handler: h, getter: getter, ctx: ctx})
	return nil
}

// Emit is called by the Processor once per frame that should be delivered
// downstream (a PktReady from an auxiliary, or each frame drained by
// MultiplePktsReady).
type Emit func(*Frame)

// Dispatch runs the full primary/auxiliary chain for one datagram, in
// insertion order, emitting every produced frame via emit.
func (reg *Registry) Dispatch(length int, data []byte, flags int32, emit Emit) {
	for _, key := range reg.order {
		entry := reg.byKey[key]
		var out *Frame
		result := entry.handler(length, data, flags, &out)
		switch result {
		case PktNotHandled:
			continue
		case PktModified:
			reg.dispatchAuxiliaries(entry, flags, out, emit)
		case Ok:
			// Consumed, not a frame; no auxiliaries to run.
		case GenericError:
			log.Error("handler: primary %08x: generic error", key)
		default:
			log.Warn("handler: primary %08x: unknown result %v", key, result)
		}
	}
}

func (reg *Registry) dispatchAuxiliaries(entry *primaryEntry, flags int32, frame *Frame, emit Emit) {
	for _, aux := range entry.aux {
		result := aux.handler(aux.ctx, flags, &frame)
		switch result {
		case Ok:
			continue
		case PktReady:
			if frame != nil {
				emit(frame)
			}
		case MultiplePktsReady:
			reg.drainMultiple(aux, emit)
		case PktNotHandled, PktModified:
			continue
		case GenericError:
			log.Error("handler: auxiliary: generic error")
			return
		default:
			log.Warn("handler: auxiliary: unknown result %v", result)
		}
	}
}

func (reg *Registry) drainMultiple(aux auxiliaryEntry, emit Emit) {
	if aux.getter == nil {
		return
	}
	for {
		var out *Frame
		result := aux.getter(aux.ctx, &out)
		if result != PktReady {
			return
		}
		if out != nil {
			emit(out)
		}
	}
}
