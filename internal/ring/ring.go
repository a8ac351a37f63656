// Package ring implements the fixed-slot datagram ring buffer that sits
// between the Receiver and Processor goroutines of the reception core.
//
// Each slot holds one UDP datagram. The buffer exposes the minimal surface
// the Receiver and Processor need: a read-only view of a slot, an
// exclusive write into a slot, and a grow operation that inserts fresh
// slots ahead of the producer under the same lock the Processor holds
// during a drain (see internal/mux/endpoint.go for the circular-queue
// shape this generalizes).
package ring

import (
	"sync"

	"github.com/pkg/errors"
)

// SlotCapacity is the maximum UDP payload that fits a single slot:
// 65535 minus the IPv4 and UDP header overhead.
const SlotCapacity = 65535 - 20 - 8

// notRead is the sentinel cursor value meaning "never read/written",
// distinct from any valid slot index.
const notRead = -1

// Slot is a single datagram buffer, owned exclusively by the Ring until a
// read makes its contents visible to the Processor.
type Slot struct {
	Data []byte
	Read int
}

// Ring is a fixed-then-growable sequence of slots with SPSC cursors.
// write_index is written only by the Receiver; read_index is written only
// by the Processor, except during Grow, which runs under lock and may be
// called from the Receiver's goroutine.
type Ring struct {
	mu sync.Mutex

	slots []Slot

	// writeIndex is the index of the most recently completed write, or
	// notRead if nothing has been written yet.
	writeIndex int

	// readIndex is the index of the most recently completed read, or
	// notRead if nothing has been read yet (in which case the first read
	// index is 0).
	readIndex int
}

// New allocates a ring sized to hold approximately totalBytes worth of
// slots, at least one slot.
func New(totalBytes int) *Ring {
	n := totalBytes / SlotCapacity
	if n < 1 {
		n = 1
	}
	return newWithSlots(n)
}

func newWithSlots(n int) *Ring {
	slots := make([]Slot, n)
	for i := range slots {
		slots[i].Data = make([]byte, SlotCapacity)
	}
	return &Ring{
		slots:      slots,
		writeIndex: notRead,
		readIndex:  notRead,
	}
}

// Len returns the current slot count N.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Next returns (i+1) mod N for the ring's current size.
func (r *Ring) Next(i int) int {
	r.mu.Lock()
	n := len(r.slots)
	r.mu.Unlock()
	return next(i, n)
}

func next(i, n int) int {
	return (i + 1) % n
}

// WriteIndex returns the current write cursor (notRead if nothing written).
func (r *Ring) WriteIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeIndex
}

// ReadIndex returns the current read cursor (notRead if nothing read).
func (r *Ring) ReadIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readIndex
}

// FirstReadIndex returns the index the Processor should use for its first
// read, i.e. 0 when nothing has been read yet.
func FirstReadIndex(readIndex, n int) int {
	if readIndex == notRead {
		return 0
	}
	return next(readIndex, n)
}

// NextWriteSlot returns the index the Receiver would write into next,
// i.e. next(writeIndex) treating an unwritten ring as index -1 so the
// first write lands at slot 0.
func (r *Ring) NextWriteSlot() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.slots)
	if r.writeIndex == notRead {
		return 0
	}
	return next(r.writeIndex, n)
}

// WouldOverrun reports whether writing into candidate slot w would collide
// with the Processor's unread frontier, i.e. w == readIndex's "first
// unread" position is about to be overwritten before being read.
func (r *Ring) WouldOverrun(w int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readIndex == notRead {
		// Nothing has been read yet: the first unread slot is 0, so the
		// read cursor sits (mod N) at the last slot. Keeping that slot
		// free holds occupancy to at most N-1.
		return w == len(r.slots)-1
	}
	return w == r.readIndex
}

// IsEmpty reports whether the Processor has drained every slot the
// Receiver has published, i.e. there is nothing new to read.
func (r *Ring) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isEmpty()
}

// IsEmptyLocked is IsEmpty for a caller that already holds Lock.
func (r *Ring) IsEmptyLocked() bool {
	return r.isEmpty()
}

func (r *Ring) isEmpty() bool {
	if r.writeIndex == notRead {
		return true
	}
	return r.readIndex == r.writeIndex
}

// SlotAt returns a read-only view of the slot at index i. Callers other
// than the Receiver must not mutate the returned Data slice's contents.
func (r *Ring) SlotAt(i int) Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[i]
}

// SlotAtLocked is SlotAt for a caller that already holds Lock, e.g. the
// Processor mid-drain.
func (r *Ring) SlotAtLocked(i int) Slot {
	return r.slots[i]
}

// ReadIndexLocked is ReadIndex for a caller that already holds Lock.
func (r *Ring) ReadIndexLocked() int {
	return r.readIndex
}

// WriteIndexLocked is WriteIndex for a caller that already holds Lock.
func (r *Ring) WriteIndexLocked() int {
	return r.writeIndex
}

// LenLocked is Len for a caller that already holds Lock.
func (r *Ring) LenLocked() int {
	return len(r.slots)
}

// NextLocked is Next for a caller that already holds Lock.
func (r *Ring) NextLocked(i int) int {
	return next(i, len(r.slots))
}

// BeginWrite returns the mutable Data buffer for slot i, for the Receiver
// to fill via its socket read.
func (r *Ring) BeginWrite(i int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[i].Data
}

// CommitWrite records how many bytes were received into slot i and
// publishes writeIndex = i. Must be called after the slot's bytes are
// fully written.
func (r *Ring) CommitWrite(i, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[i].Read = n
	r.writeIndex = i
}

// Lock acquires the ring's exclusive lock. The Processor holds this for
// the duration of a drain; Grow also requires it. Exposed so the
// Processor can serialize its drain against concurrent growth.
func (r *Ring) Lock() {
	r.mu.Lock()
}

// Unlock releases the lock acquired by Lock.
func (r *Ring) Unlock() {
	r.mu.Unlock()
}

// AdvanceRead sets readIndex = i. Must be called by the Processor before
// inspecting slot i's contents. Caller must hold the lock
// if calling concurrently with Grow; the Processor's drain loop already
// does via Lock/Unlock.
func (r *Ring) AdvanceRead(i int) {
	r.readIndex = i
}

// AdvanceReadLocked is like AdvanceRead but acquires the lock itself, for
// callers outside an existing critical section.
func (r *Ring) AdvanceReadLocked(i int) {
	r.mu.Lock()
	r.readIndex = i
	r.mu.Unlock()
}

// grow inserts k fresh empty slots immediately after the current
// writeIndex, and shifts readIndex forward by k when it lies at or beyond
// the insertion point, so that already-buffered, unread datagrams remain
// unread and in order. The caller must hold the lock; GrowLocked acquires
// it itself.
func (r *Ring) grow(k int) {
	if k < 1 {
		k = 1
	}
	at := r.writeIndex + 1
	if r.writeIndex == notRead {
		at = 0
	}
	// Build fresh slots.
	fresh := make([]Slot, k)
	for i := range fresh {
		fresh[i].Data = make([]byte, SlotCapacity)
	}

	grown := make([]Slot, 0, len(r.slots)+k)
	grown = append(grown, r.slots[:at]...)
	grown = append(grown, fresh...)
	grown = append(grown, r.slots[at:]...)
	r.slots = grown

	// Any cursor that pointed at or beyond the insertion point shifts
	// right by k, so it keeps referring to the same logical slot. When
	// growth is triggered by an imminent overrun with readIndex equal to
	// at, this leaves the k fresh slots sitting between the unchanged
	// writeIndex and the shifted readIndex. When at is past the last slot
	// (or nothing has been read yet), readIndex is left as it is and the
	// fresh slots are still the next ones the writer reaches.
	if r.writeIndex != notRead && r.writeIndex >= at {
		r.writeIndex += k
	}
	if r.readIndex != notRead && r.readIndex >= at {
		r.readIndex += k
	}
}

// GrowLocked acquires the lock, grows by k slots, and releases it. Used by
// the Receiver when it detects impending overrun.
func (r *Ring) GrowLocked(k int) {
	r.mu.Lock()
	r.grow(k)
	r.mu.Unlock()
}

// GrowthSize computes the default growth amount for a ring currently
// holding n slots: max(1, n/4).
func GrowthSize(n int) int {
	k := n / 4
	if k < 1 {
		k = 1
	}
	return k
}

// ErrEmptyRing is returned by operations that require at least one slot.
var ErrEmptyRing = errors.New("ring: buffer has zero slots")
