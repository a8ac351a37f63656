package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func fill(r *Ring, data []byte) int {
	w := r.NextWriteSlot()
	buf := r.BeginWrite(w)
	n := copy(buf, data)
	r.CommitWrite(w, n)
	return w
}

func TestEnqueueDequeueOrderNoGrowth(t *testing.T) {
	r := newWithSlots(8)

	payloads := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc"), []byte("dddd")}
	for _, p := range payloads {
		fill(r, p)
	}

	readIdx := r.ReadIndex()
	n := r.Len()
	var got []string
	for readIdx == notRead || readIdx != r.WriteIndex() {
		next := FirstReadIndex(readIdx, n)
		r.AdvanceReadLocked(next)
		s := r.SlotAt(next)
		got = append(got, string(s.Data[:s.Read]))
		readIdx = next
	}

	assert.Equal(t, []string{"a", "bb", "ccc", "dddd"}, got)
}

func TestSentinelCursorsDistinctFromValidIndices(t *testing.T) {
	r := newWithSlots(4)
	assert.Equal(t, notRead, r.ReadIndex())
	assert.Equal(t, notRead, r.WriteIndex())
	assert.Equal(t, 0, r.NextWriteSlot())
}

func TestGrowthPreservesOrderAndDoesNotLoseData(t *testing.T) {
	r := newWithSlots(3)

	// Fill to the point of overrun: 2 writes into a 3-slot ring leaves one
	// slot free by design (occupancy <= N-1), so write two, read none, and
	// the third write would collide.
	fill(r, []byte("one"))
	fill(r, []byte("two"))

	w := r.NextWriteSlot()
	if r.WouldOverrun(w) {
		r.GrowLocked(GrowthSize(r.Len()))
		w = r.NextWriteSlot()
	}
	fill(r, []byte("three"))

	assert.Equal(t, 4, r.Len())

	readIdx := r.ReadIndex()
	n := r.Len()
	var got []string
	for readIdx == notRead || readIdx != r.WriteIndex() {
		next := FirstReadIndex(readIdx, n)
		r.AdvanceReadLocked(next)
		s := r.SlotAt(next)
		got = append(got, string(s.Data[:s.Read]))
		readIdx = next
	}

	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestIsEmpty(t *testing.T) {
	r := newWithSlots(2)
	assert.True(t, r.IsEmpty())

	fill(r, []byte("x"))
	assert.False(t, r.IsEmpty())

	r.AdvanceReadLocked(FirstReadIndex(r.ReadIndex(), r.Len()))
	assert.True(t, r.IsEmpty())
}
