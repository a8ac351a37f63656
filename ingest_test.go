package ingest

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernbridge/rtpcore/internal/handler"
)

type fakeAddr struct{}

func (fakeAddr) Network() string { return "udp" }
func (fakeAddr) String() string  { return "127.0.0.1:0" }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

// fakeSocket is an in-memory Socket: ReadFrom returns queued packets in
// order, or a timeout error once the queue is empty.
type fakeSocket struct {
	mu      sync.Mutex
	packets [][]byte
}

func (s *fakeSocket) push(b []byte) {
	s.mu.Lock()
	s.packets = append(s.packets, append([]byte(nil), b...))
	s.mu.Unlock()
}

func (s *fakeSocket) SetReadDeadline(time.Time) error { return nil }

func (s *fakeSocket) ReadFrom(p []byte) (int, net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.packets) == 0 {
		return 0, nil, timeoutErr{}
	}
	pkt := s.packets[0]
	s.packets = s.packets[1:]
	return copy(p, pkt), fakeAddr{}, nil
}

// passthroughRegistry installs one primary that always reports
// PktModified, and one auxiliary that always reports PktReady, copying
// the raw datagram into the frame's payload.
func passthroughRegistry() *handler.Registry {
	reg := handler.New()
	key := reg.InstallPrimary(func(length int, data []byte, flags int32, out **handler.Frame) handler.Result {
		*out = &handler.Frame{Payload: append([]byte(nil), data[:length]...), Flags: flags}
		return handler.PktModified
	})
	_ = reg.InstallAuxiliary(key, func(ctx interface{}, flags int32, frame **handler.Frame) handler.Result {
		return handler.PktReady
	}, nil, nil)
	return reg
}

func TestPullSingleDatagram(t *testing.T) {
	sock := &fakeSocket{}
	core, err := New(Config{Socket: sock, Registry: passthroughRegistry(), BufferSizeBytes: 64 * 1024})
	require.NoError(t, err)

	core.Start()
	defer core.Stop()

	sock.push([]byte("hello world this is an rtp-ish packet"))

	frame := core.Endpoint().PullBlocking()
	require.NotNil(t, frame)
	assert.Equal(t, "hello world this is an rtp-ish packet", string(frame.Payload))

	assert.Nil(t, core.Endpoint().PullWithTimeout(20*time.Millisecond))
}

func TestPushModeCountsAllFrames(t *testing.T) {
	sock := &fakeSocket{}

	var mu sync.Mutex
	var count int
	hook := func(ctx interface{}, frame *handler.Frame) {
		mu.Lock()
		count++
		mu.Unlock()
	}

	core, err := New(Config{
		Socket:          sock,
		Registry:        passthroughRegistry(),
		BufferSizeBytes: 64 * 1024,
		PushHook:        hook,
	})
	require.NoError(t, err)

	core.Start()
	defer core.Stop()

	const total = 1000
	for i := 0; i < total; i++ {
		sock.push([]byte("x"))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == total
	}, 2*time.Second, time.Millisecond)
}

func TestAuxiliaryMultiFrameDeliversExactlyFive(t *testing.T) {
	sock := &fakeSocket{}

	reg := handler.New()
	const wantFrames = 5
	remaining := wantFrames
	var mu sync.Mutex

	key := reg.InstallPrimary(func(length int, data []byte, flags int32, out **handler.Frame) handler.Result {
		return handler.PktModified
	})
	_ = reg.InstallAuxiliary(key, func(ctx interface{}, flags int32, frame **handler.Frame) handler.Result {
		return handler.MultiplePktsReady
	}, func(ctx interface{}, frame **handler.Frame) handler.Result {
		mu.Lock()
		defer mu.Unlock()
		if remaining == 0 {
			return handler.Ok
		}
		remaining--
		*frame = &handler.Frame{}
		return handler.PktReady
	}, nil)

	core, err := New(Config{Socket: sock, Registry: reg, BufferSizeBytes: 64 * 1024})
	require.NoError(t, err)

	core.Start()
	defer core.Stop()

	sock.push([]byte("one datagram, five frames"))

	got := 0
	for i := 0; i < wantFrames; i++ {
		frame := core.Endpoint().PullBlocking()
		require.NotNil(t, frame)
		got++
	}
	assert.Equal(t, wantFrames, got)
	assert.Nil(t, core.Endpoint().PullWithTimeout(20*time.Millisecond))
}

func TestBackPressureGrowsRingWithoutLoss(t *testing.T) {
	sock := &fakeSocket{}

	var mu sync.Mutex
	var delivered []int
	hook := func(ctx interface{}, frame *handler.Frame) {
		time.Sleep(time.Millisecond)
		mu.Lock()
		var seq int
		for _, b := range frame.Payload {
			seq = seq*10 + int(b-'0')
		}
		delivered = append(delivered, seq)
		mu.Unlock()
	}

	core, err := New(Config{
		Socket:          sock,
		Registry:        passthroughRegistry(),
		BufferSizeBytes: 64 * 1024, // a single slot, so 500 packets force growth
		PushHook:        hook,
	})
	require.NoError(t, err)

	initialSlots := core.Ring().Len()

	core.Start()
	defer core.Stop()

	const total = 500
	for i := 0; i < total; i++ {
		sock.push([]byte(itoa(i)))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) == total
	}, 10*time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, seq := range delivered {
		assert.Equal(t, i, seq, "frames must be delivered in feed order")
	}
	assert.Greater(t, core.Ring().Len(), initialSlots, "ring should have grown under back-pressure")
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
