package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstallPrimaryKeysAreUniqueAndNeverZero(t *testing.T) {
	reg := New()
	seen := map[uint32]bool{}
	for i := 0; i < 200; i++ {
		key := reg.InstallPrimary(func(int, []byte, int32, **Frame) Result { return Ok })
		assert.NotZero(t, key)
		assert.False(t, seen[key], "duplicate key %08x", key)
		seen[key] = true
	}

	assert.Zero(t, reg.InstallPrimary(nil))
}

func TestInstallAuxiliaryUnknownKey(t *testing.T) {
	reg := New()
	err := reg.InstallAuxiliary(0xdeadbeef, func(interface{}, int32, **Frame) Result { return Ok }, nil, nil)
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestInstallAuxiliaryNilHandler(t *testing.T) {
	reg := New()
	key := reg.InstallPrimary(func(int, []byte, int32, **Frame) Result { return Ok })
	err := reg.InstallAuxiliary(key, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestDispatchAuxiliaryInsertionOrder(t *testing.T) {
	reg := New()
	var order []string

	key := reg.InstallPrimary(func(length int, data []byte, flags int32, out **Frame) Result {
		*out = &Frame{Payload: data}
		return PktModified
	})

	for _, name := range []string{"first", "second", "third"} {
		name := name
		err := reg.InstallAuxiliary(key, func(ctx interface{}, flags int32, frame **Frame) Result {
			order = append(order, name)
			return Ok
		}, nil, nil)
		assert.NoError(t, err)
	}

	reg.Dispatch(3, []byte("abc"), 0, func(*Frame) {})

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestDispatchMultiplePktsReadyYieldsExactlyMFrames(t *testing.T) {
	reg := New()

	key := reg.InstallPrimary(func(length int, data []byte, flags int32, out **Frame) Result {
		return PktModified
	})

	remaining := 5
	err := reg.InstallAuxiliary(key,
		func(ctx interface{}, flags int32, frame **Frame) Result {
			return MultiplePktsReady
		},
		func(ctx interface{}, frame **Frame) Result {
			if remaining == 0 {
				return Ok
			}
			remaining--
			*frame = &Frame{}
			return PktReady
		},
		nil,
	)
	assert.NoError(t, err)

	var frames []*Frame
	reg.Dispatch(0, nil, 0, func(f *Frame) { frames = append(frames, f) })

	assert.Len(t, frames, 5)
}

func TestDispatchSkipsToNextPrimaryOnNotHandled(t *testing.T) {
	reg := New()
	var calledSecond bool

	reg.InstallPrimary(func(int, []byte, int32, **Frame) Result { return PktNotHandled })
	reg.InstallPrimary(func(int, []byte, int32, **Frame) Result {
		calledSecond = true
		return Ok
	})

	reg.Dispatch(0, nil, 0, func(*Frame) {})
	assert.True(t, calledSecond)
}
