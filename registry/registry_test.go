package registry

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rigado/bthal"
	"github.com/rigado/bthal/adapter"
)

type fakeAdapter struct {
	state adapter.State
}

func (f *fakeAdapter) State() adapter.State { return f.state }

func (f *fakeAdapter) Snapshot() adapter.Info { return adapter.Info{State: f.state} }

func TestAddSequence(t *testing.T) {
	r := New(&fakeAdapter{state: adapter.Ready})

	h1, err := r.Add([]byte{0x35, 0x03}, 0x02)
	require.NoError(t, err)
	h2, err := r.Add([]byte{0x35, 0x05}, 0x10)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), h1)
	assert.Equal(t, uint32(2), h2)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, uint8(0x12), r.Hints())

	rec, ok := r.records[h2]
	require.True(t, ok)
	assert.Equal(t, Record{Handle: 2, Descriptor: []byte{0x35, 0x05}, Hint: 0x10}, *rec)
}

func TestAddCopiesDescriptor(t *testing.T) {
	r := New(&fakeAdapter{state: adapter.Ready})
	d := []byte{1, 2, 3}
	h, err := r.Add(d, 0)
	require.NoError(t, err)

	d[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, r.records[h].Descriptor)
}

func TestAddNotReady(t *testing.T) {
	for _, st := range []adapter.State{adapter.Uninitialized, adapter.Initializing, adapter.Unregistered} {
		r := New(&fakeAdapter{state: st})
		_, err := r.Add([]byte{1}, 0)
		assert.Equal(t, bthal.ErrNotReady, errors.Cause(err), "state %v", st)
		assert.Zero(t, r.Len())
	}
}

func TestAddEmptyDescriptor(t *testing.T) {
	r := New(&fakeAdapter{state: adapter.Ready})
	_, err := r.Add(nil, 0)
	assert.Equal(t, bthal.ErrInvalidParams, errors.Cause(err))
	assert.Zero(t, r.Len())

	// a rejected add does not consume a handle
	h, err := r.Add([]byte{1}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), h)
}

func TestRemove(t *testing.T) {
	a := &fakeAdapter{state: adapter.Ready}
	r := New(a)
	h, err := r.Add([]byte{1}, 0)
	require.NoError(t, err)

	a.state = adapter.Unregistered
	require.NoError(t, r.Remove(h))
	assert.Zero(t, r.Len())

	err = r.Remove(h)
	assert.Equal(t, bthal.ErrNotFound, errors.Cause(err))

	err = r.Remove(42)
	assert.Equal(t, bthal.ErrNotFound, errors.Cause(err))
}

func TestHandlesNotReused(t *testing.T) {
	a := &fakeAdapter{state: adapter.Ready}
	r := New(a)

	h1, _ := r.Add([]byte{1}, 0)
	h2, _ := r.Add([]byte{2}, 0)
	require.NoError(t, r.Remove(h2))
	assert.Equal(t, 1, r.PurgeAll())

	a.state = adapter.Unregistered
	assert.Zero(t, r.PurgeAll())
	a.state = adapter.Ready

	h3, err := r.Add([]byte{3}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), h3)
	assert.NotEqual(t, h1, h3)

	_, ok := r.records[h1]
	assert.False(t, ok)
}

func TestHandleSpaceExhausted(t *testing.T) {
	r := New(&fakeAdapter{state: adapter.Ready})
	r.last = ^uint32(0)

	_, err := r.Add([]byte{1}, 0)
	assert.Error(t, err)
	assert.Zero(t, r.Len())
}
