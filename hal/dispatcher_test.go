package hal

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rigado/bthal"
	"github.com/rigado/bthal/adapter"
	"github.com/rigado/bthal/registry"
)

var testController = adapter.ControllerInfo{
	Address: bthal.Address{0x06, 0x05, 0x04, 0x03, 0x02, 0x01},
	Name:    "hal-test",
}

// fakeReloader makes an unregistered adapter Ready again the way the bridge
// does after re-reading the controller info.
type fakeReloader struct {
	a     *adapter.Adapter
	calls int
	err   error
}

func (f *fakeReloader) Reload(ctx context.Context) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return f.a.SetReady(testController)
}

type fixture struct {
	a  *adapter.Adapter
	r  *registry.Registry
	rl *fakeReloader
	d  *Dispatcher
}

func newFixture(t *testing.T, ready bool) *fixture {
	t.Helper()
	a := adapter.New(0)
	if ready {
		require.NoError(t, a.BeginInit())
		require.NoError(t, a.SetReady(testController))
	}
	r := registry.New(a)
	rl := &fakeReloader{a: a}
	return &fixture{a: a, r: r, rl: rl, d: NewDispatcher(a, r, rl)}
}

func (f *fixture) do(t *testing.T, ch ChannelID, op Opcode, payload ...byte) Reply {
	t.Helper()
	b, err := Frame{Opcode: op, Payload: payload}.Marshal()
	require.NoError(t, err)
	return f.d.Handle(context.Background(), ch, b)
}

func TestAddRecordScenario(t *testing.T) {
	f := newFixture(t, true)

	rep := f.do(t, 1, OpAddRecord, 0x10, 'O', 'B', 'E', 'X')
	require.Equal(t, StatusSuccess, rep.Status)
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x00}, rep.Result)

	rep = f.do(t, 1, OpAddRecord, 0x10, 'O', 'B', 'E', 'X')
	require.Equal(t, StatusSuccess, rep.Status)
	assert.Equal(t, []byte{0x02, 0x00, 0x00, 0x00}, rep.Result)
	assert.Equal(t, uint8(0x10), f.r.Hints())

	rep = f.do(t, 1, OpRemoveRecord, 0x01, 0x00, 0x00, 0x00)
	assert.Equal(t, StatusSuccess, rep.Status)
	assert.Empty(t, rep.Result)

	rep = f.do(t, 1, OpRemoveRecord, 0x01, 0x00, 0x00, 0x00)
	assert.Equal(t, StatusNotFound, rep.Status)
	assert.Equal(t, 1, f.r.Len())

	rep = f.do(t, 1, OpRemoveRecord, 0x02, 0x00, 0x00, 0x00)
	assert.Equal(t, StatusSuccess, rep.Status)
	assert.Zero(t, f.r.Len())
}

func TestAddRecordBeforeInit(t *testing.T) {
	f := newFixture(t, false)

	rep := f.do(t, 1, OpAddRecord, 0x00, 0x35, 0x03)
	assert.Equal(t, StatusNotReady, rep.Status)
	assert.Empty(t, rep.Result)
	assert.Zero(t, f.r.Len())

	// not ready wins over unknown opcode and bad payload before init
	assert.Equal(t, StatusNotReady, f.do(t, 1, 0x7f).Status)
	assert.Equal(t, StatusNotReady, f.do(t, 1, OpRemoveRecord, 0x01).Status)
	assert.Equal(t, StatusNotReady, f.do(t, 1, OpRegister).Status)
	assert.False(t, f.a.Snapshot().Registered)
}

func TestPreInitCommands(t *testing.T) {
	f := newFixture(t, false)

	rep := f.do(t, 1, OpReadCommands)
	require.Equal(t, StatusSuccess, rep.Status)
	assert.Equal(t, Supported(), binary.LittleEndian.Uint16(rep.Result))

	rep = f.do(t, 1, OpReadInfo)
	require.Equal(t, StatusSuccess, rep.Status)
	var ai AdapterInfo
	require.NoError(t, ai.Unmarshal(rep.Result))
	assert.Equal(t, adapter.Uninitialized, ai.State)
	assert.True(t, ai.Address.IsZero())

	// payload checks still apply to pre-init opcodes
	assert.Equal(t, StatusInvalidParams, f.do(t, 1, OpReadInfo, 0x00).Status)
}

func TestReadInfoReady(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.r.Add([]byte{1}, 0x04)
	require.NoError(t, err)

	rep := f.do(t, 1, OpReadInfo)
	require.Equal(t, StatusSuccess, rep.Status)
	var ai AdapterInfo
	require.NoError(t, ai.Unmarshal(rep.Result))
	assert.Equal(t, adapter.Ready, ai.State)
	assert.Equal(t, testController.Address, ai.Address)
	assert.Equal(t, "hal-test", ai.Name)
	assert.Equal(t, uint8(0x04), ai.Hints)
}

func TestFramingAndParams(t *testing.T) {
	f := newFixture(t, true)

	rep := f.d.Handle(context.Background(), 1, []byte{0x05, 0x09, 0x00, 0x00})
	assert.Equal(t, StatusInvalidParams, rep.Status)
	rep = f.d.Handle(context.Background(), 1, []byte{0x05})
	assert.Equal(t, StatusInvalidParams, rep.Status)

	assert.Equal(t, StatusUnsupported, f.do(t, 1, 0x7f).Status)
	assert.Equal(t, StatusInvalidParams, f.do(t, 1, OpAddRecord, 0x00).Status)
	assert.Equal(t, StatusInvalidParams, f.do(t, 1, OpRemoveRecord, 0x01, 0x00).Status)
	assert.Equal(t, StatusInvalidParams, f.do(t, 1, OpRegister, 0x00).Status)
	assert.Zero(t, f.r.Len())
}

func TestRegisterUnregister(t *testing.T) {
	f := newFixture(t, true)

	require.Equal(t, StatusSuccess, f.do(t, 1, OpRegister).Status)
	assert.Equal(t, uint64(1), f.a.Snapshot().Owner)
	assert.Equal(t, StatusBusy, f.do(t, 2, OpRegister).Status)
	assert.Equal(t, StatusBusy, f.do(t, 1, OpRegister).Status)

	f.do(t, 1, OpAddRecord, 0x00, 0x01)
	f.do(t, 1, OpAddRecord, 0x00, 0x02)

	rep := f.do(t, 1, OpUnregister)
	require.Equal(t, StatusSuccess, rep.Status)
	assert.Equal(t, []byte{0x02, 0x00}, rep.Result)
	assert.Equal(t, adapter.Unregistered, f.a.State())
	assert.Zero(t, f.r.Len())

	// records are rejected until the adapter is Ready again
	assert.Equal(t, StatusNotReady, f.do(t, 1, OpAddRecord, 0x00, 0x03).Status)
	assert.Equal(t, StatusNotReady, f.do(t, 1, OpUnregister).Status)

	// register reloads the adapter
	require.Equal(t, StatusSuccess, f.do(t, 2, OpRegister).Status)
	assert.Equal(t, 1, f.rl.calls)
	assert.Equal(t, adapter.Ready, f.a.State())
	assert.Equal(t, uint64(2), f.a.Snapshot().Owner)

	rep = f.do(t, 2, OpAddRecord, 0x00, 0x03)
	require.Equal(t, StatusSuccess, rep.Status)
	assert.Equal(t, []byte{0x03, 0x00, 0x00, 0x00}, rep.Result)
}

func TestRegisterReloadFails(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.a.Unregister())
	f.rl.err = errors.New("controller gone")

	assert.Equal(t, StatusFailed, f.do(t, 1, OpRegister).Status)
	assert.Equal(t, adapter.Unregistered, f.a.State())
	assert.False(t, f.a.Snapshot().Registered)
}

func TestRegisterWithoutReloader(t *testing.T) {
	a := adapter.New(0)
	require.NoError(t, a.BeginInit())
	require.NoError(t, a.SetReady(testController))
	require.NoError(t, a.Unregister())
	d := NewDispatcher(a, registry.New(a), nil)

	b, _ := Frame{Opcode: OpRegister}.Marshal()
	assert.Equal(t, StatusNotReady, d.Handle(context.Background(), 1, b).Status)
}

func TestRelease(t *testing.T) {
	f := newFixture(t, true)
	require.Equal(t, StatusSuccess, f.do(t, 1, OpRegister).Status)
	f.do(t, 1, OpAddRecord, 0x00, 0x01)

	// other channels don't hold the registration
	f.d.Release(2)
	assert.True(t, f.a.Snapshot().Registered)
	assert.Equal(t, 1, f.r.Len())

	f.d.Release(1)
	assert.False(t, f.a.Snapshot().Registered)
	assert.Equal(t, adapter.Unregistered, f.a.State())
	assert.Zero(t, f.r.Len())

	// nothing left to release
	f.d.Release(1)
	assert.Equal(t, adapter.Unregistered, f.a.State())
}

func TestRemoveRecordNotReady(t *testing.T) {
	f := newFixture(t, true)
	rep := f.do(t, 1, OpAddRecord, 0x00, 0x01)
	require.Equal(t, StatusSuccess, rep.Status)
	require.NoError(t, f.a.Unregister())

	// purge happens through the dispatcher only, the record is still there
	assert.Equal(t, StatusSuccess, f.do(t, 1, OpRemoveRecord, rep.Result...).Status)
	assert.Zero(t, f.r.Len())
}

// packetConn feeds queued packets to Serve and collects the replies.
type packetConn struct {
	mu      sync.Mutex
	in      [][]byte
	replies [][]byte
}

func (c *packetConn) Read(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.in) == 0 {
		return 0, io.EOF
	}
	p := c.in[0]
	c.in = c.in[1:]
	return copy(b, p), nil
}

func (c *packetConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, append([]byte(nil), b...))
	return len(b), nil
}

func TestServeOrder(t *testing.T) {
	f := newFixture(t, true)

	var in [][]byte
	for _, fr := range []Frame{
		{Opcode: OpRegister},
		{Opcode: OpAddRecord, Payload: []byte{0x00, 0x01}},
		{Opcode: OpAddRecord, Payload: []byte{0x00, 0x02}},
		{Opcode: OpRemoveRecord, Payload: []byte{0x01, 0x00, 0x00, 0x00}},
		{Opcode: 0x7f},
		{Opcode: OpAddRecord, Payload: []byte{0x00, 0x03}},
	} {
		b, err := fr.Marshal()
		require.NoError(t, err)
		in = append(in, b)
	}
	in = append(in, []byte{0x01})

	conn := &packetConn{in: in}
	require.NoError(t, f.d.Serve(context.Background(), 9, conn))

	want := []Reply{
		{Status: StatusSuccess, Result: []byte{}},
		{Status: StatusSuccess, Result: []byte{0x01, 0x00, 0x00, 0x00}},
		{Status: StatusSuccess, Result: []byte{0x02, 0x00, 0x00, 0x00}},
		{Status: StatusSuccess, Result: []byte{}},
		{Status: StatusUnsupported, Result: []byte{}},
		{Status: StatusSuccess, Result: []byte{0x03, 0x00, 0x00, 0x00}},
		{Status: StatusInvalidParams, Result: []byte{}},
	}
	require.Len(t, conn.replies, len(want))
	for i, b := range conn.replies {
		rep, err := DecodeReply(b)
		require.NoError(t, err)
		assert.Equal(t, want[i], rep, "reply %d", i)
	}

	// the channel closed, so its registration was released
	assert.False(t, f.a.Snapshot().Registered)
	assert.Zero(t, f.r.Len())
}

func TestServeCancelled(t *testing.T) {
	f := newFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b, _ := Frame{Opcode: OpReadInfo}.Marshal()
	conn := &packetConn{in: [][]byte{b}}
	require.NoError(t, f.d.Serve(ctx, 1, conn))
	assert.Empty(t, conn.replies)
}
