// Package hal implements the control channel command dispatcher: the frame
// codec, typed requests and the per-channel serving loop.
package hal

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/rigado/bthal"
	"github.com/rigado/bthal/adapter"
	"github.com/rigado/bthal/metrics"
)

// ChannelID identifies a control channel.
type ChannelID uint64

// Adapter is the adapter side the dispatcher needs.
type Adapter interface {
	adapter.Reader
	Register(owner uint64) error
	Unregister() error
}

// Records is the registry side the dispatcher needs.
type Records interface {
	Add(descriptor []byte, hint uint8) (uint32, error)
	Remove(handle uint32) error
	PurgeAll() int
	Len() int
	Hints() uint8
}

// Reloader brings an unregistered adapter back to Ready.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Dispatcher routes control commands to the adapter and the registry.
type Dispatcher struct {
	adapter  Adapter
	records  Records
	reloader Reloader

	// serializes register, unregister and release
	mu sync.Mutex

	logger bthal.Logger
}

// NewDispatcher returns a dispatcher. rl may be nil, in which case an
// unregistered adapter can't be registered again.
func NewDispatcher(a Adapter, r Records, rl Reloader) *Dispatcher {
	return &Dispatcher{
		adapter:  a,
		records:  r,
		reloader: rl,
		logger:   bthal.GetLogger().ChildLogger(map[string]interface{}{"component": "dispatcher"}),
	}
}

// Handle processes one raw request from ch and returns the reply.
func (d *Dispatcher) Handle(ctx context.Context, ch ChannelID, raw []byte) Reply {
	f, err := DecodeFrame(raw)
	if err != nil {
		d.logger.Warnf("channel %d: %v", ch, err)
		metrics.HALCommands.WithLabelValues("framing", StatusInvalidParams.String()).Inc()
		return Reply{Status: StatusInvalidParams}
	}
	return d.Dispatch(ctx, ch, f)
}

// Dispatch processes one decoded frame from ch.
func (d *Dispatcher) Dispatch(ctx context.Context, ch ChannelID, f Frame) Reply {
	start := time.Now()
	result, err := d.dispatch(ctx, ch, f)
	st := StatusOf(err)

	metrics.HALCommands.WithLabelValues(f.Opcode.String(), st.String()).Inc()
	metrics.HALCommandDuration.WithLabelValues(f.Opcode.String()).Observe(time.Since(start).Seconds())

	if err != nil {
		d.logger.Debugf("channel %d: %v: %v", ch, f.Opcode, err)
		return Reply{Status: st}
	}
	return Reply{Status: StatusSuccess, Result: result}
}

func (d *Dispatcher) dispatch(ctx context.Context, ch ChannelID, f Frame) ([]byte, error) {
	if st := d.adapter.State(); st == adapter.Uninitialized && !PreInit(f.Opcode) {
		return nil, errors.Wrapf(bthal.ErrNotReady, "%v in state %v", f.Opcode, st)
	}

	req, err := DecodeRequest(f)
	if err != nil {
		return nil, err
	}

	switch r := req.(type) {
	case ReadCommandsRequest:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, Supported())
		return b, nil
	case ReadInfoRequest:
		return NewAdapterInfo(d.adapter.Snapshot(), d.records.Hints()).Marshal(), nil
	case RegisterRequest:
		return nil, d.register(ctx, ch)
	case UnregisterRequest:
		n, err := d.unregister(ch)
		if err != nil {
			return nil, err
		}
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(n))
		return b, nil
	case AddRecordRequest:
		h, err := d.records.Add(r.Descriptor, r.Hint)
		if err != nil {
			return nil, err
		}
		metrics.Records.Set(float64(d.records.Len()))
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, h)
		return b, nil
	case RemoveRecordRequest:
		if err := d.records.Remove(r.Handle); err != nil {
			return nil, err
		}
		metrics.Records.Set(float64(d.records.Len()))
		return nil, nil
	default:
		return nil, errors.Wrapf(bthal.ErrUnsupported, "request %T", req)
	}
}

func (d *Dispatcher) register(ctx context.Context, ch ChannelID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.adapter.State() == adapter.Unregistered {
		if d.reloader == nil {
			return errors.Wrap(bthal.ErrNotReady, "adapter unregistered")
		}
		if err := d.reloader.Reload(ctx); err != nil {
			return errors.Wrap(err, "can't reload adapter")
		}
	}
	if err := d.adapter.Register(uint64(ch)); err != nil {
		return err
	}
	d.logger.Infof("adapter registered by channel %d", ch)
	return nil
}

func (d *Dispatcher) unregister(ch ChannelID) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.adapter.Unregister(); err != nil {
		return 0, err
	}
	n := d.records.PurgeAll()
	metrics.Records.Set(0)
	d.logger.Infof("adapter unregistered by channel %d, %d records purged", ch, n)
	return n, nil
}

// Release drops the registration held by ch, if any. It runs when a channel
// closes.
func (d *Dispatcher) Release(ch ChannelID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.adapter.Snapshot()
	if !s.Registered || s.Owner != uint64(ch) {
		return
	}
	if err := d.adapter.Unregister(); err != nil {
		d.logger.Warnf("can't release registration of channel %d: %v", ch, err)
		return
	}
	n := d.records.PurgeAll()
	metrics.Records.Set(0)
	d.logger.Infof("channel %d closed, registration released, %d records purged", ch, n)
}

// Serve runs the request loop of one channel until the peer closes it, a
// transport error occurs or ctx is cancelled. Requests are handled one at a
// time in arrival order. The registration held by ch is released on return.
func (d *Dispatcher) Serve(ctx context.Context, ch ChannelID, conn io.ReadWriter) error {
	defer d.Release(ch)

	lg := d.logger.ChildLogger(map[string]interface{}{"channel": ch})
	lg.Debug("serving")

	buf := make([]byte, MaxFrameLength)
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := conn.Read(buf)
		if err == io.EOF {
			lg.Debug("closed by peer")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrapf(err, "channel %d read", ch)
		}

		rep := d.Handle(ctx, ch, buf[:n])
		b, err := rep.Marshal()
		if err != nil {
			lg.Errorf("can't marshal reply: %v", err)
			b, _ = Reply{Status: StatusFailed}.Marshal()
		}
		if _, err := conn.Write(b); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrapf(err, "channel %d write", ch)
		}
	}
}
