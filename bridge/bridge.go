// Package bridge owns the session with the kernel management interface for
// one controller and drives the adapter from Uninitialized to Ready.
package bridge

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/rigado/bthal"
	"github.com/rigado/bthal/adapter"
	"github.com/rigado/bthal/linux/mgmt"
	"github.com/rigado/bthal/metrics"
)

const (
	defaultInitTimeout    = 5 * time.Second
	defaultCommandTimeout = 3 * time.Second

	rxChanSize = 16
	rxBufSize  = 1024
)

// Transport carries management packets. Each Read returns one whole packet;
// a Read returning 0, nil is a read timeout.
type Transport io.ReadWriteCloser

// ReadyFunc is told, exactly once, whether the adapter reached Ready. A nil
// error is success.
type ReadyFunc func(err error)

type handlerFn func(p mgmt.Packet) error

type result struct {
	status uint8
	params []byte
}

// pending is an outstanding request. Responses carry no sequence number, so
// a response resolves the oldest pending request with the same opcode and
// index.
type pending struct {
	seq    uint64
	opcode uint16
	index  uint16
	done   chan result
}

// Bridge is the management protocol session.
type Bridge struct {
	index   uint16
	adapter *adapter.Adapter
	skt     Transport

	initTmo time.Duration
	cmdTmo  time.Duration
	logger  bthal.Logger

	muSent sync.Mutex
	seq    uint64
	sent   []*pending

	evth map[uint16]handlerFn

	sktRxChan chan []byte

	muStart sync.Mutex
	started bool

	// ready is armed by Start and cleared when it fires or on close.
	muReady sync.Mutex
	ready   ReadyFunc

	muClose sync.Mutex
	done    chan struct{}

	// lost is closed when the transport fails; err holds the reason.
	muErr sync.Mutex
	lost  chan struct{}
	err   error
}

// New returns a bridge for controller index over t, updating a.
func New(index uint16, a *adapter.Adapter, t Transport, opts ...bthal.Option) (*Bridge, error) {
	b := &Bridge{
		index:     index,
		adapter:   a,
		skt:       t,
		initTmo:   defaultInitTimeout,
		cmdTmo:    defaultCommandTimeout,
		logger:    bthal.GetLogger().ChildLogger(map[string]interface{}{"component": "bridge", "index": index}),
		evth:      map[uint16]handlerFn{},
		sktRxChan: make(chan []byte, rxChanSize),
		done:      make(chan struct{}),
		lost:      make(chan struct{}),
	}
	if err := b.Option(opts...); err != nil {
		return nil, errors.Wrap(err, "can't set options")
	}

	b.evth[mgmt.EvtCommandComplete] = b.handleCommandComplete
	b.evth[mgmt.EvtCommandStatus] = b.handleCommandStatus
	b.evth[mgmt.EvtControllerError] = b.handleControllerError
	b.evth[mgmt.EvtIndexAdded] = b.handleIndexAdded
	b.evth[mgmt.EvtIndexRemoved] = b.handleIndexRemoved
	b.evth[mgmt.EvtNewSettings] = b.handleNewSettings
	b.evth[mgmt.EvtClassOfDevChanged] = b.handleClassOfDevChanged
	b.evth[mgmt.EvtLocalNameChanged] = b.handleLocalNameChanged

	return b, nil
}

// Option sets the options specified.
func (b *Bridge) Option(opts ...bthal.Option) error {
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return err
		}
	}
	return nil
}

// Start opens the session and requests the adapter info. It returns once the
// request is under way; cb reports the outcome. Cancelling ctx or closing the
// bridge before the response arrives abandons initialization and cb never
// fires.
func (b *Bridge) Start(ctx context.Context, cb ReadyFunc) error {
	b.muStart.Lock()
	defer b.muStart.Unlock()

	if b.started {
		return errors.New("bridge already started")
	}
	if !b.isOpen() {
		return bthal.ErrClosed
	}
	if err := b.adapter.BeginInit(); err != nil {
		return err
	}
	b.started = true

	b.muReady.Lock()
	b.ready = cb
	b.muReady.Unlock()

	go b.sktReadLoop()
	go b.sktProcessLoop()
	go b.initialize(ctx)
	return nil
}

func (b *Bridge) initialize(ctx context.Context) {
	ictx, cancel := context.WithTimeout(ctx, b.initTmo)
	defer cancel()

	b.logger.Info("read controller info")
	ci, err := b.readInfo(ictx)

	switch {
	case ctx.Err() != nil || !b.isOpen():
		// abandoned
		b.adapter.FailInit()
		b.disarm()
		b.logger.Info("initialization abandoned")
		return

	case err != nil:
		b.adapter.FailInit()
		b.logger.Errorf("initialization failed: %v", err)
		b.fire(errors.Wrap(err, "can't read controller info"))
		return
	}

	if err := b.adapter.SetReady(ci); err != nil {
		b.adapter.FailInit()
		b.fire(err)
		return
	}
	b.logger.Infof("adapter %v ready, settings 0x%08x, name %q", ci.Address, ci.CurrentSettings, ci.Name)
	b.fire(nil)
}

// Reload re-reads the adapter info of an unregistered adapter and makes it
// Ready again. The ready callback does not fire.
func (b *Bridge) Reload(ctx context.Context) error {
	if st := b.adapter.State(); st != adapter.Unregistered {
		return errors.Errorf("can't reload adapter in state %v", st)
	}
	ci, err := b.readInfo(ctx)
	if err != nil {
		return errors.Wrap(err, "can't reload controller info")
	}
	return b.adapter.SetReady(ci)
}

func (b *Bridge) readInfo(ctx context.Context) (adapter.ControllerInfo, error) {
	rp := mgmt.ReadInfoRP{}
	if err := b.Send(ctx, &mgmt.ReadInfo{}, &rp); err != nil {
		return adapter.ControllerInfo{}, err
	}
	return adapter.ControllerInfo{
		Address:           bthal.Address(rp.Address),
		Version:           rp.Version,
		Manufacturer:      rp.Manufacturer,
		SupportedSettings: rp.SupportedSettings,
		CurrentSettings:   rp.CurrentSettings,
		Class:             rp.ClassOfDevice,
		Name:              rp.Name,
		ShortName:         rp.ShortName,
	}, nil
}

// Version reads the management interface version.
func (b *Bridge) Version(ctx context.Context) (uint8, uint16, error) {
	rp := mgmt.ReadVersionRP{}
	if err := b.SendIndex(ctx, mgmt.IndexNone, &mgmt.ReadVersion{}, &rp); err != nil {
		return 0, 0, err
	}
	return rp.Version, rp.Revision, nil
}

// SetPowered powers the controller on or off.
func (b *Bridge) SetPowered(ctx context.Context, on bool) error {
	rp := mgmt.SettingsRP{}
	if err := b.Send(ctx, &mgmt.SetPowered{Powered: on}, &rp); err != nil {
		return err
	}
	b.adapter.UpdateSettings(rp.CurrentSettings)
	return nil
}

// Send issues c to the bridge's controller and waits for its response.
func (b *Bridge) Send(ctx context.Context, c mgmt.Command, r mgmt.CommandRP) error {
	return b.SendIndex(ctx, b.index, c, r)
}

// SendIndex issues c to controller index and waits for its response. The
// command timeout applies when ctx carries no deadline of its own.
func (b *Bridge) SendIndex(ctx context.Context, index uint16, c mgmt.Command, r mgmt.CommandRP) error {
	res, err := b.send(ctx, index, c)
	op := fmt.Sprintf("0x%04x", c.OpCode())
	if err != nil {
		metrics.MgmtRequests.WithLabelValues(op, "error").Inc()
		return err
	}
	if res.status != 0 {
		metrics.MgmtRequests.WithLabelValues(op, "status").Inc()
		return errors.Wrapf(mgmt.ErrStatus(res.status), "command 0x%04x", c.OpCode())
	}
	metrics.MgmtRequests.WithLabelValues(op, "ok").Inc()
	if r != nil {
		return errors.Wrapf(r.Unmarshal(res.params), "malformed response to command 0x%04x", c.OpCode())
	}
	return nil
}

func (b *Bridge) send(ctx context.Context, index uint16, c mgmt.Command) (result, error) {
	if !b.isOpen() {
		return result{}, bthal.ErrClosed
	}
	if err := b.Error(); err != nil {
		return result{}, err
	}

	pkt, err := mgmt.Encode(c, index)
	if err != nil {
		return result{}, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cmdTmo)
		defer cancel()
	}

	b.muSent.Lock()
	b.seq++
	p := &pending{seq: b.seq, opcode: c.OpCode(), index: index, done: make(chan result, 1)}
	b.sent = append(b.sent, p)
	b.muSent.Unlock()

	// clear the request when done, a late response must not find it
	defer b.forget(p)

	b.logger.Debugf("mgmt < [%d] % X", p.seq, pkt)
	if n, err := b.skt.Write(pkt); err != nil {
		return result{}, errors.Wrapf(err, "can't send command 0x%04x", c.OpCode())
	} else if n != len(pkt) {
		return result{}, errors.Errorf("short write of command 0x%04x: %d of %d", c.OpCode(), n, len(pkt))
	}

	select {
	case res := <-p.done:
		return res, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return result{}, errors.Wrapf(bthal.ErrTimeout, "no response to command 0x%04x", c.OpCode())
		}
		return result{}, ctx.Err()
	case <-b.lost:
		return result{}, b.Error()
	case <-b.done:
		return result{}, bthal.ErrClosed
	}
}

func (b *Bridge) forget(p *pending) {
	b.muSent.Lock()
	defer b.muSent.Unlock()

	for i, q := range b.sent {
		if q == p {
			b.sent = append(b.sent[:i], b.sent[i+1:]...)
			return
		}
	}
}

// resolve completes the oldest request matching opcode and index.
func (b *Bridge) resolve(opcode, index uint16, res result) error {
	b.muSent.Lock()
	var p *pending
	for i, q := range b.sent {
		if q.opcode == opcode && q.index == index {
			p = q
			b.sent = append(b.sent[:i], b.sent[i+1:]...)
			break
		}
	}
	b.muSent.Unlock()

	if p == nil {
		return errors.Errorf("can't find the cmd for response to 0x%04x (index %d)", opcode, index)
	}
	b.logger.Debugf("mgmt > [%d] opcode 0x%04x status 0x%02x", p.seq, opcode, res.status)
	p.done <- res
	return nil
}

// fire invokes the armed ready callback, once, unless the bridge has been
// closed.
func (b *Bridge) fire(err error) {
	b.muReady.Lock()
	cb := b.ready
	b.ready = nil
	if !b.isOpen() {
		cb = nil
	}
	b.muReady.Unlock()

	if cb != nil {
		cb(err)
	}
}

func (b *Bridge) disarm() {
	b.muReady.Lock()
	b.ready = nil
	b.muReady.Unlock()
}

func (b *Bridge) sktProcessLoop() {
	for {
		var p []byte
		var ok bool

		select {
		case <-b.done:
			return
		case p, ok = <-b.sktRxChan:
			if !ok {
				return
			}
		}

		if err := b.handlePkt(p); err != nil {
			b.logger.Warnf("mgmt: %v", err)
		}
	}
}

func (b *Bridge) sktReadLoop() {
	defer close(b.sktRxChan)

	buf := make([]byte, rxBufSize)
	for {
		n, err := b.skt.Read(buf)

		switch {
		case n == 0 && err == nil:
			// read timeout
			select {
			case <-b.done:
				return
			default:
				continue
			}

		case err != nil:
			if b.isOpen() {
				b.setError(errors.Wrap(err, "mgmt read error"))
			}
			return

		default:
			p := make([]byte, n)
			copy(p, buf[:n])
			select {
			case b.sktRxChan <- p:
			case <-b.done:
				return
			}
		}
	}
}

func (b *Bridge) handlePkt(raw []byte) error {
	p, err := mgmt.Decode(raw)
	if err != nil {
		return err
	}

	f := b.evth[p.Code]
	metrics.MgmtEvents.WithLabelValues(fmt.Sprintf("0x%04x", p.Code)).Inc()
	if f == nil {
		b.logger.Debugf("unhandled event 0x%04x index %d: % X", p.Code, p.Index, p.Params)
		return nil
	}
	return f(p)
}

func (b *Bridge) setError(err error) {
	b.muErr.Lock()
	defer b.muErr.Unlock()

	if b.err != nil {
		return
	}
	b.logger.Error(err)
	b.err = err
	close(b.lost)
}

// Lost is closed when the transport fails.
func (b *Bridge) Lost() <-chan struct{} {
	return b.lost
}

// Error returns the transport failure that ended the session, if any.
func (b *Bridge) Error() error {
	b.muErr.Lock()
	defer b.muErr.Unlock()
	return b.err
}

// Close ends the session. A ready callback that has not fired yet never will.
func (b *Bridge) Close() error {
	b.muClose.Lock()
	defer b.muClose.Unlock()

	select {
	case <-b.done:
		return nil
	default:
		close(b.done)
	}

	b.disarm()
	return b.skt.Close()
}

func (b *Bridge) isOpen() bool {
	select {
	case <-b.done:
		return false
	default:
		return true
	}
}
