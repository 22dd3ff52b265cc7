// Package adapter holds the in-process representation of the single local
// Bluetooth controller.
//
// Reads are served from an immutable snapshot swapped atomically on every
// write, so they never block. Writes are serialized by one mutex: the bridge
// owns the initialization transitions and the unsolicited updates, the
// dispatcher owns registration and the unregister transition.
package adapter

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/rigado/bthal"
	"github.com/rigado/bthal/metrics"
)

// State of the adapter lifecycle.
type State uint8

const (
	Uninitialized State = iota
	Initializing
	Ready
	Unregistered
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Unregistered:
		return "unregistered"
	default:
		return "unknown"
	}
}

// ControllerInfo is what the management interface reports about the
// controller.
type ControllerInfo struct {
	Address           bthal.Address
	Version           uint8
	Manufacturer      uint16
	SupportedSettings uint32
	CurrentSettings   uint32
	Class             [3]byte
	Name              string
	ShortName         string
}

// Info is a point-in-time copy of the adapter.
type Info struct {
	Index      uint16
	State      State
	Registered bool
	Owner      uint64

	// Controller is meaningful only when HasAddress is true.
	Controller ControllerInfo
	HasAddress bool
}

// Reader is the read side used by the registry and the dispatcher.
type Reader interface {
	State() State
	Snapshot() Info
}

// Adapter is the authoritative adapter state.
type Adapter struct {
	index uint16
	snap  atomic.Value

	// serializes writers
	mu sync.Mutex

	logger bthal.Logger
}

// New returns an Uninitialized adapter for controller index.
func New(index uint16) *Adapter {
	a := &Adapter{
		index:  index,
		logger: bthal.GetLogger().ChildLogger(map[string]interface{}{"component": "adapter", "index": index}),
	}
	a.snap.Store(Info{Index: index, State: Uninitialized})
	return a
}

// Index returns the controller index.
func (a *Adapter) Index() uint16 {
	return a.index
}

// Snapshot returns the current adapter state without locking.
func (a *Adapter) Snapshot() Info {
	return a.snap.Load().(Info)
}

// State returns the current lifecycle state.
func (a *Adapter) State() State {
	return a.Snapshot().State
}

// Address returns the controller address once it has been reported.
func (a *Adapter) Address() (bthal.Address, error) {
	s := a.Snapshot()
	if !s.HasAddress {
		return bthal.Address{}, bthal.ErrAddressUnavailable
	}
	switch s.State {
	case Ready, Unregistered:
		return s.Controller.Address, nil
	default:
		return bthal.Address{}, bthal.ErrAddressUnavailable
	}
}

// update applies fn to a copy of the snapshot under the writer lock and
// publishes the result if fn succeeds.
func (a *Adapter) update(fn func(s *Info) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.snap.Load().(Info)
	prev := s.State
	if err := fn(&s); err != nil {
		return err
	}
	a.snap.Store(s)

	if s.State != prev {
		a.logger.Infof("state %v -> %v", prev, s.State)
		metrics.AdapterState.Set(float64(s.State))
	}
	return nil
}

// BeginInit moves an Uninitialized adapter to Initializing.
func (a *Adapter) BeginInit() error {
	return a.update(func(s *Info) error {
		if s.State != Uninitialized {
			return errors.Errorf("can't begin init in state %v", s.State)
		}
		s.State = Initializing
		return nil
	})
}

// SetReady records the controller info and moves the adapter to Ready. It is
// valid from Initializing and, when the bridge reloads an unregistered
// adapter, from Unregistered.
func (a *Adapter) SetReady(ci ControllerInfo) error {
	return a.update(func(s *Info) error {
		if s.State != Initializing && s.State != Unregistered {
			return errors.Errorf("can't become ready in state %v", s.State)
		}
		s.Controller = ci
		s.HasAddress = true
		s.State = Ready
		return nil
	})
}

// FailInit returns an Initializing adapter to Uninitialized.
func (a *Adapter) FailInit() {
	_ = a.update(func(s *Info) error {
		if s.State == Initializing {
			s.State = Uninitialized
		}
		return nil
	})
}

// UpdateSettings stores the current settings announced by the controller.
func (a *Adapter) UpdateSettings(settings uint32) {
	_ = a.update(func(s *Info) error {
		s.Controller.CurrentSettings = settings
		return nil
	})
}

// UpdateClass stores a new class of device.
func (a *Adapter) UpdateClass(class [3]byte) {
	_ = a.update(func(s *Info) error {
		s.Controller.Class = class
		return nil
	})
}

// UpdateName stores a new local name.
func (a *Adapter) UpdateName(name, short string) {
	_ = a.update(func(s *Info) error {
		s.Controller.Name = name
		s.Controller.ShortName = short
		return nil
	})
}

// Register marks the adapter as the active HAL adapter owned by owner.
func (a *Adapter) Register(owner uint64) error {
	return a.update(func(s *Info) error {
		if s.State != Ready {
			return bthal.ErrNotReady
		}
		if s.Registered {
			return bthal.ErrBusy
		}
		s.Registered = true
		s.Owner = owner
		return nil
	})
}

// Unregister moves a Ready adapter to Unregistered and drops the
// registration.
func (a *Adapter) Unregister() error {
	return a.update(func(s *Info) error {
		if s.State != Ready {
			return bthal.ErrNotReady
		}
		s.State = Unregistered
		s.Registered = false
		s.Owner = 0
		return nil
	})
}
