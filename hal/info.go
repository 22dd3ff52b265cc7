package hal

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/rigado/bthal"
	"github.com/rigado/bthal/adapter"
)

const adapterInfoFixedLength = 2 + 1 + 1 + 6 + 4 + 3 + 1 + 1

// AdapterInfo is the ReadInfo result.
type AdapterInfo struct {
	Index      uint16
	State      adapter.State
	Registered bool
	Address    bthal.Address
	Settings   uint32
	Class      [3]byte
	Hints      uint8
	Name       string
}

// NewAdapterInfo builds the ReadInfo result from an adapter snapshot. The
// address is left zero until the controller reported one.
func NewAdapterInfo(s adapter.Info, hints uint8) AdapterInfo {
	ai := AdapterInfo{
		Index:      s.Index,
		State:      s.State,
		Registered: s.Registered,
		Hints:      hints,
	}
	if s.HasAddress && (s.State == adapter.Ready || s.State == adapter.Unregistered) {
		ai.Address = s.Controller.Address
	}
	if s.HasAddress {
		ai.Settings = s.Controller.CurrentSettings
		ai.Class = s.Controller.Class
		ai.Name = s.Controller.Name
	}
	return ai
}

func (ai AdapterInfo) Marshal() []byte {
	name := ai.Name
	if len(name) > 0xff {
		name = name[:0xff]
	}
	b := make([]byte, adapterInfoFixedLength+len(name))
	binary.LittleEndian.PutUint16(b[0:2], ai.Index)
	b[2] = uint8(ai.State)
	if ai.Registered {
		b[3] = 1
	}
	copy(b[4:10], ai.Address.Bytes())
	binary.LittleEndian.PutUint32(b[10:14], ai.Settings)
	copy(b[14:17], ai.Class[:])
	b[17] = ai.Hints
	b[18] = uint8(len(name))
	copy(b[adapterInfoFixedLength:], name)
	return b
}

func (ai *AdapterInfo) Unmarshal(b []byte) error {
	if len(b) < adapterInfoFixedLength {
		return errors.Wrapf(bthal.ErrFraming, "adapter info too short: %d", len(b))
	}
	if n := int(b[18]); len(b) != adapterInfoFixedLength+n {
		return errors.Wrapf(bthal.ErrFraming, "adapter info name length %d, have %d", n, len(b)-adapterInfoFixedLength)
	}
	addr, err := bthal.AddressFromBytes(b[4:10])
	if err != nil {
		return err
	}
	ai.Index = binary.LittleEndian.Uint16(b[0:2])
	ai.State = adapter.State(b[2])
	ai.Registered = b[3] != 0
	ai.Address = addr
	ai.Settings = binary.LittleEndian.Uint32(b[10:14])
	copy(ai.Class[:], b[14:17])
	ai.Hints = b[17]
	ai.Name = string(b[adapterInfoFixedLength:])
	return nil
}
