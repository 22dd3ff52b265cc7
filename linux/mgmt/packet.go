package mgmt

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Command is a management request.
type Command interface {
	OpCode() uint16
	Len() int
	Marshal([]byte) error
}

// CommandRP is the return parameters of a Command.
type CommandRP interface {
	Unmarshal(b []byte) error
}

// Packet is a decoded management packet. Code is the opcode for commands and
// the event code for events.
type Packet struct {
	Code   uint16
	Index  uint16
	Params []byte
}

func header(b []byte, code, index uint16, length int) {
	binary.LittleEndian.PutUint16(b[0:2], code)
	binary.LittleEndian.PutUint16(b[2:4], index)
	binary.LittleEndian.PutUint16(b[4:6], uint16(length))
}

// Encode returns the wire form of c addressed to controller index.
func Encode(c Command, index uint16) ([]byte, error) {
	if c.Len() > 0xffff {
		return nil, errors.Errorf("command 0x%04x too long: %d", c.OpCode(), c.Len())
	}
	b := make([]byte, HeaderLength+c.Len())
	header(b, c.OpCode(), index, c.Len())
	if err := c.Marshal(b[HeaderLength:]); err != nil {
		return nil, errors.Wrapf(err, "can't marshal command 0x%04x", c.OpCode())
	}
	return b, nil
}

// EncodeEvent returns the wire form of an event. The bridge never sends
// events; this is used to build fixtures.
func EncodeEvent(code, index uint16, params []byte) []byte {
	b := make([]byte, HeaderLength+len(params))
	header(b, code, index, len(params))
	copy(b[HeaderLength:], params)
	return b
}

// Decode parses one packet. The declared parameter length must match the
// bytes present.
func Decode(b []byte) (Packet, error) {
	if len(b) < HeaderLength {
		return Packet{}, errors.Errorf("short mgmt packet: % X", b)
	}
	p := Packet{
		Code:  binary.LittleEndian.Uint16(b[0:2]),
		Index: binary.LittleEndian.Uint16(b[2:4]),
	}
	plen := int(binary.LittleEndian.Uint16(b[4:6]))
	if plen != len(b)-HeaderLength {
		return Packet{}, errors.Errorf("invalid mgmt packet length %d, have %d: % X", plen, len(b)-HeaderLength, b)
	}
	p.Params = make([]byte, plen)
	copy(p.Params, b[HeaderLength:])
	return p, nil
}

// CommandComplete is the parameters of a Command Complete event.
type CommandComplete []byte

func (e CommandComplete) Valid() bool { return len(e) >= 3 }

func (e CommandComplete) CommandOpcode() uint16 { return binary.LittleEndian.Uint16(e[0:2]) }

func (e CommandComplete) Status() uint8 { return e[2] }

func (e CommandComplete) ReturnParameters() []byte { return e[3:] }

// CommandStatus is the parameters of a Command Status event.
type CommandStatus []byte

func (e CommandStatus) Valid() bool { return len(e) == 3 }

func (e CommandStatus) CommandOpcode() uint16 { return binary.LittleEndian.Uint16(e[0:2]) }

func (e CommandStatus) Status() uint8 { return e[2] }

// NewSettings is the parameters of a New Settings event.
type NewSettings []byte

func (e NewSettings) Valid() bool { return len(e) == 4 }

func (e NewSettings) Settings() uint32 { return binary.LittleEndian.Uint32(e) }

// ClassOfDevChanged is the parameters of a Class Of Device Changed event.
type ClassOfDevChanged []byte

func (e ClassOfDevChanged) Valid() bool { return len(e) == 3 }

func (e ClassOfDevChanged) Class() [3]byte {
	var c [3]byte
	copy(c[:], e)
	return c
}

// LocalNameChanged is the parameters of a Local Name Changed event.
type LocalNameChanged []byte

func (e LocalNameChanged) Valid() bool { return len(e) == maxNameLength+maxShortNameLength }

func (e LocalNameChanged) Name() string { return cString(e[:maxNameLength]) }

func (e LocalNameChanged) ShortName() string { return cString(e[maxNameLength:]) }

// ControllerError is the parameters of a Controller Error event.
type ControllerError []byte

func (e ControllerError) Valid() bool { return len(e) == 1 }

func (e ControllerError) ErrorCode() uint8 { return e[0] }

// ReadVersion implements Read Management Version Information.
type ReadVersion struct{}

func (c *ReadVersion) OpCode() uint16 { return OpReadVersion }

func (c *ReadVersion) Len() int { return 0 }

func (c *ReadVersion) Marshal(b []byte) error { return nil }

// ReadVersionRP is the return parameters of ReadVersion.
type ReadVersionRP struct {
	Version  uint8
	Revision uint16
}

func (rp *ReadVersionRP) Unmarshal(b []byte) error {
	if len(b) != 3 {
		return errors.Errorf("invalid read version response length %d", len(b))
	}
	rp.Version = b[0]
	rp.Revision = binary.LittleEndian.Uint16(b[1:3])
	return nil
}

// ReadInfo implements Read Controller Information.
type ReadInfo struct{}

func (c *ReadInfo) OpCode() uint16 { return OpReadInfo }

func (c *ReadInfo) Len() int { return 0 }

func (c *ReadInfo) Marshal(b []byte) error { return nil }

// ReadInfoRP is the return parameters of ReadInfo.
type ReadInfoRP struct {
	Address           [6]byte
	Version           uint8
	Manufacturer      uint16
	SupportedSettings uint32
	CurrentSettings   uint32
	ClassOfDevice     [3]byte
	Name              string
	ShortName         string
}

func (rp *ReadInfoRP) Unmarshal(b []byte) error {
	if len(b) != readInfoRPLength {
		return errors.Errorf("invalid read info response length %d", len(b))
	}
	copy(rp.Address[:], b[0:6])
	rp.Version = b[6]
	rp.Manufacturer = binary.LittleEndian.Uint16(b[7:9])
	rp.SupportedSettings = binary.LittleEndian.Uint32(b[9:13])
	rp.CurrentSettings = binary.LittleEndian.Uint32(b[13:17])
	copy(rp.ClassOfDevice[:], b[17:20])
	rp.Name = cString(b[20 : 20+maxNameLength])
	rp.ShortName = cString(b[20+maxNameLength:])
	return nil
}

// Marshal is the inverse of Unmarshal. Names longer than the fixed fields
// are truncated.
func (rp *ReadInfoRP) Marshal() []byte {
	b := make([]byte, readInfoRPLength)
	copy(b[0:6], rp.Address[:])
	b[6] = rp.Version
	binary.LittleEndian.PutUint16(b[7:9], rp.Manufacturer)
	binary.LittleEndian.PutUint32(b[9:13], rp.SupportedSettings)
	binary.LittleEndian.PutUint32(b[13:17], rp.CurrentSettings)
	copy(b[17:20], rp.ClassOfDevice[:])
	copy(b[20:20+maxNameLength-1], rp.Name)
	copy(b[20+maxNameLength:readInfoRPLength-1], rp.ShortName)
	return b
}

// SetPowered implements Set Powered.
type SetPowered struct {
	Powered bool
}

func (c *SetPowered) OpCode() uint16 { return OpSetPowered }

func (c *SetPowered) Len() int { return 1 }

func (c *SetPowered) Marshal(b []byte) error {
	if len(b) < 1 {
		return errors.New("buffer too small")
	}
	b[0] = 0
	if c.Powered {
		b[0] = 1
	}
	return nil
}

// SettingsRP is the current settings returned by the Set* commands.
type SettingsRP struct {
	CurrentSettings uint32
}

func (rp *SettingsRP) Unmarshal(b []byte) error {
	if len(b) != 4 {
		return errors.Errorf("invalid settings response length %d", len(b))
	}
	rp.CurrentSettings = binary.LittleEndian.Uint32(b)
	return nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
