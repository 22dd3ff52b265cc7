package hal

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"github.com/rigado/bthal"
)

// Opcode identifies a control channel command.
type Opcode uint8

const (
	OpReadCommands Opcode = 0x01
	OpReadInfo     Opcode = 0x02
	OpRegister     Opcode = 0x03
	OpUnregister   Opcode = 0x04
	OpAddRecord    Opcode = 0x05
	OpRemoveRecord Opcode = 0x06
)

var opcodeNames = map[Opcode]string{
	OpReadCommands: "read_commands",
	OpReadInfo:     "read_info",
	OpRegister:     "register",
	OpUnregister:   "unregister",
	OpAddRecord:    "add_record",
	OpRemoveRecord: "remove_record",
}

func (o Opcode) String() string {
	if s, ok := opcodeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("0x%02x", uint8(o))
}

// Status is the first byte of every reply.
type Status uint8

const (
	StatusSuccess            Status = 0x00
	StatusFailed             Status = 0x01
	StatusNotReady           Status = 0x02
	StatusUnsupported        Status = 0x03
	StatusInvalidParams      Status = 0x04
	StatusNotFound           Status = 0x05
	StatusBusy               Status = 0x06
	StatusAddressUnavailable Status = 0x07
)

var statusNames = map[Status]string{
	StatusSuccess:            "success",
	StatusFailed:             "failed",
	StatusNotReady:           "not ready",
	StatusUnsupported:        "unsupported opcode",
	StatusInvalidParams:      "invalid parameters",
	StatusNotFound:           "not found",
	StatusBusy:               "busy",
	StatusAddressUnavailable: "address unavailable",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status 0x%02x", uint8(s))
}

// StatusOf classifies err into a reply status.
func StatusOf(err error) Status {
	switch errors.Cause(err) {
	case nil:
		return StatusSuccess
	case bthal.ErrNotReady:
		return StatusNotReady
	case bthal.ErrUnsupported:
		return StatusUnsupported
	case bthal.ErrInvalidParams, bthal.ErrFraming:
		return StatusInvalidParams
	case bthal.ErrNotFound:
		return StatusNotFound
	case bthal.ErrBusy:
		return StatusBusy
	case bthal.ErrAddressUnavailable:
		return StatusAddressUnavailable
	default:
		return StatusFailed
	}
}

const (
	frameHeaderLength = 3

	// MaxFrameLength is the largest frame the 16 bit length field allows.
	MaxFrameLength = frameHeaderLength + 0xffff
)

// Frame is one decoded request.
type Frame struct {
	Opcode  Opcode
	Payload []byte
}

// Marshal returns the wire form of f.
func (f Frame) Marshal() ([]byte, error) {
	return marshal(uint8(f.Opcode), f.Payload)
}

// DecodeFrame parses one request packet. The declared length must match the
// payload bytes present; anything else is ErrFraming.
func DecodeFrame(b []byte) (Frame, error) {
	op, payload, err := unmarshal(b)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Opcode: Opcode(op), Payload: payload}, nil
}

// Reply is one response.
type Reply struct {
	Status Status
	Result []byte
}

// Marshal returns the wire form of r.
func (r Reply) Marshal() ([]byte, error) {
	return marshal(uint8(r.Status), r.Result)
}

// DecodeReply parses one reply packet.
func DecodeReply(b []byte) (Reply, error) {
	st, result, err := unmarshal(b)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Status: Status(st), Result: result}, nil
}

func marshal(code uint8, body []byte) ([]byte, error) {
	if len(body) > 0xffff {
		return nil, errors.Wrapf(bthal.ErrInvalidParams, "body too long: %d", len(body))
	}
	b := make([]byte, frameHeaderLength+len(body))
	b[0] = code
	binary.LittleEndian.PutUint16(b[1:3], uint16(len(body)))
	copy(b[frameHeaderLength:], body)
	return b, nil
}

func unmarshal(b []byte) (uint8, []byte, error) {
	if len(b) < frameHeaderLength {
		return 0, nil, errors.Wrapf(bthal.ErrFraming, "short frame: % X", b)
	}
	l := int(binary.LittleEndian.Uint16(b[1:3]))
	if l != len(b)-frameHeaderLength {
		return 0, nil, errors.Wrapf(bthal.ErrFraming, "declared length %d, have %d", l, len(b)-frameHeaderLength)
	}
	body := make([]byte, l)
	copy(body, b[frameHeaderLength:])
	return b[0], body, nil
}
