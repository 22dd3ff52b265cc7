package hal

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/rigado/bthal"
)

// Request is a decoded control command.
type Request interface {
	Opcode() Opcode
}

type ReadCommandsRequest struct{}

func (ReadCommandsRequest) Opcode() Opcode { return OpReadCommands }

type ReadInfoRequest struct{}

func (ReadInfoRequest) Opcode() Opcode { return OpReadInfo }

type RegisterRequest struct{}

func (RegisterRequest) Opcode() Opcode { return OpRegister }

type UnregisterRequest struct{}

func (UnregisterRequest) Opcode() Opcode { return OpUnregister }

// AddRecordRequest publishes a service record.
type AddRecordRequest struct {
	Hint       uint8
	Descriptor []byte
}

func (AddRecordRequest) Opcode() Opcode { return OpAddRecord }

// RemoveRecordRequest withdraws the record with Handle.
type RemoveRecordRequest struct {
	Handle uint32
}

func (RemoveRecordRequest) Opcode() Opcode { return OpRemoveRecord }

// preInit lists the opcodes served before the adapter finished initializing.
var preInit = map[Opcode]bool{
	OpReadCommands: true,
	OpReadInfo:     true,
}

// PreInit reports whether op is served while the adapter is Uninitialized.
func PreInit(op Opcode) bool {
	return preInit[op]
}

type decodeFn func(payload []byte) (Request, error)

var decoders = map[Opcode]decodeFn{
	OpReadCommands: empty(ReadCommandsRequest{}),
	OpReadInfo:     empty(ReadInfoRequest{}),
	OpRegister:     empty(RegisterRequest{}),
	OpUnregister:   empty(UnregisterRequest{}),
	OpAddRecord:    decodeAddRecord,
	OpRemoveRecord: decodeRemoveRecord,
}

// Supported returns the bitmask of supported opcodes, bit n for opcode n.
func Supported() uint16 {
	var m uint16
	for op := range decoders {
		m |= 1 << op
	}
	return m
}

// DecodeRequest turns a frame into its typed request. It returns
// ErrUnsupported for unknown opcodes and ErrInvalidParams when the payload
// does not fit the opcode.
func DecodeRequest(f Frame) (Request, error) {
	dec, ok := decoders[f.Opcode]
	if !ok {
		return nil, errors.Wrapf(bthal.ErrUnsupported, "opcode %v", f.Opcode)
	}
	return dec(f.Payload)
}

func empty(r Request) decodeFn {
	return func(payload []byte) (Request, error) {
		if len(payload) != 0 {
			return nil, errors.Wrapf(bthal.ErrInvalidParams, "%v takes no payload, got %d bytes", r.Opcode(), len(payload))
		}
		return r, nil
	}
}

func decodeAddRecord(payload []byte) (Request, error) {
	if len(payload) < 2 {
		return nil, errors.Wrapf(bthal.ErrInvalidParams, "add record payload too short: %d", len(payload))
	}
	return AddRecordRequest{Hint: payload[0], Descriptor: payload[1:]}, nil
}

func decodeRemoveRecord(payload []byte) (Request, error) {
	if len(payload) != 4 {
		return nil, errors.Wrapf(bthal.ErrInvalidParams, "remove record payload length %d", len(payload))
	}
	return RemoveRecordRequest{Handle: binary.LittleEndian.Uint32(payload)}, nil
}

// EncodeRequest is the inverse of DecodeRequest.
func EncodeRequest(r Request) (Frame, error) {
	f := Frame{Opcode: r.Opcode()}
	switch r := r.(type) {
	case AddRecordRequest:
		f.Payload = append([]byte{r.Hint}, r.Descriptor...)
	case RemoveRecordRequest:
		f.Payload = make([]byte, 4)
		binary.LittleEndian.PutUint32(f.Payload, r.Handle)
	case ReadCommandsRequest, ReadInfoRequest, RegisterRequest, UnregisterRequest:
	default:
		return Frame{}, errors.Wrapf(bthal.ErrUnsupported, "request %T", r)
	}
	return f, nil
}
