package bthal

import "github.com/pkg/errors"

// Errors shared by the adapter, the registry, the bridge and the dispatcher.
// Callers classify wrapped errors with errors.Cause.
var (
	ErrNotReady           = errors.New("adapter not ready")
	ErrAddressUnavailable = errors.New("adapter address unavailable")
	ErrNotFound           = errors.New("not found")
	ErrInvalidParams      = errors.New("invalid parameters")
	ErrUnsupported        = errors.New("unsupported opcode")
	ErrBusy               = errors.New("adapter already registered")
	ErrFraming            = errors.New("malformed frame")
	ErrClosed             = errors.New("closed")
	ErrTimeout            = errors.New("timeout")
)
