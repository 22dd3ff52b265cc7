package mgmt

import "fmt"

// ErrStatus is a non-zero status returned by the management interface.
type ErrStatus uint8

const (
	StatusSuccess          ErrStatus = 0x00
	StatusUnknownCommand   ErrStatus = 0x01
	StatusNotConnected     ErrStatus = 0x02
	StatusFailed           ErrStatus = 0x03
	StatusConnectFailed    ErrStatus = 0x04
	StatusAuthFailed       ErrStatus = 0x05
	StatusNotPaired        ErrStatus = 0x06
	StatusNoResources      ErrStatus = 0x07
	StatusTimeout          ErrStatus = 0x08
	StatusAlreadyConnected ErrStatus = 0x09
	StatusBusy             ErrStatus = 0x0a
	StatusRejected         ErrStatus = 0x0b
	StatusNotSupported     ErrStatus = 0x0c
	StatusInvalidParams    ErrStatus = 0x0d
	StatusDisconnected     ErrStatus = 0x0e
	StatusNotPowered       ErrStatus = 0x0f
	StatusCancelled        ErrStatus = 0x10
	StatusInvalidIndex     ErrStatus = 0x11
	StatusRFKilled         ErrStatus = 0x12
	StatusAlreadyPaired    ErrStatus = 0x13
	StatusPermissionDenied ErrStatus = 0x14
)

var statusNames = map[ErrStatus]string{
	StatusSuccess:          "success",
	StatusUnknownCommand:   "unknown command",
	StatusNotConnected:     "not connected",
	StatusFailed:           "failed",
	StatusConnectFailed:    "connect failed",
	StatusAuthFailed:       "authentication failed",
	StatusNotPaired:        "not paired",
	StatusNoResources:      "no resources",
	StatusTimeout:          "timeout",
	StatusAlreadyConnected: "already connected",
	StatusBusy:             "busy",
	StatusRejected:         "rejected",
	StatusNotSupported:     "not supported",
	StatusInvalidParams:    "invalid parameters",
	StatusDisconnected:     "disconnected",
	StatusNotPowered:       "not powered",
	StatusCancelled:        "cancelled",
	StatusInvalidIndex:     "invalid index",
	StatusRFKilled:         "rfkilled",
	StatusAlreadyPaired:    "already paired",
	StatusPermissionDenied: "permission denied",
}

func (e ErrStatus) Error() string {
	if s, ok := statusNames[e]; ok {
		return fmt.Sprintf("mgmt: %s (0x%02x)", s, uint8(e))
	}
	return fmt.Sprintf("mgmt: status 0x%02x", uint8(e))
}
