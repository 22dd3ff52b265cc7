package bthal

import (
	"fmt"

	"github.com/pkg/errors"
)

// Address is a controller hardware address, stored the way the kernel
// management interface delivers it (least significant byte first).
type Address [6]byte

// AddressFromBytes copies a 6 byte little-endian address.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != len(a) {
		return a, errors.Errorf("invalid address length %d", len(b))
	}
	copy(a[:], b)
	return a, nil
}

// IsZero reports whether the address was never set.
func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[5], a[4], a[3], a[2], a[1], a[0])
}

// Bytes returns the address in wire order.
func (a Address) Bytes() []byte {
	b := make([]byte, len(a))
	copy(b, a[:])
	return b
}
