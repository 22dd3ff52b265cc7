//go:build !linux
// +build !linux

package mgmt

import (
	"io"

	"github.com/pkg/errors"
)

// Socket is unavailable outside linux.
type Socket struct {
	io.ReadWriteCloser
}

// NewSocket is a dummy function for non-Linux platform.
func NewSocket() (*Socket, error) {
	return nil, errors.New("only available on linux")
}
