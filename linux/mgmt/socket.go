//go:build linux
// +build linux

package mgmt

import (
	"io"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	readTimeout    = 1000
	unixPollErrors = int16(unix.POLLHUP | unix.POLLNVAL | unix.POLLERR)
	unixPollDataIn = int16(unix.POLLIN)
)

// Socket is a HCI control channel socket. Each Read returns exactly one
// management packet; a Read that times out returns 0, nil.
type Socket struct {
	fd   int
	rmu  sync.Mutex
	wmu  sync.Mutex
	done chan struct{}
	cmu  sync.Mutex
}

// NewSocket opens the management interface.
func NewSocket() (*Socket, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.BTPROTO_HCI)
	if err != nil {
		return nil, errors.Wrap(err, "can't create socket")
	}

	sa := unix.SockaddrHCI{Dev: IndexNone, Channel: unix.HCI_CHANNEL_CONTROL}
	if err := unix.Bind(fd, &sa); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "can't bind socket to hci control channel")
	}

	// poll for 20ms to see if any data becomes available, then clear it
	pfds := []unix.PollFd{{Fd: int32(fd), Events: unixPollDataIn}}
	unix.Poll(pfds, 20)
	evts := pfds[0].Revents

	switch {
	case evts&unixPollErrors != 0:
		unix.Close(fd)
		return nil, io.EOF

	case evts&unixPollDataIn != 0:
		b := make([]byte, 512)
		unix.Read(fd, b)
	}

	return &Socket{fd: fd, done: make(chan struct{})}, nil
}

func (s *Socket) Read(p []byte) (int, error) {
	if !s.isOpen() {
		return 0, io.EOF
	}

	s.rmu.Lock()
	defer s.rmu.Unlock()

	// dont need to add unixPollErrors, they are always returned
	pfds := []unix.PollFd{{Fd: int32(s.fd), Events: unixPollDataIn}}
	if _, err := unix.Poll(pfds, readTimeout); err != nil && err != unix.EINTR {
		return 0, errors.Wrap(err, "can't poll mgmt socket")
	}
	evts := pfds[0].Revents

	var n int
	var err error
	switch {
	case evts&unixPollErrors != 0:
		return 0, io.EOF

	case evts&unixPollDataIn != 0:
		n, err = unix.Read(s.fd, p)

	default:
		// no data, read timeout
		return 0, nil
	}

	// check if we are still open since the read takes a while
	if !s.isOpen() {
		return 0, io.EOF
	}
	return n, errors.Wrap(err, "can't read mgmt socket")
}

func (s *Socket) Write(p []byte) (int, error) {
	if !s.isOpen() {
		return 0, io.EOF
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	n, err := unix.Write(s.fd, p)
	return n, errors.Wrap(err, "can't write mgmt socket")
}

func (s *Socket) Close() error {
	s.cmu.Lock()
	defer s.cmu.Unlock()

	select {
	case <-s.done:
		return nil

	default:
		close(s.done)
		s.rmu.Lock()
		err := unix.Close(s.fd)
		s.rmu.Unlock()

		return errors.Wrap(err, "can't close mgmt socket")
	}
}

func (s *Socket) isOpen() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}
