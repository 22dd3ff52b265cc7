// Package client talks to the daemon over its control socket.
package client

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/rigado/bthal/hal"
)

// StatusError is a non-success reply.
type StatusError struct {
	Opcode hal.Opcode
	Status hal.Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: %v", e.Opcode, e.Status)
}

// Conn is the packet transport a Client uses.
type Conn interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
	SetDeadline(time.Time) error
	Close() error
}

// Client issues one request at a time and waits for its reply.
type Client struct {
	mu   sync.Mutex
	conn Conn
	buf  []byte
}

// Dial connects to the control socket at path.
func Dial(ctx context.Context, path string) (*Client, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "unixpacket", path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't dial %s", path)
	}
	return New(c), nil
}

// New wraps an open packet connection.
func New(c Conn) *Client {
	return &Client{conn: c, buf: make([]byte, hal.MaxFrameLength)}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Do sends r and returns the result of a successful reply. A non-success
// reply is returned as *StatusError.
func (c *Client) Do(ctx context.Context, r hal.Request) ([]byte, error) {
	f, err := hal.EncodeRequest(r)
	if err != nil {
		return nil, err
	}
	b, err := f.Marshal()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dl, ok := ctx.Deadline()
	if !ok {
		dl = time.Time{}
	}
	if err := c.conn.SetDeadline(dl); err != nil {
		return nil, errors.Wrap(err, "can't set deadline")
	}

	if _, err := c.conn.Write(b); err != nil {
		return nil, errors.Wrapf(err, "can't send %v", f.Opcode)
	}
	n, err := c.conn.Read(c.buf)
	if err != nil {
		return nil, errors.Wrapf(err, "can't read %v reply", f.Opcode)
	}
	rep, err := hal.DecodeReply(c.buf[:n])
	if err != nil {
		return nil, errors.Wrapf(err, "bad %v reply", f.Opcode)
	}
	if rep.Status != hal.StatusSuccess {
		return nil, &StatusError{Opcode: f.Opcode, Status: rep.Status}
	}
	return rep.Result, nil
}

// ReadCommands returns the bitmask of supported opcodes.
func (c *Client) ReadCommands(ctx context.Context) (uint16, error) {
	b, err := c.Do(ctx, hal.ReadCommandsRequest{})
	if err != nil {
		return 0, err
	}
	if len(b) != 2 {
		return 0, errors.Errorf("read commands result length %d", len(b))
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadInfo returns the adapter info.
func (c *Client) ReadInfo(ctx context.Context) (hal.AdapterInfo, error) {
	var ai hal.AdapterInfo
	b, err := c.Do(ctx, hal.ReadInfoRequest{})
	if err != nil {
		return ai, err
	}
	err = ai.Unmarshal(b)
	return ai, err
}

func (c *Client) Register(ctx context.Context) error {
	_, err := c.Do(ctx, hal.RegisterRequest{})
	return err
}

// Unregister returns the number of records purged.
func (c *Client) Unregister(ctx context.Context) (int, error) {
	b, err := c.Do(ctx, hal.UnregisterRequest{})
	if err != nil {
		return 0, err
	}
	if len(b) != 2 {
		return 0, errors.Errorf("unregister result length %d", len(b))
	}
	return int(binary.LittleEndian.Uint16(b)), nil
}

// AddRecord publishes a record and returns its handle.
func (c *Client) AddRecord(ctx context.Context, hint uint8, descriptor []byte) (uint32, error) {
	b, err := c.Do(ctx, hal.AddRecordRequest{Hint: hint, Descriptor: descriptor})
	if err != nil {
		return 0, err
	}
	if len(b) != 4 {
		return 0, errors.Errorf("add record result length %d", len(b))
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *Client) RemoveRecord(ctx context.Context, handle uint32) error {
	_, err := c.Do(ctx, hal.RemoveRecordRequest{Handle: handle})
	return err
}
