// Package ipc serves the control protocol on a SOCK_SEQPACKET unix socket.
package ipc

import (
	"context"
	"io"
	"net"
	"os"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/rigado/bthal"
	"github.com/rigado/bthal/hal"
	"github.com/rigado/bthal/metrics"
)

// Handler serves one control channel until it closes.
type Handler interface {
	Serve(ctx context.Context, ch hal.ChannelID, conn io.ReadWriter) error
}

// Server accepts control channels and hands each to the Handler on its own
// goroutine.
type Server struct {
	path    string
	handler Handler
	logger  bthal.Logger

	ln     *net.UnixListener
	nextID atomic.Uint64
	conns  *hashmap.Map[hal.ChannelID, *net.UnixConn]
	wg     sync.WaitGroup
}

// Listen binds the control socket at path, removing a stale socket file.
func Listen(path string, h Handler) (*Server, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "can't remove stale socket %s", path)
	}
	ln, err := net.ListenUnix("unixpacket", &net.UnixAddr{Name: path, Net: "unixpacket"})
	if err != nil {
		return nil, errors.Wrapf(err, "can't listen on %s", path)
	}
	return &Server{
		path:    path,
		handler: h,
		logger:  bthal.GetLogger().ChildLogger(map[string]interface{}{"component": "ipc", "path": path}),
		ln:      ln,
		conns:   hashmap.New[hal.ChannelID, *net.UnixConn](),
	}, nil
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Len returns the number of open channels.
func (s *Server) Len() int {
	return s.conns.Len()
}

// Serve accepts channels until ctx is cancelled or accept fails. On return the
// listener and every open channel are closed and their handlers have returned.
func (s *Server) Serve(ctx context.Context) error {
	quit := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-quit:
		}
		s.ln.Close()
		s.conns.Range(func(_ hal.ChannelID, c *net.UnixConn) bool {
			c.Close()
			return true
		})
	}()
	defer s.wg.Wait()
	defer close(quit)

	s.logger.Info("listening")
	for {
		c, err := s.ln.AcceptUnix()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "accept")
		}

		id := hal.ChannelID(s.nextID.Inc())
		s.conns.Set(id, c)
		if ctx.Err() != nil {
			// raced with shutdown after the sweep
			c.Close()
		}
		metrics.Channels.Inc()
		s.logger.Debugf("channel %d opened", id)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				c.Close()
				s.conns.Del(id)
				metrics.Channels.Dec()
				s.logger.Debugf("channel %d closed", id)
			}()
			if err := s.handler.Serve(ctx, id, c); err != nil {
				s.logger.Warnf("channel %d: %v", id, err)
			}
		}()
	}
}
