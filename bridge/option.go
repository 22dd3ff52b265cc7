package bridge

import (
	"time"

	"github.com/pkg/errors"

	"github.com/rigado/bthal"
)

// SetInitTimeout bounds the wait for the initial adapter info.
func (b *Bridge) SetInitTimeout(d time.Duration) error {
	if d <= 0 {
		return errors.Errorf("invalid init timeout %v", d)
	}
	b.initTmo = d
	return nil
}

// SetCommandTimeout bounds the wait for responses to other commands.
func (b *Bridge) SetCommandTimeout(d time.Duration) error {
	if d <= 0 {
		return errors.Errorf("invalid command timeout %v", d)
	}
	b.cmdTmo = d
	return nil
}

// SetLogger overrides the logger.
func (b *Bridge) SetLogger(l bthal.Logger) error {
	if l == nil {
		return errors.New("nil logger")
	}
	b.logger = l
	return nil
}
