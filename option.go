package bthal

import "time"

// BridgeOption is an interface which the bridge implements to allow using configuration options
type BridgeOption interface {
	SetInitTimeout(time.Duration) error
	SetCommandTimeout(time.Duration) error
	SetLogger(Logger) error
}

// An Option is a configuration function, which configures the bridge.
type Option func(BridgeOption) error

// OptInitTimeout bounds the wait for the initial adapter info response.
func OptInitTimeout(d time.Duration) Option {
	return func(opt BridgeOption) error {
		return opt.SetInitTimeout(d)
	}
}

// OptCommandTimeout bounds the wait for any other management response.
func OptCommandTimeout(d time.Duration) Option {
	return func(opt BridgeOption) error {
		return opt.SetCommandTimeout(d)
	}
}

// OptLogger overrides the logger.
func OptLogger(l Logger) Option {
	return func(opt BridgeOption) error {
		return opt.SetLogger(l)
	}
}
