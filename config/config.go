// Package config holds the daemon configuration.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
	"unsafe"

	jsoniter "github.com/json-iterator/go"
	"github.com/mcuadros/go-defaults"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration. Zero fields take the value of their
// default tag.
type Config struct {
	// Index is the controller index on the management interface.
	Index uint16 `yaml:"index" json:"index" default:"0"`

	// Socket is the path of the control socket.
	Socket string `yaml:"socket" json:"socket" default:"/run/bthal/control.sock"`

	LogLevel string `yaml:"log_level" json:"log_level" default:"info"`

	InitTimeout    time.Duration `yaml:"init_timeout" json:"init_timeout" default:"5s"`
	CommandTimeout time.Duration `yaml:"command_timeout" json:"command_timeout" default:"3s"`

	// OpenRetry bounds the time spent retrying to open the management socket.
	// Zero makes a single attempt.
	OpenRetry time.Duration `yaml:"open_retry" json:"open_retry" default:"30s"`

	// MetricsAddr is the listen address of the metrics endpoint, empty to
	// disable it.
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr" default:""`

	// PowerOn powers the controller once it is ready.
	PowerOn bool `yaml:"power_on" json:"power_on" default:"false"`
}

func init() {
	// durations are written as "5s" in JSON too
	jsoniter.RegisterTypeDecoderFunc("time.Duration", func(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
		switch iter.WhatIsNext() {
		case jsoniter.StringValue:
			d, err := time.ParseDuration(iter.ReadString())
			if err != nil {
				iter.ReportError("decode duration", err.Error())
				return
			}
			*(*time.Duration)(ptr) = d
		case jsoniter.NumberValue:
			*(*time.Duration)(ptr) = time.Duration(iter.ReadInt64())
		default:
			iter.ReportError("decode duration", "expected string or number")
		}
	})
}

// Default returns the configuration with every default applied.
func Default() *Config {
	c := &Config{}
	defaults.SetDefaults(c)
	return c
}

// Load reads the file at path over the defaults. The format is picked by
// extension: .yaml and .yml are YAML, .json is JSON.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't read config %s", path)
	}
	c := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, c)
	case ".json":
		err = jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(b, c)
	default:
		return nil, errors.Errorf("unknown config format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "can't parse config %s", path)
	}
	return c, c.Validate()
}

// Validate checks the values that have no usable zero.
func (c *Config) Validate() error {
	if c.Socket == "" {
		return errors.New("socket path is empty")
	}
	if c.InitTimeout <= 0 {
		return errors.Errorf("invalid init timeout %v", c.InitTimeout)
	}
	if c.CommandTimeout <= 0 {
		return errors.Errorf("invalid command timeout %v", c.CommandTimeout)
	}
	if c.OpenRetry < 0 {
		return errors.Errorf("invalid open retry %v", c.OpenRetry)
	}
	return nil
}
