package session

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedDeviceType = errors.New("unsupported device type")
	ErrNotConnected          = errors.New("device not connected")
	ErrClosed                = errors.New("session closed")
	ErrNotSupported          = errors.New("not supported by the connection")
)

// ConfigError reports a device that cannot be used with this package.
// It is returned before any tree is built.
type ConfigError struct {
	Serial string
	Type   string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Serial, e.Type, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
