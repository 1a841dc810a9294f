package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zhinst/zhinst-go/pkg/nodetree"
)

// Connection errors.
var (
	ErrNoSuchNode         = errors.New("no such node")
	ErrAccessDenied       = errors.New("access denied")
	ErrInvalidValue       = errors.New("invalid value")
	ErrUnknownDevice      = errors.New("unknown device")
	ErrDeviceNotConnected = errors.New("device not connected")
	ErrUnknownModule      = errors.New("unknown module")
	ErrNotSupported       = errors.New("not supported by connection")
)

// GetOptions are the flags of a bulk read.
type GetOptions struct {
	// ExcludeStreaming skips nodes tagged Stream.
	ExcludeStreaming bool

	// SettingsOnly returns only nodes tagged Setting.
	SettingsOnly bool

	// ExcludeVectors skips vector nodes.
	ExcludeVectors bool

	// Flat requests path-keyed results instead of a nested mapping.
	Flat bool
}

// DeviceGetOptions returns the flags used for device snapshots.
func DeviceGetOptions() GetOptions {
	return GetOptions{
		ExcludeStreaming: true,
		SettingsOnly:     false,
		ExcludeVectors:   true,
		Flat:             true,
	}
}

// ModuleGetOptions returns the reduced flag set modules understand.
func ModuleGetOptions() GetOptions {
	return GetOptions{Flat: true}
}

// DeviceConnection is the data-server surface the tree builder and the
// snapshot cache depend on. Paths are absolute node paths in any case.
type DeviceConnection interface {
	// ListNodes returns the metadata of every node matching pattern, keyed
	// by lower-cased node path.
	ListNodes(ctx context.Context, pattern string) (map[string]nodetree.Descriptor, error)

	// Get reads one node.
	Get(ctx context.Context, path string) (any, error)

	// Set writes one node and returns the value the device acknowledged,
	// or nil when it does not report one.
	Set(ctx context.Context, path string, value any) (any, error)

	// GetBulk reads every node matching pattern in one round trip.
	GetBulk(ctx context.Context, pattern string, opts GetOptions) (map[string]any, error)
}

// Subscriber is implemented by connections that support subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context, path string) error
	Unsubscribe(ctx context.Context, path string) error
}

// Poller is implemented by connections that buffer subscribed data.
type Poller interface {
	// Poll records for the given duration and returns the data received
	// for subscribed nodes, keyed by lower-cased node path.
	Poll(ctx context.Context, recording, timeout time.Duration) (map[string][]any, error)
}

// Syncer is implemented by connections that can synchronize all pending
// writes with the devices.
type Syncer interface {
	Sync(ctx context.Context) error
}

// DeviceConnector is implemented by connections that attach devices to the
// data server.
type DeviceConnector interface {
	ConnectDevice(ctx context.Context, serial, iface string) error
	DisconnectDevice(ctx context.Context, serial string) error
}

// ModuleFactory is implemented by connections that host modules. The
// returned connection serves the module's "/{name}/..." namespace.
type ModuleFactory interface {
	CreateModule(ctx context.Context, name string) (DeviceConnection, error)
}

// ErrorCode classifies a remote error.
type ErrorCode uint8

const (
	CodeUnknown ErrorCode = iota
	CodeNoSuchNode
	CodeAccessDenied
	CodeInvalidValue
	CodeUnknownDevice
	CodeDeviceNotConnected
	CodeUnknownModule
	CodeNotSupported
)

var codeErrors = map[ErrorCode]error{
	CodeNoSuchNode:         ErrNoSuchNode,
	CodeAccessDenied:       ErrAccessDenied,
	CodeInvalidValue:       ErrInvalidValue,
	CodeUnknownDevice:      ErrUnknownDevice,
	CodeDeviceNotConnected: ErrDeviceNotConnected,
	CodeUnknownModule:      ErrUnknownModule,
	CodeNotSupported:       ErrNotSupported,
}

// CodeOf returns the code matching err's sentinel.
func CodeOf(err error) ErrorCode {
	for code, sentinel := range codeErrors {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}

// RemoteError is an error reported by the data server.
type RemoteError struct {
	Op      string
	Path    string
	Code    ErrorCode
	Message string
}

func (e *RemoteError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Message)
}

// Unwrap returns the sentinel matching the error code, so errors.Is works
// across the wire.
func (e *RemoteError) Unwrap() error {
	return codeErrors[e.Code]
}
