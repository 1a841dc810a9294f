package transport

import (
	"errors"

	"github.com/zhinst/zhinst-go/pkg/connection"
	"github.com/zhinst/zhinst-go/pkg/wire"
)

// Transport errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrConnectionClosed = errors.New("connection closed")
	ErrNoConnection     = errors.New("server needs a device connection")
	ErrHelloRequired    = errors.New("hello required before other requests")
)

var codeStatus = map[connection.ErrorCode]wire.Status{
	connection.CodeNoSuchNode:         wire.StatusNoSuchNode,
	connection.CodeAccessDenied:       wire.StatusAccessDenied,
	connection.CodeInvalidValue:       wire.StatusInvalidValue,
	connection.CodeUnknownDevice:      wire.StatusUnknownDevice,
	connection.CodeDeviceNotConnected: wire.StatusDeviceNotConnected,
	connection.CodeUnknownModule:      wire.StatusUnknownModule,
	connection.CodeNotSupported:       wire.StatusNotSupported,
}

// statusOf maps a connection error to a response status.
func statusOf(err error) wire.Status {
	if errors.Is(err, ErrHelloRequired) {
		return wire.StatusInvalidRequest
	}
	if s, ok := codeStatus[connection.CodeOf(err)]; ok {
		return s
	}
	return wire.StatusInternal
}

// remoteError turns a failed response back into an error.
func remoteError(req *wire.Request, resp *wire.Response) error {
	code := connection.CodeUnknown
	for c, s := range codeStatus {
		if s == resp.Status {
			code = c
			break
		}
	}
	return &connection.RemoteError{
		Op:      req.Op.String(),
		Path:    req.Path,
		Code:    code,
		Message: resp.Error,
	}
}
