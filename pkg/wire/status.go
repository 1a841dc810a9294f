package wire

// Status is the outcome of a request.
type Status uint8

const (
	// StatusSuccess indicates the call completed.
	StatusSuccess Status = 0

	// StatusNoSuchNode indicates the path does not exist.
	StatusNoSuchNode Status = 1

	// StatusAccessDenied indicates a read of a write-only node or a write
	// of a read-only node.
	StatusAccessDenied Status = 2

	// StatusInvalidValue indicates the value could not be converted.
	StatusInvalidValue Status = 3

	// StatusUnknownDevice indicates the serial is not known to the server.
	StatusUnknownDevice Status = 4

	// StatusDeviceNotConnected indicates the device must be connected first.
	StatusDeviceNotConnected Status = 5

	// StatusUnknownModule indicates the module does not exist.
	StatusUnknownModule Status = 6

	// StatusNotSupported indicates the server's connection lacks the call.
	StatusNotSupported Status = 9

	// StatusInvalidRequest indicates a malformed or unsupported request.
	StatusInvalidRequest Status = 7

	// StatusInternal indicates any other server-side failure.
	StatusInternal Status = 8
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusNoSuchNode:
		return "NO_SUCH_NODE"
	case StatusAccessDenied:
		return "ACCESS_DENIED"
	case StatusInvalidValue:
		return "INVALID_VALUE"
	case StatusUnknownDevice:
		return "UNKNOWN_DEVICE"
	case StatusDeviceNotConnected:
		return "DEVICE_NOT_CONNECTED"
	case StatusUnknownModule:
		return "UNKNOWN_MODULE"
	case StatusNotSupported:
		return "NOT_SUPPORTED"
	case StatusInvalidRequest:
		return "INVALID_REQUEST"
	case StatusInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}
