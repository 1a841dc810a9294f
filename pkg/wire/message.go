package wire

import (
	"fmt"
	"time"

	"github.com/zhinst/zhinst-go/pkg/nodetree"
)

// Options mirrors the bulk-read flags of the data server.
type Options struct {
	ExcludeStreaming bool `cbor:"1,keyasint,omitempty"`
	SettingsOnly     bool `cbor:"2,keyasint,omitempty"`
	ExcludeVectors   bool `cbor:"3,keyasint,omitempty"`
	Flat             bool `cbor:"4,keyasint,omitempty"`
}

// Request is a client call.
//
// CBOR encoding:
//
//	{
//	  1: messageId,   // uint32, never 0
//	  2: op,          // uint8
//	  3: path,        // node path, pattern, serial or module name
//	  4: value,       // OpSet value
//	  5: options,     // OpGetBulk flags
//	  6: interface,   // OpConnectDevice interface ("1GbE", "USB")
//	  7: recording,   // OpPoll recording time in ms
//	  8: timeout,     // OpPoll timeout in ms
//	  9: version      // OpHello client version
//	}
type Request struct {
	MessageID uint32   `cbor:"1,keyasint"`
	Op        Op       `cbor:"2,keyasint"`
	Path      string   `cbor:"3,keyasint,omitempty"`
	Value     any      `cbor:"4,keyasint,omitempty"`
	Options   *Options `cbor:"5,keyasint,omitempty"`
	Interface string   `cbor:"6,keyasint,omitempty"`
	Recording int64    `cbor:"7,keyasint,omitempty"`
	Timeout   int64    `cbor:"8,keyasint,omitempty"`
	Version   string   `cbor:"9,keyasint,omitempty"`
}

// Validate checks the request.
func (r *Request) Validate() error {
	if r.MessageID == 0 {
		return fmt.Errorf("messageId 0 is reserved")
	}
	if !r.Op.IsValid() {
		return fmt.Errorf("invalid operation: %d", r.Op)
	}
	switch r.Op {
	case OpGet, OpSet, OpConnectDevice, OpDisconnectDevice, OpCreateModule:
		if r.Path == "" {
			return fmt.Errorf("%s requires a path", r.Op)
		}
	}
	return nil
}

// RecordingDuration returns the poll recording time.
func (r *Request) RecordingDuration() time.Duration {
	return time.Duration(r.Recording) * time.Millisecond
}

// TimeoutDuration returns the poll timeout.
func (r *Request) TimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Millisecond
}

// Response answers the request with the same message ID.
//
// CBOR encoding:
//
//	{
//	  1: messageId,
//	  2: status,      // 0 = success
//	  3: error,       // message when status != 0
//	  4: value,       // OpGet / OpSet
//	  5: values,      // OpGetBulk
//	  6: nodes,       // OpListNodes
//	  7: polled,      // OpPoll
//	  8: version      // OpHello server version
//	}
type Response struct {
	MessageID uint32                         `cbor:"1,keyasint"`
	Status    Status                         `cbor:"2,keyasint"`
	Error     string                         `cbor:"3,keyasint,omitempty"`
	Value     any                            `cbor:"4,keyasint,omitempty"`
	Values    map[string]any                 `cbor:"5,keyasint,omitempty"`
	Nodes     map[string]nodetree.Descriptor `cbor:"6,keyasint,omitempty"`
	Polled    map[string][]any               `cbor:"7,keyasint,omitempty"`
	Version   string                         `cbor:"8,keyasint,omitempty"`
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// ErrorResponse builds a failed response for id.
func ErrorResponse(id uint32, status Status, msg string) *Response {
	return &Response{MessageID: id, Status: status, Error: msg}
}
