package wire

import (
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// ComplexTag is the CBOR tag number used for complex values.
const ComplexTag = 43000

// Complex is the wire form of a complex number.
type Complex struct {
	_  struct{} `cbor:",toarray"`
	Re float64
	Im float64
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	tags := cbor.NewTagSet()
	if err := tags.Add(
		cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired},
		reflect.TypeOf(Complex{}),
		ComplexTag,
	); err != nil {
		panic(fmt.Sprintf("failed to register complex tag: %v", err))
	}

	var err error
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}
	encMode, err = encOpts.EncModeWithTags(tags)
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Lenient for forward compatibility. Maps decode with string keys and
	// integers as int64 so values look the same as from an in-process
	// connection.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
		DefaultMapType:    reflect.TypeOf(map[string]any(nil)),
		IntDec:            cbor.IntDecConvertSigned,
	}
	decMode, err = decOpts.DecModeWithTags(tags)
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder creates a new CBOR encoder that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder creates a new CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// EncodeRequest encodes a request message to CBOR bytes.
func EncodeRequest(req *Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	out := *req
	out.Value = EncodeValue(req.Value)
	return Marshal(&out)
}

// DecodeRequest decodes CBOR bytes into a request message.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	req.Value = DecodeValue(req.Value)
	return &req, nil
}

// EncodeResponse encodes a response message to CBOR bytes.
func EncodeResponse(resp *Response) ([]byte, error) {
	out := *resp
	out.Value = EncodeValue(resp.Value)
	if resp.Values != nil {
		out.Values = make(map[string]any, len(resp.Values))
		for k, v := range resp.Values {
			out.Values[k] = EncodeValue(v)
		}
	}
	if resp.Polled != nil {
		out.Polled = make(map[string][]any, len(resp.Polled))
		for k, vs := range resp.Polled {
			out.Polled[k] = EncodeValue(vs).([]any)
		}
	}
	return Marshal(&out)
}

// DecodeResponse decodes CBOR bytes into a response message.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	resp.Value = DecodeValue(resp.Value)
	for k, v := range resp.Values {
		resp.Values[k] = DecodeValue(v)
	}
	for k, vs := range resp.Polled {
		resp.Polled[k] = DecodeValue(vs).([]any)
	}
	return &resp, nil
}

// EncodeValue replaces complex numbers anywhere in v by Complex.
func EncodeValue(v any) any {
	switch x := v.(type) {
	case complex128:
		return Complex{Re: real(x), Im: imag(x)}
	case complex64:
		return Complex{Re: float64(real(x)), Im: float64(imag(x))}
	case []complex128:
		out := make([]any, len(x))
		for i, c := range x {
			out[i] = EncodeValue(c)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = EncodeValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = EncodeValue(e)
		}
		return out
	default:
		return v
	}
}

// DecodeValue turns Complex values anywhere in v back into complex128.
func DecodeValue(v any) any {
	switch x := v.(type) {
	case Complex:
		return complex(x.Re, x.Im)
	case *Complex:
		return complex(x.Re, x.Im)
	case []any:
		for i, e := range x {
			x[i] = DecodeValue(e)
		}
		return x
	case map[string]any:
		for k, e := range x {
			x[k] = DecodeValue(e)
		}
		return x
	default:
		return v
	}
}
