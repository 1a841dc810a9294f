package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/zhinst/zhinst-go/pkg/log"
)

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"single byte", []byte{0x42}},
		{"medium", bytes.Repeat([]byte("x"), 1000)},
		{"binary", []byte{0x00, 0xFF, 0x7F, 0x80}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			if err := NewFrameWriter(buf, 0).WriteFrame(tt.payload); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}
			if buf.Len() != LengthPrefixSize+len(tt.payload) {
				t.Errorf("frame size = %d, want %d", buf.Len(), LengthPrefixSize+len(tt.payload))
			}
			got, err := NewFrameReader(buf, 0).ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("payload = %x, want %x", got, tt.payload)
			}
		})
	}
}

func TestFrameErrors(t *testing.T) {
	prefix := func(n uint32) []byte {
		b := make([]byte, LengthPrefixSize)
		binary.BigEndian.PutUint32(b, n)
		return b
	}
	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{"eof", nil, io.EOF},
		{"empty", prefix(0), ErrMessageEmpty},
		{"too large", prefix(65), ErrMessageTooLarge},
		{"truncated prefix", []byte{0, 0}, ErrFrameTruncated},
		{"truncated payload", append(prefix(10), 1, 2, 3), ErrFrameTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrameReader(bytes.NewReader(tt.input), 64).ReadFrame()
			if !errors.Is(err, tt.want) {
				t.Errorf("ReadFrame() error = %v, want %v", err, tt.want)
			}
		})
	}

	w := NewFrameWriter(new(bytes.Buffer), 4)
	if err := w.WriteFrame(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("WriteFrame(nil) error = %v, want ErrMessageEmpty", err)
	}
	if err := w.WriteFrame([]byte("hello")); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("WriteFrame(5 bytes) error = %v, want ErrMessageTooLarge", err)
	}
}

func TestFramerLogging(t *testing.T) {
	var events []log.Event
	buf := new(bytes.Buffer)
	f := NewFramer(buf, 0)
	f.SetLogger(log.LoggerFunc(func(e log.Event) { events = append(events, e) }), "conn-1", log.RoleClient)

	big := bytes.Repeat([]byte("z"), MaxLogFrameDataSize+10)
	if err := f.WriteFrame(big); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ReadFrame(); err != nil {
		t.Fatal(err)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	out, in := events[0], events[1]
	if out.Direction != log.DirectionOut || in.Direction != log.DirectionIn {
		t.Errorf("directions = %v/%v, want OUT/IN", out.Direction, in.Direction)
	}
	if !out.Frame.Truncated || len(out.Frame.Data) != MaxLogFrameDataSize {
		t.Errorf("frame data = %d bytes (truncated %v), want %d truncated", len(out.Frame.Data), out.Frame.Truncated, MaxLogFrameDataSize)
	}
	if out.Frame.Size != LengthPrefixSize+len(big) {
		t.Errorf("frame size = %d, want %d", out.Frame.Size, LengthPrefixSize+len(big))
	}
	if out.ConnectionID != "conn-1" || out.LocalRole != log.RoleClient {
		t.Errorf("event = %+v, want conn-1 client", out)
	}
}
