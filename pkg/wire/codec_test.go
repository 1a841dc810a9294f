package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhinst/zhinst-go/pkg/nodetree"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"hello", Request{MessageID: 1, Op: OpHello, Version: "24.10"}, false},
		{"get", Request{MessageID: 2, Op: OpGet, Path: "/dev1234/sigouts/0/on"}, false},
		{"get without path", Request{MessageID: 2, Op: OpGet}, true},
		{"reserved id", Request{MessageID: 0, Op: OpSync}, true},
		{"unknown op", Request{MessageID: 3, Op: Op(99)}, true},
		{"bulk with empty pattern", Request{MessageID: 4, Op: OpGetBulk}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetRequestValues(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  any
	}{
		{"int", 1, int64(1)},
		{"negative", int64(-7), int64(-7)},
		{"float", 1674.1, 1674.1},
		{"string", "dev1234", "dev1234"},
		{"complex", complex(1, -2), complex(1, -2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeRequest(&Request{MessageID: 7, Op: OpSet, Path: "/a/b", Value: tt.value})
			require.NoError(t, err)
			req, err := DecodeRequest(data)
			require.NoError(t, err)
			if req.Value != tt.want {
				t.Errorf("Value = %#v, want %#v", req.Value, tt.want)
			}
		})
	}
}

func TestBulkResponse(t *testing.T) {
	resp := &Response{
		MessageID: 9,
		Values: map[string]any{
			"/dev1234/demods/0/sample": map[string]any{"timestamp": uint64(100), "value": []any{complex(1, 2)}},
			"/dev1234/system/fwlog":    []any{"boot ok"},
		},
	}
	data, err := EncodeResponse(resp)
	require.NoError(t, err)
	got, err := DecodeResponse(data)
	require.NoError(t, err)

	assert.True(t, got.IsSuccess())
	entry, ok := got.Values["/dev1234/demods/0/sample"].(map[string]any)
	require.True(t, ok, "entry type = %T", got.Values["/dev1234/demods/0/sample"])
	assert.Equal(t, []any{complex(1, 2)}, entry["value"])
	assert.Equal(t, int64(100), entry["timestamp"])
	assert.Equal(t, []any{"boot ok"}, got.Values["/dev1234/system/fwlog"])

	// The caller's map is not modified.
	orig := resp.Values["/dev1234/demods/0/sample"].(map[string]any)
	assert.Equal(t, []any{complex(1, 2)}, orig["value"])
}

func TestListNodesResponse(t *testing.T) {
	resp := &Response{
		MessageID: 3,
		Nodes: map[string]nodetree.Descriptor{
			"/dev1234/demods/0/rate": {
				Node:        "/DEV1234/DEMODS/0/RATE",
				Description: "Sample rate.",
				Properties:  nodetree.PropertyRead | nodetree.PropertyWrite | nodetree.PropertySetting,
				Type:        "Double",
				Unit:        "1/s",
			},
		},
	}
	data, err := EncodeResponse(resp)
	require.NoError(t, err)
	got, err := DecodeResponse(data)
	require.NoError(t, err)
	assert.Equal(t, resp.Nodes, got.Nodes)
}

func TestErrorResponse(t *testing.T) {
	data, err := EncodeResponse(ErrorResponse(5, StatusAccessDenied, "/dev1234/system/fwrevision is read-only"))
	require.NoError(t, err)
	got, err := DecodeResponse(data)
	require.NoError(t, err)
	assert.False(t, got.IsSuccess())
	assert.Equal(t, StatusAccessDenied, got.Status)
	assert.Equal(t, "ACCESS_DENIED", got.Status.String())
	assert.Equal(t, "/dev1234/system/fwrevision is read-only", got.Error)
}

func TestOpString(t *testing.T) {
	if OpGetBulk.String() != "GetBulk" {
		t.Errorf("OpGetBulk.String() = %q, want GetBulk", OpGetBulk.String())
	}
	if Op(0).IsValid() {
		t.Error("Op(0) should be invalid")
	}
}
