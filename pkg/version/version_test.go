package version

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Version
	}{
		{"24.10", Version{24, 10, 0}},
		{"23.06.43241", Version{23, 6, 43241}},
		{" 22.02 ", Version{22, 2, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.input, err)
			}
			if v != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, v, tt.want)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, input := range []string{"", "24", "a.b", "24.10.x", "1.2.3.4", "-1.0"} {
		t.Run(input, func(t *testing.T) {
			if _, err := Parse(input); err == nil {
				t.Errorf("Parse(%q) should fail", input)
			}
		})
	}
}

func TestString(t *testing.T) {
	if got := MustParse("23.6").String(); got != "23.06" {
		t.Errorf("String() = %q, want %q", got, "23.06")
	}
	if got := MustParse("24.10.65001").String(); got != "24.10.65001" {
		t.Errorf("String() = %q, want %q", got, "24.10.65001")
	}
}

func TestLess(t *testing.T) {
	if !MustParse("23.10").Less(MustParse("24.01")) {
		t.Error("23.10 should be less than 24.01")
	}
	if MustParse("24.10.2").Less(MustParse("24.10.1")) {
		t.Error("24.10.2 should not be less than 24.10.1")
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		client, server string
		allow          bool
		wantMismatch   bool
	}{
		{"24.10", "24.10.65001", false, false},
		{"24.10", "24.07", false, true},
		{"24.10", "24.07", true, false},
		{"24.10", "23.10", false, true},
	}
	for _, tt := range tests {
		err := Check(tt.client, tt.server, tt.allow)
		if got := errors.Is(err, ErrMismatch); got != tt.wantMismatch {
			t.Errorf("Check(%s, %s, %v) = %v, want mismatch %v", tt.client, tt.server, tt.allow, err, tt.wantMismatch)
		}
	}
	if err := Check("24.10", "garbage", true); err == nil {
		t.Error("Check with an unparsable server version should fail")
	}
}
