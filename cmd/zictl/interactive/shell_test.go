package interactive

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhinst/zhinst-go/pkg/connection"
	"github.com/zhinst/zhinst-go/pkg/session"
)

const fixture = "../../../testdata/sim.yaml"

func newTestShell(t *testing.T) (*Shell, *bytes.Buffer, *connection.Simulator) {
	t.Helper()
	fx, err := connection.LoadFixture(fixture)
	require.NoError(t, err)
	sim := connection.NewSimulator(fx, connection.SimulatorConfig{})
	s, err := session.New(sim, session.Config{})
	require.NoError(t, err)

	connect := func(ctx context.Context, serial string) (*session.Device, error) {
		return s.ConnectDevice(ctx, serial, session.ConnectOptions{})
	}
	dev, err := connect(context.Background(), "dev8000")
	require.NoError(t, err)

	var buf bytes.Buffer
	return newShell(Config{Device: dev, Connect: connect, MaxChars: -1}, &buf), &buf, sim
}

// run executes line and returns what it printed.
func run(t *testing.T, sh *Shell, buf *bytes.Buffer, line string) string {
	t.Helper()
	buf.Reset()
	if quit := sh.Exec(context.Background(), line); quit {
		t.Fatalf("Exec(%q) quit the shell", line)
	}
	return buf.String()
}

func TestNavigation(t *testing.T) {
	sh, buf, _ := newTestShell(t)

	tests := []struct {
		line string
		want string
	}{
		{"pwd", "/dev8000/\n"},
		{"cd oscs", ""},
		{"pwd", "/dev8000/oscs\n"},
		{"cd ..", ""},
		{"cd /dev8000/sigouts/1", ""},
		{"pwd", "/dev8000/sigouts/1\n"},
		{"cd", ""},
		{"pwd", "/dev8000/\n"},
	}
	for _, tt := range tests {
		if got := run(t, sh, buf, tt.line); got != tt.want {
			t.Errorf("%q printed %q, want %q", tt.line, got, tt.want)
		}
	}

	out := run(t, sh, buf, "ls oscs")
	assert.Contains(t, out, "0")
	assert.Contains(t, out, "1")

	for _, line := range []string{"cd oscs/0/freq", "cd nope", "cd /dev2345/oscs"} {
		if out := run(t, sh, buf, line); !strings.HasPrefix(out, "Error:") {
			t.Errorf("%q printed %q, want an error", line, out)
		}
	}
	if got, want := sh.prompt(), "dev8000:/> "; got != want {
		t.Errorf("prompt() = %q, want %q", got, want)
	}
}

func TestGetSet(t *testing.T) {
	sh, buf, sim := newTestShell(t)

	assert.Equal(t, "oscs[0].freq = 1e+07 Hz\n", run(t, sh, buf, "get oscs[0].freq"))

	run(t, sh, buf, "cd oscs")
	assert.Equal(t, "oscs[1].freq = 2.5e+06 Hz\n", run(t, sh, buf, "set 1/freq 2.5e6"))
	assert.Equal(t, "oscs[1].freq = 2.5e+06 Hz\n", run(t, sh, buf, "get /dev8000/oscs/1/freq"))

	calls := sim.SetCalls()
	require.Len(t, calls, 1)
	assert.True(t, strings.EqualFold("/dev8000/oscs/1/freq", calls[0].Path), "set path = %q", calls[0].Path)

	out := run(t, sh, buf, "set /dev8000/system/fwrevision 1")
	assert.True(t, strings.HasPrefix(out, "Error:"), "read-only set printed %q", out)

	assert.Contains(t, run(t, sh, buf, "get"), "Usage: get <path>")
	assert.Contains(t, run(t, sh, buf, "set 1/freq"), "Usage: set <path> <value>")
}

func TestInspection(t *testing.T) {
	sh, buf, _ := newTestShell(t)

	out := run(t, sh, buf, "tree oscs -v")
	assert.Contains(t, out, "oscs[2]")
	assert.Contains(t, out, "freq: 1e+07 Hz")

	assert.Equal(t, "freq: 1e+07 Hz (read-write)\n", run(t, sh, buf, "info oscs/0/freq"))

	out = run(t, sh, buf, "snapshot oscs")
	assert.Contains(t, out, "freq")
	assert.Contains(t, out, "Hz")
}

func TestUse(t *testing.T) {
	sh, buf, _ := newTestShell(t)
	run(t, sh, buf, "cd oscs")

	assert.Equal(t, "connected to dev1234 (MFLI)\n", run(t, sh, buf, "use dev1234"))
	assert.Equal(t, "/dev1234/\n", run(t, sh, buf, "pwd"))

	out := run(t, sh, buf, "use dev0404")
	assert.True(t, strings.HasPrefix(out, "Error:"), "unknown device printed %q", out)

	sh.cfg.Connect = nil
	out = run(t, sh, buf, "use dev8000")
	assert.Contains(t, out, "not available")
}

func TestExecMisc(t *testing.T) {
	sh, buf, _ := newTestShell(t)

	assert.Contains(t, run(t, sh, buf, "help"), "Commands:")
	assert.Equal(t, "", run(t, sh, buf, "   "))
	assert.Contains(t, run(t, sh, buf, "frobnicate"), "Unknown command: frobnicate")

	for _, line := range []string{"quit", "exit", "q"} {
		if !sh.Exec(context.Background(), line) {
			t.Errorf("Exec(%q) = false, want true", line)
		}
	}
}

func TestCompleter(t *testing.T) {
	sh, _, _ := newTestShell(t)
	c := &completer{shell: sh}

	tests := []struct {
		line    string
		want    []string
		wantLen int
	}{
		{"se", []string{"t "}, 2},
		{"get osc", []string{"s[0].freq ", "s[1].freq "}, 3},
		{"get sigouts[1].", []string{"on "}, 11},
		{"get zzz", nil, 3},
	}
	for _, tt := range tests {
		got, n := c.Do([]rune(tt.line), len([]rune(tt.line)))
		var gotStr []string
		for _, r := range got {
			gotStr = append(gotStr, string(r))
		}
		assert.Equal(t, tt.want, gotStr, "Do(%q)", tt.line)
		if n != tt.wantLen {
			t.Errorf("Do(%q) length = %d, want %d", tt.line, n, tt.wantLen)
		}
	}
}
