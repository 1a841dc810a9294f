package main

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhinst/zhinst-go/pkg/builder"
	"github.com/zhinst/zhinst-go/pkg/model"
	"github.com/zhinst/zhinst-go/pkg/nodetree"
)

const mfliNodes = "../../pkg/nodetree/testdata/mfli.json"

func loadNodes(t *testing.T) map[string]nodetree.Descriptor {
	t.Helper()
	nodes, err := nodetree.LoadFile(mfliNodes)
	require.NoError(t, err)
	return nodes
}

func TestGenerate(t *testing.T) {
	code, err := Generate(loadNodes(t), Options{Source: "mfli.json", Device: "MFLI"})
	require.NoError(t, err)

	_, err = parser.ParseFile(token.NewFileSet(), "accessors_gen.go", code, parser.ParseComments)
	require.NoError(t, err, "generated code must parse:\n%s", code)

	for _, want := range []string{
		"// Code generated by zi-accessorgen from mfli.json. DO NOT EDIT.",
		"package mfli",
		`const Device = "MFLI"`,
		"func NewAccessors(root model.Node) *Accessors {",
		"func (a *Accessors) SigoutsOn(sigout int) (*model.Parameter, error) {",
		"func (a *Accessors) SigoutsEnables(sigout, enable int) (*model.Parameter, error) {",
		`model.FindParameter(a.root, "sigouts", strconv.Itoa(sigout), "enables", strconv.Itoa(enable))`,
		"func (a *Accessors) SystemFwrevision() (*model.Parameter, error) {",
		"func (a *Accessors) TriggersInLevel(in int) (*model.Parameter, error) {",
		"// SigoutsOn returns /sigouts/n/on.",
		"// Enables the signal output.",
	} {
		if !strings.Contains(code, want) {
			t.Errorf("generated code missing %q", want)
		}
	}
	assert.Equal(t, 1, strings.Count(code, ") SigoutsEnables("), "index variants share one accessor")
}

func TestGenerateOptions(t *testing.T) {
	nodes := loadNodes(t)

	code, err := Generate(nodes, Options{Device: "MFLI", Package: "lockin", Type: "Lockin"})
	require.NoError(t, err)
	assert.Contains(t, code, "package lockin")
	assert.Contains(t, code, "func (a *Lockin) DemodsRate(demod int)")

	_, err = Generate(nodes, Options{Device: "MFLI", Type: "lockin"})
	assert.Error(t, err, "unexported type")

	_, err = Generate(nil, Options{Device: "MFLI"})
	assert.Error(t, err)
}

func TestAccessorsResolve(t *testing.T) {
	nodes := loadNodes(t)
	root := model.NewContainer("dev1234", "", nil)
	_, err := builder.BuildNodes(root, nodes, builder.Config{Prefix: "dev1234"})
	require.NoError(t, err)

	tree, errs := nodetree.Dictify(nodes, "dev1234")
	require.Empty(t, errs)
	accessors := collect(tree)
	require.Len(t, accessors, 9)

	for _, a := range accessors {
		segs := make([]string, len(a.Example))
		for i, s := range a.Example {
			segs[i] = s.String()
		}
		if _, err := model.FindParameter(root, segs...); err != nil {
			t.Errorf("%s: FindParameter(%v) error = %v", a.Name, segs, err)
		}
	}
}

func TestNames(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sigouts", "Sigouts"},
		{"rate_limit", "RateLimit"},
		{"3d", "N3d"},
		{"fwrevision", "Fwrevision"},
	}
	for _, tt := range tests {
		if got := goName(tt.in); got != tt.want {
			t.Errorf("goName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	params := []struct {
		prev  string
		taken map[string]bool
		want  string
	}{
		{"sigouts", nil, "sigout"},
		{"in", nil, "in"},
		{"", nil, "i"},
		{"type", nil, "nType"},
		{"demods", map[string]bool{"demod": true}, "demod2"},
	}
	for _, tt := range params {
		taken := tt.taken
		if taken == nil {
			taken = map[string]bool{}
		}
		if got := paramName(tt.prev, taken); got != tt.want {
			t.Errorf("paramName(%q) = %q, want %q", tt.prev, got, tt.want)
		}
	}

	assert.Equal(t, "hdawg8", packageName("HDAWG8"))
	assert.Equal(t, "zi2hdawg", packageName("2-HDAWG"))
	assert.Equal(t, "device", packageName("--"))
}

func TestRun(t *testing.T) {
	out := filepath.Join(t.TempDir(), "mfli", "accessors_gen.go")
	require.NoError(t, run(mfliNodes, out, Options{Source: "mfli.json", Device: "MFLI"}))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(b), "DO NOT EDIT")
	assert.Contains(t, string(b), "SigoutsOn")
}
