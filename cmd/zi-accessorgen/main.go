// Command zi-accessorgen generates typed parameter accessors for a device
// nodetree.
//
// Usage:
//
//	zi-accessorgen -nodes mfli.json -device MFLI -output mfli/accessors_gen.go
//
// The nodes file is the JSON (or YAML) node listing of one device, as
// returned by the data server. Every parameter shape becomes one method;
// indices in the path become int arguments.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/tools/imports"

	"github.com/zhinst/zhinst-go/pkg/nodetree"
)

func main() {
	nodesPath := flag.String("nodes", "", "Nodetree file (JSON or YAML)")
	device := flag.String("device", "", "Device type the accessors are for, e.g. MFLI")
	prefix := flag.String("prefix", "", "Device prefix of the node paths (default: detected)")
	pkg := flag.String("package", "", "Package name (default: lower-cased device type)")
	typeName := flag.String("type", "Accessors", "Name of the generated type")
	output := flag.String("output", "", "Output Go file")
	flag.Parse()

	if *nodesPath == "" || *device == "" || *output == "" {
		fmt.Fprintln(os.Stderr, "Usage: zi-accessorgen -nodes <file> -device <type> -output <file.go> [-prefix <serial>] [-package <name>] [-type <name>]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	opts := Options{
		Source:  filepath.Base(*nodesPath),
		Device:  *device,
		Prefix:  *prefix,
		Package: *pkg,
		Type:    *typeName,
	}
	if err := run(*nodesPath, *output, opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(nodesPath, output string, opts Options) error {
	nodes, err := nodetree.LoadFile(nodesPath)
	if err != nil {
		return fmt.Errorf("loading nodes: %w", err)
	}
	code, err := Generate(nodes, opts)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}
	if err := writeFormatted(output, code); err != nil {
		return err
	}
	fmt.Printf("  generated %s\n", output)
	return nil
}

// writeFormatted runs goimports over code and writes it to path.
func writeFormatted(path string, code string) error {
	formatted, err := imports.Process(path, []byte(code), nil)
	if err != nil {
		// Keep the raw output around for debugging the templates.
		_ = os.WriteFile(path+".broken", []byte(code), 0o644)
		return fmt.Errorf("goimports %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, formatted, 0o644)
}

// packageName derives a package name from a device type ("HDAWG8" -> "hdawg8").
func packageName(device string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(device) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return "device"
	}
	name := sb.String()
	if name[0] >= '0' && name[0] <= '9' {
		name = "zi" + name
	}
	return name
}
