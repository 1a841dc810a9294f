package nodetree

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Decode reads a flat nodetree mapping. YAML and JSON input are both
// accepted since JSON is valid YAML.
func Decode(r io.Reader) (map[string]Descriptor, error) {
	var nodes map[string]Descriptor
	if err := yaml.NewDecoder(r).Decode(&nodes); err != nil {
		if err == io.EOF {
			return map[string]Descriptor{}, nil
		}
		return nil, fmt.Errorf("decode nodetree: %w", err)
	}
	for path, d := range nodes {
		if d.Node == "" {
			d.Node = path
			nodes[path] = d
		}
	}
	return nodes, nil
}

// LoadFile reads a nodetree mapping from a file.
func LoadFile(path string) (map[string]Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}
