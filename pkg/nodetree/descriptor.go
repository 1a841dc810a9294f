package nodetree

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Property is a capability tag carried by a node.
type Property uint8

const (
	// PropertyRead allows reading the node.
	PropertyRead Property = 1 << iota

	// PropertyWrite allows writing the node.
	PropertyWrite

	// PropertySetting marks the node as part of the device settings.
	PropertySetting

	// PropertyStream marks a streaming node.
	PropertyStream
)

var propertyNames = []struct {
	flag Property
	name string
}{
	{PropertyRead, "Read"},
	{PropertyWrite, "Write"},
	{PropertySetting, "Setting"},
	{PropertyStream, "Stream"},
}

// Has returns true if all flags in o are set.
func (p Property) Has(o Property) bool { return p&o == o }

// CanRead returns true if the node is readable.
func (p Property) CanRead() bool { return p&PropertyRead != 0 }

// CanWrite returns true if the node is writable.
func (p Property) CanWrite() bool { return p&PropertyWrite != 0 }

// Names returns the tag names in canonical order.
func (p Property) Names() []string {
	var names []string
	for _, pn := range propertyNames {
		if p&pn.flag != 0 {
			names = append(names, pn.name)
		}
	}
	return names
}

// String returns the tags as the data server prints them ("Read, Write").
func (p Property) String() string {
	return strings.Join(p.Names(), ", ")
}

// ParseProperties parses a comma separated tag list. Unknown tags such as
// "Pipelined" or "Silent" are ignored.
func ParseProperties(s string) Property {
	return parsePropertyList(strings.Split(s, ","))
}

func parsePropertyList(tags []string) Property {
	var p Property
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		for _, pn := range propertyNames {
			if strings.EqualFold(tag, pn.name) {
				p |= pn.flag
			}
		}
	}
	return p
}

// UnmarshalYAML accepts both the string form ("Read, Write") and a sequence.
func (p *Property) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*p = ParseProperties(value.Value)
		return nil
	case yaml.SequenceNode:
		var tags []string
		if err := value.Decode(&tags); err != nil {
			return err
		}
		*p = parsePropertyList(tags)
		return nil
	default:
		return fmt.Errorf("properties: unexpected yaml kind %d", value.Kind)
	}
}

// MarshalYAML writes the string form.
func (p Property) MarshalYAML() (any, error) {
	return p.String(), nil
}

// UnmarshalJSON accepts both the string form and an array of tags.
func (p *Property) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = ParseProperties(s)
		return nil
	}
	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return fmt.Errorf("properties: %w", err)
	}
	*p = parsePropertyList(tags)
	return nil
}

// MarshalJSON writes the string form.
func (p Property) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// ValueType distinguishes the kinds of value a node carries.
type ValueType uint8

const (
	ValueUnknown ValueType = iota
	ValueInteger
	ValueDouble
	ValueComplex
	ValueString
	ValueVector
	ValueSample
)

// String returns the value type name.
func (v ValueType) String() string {
	names := []string{"unknown", "integer", "double", "complex", "string", "vector", "sample"}
	if int(v) < len(names) {
		return names[v]
	}
	return "unknown"
}

// Descriptor is the metadata of one node as reported by the data server.
type Descriptor struct {
	// Node is the raw node path, e.g. "/DEV1234/SIGOUTS/0/ON".
	Node string `json:"Node" yaml:"Node"`

	// Description is free-text documentation.
	Description string `json:"Description,omitempty" yaml:"Description,omitempty"`

	// Properties are the capability tags.
	Properties Property `json:"Properties" yaml:"Properties"`

	// Type is the raw type string, e.g. "Integer (64 bit)" or "ZIVectorData".
	Type string `json:"Type,omitempty" yaml:"Type,omitempty"`

	// Unit is the physical unit; "None" and "Dependent" mean unitless.
	Unit string `json:"Unit,omitempty" yaml:"Unit,omitempty"`

	// Options maps enumerated values to their meaning.
	Options map[string]string `json:"Options,omitempty" yaml:"Options,omitempty"`
}

// ValueType classifies the raw Type string.
func (d Descriptor) ValueType() ValueType {
	t := strings.ToLower(d.Type)
	switch {
	case strings.Contains(t, "zivector"):
		return ValueVector
	case strings.HasPrefix(t, "zi"):
		return ValueSample
	case strings.Contains(t, "complex"):
		return ValueComplex
	case strings.Contains(t, "integer"):
		return ValueInteger
	case strings.Contains(t, "double"), strings.Contains(t, "float"):
		return ValueDouble
	case strings.Contains(t, "string"):
		return ValueString
	default:
		return ValueUnknown
	}
}

// IsVector returns true for vector nodes.
func (d Descriptor) IsVector() bool {
	return d.ValueType() == ValueVector
}

// PhysicalUnit returns the unit, or "" when the node is unitless.
func (d Descriptor) PhysicalUnit() string {
	switch d.Unit {
	case "", "None", "Dependent":
		return ""
	default:
		return d.Unit
	}
}

// Doc renders the descriptor as a docstring, one "* Key:" entry per field.
func (d Descriptor) Doc() string {
	var sb strings.Builder
	entry := func(k, v string) {
		fmt.Fprintf(&sb, "* %s:\n\t%s\n\n", k, v)
	}
	entry("Node", d.Node)
	if d.Description != "" {
		entry("Description", d.Description)
	}
	entry("Properties", d.Properties.String())
	if d.Type != "" {
		entry("Type", d.Type)
	}
	if d.Unit != "" {
		entry("Unit", d.Unit)
	}
	if len(d.Options) > 0 {
		keys := make([]string, 0, len(d.Options))
		for k := range d.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		opts := make([]string, 0, len(keys))
		for _, k := range keys {
			opts = append(opts, fmt.Sprintf("%s: %s", k, d.Options[k]))
		}
		entry("Options", strings.Join(opts, "\n\t"))
	}
	return sb.String()
}
