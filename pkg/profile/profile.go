package profile

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/zhinst/zhinst-go/pkg/builder"
)

//go:embed profiles/*.yaml
var embedded embed.FS

// DefaultType names the profile whose extras apply to every device type.
const DefaultType = "default"

// SerialPlaceholder is replaced by the device serial in extra node paths.
const SerialPlaceholder = "{serial}"

var (
	ErrMissingType = errors.New("profile has no type")
	ErrExtraNode   = errors.New("extra parameter needs a name and a node")
)

// Extra is an additional parameter attached to the device root. It reads
// (and unless read-only, writes) an arbitrary node of the session.
type Extra struct {
	Name     string `yaml:"name"`
	Node     string `yaml:"node"`
	Label    string `yaml:"label,omitempty"`
	Unit     string `yaml:"unit,omitempty"`
	ReadOnly bool   `yaml:"readonly,omitempty"`
}

// NodePath returns the extra's node path for a device.
func (e Extra) NodePath(serial string) string {
	return strings.ReplaceAll(e.Node, SerialPlaceholder, strings.ToLower(serial))
}

// Profile is the build configuration of one device type.
type Profile struct {
	Type      string   `yaml:"type"`
	Keys      []string `yaml:"keys,omitempty"`
	Blacklist []string `yaml:"blacklist,omitempty"`
	ForceList []string `yaml:"force_list,omitempty"`
	ForceFlat []string `yaml:"force_flat,omitempty"`
	Extra     []Extra  `yaml:"extra,omitempty"`
}

// Apply copies the profile's tree-shaping fields into a builder config.
func (p *Profile) Apply(cfg *builder.Config) {
	cfg.Keys = append(cfg.Keys, p.Keys...)
	cfg.Blacklist = append(cfg.Blacklist, p.Blacklist...)
	cfg.ForceList = append(cfg.ForceList, p.ForceList...)
	cfg.ForceFlat = append(cfg.ForceFlat, p.ForceFlat...)
}

func (p *Profile) validate() error {
	if p.Type == "" {
		return ErrMissingType
	}
	for _, e := range p.Extra {
		if e.Name == "" || e.Node == "" {
			return fmt.Errorf("%s: %w", p.Type, ErrExtraNode)
		}
	}
	return nil
}

// override replaces every field o sets.
func (p *Profile) override(o *Profile) {
	if o.Keys != nil {
		p.Keys = o.Keys
	}
	if o.Blacklist != nil {
		p.Blacklist = o.Blacklist
	}
	if o.ForceList != nil {
		p.ForceList = o.ForceList
	}
	if o.ForceFlat != nil {
		p.ForceFlat = o.ForceFlat
	}
	if o.Extra != nil {
		p.Extra = o.Extra
	}
}

// Decode reads a YAML stream of profile documents.
func Decode(r io.Reader) ([]*Profile, error) {
	dec := yaml.NewDecoder(r)
	var out []*Profile
	for {
		var p Profile
		err := dec.Decode(&p)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode profile: %w", err)
		}
		p.Type = strings.ToLower(strings.TrimSpace(p.Type))
		if err := p.validate(); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
}

// Set holds the profiles of all known device types.
type Set struct {
	profiles map[string]*Profile
}

// NewSet creates a set from profiles. Later profiles of the same type
// override earlier ones field by field.
func NewSet(profiles ...*Profile) *Set {
	s := &Set{profiles: make(map[string]*Profile)}
	s.add(profiles)
	return s
}

func (s *Set) add(profiles []*Profile) {
	for _, p := range profiles {
		if cur, ok := s.profiles[p.Type]; ok {
			cur.override(p)
			continue
		}
		cp := *p
		s.profiles[p.Type] = &cp
	}
}

var loadEmbedded = sync.OnceValues(func() ([]*Profile, error) {
	files, err := fs.Glob(embedded, "profiles/*.yaml")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	var all []*Profile
	for _, name := range files {
		f, err := embedded.Open(name)
		if err != nil {
			return nil, err
		}
		ps, err := Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path.Base(name), err)
		}
		all = append(all, ps...)
	}
	return all, nil
})

// Default returns the embedded profiles.
func Default() (*Set, error) {
	ps, err := loadEmbedded()
	if err != nil {
		return nil, err
	}
	return NewSet(ps...), nil
}

// LoadFile returns the embedded profiles overridden by the file at path.
func LoadFile(path string) (*Set, error) {
	s, err := Default()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ps, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.add(ps)
	return s, nil
}

// Types returns the device types with a profile, sorted.
func (s *Set) Types() []string {
	out := make([]string, 0, len(s.profiles))
	for t := range s.profiles {
		if t != DefaultType {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// Match returns the profile type a device type string belongs to, by the
// longest matching prefix ("HDAWG8" is "hdawg", "HF2LI" is "hf2").
func (s *Set) Match(devtype string) (string, bool) {
	devtype = strings.ToLower(strings.TrimSpace(devtype))
	best := ""
	for t := range s.profiles {
		if t != DefaultType && strings.HasPrefix(devtype, t) && len(t) > len(best) {
			best = t
		}
	}
	return best, best != ""
}

// For returns the effective profile of a device type: the type's own
// profile with the default extras in front. Unknown types get the default
// profile alone.
func (s *Set) For(devtype string) *Profile {
	out := &Profile{Type: strings.ToLower(devtype)}
	if def, ok := s.profiles[DefaultType]; ok {
		out.Extra = append(out.Extra, def.Extra...)
	}
	t, ok := s.Match(devtype)
	if !ok {
		return out
	}
	p := s.profiles[t]
	out.Type = t
	out.Keys = append(out.Keys, p.Keys...)
	out.Blacklist = append(out.Blacklist, p.Blacklist...)
	out.ForceList = append(out.ForceList, p.ForceList...)
	out.ForceFlat = append(out.ForceFlat, p.ForceFlat...)
	for _, e := range p.Extra {
		out.Extra = replaceExtra(out.Extra, e)
	}
	return out
}

func replaceExtra(list []Extra, e Extra) []Extra {
	for i := range list {
		if list[i].Name == e.Name {
			list[i] = e
			return list
		}
	}
	return append(list, e)
}
