package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/zhinst/zhinst-go/pkg/discovery"
	"github.com/zhinst/zhinst-go/pkg/httpapi"
)

// EnvPrefix is the prefix of environment variables read into the
// configuration. A double underscore separates sections, so
// ZICTL_HTTP__RATE_LIMIT sets http.rate_limit.
const EnvPrefix = "ZICTL_"

// Config is the zictl configuration.
type Config struct {
	// Server is the data server address. Empty uses the last server a
	// command connected to, then localhost on the default port.
	Server string `koanf:"server"`

	// Simulate serves every command from a fixture file instead of a
	// data server.
	Simulate string `koanf:"simulate"`

	Interface            string        `koanf:"interface"`
	HF2                  bool          `koanf:"hf2"`
	Timeout              time.Duration `koanf:"timeout"`
	AllowVersionMismatch bool          `koanf:"allow_version_mismatch"`

	// Profiles is a profile file replacing the embedded profiles.
	Profiles string `koanf:"profiles"`

	StateDir    string `koanf:"state_dir"`
	LogLevel    string `koanf:"log_level"`
	ProtocolLog string `koanf:"protocol_log"`

	Serve    ServeConfig    `koanf:"serve"`
	HTTP     HTTPConfig     `koanf:"http"`
	Snapshot SnapshotConfig `koanf:"snapshot"`
	Discover DiscoverConfig `koanf:"discover"`
}

// ServeConfig configures zictl serve.
type ServeConfig struct {
	Listen   string        `koanf:"listen"`
	Fixture  string        `koanf:"fixture"`
	Announce bool          `koanf:"announce"`
	Instance string        `koanf:"instance"`
	Latency  time.Duration `koanf:"latency"`
}

// HTTPConfig configures zictl http.
type HTTPConfig struct {
	Listen    string  `koanf:"listen"`
	RateLimit float64 `koanf:"rate_limit"`
	Burst     int     `koanf:"burst"`
}

// SnapshotConfig configures zictl snapshot.
type SnapshotConfig struct {
	Archive  string `koanf:"archive"`
	Keep     int    `koanf:"keep"`
	MaxChars int    `koanf:"max_chars"`
}

// DiscoverConfig configures zictl discover.
type DiscoverConfig struct {
	BrowseTimeout time.Duration `koanf:"browse_timeout"`
	NetInterface  string        `koanf:"net_interface"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	h := httpapi.DefaultConfig()
	return Config{
		Timeout:  30 * time.Second,
		StateDir: defaultStateDir(),
		LogLevel: "warn",
		Serve: ServeConfig{
			Listen:   fmt.Sprintf(":%d", discovery.DefaultPort),
			Announce: true,
		},
		HTTP: HTTPConfig{
			Listen:    h.Address,
			RateLimit: float64(h.RateLimit),
			Burst:     h.RateLimitBurst,
		},
		Snapshot: SnapshotConfig{
			MaxChars: 60,
		},
		Discover: DiscoverConfig{
			BrowseTimeout: discovery.BrowseTimeout,
		},
	}
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "zictl")
	}
	return ".zictl"
}

// flagKey maps a flag to its configuration key. Flags local to a command
// with a configuration section live in that section. Flags that are not
// configuration return "".
func flagKey(cmd *cobra.Command, f *pflag.Flag) string {
	switch f.Name {
	case ConfigOptionName, "help":
		return ""
	}
	key := strings.ReplaceAll(f.Name, "-", "_")
	if cmd.LocalNonPersistentFlags().Lookup(f.Name) == nil {
		return key
	}
	if section := configSection(cmd); section != "" {
		return section + "." + key
	}
	return ""
}

// configSection returns the configuration section of a command, found in
// its annotations.
func configSection(cmd *cobra.Command) string {
	return cmd.Annotations[sectionAnnotation]
}

const sectionAnnotation = "zictl.section"

// envKey turns ZICTL_HTTP__RATE_LIMIT into http.rate_limit.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// loadConfig layers the defaults, the optional YAML file, the environment
// and the command line flags of cmd.
func loadConfig(cmd *cobra.Command, path string) (Config, *koanf.Koanf, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return Config{}, nil, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, nil, fmt.Errorf("load environment: %w", err)
	}
	flags := posflag.ProviderWithFlag(cmd.Flags(), ".", k, func(f *pflag.Flag) (string, interface{}) {
		key := flagKey(cmd, f)
		if key == "" || !k.Exists(key) {
			return "", nil
		}
		return key, posflag.FlagVal(cmd.Flags(), f)
	})
	if err := k.Load(flags, nil); err != nil {
		return Config{}, nil, fmt.Errorf("load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, k, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// NewConfigCommand returns the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the zictl configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			b, err := a.konf.Marshal(yaml.Parser())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "init FILE",
		Short: "Write the default configuration to FILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k := koanf.New(".")
			if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
				return err
			}
			b, err := k.Marshal(yaml.Parser())
			if err != nil {
				return err
			}
			if _, err := os.Stat(args[0]); err == nil {
				return fmt.Errorf("%s already exists", args[0])
			}
			if err := os.WriteFile(args[0], b, 0644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	})
	return cmd
}
