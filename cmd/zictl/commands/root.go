// Package commands implements the zictl command tree.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/knadh/koanf"
	"github.com/spf13/cobra"

	"github.com/zhinst/zhinst-go/pkg/log"
	"github.com/zhinst/zhinst-go/pkg/persistence"
	"github.com/zhinst/zhinst-go/pkg/session"
)

// Persistent option names.
const (
	ConfigOptionName      = "config"
	ServerOptionName      = "server"
	SimulateOptionName    = "simulate"
	InterfaceOptionName   = "interface"
	HF2OptionName         = "hf2"
	TimeoutOptionName     = "timeout"
	MismatchOptionName    = "allow-version-mismatch"
	ProfilesOptionName    = "profiles"
	StateDirOptionName    = "state-dir"
	LogLevelOptionName    = "log-level"
	ProtocolLogOptionName = "protocol-log"
)

type appKey struct{}

// app is the per-invocation state shared by the commands.
type app struct {
	cfg    Config
	konf   *koanf.Koanf
	logger *slog.Logger
	state  *persistence.StateStore

	protocol *log.FileLogger
	registry *session.Registry

	// address is the last data server dialed.
	address string
}

func appFrom(cmd *cobra.Command) *app {
	a, _ := cmd.Context().Value(appKey{}).(*app)
	return a
}

func (a *app) close() {
	if a.registry != nil {
		a.registry.CloseAll()
	}
	if a.protocol != nil {
		if err := a.protocol.Err(); err != nil {
			a.logger.Warn("protocol log incomplete", "path", a.protocol.Path(), "error", err)
		}
		a.logger.Debug("protocol log closed", "path", a.protocol.Path(), "events", a.protocol.Count())
		a.protocol.Close()
	}
}

// protocolLogger returns the protocol event sink, nil when disabled.
func (a *app) protocolLogger() log.Logger {
	if a.protocol == nil {
		return nil
	}
	return a.protocol
}

// newRootCommand returns the zictl root command. The holder receives the
// app once the configuration is loaded so Execute can release it.
func newRootCommand(holder **app) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "zictl",
		Short:         "Tool to work with Zurich Instruments data servers and devices",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, k, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}
			level, err := parseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			a := &app{
				cfg:    cfg,
				konf:   k,
				logger: slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})),
				state:  persistence.NewDirStore(cfg.StateDir),
			}
			if cfg.ProtocolLog != "" {
				a.protocol, err = log.NewFileLogger(cfg.ProtocolLog)
				if err != nil {
					return fmt.Errorf("open protocol log: %w", err)
				}
			}
			*holder = a
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&configPath, ConfigOptionName, "c", "", "YAML configuration file")
	pf.StringP(ServerOptionName, "s", "", "Data server address host:port")
	pf.String(SimulateOptionName, "", "Serve commands from a simulator fixture instead of a data server")
	pf.String(InterfaceOptionName, "", "Device interface (1GbE, USB, PCIe)")
	pf.Bool(HF2OptionName, false, "Use the HF2 data server default port")
	pf.Duration(TimeoutOptionName, 0, "Timeout of one command")
	pf.Bool(MismatchOptionName, false, "Accept a data server of another LabOne release")
	pf.String(ProfilesOptionName, "", "Device profile file replacing the built-in profiles")
	pf.String(StateDirOptionName, "", "Directory of the client state file")
	pf.String(LogLevelOptionName, "", "Log level (debug, info, warn, error)")
	pf.String(ProtocolLogOptionName, "", "Write protocol events to this file")

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewDiscoverCommand())
	cmd.AddCommand(NewTreeCommand())
	cmd.AddCommand(NewSnapshotCommand())
	cmd.AddCommand(NewGetCommand())
	cmd.AddCommand(NewSetCommand())
	cmd.AddCommand(NewShellCommand())
	cmd.AddCommand(NewHTTPCommand())
	cmd.AddCommand(NewLogCommand())
	cmd.AddCommand(NewServersCommand())
	cmd.AddCommand(NewConfigCommand())
	return cmd
}

// Execute runs zictl with args.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var a *app
	cmd := newRootCommand(&a)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	defer func() {
		if a != nil {
			a.close()
		}
	}()
	err := cmd.ExecuteContext(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
