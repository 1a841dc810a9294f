package commands

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zhinst/zhinst-go/cmd/zictl/interactive"
	"github.com/zhinst/zhinst-go/pkg/session"
)

// NewShellCommand returns the shell command.
func NewShellCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell SERIAL",
		Short: "Browse and change a device interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			ctx, cancel := a.commandContext(cmd.Context())
			dev, err := a.connectDevice(ctx, args[0])
			cancel()
			if err != nil {
				return err
			}

			if err := os.MkdirAll(a.cfg.StateDir, 0755); err != nil {
				return err
			}
			sh, err := interactive.New(interactive.Config{
				Device: dev,
				Connect: func(ctx context.Context, serial string) (*session.Device, error) {
					return a.connectDevice(ctx, serial)
				},
				Timeout:     a.cfg.Timeout,
				MaxChars:    a.cfg.Snapshot.MaxChars,
				HistoryFile: filepath.Join(a.cfg.StateDir, "shell_history"),
			})
			if err != nil {
				return err
			}
			return sh.Run(cmd.Context())
		},
	}
	return cmd
}
