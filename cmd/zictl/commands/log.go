package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhinst/zhinst-go/cmd/zictl/logview"
)

// NewLogCommand returns the log command group for protocol log files
// written with --protocol-log.
func NewLogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "View and analyze protocol log files",
		Example: `  zictl log view --layer wire session.zlog
  zictl log export --format csv --serial dev8000 session.zlog
  zictl log filter --category error -o errors.zlog session.zlog
  zictl log stats session.zlog`,
	}
	cmd.AddCommand(newLogViewCommand())
	cmd.AddCommand(newLogExportCommand())
	cmd.AddCommand(newLogFilterCommand())
	cmd.AddCommand(newLogStatsCommand())
	return cmd
}

func addFilterFlags(cmd *cobra.Command, o *logview.Options) {
	f := cmd.Flags()
	f.StringVar(&o.ConnID, "conn-id", "", "Filter by connection ID")
	f.StringVar(&o.Serial, "serial", "", "Filter by device serial")
	f.StringVar(&o.PathPrefix, "path", "", "Filter by node path prefix")
	f.StringVar(&o.TimeStart, "time-start", "", "Show events at or after this time (RFC 3339)")
	f.StringVar(&o.TimeEnd, "time-end", "", "Show events before this time (RFC 3339)")
	f.StringVar(&o.Layer, "layer", "", "Filter by layer (transport, wire, session)")
	f.StringVar(&o.Direction, "direction", "", "Filter by direction (in, out)")
	f.StringVar(&o.Category, "category", "", "Filter by category (message, state, error)")
}

func newLogViewCommand() *cobra.Command {
	var opts logview.Options
	cmd := &cobra.Command{
		Use:   "view FILE",
		Short: "View a log file in human-readable format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return logview.RunView(args[0], opts, cmd.OutOrStdout())
		},
	}
	addFilterFlags(cmd, &opts)
	return cmd
}

func newLogExportCommand() *cobra.Command {
	var opts logview.Options
	var format string
	cmd := &cobra.Command{
		Use:   "export FILE",
		Short: "Export a log file as JSON lines or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return logview.RunExport(args[0], format, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&format, "format", "jsonl", "Output format (jsonl, csv)")
	addFilterFlags(cmd, &opts)
	return cmd
}

func newLogFilterCommand() *cobra.Command {
	var opts logview.Options
	var output string
	cmd := &cobra.Command{
		Use:   "filter FILE",
		Short: "Write the matching events to a new log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return fmt.Errorf("an output file is required (-o)")
			}
			n, err := logview.RunFilter(args[0], output, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d events to %s\n", n, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output log file")
	addFilterFlags(cmd, &opts)
	return cmd
}

func newLogStatsCommand() *cobra.Command {
	var opts logview.Options
	cmd := &cobra.Command{
		Use:   "stats FILE",
		Short: "Show statistics about a log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return logview.RunStats(args[0], opts, cmd.OutOrStdout())
		},
	}
	addFilterFlags(cmd, &opts)
	return cmd
}
