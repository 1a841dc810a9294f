package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhinst/zhinst-go/pkg/connection"
	"github.com/zhinst/zhinst-go/pkg/inspect"
	"github.com/zhinst/zhinst-go/pkg/model"
)

var errNoSerial = errors.New("device serial required (dev1234/path or SERIAL PATH)")

// target parses "SERIAL [PATH]" or "SERIAL/PATH" arguments.
func target(args []string) (string, *inspect.Path, error) {
	switch len(args) {
	case 1:
		p, err := inspect.ParsePath(args[0])
		if err != nil {
			return "", nil, err
		}
		if p.Device == "" {
			return "", nil, errNoSerial
		}
		return p.Device, p, nil
	case 2:
		serial := strings.ToLower(strings.Trim(args[0], "/"))
		p, err := inspect.ParsePath(args[1])
		if err != nil {
			return "", nil, err
		}
		if p.Device != "" && p.Device != serial {
			return "", nil, fmt.Errorf("%w: %s is not below %s", inspect.ErrInvalidPath, args[1], serial)
		}
		p.Device = serial
		return serial, p, nil
	}
	return "", nil, errNoSerial
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NewTreeCommand returns the tree command.
func NewTreeCommand() *cobra.Command {
	var values, asJSON bool
	var depth int
	cmd := &cobra.Command{
		Use:   "tree SERIAL [PATH]",
		Short: "Show the parameter tree of a device",
		Example: `  zictl tree dev8000
  zictl tree dev8000 oscs --values
  zictl tree dev8000/sigouts/0 --depth 1`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if depth < 0 {
				return fmt.Errorf("depth must not be negative")
			}
			serial, path, err := target(args)
			if err != nil {
				return err
			}
			a := appFrom(cmd)
			ctx, cancel := a.commandContext(cmd.Context())
			defer cancel()

			dev, err := a.connectDevice(ctx, serial)
			if err != nil {
				return err
			}
			info, err := inspect.NewInspector(dev.Root()).Inspect(ctx, path, inspect.InspectOptions{Values: values, Depth: depth})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			fmt.Fprint(cmd.OutOrStdout(), inspect.NewFormatter().FormatTree(info))
			return nil
		},
	}
	cmd.Flags().BoolVar(&values, "values", false, "Read and show parameter values")
	cmd.Flags().IntVar(&depth, "depth", 0, "Limit the depth (0 = unlimited)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

// NewGetCommand returns the get command.
func NewGetCommand() *cobra.Command {
	var raw, asJSON bool
	cmd := &cobra.Command{
		Use:   "get SERIAL PATH",
		Short: "Read a parameter",
		Example: `  zictl get dev8000 oscs[0].freq
  zictl get /dev8000/oscs/0/freq
  zictl get dev8000/oscs --raw`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			serial, path, err := target(args)
			if err != nil {
				return err
			}
			a := appFrom(cmd)
			ctx, cancel := a.commandContext(cmd.Context())
			defer cancel()
			out := cmd.OutOrStdout()

			if raw {
				return getRaw(ctx, cmd.OutOrStdout(), a, serial, path, asJSON)
			}

			dev, err := a.connectDevice(ctx, serial)
			if err != nil {
				return err
			}
			p, err := inspect.NewInspector(dev.Root()).Parameter(path)
			if err != nil {
				return err
			}
			v, err := p.Get(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, map[string]any{
					"path":  p.NodePath(),
					"value": model.SnapshotValue(v),
					"unit":  p.Metadata().Unit,
				})
			}
			fmt.Fprintln(out, inspect.NewFormatter().FormatValue(v, p.Metadata().Unit))
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Read node paths directly without building the tree")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

// getRaw reads every node below path straight from the connection.
func getRaw(ctx context.Context, w io.Writer, a *app, serial string, path *inspect.Path, asJSON bool) error {
	s, err := a.openSession(ctx, serial, nil)
	if err != nil {
		return err
	}
	if dc, ok := s.Conn().(connection.DeviceConnector); ok {
		if err := dc.ConnectDevice(ctx, serial, a.cfg.Interface); err != nil {
			return fmt.Errorf("connect %s: %w", serial, err)
		}
	}
	ri := inspect.NewRemoteInspector(s.Conn(), serial)
	values, err := ri.ReadAll(ctx, path)
	if err != nil {
		return err
	}
	if asJSON {
		out := make(map[string]any, len(values))
		for k, v := range values {
			out[k] = model.SnapshotValue(v)
		}
		return writeJSON(w, out)
	}
	f := inspect.NewFormatter()
	for _, k := range sortedKeys(values) {
		fmt.Fprintf(w, "%s = %s\n", k, f.FormatValue(values[k], ""))
	}
	return nil
}

// NewSetCommand returns the set command.
func NewSetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set SERIAL PATH VALUE",
		Short: "Write a parameter and print the acknowledged value",
		Example: `  zictl set dev8000 oscs[0].freq 2.5e6
  zictl set /dev8000/sigouts/0/on 1`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := args[len(args)-1]
			serial, path, err := target(args[:len(args)-1])
			if err != nil {
				return err
			}
			a := appFrom(cmd)
			ctx, cancel := a.commandContext(cmd.Context())
			defer cancel()

			dev, err := a.connectDevice(ctx, serial)
			if err != nil {
				return err
			}
			p, err := inspect.NewInspector(dev.Root()).Parameter(path)
			if err != nil {
				return err
			}
			ack, err := p.DeepSet(ctx, inspect.ParseValue(value))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", p.NodePath(),
				inspect.NewFormatter().FormatValue(ack, p.Metadata().Unit))
			return nil
		},
	}
	return cmd
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
