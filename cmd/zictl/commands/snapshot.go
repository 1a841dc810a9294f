package commands

import (
	"context"
	"fmt"
	"io"
	"os/user"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhinst/zhinst-go/pkg/archive"
	"github.com/zhinst/zhinst-go/pkg/inspect"
	"github.com/zhinst/zhinst-go/pkg/model"
	"github.com/zhinst/zhinst-go/pkg/snapshot"
)

// NewSnapshotCommand returns the snapshot command and its archive
// subcommands.
func NewSnapshotCommand() *cobra.Command {
	var update, asJSON bool
	var labels map[string]string
	cmd := &cobra.Command{
		Use:   "snapshot SERIAL [PATH]",
		Short: "Read every parameter of a device or subtree at once",
		Example: `  zictl snapshot dev8000 --update
  zictl snapshot dev8000 oscs --json
  zictl snapshot dev8000 --archive snapshots.db --keep 100`,
		Args:        cobra.RangeArgs(1, 2),
		Annotations: map[string]string{sectionAnnotation: "snapshot"},
		RunE: func(cmd *cobra.Command, args []string) error {
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
			node, err := inspect.NewInspector(dev.Root()).Find(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if a.cfg.Snapshot.Archive == "" {
				if asJSON {
					snap, err := takeSnapshot(ctx, node, update)
					if err != nil {
						return err
					}
					return writeJSON(out, snap)
				}
				return snapshot.PrintReadable(ctx, out, node, update, a.cfg.Snapshot.MaxChars)
			}

			snap, err := takeSnapshot(ctx, node, update)
			if err != nil {
				return err
			}
			tree, ok := snap.(*model.Snapshot)
			if !ok {
				return fmt.Errorf("%s is a single parameter, archive a container instead", path)
			}
			rec := &archive.Record{
				Serial:   dev.Serial(),
				Type:     dev.Type(),
				Labels:   archiveLabels(labels, path),
				Snapshot: tree,
			}
			return saveArchive(a, rec, out)
		},
	}
	cmd.Flags().BoolVar(&update, "update", true, "Read values from the device instead of the cache")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().String("archive", "", "Store the snapshot in this archive file")
	cmd.Flags().Int("keep", 0, "Keep at most this many archived snapshots per device (0 = all)")
	cmd.Flags().Int("max-chars", 0, "Cut printed lines at this length (-1 = never)")
	cmd.Flags().StringToStringVar(&labels, "label", nil, "Label the archived snapshot (key=value)")

	cmd.AddCommand(newSnapshotListCommand())
	cmd.AddCommand(newSnapshotShowCommand())
	return cmd
}

// takeSnapshot returns a *model.Snapshot for containers and lists and a
// *model.ParameterSnapshot for a parameter.
func takeSnapshot(ctx context.Context, node model.Node, update bool) (any, error) {
	switch n := node.(type) {
	case *model.Container:
		return n.Snapshot(ctx, update)
	case *model.IndexedList:
		return n.Snapshot(ctx, update)
	case *model.Parameter:
		return n.Snapshot(ctx, update), nil
	}
	return nil, fmt.Errorf("cannot snapshot %T", node)
}

func archiveLabels(labels map[string]string, path *inspect.Path) map[string]string {
	out := make(map[string]string, len(labels)+2)
	for k, v := range labels {
		out[k] = v
	}
	if rel := path.Relative(); rel != "" {
		out["path"] = rel
	}
	if _, ok := out["user"]; !ok {
		if u, err := user.Current(); err == nil {
			out["user"] = u.Username
		}
	}
	return out
}

func saveArchive(a *app, rec *archive.Record, out io.Writer) error {
	store, err := archive.Open(a.cfg.Snapshot.Archive, archive.Options{Logger: a.logger})
	if err != nil {
		return err
	}
	defer store.Close()

	at, err := store.Save(rec)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "archived %s snapshot at %s\n", rec.Serial, at.Format(time.RFC3339Nano))

	if keep := a.cfg.Snapshot.Keep; keep > 0 {
		n, err := store.Prune(rec.Serial, keep)
		if err != nil {
			return err
		}
		if n > 0 {
			fmt.Fprintf(out, "pruned %d old snapshots\n", n)
		}
	}
	return nil
}

func openArchiveReadOnly(a *app) (*archive.Store, error) {
	if a.cfg.Snapshot.Archive == "" {
		return nil, fmt.Errorf("no archive configured (--archive)")
	}
	return archive.Open(a.cfg.Snapshot.Archive, archive.Options{ReadOnly: true, Logger: a.logger})
}

func newSnapshotListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "list [SERIAL]",
		Short:       "List archived snapshots",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{sectionAnnotation: "snapshot"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			store, err := openArchiveReadOnly(a)
			if err != nil {
				return err
			}
			defer store.Close()

			serials := args
			if len(serials) == 0 {
				if serials, err = store.Devices(); err != nil {
					return err
				}
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SERIAL\tTIME\tSIZE")
			for _, serial := range serials {
				entries, err := store.List(serial)
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%d\n", e.Serial, e.Time.Format(time.RFC3339Nano), e.Size)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("archive", "", "Archive file")
	return cmd
}

func newSnapshotShowCommand() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:         "show SERIAL",
		Short:       "Print an archived snapshot as JSON",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{sectionAnnotation: "snapshot"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			store, err := openArchiveReadOnly(a)
			if err != nil {
				return err
			}
			defer store.Close()

			var rec *archive.Record
			if at == "" {
				rec, err = store.Latest(args[0])
			} else {
				t, perr := time.Parse(time.RFC3339Nano, at)
				if perr != nil {
					return fmt.Errorf("invalid --at time: %w", perr)
				}
				rec, err = store.At(args[0], t)
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().String("archive", "", "Archive file")
	cmd.Flags().StringVar(&at, "at", "", "Show the newest snapshot at or before this RFC 3339 time")
	return cmd
}
