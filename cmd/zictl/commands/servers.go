package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhinst/zhinst-go/pkg/persistence"
)

// NewServersCommand returns the servers command, which shows and edits
// the remembered data servers.
func NewServersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "List the remembered data servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			st, err := a.state.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if st == nil || len(st.Servers) == 0 {
				fmt.Fprintln(out, "no known data servers")
				return nil
			}
			last := st.LastUsed()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\tADDRESS\tVERSION\tDEVICES\tLAST SEEN")
			for _, rec := range st.Servers {
				mark := ""
				if last != nil && rec.Address == last.Address {
					mark = "*"
				}
				devices := strings.Join(rec.Serials, ",")
				if devices == "" {
					devices = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", mark, rec.Address, rec.Version, devices, seen(rec))
			}
			return tw.Flush()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "forget ADDRESS",
		Short: "Remove a remembered data server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			found := false
			err := a.state.Update(func(st *persistence.ClientState) {
				found = st.Forget(args[0])
			})
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("unknown data server %s", args[0])
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget every data server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return appFrom(cmd).state.Clear()
		},
	})
	return cmd
}

func seen(rec persistence.ServerRecord) string {
	s := rec.LastSeenAt.Local().Format(time.DateTime)
	if rec.Discovered {
		s += " (mDNS)"
	}
	return s
}
