package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zhinst/zhinst-go/pkg/discovery"
	"github.com/zhinst/zhinst-go/pkg/persistence"
)

// NewDiscoverCommand returns the discover command.
func NewDiscoverCommand() *cobra.Command {
	var serial, versionPrefix string
	cmd := &cobra.Command{
		Use:         "discover",
		Short:       "Browse the network for data servers",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{sectionAnnotation: "discover"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{
				BrowseTimeout: a.cfg.Discover.BrowseTimeout,
				Interface:     a.cfg.Discover.NetInterface,
			})
			defer browser.Stop()

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Discover.BrowseTimeout)
			defer cancel()
			found, err := browser.Browse(ctx)
			if err != nil {
				return err
			}
			var filters []discovery.FilterFunc
			if serial != "" {
				filters = append(filters, discovery.FilterBySerial(serial))
			}
			if versionPrefix != "" {
				filters = append(filters, discovery.FilterByVersion(versionPrefix))
			}
			for _, f := range filters {
				found = discovery.FilterBrowseResults(found, f)
			}

			servers := discovery.Collect(ctx, found)
			for _, s := range servers {
				a.remember(persistence.ServerRecord{
					Address:    s.Address(),
					Version:    s.Version,
					Serials:    s.Serials,
					Discovered: true,
				}, false)
			}
			printServers(cmd.OutOrStdout(), servers)
			return nil
		},
	}
	cmd.Flags().StringVar(&serial, "serial", "", "Only show servers reaching this device")
	cmd.Flags().StringVar(&versionPrefix, "version", "", "Only show servers of this LabOne version prefix")
	cmd.Flags().Duration("browse-timeout", 0, "How long to browse")
	cmd.Flags().String("net-interface", "", "Network interface to browse on")
	return cmd
}

func printServers(w io.Writer, servers []*discovery.ServerService) {
	if len(servers) == 0 {
		fmt.Fprintln(w, "no data servers found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tADDRESS\tVERSION\tDEVICES")
	for _, s := range servers {
		devices := strings.Join(s.Serials, ",")
		if devices == "" {
			devices = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.InstanceName, s.Address(), s.Version, devices)
	}
	tw.Flush()
}
