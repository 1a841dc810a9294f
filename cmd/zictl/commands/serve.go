package commands

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/zhinst/zhinst-go/pkg/connection"
	"github.com/zhinst/zhinst-go/pkg/discovery"
	"github.com/zhinst/zhinst-go/pkg/transport"
	"github.com/zhinst/zhinst-go/pkg/version"
)

// NewServeCommand returns the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "serve",
		Short:       "Run a simulated data server from a fixture file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{sectionAnnotation: "serve"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			out := cmd.OutOrStdout()
			return serve(cmd.Context(), a, a.cfg.Serve, func(addr net.Addr, serials []string) {
				fmt.Fprintf(out, "serving %d devices on %s\n", len(serials), addr)
			})
		},
	}
	cmd.Flags().String("listen", "", "Address to listen on")
	cmd.Flags().String("fixture", "", "Fixture file with the simulated nodes")
	cmd.Flags().Bool("announce", true, "Advertise the server over mDNS")
	cmd.Flags().String("instance", "", "mDNS instance name (default host name)")
	cmd.Flags().Duration("latency", 0, "Delay added to every simulated call")
	return cmd
}

// serve runs the simulated data server until ctx ends. ready is called once
// the listener is up.
func serve(ctx context.Context, a *app, cfg ServeConfig, ready func(net.Addr, []string)) error {
	if cfg.Fixture == "" {
		return fmt.Errorf("a fixture file is required (--fixture)")
	}
	fx, err := connection.LoadFixture(cfg.Fixture)
	if err != nil {
		return fmt.Errorf("load fixture: %w", err)
	}
	sim := connection.NewSimulator(fx, connection.SimulatorConfig{
		RequireConnect: true,
		Latency:        cfg.Latency,
	})

	logger := a.logger
	srv, err := transport.NewServer(transport.ServerConfig{
		Address:        cfg.Listen,
		Conn:           sim,
		Version:        version.Current,
		Logger:         logger,
		ProtocolLogger: a.protocolLogger(),
		OnConnect: func(c *transport.ServerConn) {
			logger.Info("client connected", "conn", c.ConnID(), "remote", c.RemoteAddr().String())
		},
		OnDisconnect: func(c *transport.ServerConn) {
			logger.Info("client disconnected", "conn", c.ConnID())
		},
	})
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Stop()

	serials := sim.Devices()
	if cfg.Announce {
		port := uint16(0)
		if tcp, ok := srv.Addr().(*net.TCPAddr); ok {
			port = uint16(tcp.Port)
		}
		announcer := discovery.NewAnnouncer(
			discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig()),
			discovery.ServerInfo{
				InstanceName: cfg.Instance,
				Port:         port,
				Version:      version.Current,
				Serials:      serials,
			},
			logger,
		)
		if err := announcer.Start(ctx); err != nil {
			return fmt.Errorf("advertise: %w", err)
		}
		defer announcer.Stop()
	}

	if ready != nil {
		ready(srv.Addr(), serials)
	}
	<-ctx.Done()
	return nil
}
