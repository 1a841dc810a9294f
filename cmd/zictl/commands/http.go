package commands

import (
	"context"
	"fmt"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/zhinst/zhinst-go/pkg/httpapi"
	"github.com/zhinst/zhinst-go/pkg/metrics"
)

// NewHTTPCommand returns the http command.
func NewHTTPCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "http SERIAL...",
		Short: "Serve devices over HTTP with Prometheus metrics",
		Example: `  zictl http dev8000 dev2345 --listen :8080
  curl localhost:8080/devices/dev8000/nodes/oscs/0/freq`,
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{sectionAnnotation: "http"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			out := cmd.OutOrStdout()
			return serveHTTP(cmd.Context(), a, args, nil, func(addr net.Addr) {
				fmt.Fprintf(out, "serving %d devices on http://%s\n", len(args), addr)
			})
		},
	}
	cmd.Flags().String("listen", "", "Address to listen on")
	cmd.Flags().Float64("rate-limit", 0, "Requests per second on device routes")
	cmd.Flags().Int("burst", 0, "Request burst on device routes")
	return cmd
}

// serveHTTP connects serials and serves them until ctx ends. A nil ln
// listens on the configured address.
func serveHTTP(ctx context.Context, a *app, serials []string, ln net.Listener, ready func(net.Addr)) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	connectCtx, cancel := a.commandContext(ctx)
	defer cancel()
	s, err := a.openSession(connectCtx, serials[0], collector)
	if err != nil {
		return err
	}
	for _, serial := range serials {
		if _, err := a.connectOn(connectCtx, s, serial); err != nil {
			return err
		}
	}

	cfg := httpapi.DefaultConfig()
	cfg.Address = a.cfg.HTTP.Listen
	cfg.RateLimit = rate.Limit(a.cfg.HTTP.RateLimit)
	cfg.RateLimitBurst = a.cfg.HTTP.Burst
	cfg.Metrics = collector
	cfg.Logger = a.logger
	srv := httpapi.New(s, cfg)

	if ln == nil {
		ln, err = net.Listen("tcp", cfg.Address)
		if err != nil {
			return fmt.Errorf("failed to listen: %w", err)
		}
	}
	if ready != nil {
		ready(ln.Addr())
	}
	return srv.Serve(ctx, ln)
}
