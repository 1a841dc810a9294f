// Command zictl talks to Zurich Instruments data servers.
//
// Usage:
//
//	zictl <command> [flags]
//
// Commands:
//
//	serve     Run a simulated data server from a fixture file
//	discover  Browse the network for data servers
//	tree      Show the parameter tree of a device
//	snapshot  Read every parameter of a device at once, optionally archiving it
//	get, set  Read and write parameters
//	shell     Browse and change a device interactively
//	http      Serve devices over HTTP with Prometheus metrics
//	log       View and analyze protocol log files
//	servers   List the remembered data servers
//	config    Show or create the configuration
//
// Configuration is read from the built-in defaults, then the file given
// with --config, then ZICTL_ environment variables, then flags.
//
// Examples:
//
//	# Run a simulated data server and read a node from it
//	zictl serve --fixture testdata/sim.yaml --listen :8004 &
//	zictl get --server localhost:8004 dev8000 oscs[0].freq
//
//	# Work offline against a fixture
//	zictl tree --simulate testdata/sim.yaml dev8000 --values
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zhinst/zhinst-go/cmd/zictl/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
