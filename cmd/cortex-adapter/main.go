// Command cortex-adapter is the device-side binary: it accepts one
// positional transport URI, runs the CORTEX adapter session over it,
// and exits 0 on clean shutdown or nonzero on a fatal protocol/kernel
// error, per the adapter CLI contract.
package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/westonvoglesonger/cortex/pkg/adapter"
	_ "github.com/westonvoglesonger/cortex/pkg/kernel" // registers identity/gain
	"github.com/westonvoglesonger/cortex/pkg/transport"
)

// Version is set by ldflags at build time.
var Version = "dev"

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: cortex-adapter <transport-uri>")
		os.Exit(2)
	}

	t, err := dial(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "cortex-adapter: %v\n", err)
		os.Exit(1)
	}

	metrics := adapter.NewMetrics(prometheus.NewRegistry())
	sess := adapter.NewSession(t, adapter.WithMetrics(metrics))
	if err := sess.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "cortex-adapter: %v\n", err)
		os.Exit(1)
	}
}

// dial opens the transport named by uri. local:// reuses the process's
// own stdin/stdout (a duplex AF_UNIX socket when spawned by
// pkg/client, and usable the same way under any harness that wires a
// duplex pipe there); the other schemes own their side of the
// carrier: a TCP listener awaiting the harness's client (or, for the
// reverse direction named by a host in the URI, a dial out to a
// harness that is itself listening), an opened serial device, or an
// opened (not created) shared-memory region.
func dial(rawURI string) (transport.Transport, error) {
	u, err := transport.ParseURI(rawURI)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "local":
		return transport.NewPipeFromFd(0), nil
	case "tcp":
		// Host absent (tcp://:port): listen and wait for the harness
		// to connect in, the normal adapter-as-server direction. Host
		// present (tcp://host:port): dial out to a harness that is
		// listening instead, the reverse direction.
		if u.Host == "" {
			return transport.NewTCPServer(u.Addr(), u.AcceptTimeout(transport.NoTimeout))
		}
		return transport.NewTCPClient(u.Addr(), u.ConnectTimeout(transport.NoTimeout))
	case "serial":
		return transport.OpenSerial(u.DevicePath, u.Baud, u.ConnectTimeout(transport.NoTimeout))
	case "shm":
		return transport.OpenSHM(u.ShmName)
	default:
		return nil, fmt.Errorf("unrecognized transport scheme %q", u.Scheme)
	}
}
