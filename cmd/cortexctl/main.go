// Command cortexctl is the operator CLI for the CORTEX device adapter
// subsystem: scan for serial candidates, probe an adapter's HELLO, and
// run a single window against a kernel for manual testing.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/westonvoglesonger/cortex/pkg/client"
	"github.com/westonvoglesonger/cortex/pkg/protocol"
	"github.com/westonvoglesonger/cortex/pkg/transport"
)

// Version is set by ldflags at build time.
var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "scan":
		scanSerial()
	case "probe":
		if len(args) < 1 {
			fmt.Println("Usage: cortexctl probe <uri>")
			os.Exit(1)
		}
		probe(args[0])
	case "run":
		if len(args) < 4 {
			fmt.Println("Usage: cortexctl run <uri> <kernel> <window-length-samples> <channels>")
			os.Exit(1)
		}
		run(args[0], args[1], args[2], args[3])
	case "debug":
		printDebugInfo()
	case "version":
		printVersion()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("CORTEX device adapter CLI")
	fmt.Println()
	fmt.Println("Usage: cortexctl <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  scan                                        Scan for serial adapter candidates")
	fmt.Println("  probe <uri>                                 Handshake with an adapter and print its HELLO")
	fmt.Println("  run <uri> <kernel> <window-len> <channels>   Run one all-ones window against a kernel")
	fmt.Println("  debug                                        Print wire-format debug information")
	fmt.Println("  version                                      Print version information")
	fmt.Println("  help                                         Show this help")
}

func printDebugInfo() {
	fmt.Println("CORTEX Wire Format Debug Information")
	fmt.Println()
	fmt.Printf("Magic:           0x%08x\n", protocol.Magic)
	fmt.Printf("Version:         %d\n", protocol.Version)
	fmt.Printf("Header size:     %d bytes\n", protocol.HeaderSize)
	fmt.Printf("Max frame:       %d bytes\n", protocol.MaxSingleFramePayload)
	fmt.Printf("Max window:      %d bytes\n", protocol.MaxWindowBytes)
	fmt.Printf("Default chunk:   %d bytes\n", protocol.DefaultChunkSize)
}

func printVersion() {
	fmt.Printf("cortexctl version %s\n", Version)
}

func scanSerial() {
	candidates, err := transport.NewSerialScanner().Scan()
	if err != nil {
		fmt.Printf("Error scanning for serial devices: %v\n", err)
		os.Exit(1)
	}
	if len(candidates) == 0 {
		fmt.Println("No serial adapter candidates found")
		return
	}
	fmt.Printf("Found %d candidate(s):\n", len(candidates))
	for i, c := range candidates {
		fmt.Printf("  [%d] %s\n", i, c.Path)
	}
}

// probeConfig builds the CONFIG sent by probe and run for the given
// kernel and window shape, with a fixed 16 kHz sample rate and a hop
// equal to the window length. probe uses it as a 1-sample, 1-channel
// identity pass just to complete the handshake.
func probeConfig(pluginName string, windowLen, channels uint32) protocol.ConfigPayload {
	return protocol.ConfigPayload{
		SessionID:           1,
		SampleRateHz:        16000,
		WindowLengthSamples: windowLen,
		HopSamples:          windowLen,
		Channels:            channels,
		PluginName:          pluginName,
	}
}

func probe(uri string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := client.Dial(ctx, uri, probeConfig("identity", 1, 1))
	if err != nil {
		fmt.Printf("Error dialing %s: %v\n", uri, err)
		os.Exit(1)
	}
	defer c.Close(ctx)

	fmt.Printf("Adapter: %s\n", c.AdapterName())
	fmt.Printf("Kernels: %v\n", c.KernelNames())
	wl, ch := c.OutputShape()
	fmt.Printf("Negotiated output shape: %d samples x %d channels\n", wl, ch)
}

func run(uri, kernelName, windowLenStr, channelsStr string) {
	windowLen, err := strconv.Atoi(windowLenStr)
	if err != nil {
		fmt.Printf("Error: invalid window length %q: %v\n", windowLenStr, err)
		os.Exit(1)
	}
	channels, err := strconv.Atoi(channelsStr)
	if err != nil {
		fmt.Printf("Error: invalid channel count %q: %v\n", channelsStr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := client.Dial(ctx, uri, probeConfig(kernelName, uint32(windowLen), uint32(channels)))
	if err != nil {
		fmt.Printf("Error dialing %s: %v\n", uri, err)
		os.Exit(1)
	}
	defer c.Close(ctx)

	input := make([]float32, windowLen*channels)
	for i := range input {
		input[i] = 1.0
	}
	outLen, outChans := c.OutputShape()
	output := make([]float32, int(outLen)*int(outChans))

	timing, err := c.Execute(input, output)
	if err != nil {
		fmt.Printf("Error executing window: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Output (%d samples x %d channels): %v\n", outLen, outChans, output)
	fmt.Printf("Timing (ns): tin=%d tstart=%d tend=%d tfirst_tx=%d tlast_tx=%d\n",
		timing.Tin, timing.Tstart, timing.Tend, timing.TfirstTx, timing.TlastTx)
}
