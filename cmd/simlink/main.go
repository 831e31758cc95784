// Command simlink runs the vehicle simulator server and its companion tools.
package main

import (
	"fmt"
	"io"
	"os"
)

// BuildVersion and BuildDate can be set at build time via ldflags
var (
	BuildVersion = "0.0.1"
	BuildDate    = "unknown"
)

// AppName prefixes log files, exports and OTel resources.
const AppName = "simlink"

func usage(w io.Writer) {
	fmt.Fprintf(w, `usage: %s <command> [flags]

commands:
  serve    run the simulator server
  probe    connect as a client, send one control frame and print telemetry
  runs     list recorded runs, or dump one run's vehicle states
  version  print the build version
`, AppName)
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "serve":
		err = runServe(args)
	case "probe":
		err = runProbe(args, os.Stdout)
	case "runs":
		err = runRuns(args, os.Stdout)
	case "version":
		fmt.Printf("%s %s (built %s)\n", AppName, BuildVersion, BuildDate)
	case "help", "-h", "--help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}
