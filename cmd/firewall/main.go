// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command firewall runs the inline packet filter: intrusion detection, rate
// limiting, traffic shaping, NAT and access control over captured frames.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/tsdasari9/firewall/internal/config"
)

const usage = `Usage:
  firewall [-config file] [run]          capture live traffic and filter it
  firewall [-config file] replay <pcap>  run a capture file through the pipeline
  firewall config init [path]            write an example config
  firewall [-config file] config check   validate the config
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("firewall", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (HCL, JSON or YAML)")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	rest := fs.Args()
	subcmd := "run"
	if len(rest) > 0 {
		subcmd, rest = rest[0], rest[1:]
	}

	var err error
	switch subcmd {
	case "run":
		err = runLive(ctx, *configPath, stderr)
	case "replay":
		if len(rest) != 1 {
			fmt.Fprintln(stderr, "Usage: firewall replay <pcap-file>")
			return 2
		}
		err = runReplay(ctx, *configPath, rest[0], stdout, stderr)
	case "config":
		if len(rest) == 0 {
			fmt.Fprintln(stderr, "Usage: firewall config init|check")
			return 2
		}
		err = runConfig(*configPath, rest[0], rest[1:], stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", subcmd)
		fs.Usage()
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// loadConfig reads path, or returns the defaults when no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFile(path)
}
