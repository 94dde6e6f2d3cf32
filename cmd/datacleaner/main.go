package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/datacleaner/internal/config"
	"github.com/banshee-data/datacleaner/internal/monitoring"
	"github.com/banshee-data/datacleaner/internal/version"
)

var errUsage = errors.New("usage")

func main() {
	flag.Usage = func() { printUsage(os.Stdout) }
	flag.Parse()

	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := monitoring.Configure(env.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer monitoring.Sync()

	if err := run(flag.Args(), env, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		monitoring.Sync()
		os.Exit(1)
	}
}

// run dispatches a subcommand. Flag defaults come from env.
func run(args []string, env config.Env, stdout io.Writer) error {
	if len(args) < 1 {
		return errUsage
	}
	command, rest := args[0], args[1:]

	switch command {
	case "serve":
		return runServe(rest, env)
	case "exclude":
		return runExclude(rest, env, stdout)
	case "plot":
		return runPlot(rest, env, stdout)
	case "migrate":
		return runMigrate(rest, env, stdout)
	case "version":
		fmt.Fprintln(stdout, version.Get())
		return nil
	case "help":
		printUsage(stdout)
		return nil
	default:
		return fmt.Errorf("unknown command %q: %w", command, errUsage)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `datacleaner - exclude bad sensor readings by drawing areas on a scatter

Usage: datacleaner <command> [options]

Commands:
  serve      Run the interactive editor over HTTP
  exclude    Apply a JSON plan of exclusion areas to a data file and export
  plot       Render a scatter of two series to PNG or HTML
  migrate    Manage the run database schema (up, down, status)
  version    Show version information
  help       Show this help message

Environment:
  DATACLEANER_LISTEN      Listen address for serve (default localhost:8090)
  DATACLEANER_DB          Run database path
  DATACLEANER_CONFIG      Cleaner config JSON path
  DATACLEANER_LOG_LEVEL   debug, info, warn or error
  DATACLEANER_OUT_DIR     Directory for exports and plots
  DATACLEANER_DATA_DIR    Directory serve may open data files from

Examples:
  datacleaner serve --data mast.tsv
  datacleaner exclude --data mast.tsv --plan icing.json --buffer 20m
  datacleaner plot --data mast.tsv --x M1~WS80 --y M1~WS60 --out ws.png`)
}
