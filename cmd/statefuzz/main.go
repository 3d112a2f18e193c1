package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/gocircum/statefuzz/pkg/logging"
)

const usage = `usage: statefuzz <command> [flags]

commands:
  inspect   list the sessions of a capture
  export    re-encode one session of a capture as a pcap file
  graph     convert a saved state graph between json, yaml and dot
  fuzz      run a campaign against a TCP target
`

func main() {
	// The logging flags may appear anywhere after the subcommand; they are
	// needed before the subcommand parses its own flags.
	logLevel, _ := lookupFlag(os.Args[1:], "log-level")
	logFormat, _ := lookupFlag(os.Args[1:], "log-format")
	logging.InitLogger(orDefault(logLevel, "info"), orDefault(logFormat, "console"), nil)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "inspect":
		err = runInspect(os.Args[2:], os.Stdout)
	case "export":
		err = runExport(os.Args[2:], os.Stdout)
	case "graph":
		err = runGraph(os.Args[2:], os.Stdout)
	case "fuzz":
		err = runFuzz(os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		logging.GetLogger().Error("unknown command", "command", os.Args[1])
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		logging.GetLogger().Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

// newFlagSet creates a subcommand flag set that also accepts the global
// logging flags so they show up in -h output.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.String("log-format", "console", "Log format (console, json)")
	return fs
}

// lookupFlag returns the value of -name or --name in argv, in either the
// "-name=value" or the "-name value" form.
func lookupFlag(argv []string, name string) (string, bool) {
	for i, a := range argv {
		if !strings.HasPrefix(a, "-") {
			continue
		}
		a = strings.TrimLeft(a, "-")
		if v, ok := strings.CutPrefix(a, name+"="); ok {
			return v, true
		}
		if a == name && i+1 < len(argv) {
			return argv[i+1], true
		}
	}
	return "", false
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
