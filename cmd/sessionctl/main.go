// Command sessionctl inspects and moves session archives between a local
// staging directory and remote object storage.
package main

import (
	"fmt"
	"os"
)

var version = "dev"

var commands = map[string]func([]string) error{
	"exists":  runExists,
	"save":    runSave,
	"extract": runExtract,
	"delete":  runDelete,
	"key":     runKey,
}

func usage() {
	fmt.Fprintf(os.Stderr, `sessionctl - session archive CLI (version %s)

Usage:
  sessionctl <command> [options] <session>...

Commands:
  exists    Report whether each session has a remote archive
  save      Upload staged archives (<local-dir>/<session>.zip)
  extract   Download one session's archive to a local path
  delete    Remove remote archives
  key       Print the object key a session maps to

Common options:
  -config     YAML configuration file
  -driver     Storage driver (gcs, s3, azure, nats, redis, sqlite, postgres, file, memory)
  -bucket     Bucket name
  -base-path  Key prefix inside the bucket (must end with "/")
  -local-dir  Staging directory for save

Run 'sessionctl <command> -h' for command-specific help.
`, version)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		usage()
		os.Exit(0)
	}
	if cmd == "-v" || cmd == "--version" || cmd == "version" {
		fmt.Println(version)
		os.Exit(0)
	}

	fn, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd) //nolint:gosec // G705: CLI error output
		usage()
		os.Exit(1)
	}

	if err := fn(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err) //nolint:gosec // G705: CLI error output
		os.Exit(1)
	}
}
