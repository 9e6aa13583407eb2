package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Exit codes
const (
	ExitSuccess            = 0
	ExitGeneralError       = 1
	ExitInvalidArgs        = 2
	ExitFetchFailed        = 3
	ExitStorageError       = 5
	ExitVerificationFailed = 7
)

// Output streams, replaced in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// No command behaves like the plain sync with built-in defaults.
	if len(args) == 0 {
		return runSync(nil)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "sync":
		return runSync(cmdArgs)
	case "manifest":
		return runManifest(cmdArgs)
	case "verify":
		return runVerify(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		if strings.HasPrefix(command, "-") {
			return runSync(args)
		}
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(stderr, `Usage: orthanc-sync [command] [options]

Commands:
  sync      Fetch the vendored Orthanc files into the target (default)
  manifest  Print the list of files that sync would fetch
  verify    Check every file of the manifest exists at the target
  help      Show this message

Run 'orthanc-sync <command> -h' for command-specific help.`)
}
