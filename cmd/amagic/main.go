package main

import (
	"fmt"
	"io"
	"log"
	"os"
)

const usage = `Usage: amagic <command> [flags] [args]

Commands:
  mro        <Class>                 print the method resolution order
  resolve    <Class> <method>        show where a method call resolves
  overloads  <Class>                 print the overload table of a class
  dispatch   <op> <left> [<right>]   run an operator; operands are class names or literals
  save       -db <file> [-name n]    store the manifest classes in a snapshot
  load       -db <file> [-name n]    restore a snapshot (-list to list snapshots)

Class hierarchies come from amagic.yaml, found by walking up from the
current directory, or from -m <file>. Builtins named by the manifest are
bound to tracers that print each call.
`

func main() {
	log.SetFlags(0)          // Disable timestamp in logs
	log.SetOutput(os.Stderr) // Diagnostics go to stderr, results to stdout

	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cmd, ok := commands[args[0]]
	if !ok {
		if args[0] == "help" || args[0] == "-help" || args[0] == "--help" || args[0] == "-h" {
			fmt.Fprint(stdout, usage)
			return 0
		}
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
	if err := cmd(&cli{out: stdout, errOut: stderr, name: args[0]}, args[1:]); err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return 1
	}
	return 0
}
