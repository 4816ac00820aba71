// trustmarkctl works with trustmark tokens offline: it generates signing
// keys, signs payloads, verifies tokens against a public key and decodes
// tokens without checking them.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

type command struct {
	name    string
	summary string
	run     func(args []string, stdout io.Writer) error
}

var commands = []command{
	{name: "keygen", summary: "generate a signing key pair", run: runKeygen},
	{name: "sign", summary: "sign a product payload and print the token", run: runSign},
	{name: "verify", summary: "verify a token against a public key", run: runVerify},
	{name: "inspect", summary: "decode a token without verifying it", run: runInspect},
}

// exitError carries a process exit code, e.g. 2 for a token that failed
// verification.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
func (e *exitError) ExitCode() int { return e.code }

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		var coder *exitError
		if errors.As(err, &coder) {
			if coder.msg != "" {
				fmt.Fprintf(os.Stderr, "error: %s\n", coder.msg)
			}
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stderr)
		return nil
	}

	name := args[0]
	for _, cmd := range commands {
		if cmd.name == name {
			err := cmd.run(args[1:], stdout)
			if errors.Is(err, pflag.ErrHelp) {
				return nil
			}
			return err
		}
	}

	printUsage(stderr)
	return fmt.Errorf("unknown command %q", name)
}

func printUsage(w io.Writer) {
	var b strings.Builder
	b.WriteString("usage: trustmarkctl <command> [flags]\n\ncommands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(&b, "  %-8s %s\n", cmd.name, cmd.summary)
	}
	b.WriteString("\nrun 'trustmarkctl <command> --help' for command flags\n")
	_, _ = io.WriteString(w, b.String())
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("trustmarkctl "+name, pflag.ContinueOnError)
	fs.SortFlags = false
	return fs
}
