// Package main provides the promptlib command line entry point.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Version is set at build time via ldflags.
var Version = "dev"

type command struct {
	name    string
	summary string
	run     func(args []string) error
}

var commands = []command{
	{"serve", "run the library service with sync and the extension bridge", runServe},
	{"list", "list prompts matching filters", runList},
	{"add", "add a prompt", runAdd},
	{"use", "record a use of a prompt and print its content", runUse},
	{"delete", "delete prompts by id", runDelete},
	{"export", "write a JSON snapshot", runExport},
	{"import", "replace library sections from a JSON snapshot", runImport},
	{"csv", "write prompts as CSV", runCSV},
	{"templates", "list starter templates or create a prompt from one", runTemplates},
	{"outbox", "show queued remote operations", runOutbox},
}

func main() {
	// A .env file in the working directory may carry PROMPTLIB_* overrides.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: .env: %v\n", err)
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	name, args := os.Args[1], os.Args[2:]
	switch name {
	case "version", "--version", "-v":
		fmt.Println(Version)
		return
	case "help", "--help", "-h":
		usage()
		return
	}

	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(args); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				os.Exit(2)
			}
			log.Error().Err(err).Str("command", name).Msg("Command failed")
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintf(os.Stderr, "promptlib %s\n\nUsage: promptlib <command> [flags]\n\nCommands:\n", Version)
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.summary)
	}
}

// newFlagSet returns a flag set carrying the shared --debug flag.
func newFlagSet(name string) (*flag.FlagSet, *bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	debug := fs.Bool("debug", false, "Enable debug logging")
	return fs, debug
}

// setupLogging logs to stderr so command output on stdout stays clean.
func setupLogging(debug bool) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})
}
