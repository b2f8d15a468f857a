// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/slipway-sh/slipway/jail"
	"github.com/slipway-sh/slipway/lib/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if os.Getenv("SLIPWAY_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "run":
		err = runCmd(args, logger)
	case "setup":
		err = setupCmd(args, logger)
	case "version", "--version", "-v":
		fmt.Printf("slipway-jail %s\n", version.Info())
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		if code, ok := jail.IsExitError(err); ok {
			os.Exit(code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`slipway-jail - Run a program in a namespace isolation jail

USAGE
    slipway-jail run [flags] -- <program> [args...]

COMMANDS
    run      Run a program in the jail
    version  Show version

FLAGS (run)
    --dir      Application directory mounted read-write at /app (default ".")
    --sockets  Directory bind-mounted read-write at its host path, for
               services that bind unix sockets
    --uid      UID to map and drop to (default: invoking user)
    --gid      GID to map and drop to (default: invoking group)

EXAMPLES
    # Run a node server jailed to its deployment directory
    slipway-jail run --dir /var/lib/slipway/apps/blog -- npm start --silent

ENVIRONMENT
    SLIPWAY_DEBUG  Enable debug logging

The "setup" command is internal: the run stage re-executes itself with
it inside fresh namespaces, and it never works when invoked directly.
`)
}

// jailFlags parses the flag set shared by the run and setup stages
// and returns the jail plus the program argv after "--".
func jailFlags(name string, args []string, logger *slog.Logger) (*jail.Jail, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	dir := fs.String("dir", ".", "application directory")
	sockets := fs.String("sockets", "", "socket directory bind-mounted read-write at its host path")
	uid := fs.Int("uid", 0, "uid to map and drop to")
	gid := fs.Int("gid", 0, "gid to map and drop to")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() == 0 {
		return nil, fmt.Errorf("no program specified; use -- <program> [args...]")
	}

	return jail.New(jail.Config{
		Dir:       *dir,
		SocketDir: *sockets,
		Program:   fs.Arg(0),
		Args:      fs.Args()[1:],
		UID:       *uid,
		GID:       *gid,
		Logger:    logger,
	})
}

// runCmd implements the outer stage: clone into fresh namespaces and
// wait for the jailed program, forwarding its exit status.
func runCmd(args []string, logger *slog.Logger) error {
	j, err := jailFlags("run", args, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return j.Run(ctx)
}

// setupCmd implements the inner stage, reached only via re-exec: this
// process is pid 1 of the new namespaces. On success Setup execs the
// target program and never returns.
func setupCmd(args []string, logger *slog.Logger) error {
	j, err := jailFlags("setup", args, logger)
	if err != nil {
		return err
	}
	if err := j.Setup(); err != nil {
		return fmt.Errorf("sandbox setup: %w", err)
	}
	return nil
}
