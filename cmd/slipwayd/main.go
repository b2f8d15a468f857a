// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/slipway-sh/slipway/control"
	"github.com/slipway-sh/slipway/lib/clock"
	"github.com/slipway-sh/slipway/lib/config"
	"github.com/slipway-sh/slipway/lib/process"
	"github.com/slipway-sh/slipway/lib/version"
	"github.com/slipway-sh/slipway/router"
	"github.com/slipway-sh/slipway/supervisor"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	flags := pflag.NewFlagSet("slipwayd", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to YAML config file (or $"+config.EnvVar+")")
	appsDir := flags.String("apps-dir", "", "base directory of deployment worktrees")
	runDir := flags.String("run-dir", "", "runtime directory for sockets and state")
	listen := flags.String("listen", "", "public listen address")
	jailBinary := flags.String("jail-binary", "", "path to slipway-jail (default: next to slipwayd)")
	noJail := flags.Bool("no-jail", false, "run services without the isolation jail")
	profilesFile := flags.String("profiles", "", "YAML file of runtime profile overrides")
	showVersion := flags.BoolP("version", "v", false, "print version and exit")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Printf("slipwayd %s\n", version.Info())
		return nil
	}

	logLevel := slog.LevelInfo
	if os.Getenv("SLIPWAY_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if flags.Changed("apps-dir") {
		cfg.Paths.Apps = *appsDir
	}
	if flags.Changed("run-dir") {
		cfg.Paths.Run = *runDir
	}
	if flags.Changed("listen") {
		cfg.Router.Listen = *listen
	}
	if flags.Changed("jail-binary") {
		cfg.Jail.Binary = *jailBinary
	}
	if flags.Changed("no-jail") {
		cfg.Jail.Disabled = *noJail
	}
	if flags.Changed("profiles") {
		cfg.ProfilesFile = *profilesFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Paths.Apps, 0o755); err != nil {
		return fmt.Errorf("creating apps directory: %w", err)
	}
	if err := os.MkdirAll(cfg.Paths.Run, 0o755); err != nil {
		return fmt.Errorf("creating run directory: %w", err)
	}
	// Service sockets get their own directory: names are
	// client-chosen, and sharing the run dir would let a deployment
	// named "control" claim the deploy socket's path.
	socketsDir := filepath.Join(cfg.Paths.Run, "sockets")
	if err := os.MkdirAll(socketsDir, 0o755); err != nil {
		return fmt.Errorf("creating sockets directory: %w", err)
	}

	jailBin := ""
	if !cfg.Jail.Disabled {
		jailBin, err = resolveJailBinary(cfg.Jail.Binary)
		if err != nil {
			return err
		}
	}

	allocator, err := supervisor.NewPortAllocator(cfg.Ports.First, cfg.Ports.Limit, socketsDir)
	if err != nil {
		return err
	}
	profiles, err := supervisor.NewProfileLoader(cfg.ProfilesFile)
	if err != nil {
		return err
	}
	store := supervisor.NewStateStore(filepath.Join(cfg.Paths.Run, "state"))

	registry, err := supervisor.NewRegistry(supervisor.RegistryConfig{
		BaseDir:    cfg.Paths.Apps,
		Profiles:   profiles,
		Allocator:  allocator,
		JailBinary: jailBin,
		Store:      store,
		Clock:      clock.Real(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Reclaim leftovers from the previous run before anything binds.
	registry.RecoverState()
	registry.ScanAndDeploy(ctx)

	controlServer, err := control.New(control.Config{
		SocketPath: filepath.Join(cfg.Paths.Run, "control.sock"),
		Deployer:   registry,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	if err := controlServer.Start(); err != nil {
		return err
	}

	rt, err := router.New(router.Config{
		Resolver:        registry,
		UpstreamTimeout: cfg.Router.UpstreamTimeout.Std(),
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	publicListener, err := net.Listen("tcp", cfg.Router.Listen)
	if err != nil {
		return fmt.Errorf("binding public listener: %w", err)
	}
	publicServer := &http.Server{Handler: rt}
	go func() {
		if err := publicServer.Serve(publicListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("public server stopped", "error", err)
		}
	}()

	healthLoop := supervisor.NewHealthLoop(registry, cfg.Health.Interval.Std(), clock.Real(), logger)
	go healthLoop.Run(ctx)

	logger.Info("slipwayd ready",
		"version", version.Info(),
		"apps", cfg.Paths.Apps,
		"public", publicListener.Addr().String(),
		"jail", jailBin != "",
	)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := publicServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("public server shutdown", "error", err)
	}
	if err := controlServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("control server shutdown", "error", err)
	}
	registry.StopAll()
	return nil
}

// resolveJailBinary locates slipway-jail: the configured path, the
// controller's own directory, then PATH.
func resolveJailBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("jail binary: %w", err)
		}
		return configured, nil
	}
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), "slipway-jail")
		if _, err := os.Stat(sibling); err == nil {
			return sibling, nil
		}
	}
	path, err := exec.LookPath("slipway-jail")
	if err != nil {
		return "", fmt.Errorf("slipway-jail not found next to slipwayd or in PATH; install it or set jail.disabled")
	}
	return path, nil
}
