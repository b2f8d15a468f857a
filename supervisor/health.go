// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/slipway-sh/slipway/lib/clock"
)

// HealthLoop periodically sweeps every registered service with a
// health probe. One failing service never aborts the sweep; the loop
// runs until its context is cancelled.
type HealthLoop struct {
	registry *Registry
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// NewHealthLoop creates a loop sweeping registry every interval.
func NewHealthLoop(registry *Registry, interval time.Duration, clk clock.Clock, logger *slog.Logger) *HealthLoop {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthLoop{
		registry: registry,
		interval: interval,
		clock:    clk,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled.
func (l *HealthLoop) Run(ctx context.Context) {
	ticker := l.clock.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep(ctx)
		}
	}
}

func (l *HealthLoop) sweep(ctx context.Context) {
	for _, svc := range l.registry.Services() {
		if err := svc.Check(ctx); err != nil {
			l.logger.Warn("health check restart failed", "service", svc.Name(), "error", err)
		}
	}
}
