package gridengine

import (
	"context"
	"fmt"
	"time"

	"grid_trader/internal/core"
	"grid_trader/internal/telemetry"
)

// Driver owns the tick loop. It spaces ticks by interval, backs off after a
// faulted tick, and turns engine panics into faults so a single bad pass
// cannot take the process down.
type Driver struct {
	engine        *Engine
	gateway       core.IGateway
	symbol        string
	interval      time.Duration
	backoff       time.Duration
	cancelOnStart bool
	logger        core.ILogger
}

// NewDriver creates a Driver around an engine.
func NewDriver(engine *Engine, gateway core.IGateway, interval, backoff time.Duration, cancelOnStart bool, logger core.ILogger) *Driver {
	return &Driver{
		engine:        engine,
		gateway:       gateway,
		symbol:        engine.cfg.Symbol,
		interval:      interval,
		backoff:       backoff,
		cancelOnStart: cancelOnStart,
		logger:        logger.WithField("symbol", engine.cfg.Symbol),
	}
}

// Run executes the tick loop until ctx is canceled. Always returns ctx.Err().
func (d *Driver) Run(ctx context.Context) error {
	if d.cancelOnStart {
		canceled, err := d.gateway.CancelAllOpenOrders(ctx, d.symbol)
		if err != nil {
			d.logger.Warn("startup cancel of open orders failed", "error", err)
		} else if len(canceled) > 0 {
			d.logger.Info("canceled open orders at startup", "count", len(canceled))
		}
	}

	d.logger.Info("grid loop started",
		"interval", d.interval, "backoff", d.backoff)

	for {
		err := d.tickSafely(ctx)

		sleep := d.interval
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			telemetry.TickFaults.Inc()
			d.logger.Error("tick failed", "error", err)
			sleep = d.backoff
		}

		if err := sleepCtx(ctx, sleep); err != nil {
			d.logger.Info("grid loop stopping", "reason", ctx.Err())
			return err
		}
	}
}

// tickSafely wraps Engine.Tick so a panic surfaces as a fault instead of
// crashing the loop.
func (d *Driver) tickSafely(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()
	telemetry.TicksTotal.Inc()
	return d.engine.Tick(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
