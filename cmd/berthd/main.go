// Command berthd launches the berth soak daemon: it builds the configured
// pools, paces a synthetic lease workload through them, and reports pool
// health until it receives a shutdown signal.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/calvale/berth/config"
	"github.com/calvale/berth/errs"
	"github.com/calvale/berth/lib/async"
	"github.com/calvale/berth/lib/telemetry"
	"github.com/calvale/berth/observability"
	"github.com/calvale/berth/pool"
	"github.com/calvale/berth/registry"
)

const (
	defaultConfigPath        = "config/berth.yaml"
	feedInterval             = 50 * time.Millisecond
	leaseHoldTime            = 10 * time.Millisecond
	statsInterval            = 10 * time.Second
	runnerShutdownTimeout    = 5 * time.Second
	registryShutdownTimeout  = 5 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
)

func main() {
	cfgPath := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := observability.NewStdLogger(log.New(os.Stderr, "berthd ", log.LstdFlags))

	cfg, loadedFromFile, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if !loadedFromFile {
		logger.Info("configuration file not found, using defaults",
			observability.F("path", cfgPath))
	}
	logger.Info("configuration initialised",
		observability.F("env", cfg.Environment),
		observability.F("pools", len(cfg.Pools)))

	providers, telemetryShutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatalf("initialise telemetry: %v", err)
	}

	reg, err := registry.FromConfig(cfg.Pools, registry.WithLogger(logger))
	if err != nil {
		log.Fatalf("initialise pools: %v", err)
	}
	if err := reg.ObserveMetrics(providers.MeterProvider); err != nil {
		log.Fatalf("register pool metrics: %v", err)
	}

	runners := make([]*async.Runner, 0, len(reg.Pools()))
	var workload conc.WaitGroup
	for _, p := range reg.Pools() {
		runner, err := async.NewRunner(p,
			cfg.Runner.Workers.Count(), cfg.Runner.Queue,
			async.WithLogger(logger),
			async.WithRate(cfg.Runner.RatePerSecond, cfg.Runner.Burst),
		)
		if err != nil {
			log.Fatalf("initialise runner for pool %s: %v", p.Name(), err)
		}
		runners = append(runners, runner)
		workload.Go(func() { feed(ctx, runner, logger) })
	}
	workload.Go(func() { reportStats(ctx, reg, logger) })

	<-ctx.Done()
	logger.Info("shutdown signal received")
	workload.Wait()

	for _, runner := range runners {
		shutdownCtx, cancelRunner := context.WithTimeout(context.Background(), runnerShutdownTimeout)
		if err := runner.Shutdown(shutdownCtx); err != nil {
			logger.Error("runner shutdown", observability.F("error", err))
		}
		cancelRunner()
	}

	regCtx, cancelReg := context.WithTimeout(context.Background(), registryShutdownTimeout)
	if err := reg.Shutdown(regCtx); err != nil {
		logger.Error("registry shutdown", observability.F("error", err))
	}
	cancelReg()

	dumpStats(reg, logger)

	telCtx, cancelTel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	if err := telemetryShutdown(telCtx); err != nil {
		logger.Error("telemetry shutdown", observability.F("error", err))
	}
	cancelTel()
}

func parseFlags() string {
	cfgPath := flag.String("config", defaultConfigPath, "path to the berth YAML configuration")
	flag.Parse()
	return *cfgPath
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// feed submits lease work on a fixed cadence. Backpressure from the runner or
// the pool is expected under saturation and only surfaced at debug level.
func feed(ctx context.Context, runner *async.Runner, logger observability.Logger) {
	ticker := time.NewTicker(feedInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := runner.Submit(ctx, func(ctx context.Context, h *pool.Handle) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(leaseHoldTime):
				return nil
			}
		})
		switch {
		case err == nil:
		case errs.IsExhausted(err):
			logger.Debug("workload throttled", observability.F("error", err))
		case errs.IsUnavailable(err):
			return
		default:
			logger.Error("submit workload", observability.F("error", err))
		}
	}
}

func reportStats(ctx context.Context, reg *registry.Registry, logger observability.Logger) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dumpStats(reg, logger)
		}
	}
}

func dumpStats(reg *registry.Registry, logger observability.Logger) {
	for _, stats := range reg.Stats() {
		raw, err := stats.JSON()
		if err != nil {
			logger.Error("encode pool stats", observability.F("error", err))
			continue
		}
		logger.Info("pool stats", observability.F("stats", string(raw)))
	}
}
