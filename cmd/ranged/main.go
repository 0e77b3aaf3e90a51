package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cybershield-labs/range-core/internal/sim"
	"github.com/cybershield-labs/range-core/pkg/config"
	"github.com/cybershield-labs/range-core/pkg/logger"
)

func main() {
	var scenarioPath string
	var duration time.Duration
	var stepDelay time.Duration
	var seed int64
	var logLevel string
	var jsonLogs bool

	flag.StringVar(&scenarioPath, "scenario", "", "path to scenario YAML (required)")
	flag.DurationVar(&duration, "duration", 0, "wall-clock budget for the run (0 = until max steps)")
	flag.DurationVar(&stepDelay, "step-delay", 100*time.Millisecond, "pause between simulation steps")
	flag.Int64Var(&seed, "seed", 0, "random seed override (0 = scenario seed, or wall clock)")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.BoolVar(&jsonLogs, "log-json", false, "emit JSON logs instead of text")
	flag.Parse()

	if jsonLogs {
		logger.SetDefault(logger.New(logLevel, os.Stderr))
	} else {
		logger.SetDefault(logger.NewText(logLevel, os.Stderr))
	}

	if scenarioPath == "" {
		logger.Error("missing required -scenario flag")
		flag.Usage()
		os.Exit(2)
	}

	scenario, err := config.LoadScenario(scenarioPath)
	if err != nil {
		logger.Error("failed to load scenario", "path", scenarioPath, "error", err)
		os.Exit(1)
	}

	if seed == 0 {
		seed = scenario.Seed
	}

	driver := sim.NewDriver(sim.Options{Seed: seed, StepDelay: stepDelay})
	if err := driver.LoadScenario(scenario); err != nil {
		logger.Error("failed to install scenario", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		if err := driver.Stop(); err == nil {
			logger.Info("shutdown requested, stopping run")
		}
	}()

	run, err := driver.Start(ctx, duration)
	if err != nil {
		logger.Error("run failed", "error", err)
	}
	if run == nil {
		os.Exit(1)
	}

	out, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		logger.Error("failed to encode run result", "error", err)
		os.Exit(1)
	}
	os.Stdout.Write(out)
	os.Stdout.Write([]byte("\n"))

	if run.Error != "" {
		os.Exit(1)
	}
}
