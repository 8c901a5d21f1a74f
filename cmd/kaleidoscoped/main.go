// Command kaleidoscoped runs the lighting control-plane process: it loads
// a process configuration and a directory of fixture configurations,
// wires up the address space, global store, parameter registry, fixture
// manager, tick scheduler, actuator sink, status publisher and control
// plane, then runs until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mrd0ll4r/kaleidoscope/internal/address"
	"github.com/mrd0ll4r/kaleidoscope/internal/config"
	"github.com/mrd0ll4r/kaleidoscope/internal/controlplane"
	"github.com/mrd0ll4r/kaleidoscope/internal/fixture"
	"github.com/mrd0ll4r/kaleidoscope/internal/global"
	"github.com/mrd0ll4r/kaleidoscope/internal/host"
	"github.com/mrd0ll4r/kaleidoscope/internal/logging"
	"github.com/mrd0ll4r/kaleidoscope/internal/param"
	"github.com/mrd0ll4r/kaleidoscope/internal/scheduler"
	"github.com/mrd0ll4r/kaleidoscope/internal/sink"
	"github.com/mrd0ll4r/kaleidoscope/internal/status"
	"github.com/mrd0ll4r/kaleidoscope/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "kaleidoscope.yaml", "path to the process configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Backend: logging.Backend(cfg.Logging.Backend),
		Level:   levelFromString(cfg.Logging.Level),
	})
	if err != nil {
		return fmt.Errorf("kaleidoscoped: logging.New: %w", err)
	}

	metrics, err := telemetry.NewRegistry()
	if err != nil {
		return fmt.Errorf("kaleidoscoped: telemetry.NewRegistry: %w", err)
	}

	space := address.NewSpace()
	globals := global.NewStore()
	params := param.NewRegistry()
	start := time.Now()

	fixtureConfigs, err := config.LoadFixtures(cfg.FixturesDir)
	if err != nil {
		return err
	}

	fixtures := make([]*fixture.Fixture, 0, len(fixtureConfigs))
	for _, fc := range fixtureConfigs {
		f, err := buildFixture(fc, space, globals, params, logger, cfg.Failure, start)
		if err != nil {
			return err
		}
		fixtures = append(fixtures, f)
	}

	sinkCfg := sink.Config{Endpoint: cfg.ActuatorEndpoint, Logger: logger, Queue: nil}
	actuator := sink.New(sinkCfg)
	defer actuator.Close()

	sched := scheduler.New(scheduler.Config{
		Space:    space,
		Globals:  globals,
		Params:   params,
		Logger:   logger,
		Fixtures: fixtures,
		Sink:     actuator,
		Metrics:  metrics,
	}, scheduler.WithTickRate(cfg.TickRate))

	statusPub := status.NewLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cpServer := &http.Server{Addr: cfg.ControlPlaneListen, Handler: controlplane.New(sched, logger)}
	metricsServer := &http.Server{Addr: cfg.MetricsListen, Handler: metrics.Handler()}

	errCh := make(chan error, 3)
	go func() { errCh <- serveUntilShutdown(cpServer) }()
	go func() { errCh <- serveUntilShutdown(metricsServer) }()
	go func() { errCh <- sched.Run(ctx) }()

	_ = statusPub.Publish(ctx, status.Event{Kind: status.KindSchedulerStart, Message: "scheduler started", At: time.Now()})

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
			logger.Err().Str("component", "main").Log(err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = sched.Shutdown(shutdownCtx)
	_ = cpServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
	_ = statusPub.Publish(context.Background(), status.Event{Kind: status.KindSchedulerStop, Message: "scheduler stopped", At: time.Now()})

	return nil
}

// serveUntilShutdown runs srv and translates the expected clean-shutdown
// error into nil, so the caller's error channel only ever carries genuine
// failures.
func serveUntilShutdown(srv *http.Server) error {
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func levelFromString(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// buildFixture constructs one Fixture from its configuration: the
// builtins (unless disabled), every scripted catalog entry, and the
// initially active entry.
func buildFixture(fc config.FixtureConfig, space *address.Space, globals *global.Store, params *param.Registry, logger *logging.Logger, failure config.FailureConfig, start time.Time) (*fixture.Fixture, error) {
	outs := make([]address.Addr, 0, len(fc.Outputs))
	for _, o := range fc.Outputs {
		outs = append(outs, address.Addr(o))
	}
	f := fixture.New(fc.Name, outs)

	if !fc.DisableBuiltins {
		if err := f.Register(fixture.NewOff("off", 0, outs)); err != nil {
			return nil, err
		}
		if err := f.Register(fixture.NewOn("on", 0, outs)); err != nil {
			return nil, err
		}
		if !fc.DisableManual {
			manual, err := fixture.NewManual("manual", 0, outs, params)
			if err != nil {
				return nil, fmt.Errorf("kaleidoscope: fixture %s: manual: %w", fc.Name, err)
			}
			if err := f.Register(manual); err != nil {
				return nil, err
			}
		}
	}

	for _, pc := range fc.Programs {
		h := host.New(host.Config{
			Name:                   pc.Name,
			Priority:               pc.Priority,
			SlowMode:               pc.SlowMode,
			MaxConsecutiveFailures: failure.MaxConsecutiveFailures,
			FailureRateWindow:      failure.RateWindow,
			FailureRateLimit:       failure.RateLimit,
			Start:                  start,
			Space:                  space,
			Globals:                globals,
			Params:                 params,
			Logger:                 logger,
		})
		source, err := os.ReadFile(fc.ResolveProgramPath(pc))
		if err != nil {
			return nil, fmt.Errorf("kaleidoscope: fixture %s: program %s: %w", fc.Name, pc.Name, err)
		}
		if err := h.Load(pc.Name, string(source)); err != nil {
			return nil, fmt.Errorf("kaleidoscope: fixture %s: program %s: %w", fc.Name, pc.Name, err)
		}
		startEnabled := pc.Name == fc.Active
		if pc.StartEnabled != nil {
			startEnabled = *pc.StartEnabled
		}
		if err := h.Start(startEnabled); err != nil {
			return nil, fmt.Errorf("kaleidoscope: fixture %s: program %s: %w", fc.Name, pc.Name, err)
		}
		if err := f.Register(h); err != nil {
			return nil, err
		}
	}

	if fc.Active != "" {
		if err := f.SetActive(fc.Active); err != nil {
			return nil, fmt.Errorf("kaleidoscope: fixture %s: %w", fc.Name, err)
		}
	} else if !fc.DisableBuiltins {
		if err := f.SetActive("off"); err != nil {
			return nil, fmt.Errorf("kaleidoscope: fixture %s: %w", fc.Name, err)
		}
	}

	return f, nil
}
