package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gredman/run-loop/internal/config"
	"github.com/gredman/run-loop/internal/logger"
	"github.com/gredman/run-loop/internal/observability"
	"github.com/gredman/run-loop/internal/registry"
	"github.com/gredman/run-loop/pkg/device"
	"github.com/gredman/run-loop/pkg/instruments"
	"github.com/gredman/run-loop/pkg/lipo"
	"github.com/gredman/run-loop/pkg/runloop"
	"github.com/gredman/run-loop/pkg/xcrun"
)

// appContext bundles the pieces every command bootstraps: config,
// logging, and the run registry under the dot directory.
type appContext struct {
	cfg *config.Config
	log *logger.Logger
	reg *registry.Registry
}

func newAppContext() (*appContext, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		Keep:      cfg.Logging.Keep,
	})
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DotDir, 0755); err != nil {
		lg.Close()
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	if err := observability.InitAuditLogger(filepath.Join(cfg.DotDir, "audit.log")); err != nil {
		lg.Warn().Err(err).Msg("audit log unavailable")
	}

	reg, err := registry.Open(registry.Config{
		DBPath: filepath.Join(cfg.DotDir, "runs.db"),
		Logger: lg.GetZerolog(),
	})
	if err != nil {
		lg.Close()
		return nil, err
	}

	return &appContext{cfg: cfg, log: lg, reg: reg}, nil
}

func (a *appContext) Close() {
	a.reg.Close()
	a.log.Close()
}

func (a *appContext) runner() xcrun.Runner {
	return xcrun.NewRunner(a.log.GetZerolog())
}

func (a *appContext) supervisor() *instruments.Supervisor {
	return instruments.NewSupervisor(instruments.Config{
		DotDir: a.cfg.DotDir,
		Logger: a.log.GetZerolog(),
		Runner: a.runner(),
	})
}

func (a *appContext) resolver() device.Resolver {
	return device.NewSimctlResolver(a.runner(), a.log.GetZerolog())
}

func (a *appContext) archChecker() *lipo.Checker {
	return lipo.NewChecker(a.runner(), a.log.GetZerolog())
}

func (a *appContext) driver() *runloop.Driver {
	return runloop.New(runloop.Config{
		PollInterval:    a.cfg.Timeouts.PollInterval(),
		AckTimeout:      a.cfg.Timeouts.AckTimeout(),
		PipeTimeout:     a.cfg.Timeouts.PipeTimeout(),
		SendTimeout:     a.cfg.Timeouts.SendTimeout(),
		RecoveryTimeout: a.cfg.Timeouts.RecoveryTimeout(),
		MaxRetries:      a.cfg.Timeouts.Retries,
		Logger:          a.log.GetZerolog(),
	})
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
