// Package lipo inspects the architectures an app binary carries, so a
// simulator run can fail fast instead of booting an app the simulator
// cannot host.
package lipo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gredman/run-loop/pkg/xcrun"
)

// ErrUnsupportedArch is returned when a binary carries no architecture
// the simulator can host.
var ErrUnsupportedArch = errors.New("binary carries no simulator-compatible architecture")

// simulatorArchs are the architectures a simulator can host.
var simulatorArchs = map[string]bool{
	"i386":   true,
	"x86_64": true,
	"arm64":  true,
}

// Checker shells out to `xcrun lipo`.
type Checker struct {
	runner  xcrun.Runner
	log     zerolog.Logger
	timeout time.Duration
}

// NewChecker returns a Checker using runner for invocations.
func NewChecker(runner xcrun.Runner, logger zerolog.Logger) *Checker {
	return &Checker{
		runner:  runner,
		log:     logger,
		timeout: xcrun.DefaultTimeout,
	}
}

// Info returns the architectures binaryPath was built for.
func (c *Checker) Info(ctx context.Context, binaryPath string) ([]string, error) {
	result, err := xcrun.Xcrun(ctx, c.runner, c.timeout, "lipo", "-info", binaryPath)
	if err != nil {
		return nil, fmt.Errorf("lipo -info: %w", err)
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("lipo -info %s: %s", binaryPath, strings.TrimSpace(string(result.Stderr)))
	}
	return parseInfo(string(result.Stdout))
}

// VerifySimulator checks that binaryPath can run on a simulator.
func (c *Checker) VerifySimulator(ctx context.Context, binaryPath string) error {
	archs, err := c.Info(ctx, binaryPath)
	if err != nil {
		return err
	}

	for _, arch := range archs {
		if simulatorArchs[arch] {
			c.log.Debug().Str("binary", binaryPath).Str("arch", arch).Msg("Simulator architecture present")
			return nil
		}
	}
	return fmt.Errorf("%w: %s built for %s", ErrUnsupportedArch, binaryPath, strings.Join(archs, " "))
}

// VerifyAppSimulator checks the main executable of an .app bundle.
func (c *Checker) VerifyAppSimulator(ctx context.Context, appPath string) error {
	return c.VerifySimulator(ctx, AppBinary(appPath))
}

// AppBinary returns the conventional main executable path of an .app
// bundle: the bundle name without its extension.
func AppBinary(appPath string) string {
	base := strings.TrimSuffix(filepath.Base(appPath), ".app")
	return filepath.Join(appPath, base)
}

// parseInfo handles both lipo -info output forms:
//
//	Architectures in the fat file: <path> are: i386 x86_64
//	Non-fat file: <path> is architecture: x86_64
func parseInfo(out string) ([]string, error) {
	line := strings.TrimSpace(out)
	if idx := strings.LastIndex(line, " are: "); idx >= 0 {
		return strings.Fields(line[idx+len(" are: "):]), nil
	}
	if idx := strings.LastIndex(line, " is architecture: "); idx >= 0 {
		return strings.Fields(line[idx+len(" is architecture: "):]), nil
	}
	return nil, fmt.Errorf("unrecognized lipo output: %q", line)
}
