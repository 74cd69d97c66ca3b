// Package device resolves the target a run drives: a simulator matched
// by name or UDID through simctl, or a physical device UDID passed
// through untouched.
package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gredman/run-loop/pkg/xcrun"
)

var (
	// ErrNoTarget is returned when no device target was given
	ErrNoTarget = errors.New("no device target given")

	// ErrDeviceNotFound is returned when the target matches nothing simctl knows
	ErrDeviceNotFound = errors.New("device not found")
)

// Device identifies one resolvable target.
type Device struct {
	Name      string
	UDID      string
	Runtime   string
	State     string
	Available bool
	Simulator bool
}

// Resolver turns a user-supplied target string into a Device.
type Resolver interface {
	Resolve(ctx context.Context, target string) (Device, error)
	List(ctx context.Context) ([]Device, error)
}

// SimctlResolver resolves simulator targets through `xcrun simctl`.
type SimctlResolver struct {
	runner  xcrun.Runner
	log     zerolog.Logger
	timeout time.Duration
}

// NewSimctlResolver returns a Resolver backed by simctl.
func NewSimctlResolver(runner xcrun.Runner, logger zerolog.Logger) *SimctlResolver {
	return &SimctlResolver{
		runner:  runner,
		log:     logger,
		timeout: xcrun.DefaultTimeout,
	}
}

// simctlList mirrors the `simctl list devices --json` document: devices
// grouped under their runtime key.
type simctlList struct {
	Devices map[string][]simctlDevice `json:"devices"`
}

type simctlDevice struct {
	Name         string `json:"name"`
	UDID         string `json:"udid"`
	State        string `json:"state"`
	IsAvailable  bool   `json:"isAvailable"`
	Availability string `json:"availability"`
}

// List returns every simulator simctl reports, newest runtime first.
func (r *SimctlResolver) List(ctx context.Context) ([]Device, error) {
	result, err := xcrun.Xcrun(ctx, r.runner, r.timeout, "simctl", "list", "devices", "--json")
	if err != nil {
		return nil, fmt.Errorf("list simulators: %w", err)
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("simctl list failed: %s", strings.TrimSpace(string(result.Stderr)))
	}

	var doc simctlList
	if err := json.Unmarshal(result.Stdout, &doc); err != nil {
		return nil, fmt.Errorf("parse simctl output: %w", err)
	}

	var devices []Device
	for key, group := range doc.Devices {
		runtime := runtimeName(key)
		for _, d := range group {
			devices = append(devices, Device{
				Name:      d.Name,
				UDID:      d.UDID,
				Runtime:   runtime,
				State:     d.State,
				Available: d.available(),
				Simulator: true,
			})
		}
	}

	sort.SliceStable(devices, func(i, j int) bool {
		if devices[i].Runtime != devices[j].Runtime {
			return runtimeLess(devices[j].Runtime, devices[i].Runtime)
		}
		return devices[i].Name < devices[j].Name
	})

	r.log.Debug().Int("count", len(devices)).Msg("Listed simulators")
	return devices, nil
}

// Resolve matches target against the simulator list by UDID first, then
// by name, preferring available devices on the newest runtime. A
// UDID-shaped target that matches no simulator is treated as a physical
// device and passed through.
func (r *SimctlResolver) Resolve(ctx context.Context, target string) (Device, error) {
	if target == "" {
		return Device{}, ErrNoTarget
	}

	devices, err := r.List(ctx)
	if err != nil {
		// simctl may be unusable on a host that only drives physical devices
		if udidShaped(target) {
			r.log.Warn().Err(err).Str("target", target).Msg("simctl unavailable, passing target through")
			return Device{UDID: target}, nil
		}
		return Device{}, err
	}

	for _, d := range devices {
		if d.UDID == target {
			return d, nil
		}
	}

	// List order already prefers the newest runtime.
	for _, d := range devices {
		if d.Name == target && d.Available {
			return d, nil
		}
	}

	if udidShaped(target) {
		return Device{UDID: target}, nil
	}

	return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, target)
}

var udidPattern = regexp.MustCompile(`^[0-9A-Fa-f][0-9A-Fa-f-]{23,39}$`)

// udidShaped reports whether target looks like a device identifier
// rather than a simulator name.
func udidShaped(target string) bool {
	return udidPattern.MatchString(target)
}

// available tolerates both simctl schema generations.
func (d simctlDevice) available() bool {
	if d.IsAvailable {
		return true
	}
	return strings.Contains(d.Availability, "(available)")
}

// runtimeName turns a runtime key into its display form, for example
// "com.apple.CoreSimulator.SimRuntime.iOS-17-0" into "iOS 17.0". Keys
// already in display form pass through.
func runtimeName(key string) string {
	name := strings.TrimPrefix(key, "com.apple.CoreSimulator.SimRuntime.")
	parts := strings.SplitN(name, "-", 2)
	if len(parts) != 2 {
		return name
	}
	return parts[0] + " " + strings.ReplaceAll(parts[1], "-", ".")
}

// runtimeLess orders runtimes by family then numeric version.
func runtimeLess(a, b string) bool {
	aFamily, aVersion := splitRuntime(a)
	bFamily, bVersion := splitRuntime(b)
	if aFamily != bFamily {
		return aFamily < bFamily
	}
	for i := 0; i < len(aVersion) || i < len(bVersion); i++ {
		av, bv := 0, 0
		if i < len(aVersion) {
			av = aVersion[i]
		}
		if i < len(bVersion) {
			bv = bVersion[i]
		}
		if av != bv {
			return av < bv
		}
	}
	return false
}

func splitRuntime(runtime string) (string, []int) {
	idx := strings.LastIndex(runtime, " ")
	if idx < 0 {
		return runtime, nil
	}
	var version []int
	for _, part := range strings.Split(runtime[idx+1:], ".") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return runtime, nil
		}
		version = append(version, n)
	}
	return runtime[:idx], version
}
