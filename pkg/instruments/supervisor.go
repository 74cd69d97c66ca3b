// Package instruments launches and supervises the instruments process
// hosting a UIAutomation run: one engine at a time, its own run
// directory, a command pipe, and a log file the driver tails.
package instruments

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/gredman/run-loop/internal/observability"
	"github.com/gredman/run-loop/pkg/runloop"
	"github.com/gredman/run-loop/pkg/script"
	"github.com/gredman/run-loop/pkg/xcrun"
)

// DefaultTemplate is the trace template handed to instruments when a
// launch spec does not pick one.
const DefaultTemplate = "Automation"

// Process-table patterns for detection and teardown.
const (
	enginePattern     = "instruments -w"
	lldbHelperPattern = "xcrun.*lldb"
)

// Names inside a run directory.
const (
	pipeFileName = "commands.pipe"
	logFileName  = "engine.log"
	pidFileName  = "instruments.pid"
	traceDirName = "trace"
)

const runIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// LaunchSpec describes one engine launch.
type LaunchSpec struct {
	Target         string        // device UDID or simulator identifier for -w
	Template       string        // trace template name or path; DefaultTemplate when empty
	ScriptTemplate string        // driver script template path; built-in when empty
	Args           []string      // extra instruments arguments, app path included
	FlushInterval  time.Duration // script idle cadence
}

// Run describes a launched engine and where its channel files live.
type Run struct {
	ID         string
	Dir        string
	PID        int
	PipePath   string
	LogPath    string
	ScriptPath string
	StartedAt  time.Time
}

// Session returns a fresh driver session for the run.
func (r *Run) Session() *runloop.Session {
	return runloop.NewSession(r.PID, r.PipePath, r.LogPath)
}

// SpawnFunc starts argv detached with both output streams appended to
// logPath and returns the child pid. Tests substitute fakes.
type SpawnFunc func(ctx context.Context, argv []string, logPath string) (int, error)

// Config holds supervisor dependencies. Zero fields get working defaults.
type Config struct {
	DotDir string // state directory; ~/.run-loop when empty
	Logger zerolog.Logger
	Runner xcrun.Runner // pgrep/pkill shell-outs
	Spawn  SpawnFunc
}

// Supervisor owns the engine process lifecycle.
type Supervisor struct {
	dotDir string
	log    zerolog.Logger
	runner xcrun.Runner
	spawn  SpawnFunc
}

// NewSupervisor creates a Supervisor, filling zero Config fields.
func NewSupervisor(cfg Config) *Supervisor {
	observability.EnsureRegistered()

	if cfg.DotDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		cfg.DotDir = filepath.Join(home, ".run-loop")
	}
	if cfg.Runner == nil {
		cfg.Runner = xcrun.NewRunner(cfg.Logger)
	}
	if cfg.Spawn == nil {
		cfg.Spawn = spawnDetached
	}

	return &Supervisor{
		dotDir: cfg.DotDir,
		log:    cfg.Logger,
		runner: cfg.Runner,
		spawn:  cfg.Spawn,
	}
}

// Launch prepares a run directory, assembles the driver script, starts
// instruments detached, and returns the run. The launch is refused when
// an instruments process is already alive; only one engine can own the
// automation interfaces at a time.
func (s *Supervisor) Launch(ctx context.Context, spec LaunchSpec) (*Run, error) {
	if spec.Target == "" {
		return nil, ErrMissingTarget
	}
	if spec.Template == "" {
		spec.Template = DefaultTemplate
	}

	running, err := s.EngineRunning(ctx)
	if err != nil {
		return nil, err
	}
	if running {
		observability.RecordLaunch(false)
		return nil, ErrAlreadyRunning
	}

	id, err := gonanoid.Generate(runIDAlphabet, 6)
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}

	runDir := filepath.Join(s.dotDir, "runs", time.Now().Format("20060102_150405")+"-"+id)
	if err := os.MkdirAll(filepath.Join(runDir, traceDirName), 0755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	pipePath := filepath.Join(runDir, pipeFileName)
	if err := unix.Mkfifo(pipePath, 0600); err != nil {
		return nil, fmt.Errorf("create command pipe: %w", err)
	}

	logPath := filepath.Join(runDir, logFileName)
	if err := os.WriteFile(logPath, nil, 0644); err != nil {
		return nil, fmt.Errorf("create engine log: %w", err)
	}

	scriptPath, err := s.assembleScript(spec, runDir, pipePath)
	if err != nil {
		return nil, err
	}

	argv := buildArgv(spec, runDir, scriptPath)
	pid, err := s.spawn(ctx, argv, logPath)
	if err != nil {
		observability.RecordLaunch(false)
		return nil, fmt.Errorf("spawn instruments: %w", err)
	}

	if err := os.WriteFile(filepath.Join(runDir, pidFileName), []byte(strconv.Itoa(pid)), 0644); err != nil {
		return nil, fmt.Errorf("write pid marker: %w", err)
	}

	s.log.Info().
		Int("pid", pid).
		Str("target", spec.Target).
		Str("run_dir", runDir).
		Msg("Engine launched")
	observability.RecordLaunch(true)
	observability.RecordEngineAudit("launch", spec.Target, "success", map[string]interface{}{
		"pid":     pid,
		"run_id":  id,
		"run_dir": runDir,
	})

	return &Run{
		ID:         id,
		Dir:        runDir,
		PID:        pid,
		PipePath:   pipePath,
		LogPath:    logPath,
		ScriptPath: scriptPath,
		StartedAt:  time.Now(),
	}, nil
}

func (s *Supervisor) assembleScript(spec LaunchSpec, runDir, pipePath string) (string, error) {
	params := script.Params{
		CommandPipe:   pipePath,
		ResultsPath:   runDir,
		FlushInterval: spec.FlushInterval,
	}
	if spec.ScriptTemplate != "" {
		return script.WriteFile(spec.ScriptTemplate, runDir, params)
	}
	return script.WriteDefault(runDir, params)
}

// buildArgv renders the instruments command line for a run.
func buildArgv(spec LaunchSpec, runDir, scriptPath string) []string {
	argv := []string{
		"xcrun", "instruments",
		"-w", spec.Target,
		"-D", filepath.Join(runDir, traceDirName, "trace"),
		"-t", spec.Template,
	}
	argv = append(argv, spec.Args...)
	argv = append(argv,
		"-e", "UIASCRIPT", scriptPath,
		"-e", "UIARESULTSPATH", runDir,
	)
	return argv
}

// EngineRunning reports whether an instruments process is in the process
// table.
func (s *Supervisor) EngineRunning(ctx context.Context) (bool, error) {
	result, err := s.runner.Run(ctx, xcrun.Request{
		Command: "pgrep",
		Args:    []string{"-f", enginePattern},
	})
	if err != nil {
		return false, fmt.Errorf("detect instruments: %w", err)
	}

	switch result.ExitCode {
	case 0:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, fmt.Errorf("detect instruments: pgrep: %s", strings.TrimSpace(string(result.Stderr)))
	}
}

// Terminate tears a run down: SIGTERM to the tracked pid, then the lldb
// helpers instruments leaves behind. Processes that are already gone are
// not an error.
func (s *Supervisor) Terminate(ctx context.Context, session *runloop.Session) error {
	pid := session.PID()
	if pid > 0 {
		if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("terminate pid %d: %w", pid, err)
		}
	}

	// pkill exits 1 when nothing matched; that is the common case once
	// instruments is down.
	if _, err := s.runner.Run(ctx, xcrun.Request{
		Command: "pkill",
		Args:    []string{"-f", lldbHelperPattern},
	}); err != nil {
		s.log.Warn().Err(err).Msg("lldb helper cleanup failed")
	}

	s.log.Info().Int("pid", pid).Msg("Engine terminated")
	observability.RecordTermination()
	observability.RecordEngineAudit("terminate", strconv.Itoa(pid), "success", nil)
	return nil
}

// Kill force-kills pid. Gone processes are not an error.
func (s *Supervisor) Kill(pid int) error {
	if pid <= 0 {
		return nil
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return nil
}

// Alive reports whether pid is still in the process table.
func (s *Supervisor) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return unix.Kill(pid, 0) == nil
}

// ReadPID reads the pid marker from a run directory.
func ReadPID(runDir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(runDir, pidFileName))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid marker: %w", err)
	}
	return pid, nil
}
