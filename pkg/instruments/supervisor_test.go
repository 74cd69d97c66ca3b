package instruments

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gredman/run-loop/pkg/runloop"
	"github.com/gredman/run-loop/pkg/xcrun"
)

// scriptedRunner returns canned results keyed by command name.
type scriptedRunner struct {
	results map[string]xcrun.Result
	errs    map[string]error
	reqs    []xcrun.Request
}

func (f *scriptedRunner) Run(ctx context.Context, req xcrun.Request) (xcrun.Result, error) {
	f.reqs = append(f.reqs, req)
	if err := f.errs[req.Command]; err != nil {
		return xcrun.Result{}, err
	}
	return f.results[req.Command], nil
}

func idleRunner() *scriptedRunner {
	return &scriptedRunner{results: map[string]xcrun.Result{
		"pgrep": {ExitCode: 1},
		"pkill": {ExitCode: 1},
	}}
}

func TestLaunchPreparesRunDirectory(t *testing.T) {
	dir := t.TempDir()
	var spawned []string
	var spawnedLog string
	sup := NewSupervisor(Config{
		DotDir: dir,
		Runner: idleRunner(),
		Spawn: func(ctx context.Context, argv []string, logPath string) (int, error) {
			spawned = argv
			spawnedLog = logPath
			return 4242, nil
		},
	})

	run, err := sup.Launch(context.Background(), LaunchSpec{
		Target: "AAAA-UUID-1111",
		Args:   []string{"/tmp/App.app"},
	})
	require.NoError(t, err)

	assert.Equal(t, 4242, run.PID)
	assert.Equal(t, run.LogPath, spawnedLog)

	info, err := os.Stat(run.PipePath)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeNamedPipe)

	assert.FileExists(t, run.LogPath)
	assert.DirExists(t, filepath.Join(run.Dir, traceDirName))

	pid, err := ReadPID(run.Dir)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)

	// The assembled script points at this run's pipe.
	data, err := os.ReadFile(run.ScriptPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), run.PipePath)

	require.GreaterOrEqual(t, len(spawned), 15)
	assert.Equal(t, []string{"xcrun", "instruments", "-w", "AAAA-UUID-1111"}, spawned[:4])
	assert.Equal(t, "-t", spawned[6])
	assert.Equal(t, DefaultTemplate, spawned[7])
	assert.Contains(t, spawned, "/tmp/App.app")
	assert.Equal(t,
		[]string{"-e", "UIASCRIPT", run.ScriptPath, "-e", "UIARESULTSPATH", run.Dir},
		spawned[len(spawned)-6:])

	s := run.Session()
	assert.Equal(t, 1, s.CommandIndex())
	assert.Equal(t, int64(0), s.Offset())
}

func TestLaunchCustomScriptTemplate(t *testing.T) {
	dir := t.TempDir()
	templatePath := filepath.Join(dir, "custom.js")
	require.NoError(t, os.WriteFile(templatePath,
		[]byte(`// custom driver
var pipe = "$COMMAND_PIPE";
var results = "$RESULTS_PATH";`), 0644))

	sup := NewSupervisor(Config{
		DotDir: dir,
		Runner: idleRunner(),
		Spawn: func(ctx context.Context, argv []string, logPath string) (int, error) {
			return 1, nil
		},
	})

	run, err := sup.Launch(context.Background(), LaunchSpec{
		Target:         "AAAA-UUID-1111",
		ScriptTemplate: templatePath,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(run.ScriptPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "// custom driver")
	assert.Contains(t, string(data), run.PipePath)
}

func TestLaunchRefusedWhenEngineRunning(t *testing.T) {
	runner := &scriptedRunner{results: map[string]xcrun.Result{
		"pgrep": {ExitCode: 0, Stdout: []byte("1234\n")},
	}}
	spawnCalled := false
	sup := NewSupervisor(Config{
		DotDir: t.TempDir(),
		Runner: runner,
		Spawn: func(ctx context.Context, argv []string, logPath string) (int, error) {
			spawnCalled = true
			return 1, nil
		},
	})

	_, err := sup.Launch(context.Background(), LaunchSpec{Target: "AAAA-UUID-1111"})

	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.False(t, spawnCalled)
}

func TestLaunchMissingTarget(t *testing.T) {
	sup := NewSupervisor(Config{DotDir: t.TempDir(), Runner: idleRunner()})

	_, err := sup.Launch(context.Background(), LaunchSpec{})
	assert.ErrorIs(t, err, ErrMissingTarget)
}

func TestLaunchSpawnFailure(t *testing.T) {
	sup := NewSupervisor(Config{
		DotDir: t.TempDir(),
		Runner: idleRunner(),
		Spawn: func(ctx context.Context, argv []string, logPath string) (int, error) {
			return 0, errors.New("exec format error")
		},
	})

	_, err := sup.Launch(context.Background(), LaunchSpec{Target: "AAAA-UUID-1111"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spawn instruments")
}

func TestEngineRunning(t *testing.T) {
	tests := []struct {
		name     string
		result   xcrun.Result
		expected bool
		wantErr  bool
	}{
		{"running", xcrun.Result{ExitCode: 0, Stdout: []byte("1234\n")}, true, false},
		{"idle", xcrun.Result{ExitCode: 1}, false, false},
		{"pgrep broken", xcrun.Result{ExitCode: 2, Stderr: []byte("pgrep: bad pattern")}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &scriptedRunner{results: map[string]xcrun.Result{"pgrep": tt.result}}
			sup := NewSupervisor(Config{DotDir: t.TempDir(), Runner: runner})

			running, err := sup.EngineRunning(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, running)
		})
	}
}

func TestTerminateKillsEngine(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	runner := idleRunner()
	sup := NewSupervisor(Config{DotDir: t.TempDir(), Runner: runner})

	session := runloop.NewSession(pid, "", "")
	require.NoError(t, sup.Terminate(context.Background(), session))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine process did not exit")
	}
	assert.False(t, sup.Alive(pid))

	// The lldb helper sweep went through pkill.
	require.Len(t, runner.reqs, 1)
	assert.Equal(t, "pkill", runner.reqs[0].Command)
}

func TestTerminateGoneProcessIsFine(t *testing.T) {
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	require.NoError(t, cmd.Wait())

	sup := NewSupervisor(Config{DotDir: t.TempDir(), Runner: idleRunner()})

	err := sup.Terminate(context.Background(), runloop.NewSession(pid, "", ""))
	assert.NoError(t, err)
}

func TestAlive(t *testing.T) {
	sup := NewSupervisor(Config{DotDir: t.TempDir(), Runner: idleRunner()})

	assert.True(t, sup.Alive(os.Getpid()))
	assert.False(t, sup.Alive(0))
	assert.False(t, sup.Alive(-1))
}

func TestReadPIDInvalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, pidFileName), []byte("garbage"), 0644))

	_, err := ReadPID(dir)
	assert.Error(t, err)
}
