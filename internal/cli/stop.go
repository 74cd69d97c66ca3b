package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gredman/run-loop/internal/registry"
	"github.com/gredman/run-loop/pkg/runloop"
)

var stopTimeout int

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the live engine",
	Long: `Stop the live engine gracefully.
Sends SIGTERM to the instruments process, sweeps up its lldb helpers,
and waits for the process to leave the table.`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopTimeout, "timeout", 30, "timeout in seconds to wait for the engine to stop")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	sup := app.supervisor()

	rec, err := app.reg.Live()
	if errors.Is(err, registry.ErrNoLiveRun) {
		running, derr := sup.EngineRunning(ctx)
		if derr != nil {
			return derr
		}
		if running {
			return errors.New("an instruments process is running but no run is registered; kill it by hand")
		}
		fmt.Println("Nothing to stop")
		return nil
	}
	if err != nil {
		return err
	}

	session := runloop.ResumeSession(rec.PID, rec.PipePath, rec.LogPath, rec.CommandIndex, rec.Offset)
	if err := sup.Terminate(ctx, session); err != nil {
		return err
	}

	// Wait for the process to leave the table with timeout
	deadline := time.Now().Add(time.Duration(stopTimeout) * time.Second)
	for time.Now().Before(deadline) {
		if !sup.Alive(rec.PID) {
			if err := app.reg.SetStatus(rec.ID, registry.StatusStopped); err != nil {
				return err
			}
			fmt.Println("Engine stopped")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	// Force kill if timeout
	fmt.Println("Timeout reached, sending SIGKILL...")
	if err := sup.Kill(rec.PID); err != nil {
		return err
	}
	if err := app.reg.SetStatus(rec.ID, registry.StatusStopped); err != nil {
		return err
	}
	fmt.Println("Engine killed")
	return nil
}
