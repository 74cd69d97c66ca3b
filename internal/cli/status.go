package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gredman/run-loop/internal/registry"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the live engine status",
	Long:  `Show the current engine run, its process state, and the session cursor.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}
	defer app.Close()

	rec, err := app.reg.Live()
	if errors.Is(err, registry.ErrNoLiveRun) {
		fmt.Println("Status: stopped")
		return nil
	}
	if err != nil {
		return err
	}

	state := "running"
	if !app.supervisor().Alive(rec.PID) {
		state = "dead"
	}

	fmt.Printf("Status: %s\n", state)
	fmt.Printf("Run: %s\n", rec.RunID)
	fmt.Printf("PID: %d\n", rec.PID)
	fmt.Printf("Device: %s\n", rec.Target)
	fmt.Printf("Run dir: %s\n", rec.Dir)
	fmt.Printf("Uptime: %s\n", formatDuration(time.Since(rec.CreatedAt)))
	fmt.Printf("Next command index: %d\n", rec.CommandIndex)
	fmt.Printf("Consumed log bytes: %d\n", rec.Offset)

	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
