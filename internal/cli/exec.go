package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gredman/run-loop/internal/observability"
	"github.com/gredman/run-loop/internal/registry"
	"github.com/gredman/run-loop/pkg/runloop"
)

var (
	execTimeout     time.Duration
	execStdin       bool
	execMetricsAddr string
)

var execCmd = &cobra.Command{
	Use:   "exec [javascript]",
	Short: "Send a UIAutomation command to the live engine",
	Long: `Send one JavaScript command to the live engine and print its JSON
response on stdout. With --stdin, commands are read one per line and
sent in order, stopping at the first failure.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().DurationVar(&execTimeout, "timeout", 0, "response wait override")
	execCmd.Flags().BoolVar(&execStdin, "stdin", false, "read commands from stdin, one per line")
	execCmd.Flags().StringVar(&execMetricsAddr, "metrics-addr", "", "serve /metrics on this address while running")
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !execStdin {
		return errors.New("nothing to send: pass a command or --stdin")
	}

	app, err := newAppContext()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()

	rec, err := app.reg.Live()
	if errors.Is(err, registry.ErrNoLiveRun) {
		return errors.New("no live run; start one with: runloop run")
	}
	if err != nil {
		return err
	}

	if !app.supervisor().Alive(rec.PID) {
		_ = app.reg.SetStatus(rec.ID, registry.StatusFailed)
		return fmt.Errorf("engine pid %d is gone; start a new run", rec.PID)
	}

	if addr := firstNonEmpty(execMetricsAddr, app.cfg.Metrics.Addr); addr != "" {
		stop := serveMetrics(addr, app.log.GetZerolog())
		defer stop()
	}

	session := runloop.ResumeSession(rec.PID, rec.PipePath, rec.LogPath, rec.CommandIndex, rec.Offset)
	driver := app.driver()

	send := func(text string) error {
		payload, err := driver.SendCommand(ctx, session, text, runloop.SendOptions{Timeout: execTimeout})

		// Persist the cursor even on failure: recovery and discarded
		// frames move it, and the next invocation must not rescan.
		if saveErr := app.reg.SaveSession(rec.ID, session.CommandIndex(), session.Offset()); saveErr != nil {
			app.log.Warn().Err(saveErr).Msg("save session cursor")
		}

		if err != nil {
			observability.RecordCommandAudit("send", rec.Target, "failure", map[string]interface{}{
				"command_index": session.CommandIndex(),
			})
			if runloop.IsFatal(err) {
				_ = app.reg.SetStatus(rec.ID, registry.StatusFailed)
			}
			return err
		}

		observability.RecordCommandAudit("send", rec.Target, "success", map[string]interface{}{
			"command_index": session.CommandIndex() - 1,
		})

		line, merr := json.Marshal(payload)
		if merr != nil {
			return fmt.Errorf("render response: %w", merr)
		}
		fmt.Println(string(line))
		return nil
	}

	if !execStdin {
		return send(args[0])
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := send(text); err != nil {
			return err
		}
	}
	return scanner.Err()
}
