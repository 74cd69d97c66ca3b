package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gredman/run-loop/internal/config"
	"github.com/gredman/run-loop/internal/registry"
	"github.com/gredman/run-loop/pkg/instruments"
	"github.com/gredman/run-loop/pkg/lipo"
)

var (
	runDevice        string
	runApp           string
	runTemplate      string
	runScript        string
	runOptionsFile   string
	runExtraArgs     []string
	runFlushInterval time.Duration
	runSkipArchCheck bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch instruments with the driver script",
	Long: `Launch instruments against the chosen device, inject the UIAutomation
driver script, and record the run so exec can send commands to it.
Only one engine can own the automation interfaces at a time.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runDevice, "device", "d", "", "device name or UDID")
	runCmd.Flags().StringVar(&runApp, "app", "", "app bundle path handed to instruments")
	runCmd.Flags().StringVarP(&runTemplate, "template", "t", "", "trace template name or path")
	runCmd.Flags().StringVar(&runScript, "script", "", "custom driver script template path")
	runCmd.Flags().StringVar(&runOptionsFile, "options", "", "launch options JSON file")
	runCmd.Flags().StringArrayVar(&runExtraArgs, "arg", nil, "extra instruments argument (repeatable)")
	runCmd.Flags().DurationVar(&runFlushInterval, "flush-interval", 0, "script idle cadence")
	runCmd.Flags().BoolVar(&runSkipArchCheck, "skip-arch-check", false, "skip the app binary architecture check")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()

	opts := &config.LaunchOptions{}
	if runOptionsFile != "" {
		opts, err = config.LoadLaunchOptions(runOptionsFile)
		if err != nil {
			return err
		}
	}

	target := firstNonEmpty(runDevice, opts.Device, app.cfg.Device.Default)
	if target == "" {
		return errors.New("no device given: use --device, the options file, or device.default in the config")
	}

	dev, err := app.resolver().Resolve(ctx, target)
	if err != nil {
		return fmt.Errorf("resolve device %q: %w", target, err)
	}

	appPath := firstNonEmpty(runApp, opts.App)
	if appPath != "" && dev.Simulator && !runSkipArchCheck {
		if err := app.archChecker().VerifyAppSimulator(ctx, appPath); err != nil {
			if errors.Is(err, lipo.ErrUnsupportedArch) {
				return fmt.Errorf("%s is not built for the simulator: %w", appPath, err)
			}
			return err
		}
	}

	flush := app.cfg.Engine.FlushInterval()
	if opts.FlushIntervalMS > 0 {
		flush = time.Duration(opts.FlushIntervalMS) * time.Millisecond
	}
	if runFlushInterval > 0 {
		flush = runFlushInterval
	}

	launchArgs := append([]string{}, opts.Args...)
	launchArgs = append(launchArgs, runExtraArgs...)
	if appPath != "" {
		launchArgs = append([]string{appPath}, launchArgs...)
	}

	spec := instruments.LaunchSpec{
		Target:         dev.UDID,
		Template:       firstNonEmpty(runTemplate, opts.Template, app.cfg.Engine.Template),
		ScriptTemplate: firstNonEmpty(runScript, opts.Script, app.cfg.Engine.ScriptTemplate),
		Args:           launchArgs,
		FlushInterval:  flush,
	}

	run, err := app.supervisor().Launch(ctx, spec)
	if errors.Is(err, instruments.ErrAlreadyRunning) {
		return fmt.Errorf("%w; stop it first with: runloop stop", err)
	}
	if err != nil {
		return err
	}

	rec := &registry.Record{
		RunID:      run.ID,
		Target:     dev.UDID,
		PID:        run.PID,
		Dir:        run.Dir,
		PipePath:   run.PipePath,
		LogPath:    run.LogPath,
		ScriptPath: run.ScriptPath,
	}
	if err := app.reg.Create(rec); err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	name := dev.Name
	if name == "" {
		name = dev.UDID
	}
	fmt.Printf("Engine started\n")
	fmt.Printf("Run: %s\n", run.ID)
	fmt.Printf("PID: %d\n", run.PID)
	fmt.Printf("Device: %s (%s)\n", name, dev.UDID)
	fmt.Printf("Run dir: %s\n", run.Dir)
	fmt.Println("\nSend commands with: runloop exec '<javascript>'")

	return nil
}
