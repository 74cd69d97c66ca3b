package instruments

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// spawnDetached starts argv in its own session so the engine survives
// the driver process, with stdout and stderr appended to logPath. The
// child is reaped in the background.
func spawnDetached(ctx context.Context, argv []string, logPath string) (int, error) {
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("open engine log: %w", err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return 0, err
	}
	// The child holds its own descriptor now.
	logFile.Close()

	go func() {
		_ = cmd.Wait()
	}()

	return cmd.Process.Pid, nil
}
