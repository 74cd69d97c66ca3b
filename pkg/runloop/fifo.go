package runloop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// pipeRetryInterval is the delay between attempts to open the pipe's
// write end while the engine has not opened the read end yet.
const pipeRetryInterval = 50 * time.Millisecond

// PipeWriter delivers one command line to the engine's command channel.
// The default implementation writes to a named pipe; tests substitute
// their own.
type PipeWriter interface {
	WriteLine(ctx context.Context, path, line string, timeout time.Duration) error
}

// fifoWriter writes lines to a named pipe. Opening the write end of a
// FIFO blocks until a reader appears, so the open is non-blocking and
// retried on ENXIO within the timeout.
type fifoWriter struct{}

func (fifoWriter) WriteLine(ctx context.Context, path, line string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK, 0)
		if err == nil {
			file := os.NewFile(uintptr(fd), path)
			_, werr := file.WriteString(line + "\n")
			cerr := file.Close()
			if werr != nil {
				return fmt.Errorf("write to command pipe %s: %w", path, werr)
			}
			return cerr
		}
		if !errors.Is(err, unix.ENXIO) && !errors.Is(err, unix.EINTR) {
			return fmt.Errorf("open command pipe %s: %w", path, err)
		}
		// ENXIO: the engine has not opened its end yet
		if !time.Now().Before(deadline) {
			return fmt.Errorf("no reader on command pipe %s after %s", path, timeout)
		}
		time.Sleep(pipeRetryInterval)
	}
}
