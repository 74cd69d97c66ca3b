package runloop

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gredman/run-loop/internal/observability"
)

// Markers the engine writes straight to its log when the run is beyond
// saving. They are checked before any frame decoding.
const (
	axRegisterMarker = "AXError: Could not auto-register for pid status change"
	axServerNotFound = "kAXErrorServerNotFound"
	exceptionMarker  = "Automation Instrument ran into an exception"
)

// ReadOptions configures one call to ReadResponse.
type ReadOptions struct {
	Timeout    time.Duration // overall deadline; the driver's SendTimeout when zero
	MatchField string        // frame field compared against the expected index; "index" when empty
}

// ReadResponse polls the session's log for a complete frame whose match
// field equals expectedIndex. Frames carrying any other value are
// consumed and dropped. The session offset only moves forward, whether or
// not a frame matches.
func (d *Driver) ReadResponse(ctx context.Context, s *Session, expectedIndex int, opts ReadOptions) (map[string]interface{}, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = d.cfg.SendTimeout
	}
	field := opts.MatchField
	if field == "" {
		field = "index"
	}

	started := time.Now()
	deadline := started.Add(timeout)

	watcher := d.watchLogDir(s.logPath)
	if watcher != nil {
		defer watcher.Close()
	}

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		buf, err := readLogFrom(s.logPath, s.offset)
		if err != nil || len(buf) == 0 {
			d.waitForLog(ctx, watcher)
			continue
		}

		if ferr := d.scanFatal(buf); ferr != nil {
			observability.RecordResponseRead(time.Since(started), "fatal")
			return nil, ferr
		}

		scan := DecodeFrame(buf)
		switch scan.State {
		case FrameMissing:
			d.waitForLog(ctx, watcher)

		case FramePartial:
			// Anchor at the start marker so the next pass rescans only
			// the frame under construction.
			s.offset += int64(scan.Start)
			d.waitForLog(ctx, watcher)

		case FrameComplete:
			payload := map[string]interface{}{}
			parseErr := json.Unmarshal(scan.JSON, &payload)

			// The frame is consumed whether or not it matches.
			s.offset += int64(scan.End)

			if parseErr != nil {
				d.log.Warn().Err(parseErr).Int64("offset", s.offset).Msg("Discarding undecodable frame")
				observability.RecordFrameDiscarded("undecodable")
				continue
			}

			if frameIndex(payload, field) == expectedIndex {
				d.log.Debug().Str("field", field).Int("index", expectedIndex).Msg("Matched response frame")
				observability.RecordResponseRead(time.Since(started), "matched")
				return payload, nil
			}

			d.log.Debug().
				Str("field", field).
				Int("expected", expectedIndex).
				Interface("got", payload[field]).
				Msg("Discarding stale frame")
			observability.RecordFrameDiscarded("stale")
		}
	}

	observability.RecordResponseRead(time.Since(started), "timeout")
	return nil, &TimeoutError{Index: expectedIndex, Field: field, Timeout: timeout}
}

// scanFatal checks pending log bytes for the engine's unrecoverable
// failure markers.
func (d *Driver) scanFatal(buf []byte) *EngineError {
	if bytes.Contains(buf, []byte(axRegisterMarker)) {
		if bytes.Contains(buf, []byte(axServerNotFound)) {
			d.log.Warn().Msg("Accessibility is not enabled on the target; enable it in Settings and relaunch")
		}
		observability.RecordEngineFatal("accessibility")
		return &EngineError{Reason: "could not register for accessibility events"}
	}
	if bytes.Contains(buf, []byte(exceptionMarker)) {
		observability.RecordEngineFatal("exception")
		return &EngineError{Reason: "automation script raised an exception"}
	}
	return nil
}

// frameIndex extracts the integer value of field from a decoded frame.
// JSON numbers decode as float64; a missing or non-numeric field yields
// -1, which never matches a real index.
func frameIndex(payload map[string]interface{}, field string) int {
	value, ok := payload[field].(float64)
	if !ok {
		return -1
	}
	return int(value)
}

// readLogFrom returns the log bytes from offset to EOF. A log that does
// not exist yet reads as empty.
func readLogFrom(path string, offset int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(file)
}

// watchLogDir sets up a filesystem watch on the log's directory so engine
// writes cut the poll wait short. Polling alone is sufficient; a failed
// watch just means full-length waits.
func (d *Driver) watchLogDir(logPath string) *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil
	}
	if err := watcher.Add(filepath.Dir(logPath)); err != nil {
		watcher.Close()
		return nil
	}
	return watcher
}

// waitForLog sleeps one poll interval, returning early on a filesystem
// event or context cancellation.
func (d *Driver) waitForLog(ctx context.Context, watcher *fsnotify.Watcher) {
	timer := time.NewTimer(d.cfg.PollInterval)
	defer timer.Stop()

	if watcher == nil {
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		return
	}

	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-watcher.Events:
	case <-watcher.Errors:
	}
}
