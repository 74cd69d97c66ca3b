package runloop

import (
	"context"

	"github.com/gredman/run-loop/internal/observability"
)

// ackField is the frame field the engine echoes the index of the last
// command it picked up into.
const ackField = "last_index"

// WriteCommand puts one command on the session's pipe and waits for the
// engine to acknowledge it. The session's command index is committed only
// once the ack frame is seen; an unacknowledged write leaves it untouched
// so the command can be reissued under the same index.
func (d *Driver) WriteCommand(ctx context.Context, s *Session, text string) (int, error) {
	index := s.commandIndex
	line := EncodeCommand(index, text)

	var lastErr error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		if err := d.pipe.WriteLine(ctx, s.pipePath, line, d.cfg.PipeTimeout); err != nil {
			d.log.Debug().Err(err).Int("index", index).Int("attempt", attempt).Msg("Command pipe write failed")
			observability.RecordWriteAttempt(false)
			lastErr = err
			continue
		}

		_, err := d.ReadResponse(ctx, s, index, ReadOptions{Timeout: d.cfg.AckTimeout, MatchField: ackField})
		if err == nil {
			s.commandIndex = index + 1
			observability.RecordWriteAttempt(true)
			d.log.Debug().Int("index", index).Int("attempt", attempt).Msg("Command acknowledged")
			return index, nil
		}
		if IsFatal(err) {
			return 0, err
		}
		d.log.Debug().Err(err).Int("index", index).Int("attempt", attempt).Msg("Command not acknowledged")
		observability.RecordWriteAttempt(false)
		lastErr = err
	}

	return 0, &WriteError{Index: index, Attempts: writeAttempts, Cause: lastErr}
}
