package runloop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gredman/run-loop/internal/observability"
)

// SendOptions configures one SendCommand call. Zero fields fall back to
// the driver's Config.
type SendOptions struct {
	Timeout         time.Duration // response wait once the engine accepts the command
	RecoveryTimeout time.Duration // probe window after an ambiguous write
	MaxRetries      int           // additional attempts after the first, when positive
}

// SendCommand runs the full write/await cycle for one command, reissuing
// ambiguous writes under the same index until the retry budget runs out.
//
// Failure handling splits on where an attempt died:
//   - the write was never acknowledged: probe the log once more in case
//     the engine executed the command without the ack surviving, then
//     retry under the same index;
//   - the write was acknowledged but the response never came: reissuing
//     would execute the command twice, so the engine is declared dead.
//
// After the budget is spent the last concrete error is returned, not a
// summary of the attempts.
func (d *Driver) SendCommand(ctx context.Context, s *Session, text string, opts SendOptions) (map[string]interface{}, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = d.cfg.SendTimeout
	}
	recovery := opts.RecoveryTimeout
	if recovery <= 0 {
		recovery = d.cfg.RecoveryTimeout
	}
	retries := d.cfg.MaxRetries
	if opts.MaxRetries > 0 {
		retries = opts.MaxRetries
	}

	started := time.Now()

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			d.log.Debug().Int("attempt", attempt+1).Str("command", text).Msg("Retrying command")
			observability.RecordSendRetry()
		}

		index, err := d.WriteCommand(ctx, s, text)
		if err != nil {
			if IsFatal(err) {
				observability.RecordCommandSend(time.Since(started), false)
				return nil, err
			}
			var writeErr *WriteError
			if !errors.As(err, &writeErr) {
				observability.RecordCommandSend(time.Since(started), false)
				return nil, err
			}

			// The engine may have picked the command up without the ack
			// frame surviving. Probe for a real response at the same
			// index before burning a retry.
			payload, rerr := d.ReadResponse(ctx, s, writeErr.Index, ReadOptions{Timeout: recovery})
			if rerr == nil {
				s.commandIndex = writeErr.Index + 1
				d.log.Debug().Int("index", writeErr.Index).Msg("Recovered response after ambiguous write")
				observability.RecordCommandSend(time.Since(started), true)
				return payload, nil
			}
			if IsFatal(rerr) {
				observability.RecordCommandSend(time.Since(started), false)
				return nil, rerr
			}
			lastErr = writeErr
			continue
		}

		payload, rerr := d.ReadResponse(ctx, s, index, ReadOptions{Timeout: timeout})
		if rerr == nil {
			observability.RecordCommandSend(time.Since(started), true)
			return payload, nil
		}
		if IsFatal(rerr) {
			observability.RecordCommandSend(time.Since(started), false)
			return nil, rerr
		}

		observability.RecordCommandSend(time.Since(started), false)
		var timeoutErr *TimeoutError
		if errors.As(rerr, &timeoutErr) {
			// Accepted but unanswered. The command must not be reissued.
			observability.RecordEngineFatal("unresponsive")
			return nil, &EngineError{
				Reason: fmt.Sprintf("engine accepted command %d but never responded", index),
				Cause:  rerr,
			}
		}
		return nil, rerr
	}

	observability.RecordCommandSend(time.Since(started), false)
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("command %d: %w", s.commandIndex, ErrRetriesExhausted)
}
