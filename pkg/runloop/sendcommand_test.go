package runloop

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendCommandHappyPath(t *testing.T) {
	s := newTestSession(t)
	pipe := &enginePipe{onAccept: func(call int, line string) {
		appendFile(s.LogPath(),
			frameText(`{"last_index":1}`)+frameText(`{"index":1,"status":"success","value":"tapped"}`))
	}}
	d := testDriver(pipe)

	payload, err := d.SendCommand(context.Background(), s, "tap()", SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, "success", payload["status"])
	assert.Equal(t, "tapped", payload["value"])
	assert.Equal(t, 1, pipe.calls)
	assert.Equal(t, 2, s.CommandIndex())
}

func TestSendCommandSequentialIndexes(t *testing.T) {
	s := newTestSession(t)
	pipe := &enginePipe{onAccept: func(call int, line string) {
		appendFile(s.LogPath(),
			frameText(fmt.Sprintf(`{"last_index":%d}`, call))+
				frameText(fmt.Sprintf(`{"index":%d,"status":"success"}`, call)))
	}}
	d := testDriver(pipe)

	for want := 1; want <= 3; want++ {
		payload, err := d.SendCommand(context.Background(), s, "tap()", SendOptions{})
		require.NoError(t, err)
		assert.Equal(t, float64(want), payload["index"])
	}
	assert.Equal(t, 4, s.CommandIndex())
	assert.Equal(t, []string{"1:tap()", "2:tap()", "3:tap()"}, pipe.lines)
}

func TestSendCommandRecoversInterruptedWrite(t *testing.T) {
	s := newTestSession(t)

	// The engine executed the command even though every write reported a
	// failure, so the response is already in the log.
	calls := 0
	pipe := pipeFunc(func(ctx context.Context, path, line string, timeout time.Duration) error {
		calls++
		if calls == 1 {
			appendFile(s.LogPath(), frameText(`{"index":1,"status":"success","value":"recovered"}`))
		}
		return fmt.Errorf("broken pipe")
	})
	d := testDriver(pipe)

	payload, err := d.SendCommand(context.Background(), s, "tap()", SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", payload["value"])
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, s.CommandIndex())
}

func TestSendCommandAmbiguousAttemptsSurfaceLastError(t *testing.T) {
	s := newTestSession(t)
	calls := 0
	pipe := pipeFunc(func(ctx context.Context, path, line string, timeout time.Duration) error {
		calls++
		return fmt.Errorf("pipe failure %d", calls)
	})
	d := New(Config{
		PollInterval:    10 * time.Millisecond,
		AckTimeout:      40 * time.Millisecond,
		RecoveryTimeout: 40 * time.Millisecond,
		Pipe:            pipe,
	})

	_, err := d.SendCommand(context.Background(), s, "tap()", SendOptions{})

	// Default budget: one initial attempt plus three retries, two pipe
	// writes each.
	assert.Equal(t, 8, calls)

	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Contains(t, err.Error(), "pipe failure 8")
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 1, s.CommandIndex())
}

func TestSendCommandHonorsMaxRetriesOption(t *testing.T) {
	s := newTestSession(t)
	calls := 0
	pipe := pipeFunc(func(ctx context.Context, path, line string, timeout time.Duration) error {
		calls++
		return fmt.Errorf("pipe failure %d", calls)
	})
	d := New(Config{
		PollInterval:    10 * time.Millisecond,
		AckTimeout:      40 * time.Millisecond,
		RecoveryTimeout: 40 * time.Millisecond,
		Pipe:            pipe,
	})

	_, err := d.SendCommand(context.Background(), s, "tap()", SendOptions{MaxRetries: 1})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestSendCommandUnresponsiveEngineIsFatal(t *testing.T) {
	s := newTestSession(t)

	// The engine acks the command and then goes silent.
	calls := 0
	pipe := pipeFunc(func(ctx context.Context, path, line string, timeout time.Duration) error {
		calls++
		appendFile(s.LogPath(), frameText(`{"last_index":1}`))
		return nil
	})
	d := New(Config{
		PollInterval: 10 * time.Millisecond,
		AckTimeout:   250 * time.Millisecond,
		SendTimeout:  60 * time.Millisecond,
		Pipe:         pipe,
	})

	_, err := d.SendCommand(context.Background(), s, "tap()", SendOptions{})

	require.Error(t, err)
	assert.True(t, IsFatal(err))
	var engineErr *EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Contains(t, engineErr.Reason, "never responded")
	var timeoutErr *TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)

	// An accepted command is never reissued.
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, s.CommandIndex())
}

func TestSendCommandFatalMarkerShortCircuits(t *testing.T) {
	s := newTestSession(t)
	pipe := &enginePipe{onAccept: func(call int, line string) {
		appendFile(s.LogPath(),
			"AXError: Could not auto-register for pid status change (kAXErrorServerNotFound)\n")
	}}
	d := testDriver(pipe)

	_, err := d.SendCommand(context.Background(), s, "tap()", SendOptions{})

	assert.True(t, IsFatal(err))
	assert.Equal(t, 1, pipe.calls)
}

func TestSendCommandStaleFrameBeforeMatch(t *testing.T) {
	s := newTestSession(t)
	pipe := &enginePipe{onAccept: func(call int, line string) {
		// A leftover frame from an earlier command precedes this one's
		// ack and response.
		appendFile(s.LogPath(),
			frameText(`{"index":0,"status":"success"}`)+
				frameText(`{"last_index":1}`)+
				frameText(`{"index":1,"status":"success"}`))
	}}
	d := testDriver(pipe)

	payload, err := d.SendCommand(context.Background(), s, "tap()", SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, float64(1), payload["index"])
}
