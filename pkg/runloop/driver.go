package runloop

import (
	"time"

	"github.com/gredman/run-loop/internal/observability"
	"github.com/rs/zerolog"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultPollInterval    = 200 * time.Millisecond
	DefaultAckTimeout      = 10 * time.Second
	DefaultPipeTimeout     = 10 * time.Second
	DefaultSendTimeout     = 60 * time.Second
	DefaultRecoveryTimeout = 10 * time.Second
	DefaultMaxRetries      = 3
)

// writeAttempts bounds the encode/write/ack cycle inside WriteCommand.
const writeAttempts = 2

// Config holds driver tuning. Zero fields are replaced with the matching
// defaults; a zero Logger keeps the driver silent.
type Config struct {
	PollInterval    time.Duration // delay between log scans
	AckTimeout      time.Duration // how long a written command may wait for its ack frame
	PipeTimeout     time.Duration // how long to wait for the engine to open the pipe's read end
	SendTimeout     time.Duration // how long an accepted command may wait for its response
	RecoveryTimeout time.Duration // probe window after an ambiguous write
	MaxRetries      int           // additional SendCommand attempts after the first
	Logger          zerolog.Logger
	Pipe            PipeWriter // command channel; nil selects the named pipe writer
}

// DefaultConfig returns the stock driver tuning.
func DefaultConfig() Config {
	return Config{
		PollInterval:    DefaultPollInterval,
		AckTimeout:      DefaultAckTimeout,
		PipeTimeout:     DefaultPipeTimeout,
		SendTimeout:     DefaultSendTimeout,
		RecoveryTimeout: DefaultRecoveryTimeout,
		MaxRetries:      DefaultMaxRetries,
	}
}

// Driver performs ordered request/response against a Session's engine.
type Driver struct {
	cfg  Config
	log  zerolog.Logger
	pipe PipeWriter
}

// New creates a Driver, filling zero Config fields with defaults.
func New(cfg Config) *Driver {
	observability.EnsureRegistered()

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = DefaultAckTimeout
	}
	if cfg.PipeTimeout <= 0 {
		cfg.PipeTimeout = DefaultPipeTimeout
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Pipe == nil {
		cfg.Pipe = fifoWriter{}
	}

	return &Driver{
		cfg:  cfg,
		log:  cfg.Logger,
		pipe: cfg.Pipe,
	}
}
