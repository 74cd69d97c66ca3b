package runloop

// Session tracks the driver's view of one live engine: where commands go,
// where responses land, the next command index, and how much of the log
// has been consumed.
//
// A Session is not safe for concurrent use; run one operation at a time
// against it. Distinct Sessions are fully independent.
type Session struct {
	pid          int
	pipePath     string
	logPath      string
	commandIndex int
	offset       int64
}

// NewSession returns the Session for a freshly launched engine: the first
// command gets index 1 and the whole log is unread.
func NewSession(pid int, pipePath, logPath string) *Session {
	return &Session{
		pid:          pid,
		pipePath:     pipePath,
		logPath:      logPath,
		commandIndex: 1,
	}
}

// ResumeSession reattaches to an engine launched by another process,
// restoring the command index and consumed offset recorded for it.
func ResumeSession(pid int, pipePath, logPath string, commandIndex int, offset int64) *Session {
	if commandIndex < 1 {
		commandIndex = 1
	}
	if offset < 0 {
		offset = 0
	}
	return &Session{
		pid:          pid,
		pipePath:     pipePath,
		logPath:      logPath,
		commandIndex: commandIndex,
		offset:       offset,
	}
}

// PID returns the engine process id.
func (s *Session) PID() int { return s.pid }

// PipePath returns the command pipe path.
func (s *Session) PipePath() string { return s.pipePath }

// LogPath returns the engine log path.
func (s *Session) LogPath() string { return s.logPath }

// CommandIndex returns the index the next command will be assigned.
func (s *Session) CommandIndex() int { return s.commandIndex }

// Offset returns the number of log bytes consumed so far.
func (s *Session) Offset() int64 { return s.offset }
