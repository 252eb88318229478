// Package logging provides session-based logging for esbus nodes: clean
// console output alongside a full-detail session file, in the same
// quiet-console/file-backed style as the teacher's atomic/logging package.
// It exists to serve spec.md §9's note that "any logging macros observed
// should be treated as a pluggable observer, not part of the contract" —
// public/bus.Controller never imports this package directly; cmd/ binaries
// wire a *SessionLogger in as the HandleErr side-channel.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SessionLogger writes to both a session file and (unless quiet) the
// console. Debug-level detail always goes to the file only.
type SessionLogger struct {
	sessionFile *os.File
	mu          sync.Mutex
	sessionPath string
	quietMode   bool
}

// New creates a session logger writing into logDir. quietMode suppresses
// Info-level console output (errors are always printed; frame traces and
// handler errors go to the session file only).
func New(logDir string, quietMode bool) (*SessionLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("logging: create log dir: %w", err)
	}

	sessionID := time.Now().Format("20060102-150405")
	sessionPath := filepath.Join(logDir, fmt.Sprintf("session-%s.log", sessionID))

	file, err := os.OpenFile(sessionPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("logging: create session file: %w", err)
	}

	logger := &SessionLogger{
		sessionFile: file,
		sessionPath: sessionPath,
		quietMode:   quietMode,
	}

	logger.writeToFile("=== esbus session started ===\n")
	logger.writeToFile("Session ID: %s\n", sessionID)
	logger.writeToFile("Time: %s\n", time.Now().Format(time.RFC3339))
	logger.writeToFile("===============================\n\n")

	log.SetOutput(file)
	log.SetFlags(log.Ldate | log.Ltime)

	return logger, nil
}

// Close closes the session file.
func (s *SessionLogger) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionFile == nil {
		return nil
	}
	s.writeToFile("\n=== esbus session ended ===\n")
	s.writeToFile("Time: %s\n", time.Now().Format(time.RFC3339))
	return s.sessionFile.Close()
}

// SessionPath returns the path of the current session log file.
func (s *SessionLogger) SessionPath() string {
	return s.sessionPath
}

// Debug writes a detail message to the session file only.
func (s *SessionLogger) Debug(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeToFile("[%s] DEBUG: %s\n", timestamp(), fmt.Sprintf(format, args...))
}

// Info writes an informational message to the session file, and to the
// console unless quiet mode is on.
func (s *SessionLogger) Info(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	message := fmt.Sprintf(format, args...)
	s.writeToFile("[%s] INFO: %s\n", timestamp(), message)
	if !s.quietMode {
		fmt.Println(message)
	}
}

// Error writes an error message to both the session file and stderr.
func (s *SessionLogger) Error(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	message := fmt.Sprintf(format, args...)
	s.writeToFile("[%s] ERROR: %s\n", timestamp(), message)
	fmt.Fprintf(os.Stderr, "error: %s\n", message)
}

// LogFrame records one routed frame's src/dst/bus to the session file,
// serving as the observer spec.md §9 says should sit outside the core's
// contract: the Controller never calls this directly, but a Handler or a
// cmd/ wrapper around Senders can.
func (s *SessionLogger) LogFrame(bus, src, dst string, bodyLen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeToFile("[%s] FRAME bus=%s src=%s dst=%s bytes=%d\n", timestamp(), bus, src, dst, bodyLen)
}

// LogHandlerErr records an error surfaced to Handler.HandleErr.
func (s *SessionLogger) LogHandlerErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeToFile("[%s] HANDLE_ERR: %s\n", timestamp(), err)
}

func (s *SessionLogger) writeToFile(format string, args ...any) {
	if s.sessionFile == nil {
		return
	}
	fmt.Fprintf(s.sessionFile, format, args...)
	s.sessionFile.Sync()
}

// SetQuietMode toggles console output of Info-level messages.
func (s *SessionLogger) SetQuietMode(quiet bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quietMode = quiet
}

func timestamp() string {
	return time.Now().Format("15:04:05")
}

var (
	globalLogger *SessionLogger
	globalMu     sync.Mutex
)

// SetGlobalLogger installs logger as the process-wide default, for code
// that has no SessionLogger of its own threaded through.
func SetGlobalLogger(logger *SessionLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GlobalError writes to the global logger if one is installed, otherwise
// falls back to the standard log package.
func GlobalError(format string, args ...any) {
	globalMu.Lock()
	logger := globalLogger
	globalMu.Unlock()
	if logger != nil {
		logger.Error(format, args...)
		return
	}
	log.Printf("[ERROR] "+format, args...)
}
