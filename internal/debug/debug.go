// Package debug provides lightweight, phase-tagged logging for the
// indexing engine. It is not a structured logger: output is gated
// behind a build-time flag or the DEBUG environment variable, and is
// suppressed entirely when the process runs as a daemon subprocess
// (DaemonMode) so stdout stays free for a wire protocol.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EnableDebug is a build flag, overridable at link time:
// go build -ldflags "-X github.com/fenwick-labs/codegraph/internal/debug.EnableDebug=true"
var EnableDebug = "false"

// DaemonMode suppresses all debug output to stdio when the process is
// driven as a subprocess rather than run interactively.
var DaemonMode = false

var (
	debugOutput io.Writer
	debugFile   *os.File
	debugMutex  sync.Mutex
)

// SetDaemonMode toggles DaemonMode.
func SetDaemonMode(enabled bool) {
	DaemonMode = enabled
}

// SetDebugOutput sets a custom writer for debug output. Pass nil to
// disable debug output entirely.
func SetDebugOutput(w io.Writer) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugOutput = w
}

// InitDebugLogFile initializes debug logging to a timestamped file and
// returns its path. Call CloseDebugLog when done.
func InitDebugLogFile() (string, error) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	logDir := filepath.Join(os.TempDir(), "codegraph-debug-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create debug log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02T150405")
	logPath := filepath.Join(logDir, fmt.Sprintf("debug-%s.log", timestamp))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create debug log file: %w", err)
	}

	debugFile = file
	debugOutput = file
	return logPath, nil
}

// CloseDebugLog closes the debug log file if one is open.
func CloseDebugLog() error {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debugFile != nil {
		err := debugFile.Close()
		debugFile = nil
		debugOutput = nil
		return err
	}
	return nil
}

// IsDebugEnabled reports whether debug output should be produced.
func IsDebugEnabled() bool {
	if DaemonMode {
		return false
	}
	if EnableDebug == "true" {
		return true
	}
	if v := os.Getenv("DEBUG"); v == "1" || v == "true" {
		return true
	}
	return false
}

func getDebugWriter() io.Writer {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	return debugOutput
}

// Log writes a component-tagged debug line when enabled.
func Log(component, format string, args ...interface{}) {
	if !IsDebugEnabled() {
		return
	}
	w := getDebugWriter()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG:%s] "+format, append([]interface{}{component}, args...)...)
}

// LogIndexing logs indexer state-machine transitions (§4.6).
func LogIndexing(format string, args ...interface{}) { Log("INDEX", format, args...) }

// LogResolver logs edge-resolver cascade decisions (§4.5).
func LogResolver(format string, args ...interface{}) { Log("RESOLVE", format, args...) }

// LogWatcher logs watcher debounce/coalescing decisions (§4.8).
func LogWatcher(format string, args ...interface{}) { Log("WATCH", format, args...) }

// LogWriter logs async write pipeline batch activity (§4.7).
func LogWriter(format string, args ...interface{}) { Log("WRITE", format, args...) }

// Fatal records a fatal-class message (§7) and returns it as an error;
// callers decide whether to abort.
func Fatal(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if !DaemonMode {
		if w := getDebugWriter(); w != nil {
			fmt.Fprintf(w, "[FATAL] %s", msg)
		}
	}
	return fmt.Errorf("fatal error: %s", msg)
}

// CatastrophicError records an unrecoverable condition. In DaemonMode
// this is suppressed since the caller surfaces it through its own
// protocol instead.
func CatastrophicError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if !DaemonMode {
		if w := getDebugWriter(); w != nil {
			fmt.Fprintf(w, "[CATASTROPHIC] %s", msg)
		}
	}
}
