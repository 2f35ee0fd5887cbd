package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LogFilePath names the log of a session started at sessionStart.
func LogFilePath(logsDir, appName string, sessionStart time.Time) string {
	return filepath.Join(logsDir, fmt.Sprintf("%s.%s.log", appName, sessionStart.Format("20060102_150405")))
}

// OpenLogFile creates logsDir if needed and opens the session log for
// appending. A log left behind by a session with the same start second is
// kept as <name>.old.
func OpenLogFile(logsDir, appName string, sessionStart time.Time) (*os.File, string, error) {
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create logs directory: %w", err)
	}
	path := LogFilePath(logsDir, appName, sessionStart)
	if _, err := os.Stat(path); err == nil {
		_ = os.Rename(path, path+".old")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open log file: %w", err)
	}
	return f, path, nil
}
