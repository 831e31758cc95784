// Package logging sets up slog for the simulator: console, file, Graylog and
// OpenTelemetry outputs behind one handler.
package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

// SessionStamp formats the session start in log, database and telemetry
// resource names so the outputs of one session can be matched up.
const SessionStamp = "20060102_150405"

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, appName string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", appName, sessionStart.Format(SessionStamp)),
	)
}
