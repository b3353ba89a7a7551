package log

import (
	"time"

	"go.uber.org/zap"
)

// HTTPLogEntry represents an HTTP request/response log entry
type HTTPLogEntry struct {
	Method     string
	Path       string
	Status     int
	Duration   time.Duration
	Size       int
	RemoteAddr string
	UserAgent  string
	RunID      string
	Err        error
}

// LogHTTPRequest writes one access log line. Server errors are logged at
// error level, client errors at warn and everything else at info.
func LogHTTPRequest(logger *zap.SugaredLogger, e HTTPLogEntry) {
	if logger == nil {
		logger = GetSugaredLogger()
	}
	fields := []interface{}{
		"method", e.Method,
		"path", e.Path,
		"status", e.Status,
		"duration_ms", float64(e.Duration.Microseconds()) / 1000,
		"size", e.Size,
		"remote_addr", e.RemoteAddr,
		"user_agent", e.UserAgent,
	}
	if e.RunID != "" {
		fields = append(fields, "run_id", e.RunID)
	}
	if e.Err != nil {
		fields = append(fields, "error", e.Err.Error())
	}

	switch {
	case e.Status >= 500:
		logger.Errorw("http request", fields...)
	case e.Status >= 400:
		logger.Warnw("http request", fields...)
	default:
		logger.Infow("http request", fields...)
	}
}
