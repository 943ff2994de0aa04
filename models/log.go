package models

import (
	"fmt"
	"strings"
	"time"
)

// LogLevel tags ledger entries and gates console output.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ParseLogLevel accepts info, warn/warning or error in any case.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	}
	return "", fmt.Errorf("unknown log level %q", s)
}

// Severity orders levels, info lowest.
func (l LogLevel) Severity() int32 {
	switch l {
	case LogLevelWarn:
		return 1
	case LogLevelError:
		return 2
	default:
		return 0
	}
}

// CrawlLog is one ledger line. RunID is nil for events outside a run.
type CrawlLog struct {
	ID        int64     `json:"id" db:"id"`
	RunID     *int64    `json:"run_id,omitempty" db:"run_id"`
	SiteID    string    `json:"site_id" db:"site_id"`
	Level     LogLevel  `json:"level" db:"level"`
	Message   string    `json:"message" db:"message"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
