package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// New creates a logger writing to w at the named level (DEBUG, INFO, WARN,
// ERROR). Unknown levels fall back to INFO.
func New(level string, w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           ParseLevel(level),
	})
}

// ParseLevel maps a config level name to a log level.
func ParseLevel(level string) log.Level {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// CronLogger adapts a logger to the cron.Logger interface.
type CronLogger struct {
	L *log.Logger
}

// Info logs routine scheduler activity at debug level.
func (c CronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.L.Debug(msg, keysAndValues...)
}

// Error logs scheduler failures.
func (c CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.L.Error(msg, append(keysAndValues, "err", err)...)
}
