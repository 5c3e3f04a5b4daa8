// Package diag collects diagnostics produced while loading, checking and
// lowering kernel IR.
package diag

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// Reporter prints diagnostics and counts errors. Output is either
// human-readable text or one JSON object per line.
type Reporter struct {
	log    zerolog.Logger
	errors int
}

// NewReporter builds a reporter writing to w. format is "text" or "json";
// anything else is treated as text.
func NewReporter(w io.Writer, format string) *Reporter {
	if w == nil {
		w = io.Discard
	}
	var out io.Writer = w
	if format != "json" {
		out = zerolog.ConsoleWriter{
			Out:          w,
			NoColor:      true,
			PartsExclude: []string{zerolog.TimestampFieldName},
		}
	}
	return &Reporter{
		log: zerolog.New(out).Level(zerolog.InfoLevel),
	}
}

// Discard returns a reporter that drops everything but still counts errors.
func Discard() *Reporter {
	return NewReporter(io.Discard, "json")
}

// SetLevel changes the minimum level printed. Accepts zerolog level names
// such as "debug", "info", "warn" and "error".
func (r *Reporter) SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("diag: %w", err)
	}
	r.log = r.log.Level(lvl)
	return nil
}

// Logger exposes the underlying logger for structured fields.
func (r *Reporter) Logger() *zerolog.Logger {
	return &r.log
}

// Errorf reports an error-level diagnostic.
func (r *Reporter) Errorf(format string, args ...any) {
	r.errors++
	r.log.Error().Msgf(format, args...)
}

// Warnf reports a warning. Warnings do not affect HasErrors.
func (r *Reporter) Warnf(format string, args ...any) {
	r.log.Warn().Msgf(format, args...)
}

// Debugf reports a debug message.
func (r *Reporter) Debugf(format string, args ...any) {
	r.log.Debug().Msgf(format, args...)
}

// HasErrors reports whether any error was recorded.
func (r *Reporter) HasErrors() bool {
	return r.ErrorCount() > 0
}

// ErrorCount returns the number of errors recorded so far.
func (r *Reporter) ErrorCount() int {
	if r == nil {
		return 0
	}
	return r.errors
}
