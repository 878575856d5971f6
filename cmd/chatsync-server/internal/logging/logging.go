// Package logging adapts zerolog to the chatsync.Logger interface.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New creates the process logger. Development uses a console writer,
// everything else emits JSON lines.
func New(development bool, level string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if development {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return NewWithWriter(out, level)
}

// NewWithWriter creates a logger writing to out. An unknown level selects info.
func NewWithWriter(out io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

// Adapter implements chatsync.Logger on top of zerolog.
type Adapter struct {
	logger zerolog.Logger
}

// NewAdapter wraps logger.
func NewAdapter(logger zerolog.Logger) *Adapter {
	return &Adapter{logger: logger}
}

// Debugf logs debug-level messages.
func (a *Adapter) Debugf(format string, args ...interface{}) {
	a.logger.Debug().Msgf(format, args...)
}

// Infof logs info-level messages.
func (a *Adapter) Infof(format string, args ...interface{}) {
	a.logger.Info().Msgf(format, args...)
}

// Warnf logs warning-level messages.
func (a *Adapter) Warnf(format string, args ...interface{}) {
	a.logger.Warn().Msgf(format, args...)
}

// Errorf logs error-level messages.
func (a *Adapter) Errorf(format string, args ...interface{}) {
	a.logger.Error().Msgf(format, args...)
}

// Info logs info-level messages without formatting.
func (a *Adapter) Info(message string) {
	a.logger.Info().Msg(message)
}
