package propship

import (
	"github.com/bft-labs/propship/internal/ports"
	"github.com/bft-labs/propship/pkg/log"
)

// Logger is the interface for structured logging.
// See github.com/bft-labs/propship/pkg/log for implementations.
type Logger = log.Logger

// LogField represents a structured log field.
type LogField = log.Field

// Option configures optional behavior of a Client or Server.
type Option func(*options)

type options struct {
	logger       ports.Logger
	eventHandler EventHandler
}

func defaultOptions() options {
	return options{logger: noopLogger{}}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEventHandler sets a handler for lifecycle events.
// Events are called synchronously; implementations should return quickly.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// noopLogger discards all log messages.
type noopLogger struct{}

func (noopLogger) Debug(msg string, fields ...ports.Field) {}
func (noopLogger) Info(msg string, fields ...ports.Field)  {}
func (noopLogger) Warn(msg string, fields ...ports.Field)  {}
func (noopLogger) Error(msg string, fields ...ports.Field) {}
