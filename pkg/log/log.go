package log

import (
	"github.com/rs/zerolog"

	logAdapter "github.com/bft-labs/propship/internal/adapters/log"
	"github.com/bft-labs/propship/internal/ports"
)

// Logger provides structured logging capabilities.
type Logger = ports.Logger

// Field represents a key-value pair for structured logging.
type Field = ports.Field

// Options configures New.
type Options = logAdapter.Options

// Zerolog is the zerolog-backed Logger. Close it once at shutdown.
type Zerolog = logAdapter.ZerologAdapter

// Field constructors.
var (
	String   = ports.String
	Int      = ports.Int
	Int64    = ports.Int64
	Bool     = ports.Bool
	Duration = ports.Duration
	Err      = ports.Err
	Any      = ports.Any
)

// New builds a zerolog Logger. Console output is pretty-printed on a
// terminal and JSON otherwise; Options.File adds an append-only file sink.
func New(opts Options) (*Zerolog, error) {
	return logAdapter.NewZerologAdapter(opts)
}

// NewZerologLogger wraps an existing zerolog.Logger.
func NewZerologLogger(logger zerolog.Logger) *Zerolog {
	return logAdapter.NewZerologAdapterWithLogger(logger)
}

// NewNoopLogger returns a Logger that discards everything.
func NewNoopLogger() Logger {
	return logAdapter.NewNoopLogger()
}
