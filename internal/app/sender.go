package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"

	"github.com/bft-labs/propship/internal/domain"
	"github.com/bft-labs/propship/internal/ports"
	"github.com/bft-labs/propship/internal/protocol"
)

// Outcome describes what happened to a source file after a send attempt.
type Outcome int

const (
	// OutcomeSkipped means the file was not read or not transmitted and
	// remains in the monitored directory.
	OutcomeSkipped Outcome = iota
	// OutcomeDelivered means the server acknowledged success and the
	// source file was deleted.
	OutcomeDelivered
	// OutcomeQuarantined means the transmission failed and the source file
	// was moved to the failed directory.
	OutcomeQuarantined
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDelivered:
		return "delivered"
	case OutcomeQuarantined:
		return "quarantined"
	default:
		return "unknown"
	}
}

// SenderConfig configures a Sender.
type SenderConfig struct {
	// DialAttempts is the number of connection attempts per file.
	DialAttempts int
}

// Sender transmits one file per connection and disposes of the source file
// according to the acknowledgment.
type Sender struct {
	cfg      SenderConfig
	dialer   ports.Dialer
	waiter   ports.AckWaiter
	disposer ports.Disposer
	logger   ports.Logger
}

// NewSender creates a Sender.
func NewSender(cfg SenderConfig, dialer ports.Dialer, waiter ports.AckWaiter, disposer ports.Disposer, logger ports.Logger) *Sender {
	if cfg.DialAttempts < 1 {
		cfg.DialAttempts = 1
	}
	return &Sender{
		cfg:      cfg,
		dialer:   dialer,
		waiter:   waiter,
		disposer: disposer,
		logger:   logger,
	}
}

// Send transmits entries under filename and applies the outcome to the
// source file at path. A file that could not be transmitted at all is left
// in place.
func (s *Sender) Send(ctx context.Context, path, filename string, entries domain.EntrySet) (Outcome, error) {
	env := domain.NewEnvelope(filename, entries)

	ticket, err := s.waiter.Expect(filename)
	if err != nil {
		s.logger.Warn("send skipped",
			ports.String("file", filename),
			ports.Err(err),
		)
		return OutcomeSkipped, err
	}
	defer ticket.Release()

	conn, err := s.dial(ctx)
	if err != nil {
		s.logger.Error("transport error, source left in place",
			ports.String("file", filename),
			ports.Err(err),
		)
		return OutcomeSkipped, err
	}
	defer conn.Close()

	if err := protocol.WriteEnvelope(conn, env); err != nil {
		s.logger.Error("write envelope failed",
			ports.String("file", filename),
			ports.Err(err),
		)
		return s.dispose(path, filename, domain.StatusFailure)
	}
	s.logger.Debug("envelope sent",
		ports.String("file", filename),
		ports.Int("entries", env.Len()),
	)

	status, err := ticket.Wait(ctx, conn)
	if err != nil {
		if ctx.Err() != nil {
			s.logger.Warn("send interrupted, source left in place",
				ports.String("file", filename),
			)
			return OutcomeSkipped, ctx.Err()
		}
		s.logger.Warn("acknowledgment failed",
			ports.String("file", filename),
			ports.Err(err),
		)
		status = domain.StatusFailure
	}
	return s.dispose(path, filename, status)
}

func (s *Sender) dispose(path, filename string, status domain.Status) (Outcome, error) {
	if status == domain.StatusSuccess {
		if err := s.disposer.Delete(path); err != nil {
			s.logger.Error("delete source failed",
				ports.String("path", path),
				ports.Err(err),
			)
			return OutcomeDelivered, err
		}
		s.clearQuarantined(filepath.Base(path))
		s.logger.Info("file delivered", ports.String("file", filename))
		return OutcomeDelivered, nil
	}

	dst, err := s.disposer.Quarantine(path)
	if err != nil {
		s.logger.Error("quarantine failed",
			ports.String("path", path),
			ports.Err(err),
		)
		return OutcomeQuarantined, err
	}
	s.logger.Warn("file quarantined",
		ports.String("file", filename),
		ports.String("dest", dst),
	)
	return OutcomeQuarantined, nil
}

// clearQuarantined removes a copy of name left in quarantine by an earlier
// failed attempt.
func (s *Sender) clearQuarantined(name string) {
	cleared, err := s.disposer.ClearQuarantined(name)
	if err != nil {
		s.logger.Warn("clear quarantined copy failed",
			ports.String("file", name),
			ports.Err(err),
		)
		return
	}
	if cleared {
		s.logger.Info("cleared stale quarantined copy", ports.String("file", name))
	}
}

func (s *Sender) dial(ctx context.Context) (net.Conn, error) {
	b := newBackoff(DefaultBackoffInitial, DefaultBackoffMax)
	var lastErr error
	for attempt := 1; attempt <= s.cfg.DialAttempts; attempt++ {
		conn, err := s.dialer.Dial(ctx)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if attempt == s.cfg.DialAttempts || errors.Is(err, context.Canceled) {
			break
		}
		s.logger.Debug("dial failed, retrying",
			ports.Int("attempt", attempt),
			ports.Duration("backoff", b.Current()),
			ports.Err(err),
		)
		if err := b.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("dial after %d attempt(s): %w", s.cfg.DialAttempts, lastErr)
}
