package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bft-labs/propship/internal/domain"
	"github.com/bft-labs/propship/internal/ports"
	"github.com/bft-labs/propship/internal/protocol"
)

// DefaultAckTimeout is the acknowledgment timeout used when none is configured.
const DefaultAckTimeout = 10 * time.Second

var (
	_ ports.AckWaiter = (*InlineWaiter)(nil)
	_ ports.AckWaiter = (*TimedWaiter)(nil)
)

// InlineWaiter reads a single acknowledgment line from the transmission
// connection and blocks for as long as the connection does.
type InlineWaiter struct{}

// NewInlineWaiter creates an InlineWaiter.
func NewInlineWaiter() *InlineWaiter { return &InlineWaiter{} }

// Expect implements ports.AckWaiter.
func (*InlineWaiter) Expect(filename string) (ports.AckTicket, error) {
	return &inlineTicket{filename: filename}, nil
}

type inlineTicket struct {
	filename string
}

func (t *inlineTicket) Wait(ctx context.Context, conn net.Conn) (domain.Status, error) {
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		if ctx.Err() != nil {
			return domain.StatusFailure, ctx.Err()
		}
		return domain.StatusFailure, fmt.Errorf("read ack: %w", err)
	}

	ack, err := protocol.ParseAck(line)
	if err != nil {
		return domain.StatusFailure, err
	}
	if ack.Filename != t.filename {
		return domain.StatusFailure, fmt.Errorf("%w: got ack for %q, want %q", domain.ErrMalformedAck, ack.Filename, t.filename)
	}
	return ack.Status, nil
}

func (*inlineTicket) Release() {}

// TimedWaiter polls the transmission connection for up to a fixed timeout.
// Lines acknowledging other filenames are handled out of band: a Success for
// another name clears that name's stale quarantine copy.
type TimedWaiter struct {
	timeout  time.Duration
	disposer ports.Disposer
	logger   ports.Logger
}

// NewTimedWaiter creates a TimedWaiter. A non-positive timeout means
// DefaultAckTimeout.
func NewTimedWaiter(timeout time.Duration, disposer ports.Disposer, logger ports.Logger) *TimedWaiter {
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}
	return &TimedWaiter{timeout: timeout, disposer: disposer, logger: logger}
}

// Expect implements ports.AckWaiter.
func (w *TimedWaiter) Expect(filename string) (ports.AckTicket, error) {
	return &timedTicket{w: w, filename: filename}, nil
}

type timedTicket struct {
	w        *TimedWaiter
	filename string
}

type waitResult struct {
	status domain.Status
	err    error
}

// Wait runs the read loop on a helper goroutine and joins it for at most the
// timeout.
func (t *timedTicket) Wait(ctx context.Context, conn net.Conn) (domain.Status, error) {
	deadline := time.Now().Add(t.w.timeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return domain.StatusFailure, fmt.Errorf("set ack deadline: %w", err)
	}

	resultCh := make(chan waitResult, 1)
	go func() {
		resultCh <- t.poll(conn)
	}()

	timer := time.NewTimer(t.w.timeout)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		return res.status, res.err
	case <-timer.C:
	case <-ctx.Done():
	}

	// Unblock the helper and join it so it never outlives the wait.
	_ = conn.SetReadDeadline(time.Now())
	res := <-resultCh
	if err := ctx.Err(); err != nil {
		return domain.StatusFailure, err
	}
	if res.err == nil {
		return res.status, nil
	}
	return domain.StatusFailure, fmt.Errorf("%w after %v", domain.ErrAckTimeout, t.w.timeout)
}

func (t *timedTicket) poll(conn net.Conn) waitResult {
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			if status, ok := t.handleLine(line); ok {
				return waitResult{status: status}
			}
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return waitResult{status: domain.StatusFailure, err: fmt.Errorf("%w after %v", domain.ErrAckTimeout, t.w.timeout)}
			}
			return waitResult{status: domain.StatusFailure, err: fmt.Errorf("read ack: %w", err)}
		}
	}
}

// handleLine reports the status when line resolves this ticket.
func (t *timedTicket) handleLine(line string) (domain.Status, bool) {
	ack, err := protocol.ParseAck(line)
	if err != nil {
		t.w.logger.Warn("ignoring malformed ack line", ports.String("line", line), ports.Err(err))
		return "", false
	}
	if ack.Filename == t.filename {
		return ack.Status, true
	}

	t.w.logger.Debug("out-of-band ack",
		ports.String("file", ack.Filename),
		ports.String("status", string(ack.Status)),
		ports.String("waiting_for", t.filename),
	)
	if ack.Status == domain.StatusSuccess {
		if removed, err := t.w.disposer.ClearQuarantined(ack.Filename); err != nil {
			t.w.logger.Warn("failed to clear quarantined copy", ports.String("file", ack.Filename), ports.Err(err))
		} else if removed {
			t.w.logger.Info("cleared stale quarantined copy", ports.String("file", ack.Filename))
		}
	}
	return "", false
}

func (*timedTicket) Release() {}
