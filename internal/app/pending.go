package app

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bft-labs/propship/internal/domain"
	"github.com/bft-labs/propship/internal/ports"
)

var _ ports.AckWaiter = (*PendingSet)(nil)

// PendingSet tracks push-mode transmissions awaiting an acknowledgment from
// the AckListener. Each entry lives at most for the ack timeout.
type PendingSet struct {
	timeout time.Duration

	mu    sync.Mutex
	waits map[string]*pendingWait
}

type pendingWait struct {
	filename string
	result   chan domain.Status
}

// NewPendingSet creates a PendingSet whose waits expire after timeout.
func NewPendingSet(timeout time.Duration) *PendingSet {
	return &PendingSet{timeout: timeout, waits: make(map[string]*pendingWait)}
}

// Expect registers a wait for filename. It fails if one is already pending,
// since acknowledgments are keyed by filename only.
func (p *PendingSet) Expect(filename string) (ports.AckTicket, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.waits[filename]; ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyPending, filename)
	}
	w := &pendingWait{filename: filename, result: make(chan domain.Status, 1)}
	p.waits[filename] = w
	return &pendingTicket{set: p, wait: w}, nil
}

// Resolve hands ack to the matching pending wait and reports whether there
// was one.
func (p *PendingSet) Resolve(ack domain.Ack) bool {
	p.mu.Lock()
	w, ok := p.waits[ack.Filename]
	if ok {
		delete(p.waits, ack.Filename)
	}
	p.mu.Unlock()

	if ok {
		w.result <- ack.Status
	}
	return ok
}

// Len returns the number of pending waits.
func (p *PendingSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waits)
}

func (p *PendingSet) release(w *pendingWait) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.waits[w.filename]; ok && cur == w {
		delete(p.waits, w.filename)
	}
}

type pendingTicket struct {
	set  *PendingSet
	wait *pendingWait
}

// Wait ignores conn: the acknowledgment arrives on the listener.
func (t *pendingTicket) Wait(ctx context.Context, _ net.Conn) (domain.Status, error) {
	timer := time.NewTimer(t.set.timeout)
	defer timer.Stop()

	select {
	case status := <-t.wait.result:
		return status, nil
	case <-timer.C:
		t.set.release(t.wait)
		// Resolve may have raced the timer.
		select {
		case status := <-t.wait.result:
			return status, nil
		default:
		}
		return domain.StatusFailure, fmt.Errorf("%w after %v", domain.ErrAckTimeout, t.set.timeout)
	case <-ctx.Done():
		t.set.release(t.wait)
		return domain.StatusFailure, ctx.Err()
	}
}

func (t *pendingTicket) Release() {
	t.set.release(t.wait)
}
