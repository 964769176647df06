package ports

import (
	"context"
	"net"

	"github.com/bft-labs/propship/internal/domain"
)

// Dialer opens the connection for a single transmission.
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)
}

// AckWaiter resolves the acknowledgment of one transmission on the client.
// Expect is called before the envelope is written, so acknowledgments that
// arrive out of band cannot race the registration.
type AckWaiter interface {
	Expect(filename string) (AckTicket, error)
}

// AckTicket is a single expected acknowledgment.
type AckTicket interface {
	// Wait blocks until the acknowledgment for the ticket's filename is known.
	// conn is the transmission connection; out-of-band waiters may ignore it.
	// A timeout or read failure is reported as an error.
	Wait(ctx context.Context, conn net.Conn) (domain.Status, error)

	// Release drops the expectation. It is safe to call more than once.
	Release()
}

// AckResponder delivers exactly one acknowledgment for a transmission
// received on conn.
type AckResponder interface {
	Respond(ctx context.Context, conn net.Conn, ack domain.Ack) error
}
