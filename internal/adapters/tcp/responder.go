package tcp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/bft-labs/propship/internal/domain"
	"github.com/bft-labs/propship/internal/ports"
	"github.com/bft-labs/propship/internal/protocol"
)

var (
	_ ports.AckResponder = (*InlineResponder)(nil)
	_ ports.AckResponder = (*PushResponder)(nil)
)

// InlineResponder writes the acknowledgment back on the transmission
// connection (pull mode).
type InlineResponder struct {
	writeTimeout time.Duration
}

// NewInlineResponder creates an InlineResponder. A zero timeout leaves the
// connection's deadline untouched.
func NewInlineResponder(writeTimeout time.Duration) *InlineResponder {
	return &InlineResponder{writeTimeout: writeTimeout}
}

// Respond implements ports.AckResponder.
func (r *InlineResponder) Respond(_ context.Context, conn net.Conn, ack domain.Ack) error {
	if r.writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(r.writeTimeout)); err != nil {
			return fmt.Errorf("set ack deadline: %w", err)
		}
	}
	return protocol.WriteAck(conn, ack)
}

// PushResponder opens a new connection to the client's ack endpoint and
// writes the acknowledgment there (push mode).
type PushResponder struct {
	host    string
	port    int
	timeout time.Duration
}

// NewPushResponder creates a PushResponder for ack port port. When host is
// empty the ack goes to the host the transmission came from.
func NewPushResponder(host string, port int, timeout time.Duration) *PushResponder {
	return &PushResponder{host: host, port: port, timeout: timeout}
}

// Target returns the ack endpoint for a transmission received on conn.
func (r *PushResponder) Target(conn net.Conn) (string, error) {
	host := r.host
	if host == "" {
		h, _, err := net.SplitHostPort(conn.RemoteAddr().String())
		if err != nil {
			return "", fmt.Errorf("resolve client host: %w", err)
		}
		host = h
	}
	return net.JoinHostPort(host, strconv.Itoa(r.port)), nil
}

// Respond implements ports.AckResponder.
func (r *PushResponder) Respond(ctx context.Context, conn net.Conn, ack domain.Ack) error {
	addr, err := r.Target(conn)
	if err != nil {
		return err
	}

	nd := net.Dialer{Timeout: r.timeout}
	ackConn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial ack endpoint %s: %w", addr, err)
	}
	defer ackConn.Close()

	if r.timeout > 0 {
		if err := ackConn.SetWriteDeadline(time.Now().Add(r.timeout)); err != nil {
			return fmt.Errorf("set ack deadline: %w", err)
		}
	}
	return protocol.WriteAck(ackConn, ack)
}
