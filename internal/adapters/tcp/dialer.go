// Package tcp implements the propship transport ports over TCP.
package tcp

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/bft-labs/propship/internal/ports"
)

var _ ports.Dialer = (*Dialer)(nil)

// Dialer implements ports.Dialer for a fixed server address.
type Dialer struct {
	addr    string
	timeout time.Duration
}

// NewDialer creates a Dialer for addr (host:port). A zero timeout means the
// operating system default.
func NewDialer(addr string, timeout time.Duration) *Dialer {
	return &Dialer{addr: addr, timeout: timeout}
}

// Addr returns the server address.
func (d *Dialer) Addr() string { return d.addr }

// Dial opens one transmission connection.
func (d *Dialer) Dial(ctx context.Context) (net.Conn, error) {
	nd := net.Dialer{Timeout: d.timeout}
	conn, err := nd.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.addr, err)
	}
	return conn, nil
}
