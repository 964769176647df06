package protocol

import (
	"fmt"
	"io"
	"strings"

	"github.com/bft-labs/propship/internal/domain"
)

// FormatAck renders ack as a single wire line, terminator included.
func FormatAck(ack domain.Ack) string {
	return ack.String() + "\n"
}

// WriteAck writes one acknowledgment line to w.
func WriteAck(w io.Writer, ack domain.Ack) error {
	if _, err := io.WriteString(w, FormatAck(ack)); err != nil {
		return fmt.Errorf("write ack: %w", err)
	}
	return nil
}

// ParseAck parses a filename=status line. The line terminator is optional.
// Lines that do not split into exactly two '='-separated fields, or whose
// status is unknown, yield domain.ErrMalformedAck.
func ParseAck(line string) (domain.Ack, error) {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.Split(line, "=")
	if len(parts) != 2 {
		return domain.Ack{}, fmt.Errorf("%w: %q", domain.ErrMalformedAck, line)
	}
	name := strings.TrimSpace(parts[0])
	status := domain.Status(strings.TrimSpace(parts[1]))
	if name == "" || !status.Valid() {
		return domain.Ack{}, fmt.Errorf("%w: %q", domain.ErrMalformedAck, line)
	}
	return domain.Ack{Filename: name, Status: status}, nil
}
