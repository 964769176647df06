package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/bft-labs/propship/internal/domain"
)

// Version is the envelope wire version written by this package.
const Version = 1

// MaxEnvelopeSize bounds the size of a single encoded envelope message.
const MaxEnvelopeSize = 16 << 20

const (
	fieldVersion protowire.Number = 1
	fieldEntry   protowire.Number = 2

	fieldEntryKey   protowire.Number = 1
	fieldEntryValue protowire.Number = 2
)

// MarshalEnvelope encodes env without the length prefix.
// Entries are written in key order so equal envelopes encode identically.
func MarshalEnvelope(env domain.Envelope) []byte {
	m := env.Map()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b []byte
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, Version)
	for _, k := range keys {
		var entry []byte
		entry = protowire.AppendTag(entry, fieldEntryKey, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, fieldEntryValue, protowire.BytesType)
		entry = protowire.AppendString(entry, m[k])

		b = protowire.AppendTag(b, fieldEntry, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

// UnmarshalEnvelope decodes a message produced by MarshalEnvelope.
func UnmarshalEnvelope(b []byte) (domain.Envelope, error) {
	var (
		version     uint64
		seenVersion bool
		entries     = make(map[string]string)
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return domain.Envelope{}, fmt.Errorf("decode tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return domain.Envelope{}, fmt.Errorf("decode version: %w", protowire.ParseError(n))
			}
			version, seenVersion = v, true
			b = b[n:]

		case num == fieldEntry && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return domain.Envelope{}, fmt.Errorf("decode entry: %w", protowire.ParseError(n))
			}
			k, v, err := unmarshalEntry(raw)
			if err != nil {
				return domain.Envelope{}, err
			}
			entries[k] = v
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return domain.Envelope{}, fmt.Errorf("skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if !seenVersion || version != Version {
		return domain.Envelope{}, fmt.Errorf("%w: %d", domain.ErrUnsupportedVersion, version)
	}
	return domain.EnvelopeFromMap(entries), nil
}

func unmarshalEntry(b []byte) (key, value string, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", "", fmt.Errorf("decode entry tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		if typ == protowire.BytesType && (num == fieldEntryKey || num == fieldEntryValue) {
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return "", "", fmt.Errorf("decode entry field %d: %w", num, protowire.ParseError(n))
			}
			if num == fieldEntryKey {
				key = s
			} else {
				value = s
			}
			b = b[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return "", "", fmt.Errorf("skip entry field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return key, value, nil
}

// WriteEnvelope writes one length-prefixed envelope to w.
func WriteEnvelope(w io.Writer, env domain.Envelope) error {
	msg := MarshalEnvelope(env)
	frame := protowire.AppendVarint(make([]byte, 0, len(msg)+binary.MaxVarintLen64), uint64(len(msg)))
	frame = append(frame, msg...)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}

// ReadEnvelope reads exactly one length-prefixed envelope from r.
// It never reads past the end of the frame.
func ReadEnvelope(r io.Reader) (domain.Envelope, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = &byteReader{r: r}
	}
	size, err := binary.ReadUvarint(br)
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("read envelope length: %w", err)
	}
	if size > MaxEnvelopeSize {
		return domain.Envelope{}, fmt.Errorf("%w: %d bytes", domain.ErrEnvelopeTooLarge, size)
	}

	msg := make([]byte, size)
	if _, err := io.ReadFull(r, msg); err != nil {
		return domain.Envelope{}, fmt.Errorf("read envelope body: %w", err)
	}
	return UnmarshalEnvelope(msg)
}

// byteReader reads single bytes without buffering ahead, so the caller's
// reader is left positioned right after the length prefix.
type byteReader struct {
	r   io.Reader
	buf [1]byte
}

func (b *byteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(b.r, b.buf[:]); err != nil {
		return 0, err
	}
	return b.buf[0], nil
}
