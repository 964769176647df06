package domain

import (
	"path/filepath"
	"strings"
)

// FilenameMarker is the reserved key that carries the origin filename inside an
// envelope. It never appears in a source-derived EntrySet.
const FilenameMarker = "##FILENAME##"

// EntrySet maps keys to values for one source file. Order is irrelevant.
type EntrySet map[string]string

// Clone returns a copy of the set. A nil set clones to an empty one.
func (s EntrySet) Clone() EntrySet {
	out := make(EntrySet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Merge returns base overlaid with incoming; incoming wins on key collision.
// Neither argument is modified.
func Merge(base, incoming EntrySet) EntrySet {
	out := base.Clone()
	for k, v := range incoming {
		out[k] = v
	}
	return out
}

// Envelope is an entry set plus the filename marker: the unit sent over the wire.
type Envelope struct {
	entries EntrySet
}

// NewEnvelope builds an envelope for filename. The entries are copied, so later
// changes to the caller's map do not affect the envelope.
func NewEnvelope(filename string, entries EntrySet) Envelope {
	m := entries.Clone()
	m[FilenameMarker] = filename
	return Envelope{entries: m}
}

// EnvelopeFromMap wraps a decoded wire map. The map is used as is, marker included.
func EnvelopeFromMap(m map[string]string) Envelope {
	return Envelope{entries: EntrySet(m)}
}

// Map returns a copy of the full wire map, marker included.
func (e Envelope) Map() map[string]string {
	return e.entries.Clone()
}

// Len returns the number of wire entries, marker included.
func (e Envelope) Len() int { return len(e.entries) }

// Split returns the filename marker and the entries without it.
// The filename is empty when the marker is missing.
func (e Envelope) Split() (string, EntrySet) {
	entries := e.entries.Clone()
	name := entries[FilenameMarker]
	delete(entries, FilenameMarker)
	return name, entries
}

var filenameReplacer = strings.NewReplacer(
	`\`, "_", "/", "_", ":", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_",
)

// SanitizeFilename replaces each of \ / : * ? " < > | with an underscore.
// It is idempotent.
func SanitizeFilename(name string) string {
	return filenameReplacer.Replace(name)
}

// StoreName sanitizes name and rejects results that would not name a regular
// file directly inside the store directory.
func StoreName(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrMissingFilename
	}
	clean := SanitizeFilename(name)
	if clean == "." || clean == ".." || filepath.Base(clean) != clean {
		return "", ErrInvalidFilename
	}
	return clean, nil
}
