package ports

import "github.com/bft-labs/propship/internal/domain"

// EntryReader loads every key-value pair of a source file, unfiltered.
type EntryReader interface {
	ReadEntries(path string) (domain.EntrySet, error)
}

// Disposer applies the client-side outcome of a transmission to the source file.
type Disposer interface {
	// Delete removes a successfully stored source file.
	Delete(path string) error

	// Quarantine moves path into the failed directory, replacing any file of
	// the same name there. It returns the quarantined path.
	Quarantine(path string) (string, error)

	// ClearQuarantined removes a stale quarantine copy of name, if any.
	// It reports whether a file was removed.
	ClearQuarantined(name string) (bool, error)
}
