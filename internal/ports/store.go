package ports

import (
	"context"

	"github.com/bft-labs/propship/internal/domain"
)

// StoreResult describes a completed store write.
type StoreResult struct {
	// Path is the live store file.
	Path string

	// BackupPath is the backup of the previous version, empty if none was taken.
	BackupPath string

	// Entries is the number of entries in the written file.
	Entries int
}

// EntryStore durably persists entry sets keyed by sanitized filename.
// Concurrent writes to the same name are serialized.
type EntryStore interface {
	Write(ctx context.Context, name string, entries domain.EntrySet) (StoreResult, error)
}
