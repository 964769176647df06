package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/bft-labs/propship/internal/domain"
	"github.com/bft-labs/propship/internal/ports"
)

const (
	backupDirName = "backup"
	lockDirName   = ".locks"
	backupInfix   = "_backup_"

	// maxBackupAttempts bounds the search for a free backup name when two
	// writes land in the same millisecond.
	maxBackupAttempts = 1000
)

var _ ports.EntryStore = (*Store)(nil)

// StoreConfig configures a Store.
type StoreConfig struct {
	// Dir is the store directory; backups go to Dir/backup.
	Dir string

	// Append merges incoming entries over existing ones. When false the
	// incoming entries replace the file content.
	Append bool

	// Backup keeps the previous version of a file before it is replaced.
	Backup bool
}

// Store implements ports.EntryStore with one .properties file per name.
type Store struct {
	cfg    StoreConfig
	logger ports.Logger
	locks  pathLocks
	now    func() time.Time
}

// NewStore creates a Store rooted at cfg.Dir.
func NewStore(cfg StoreConfig, logger ports.Logger) *Store {
	return &Store{cfg: cfg, logger: logger, now: time.Now}
}

// Path returns the store path for a sanitized name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.cfg.Dir, name)
}

// Write persists entries under name. The whole read-merge-write sequence runs
// under an exclusive lock for that name, and the live file is only ever
// replaced by an atomic rename, so on error it keeps its previous content.
func (s *Store) Write(ctx context.Context, name string, entries domain.EntrySet) (ports.StoreResult, error) {
	name, err := domain.StoreName(name)
	if err != nil {
		return ports.StoreResult{}, err
	}
	if reserved(name) {
		return ports.StoreResult{}, errors.Wrapf(domain.ErrInvalidFilename, "%q is reserved by the store", name)
	}
	if err := ctx.Err(); err != nil {
		return ports.StoreResult{}, err
	}

	path := s.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ports.StoreResult{}, errors.Wrapf(err, "ensuring store dir %s exists", filepath.Dir(path))
	}

	unlock, err := s.locks.lock(path, filepath.Join(s.cfg.Dir, lockDirName, name+".lock"))
	if err != nil {
		return ports.StoreResult{}, err
	}
	defer unlock()

	res := ports.StoreResult{Path: path}

	existing, found, err := s.load(path)
	if err != nil {
		return res, err
	}

	if found && s.cfg.Backup {
		backup, err := s.backup(path, name)
		if err != nil {
			return res, err
		}
		res.BackupPath = backup
		s.logger.Info("backed up store file",
			ports.String("file", path),
			ports.String("backup", backup),
		)
	}

	var (
		result  domain.EntrySet
		comment string
	)
	if s.cfg.Append {
		result = domain.Merge(existing, entries)
		comment = "propship: appended entries"
	} else {
		result = entries.Clone()
		comment = "propship: new entries"
	}

	data, err := encodeProperties(result, comment)
	if err != nil {
		return res, err
	}
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return res, err
	}

	res.Entries = len(result)
	s.logger.Debug("store file written",
		ports.String("file", path),
		ports.Int("entries", res.Entries),
		ports.Bool("append", s.cfg.Append),
	)
	return res, nil
}

// load reads the current content of path. Lock must be held.
func (s *Store) load(path string) (domain.EntrySet, bool, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return domain.EntrySet{}, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading %s", path)
	}
	entries, err := parseProperties(b)
	if err != nil {
		return nil, true, errors.Wrapf(err, "parsing %s", path)
	}
	return entries, true, nil
}

// backup preserves the current version of path as
// backup/<unix-millis>_backup_<name>. The file is hard-linked so the live
// name stays resolvable until the new version is renamed over it; at that
// point the backup holds the only copy. Lock must be held.
func (s *Store) backup(path, name string) (string, error) {
	dir := filepath.Join(s.cfg.Dir, backupDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "ensuring backup dir %s exists", dir)
	}

	millis := s.now().UnixMilli()
	for i := int64(0); i < maxBackupAttempts; i++ {
		dst := filepath.Join(dir, fmt.Sprintf("%d%s%s", millis+i, backupInfix, name))

		err := os.Link(path, dst)
		if err == nil {
			return dst, nil
		}
		if os.IsExist(err) {
			continue
		}

		// Hard links are not available everywhere; copy instead.
		err = copyFile(path, dst, os.O_EXCL)
		if err == nil {
			return dst, nil
		}
		if os.IsExist(err) {
			continue
		}
		return "", errors.Wrapf(err, "backing up %s to %s", path, dst)
	}
	return "", errors.Errorf("no free backup name for %s", name)
}

// reserved reports whether name collides with a store subdirectory. The
// comparison ignores case for case-insensitive filesystems.
func reserved(name string) bool {
	return strings.EqualFold(name, backupDirName) || strings.EqualFold(name, lockDirName)
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir, base := filepath.Split(path)
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "creating temp file for %s", path)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "writing %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "syncing %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", tmpName)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return errors.Wrapf(err, "chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "renaming %s to %s", tmpName, path)
	}
	committed = true
	return nil
}
