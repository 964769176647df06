package fs

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Quarantine implements ports.Disposer over a flat failed directory.
type Quarantine struct {
	dir string
}

// NewQuarantine creates a Quarantine that moves failed files into dir.
// The directory is created on first use.
func NewQuarantine(dir string) *Quarantine {
	return &Quarantine{dir: dir}
}

// Dir returns the quarantine directory.
func (q *Quarantine) Dir() string { return q.dir }

// Delete removes path. A file that is already gone is not an error.
func (q *Quarantine) Delete(path string) error {
	err := os.Remove(path)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(err, "deleting %s", path)
}

// Quarantine moves path into the quarantine directory under its base name,
// replacing any existing file of that name.
func (q *Quarantine) Quarantine(path string) (string, error) {
	if err := os.MkdirAll(q.dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "ensuring quarantine dir %s exists", q.dir)
	}
	dst := filepath.Join(q.dir, filepath.Base(path))

	err := os.Rename(path, dst)
	if err == nil {
		return dst, nil
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return "", errors.Wrapf(err, "moving %s to %s", path, dst)
	}
	// Rename fails across devices; fall back to copy and remove.
	if cerr := copyFile(path, dst, os.O_TRUNC); cerr != nil {
		return "", errors.Wrapf(cerr, "copying %s to %s", path, dst)
	}
	if rerr := os.Remove(path); rerr != nil {
		return "", errors.Wrapf(rerr, "removing %s after copy", path)
	}
	return dst, nil
}

// ClearQuarantined removes the quarantine copy of name, if present.
func (q *Quarantine) ClearQuarantined(name string) (bool, error) {
	path := filepath.Join(q.dir, filepath.Base(name))
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "removing %s", path)
	}
	return true, nil
}

// copyFile copies src to dst, opening dst with O_WRONLY|O_CREATE|flag.
func copyFile(src, dst string, flag int) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|flag, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
