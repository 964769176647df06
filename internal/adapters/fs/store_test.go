package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logAdapter "github.com/bft-labs/propship/internal/adapters/log"
	"github.com/bft-labs/propship/internal/domain"
)

func newTestStore(t *testing.T, appendMode, backup bool) *Store {
	t.Helper()
	return NewStore(StoreConfig{Dir: t.TempDir(), Append: appendMode, Backup: backup}, logAdapter.NewNoopLogger())
}

func readStore(t *testing.T, path string) domain.EntrySet {
	t.Helper()
	got, err := NewPropertiesReader().ReadEntries(path)
	require.NoError(t, err)
	return got
}

func TestStore_MergeLaw(t *testing.T) {
	tests := []struct {
		name   string
		append bool
		want   domain.EntrySet
	}{
		{"append merges with incoming precedence", true, domain.EntrySet{"a": "1", "b": "3", "c": "4"}},
		{"overwrite keeps incoming only", false, domain.EntrySet{"b": "3", "c": "4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, tt.append, false)
			ctx := context.Background()

			_, err := s.Write(ctx, "app.properties", domain.EntrySet{"a": "1", "b": "2"})
			require.NoError(t, err)

			res, err := s.Write(ctx, "app.properties", domain.EntrySet{"b": "3", "c": "4"})
			require.NoError(t, err)
			assert.Empty(t, res.BackupPath)
			assert.Equal(t, len(tt.want), res.Entries)

			if diff := cmp.Diff(tt.want, readStore(t, res.Path)); diff != "" {
				t.Errorf("store content mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStore_NewFile(t *testing.T) {
	s := newTestStore(t, true, false)

	res, err := s.Write(context.Background(), "db.properties", domain.EntrySet{"db.host": "x"})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(s.cfg.Dir, "db.properties"), res.Path)
	assert.Equal(t, domain.EntrySet{"db.host": "x"}, readStore(t, res.Path))
	assert.NoDirExists(t, filepath.Join(s.cfg.Dir, backupDirName))
}

func TestStore_Backup(t *testing.T) {
	s := newTestStore(t, true, true)
	ctx := context.Background()

	first, err := s.Write(ctx, "a.properties", domain.EntrySet{"a": "1"})
	require.NoError(t, err)
	assert.Empty(t, first.BackupPath, "no backup for a new file")

	second, err := s.Write(ctx, "a.properties", domain.EntrySet{"a": "2"})
	require.NoError(t, err)
	require.NotEmpty(t, second.BackupPath)

	assert.Equal(t, domain.EntrySet{"a": "1"}, readStore(t, second.BackupPath))
	assert.Equal(t, domain.EntrySet{"a": "2"}, readStore(t, second.Path))
	assert.Regexp(t, `^\d+_backup_a\.properties$`, filepath.Base(second.BackupPath))
}

func TestStore_BackupNamesNeverCollide(t *testing.T) {
	s := newTestStore(t, false, true)
	frozen := time.UnixMilli(1700000000000)
	s.now = func() time.Time { return frozen }
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		res, err := s.Write(ctx, "x.properties", domain.EntrySet{"v": fmt.Sprint(i)})
		require.NoError(t, err)
		if res.BackupPath == "" {
			continue
		}
		assert.False(t, seen[res.BackupPath], "duplicate backup %s", res.BackupPath)
		seen[res.BackupPath] = true
	}

	require.Len(t, seen, 4)
	assert.True(t, seen[filepath.Join(s.cfg.Dir, backupDirName, "1700000000000_backup_x.properties")])
	assert.True(t, seen[filepath.Join(s.cfg.Dir, backupDirName, "1700000000001_backup_x.properties")])
}

func TestStore_SanitizesName(t *testing.T) {
	s := newTestStore(t, true, false)

	res, err := s.Write(context.Background(), "../../etc/passwd", domain.EntrySet{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.cfg.Dir, ".._.._etc_passwd"), res.Path)

	_, err = s.Write(context.Background(), "  ", domain.EntrySet{"k": "v"})
	require.ErrorIs(t, err, domain.ErrMissingFilename)

	_, err = s.Write(context.Background(), "..", domain.EntrySet{"k": "v"})
	require.ErrorIs(t, err, domain.ErrInvalidFilename)
}

func TestStore_RejectsReservedNames(t *testing.T) {
	for _, name := range []string{"backup", "BACKUP", ".locks"} {
		t.Run(name, func(t *testing.T) {
			s := newTestStore(t, true, true)
			ctx := context.Background()

			_, err := s.Write(ctx, name, domain.EntrySet{"k": "v"})
			require.ErrorIs(t, err, domain.ErrInvalidFilename)

			// Backups keep working after the rejected write.
			_, err = s.Write(ctx, "app.properties", domain.EntrySet{"a": "1"})
			require.NoError(t, err)
			res, err := s.Write(ctx, "app.properties", domain.EntrySet{"a": "2"})
			require.NoError(t, err)
			require.NotEmpty(t, res.BackupPath)
			assert.Equal(t, domain.EntrySet{"a": "1"}, readStore(t, res.BackupPath))
			assert.DirExists(t, filepath.Join(s.cfg.Dir, backupDirName))
		})
	}
}

func TestStore_ConcurrentWritersSerialize(t *testing.T) {
	s := newTestStore(t, true, true)
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Write(ctx, "shared.properties", domain.EntrySet{fmt.Sprintf("k%02d", i): "v"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got := readStore(t, s.Path("shared.properties"))
	assert.Len(t, got, writers, "every append must survive")

	backups, err := os.ReadDir(filepath.Join(s.cfg.Dir, backupDirName))
	require.NoError(t, err)
	assert.Len(t, backups, writers-1)
}

func TestStore_FailureKeepsPreviousContent(t *testing.T) {
	s := newTestStore(t, true, false)
	path := s.Path("broken.properties")
	original := "a=\\uZZZZ\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	_, err := s.Write(context.Background(), "broken.properties", domain.EntrySet{"a": "2"})
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(data))

	entries, err := os.ReadDir(s.cfg.Dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "temp file left behind")
	}
}

func TestStore_CanceledContext(t *testing.T) {
	s := newTestStore(t, true, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Write(ctx, "a.properties", domain.EntrySet{"a": "1"})
	require.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, s.Path("a.properties"))
}
