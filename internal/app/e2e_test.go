package app

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/propship/internal/adapters/fs"
	"github.com/bft-labs/propship/internal/adapters/tcp"
	"github.com/bft-labs/propship/internal/domain"
	"github.com/bft-labs/propship/internal/ports"
)

type testNode struct {
	root      string
	watchDir  string
	failedDir string
	storeDir  string
}

func newTestNode(t *testing.T) testNode {
	t.Helper()
	root := t.TempDir()
	n := testNode{
		root:      root,
		watchDir:  filepath.Join(root, "watched"),
		failedDir: filepath.Join(root, "failed"),
		storeDir:  filepath.Join(root, "store"),
	}
	require.NoError(t, os.MkdirAll(n.watchDir, 0o755))
	return n
}

// goRun runs fn until the test ends.
func goRun(t *testing.T, fn func(ctx context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = fn(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func startServer(t *testing.T, n testNode, storeCfg fs.StoreConfig, responder ports.AckResponder) string {
	t.Helper()
	storeCfg.Dir = n.storeDir
	d, err := NewDispatcher(DispatcherConfig{Addr: "127.0.0.1:0"}, fs.NewStore(storeCfg, &mockLogger{}), responder, &mockLogger{})
	require.NoError(t, err)
	require.NoError(t, d.Listen())
	goRun(t, d.Run)
	return d.Addr().String()
}

func startClient(t *testing.T, n testNode, addr, filter string, waiter ports.AckWaiter) {
	t.Helper()
	f, err := NewKeyFilter(filter)
	require.NoError(t, err)
	disposer := fs.NewQuarantine(n.failedDir)
	sender := NewSender(SenderConfig{}, tcp.NewDialer(addr, time.Second), waiter, disposer, &mockLogger{})
	w := NewWatcher(WatcherConfig{Dir: n.watchDir, ScanExisting: true, SettleDelay: 10 * time.Millisecond},
		f, fs.NewPropertiesReader(), sender, &mockLogger{})
	goRun(t, w.Run)
}

func readEntries(t *testing.T, path string) domain.EntrySet {
	t.Helper()
	got, err := fs.NewPropertiesReader().ReadEntries(path)
	require.NoError(t, err)
	return got
}

func TestEndToEnd_FilteredNewFile(t *testing.T) {
	n := newTestNode(t)
	src := filepath.Join(n.watchDir, "db.properties")
	writeFile(t, src, "db.host=x\nother.key=y\n")

	addr := startServer(t, n, fs.StoreConfig{Append: true}, tcp.NewInlineResponder(time.Second))
	startClient(t, n, addr, `db\..*`, tcp.NewInlineWaiter())

	require.Eventually(t, func() bool {
		_, err := os.Stat(src)
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, domain.EntrySet{"db.host": "x"}, readEntries(t, filepath.Join(n.storeDir, "db.properties")))
	assert.NoDirExists(t, filepath.Join(n.storeDir, "backup"))
	assert.NoDirExists(t, n.failedDir)
}

func TestEndToEnd_BackupAndMerge(t *testing.T) {
	n := newTestNode(t)
	require.NoError(t, os.MkdirAll(n.storeDir, 0o755))
	writeFile(t, filepath.Join(n.storeDir, "app.properties"), "a=1\n")
	src := filepath.Join(n.watchDir, "app.properties")
	writeFile(t, src, "a=2\n")

	addr := startServer(t, n, fs.StoreConfig{Append: true, Backup: true}, tcp.NewInlineResponder(time.Second))
	startClient(t, n, addr, "", tcp.NewInlineWaiter())

	require.Eventually(t, func() bool {
		_, err := os.Stat(src)
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, domain.EntrySet{"a": "2"}, readEntries(t, filepath.Join(n.storeDir, "app.properties")))

	backups, err := os.ReadDir(filepath.Join(n.storeDir, "backup"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.True(t, strings.HasSuffix(backups[0].Name(), "_backup_app.properties"), backups[0].Name())
	assert.Equal(t, domain.EntrySet{"a": "1"}, readEntries(t, filepath.Join(n.storeDir, "backup", backups[0].Name())))
}

func TestEndToEnd_PushAck(t *testing.T) {
	n := newTestNode(t)
	src := filepath.Join(n.watchDir, "app.properties")
	writeFile(t, src, "a=1\n")

	pending := NewPendingSet(5 * time.Second)
	listener := NewAckListener(AckListenerConfig{Addr: "127.0.0.1:0", MonitoredDir: n.watchDir},
		pending, fs.NewQuarantine(n.failedDir), &mockLogger{})
	require.NoError(t, listener.Listen())
	goRun(t, listener.Run)
	ackPort := listener.Addr().(*net.TCPAddr).Port

	addr := startServer(t, n, fs.StoreConfig{Append: true}, tcp.NewPushResponder("127.0.0.1", ackPort, time.Second))
	startClient(t, n, addr, "", pending)

	require.Eventually(t, func() bool {
		_, err := os.Stat(src)
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, domain.EntrySet{"a": "1"}, readEntries(t, filepath.Join(n.storeDir, "app.properties")))
	assert.NoDirExists(t, n.failedDir)
}

func TestEndToEnd_ServerDownLeavesFile(t *testing.T) {
	n := newTestNode(t)
	src := filepath.Join(n.watchDir, "app.properties")
	writeFile(t, src, "a=1\n")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	f, err := NewKeyFilter("")
	require.NoError(t, err)
	sender := NewSender(SenderConfig{}, tcp.NewDialer(addr, time.Second), tcp.NewInlineWaiter(), fs.NewQuarantine(n.failedDir), &mockLogger{})
	w := NewWatcher(WatcherConfig{Dir: n.watchDir}, f, fs.NewPropertiesReader(), sender, &mockLogger{})

	outcome, err := w.ProcessFile(context.Background(), src)
	require.Error(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.FileExists(t, src)
	assert.NoDirExists(t, n.failedDir)
}

func TestEndToEnd_PushSuccessClearsStaleQuarantine(t *testing.T) {
	n := newTestNode(t)
	require.NoError(t, os.MkdirAll(n.failedDir, 0o755))
	stale := filepath.Join(n.failedDir, "app.properties")
	writeFile(t, stale, "a=0\n")
	src := filepath.Join(n.watchDir, "app.properties")
	writeFile(t, src, "a=1\n")

	pending := NewPendingSet(5 * time.Second)
	listener := NewAckListener(AckListenerConfig{Addr: "127.0.0.1:0", MonitoredDir: n.watchDir},
		pending, fs.NewQuarantine(n.failedDir), &mockLogger{})
	require.NoError(t, listener.Listen())
	goRun(t, listener.Run)
	ackPort := listener.Addr().(*net.TCPAddr).Port

	addr := startServer(t, n, fs.StoreConfig{Append: true}, tcp.NewPushResponder("127.0.0.1", ackPort, time.Second))
	startClient(t, n, addr, "", pending)

	require.Eventually(t, func() bool {
		_, err := os.Stat(src)
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, domain.EntrySet{"a": "1"}, readEntries(t, filepath.Join(n.storeDir, "app.properties")))
	assert.NoFileExists(t, stale)
}
