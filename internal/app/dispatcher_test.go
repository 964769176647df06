package app

import (
	"bufio"
	"context"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/propship/internal/adapters/fs"
	"github.com/bft-labs/propship/internal/adapters/tcp"
	"github.com/bft-labs/propship/internal/domain"
	"github.com/bft-labs/propship/internal/protocol"
)

func newTestDispatcher(t *testing.T, cfg DispatcherConfig, storeCfg fs.StoreConfig) (*Dispatcher, *fs.Store) {
	t.Helper()
	if storeCfg.Dir == "" {
		storeCfg.Dir = t.TempDir()
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	store := fs.NewStore(storeCfg, &mockLogger{})
	d, err := NewDispatcher(cfg, store, tcp.NewInlineResponder(time.Second), &mockLogger{})
	require.NoError(t, err)
	return d, store
}

// exchange sends env over an in-memory connection and returns the ack line.
func exchange(t *testing.T, d *Dispatcher, env domain.Envelope) string {
	t.Helper()
	client, server := net.Pipe()
	defer client.Close()

	go d.Handle(context.Background(), server)

	require.NoError(t, protocol.WriteEnvelope(client, env))
	line, _ := bufio.NewReader(client).ReadString('\n')
	return line
}

func TestDispatcher_Handle(t *testing.T) {
	d, store := newTestDispatcher(t, DispatcherConfig{}, fs.StoreConfig{Append: true})

	line := exchange(t, d, domain.NewEnvelope("app.properties", domain.EntrySet{"a": "1"}))
	assert.Equal(t, "app.properties=Success\n", line)

	got, err := fs.NewPropertiesReader().ReadEntries(store.Path("app.properties"))
	require.NoError(t, err)
	assert.Equal(t, domain.EntrySet{"a": "1"}, got)
}

func TestDispatcher_Handle_Sanitizes(t *testing.T) {
	d, store := newTestDispatcher(t, DispatcherConfig{}, fs.StoreConfig{Append: true})

	line := exchange(t, d, domain.NewEnvelope("../etc/app.properties", domain.EntrySet{"a": "1"}))
	// The acknowledgment names the file as the client sent it.
	assert.Equal(t, "../etc/app.properties=Success\n", line)
	assert.FileExists(t, store.Path(".._etc_app.properties"))
}

func TestDispatcher_Handle_MissingFilename(t *testing.T) {
	dir := t.TempDir()
	d, _ := newTestDispatcher(t, DispatcherConfig{}, fs.StoreConfig{Dir: dir, Append: true})

	for _, name := range []string{"", "   "} {
		line := exchange(t, d, domain.NewEnvelope(name, domain.EntrySet{"a": "1"}))
		assert.Contains(t, line, "=Failure")
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDispatcher_Handle_ReservedName(t *testing.T) {
	dir := t.TempDir()
	d, _ := newTestDispatcher(t, DispatcherConfig{}, fs.StoreConfig{Dir: dir, Append: true, Backup: true})

	for _, name := range []string{"backup", ".locks"} {
		line := exchange(t, d, domain.NewEnvelope(name, domain.EntrySet{"a": "1"}))
		assert.Equal(t, name+"=Failure\n", line)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDispatcher_Handle_GarbageGetsNoAck(t *testing.T) {
	d, _ := newTestDispatcher(t, DispatcherConfig{}, fs.StoreConfig{})
	client, server := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		d.Handle(context.Background(), server)
		close(done)
	}()

	_, err := client.Write([]byte{0x05, 0xff, 0xff, 0xff, 0xff, 0xff})
	require.NoError(t, err)

	line, _ := bufio.NewReader(client).ReadString('\n')
	assert.Empty(t, line)
	<-done
}

func TestDispatcher_Handle_Timeout(t *testing.T) {
	d, _ := newTestDispatcher(t, DispatcherConfig{HandlerTimeout: 50 * time.Millisecond}, fs.StoreConfig{})
	client, server := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		d.Handle(context.Background(), server)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stalled connection was not released")
	}
}

func TestDispatcher_Run(t *testing.T) {
	d, store := newTestDispatcher(t, DispatcherConfig{MaxHandlers: 2}, fs.StoreConfig{Append: true})
	require.NoError(t, d.Listen())
	addr := d.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	const n = 8
	var wg sync.WaitGroup
	acks := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				return
			}
			defer conn.Close()
			key := string(rune('a' + i))
			if err := protocol.WriteEnvelope(conn, domain.NewEnvelope("shared.properties", domain.EntrySet{key: "v"})); err != nil {
				return
			}
			acks[i], _ = bufio.NewReader(conn).ReadString('\n')
		}(i)
	}
	wg.Wait()

	for i, ack := range acks {
		assert.Equal(t, "shared.properties=Success\n", ack, "connection %d", i)
	}
	got, err := fs.NewPropertiesReader().ReadEntries(store.Path("shared.properties"))
	require.NoError(t, err)
	assert.Len(t, got, n)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
