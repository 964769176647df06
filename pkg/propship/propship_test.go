package propship_test

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/propship/internal/domain"
	"github.com/bft-labs/propship/pkg/propship"
)

type dirs struct {
	watched, failed, store string
}

func newDirs(t *testing.T) dirs {
	t.Helper()
	root := t.TempDir()
	d := dirs{
		watched: filepath.Join(root, "watched"),
		failed:  filepath.Join(root, "failed"),
		store:   filepath.Join(root, "store"),
	}
	require.NoError(t, os.MkdirAll(d.watched, 0o755))
	return d
}

func startServer(t *testing.T, cfg propship.ServerConfig) *propship.Server {
	t.Helper()
	cfg.ListenAddr = "127.0.0.1:0"
	srv, err := propship.NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

func clientConfig(d dirs, serverAddr string) propship.ClientConfig {
	cfg := propship.DefaultClientConfig()
	cfg.ServerAddr = serverAddr
	cfg.MonitoredDir = d.watched
	cfg.FailedDir = d.failed
	cfg.SettleDelay = 10 * time.Millisecond
	return cfg
}

func waitGone(t *testing.T, path string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNewClient_InvalidConfig(t *testing.T) {
	_, err := propship.NewClient(propship.ClientConfig{})
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))

	cfg := propship.DefaultClientConfig()
	cfg.MonitoredDir = t.TempDir()
	cfg.AckWait = "sometimes"
	_, err = propship.NewClient(cfg)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))

	cfg.AckWait = propship.AckWaitInline
	cfg.Filter = "("
	_, err = propship.NewClient(cfg)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
}

func TestNewServer_InvalidConfig(t *testing.T) {
	cfg := propship.DefaultServerConfig()
	cfg.AckMode = "timed"
	_, err := propship.NewServer(cfg)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
}

func TestServer_Lifecycle(t *testing.T) {
	cfg := propship.DefaultServerConfig()
	cfg.StoreDir = filepath.Join(t.TempDir(), "store")
	cfg.ListenAddr = "127.0.0.1:0"

	var mu sync.Mutex
	var states []propship.State
	handler := propship.EventHandlerFunc(func(e propship.StateChangeEvent) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, e.Current)
	})

	srv, err := propship.NewServer(cfg, propship.WithEventHandler(handler))
	require.NoError(t, err)
	assert.Equal(t, propship.StateStopped, srv.Status())
	assert.Nil(t, srv.Done())

	require.NoError(t, srv.Start(context.Background()))
	assert.Equal(t, propship.StateRunning, srv.Status())
	require.NotNil(t, srv.Addr())
	assert.DirExists(t, cfg.StoreDir)
	assert.ErrorIs(t, srv.Start(context.Background()), domain.ErrAlreadyRunning)

	require.NoError(t, srv.Stop())
	assert.Equal(t, propship.StateStopped, srv.Status())
	assert.ErrorIs(t, srv.Stop(), domain.ErrNotRunning)
	<-srv.Done()

	// A stopped server can be started again on a fresh socket.
	require.NoError(t, srv.Start(context.Background()))
	require.NoError(t, srv.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []propship.State{
		propship.StateStarting, propship.StateRunning, propship.StateStopping, propship.StateStopped,
		propship.StateStarting, propship.StateRunning, propship.StateStopping, propship.StateStopped,
	}, states)
}

func TestServer_StartFailsWhenPortTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := propship.DefaultServerConfig()
	cfg.StoreDir = t.TempDir()
	cfg.ListenAddr = ln.Addr().String()
	srv, err := propship.NewServer(cfg)
	require.NoError(t, err)

	require.Error(t, srv.Start(context.Background()))
	assert.Equal(t, propship.StateCrashed, srv.Status())
}

func TestClient_InlineReplication(t *testing.T) {
	d := newDirs(t)
	scfg := propship.DefaultServerConfig()
	scfg.StoreDir = d.store
	srv := startServer(t, scfg)

	cfg := clientConfig(d, srv.Addr().String())
	cfg.Filter = `db\..*`
	c, err := propship.NewClient(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	assert.Nil(t, c.AckAddr())

	time.Sleep(100 * time.Millisecond)
	src := filepath.Join(d.watched, "db.properties")
	require.NoError(t, os.WriteFile(src, []byte("db.host=x\nother.key=y\n"), 0o644))
	waitGone(t, src)

	got, err := os.ReadFile(filepath.Join(d.store, "db.properties"))
	require.NoError(t, err)
	assert.Contains(t, string(got), "db.host = x")
	assert.NotContains(t, string(got), "other.key")
}

func TestServer_ZeroConfigMerges(t *testing.T) {
	tests := []struct {
		name      string
		overwrite bool
		want      []string
		notWant   []string
	}{
		{"zero value merges", false, []string{"a = 1", "b = 2"}, nil},
		{"overwrite replaces", true, []string{"b = 2"}, []string{"a = 1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDirs(t)
			require.NoError(t, os.MkdirAll(d.store, 0o755))
			require.NoError(t, os.WriteFile(filepath.Join(d.store, "app.properties"), []byte("a=1\n"), 0o644))
			srv := startServer(t, propship.ServerConfig{StoreDir: d.store, Overwrite: tt.overwrite})

			src := filepath.Join(d.watched, "app.properties")
			require.NoError(t, os.WriteFile(src, []byte("b=2\n"), 0o644))
			c, err := propship.NewClient(clientConfig(d, srv.Addr().String()))
			require.NoError(t, err)
			require.NoError(t, c.Start(context.Background()))
			defer c.Stop()
			waitGone(t, src)

			got, err := os.ReadFile(filepath.Join(d.store, "app.properties"))
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, string(got), w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, string(got), w)
			}
		})
	}
}

func TestClient_PushReplication(t *testing.T) {
	d := newDirs(t)

	cfg := clientConfig(d, "")
	cfg.AckWait = propship.AckWaitPush

	// Reserve a port for the client's ack listener so the server can be
	// configured with it before the client starts.
	ackLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	cfg.AckAddr = ackLn.Addr().String()
	ackPort := ackLn.Addr().(*net.TCPAddr).Port
	require.NoError(t, ackLn.Close())

	scfg := propship.DefaultServerConfig()
	scfg.StoreDir = d.store
	scfg.AckMode = propship.AckModePush
	scfg.AckPort = ackPort
	srv := startServer(t, scfg)
	cfg.ServerAddr = srv.Addr().String()

	src := filepath.Join(d.watched, "app.properties")
	require.NoError(t, os.WriteFile(src, []byte("a=1\n"), 0o644))

	c, err := propship.NewClient(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	require.NotNil(t, c.AckAddr())

	waitGone(t, src)
	assert.FileExists(t, filepath.Join(d.store, "app.properties"))
	assert.NoDirExists(t, d.failed)
}

func TestClient_ServerRejectsQuarantines(t *testing.T) {
	d := newDirs(t)

	// A server that reads the request and answers Failure.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				buf := make([]byte, 4096)
				_, _ = conn.Read(buf)
				_, _ = conn.Write([]byte("bad.properties=Failure\n"))
			}()
		}
	}()

	src := filepath.Join(d.watched, "bad.properties")
	require.NoError(t, os.WriteFile(src, []byte("a=1\n"), 0o644))

	c, err := propship.NewClient(clientConfig(d, ln.Addr().String()))
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	waitGone(t, src)
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(d.failed, "bad.properties"))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestClient_CrashesWhenDirectoryRemoved(t *testing.T) {
	d := newDirs(t)
	c, err := propship.NewClient(clientConfig(d, "127.0.0.1:1"))
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.RemoveAll(d.watched))

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not stop after directory removal")
	}
	assert.Equal(t, propship.StateCrashed, c.Status())
	assert.ErrorIs(t, c.Err(), domain.ErrWatchInvalid)
	assert.ErrorIs(t, c.Stop(), domain.ErrNotRunning)
}

func TestClient_StartFailsWithoutDirectory(t *testing.T) {
	d := newDirs(t)
	cfg := clientConfig(d, "127.0.0.1:1")
	cfg.MonitoredDir = filepath.Join(d.watched, "missing")
	c, err := propship.NewClient(cfg)
	require.NoError(t, err)

	err = c.Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrWatchInvalid)
	assert.Equal(t, propship.StateCrashed, c.Status())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Running", propship.StateRunning.String())
	assert.Equal(t, "Crashed", propship.StateCrashed.String())
}
