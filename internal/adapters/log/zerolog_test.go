package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/propship/internal/ports"
)

func TestZerologAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewZerologAdapter(Options{Console: &buf, Level: "debug", Component: "server"})
	require.NoError(t, err)

	l.Info("stored",
		ports.String("file", "db.properties"),
		ports.Int("entries", 2),
		ports.Bool("backup", true),
		ports.Duration("took", time.Second),
		ports.Err(errors.New("boom")),
	)

	var ev map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &ev))
	assert.Equal(t, "stored", ev["message"])
	assert.Equal(t, "info", ev["level"])
	assert.Equal(t, "server", ev["component"])
	assert.Equal(t, "db.properties", ev["file"])
	assert.Equal(t, float64(2), ev["entries"])
	assert.Equal(t, true, ev["backup"])
	assert.Equal(t, "boom", ev["error"])
}

func TestZerologAdapter_Level(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewZerologAdapter(Options{Console: &buf, Level: "warn"})
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))

	_, err = NewZerologAdapter(Options{Level: "loud"})
	require.Error(t, err)
}

func TestZerologAdapter_FileAppendsWholeLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")
	var console bytes.Buffer
	l, err := NewZerologAdapter(Options{Console: &console, File: path})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Info("handler finished", ports.Int("n", i))
		}(i)
	}
	wg.Wait()
	require.NoError(t, l.Close())
	require.NoError(t, l.Close(), "close must be idempotent")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 20)
	for _, line := range lines {
		var ev map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &ev), "corrupted line %q", line)
	}
}
