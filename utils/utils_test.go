package utils

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveFileAtomic(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "nested", "dir", "scan.tif")

	req.False(FileExists(path))
	req.NoError(SaveFileAtomic(path, []byte("first")))
	req.NoError(SaveFileAtomic(path, []byte("second")))

	data, err := os.ReadFile(path)
	req.NoError(err)
	req.Equal("second", string(data))
	req.True(FileExists(path))

	entries, err := os.ReadDir(filepath.Dir(path))
	req.NoError(err)
	req.Len(entries, 1)
}

func TestParseLevel(t *testing.T) {
	req := require.New(t)

	req.Equal(slog.LevelDebug, ParseLevel("debug"))
	req.Equal(slog.LevelWarn, ParseLevel(" WARN "))
	req.Equal(slog.LevelError, ParseLevel("Error"))
	req.Equal(slog.LevelInfo, ParseLevel(""))
	req.Equal(slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewLogger_FiltersByLevel(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer
	log := NewLogger(&buf, "WARN")

	log.Info("hidden")
	log.Warn("shown", "page", 2)

	req.NotContains(buf.String(), "hidden")
	req.Contains(buf.String(), "msg=shown")
	req.Contains(buf.String(), "page=2")
}
