package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(Config{Level: "info", Console: true}, &buf)
	require.NoError(t, err)

	log.Info("frame completed", zap.Int("bytes", 1234))
	log.Debug("hidden")
	require.NoError(t, log.Sync())

	out := buf.String()
	assert.Contains(t, out, "frame completed")
	assert.Contains(t, out, "1234")
	assert.NotContains(t, out, "hidden")
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rscreen.log")
	log, err := New(Config{Level: "debug", File: FileConfig{Filename: path, MaxSizeMB: 1}})
	require.NoError(t, err)

	log.Debug("keepalive", zap.String("component", "session"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"keepalive"`)
	assert.Contains(t, string(data), `"component":"session"`)
}

func TestNoOutputIsNop(t *testing.T) {
	log, err := New(Config{})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.ErrorLevel))
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, l)

	l, err = ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, l)

	_, err = ParseLevel("loud")
	assert.Error(t, err)

	_, err = New(Config{Level: "loud", Console: true})
	assert.Error(t, err)
}
