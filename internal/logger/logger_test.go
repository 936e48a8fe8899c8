package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncHandlerWritesFile(t *testing.T) {
	dir := t.TempDir()
	handler := NewAsyncHandler(dir, LevelTrace)
	log := slog.New(handler).With("client", "c1")

	log.Log(context.Background(), LevelTrace, "trace line")
	log.Info("info line", "topic", "home/temp")
	log.Debug("debug line")
	require.NoError(t, handler.Close())

	data, err := os.ReadFile(filepath.Join(dir, time.Now().Format("2006-01-02")+".log"))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "trace line")
	assert.Contains(t, content, "info line")
	assert.Contains(t, content, "client=c1")
	assert.Contains(t, content, "topic=home/temp")
	assert.Equal(t, 3, strings.Count(content, "\n"))
}

func TestAsyncHandlerLevel(t *testing.T) {
	handler := NewAsyncHandler(t.TempDir(), slog.LevelInfo)
	defer handler.Close()
	assert.False(t, handler.Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, handler.Enabled(context.Background(), LevelTrace))
	assert.True(t, handler.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, handler.Enabled(context.Background(), LevelFatal))
}
