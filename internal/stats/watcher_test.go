package stats

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"headless-trader/internal/config"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

func setupWatcher(t *testing.T, window int) (*Watcher, *Store, string) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(t.TempDir(), "trade_stats.json"), zap.NewNop())
	require.NoError(t, err)
	extractor, err := NewExtractor(config.DefaultTradePattern)
	require.NoError(t, err)
	w, err := NewWatcher(dir, `.*\.log$`, window, extractor, store, zap.NewNop())
	require.NoError(t, err)
	return w, store, dir
}

func tradeLine(ts string) string {
	return ts + ".000\tINFO\texecutor\ttrade verified: Bought UP $1.00\n"
}

func appendTo(t *testing.T, path, text string) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestWatcher_Scan_CountsEachLineOnce(t *testing.T) {
	// Arrange
	w, store, dir := setupWatcher(t, 1024)
	path := filepath.Join(dir, "trader.log")
	appendTo(t, path, tradeLine("2024-01-15 14:23:00"))

	// Act
	n1, err := w.Scan(path)
	require.NoError(t, err)
	n2, err := w.Scan(path) // repeated notification, nothing new
	require.NoError(t, err)
	appendTo(t, path, tradeLine("2024-01-15 14:40:00"))
	n3, err := w.Scan(path)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, 1, n1)
	assert.Zero(t, n2)
	assert.Equal(t, 1, n3)
	r, _ := store.Daily("2024-01-15")
	assert.Equal(t, 2, r.Counts[14])
}

func TestWatcher_Scan_WaitsForCompleteLine(t *testing.T) {
	w, _, dir := setupWatcher(t, 1024)
	path := filepath.Join(dir, "trader.log")
	line := tradeLine("2024-01-15 14:23:00")

	appendTo(t, path, line[:20])
	n, err := w.Scan(path)
	require.NoError(t, err)
	assert.Zero(t, n)

	appendTo(t, path, line[20:])
	n, err = w.Scan(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWatcher_Scan_BoundedWindow(t *testing.T) {
	// Arrange: far more than one window of trades appended at once.
	w, _, dir := setupWatcher(t, 256)
	path := filepath.Join(dir, "trader.log")
	var b strings.Builder
	for i := 0; i < 50; i++ {
		b.WriteString(tradeLine(fmt.Sprintf("2024-01-15 10:%02d:00", i)))
	}
	appendTo(t, path, b.String())
	lineLen := len(tradeLine("2024-01-15 10:00:00"))

	// Act
	n, err := w.Scan(path)

	// Assert: only whole lines inside the trailing window are counted.
	require.NoError(t, err)
	assert.Equal(t, 256/lineLen, n)
}

func TestWatcher_Scan_TruncatedFileRestarts(t *testing.T) {
	w, store, dir := setupWatcher(t, 1024)
	path := filepath.Join(dir, "trader.log")
	appendTo(t, path, tradeLine("2024-01-15 08:00:00")+tradeLine("2024-01-15 08:01:00"))
	_, err := w.Scan(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(tradeLine("2024-01-15 09:00:00")), 0o644))
	n, err := w.Scan(path)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	r, _ := store.Daily("2024-01-15")
	assert.Equal(t, 3, r.Total)
}

func TestWatcher_Prime_SkipsHistory(t *testing.T) {
	w, _, dir := setupWatcher(t, 1024)
	path := filepath.Join(dir, "trader.log")
	appendTo(t, path, tradeLine("2024-01-15 08:00:00"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	require.NoError(t, w.Prime())
	n, err := w.Scan(path)

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NotContains(t, w.offsets, filepath.Join(dir, "notes.txt"))
}

func TestWatcher_Run_RecordsAppendedTrades(t *testing.T) {
	// Arrange
	w, store, dir := setupWatcher(t, 1024)
	path := filepath.Join(dir, "trader.log")
	appendTo(t, path, tradeLine("2024-01-14 08:00:00")) // history, not counted

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	// Act: keep appending until the watcher is up and has picked a line up.
	assert.Eventually(t, func() bool {
		appendTo(t, path, tradeLine("2024-01-15 14:23:00"))
		time.Sleep(20 * time.Millisecond)
		r, _ := store.Daily("2024-01-15")
		return r.Counts[14] >= 1
	}, 5*time.Second, 50*time.Millisecond)

	// Assert
	old, _ := store.Daily("2024-01-14")
	assert.Zero(t, old.Total)

	cancel()
	assert.NoError(t, <-errCh)
}

func rotatedBackup(t *testing.T, dir string) string {
	matches, err := filepath.Glob(filepath.Join(dir, "trader-*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	return matches[0]
}

func TestWatcher_Handle_RotationKeepsOffset(t *testing.T) {
	// Arrange
	w, store, dir := setupWatcher(t, 1024)
	path := filepath.Join(dir, "trader.log")
	lj := &lumberjack.Logger{Filename: path}
	defer lj.Close()
	_, err := lj.Write([]byte(tradeLine("2024-01-15 14:00:00") + tradeLine("2024-01-15 14:05:00")))
	require.NoError(t, err)
	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Write})

	// Act: rotate, then deliver the events a directory watch reports.
	require.NoError(t, lj.Rotate())
	backup := rotatedBackup(t, dir)
	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Rename})
	w.handle(fsnotify.Event{Name: backup, Op: fsnotify.Create})
	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Create})

	_, err = lj.Write([]byte(tradeLine("2024-01-15 15:00:00")))
	require.NoError(t, err)
	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Write})

	// Assert
	r, _ := store.Daily("2024-01-15")
	assert.Equal(t, 2, r.Counts[14])
	assert.Equal(t, 1, r.Counts[15])
	assert.Equal(t, 3, r.Total)
}

func TestWatcher_Handle_RemovedFileIsNotResumed(t *testing.T) {
	w, _, dir := setupWatcher(t, 1024)
	path := filepath.Join(dir, "trader.log")
	appendTo(t, path, tradeLine("2024-01-15 14:00:00"))
	_, err := w.Scan(path)
	require.NoError(t, err)

	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Remove})

	assert.NotContains(t, w.offsets, path)
	assert.Empty(t, w.moved)
}

func TestWatcher_Run_RotationDoesNotRecount(t *testing.T) {
	// Arrange
	w, store, dir := setupWatcher(t, 1024)
	path := filepath.Join(dir, "trader.log")
	lj := &lumberjack.Logger{Filename: path}
	defer lj.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	total := func() int {
		r, _ := store.Daily("2024-01-15")
		return r.Total
	}
	assert.Eventually(t, func() bool {
		_, err := lj.Write([]byte(tradeLine("2024-01-15 14:23:00")))
		require.NoError(t, err)
		time.Sleep(20 * time.Millisecond)
		return total() >= 1
	}, 5*time.Second, 50*time.Millisecond)
	// Let pending notifications drain.
	assert.Eventually(t, func() bool {
		before := total()
		time.Sleep(100 * time.Millisecond)
		return total() == before
	}, 5*time.Second, 10*time.Millisecond)
	before := total()

	// Act
	require.NoError(t, lj.Rotate())
	_, err := lj.Write([]byte(tradeLine("2024-01-15 16:00:00")))
	require.NoError(t, err)

	// Assert: only the trade written after rotation is added.
	assert.Eventually(t, func() bool {
		r, _ := store.Daily("2024-01-15")
		return r.Counts[16] == 1
	}, 5*time.Second, 20*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before+1, total())

	cancel()
	assert.NoError(t, <-errCh)
}
