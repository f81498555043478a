package stats

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher tails log files in a directory and records every trade event
// appended to them.
type Watcher struct {
	dir       string
	files     *regexp.Regexp
	extractor *Extractor
	store     *Store
	window    int64
	logger    *zap.Logger

	mu      sync.Mutex
	offsets map[string]int64
	infos   map[string]os.FileInfo
	moved   []movedFile
}

// movedFile is a tracked file that was renamed away. If it reappears
// under a watched name it resumes from its old offset.
type movedFile struct {
	info   os.FileInfo
	offset int64
}

const maxMoved = 16

// NewWatcher watches files in dir whose path matches filePattern.
func NewWatcher(dir, filePattern string, window int, extractor *Extractor, store *Store, logger *zap.Logger) (*Watcher, error) {
	files, err := regexp.Compile(filePattern)
	if err != nil {
		return nil, fmt.Errorf("compile file pattern: %w", err)
	}
	if window <= 0 {
		window = 1024
	}
	return &Watcher{
		dir:       dir,
		files:     files,
		extractor: extractor,
		store:     store,
		window:    int64(window),
		logger:    logger.Named("log-watcher"),
		offsets:   make(map[string]int64),
		infos:     make(map[string]os.FileInfo),
	}, nil
}

// Prime marks existing matching files as already read so that history is
// not counted again on startup.
func (w *Watcher) Prime() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read log dir: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if e.IsDir() || !w.files.MatchString(path) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		w.offsets[path] = info.Size()
		w.infos[path] = info
	}
	return nil
}

// Run watches the directory until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.Prime(); err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("Watching logs", zap.String("dir", w.dir), zap.String("pattern", w.files.String()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !w.files.MatchString(event.Name) {
		return
	}
	switch {
	case event.Has(fsnotify.Remove):
		w.forget(event.Name, false)
	case event.Has(fsnotify.Rename):
		w.forget(event.Name, true)
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		if event.Has(fsnotify.Create) {
			w.adopt(event.Name)
		}
		if _, err := w.Scan(event.Name); err != nil {
			w.logger.Warn("Failed to read log", zap.String("file", event.Name), zap.Error(err))
		}
	}
}

// forget stops tracking path. A renamed file is remembered so that a
// rotated log keeps its read position under the new name.
func (w *Watcher) forget(path string, renamed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if info, ok := w.infos[path]; ok && renamed {
		w.moved = append(w.moved, movedFile{info: info, offset: w.offsets[path]})
		if len(w.moved) > maxMoved {
			w.moved = w.moved[len(w.moved)-maxMoved:]
		}
	}
	delete(w.offsets, path)
	delete(w.infos, path)
}

// adopt carries the offset of a previously renamed file over to path when
// both name the same file.
func (w *Watcher) adopt(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, m := range w.moved {
		if !os.SameFile(m.info, info) {
			continue
		}
		w.offsets[path] = m.offset
		w.infos[path] = info
		w.moved = append(w.moved[:i], w.moved[i+1:]...)
		w.logger.Debug("Tracking renamed log", zap.String("file", path), zap.Int64("offset", m.offset))
		return
	}
}

// Scan reads what was appended to path since the last scan, limited to
// the trailing window and to complete lines, and records every trade
// event found. It returns the number of events recorded.
func (w *Watcher) Scan(path string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		mtxScans.WithLabelValues("error").Inc()
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		mtxScans.WithLabelValues("error").Inc()
		return 0, err
	}
	size := info.Size()
	w.infos[path] = info

	offset := w.offsets[path]
	if size < offset {
		// Truncated or replaced.
		offset = 0
	}
	start := max(offset, size-w.window)
	if start >= size {
		return 0, nil
	}

	// When earlier bytes are skipped, read one byte before the window to
	// tell whether it starts on a line boundary.
	var lead int64
	if start > offset {
		lead = 1
	}
	buf := make([]byte, size-start+lead)
	if _, err := f.ReadAt(buf, start-lead); err != nil && err != io.EOF {
		mtxScans.WithLabelValues("error").Inc()
		return 0, err
	}
	mtxScans.WithLabelValues("ok").Inc()

	end := bytes.LastIndexByte(buf, '\n')
	if end < int(lead) {
		return 0, nil
	}
	chunk := buf[:end+1]
	if lead > 0 {
		// Drop the partial line at the front of the window.
		chunk = chunk[bytes.IndexByte(chunk, '\n')+1:]
	}
	w.offsets[path] = start - lead + int64(end) + 1

	recorded := 0
	for _, ts := range w.extractor.Extract(string(chunk)) {
		if err := w.store.Record(ts); err != nil {
			w.logger.Error("Failed to persist trade stats", zap.Error(err))
			continue
		}
		recorded++
	}
	return recorded, nil
}
