// Package watcher watches spool directories for arriving transcript files
// and hands debounced paths to a callback.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Transcript uploads land in chunks; debounce until the writer goes quiet.
const defaultDebounce = 2 * time.Second

// Watcher watches spool directories and invokes onTranscript once per
// settled file matching the configured extensions.
type Watcher struct {
	dirs         []string
	extensions   []string
	onTranscript func(path string)
	debounce     time.Duration
	watcher      *fsnotify.Watcher
	logger       *zap.Logger

	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the settle interval.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New creates a watcher over the given spool directories. extensions filter
// which files fire the callback (empty = all).
func New(dirs []string, extensions []string, onTranscript func(path string), logger *zap.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		dirs:         dirs,
		extensions:   extensions,
		onTranscript: onTranscript,
		debounce:     defaultDebounce,
		debounceMap:  make(map[string]*time.Timer),
		done:         make(chan struct{}),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. Missing spool directories are created. The watcher
// runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = fsw
	w.started = true
	w.logger.Debug("watcher starting",
		zap.Strings("dirs", w.dirs),
		zap.Strings("extensions", w.extensions),
	)
	for _, dir := range w.dirs {
		if err := w.addDirLocked(dir); err != nil {
			_ = w.watcher.Close()
			w.watcher = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
	}
	w.mu.Unlock()
	go w.run(ctx, fsw)
	return nil
}

// run owns its own reference to the fsnotify watcher; Stop nils w.watcher
// under the lock, so the loop must never reach through the struct field.
func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	switch ev.Op {
	case fsnotify.Create, fsnotify.Write:
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return
		}
		if w.matchExtension(path) {
			w.logger.Debug("watcher event",
				zap.String("op", ev.Op.String()), zap.String("path", path))
			w.debounceTranscript(path)
		}
	case fsnotify.Remove, fsnotify.Rename:
		// A transcript pulled out of the spool before settling is simply
		// never processed.
		w.cancelDebounce(path)
	}
}

func (w *Watcher) matchExtension(path string) bool {
	return matchExtension(path, w.extensions)
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) debounceTranscript(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	t := time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.logger.Debug("transcript settled", zap.String("path", path))
		if w.onTranscript != nil {
			w.onTranscript(path)
		}
	})
	w.debounceMap[path] = t
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

func (w *Watcher) addDirLocked(dir string) error {
	dir = filepath.Clean(dir)
	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return w.watcher.Add(dir)
}

// SyncExistingFiles fires the callback for files already sitting in the
// spool. Call after Start to pick up transcripts that arrived while the
// process was down.
func (w *Watcher) SyncExistingFiles() {
	w.mu.Lock()
	dirs := append([]string(nil), w.dirs...)
	exts := append([]string(nil), w.extensions...)
	onTranscript := w.onTranscript
	w.mu.Unlock()
	for _, dir := range dirs {
		filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			if matchExtension(path, exts) {
				w.logger.Debug("existing transcript found", zap.String("path", path))
				if onTranscript != nil {
					onTranscript(path)
				}
			}
			return nil
		})
	}
}

// Directories returns a copy of the watched spool directories.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.dirs...)
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
