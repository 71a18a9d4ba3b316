package orchestrator

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonathan/partner-intake/internal/logging"
	"github.com/jonathan/partner-intake/internal/signature"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultDebounce lets a partner finish writing a file before it is read.
const DefaultDebounce = 500 * time.Millisecond

// EventWatcher is the event-driven strategy. It watches the uploads root recursively and drives the
// owning partner's runs once a file has been quiet for the debounce window.
type EventWatcher struct {
	loop     *Loop
	root     string
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]time.Time
}

// NewEventWatcher creates an EventWatcher on the loop's uploads root.
func NewEventWatcher(loop *Loop, debounce time.Duration, logger *zap.Logger) *EventWatcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &EventWatcher{
		loop:     loop,
		root:     loop.UploadsRoot(),
		debounce: debounce,
		logger:   logging.OrNop(logger),
		pending:  make(map[string]time.Time),
	}
}

// Run watches until ctx is done. Files already present are handled by an initial sweep of every run.
func (w *EventWatcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		if err := fw.Close(); err != nil {
			w.logger.Warn("failed to close file watcher", zap.Error(err))
		}
	}()
	if err := w.addRecursive(fw, w.root, false); err != nil {
		return err
	}
	w.logger.Info("watching partner uploads", zap.String("root", w.root), zap.Duration("debounce", w.debounce))

	if err := w.loop.Tick(ctx); err != nil && ctx.Err() == nil {
		w.logger.Warn("initial sweep finished with errors", zap.Error(err))
	}

	settled := make(chan string, 64)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(settled)
		return w.pump(gctx, fw, settled)
	})
	g.Go(func() error {
		for path := range settled {
			if gctx.Err() != nil {
				continue
			}
			if err := w.loop.HandleFile(gctx, path); err != nil && gctx.Err() == nil {
				w.logger.Warn("upload handling finished with errors", zap.String("path", path), zap.Error(err))
			}
		}
		return nil
	})
	err = g.Wait()
	w.logger.Info("watcher stopped")
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// pump records file events and releases each path once it has been quiet for the debounce window.
func (w *EventWatcher) pump(ctx context.Context, fw *fsnotify.Watcher, settled chan<- string) error {
	ticker := time.NewTicker(w.debounce / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fw, event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		case <-ticker.C:
			for _, path := range w.due() {
				select {
				case settled <- path:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func (w *EventWatcher) handleEvent(fw *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if err := w.addRecursive(fw, event.Name, true); err != nil {
			w.logger.Warn("failed to watch new folder", zap.String("path", event.Name), zap.Error(err))
		}
		return
	}
	if signature.IgnoredName(event.Name) {
		return
	}
	w.logger.Debug("upload event", zap.String("path", event.Name), zap.String("op", event.Op.String()))

	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// due removes and returns the paths whose last event is older than the debounce window.
func (w *EventWatcher) due() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	var out []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			out = append(out, path)
			delete(w.pending, path)
		}
	}
	return out
}

// addRecursive watches dir and every folder below it. With queue set, files already inside get a
// synthetic event so a folder created together with its first upload is not missed.
func (w *EventWatcher) addRecursive(fw *fsnotify.Watcher, dir string, queue bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		if queue && !signature.IgnoredName(path) {
			w.mu.Lock()
			w.pending[path] = time.Now()
			w.mu.Unlock()
		}
		return nil
	})
}
