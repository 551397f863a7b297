package senses

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sizebot/sizebot/internal/observability"
)

// FileWatcherConfig configures the bulk-file watcher.
type FileWatcherConfig struct {
	// Path is the bulk file to watch. Its directory must exist.
	Path string

	// Command is the payload emitted when the file changes. Default "/update_db".
	Command string

	// Debounce collapses bursts of writes into one event. Default 500ms.
	Debounce time.Duration
}

// FileWatcherSense emits a reload command whenever the bulk file is written
// or replaced. The parent directory is watched so editors that save by
// rename are still seen.
type FileWatcherSense struct {
	cfg FileWatcherConfig
	log *observability.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

// NewFileWatcherSense creates a watcher. log may be nil.
func NewFileWatcherSense(cfg FileWatcherConfig, log *observability.Logger) *FileWatcherSense {
	if cfg.Command == "" {
		cfg.Command = "/update_db"
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if log == nil {
		log = observability.Discard()
	}
	return &FileWatcherSense{
		cfg: cfg,
		log: log.With("sense", "filewatcher"),
	}
}

// Name returns the sense name.
func (fw *FileWatcherSense) Name() string { return "FileWatcher" }

// Start watches until ctx is cancelled.
func (fw *FileWatcherSense) Start(ctx context.Context, out chan<- *UnifiedInput) error {
	fw.mu.Lock()
	if fw.stopped {
		fw.mu.Unlock()
		return fmt.Errorf("filewatcher already stopped")
	}
	ctx, fw.cancel = context.WithCancel(ctx)
	fw.mu.Unlock()

	target, err := filepath.Abs(fw.cfg.Path)
	if err != nil {
		return fmt.Errorf("filewatcher: %w", err)
	}
	dir := filepath.Dir(target)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("filewatcher: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filewatcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("filewatcher: watch %s: %w", dir, err)
	}
	fw.log.Info("watching bulk file", "path", target)

	// The timer only runs while a change is pending.
	debounce := time.NewTimer(fw.cfg.Debounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			fw.log.Debug("bulk file changed", "op", event.Op.String())
			debounce.Reset(fw.cfg.Debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fw.log.Error("watch error", "error", err)

		case <-debounce.C:
			input := NewUnifiedInput(SourceFile, fw.Name(), fw.cfg.Command)
			input.SourceMeta.Sender = "filewatcher"
			input.SourceMeta.Path = target
			select {
			case out <- input:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Send logs the reply; nobody is waiting on a file change.
func (fw *FileWatcherSense) Send(_ context.Context, _ string, reply Reply) error {
	fw.log.Info("reload finished", "reply", reply.Text)
	return nil
}

// Stop cancels a running Start.
func (fw *FileWatcherSense) Stop() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.stopped = true
	if fw.cancel != nil {
		fw.cancel()
	}
	return nil
}
