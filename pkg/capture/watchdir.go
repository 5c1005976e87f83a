package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kansoai/interviewkit/pkg/media"
	"github.com/kansoai/interviewkit/pkg/media/wav"
)

// settleDelay gives the writer time to finish a dropped file before we
// open it.
const settleDelay = 200 * time.Millisecond

// WatchDir is a StreamingCapture fed by a drop folder: every WAV file
// created in the watched directory is read and streamed as capture
// frames. Used by the console interview mode, where "speaking" means
// dropping a recording into the folder.
type WatchDir struct {
	dir    string
	logger *slog.Logger

	frames  chan media.Frame
	muted   atomic.Bool
	watcher *fsnotify.Watcher

	closeOnce sync.Once
	done      chan struct{}
}

// NewWatchDir creates a watch-dir source for dir. The directory is
// created if missing.
func NewWatchDir(dir string, logger *slog.Logger) (*WatchDir, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &WatchDir{
		dir:    dir,
		logger: logger,
		frames: make(chan media.Frame, 64),
		done:   make(chan struct{}),
	}, nil
}

// Start begins watching the directory. Files already present are not
// replayed; only new drops count.
func (w *WatchDir) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	w.watcher = watcher

	go w.loop(ctx)
	return nil
}

func (w *WatchDir) loop(ctx context.Context) {
	defer close(w.frames)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".wav") {
				continue
			}
			w.streamFile(ctx, event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "dir", w.dir, "error", err)
		}
	}
}

func (w *WatchDir) streamFile(ctx context.Context, name string) {
	select {
	case <-time.After(settleDelay):
	case <-ctx.Done():
		return
	case <-w.done:
		return
	}

	reader, err := wav.Open(name)
	if err != nil {
		w.logger.Warn("skipping unreadable drop", "file", name, "error", err)
		return
	}
	defer reader.Close()

	frames, err := reader.ReadFrames()
	if err != nil {
		w.logger.Warn("skipping malformed drop", "file", name, "error", err)
		return
	}

	w.logger.Info("streaming dropped recording", "file", filepath.Base(name), "frames", len(frames))
	for _, frame := range frames {
		if w.muted.Load() {
			continue
		}
		select {
		case w.frames <- frame:
		case <-ctx.Done():
			return
		case <-w.done:
			return
		}
	}
}

// Frames returns the capture frame channel.
func (w *WatchDir) Frames() <-chan media.Frame {
	return w.frames
}

// SetMuted drops frames from subsequent file streams while muted. The
// watcher itself keeps running.
func (w *WatchDir) SetMuted(muted bool) {
	w.muted.Store(muted)
}

// Close stops watching and closes the frame channel.
func (w *WatchDir) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		if w.watcher != nil {
			err = w.watcher.Close()
		}
	})
	return err
}
