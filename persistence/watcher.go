package persistence

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zenithlab/zenith/kernel"
)

// Reload carries the outcome of a watcher-triggered reload. Err is non-nil
// when the changed file failed validation; Kernel is nil in that case.
type Reload struct {
	Kernel *kernel.Kernel
	Path   string
	Err    error
}

// Watcher reloads a kernel file whenever it changes on disk. It watches the
// containing directory rather than the file itself so that atomic
// rename-over-destination writes are observed.
type Watcher struct {
	Reloads <-chan Reload

	store   *Store
	path    string
	logger  *slog.Logger
	current atomic.Pointer[kernel.Kernel]

	reloads chan Reload
	done    chan struct{}
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for the kernel file at path, loading the
// current contents eagerly so Current never returns nil after a successful
// construction.
func NewWatcher(store *Store, path string) (*Watcher, error) {
	k, err := store.Read(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("persistence: watcher: %w", err)
	}

	ch := make(chan Reload, 4)
	w := &Watcher{
		Reloads: ch,
		store:   store,
		path:    filepath.Clean(path),
		logger:  store.opts.Logger,
		reloads: ch,
		done:    make(chan struct{}),
		watcher: fw,
	}
	w.current.Store(k)
	return w, nil
}

// Start begins watching the kernel's directory for changes.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("persistence: watcher: %w", err)
	}
	go w.loop()
	return nil
}

// Current returns the most recently loaded valid kernel.
func (w *Watcher) Current() *kernel.Kernel {
	return w.current.Load()
}

// Stop closes the watcher and the Reloads channel.
func (w *Watcher) Stop() {
	w.watcher.Close()
	<-w.done
	close(w.reloads)
}

func (w *Watcher) loop() {
	defer close(w.done)

	// Debounce bursts: an atomic publish produces create+rename pairs.
	const debounce = 50 * time.Millisecond
	var pending time.Time
	ticker := time.NewTicker(debounce)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				if !pending.IsZero() {
					w.reload()
				}
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.Now()
			}

		case _, ok := <-ticker.C:
			if !ok {
				return
			}
			if !pending.IsZero() && time.Since(pending) >= debounce {
				pending = time.Time{}
				w.reload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("kernel watch error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) reload() {
	k, err := w.store.Read(w.path)
	if err != nil {
		// Keep serving the previous kernel on a bad reload.
		w.logger.Warn("kernel reload rejected", slog.String("path", w.path), slog.Any("error", err))
		w.emit(Reload{Path: w.path, Err: err})
		return
	}

	w.current.Store(k)
	w.logger.Info("kernel reloaded",
		slog.String("path", w.path),
		slog.Float64("base_epoch", k.Header.BaseEpoch))
	w.emit(Reload{Kernel: k, Path: w.path})
}

func (w *Watcher) emit(r Reload) {
	select {
	case w.reloads <- r:
	default:
		// Drop if nobody is draining; Current still advances.
	}
}
