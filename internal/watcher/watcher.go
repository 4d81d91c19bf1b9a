// Package watcher watches inbox directories for record batch files with
// fsnotify and hands each settled file to a callback.
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

const defaultDebounce = 400 * time.Millisecond

// Handler processes one batch file. It runs on the watcher's timer goroutines.
type Handler func(ctx context.Context, path string)

// fileStamp identifies a file version; a file is handed over again only when it changes.
type fileStamp struct {
	size    int64
	modTime time.Time
}

// Inbox watches directories and invokes a Handler when a matching file settles.
type Inbox struct {
	roots      []string
	extensions []string
	recursive  bool
	handle     Handler
	debounce   time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	ctx      context.Context
	pending  map[string]*time.Timer
	seen     map[string]fileStamp
	started  bool
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(in *Inbox) { in.logger = l }
}

// WithDebounce sets how long a file must stay quiet before it is handled.
func WithDebounce(d time.Duration) Option {
	return func(in *Inbox) {
		if d > 0 {
			in.debounce = d
		}
	}
}

// NewInbox creates an inbox over roots. extensions filter which files are
// handled (empty = all).
func NewInbox(roots, extensions []string, recursive bool, handle Handler, opts ...Option) *Inbox {
	in := &Inbox{
		roots:      append([]string(nil), roots...),
		extensions: extensions,
		recursive:  recursive,
		handle:     handle,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		pending:    make(map[string]*time.Timer),
		seen:       make(map[string]fileStamp),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Start creates missing roots, begins watching and runs until ctx is
// cancelled or Stop is called.
func (in *Inbox) Start(ctx context.Context) error {
	in.mu.Lock()
	if in.started {
		in.mu.Unlock()
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		in.mu.Unlock()
		return err
	}
	for _, root := range in.roots {
		if err := in.watchRoot(w, root); err != nil {
			_ = w.Close()
			in.mu.Unlock()
			return err
		}
	}
	in.watcher = w
	in.ctx = ctx
	in.started = true
	in.mu.Unlock()

	in.logger.Debug("Inbox watching",
		zap.Strings("roots", in.roots),
		zap.Strings("extensions", in.extensions),
		zap.Bool("recursive", in.recursive))
	go in.run(ctx, w)
	return nil
}

func (in *Inbox) watchRoot(w *fsnotify.Watcher, root string) error {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	if !in.recursive {
		return w.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

func (in *Inbox) run(ctx context.Context, w *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			in.Stop()
			return
		case <-in.done:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			in.handleEvent(w, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			in.logger.Debug("Inbox watcher error", zap.Error(err))
		}
	}
}

func (in *Inbox) handleEvent(w *fsnotify.Watcher, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if in.recursive && in.underRoot(ev.Name) {
			if err := in.watchRoot(w, ev.Name); err != nil {
				in.logger.Debug("Inbox failed to watch directory", zap.String("path", ev.Name), zap.Error(err))
			}
			in.syncDirectory(ev.Name)
		}
		return
	}
	if matchExtension(ev.Name, in.extensions) {
		in.schedule(ev.Name)
	}
}

// schedule (re)arms the debounce timer for path.
func (in *Inbox) schedule(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.started {
		return
	}
	if t, ok := in.pending[path]; ok {
		t.Stop()
	}
	in.pending[path] = time.AfterFunc(in.debounce, func() { in.fire(path) })
}

func (in *Inbox) fire(path string) {
	in.mu.Lock()
	delete(in.pending, path)
	ctx := in.ctx
	in.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if !in.changed(path) {
		return
	}
	in.logger.Debug("Inbox handling file", zap.String("path", path))
	in.handle(ctx, path)
}

// changed records the file's current stamp and reports whether it differs
// from the last one handled.
func (in *Inbox) changed(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	stamp := fileStamp{size: info.Size(), modTime: info.ModTime()}
	in.mu.Lock()
	defer in.mu.Unlock()
	if prev, ok := in.seen[path]; ok && prev == stamp {
		return false
	}
	in.seen[path] = stamp
	return true
}

// Sync hands over every matching file already present under the roots.
// Files handled before and unchanged since are skipped.
func (in *Inbox) Sync() {
	for _, root := range in.Directories() {
		in.syncDirectory(root)
	}
}

func (in *Inbox) syncDirectory(root string) {
	in.mu.Lock()
	ctx := in.ctx
	in.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && !in.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if matchExtension(path, in.extensions) && in.changed(path) {
			in.logger.Debug("Inbox syncing file", zap.String("path", path))
			in.handle(ctx, path)
		}
		return nil
	})
}

// Directories returns a copy of the watched roots.
func (in *Inbox) Directories() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]string(nil), in.roots...)
}

// Stop stops watching and cancels pending handlers.
func (in *Inbox) Stop() {
	in.mu.Lock()
	if !in.started {
		in.mu.Unlock()
		return
	}
	for path, t := range in.pending {
		t.Stop()
		delete(in.pending, path)
	}
	_ = in.watcher.Close()
	in.watcher = nil
	in.started = false
	in.mu.Unlock()
	in.stopOnce.Do(func() { close(in.done) })
}

func (in *Inbox) underRoot(path string) bool {
	clean := filepath.Clean(path)
	for _, root := range in.Directories() {
		if inDir(filepath.Clean(root), clean) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
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
