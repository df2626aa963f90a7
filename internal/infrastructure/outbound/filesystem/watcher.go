package filesystem

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sophialabs/stubkit/internal/infrastructure/ports"
)

// DefaultDebounce is the quiet period used when NewWatcher gets d <= 0.
const DefaultDebounce = 200 * time.Millisecond

// ChangeFunc receives the root-relative, slash-separated paths that changed
// during one debounce window, sorted.
type ChangeFunc func(changed []string)

// Watcher watches a stub root and calls its ChangeFunc once edits settle.
// Directories created later are picked up; hidden ones are never watched.
type Watcher struct {
	rootDir  string
	debounce time.Duration
	logger   ports.Logger
	fsw      *fsnotify.Watcher
	onChange ChangeFunc

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWatcher creates a watcher over every non-hidden directory below rootDir.
func NewWatcher(rootDir string, debounce time.Duration, logger ports.Logger, onChange ChangeFunc) (*Watcher, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", rootDir, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		rootDir:  absRoot,
		debounce: debounce,
		logger:   logger,
		fsw:      fsw,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	if err := w.watchTree(absRoot); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Start runs the event loop in a goroutine.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop ends the event loop and waits for it. A ChangeFunc already running
// finishes first. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fsw.Close()
	})
	w.wg.Wait()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) && w.isNewDir(event.Name) {
				continue
			}
			rel, ok := w.relevant(event.Name)
			if !ok {
				continue
			}
			w.logger.Debug("file change detected", "file", rel, "op", event.Op.String())
			pending[rel] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			slices.Sort(changed)
			clear(pending)
			w.onChange(changed)
		}
	}
}

// isNewDir starts watching name when it is a freshly created directory.
func (w *Watcher) isNewDir(name string) bool {
	info, err := os.Stat(name)
	if err != nil || !info.IsDir() {
		return false
	}
	if err := w.watchTree(name); err != nil {
		w.logger.Warn("failed to watch new directory", "dir", name, "error", err)
	}
	return true
}

func (w *Watcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.rootDir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// relevant reports whether a change to name can alter the loaded stubs and
// returns its root-relative path. Stub files count anywhere outside hidden
// directories, as does any file below BodyDir.
func (w *Watcher) relevant(name string) (string, bool) {
	rel, err := filepath.Rel(w.rootDir, name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	parts := strings.Split(rel, "/")
	for _, p := range parts {
		if strings.HasPrefix(p, ".") {
			return "", false
		}
	}
	if strings.HasSuffix(rel, "~") {
		return "", false
	}
	if len(parts) > 1 && parts[0] == BodyDir {
		return rel, true
	}
	return rel, IsStubFile(name)
}
