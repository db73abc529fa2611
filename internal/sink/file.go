package sink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"keytally/internal/store"
)

// File appends one combo per line to a plain text file. When the file is
// removed or renamed by an external rotator, it is reopened at the same
// path so later entries land in a fresh file.
type File struct {
	path string
	log  *slog.Logger

	mu      sync.Mutex
	f       *os.File
	closed  bool
	watcher *fsnotify.Watcher
	done    chan struct{}

	// reopened is signalled after every reopen; used by tests.
	reopened chan struct{}
}

// OpenFile opens path for appending and starts watching its directory.
func OpenFile(path string, log *slog.Logger) (*File, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		f.Close()
		return nil, fmt.Errorf("watch directory: %w", err)
	}

	fs := &File{
		path:     path,
		log:      log,
		f:        f,
		watcher:  watcher,
		done:     make(chan struct{}),
		reopened: make(chan struct{}, 1),
	}
	go fs.watchLoop()
	return fs, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open key log file: %w", err)
	}
	return f, nil
}

func (fs *File) watchLoop() {
	defer close(fs.done)
	base := filepath.Base(fs.path)

	for {
		select {
		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := fs.reopen(); err != nil {
				fs.log.Error("reopen key log file", "path", fs.path, "error", err)
				continue
			}
			fs.log.Info("key log file moved, reopened", "path", fs.path, "op", event.Op.String())

		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			fs.log.Warn("key log file watcher error", "error", err)
		}
	}
}

func (fs *File) reopen() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return nil
	}

	f, err := openAppend(fs.path)
	if err != nil {
		return err
	}
	fs.f.Close()
	fs.f = f

	select {
	case fs.reopened <- struct{}{}:
	default:
	}
	return nil
}

// Append writes the combo followed by a newline.
func (fs *File) Append(ctx context.Context, e store.Entry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return ErrClosed
	}
	if _, err := fs.f.WriteString(e.Combo + "\n"); err != nil {
		return fmt.Errorf("write key log file: %w", err)
	}
	return nil
}

// Path returns the file path.
func (fs *File) Path() string {
	return fs.path
}

// Close stops watching and closes the file.
func (fs *File) Close() error {
	fs.mu.Lock()
	if fs.closed {
		fs.mu.Unlock()
		return nil
	}
	fs.closed = true
	err := fs.f.Close()
	fs.mu.Unlock()

	fs.watcher.Close()
	<-fs.done
	return err
}

func (fs *File) String() string {
	return "file:" + fs.path
}

// Writer writes one line per entry to w, optionally prefixed with the
// entry time. It does not close w.
type Writer struct {
	mu       sync.Mutex
	w        io.Writer
	withTime bool
	closed   bool
}

// NewWriter returns a sink writing combos to w.
func NewWriter(w io.Writer, withTime bool) *Writer {
	return &Writer{w: w, withTime: withTime}
}

// Append writes e as a line.
func (ws *Writer) Append(ctx context.Context, e store.Entry) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.closed {
		return ErrClosed
	}
	line := e.Combo + "\n"
	if ws.withTime {
		line = e.TimeString() + "\t" + line
	}
	if _, err := io.WriteString(ws.w, line); err != nil {
		return fmt.Errorf("write key log: %w", err)
	}
	return nil
}

// Close marks the sink closed.
func (ws *Writer) Close() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.closed = true
	return nil
}

func (ws *Writer) String() string {
	return "writer"
}
