package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotatingFileWriter is an io.Writer over a single log file that renames the
// current file aside and opens a fresh one once it crosses maxBytes,
// matching spec 4.B's "rotating file" sink. No pack example or ecosystem
// rotator (e.g. lumberjack) is vendored here — see DESIGN.md: this is the
// one corner of the logging stack built directly on os.OpenFile rather
// than a third-party library, because none of the retrieved repos import
// one.
type RotatingFileWriter struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	backups  int

	f    *os.File
	size int64
}

// NewRotatingFileWriter opens (creating if absent) path, rotating once it
// exceeds maxBytes and keeping at most backups old generations
// (path.1, path.2, ...).
func NewRotatingFileWriter(path string, maxBytes int64, backups int) (*RotatingFileWriter, error) {
	w := &RotatingFileWriter{path: path, maxBytes: maxBytes, backups: backups}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingFileWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("log: creating log directory: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("log: opening %s: %w", w.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("log: stat %s: %w", w.path, err)
	}
	w.f = f
	w.size = info.Size()
	return nil
}

// Write appends p, rotating first if it would push the file past maxBytes.
func (w *RotatingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.maxBytes > 0 && w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotateLocked(); err != nil {
			return 0, err
		}
	}

	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingFileWriter) rotateLocked() error {
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("log: closing %s for rotation: %w", w.path, err)
	}

	for i := w.backups; i > 0; i-- {
		older := fmt.Sprintf("%s.%d", w.path, i)
		newer := w.path
		if i > 1 {
			newer = fmt.Sprintf("%s.%d", w.path, i-1)
		}
		if _, err := os.Stat(newer); err == nil {
			_ = os.Rename(newer, older)
		}
	}

	return w.open()
}

// Close closes the underlying file.
func (w *RotatingFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}
