package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const defaultMaxSizeMB = 20

// RotatingWriter appends to a log file and rotates it by size. Rotated
// files are gzipped and pruned down to a bounded set, so a long-lived
// dot directory never fills with driver logs.
type RotatingWriter struct {
	path     string
	maxBytes int64
	keep     int

	file *os.File
	size int64
}

// NewRotatingWriter opens path for appending, creating parent
// directories as needed. keep <= 0 disables pruning.
func NewRotatingWriter(path string, maxSizeMB, keep int) (*RotatingWriter, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = defaultMaxSizeMB
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}

	return &RotatingWriter{
		path:     path,
		maxBytes: int64(maxSizeMB) * 1024 * 1024,
		keep:     keep,
		file:     file,
		size:     info.Size(),
	}, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	if w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the current log file
func (w *RotatingWriter) Close() error {
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	// Nanosecond suffixes keep back-to-back rotations from colliding.
	rotated := fmt.Sprintf("%s.%d", w.path, time.Now().UnixNano())
	if err := os.Rename(w.path, rotated); err != nil {
		return err
	}
	// Best effort; the uncompressed file stays behind on failure.
	_ = compressFile(rotated)
	w.prune()

	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	w.file = file
	w.size = 0
	return nil
}

// prune removes rotated files beyond the keep budget. Suffixes are
// nanosecond timestamps, so lexical order is age order.
func (w *RotatingWriter) prune() {
	if w.keep <= 0 {
		return
	}

	matches, err := filepath.Glob(w.path + ".*")
	if err != nil || len(matches) <= w.keep {
		return
	}

	sort.Strings(matches)
	for _, path := range matches[:len(matches)-w.keep] {
		os.Remove(path)
	}
}

func compressFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}

	gzw := gzip.NewWriter(dst)
	if _, err := io.Copy(gzw, src); err != nil {
		gzw.Close()
		dst.Close()
		return err
	}
	if err := gzw.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}
