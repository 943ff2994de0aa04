package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"rental_scrooper/models"
)

const DefaultMaxSize = 2 * 1024 * 1024 // 2MB

// RotatingWriter appends to a log file and keeps a single ".1" backup once
// the file grows past maxSize.
type RotatingWriter struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	size    int64
	maxSize int64
}

// Setup tees the standard logger to stdout and a rotating file at logPath.
func Setup(logPath string) (*RotatingWriter, error) {
	rw, err := NewRotatingWriter(logPath, DefaultMaxSize)
	if err != nil {
		return nil, err
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rw))
	return rw, nil
}

func NewRotatingWriter(logPath string, maxSize int64) (*RotatingWriter, error) {
	if dir := filepath.Dir(logPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}

	// Start fresh if an old file is already over the cap
	if info, err := os.Stat(logPath); err == nil && info.Size() > maxSize {
		os.Truncate(logPath, 0)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	var size int64
	if info, _ := f.Stat(); info != nil {
		size = info.Size()
	}

	return &RotatingWriter{
		file:    f,
		path:    logPath,
		size:    size,
		maxSize: maxSize,
	}, nil
}

func (w *RotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err = w.file.Write(p)
	w.size += int64(n)

	if w.size > w.maxSize {
		w.rotate()
	}

	return n, err
}

func (w *RotatingWriter) rotate() {
	w.file.Close()
	os.Rename(w.path, w.path+".1")

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return
	}

	w.file = f
	w.size = 0
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

var minLevel atomic.Int32

// SetLevel drops messages below level. Unknown names fall back to info.
func SetLevel(level string) {
	l, err := models.ParseLogLevel(level)
	if err != nil {
		l = models.LogLevelInfo
	}
	minLevel.Store(l.Severity())
}

func Enabled(level models.LogLevel) bool {
	return level.Severity() >= minLevel.Load()
}

// Logf writes a "[level] message" line through the standard logger.
func Logf(level models.LogLevel, format string, args ...interface{}) {
	if !Enabled(level) {
		return
	}
	log.Output(2, fmt.Sprintf("[%s] ", level)+fmt.Sprintf(format, args...))
}

func Infof(format string, args ...interface{}) {
	if Enabled(models.LogLevelInfo) {
		log.Output(2, "[info] "+fmt.Sprintf(format, args...))
	}
}

func Warnf(format string, args ...interface{}) {
	if Enabled(models.LogLevelWarn) {
		log.Output(2, "[warn] "+fmt.Sprintf(format, args...))
	}
}

func Errorf(format string, args ...interface{}) {
	if Enabled(models.LogLevelError) {
		log.Output(2, "[error] "+fmt.Sprintf(format, args...))
	}
}
