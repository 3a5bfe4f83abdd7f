package hal

import (
	"io"
	"os"
	"sync"
)

// WriterLogger adapts an io.Writer into a Logger.
type WriterLogger struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterLogger creates a Logger writing lines to w.
func NewWriterLogger(w io.Writer) *WriterLogger {
	return &WriterLogger{w: w}
}

// NewStderrLogger creates a Logger writing lines to stderr.
func NewStderrLogger() *WriterLogger {
	return NewWriterLogger(os.Stderr)
}

func (l *WriterLogger) WriteLineString(s string) {
	l.WriteLineBytes([]byte(s))
}

func (l *WriterLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.w.Write(b)
	_, _ = l.w.Write([]byte{'\n'})
}
