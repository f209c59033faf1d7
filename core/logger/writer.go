package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// lineWriter hands formatted lines to one goroutine that writes them to every
// sink. The buffer is flushed whenever the queue runs dry.
type lineWriter struct {
	mu     sync.RWMutex
	closed bool
	lines  chan []byte

	fan  *fanout
	out  *bufio.Writer
	done chan struct{}
}

func newLineWriter(sinks []io.Writer, queue int) *lineWriter {
	if queue <= 0 {
		queue = 256
	}
	fan := &fanout{sinks: sinks}
	w := &lineWriter{
		lines: make(chan []byte, queue),
		fan:   fan,
		out:   bufio.NewWriterSize(fan, 32*1024),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *lineWriter) run() {
	defer close(w.done)
	for line := range w.lines {
		_, _ = w.out.Write(line)
		if len(w.lines) == 0 {
			_ = w.out.Flush()
		}
	}
	_ = w.out.Flush()
}

// WriteLine queues a copy of line, blocking while the queue is full.
func (w *lineWriter) WriteLine(line []byte) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.lines <- append([]byte(nil), line...)
	return nil
}

// Close writes out everything queued and reports the first sink failure.
func (w *lineWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.lines)
	}
	w.mu.Unlock()
	<-w.done
	return w.fan.err
}

// fanout writes to every sink and keeps the first failure. A failing sink
// does not stop the others.
type fanout struct {
	sinks []io.Writer
	err   error
}

func (f *fanout) Write(p []byte) (int, error) {
	for _, s := range f.sinks {
		if _, err := s.Write(p); err != nil && f.err == nil {
			f.err = err
		}
	}
	return len(p), nil
}
