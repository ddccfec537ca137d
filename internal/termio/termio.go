// Package termio serializes console output from concurrent uploads so lines
// from different files never interleave mid-line.
package termio

import (
	"io"
	"os"
	"sync"
	"time"
)

// Writer queues whole writes and emits them in order from one goroutine.
type Writer struct {
	out     io.Writer
	ch      chan []byte
	pending sync.WaitGroup
}

// NewWriter starts a queued writer on out.
func NewWriter(out io.Writer) *Writer {
	w := &Writer{out: out, ch: make(chan []byte, 1024)}
	go w.loop()
	return w
}

func (w *Writer) loop() {
	for buf := range w.ch {
		_, _ = w.out.Write(buf)
		w.pending.Done()
	}
}

// Write copies p and queues it. It never reports a short write.
func (w *Writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	w.pending.Add(1)
	w.ch <- buf
	return len(p), nil
}

// Flush waits up to timeout for queued writes to reach the underlying writer
// and reports whether they did.
func (w *Writer) Flush(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		w.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

var (
	once   sync.Once
	stdout *Writer
	stderr *Writer
)

func initStd() {
	once.Do(func() {
		stdout = NewWriter(os.Stdout)
		stderr = NewWriter(os.Stderr)
	})
}

func Stdout() *Writer {
	initStd()
	return stdout
}

func Stderr() *Writer {
	initStd()
	return stderr
}

// FlushAll drains stdout and stderr before the process exits.
func FlushAll() {
	initStd()
	stdout.Flush(time.Second)
	stderr.Flush(time.Second)
}
