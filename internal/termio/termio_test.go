package termio

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWriterKeepsLinesWhole(t *testing.T) {
	var out lockedBuffer
	w := NewWriter(&out)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fmt.Fprintf(w, "file-%02d done\n", i)
		}(i)
	}
	wg.Wait()
	if !w.Flush(time.Second) {
		t.Fatal("flush timed out")
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 20 {
		t.Fatalf("expected 20 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "file-") || !strings.HasSuffix(line, " done") {
			t.Fatalf("interleaved line %q", line)
		}
	}
}

func TestWriterCopiesInput(t *testing.T) {
	var out lockedBuffer
	w := NewWriter(&out)
	p := []byte("abc")
	if n, err := w.Write(p); n != 3 || err != nil {
		t.Fatalf("Write = %d, %v", n, err)
	}
	p[0] = 'x'
	w.Flush(time.Second)
	if got := out.String(); got != "abc" {
		t.Fatalf("got %q", got)
	}
}
