package bufpool

import (
	"testing"
)

func TestPool_GetPut(t *testing.T) {
	pool := New(4096)

	buf := pool.Get()
	if len(*buf) != 4096 {
		t.Fatalf("expected length 4096, got %d", len(*buf))
	}
	(*buf)[0] = 0xAB
	pool.Put(buf)

	again := pool.Get()
	if len(*again) != 4096 {
		t.Errorf("expected length 4096 after reuse, got %d", len(*again))
	}
	if pool.Size() != 4096 {
		t.Errorf("Size() = %d, want 4096", pool.Size())
	}
}

func TestPool_ResliceShortened(t *testing.T) {
	pool := New(1024)
	buf := pool.Get()
	*buf = (*buf)[:10]
	pool.Put(buf)

	for i := 0; i < 4; i++ {
		b := pool.Get()
		if len(*b) != 1024 {
			t.Fatalf("Get %d: length %d, want 1024", i, len(*b))
		}
	}
}

func TestPool_DropsUndersized(t *testing.T) {
	pool := New(1024)
	small := make([]byte, 16)
	pool.Put(&small)
	pool.Put(nil)

	b := pool.Get()
	if len(*b) != 1024 {
		t.Errorf("expected a full-size buffer, got %d", len(*b))
	}
}

func TestNew_PanicsOnInvalidSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for zero size")
		}
	}()
	New(0)
}
