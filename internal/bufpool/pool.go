// Package bufpool recycles the fixed-size chunk buffers used to move upload
// bodies from the network to disk.
package bufpool

import (
	"sync"
)

// Pool hands out buffers of exactly Size bytes. Buffers travel as *[]byte so
// Put does not allocate.
type Pool struct {
	pool sync.Pool
	size int
}

// New creates a pool of size-byte buffers.
func New(size int) *Pool {
	if size <= 0 {
		panic("bufpool: size must be positive")
	}
	p := &Pool{size: size}
	p.pool.New = func() any {
		buf := make([]byte, size)
		return &buf
	}
	return p
}

// Get returns a buffer of exactly Size bytes.
func (p *Pool) Get() *[]byte {
	buf := p.pool.Get().(*[]byte)
	if cap(*buf) < p.size {
		fresh := make([]byte, p.size)
		return &fresh
	}
	*buf = (*buf)[:p.size]
	return buf
}

// Put recycles buf. Buffers smaller than Size are dropped.
func (p *Pool) Put(buf *[]byte) {
	if buf == nil || cap(*buf) < p.size {
		return
	}
	p.pool.Put(buf)
}

// Size returns the buffer length handed out by Get.
func (p *Pool) Size() int {
	return p.size
}
