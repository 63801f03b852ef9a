// Package bufpool provides byte-slice pooling for the hot path of packet
// decode/encode and onion-layer re-encryption, avoiding a fresh
// allocation per UDP datagram under load.
package bufpool

import "sync"

// Pool is a fixed-size buffer pool; Get returns a slice of exactly Size
// bytes length, Put returns one for reuse.
type Pool struct {
	pool sync.Pool
	size int
}

// New creates a pool of buffers of the given size.
func New(size int) *Pool {
	return &Pool{
		pool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		},
		size: size,
	}
}

// Get retrieves a buffer from the pool, allocating a fresh one if the
// pool is empty or returns an unexpected type.
func (p *Pool) Get() []byte {
	obj := p.pool.Get()
	bufPtr, ok := obj.(*[]byte)
	if !ok {
		return make([]byte, p.size)
	}
	return (*bufPtr)[:p.size]
}

// Put returns buf to the pool. Buffers smaller than the pool's size are
// discarded rather than pooled.
func (p *Pool) Put(buf []byte) {
	if cap(buf) < p.size {
		return
	}
	buf = buf[:p.size]
	p.pool.Put(&buf)
}

// MaxUDPPacket is the largest datagram the reader will accept, matching
// the largest onion-wrapped packet the dispatch table names.
const MaxUDPPacket = 2048

// Packets is a pool of MaxUDPPacket-sized buffers for the UDP read loop.
var Packets = New(MaxUDPPacket)
