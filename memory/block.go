package memory

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// Block is a reference counted piece of memory shared between the CPU side and asynchronous jobs.
// It is created holding a single reference and released once the last reference is dropped.
type Block struct {
	data     []byte
	refCount atomic.Int32
	release  func(block *Block)
}

// NewBlock wraps data in a Block holding one reference. release is called once, when the final
// reference is dropped, and may be nil.
func NewBlock(data []byte, release func(block *Block)) *Block {
	block := &Block{
		data:    data,
		release: release,
	}
	block.refCount.Store(1)

	return block
}

func (b *Block) Size() int {
	return len(b.data)
}

func (b *Block) Bytes() []byte {
	return b.data
}

func (b *Block) RefCount() int {
	return int(b.refCount.Load())
}

func (b *Block) AddRef() {
	if b.refCount.Add(1) <= 1 {
		panic(errors.New("attempted to add a reference to a released block"))
	}
}

// Deref drops a reference and releases the block if it was the last one
func (b *Block) Deref() {
	remaining := b.refCount.Add(-1)
	if remaining < 0 {
		panic(errors.Newf("block reference count went negative: %d", remaining))
	}

	if remaining == 0 && b.release != nil {
		b.release(b)
	}
}

// CopyFrom copies size bytes at offset from src into the same range of this block
func (b *Block) CopyFrom(src *Block, offset, size int) error {
	if offset < 0 || size < 0 || offset+size > len(b.data) || offset+size > len(src.data) {
		return errors.Newf("copy range [%d, %d) is outside of the block", offset, offset+size)
	}

	copy(b.data[offset:offset+size], src.data[offset:offset+size])
	return nil
}
