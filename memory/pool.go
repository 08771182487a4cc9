package memory

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/tiler/memutils"
)

// Pool is a linear allocator for memory that lives exactly as long as one frame. Allocations are only
// possible while the pool is mapped and are all released together by Destroy.
type Pool struct {
	allocator Allocator
	chunkSize int

	blocks []*Block
	offset int
	used   int
	mapped bool
}

func NewPool(allocator Allocator, chunkSize int) *Pool {
	return &Pool{
		allocator: allocator,
		chunkSize: chunkSize,
	}
}

// Map makes the pool available for allocation
func (p *Pool) Map() error {
	if p.mapped {
		return nil
	}

	if len(p.blocks) == 0 {
		err := p.addChunk(p.chunkSize)
		if err != nil {
			return err
		}
	}

	p.mapped = true
	return nil
}

func (p *Pool) Unmap() {
	p.mapped = false
}

func (p *Pool) IsMapped() bool {
	return p.mapped
}

func (p *Pool) addChunk(size int) error {
	block, err := p.allocator.AllocateBlock(memutils.Max(size, p.chunkSize), 64)
	if err != nil {
		return err
	}

	p.blocks = append(p.blocks, block)
	p.offset = 0
	return nil
}

// Alloc returns size bytes aligned to alignment within the current chunk, allocating a new chunk if
// the current one is exhausted
func (p *Pool) Alloc(size int, alignment uint) ([]byte, error) {
	if !p.mapped {
		panic(errors.New("attempted to allocate from an unmapped pool"))
	}
	memutils.DebugCheckPow2(alignment, "pool alignment")

	current := p.blocks[len(p.blocks)-1]
	offset := memutils.AlignUp(p.offset, alignment)
	if offset+size > current.Size() {
		err := p.addChunk(size)
		if err != nil {
			return nil, err
		}

		current = p.blocks[len(p.blocks)-1]
		offset = 0
	}

	p.offset = offset + size
	p.used += size
	return current.Bytes()[offset : offset+size], nil
}

// UsedBytes returns the total bytes handed out since the pool was last destroyed
func (p *Pool) UsedBytes() int {
	return p.used
}

// Destroy releases every chunk. The pool can be mapped again afterwards.
func (p *Pool) Destroy() {
	for _, block := range p.blocks {
		block.Deref()
	}

	p.blocks = nil
	p.offset = 0
	p.used = 0
	p.mapped = false
}
