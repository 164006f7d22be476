package ufs

import (
	"github.com/boljen/go-bitmap"
	"github.com/changxiaoxie/ufs/block"
	"github.com/changxiaoxie/ufs/errs"
)

// blockIndexesPerBitmapBlock is the number of block numbers whose
// allocation state is tracked by a single bitmap block: the on-disk format
// is one byte per block, so a block.Size bitmap block covers
// block.Size block indexes.
const blockIndexesPerBitmapBlock = block.Size

// Bitmap is the data-block allocator. The on-disk format is exactly what
// one byte per block, nonzero meaning allocated, packed
// block.Size bytes to a bitmap block. On top of that, Bitmap keeps an
// in-memory bitmap.Bitmap mirror (one bit per block index, same semantics)
// so Alloc doesn't have to re-read bitmap blocks from the device on every
// call -- only the single block whose byte actually changes is written
// back.
type Bitmap struct {
	dev    block.Device
	layout Layout
	cache  bitmap.Bitmap
}

// newBitmap constructs the allocator and primes its in-memory cache by
// reading every existing bitmap block off dev.
func newBitmap(dev block.Device, layout Layout) (*Bitmap, error) {
	b := &Bitmap{
		dev:    dev,
		layout: layout,
		cache:  bitmap.New(int(layout.FSSize)),
	}
	buf := make([]byte, block.Size)
	for i := uint32(0); i < layout.BAMapCount; i++ {
		if err := dev.ReadBlock(layout.BAMapStart+i, buf); err != nil {
			return nil, err
		}
		base := i * blockIndexesPerBitmapBlock
		for j := uint32(0); j < blockIndexesPerBitmapBlock; j++ {
			idx := base + j
			if idx >= layout.FSSize {
				break
			}
			if buf[j] != 0 {
				b.cache.Set(int(idx), true)
			}
		}
	}
	return b, nil
}

func (b *Bitmap) blockAndOffset(idx uint32) (uint32, uint32) {
	return b.layout.BAMapStart + idx/blockIndexesPerBitmapBlock, idx % blockIndexesPerBitmapBlock
}

func (b *Bitmap) setByte(idx uint32, allocated bool) error {
	blockNum, offset := b.blockAndOffset(idx)
	buf := make([]byte, block.Size)
	if err := b.dev.ReadBlock(blockNum, buf); err != nil {
		return err
	}
	if allocated {
		buf[offset] = 1
	} else {
		buf[offset] = 0
	}
	return b.dev.WriteBlock(blockNum, buf)
}

// Alloc finds the first free data block at or past the start of the data
// region, marks it allocated on disk and in the cache, and returns its
// index. It never hands out an index below layout.DataStart, even if that
// byte happens to be zero.
func (b *Bitmap) Alloc() (uint32, error) {
	for idx := b.layout.DataStart; idx < b.layout.FSSize; idx++ {
		if !b.cache.Get(int(idx)) {
			if err := b.setByte(idx, true); err != nil {
				return 0, err
			}
			b.cache.Set(int(idx), true)
			return idx, nil
		}
	}
	return 0, errs.ErrNoSpace
}

// Free releases a previously allocated data block, zeroing its contents on
// disk. Out-of-range and reserved indexes are rejected silently,
// matching data_free's behavior in the original source.
func (b *Bitmap) Free(idx uint16) error {
	index := uint32(idx)
	if index >= b.layout.FSSize || index < b.layout.DataStart {
		return nil
	}

	zero := make([]byte, block.Size)
	if err := b.dev.WriteBlock(index, zero); err != nil {
		return err
	}

	b.cache.Set(int(index), false)
	return b.setByte(index, false)
}
