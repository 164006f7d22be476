package ufs

import (
	"github.com/changxiaoxie/ufs/block"
	"github.com/changxiaoxie/ufs/errs"
	multierror "github.com/hashicorp/go-multierror"
)

// fileEngine implements partial-block reads and writes against a
// file inode's direct blocks, including hole-filling zero-fill for writes
// that start past the current end of file.
type fileEngine struct {
	dev    block.Device
	blocks *Bitmap
}

func newFileEngine(dev block.Device, blocks *Bitmap) *fileEngine {
	return &fileEngine{dev: dev, blocks: blocks}
}

func minU32(values ...uint32) uint32 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// read copies up to len(out) bytes from in starting at position, never
// reading past in.Size, and returns the number of bytes copied.
func (e *fileEngine) read(position uint32, in Inode, out []byte) (int, error) {
	count := uint32(len(out))
	if count == 0 || position >= in.Size {
		return 0, nil
	}

	pos := position
	var written uint32
	remaining := count

	for remaining > 0 && pos < in.Size {
		bi := pos / block.Size
		cursor := pos % block.Size
		internalInvariant(bi < uint32(in.InUseBlocks), "read walked past the last allocated block")

		buf, err := readBlock(e.dev, in.Direct[bi])
		if err != nil {
			return int(written), err
		}

		n := minU32(remaining, block.Size-cursor, in.Size-pos)
		copy(out[written:written+n], buf[cursor:cursor+n])

		written += n
		remaining -= n
		pos += n
	}

	internalInvariant(written+remaining == count, "read byte accounting mismatch")
	return int(written), nil
}

// zeroTailOfLastBlock clears in's last currently-used block from in.Size
// (mod block.Size) to the end of the block, as the first step of filling a
// hole created by a write starting past the current end of file.
func (e *fileEngine) zeroTailOfLastBlock(in Inode) error {
	if in.InUseBlocks == 0 {
		return nil
	}
	lastBlock := in.Direct[in.InUseBlocks-1]
	buf, err := readBlock(e.dev, lastBlock)
	if err != nil {
		return err
	}
	start := in.Size % block.Size
	for i := start; i < block.Size; i++ {
		buf[i] = 0
	}
	return e.dev.WriteBlock(uint32(lastBlock), buf)
}

// extendForHole allocates and zero-fills new data blocks until in has
// enough direct blocks to reach position. On any allocation failure it
// releases everything it allocated during this call and restores
// in.InUseBlocks, leaving in exactly as it was before the call.
func (e *fileEngine) extendForHole(in *Inode, position uint32) error {
	original := in.InUseBlocks
	originalDirect := in.Direct
	var allocated []uint16

	rollback := func(cause error) error {
		var errAcc *multierror.Error
		for _, b := range allocated {
			if ferr := e.blocks.Free(b); ferr != nil {
				errAcc = multierror.Append(errAcc, ferr)
			}
		}
		in.InUseBlocks = original
		in.Direct = originalDirect
		if errAcc != nil {
			return multierror.Append(errAcc, cause).ErrorOrNil()
		}
		return cause
	}

	for uint32(in.InUseBlocks) <= position/block.Size {
		newBlock, err := e.blocks.Alloc()
		if err != nil {
			return rollback(err)
		}
		zero := make([]byte, block.Size)
		if err := e.dev.WriteBlock(newBlock, zero); err != nil {
			allocated = append(allocated, uint16(newBlock))
			return rollback(err)
		}
		in.Direct[in.InUseBlocks] = uint16(newBlock)
		in.InUseBlocks++
		allocated = append(allocated, uint16(newBlock))
	}
	return nil
}

// write copies payload into in starting at position, extending the file
// (allocating blocks and zero-filling any hole) as needed, and updates
// in.Size if the write advances past the current end of file. It returns
// the number of bytes actually written, which can be less than
// len(payload) if capacity ran out mid-write.
func (e *fileEngine) write(position uint32, in *Inode, payload []byte) (int, error) {
	count := uint32(len(payload))
	if count > 0 && position >= MaxFileSize {
		return 0, errs.ErrFileTooLarge
	}
	if count == 0 {
		return 0, nil
	}

	if position > in.Size {
		if err := e.zeroTailOfLastBlock(*in); err != nil {
			return 0, err
		}
		if err := e.extendForHole(in, position); err != nil {
			return 0, err
		}
	}

	pos := position
	var written uint32
	remaining := count

	for remaining > 0 && pos/block.Size < DataBlockNum {
		bi := pos / block.Size
		if bi == uint32(in.InUseBlocks) {
			newBlock, err := e.blocks.Alloc()
			if err != nil {
				break
			}
			in.Direct[bi] = uint16(newBlock)
			in.InUseBlocks++
		}

		buf, err := readBlock(e.dev, in.Direct[bi])
		if err != nil {
			return int(written), err
		}

		cursor := pos % block.Size
		n := minU32(remaining, block.Size-cursor)
		copy(buf[cursor:cursor+n], payload[written:written+n])
		if err := e.dev.WriteBlock(uint32(in.Direct[bi]), buf); err != nil {
			return int(written), err
		}

		written += n
		remaining -= n
		pos += n
	}

	if pos > in.Size {
		in.Size = pos
	}
	return int(written), nil
}
