package ufs

import (
	"github.com/changxiaoxie/ufs/block"
	"github.com/changxiaoxie/ufs/errs"
	multierror "github.com/hashicorp/go-multierror"
)

// DirNameSize is the fixed width, in bytes, of a directory entry's
// null-terminated name field.
const DirNameSize = 32

// DirEntrySize is the fixed on-disk size of one directory entry: a 2-byte
// inode index followed by the name field.
const DirEntrySize = 2 + DirNameSize

// EntriesPerBlock is how many fixed-size directory entries fit in one
// data block; the remaining bytes (2, for block.Size=512 and
// DirEntrySize=34) are tail padding on non-first blocks.
const EntriesPerBlock = block.Size / DirEntrySize

// dirCapacity is the largest number of entries a directory can hold across
// all DataBlockNum direct blocks.
const dirCapacity = EntriesPerBlock * DataBlockNum

// dirent is the in-memory form of one 34-byte directory entry.
type dirent struct {
	Inode uint16
	Name  string
}

func encodeDirent(d dirent) []byte {
	buf := make([]byte, DirEntrySize)
	buf[0] = byte(d.Inode)
	buf[1] = byte(d.Inode >> 8)
	copy(buf[2:2+DirNameSize], d.Name)
	return buf
}

func decodeDirent(buf []byte) dirent {
	inode := uint16(buf[0]) | uint16(buf[1])<<8
	name := buf[2 : 2+DirNameSize]
	n := 0
	for n < len(name) && name[n] != 0 {
		n++
	}
	return dirent{Inode: inode, Name: string(name[:n])}
}

// dirEngine implements add/find/remove over the packed directory
// entries stored in a directory inode's direct blocks. Mirroring
// original_source/fs_helpers.c's dir_add, which ends with its own
// inode_write call, add and remove persist the owning directory's inode
// themselves before returning success, instead of leaving that to the
// caller: the bitmap mutation they perform (allocating or freeing a
// block) and the directory inode record it belongs to are never allowed
// to go out of sync on a failure path.
type dirEngine struct {
	dev    block.Device
	blocks *Bitmap
	inodes *InodeManager
}

func newDirEngine(dev block.Device, blocks *Bitmap, inodes *InodeManager) *dirEngine {
	return &dirEngine{dev: dev, blocks: blocks, inodes: inodes}
}

// entryCount recovers the number of entries currently stored from the
// inode's size field. The +2-per-extra-block padding never reaches
// DirEntrySize bytes (at most (DataBlockNum-1)*2 = 14 < 34), so dividing
// the raw size by DirEntrySize recovers the exact entry count without
// having to subtract the padding out first.
func entryCount(size uint32) uint32 {
	return size / DirEntrySize
}

func readBlock(dev block.Device, n uint16) ([]byte, error) {
	buf := make([]byte, block.Size)
	if err := dev.ReadBlock(uint32(n), buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// lastBlockEntryCount returns the number of valid entries in a directory's
// last in-use block: the remainder of size modulo block.Size divided by
// DirEntrySize, or a fully-packed EntriesPerBlock when that remainder is
// zero. With k entries in the last block the remainder is k*DirEntrySize
// (510 for a full block), so it is zero only for an empty directory.
func lastBlockEntryCount(size uint32) uint32 {
	rem := size % block.Size
	if rem == 0 {
		return EntriesPerBlock
	}
	return rem / DirEntrySize
}

// add appends a new (name -> target) entry to dir, mutating it in place
// and persisting dirNum's inode record before returning. If a newly
// allocated block cannot be committed to the directory inode, that block
// is freed again so a failed add never leaks an allocated-but-unreferenced
// block.
func (e *dirEngine) add(dirNum uint32, dir *Inode, name string, target uint32) error {
	if len(name) > MaxFileName {
		return errs.ErrNameTooLong
	}

	entries := entryCount(dir.Size)
	if entries >= dirCapacity {
		return errs.ErrDirectoryFull
	}

	bi := entries / EntriesPerBlock
	bo := entries % EntriesPerBlock

	allocated := false
	if bo == 0 {
		newBlock, err := e.blocks.Alloc()
		if err != nil {
			return err
		}
		allocated = true
		dir.InUseBlocks++
		dir.Direct[bi] = uint16(newBlock)
		if bi != 0 {
			dir.Size += 2
		}
	}

	buf, err := readBlock(e.dev, dir.Direct[bi])
	if err != nil {
		return e.rollbackAlloc(allocated, dir, bi, err)
	}
	copy(buf[bo*DirEntrySize:], encodeDirent(dirent{Inode: uint16(target), Name: name}))
	if err := e.dev.WriteBlock(uint32(dir.Direct[bi]), buf); err != nil {
		return e.rollbackAlloc(allocated, dir, bi, err)
	}

	dir.Size += DirEntrySize
	if err := e.inodes.Write(dirNum, *dir); err != nil {
		dir.Size -= DirEntrySize
		return e.rollbackAlloc(allocated, dir, bi, err)
	}
	return nil
}

// rollbackAlloc undoes the block allocation add just made (if any) when a
// later step of the same call fails, so the directory inode handed back to
// the caller matches what's actually on disk and the bitmap doesn't end up
// holding a block nothing references.
func (e *dirEngine) rollbackAlloc(allocated bool, dir *Inode, bi uint32, cause error) error {
	if !allocated {
		return cause
	}
	freed := dir.Direct[bi]
	dir.InUseBlocks--
	dir.Direct[bi] = 0
	if bi != 0 {
		dir.Size -= 2
	}
	if ferr := e.blocks.Free(freed); ferr != nil {
		var errAcc *multierror.Error
		errAcc = multierror.Append(errAcc, cause)
		errAcc = multierror.Append(errAcc, ferr)
		return errAcc.ErrorOrNil()
	}
	return cause
}

// find scans dir's entries for name and returns the inode it points to.
func (e *dirEngine) find(dir Inode, name string) (uint32, error) {
	lastCount := lastBlockEntryCount(dir.Size)

	for bi := uint16(0); bi < dir.InUseBlocks; bi++ {
		buf, err := readBlock(e.dev, dir.Direct[bi])
		if err != nil {
			return 0, err
		}

		max := uint32(EntriesPerBlock)
		if bi == dir.InUseBlocks-1 {
			max = lastCount
		}
		for i := uint32(0); i < max; i++ {
			ent := decodeDirent(buf[i*DirEntrySize:])
			if ent.Name == name {
				return uint32(ent.Inode), nil
			}
		}
	}
	return 0, errs.ErrNotFound
}

// remove deletes the entry named name from dir, mutating it in place and
// persisting dirNum's inode record before freeing any block the removal
// makes redundant. That ordering matters: if the block were freed first and
// the inode write failed afterwards, the persisted inode would still point
// at a block the bitmap now considers free and liable to be handed to the
// next allocation. Persisting first means a failed write here leaves the
// directory's last entry duplicated harmlessly across two slots rather than
// corrupting the bitmap.
func (e *dirEngine) remove(dirNum uint32, dir *Inode, name string) error {
	lastCount := lastBlockEntryCount(dir.Size)

	for bi := uint16(0); bi < dir.InUseBlocks; bi++ {
		buf, err := readBlock(e.dev, dir.Direct[bi])
		if err != nil {
			return err
		}

		max := uint32(EntriesPerBlock)
		if bi == dir.InUseBlocks-1 {
			max = lastCount
		}

		for i := uint32(0); i < max; i++ {
			ent := decodeDirent(buf[i*DirEntrySize:])
			if ent.Name != name {
				continue
			}

			if dir.Size == DirEntrySize {
				freedBlock := dir.Direct[bi]
				saved := *dir
				dir.Size = 0
				dir.InUseBlocks = 0
				dir.Direct[bi] = 0
				if err := e.inodes.Write(dirNum, *dir); err != nil {
					*dir = saved
					return err
				}
				return e.blocks.Free(freedBlock)
			}

			// Compute where the last entry lives, using the pre-removal
			// layout: it must be evaluated before dir.InUseBlocks/Size are
			// touched below.
			lastBlockIndex := dir.InUseBlocks - 1
			var lastBlockOffset uint32
			if lastCount == 0 {
				lastBlockOffset = EntriesPerBlock - 1
			} else {
				lastBlockOffset = lastCount - 1
			}

			lastBuf := buf
			if lastBlockIndex != bi {
				lastBuf, err = readBlock(e.dev, dir.Direct[lastBlockIndex])
				if err != nil {
					return err
				}
			}
			lastEntry := decodeDirent(lastBuf[lastBlockOffset*DirEntrySize:])

			copy(buf[i*DirEntrySize:], encodeDirent(lastEntry))
			if err := e.dev.WriteBlock(uint32(dir.Direct[bi]), buf); err != nil {
				return err
			}

			freeLastBlock := lastBlockOffset == 0
			freedBlock := dir.Direct[lastBlockIndex]

			saved := *dir
			dir.Size -= DirEntrySize
			if freeLastBlock {
				dir.InUseBlocks--
				dir.Size -= 2
				dir.Direct[lastBlockIndex] = 0
			}
			if err := e.inodes.Write(dirNum, *dir); err != nil {
				*dir = saved
				return err
			}

			if freeLastBlock {
				return e.blocks.Free(freedBlock)
			}
			return nil
		}
	}
	return errs.ErrNotFound
}
