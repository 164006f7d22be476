package ufs

import "github.com/changxiaoxie/ufs/block"

// Magic identifies a formatted file system image; it is the first field
// written to block 0.
const Magic = 0xabcd

// InodesPerBlock is the number of fixed 32-byte inodes packed into one
// block.Size block.
const InodesPerBlock = block.Size / InodeSize

// DataBlockNum is the number of direct block pointers an inode carries. The
// specification bounds every file to DataBlockNum*block.Size bytes; there
// are no indirect blocks.
const DataBlockNum = 8

// MaxFileSize is the largest a file's content can grow to.
const MaxFileSize = DataBlockNum * block.Size

// RootDirectory is the inode number of the file system root, created by
// Mkfs and used as the initial working directory.
const RootDirectory = 0

// MaxFileDescriptors bounds the size of the in-memory open-file table.
const MaxFileDescriptors = 256

// MaxFileName is the longest name (excluding the NUL terminator) that fits
// in a directory entry's fixed 32-byte name field.
const MaxFileName = DirNameSize - 1

// Layout describes how a device of a given block count is partitioned into
// the four on-disk regions: superblock, inode table, block-allocation
// bitmap, and data. It is derived entirely from FSSize and is recomputed
// by ComputeLayout; nothing about it is persisted except via the
// superblock's own fields (which mirror it for a mounted image).
type Layout struct {
	FSSize       uint32
	InodeStart   uint32
	MaxNumInodes uint32
	InodeCount   uint32
	BAMapStart   uint32
	BAMapCount   uint32
	DataStart    uint32
	DataCount    uint32
}

// ComputeLayout partitions a device of fsSize blocks into the four regions
// described in the on-disk layout table. It requires fsSize >= 22, the
// smallest device for which MaxNumInodes is nonzero.
func ComputeLayout(fsSize uint32) (Layout, error) {
	if fsSize < 22 {
		return Layout{}, errTooSmall(fsSize)
	}

	// max_inodes = floor(0.75 * fs_size / 16) * 16
	maxInodes := (fsSize * 3 / 4 / 16) * 16

	// inode_count = ceil(max_inodes / InodesPerBlock)
	inodeCount := ceilDiv(maxInodes, InodesPerBlock)

	inodeStart := uint32(1)
	baMapStart := inodeStart + inodeCount

	// ba_map_count = ceil(fs_size / block.Size): one bitmap byte per block,
	// packed block.Size to a bitmap block.
	baMapCount := ceilDiv(fsSize, block.Size)

	dataStart := baMapStart + baMapCount
	dataCount := fsSize - dataStart

	return Layout{
		FSSize:       fsSize,
		InodeStart:   inodeStart,
		MaxNumInodes: maxInodes,
		InodeCount:   inodeCount,
		BAMapStart:   baMapStart,
		BAMapCount:   baMapCount,
		DataStart:    dataStart,
		DataCount:    dataCount,
	}, nil
}

func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}

func errTooSmall(fsSize uint32) error {
	return &layoutError{fsSize: fsSize}
}

type layoutError struct {
	fsSize uint32
}

func (e *layoutError) Error() string {
	return "fs_size must be at least 22 blocks"
}
