package ufs

import (
	"encoding/binary"

	"github.com/changxiaoxie/ufs/block"
	"github.com/changxiaoxie/ufs/errs"
)

// InodeSize is the fixed on-disk size of one inode: size, fd_count, links
// (4 bytes each), in_use_blocks and type (2 bytes each), and 8 direct block
// pointers (2 bytes each) -- 32 bytes total, so InodesPerBlock of them pack
// exactly into one block.
const InodeSize = 32

// InodeType distinguishes a free inode slot from a file or a directory.
type InodeType uint16

const (
	TypeFree InodeType = iota
	TypeDirectory
	TypeFile
)

// Inode is the in-memory form of one 32-byte on-disk inode record.
type Inode struct {
	Size        uint32
	FDCount     uint32
	Links       uint32
	InUseBlocks uint16
	Direct      [DataBlockNum]uint16
	Type        InodeType
}

func (in *Inode) encode() []byte {
	buf := make([]byte, InodeSize)
	binary.LittleEndian.PutUint32(buf[0:], in.Size)
	binary.LittleEndian.PutUint32(buf[4:], in.FDCount)
	binary.LittleEndian.PutUint32(buf[8:], in.Links)
	binary.LittleEndian.PutUint16(buf[12:], in.InUseBlocks)
	for i, b := range in.Direct {
		binary.LittleEndian.PutUint16(buf[14+i*2:], b)
	}
	binary.LittleEndian.PutUint16(buf[30:], uint16(in.Type))
	return buf
}

func decodeInode(buf []byte) Inode {
	var in Inode
	in.Size = binary.LittleEndian.Uint32(buf[0:])
	in.FDCount = binary.LittleEndian.Uint32(buf[4:])
	in.Links = binary.LittleEndian.Uint32(buf[8:])
	in.InUseBlocks = binary.LittleEndian.Uint16(buf[12:])
	for i := range in.Direct {
		in.Direct[i] = binary.LittleEndian.Uint16(buf[14+i*2:])
	}
	in.Type = InodeType(binary.LittleEndian.Uint16(buf[30:]))
	return in
}

// initInode resets an inode in place to the freshly-allocated state
// zeroes size, zero descriptors, one link, no data
// blocks, and the given type.
func initInode(in *Inode, t InodeType) {
	*in = Inode{Links: 1, Type: t}
}

// InodeManager owns the inode table region of the device: allocation,
// reading, writing, and freeing by flat inode index. It never holds an
// inode buffer across calls -- per the pointer-into-buffer design note,
// every caller gets back an owned copy plus must call Write to persist
// changes.
type InodeManager struct {
	dev    block.Device
	layout Layout
	blocks *Bitmap
}

func newInodeManager(dev block.Device, layout Layout, blocks *Bitmap) *InodeManager {
	return &InodeManager{dev: dev, layout: layout, blocks: blocks}
}

func (m *InodeManager) blockAndOffset(inodeNum uint32) (uint32, uint32) {
	return inodeNum/InodesPerBlock + m.layout.InodeStart, inodeNum % InodesPerBlock
}

// Read loads inode inodeNum from its containing block.
func (m *InodeManager) Read(inodeNum uint32) (Inode, error) {
	if inodeNum >= m.layout.MaxNumInodes {
		return Inode{}, errs.ErrInvalidArgument.WithMessage("inode index out of range")
	}
	blockNum, offset := m.blockAndOffset(inodeNum)
	buf := make([]byte, block.Size)
	if err := m.dev.ReadBlock(blockNum, buf); err != nil {
		return Inode{}, err
	}
	return decodeInode(buf[offset*InodeSize:]), nil
}

// Write persists in as inode inodeNum. This requires a read-modify-write of
// the containing block since InodesPerBlock inodes share it.
func (m *InodeManager) Write(inodeNum uint32, in Inode) error {
	internalInvariant(inodeNum < m.layout.MaxNumInodes, "inode index out of range on write")

	blockNum, offset := m.blockAndOffset(inodeNum)
	buf := make([]byte, block.Size)
	if err := m.dev.ReadBlock(blockNum, buf); err != nil {
		return err
	}
	copy(buf[offset*InodeSize:offset*InodeSize+InodeSize], in.encode())
	return m.dev.WriteBlock(blockNum, buf)
}

// Alloc scans the inode table sequentially for the first inode whose type
// is TypeFree and returns its index.
func (m *InodeManager) Alloc() (uint32, error) {
	buf := make([]byte, block.Size)
	for blockNum := m.layout.InodeStart; blockNum < m.layout.BAMapStart; blockNum++ {
		if err := m.dev.ReadBlock(blockNum, buf); err != nil {
			return 0, err
		}
		for i := uint32(0); i < InodesPerBlock; i++ {
			in := decodeInode(buf[i*InodeSize:])
			if in.Type == TypeFree {
				return (blockNum-m.layout.InodeStart)*InodesPerBlock + i, nil
			}
		}
	}
	return 0, errs.ErrNoInodes
}

// Free returns inodeNum to the FREE state and releases every data block it
// referenced.
func (m *InodeManager) Free(inodeNum uint32) error {
	in, err := m.Read(inodeNum)
	if err != nil {
		return err
	}
	in.Type = TypeFree
	for i := uint16(0); i < in.InUseBlocks; i++ {
		if err := m.blocks.Free(in.Direct[i]); err != nil {
			return err
		}
	}
	in.InUseBlocks = 0
	in.Direct = [DataBlockNum]uint16{}
	return m.Write(inodeNum, in)
}
