package ufs

import (
	"encoding/binary"

	"github.com/changxiaoxie/ufs/block"
)

// superblockFieldCount is the number of little-endian u32 fields persisted
// in block 0, in on-disk order.
const superblockFieldCount = 9

// Superblock is the in-memory form of block 0: the magic number plus the
// Layout it describes. It is read once at mount and rewritten whenever a
// field would change, which in this design never happens after Mkfs --
// the layout is fixed for the lifetime of the image.
type Superblock struct {
	Magic uint32
	Layout
}

// encode serializes the superblock to exactly block.Size bytes, zero-padded
// after the 9 on-disk fields.
func (sb *Superblock) encode() []byte {
	buf := make([]byte, block.Size)
	fields := [superblockFieldCount]uint32{
		sb.Magic,
		sb.FSSize,
		sb.InodeStart,
		sb.MaxNumInodes,
		sb.InodeCount,
		sb.BAMapStart,
		sb.BAMapCount,
		sb.DataStart,
		sb.DataCount,
	}
	for i, v := range fields {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}

func decodeSuperblock(buf []byte) Superblock {
	var fields [superblockFieldCount]uint32
	for i := range fields {
		fields[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return Superblock{
		Magic: fields[0],
		Layout: Layout{
			FSSize:       fields[1],
			InodeStart:   fields[2],
			MaxNumInodes: fields[3],
			InodeCount:   fields[4],
			BAMapStart:   fields[5],
			BAMapCount:   fields[6],
			DataStart:    fields[7],
			DataCount:    fields[8],
		},
	}
}

// readSuperblock reads and decodes block 0.
func readSuperblock(dev block.Device) (Superblock, error) {
	buf := make([]byte, block.Size)
	if err := dev.ReadBlock(0, buf); err != nil {
		return Superblock{}, err
	}
	return decodeSuperblock(buf), nil
}

// writeSuperblock persists sb to block 0.
func writeSuperblock(dev block.Device, sb Superblock) error {
	return dev.WriteBlock(0, sb.encode())
}
