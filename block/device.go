// Package block provides the fixed-size block device abstraction the file
// system core is built on. It knows nothing about inodes, directories, or
// the on-disk layout of the file system: it only reads and writes whole
// blocks at fixed offsets in an underlying stream.
package block

import (
	"fmt"
	"io"
)

// Size is the fixed size, in bytes, of a single block on the device. The
// core file system assumes this value everywhere it lays out on-disk
// structures (the superblock, inode packing, directory entry packing).
const Size = 512

// Device is the adapter the file system core consumes: callers address
// blocks by number and always transfer exactly Size bytes, mirroring a
// block_read/block_write pair treated as an external collaborator.
type Device interface {
	// ReadBlock fills buf (which must be exactly Size bytes) with the
	// contents of block n.
	ReadBlock(n uint32, buf []byte) error
	// WriteBlock writes buf (which must be exactly Size bytes) to block n.
	WriteBlock(n uint32, buf []byte) error
	// BlockCount returns the total number of addressable blocks.
	BlockCount() uint32
}

// StreamDevice adapts any io.ReadWriteSeeker into a Device, treating it as a
// flat sequence of fixed-size blocks starting at offset 0. This is the
// adapter used both for real disk image files and, via blockfstest, for
// byte-slice-backed streams in tests.
type StreamDevice struct {
	stream io.ReadWriteSeeker
	count  uint32
}

// NewStreamDevice wraps stream as a Device with the given number of blocks.
// The caller is responsible for ensuring stream is at least count*Size bytes
// long and supports seeking to any offset within that range.
func NewStreamDevice(stream io.ReadWriteSeeker, count uint32) *StreamDevice {
	return &StreamDevice{stream: stream, count: count}
}

func (d *StreamDevice) BlockCount() uint32 {
	return d.count
}

func (d *StreamDevice) checkBounds(n uint32, bufLen int) error {
	if n >= d.count {
		return fmt.Errorf("block %d out of range [0, %d)", n, d.count)
	}
	if bufLen != Size {
		return fmt.Errorf("buffer must be exactly %d bytes, got %d", Size, bufLen)
	}
	return nil
}

func (d *StreamDevice) ReadBlock(n uint32, buf []byte) error {
	if err := d.checkBounds(n, len(buf)); err != nil {
		return err
	}
	if _, err := d.stream.Seek(int64(n)*Size, io.SeekStart); err != nil {
		return err
	}
	_, err := io.ReadFull(d.stream, buf)
	return err
}

func (d *StreamDevice) WriteBlock(n uint32, buf []byte) error {
	if err := d.checkBounds(n, len(buf)); err != nil {
		return err
	}
	if _, err := d.stream.Seek(int64(n)*Size, io.SeekStart); err != nil {
		return err
	}
	_, err := d.stream.Write(buf)
	return err
}
