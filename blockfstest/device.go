// Package blockfstest provides in-memory block.Device implementations for
// testing the ufs core without touching a real disk image.
package blockfstest

import (
	"github.com/changxiaoxie/ufs/block"
	"github.com/xaionaro-go/bytesextra"
)

// NewDevice returns a block.Device backed entirely by memory, sized for
// blockCount blocks. It is the in-memory equivalent of opening a disk image
// file: callers still go through Init/Mkfs to format it.
func NewDevice(blockCount uint32) *block.StreamDevice {
	buf := make([]byte, uint64(blockCount)*block.Size)
	return block.NewStreamDevice(bytesextra.NewReadWriteSeeker(buf), blockCount)
}

// NewDeviceFromImage wraps an existing, already-formatted image buffer
// (e.g. one built by a prior Mkfs and captured for a fixture) as a Device,
// for tests that need to start from a known non-empty state.
func NewDeviceFromImage(image []byte, blockCount uint32) *block.StreamDevice {
	return block.NewStreamDevice(bytesextra.NewReadWriteSeeker(image), blockCount)
}

// FaultyDevice wraps a Device and fails every WriteBlock call once
// writesRemaining reaches zero, decrementing it on every successful write.
// It exists to drive the rollback paths in fileEngine.extendForHole and
// FileSystem.Mkdir/Open deterministically: point it at a fresh Bitmap-backed
// image, set writesRemaining to the exact number of writes that should
// succeed, and assert the prior state comes back unchanged.
type FaultyDevice struct {
	block.Device
	writesRemaining int
}

// NewFaultyDevice wraps dev so that only the next n WriteBlock calls
// succeed; the (n+1)th and every call after it return errWriteFailed.
func NewFaultyDevice(dev block.Device, n int) *FaultyDevice {
	return &FaultyDevice{Device: dev, writesRemaining: n}
}

func (d *FaultyDevice) WriteBlock(n uint32, buf []byte) error {
	if d.writesRemaining <= 0 {
		return errWriteFailed
	}
	d.writesRemaining--
	return d.Device.WriteBlock(n, buf)
}

type writeFailedError struct{}

func (writeFailedError) Error() string { return "blockfstest: simulated write failure" }

var errWriteFailed error = writeFailedError{}
