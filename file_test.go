package ufs

import (
	"testing"

	"github.com/changxiaoxie/ufs/block"
	"github.com/changxiaoxie/ufs/blockfstest"
	"github.com/changxiaoxie/ufs/errs"
	"github.com/stretchr/testify/require"
)

func newTestFileEngine(t *testing.T, blocks uint32) (*fileEngine, *Bitmap) {
	t.Helper()
	dev := blockfstest.NewDevice(blocks)
	layout, err := ComputeLayout(blocks)
	require.NoError(t, err)
	bm, err := newBitmap(dev, layout)
	require.NoError(t, err)
	return newFileEngine(dev, bm), bm
}

func TestFileEngineWriteThenRead(t *testing.T) {
	fe, _ := newTestFileEngine(t, 64)
	var in Inode
	initInode(&in, TypeFile)

	payload := []byte("hello, world")
	n, err := fe.write(0, &in, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.EqualValues(t, len(payload), in.Size)

	out := make([]byte, len(payload))
	n, err = fe.read(0, in, out)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, out)
}

func TestFileEngineHoleFillZeroesGap(t *testing.T) {
	fe, _ := newTestFileEngine(t, 64)
	var in Inode
	initInode(&in, TypeFile)

	_, err := fe.write(0, &in, []byte("abc"))
	require.NoError(t, err)

	// Seek past the end and write again: the gap must read back as zero.
	gapStart := uint32(len("abc"))
	holeWriteAt := uint32(block.Size + 10)
	_, err = fe.write(holeWriteAt, &in, []byte("tail"))
	require.NoError(t, err)

	gapLen := holeWriteAt - gapStart
	gap := make([]byte, gapLen)
	n, err := fe.read(gapStart, in, gap)
	require.NoError(t, err)
	require.Equal(t, int(gapLen), n)
	for _, b := range gap {
		require.EqualValues(t, 0, b)
	}

	tail := make([]byte, 4)
	_, err = fe.read(holeWriteAt, in, tail)
	require.NoError(t, err)
	require.Equal(t, "tail", string(tail))
}

func TestFileEngineRejectsWriteAtOrPastCapacity(t *testing.T) {
	fe, _ := newTestFileEngine(t, 64)
	var in Inode
	initInode(&in, TypeFile)

	_, err := fe.write(MaxFileSize, &in, []byte("x"))
	require.ErrorIs(t, err, errs.ErrFileTooLarge)
}

// TestFileEngineWritesExactlyMaxFileSizeSucceeds pairs with the test above:
// a write that fills every one of the DataBlockNum direct blocks exactly,
// landing precisely at capacity rather than past it, must succeed.
func TestFileEngineWritesExactlyMaxFileSizeSucceeds(t *testing.T) {
	fe, _ := newTestFileEngine(t, 64)
	var in Inode
	initInode(&in, TypeFile)

	payload := make([]byte, MaxFileSize)
	for i := range payload {
		payload[i] = byte(i)
	}

	n, err := fe.write(0, &in, payload)
	require.NoError(t, err)
	require.Equal(t, MaxFileSize, n)
	require.EqualValues(t, MaxFileSize, in.Size)
	require.EqualValues(t, DataBlockNum, in.InUseBlocks)

	out := make([]byte, MaxFileSize)
	n, err = fe.read(0, in, out)
	require.NoError(t, err)
	require.Equal(t, MaxFileSize, n)
	require.Equal(t, payload, out)
}

func TestFileEngineReadPastEndOfFileReturnsZero(t *testing.T) {
	fe, _ := newTestFileEngine(t, 64)
	var in Inode
	initInode(&in, TypeFile)
	_, err := fe.write(0, &in, []byte("hi"))
	require.NoError(t, err)

	out := make([]byte, 10)
	n, err := fe.read(100, in, out)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
