package ufs_test

import (
	"testing"

	"github.com/changxiaoxie/ufs"
	"github.com/changxiaoxie/ufs/block"
	"github.com/changxiaoxie/ufs/blockfstest"
	"github.com/stretchr/testify/require"
)

// TestWriteHoleFillRollsBackOnAllocationFailure drives a write that must
// allocate several intervening blocks to fill a hole, but caps the number
// of writes the underlying device accepts so the allocation fails partway
// through. The file's state afterwards must be exactly what it was before
// the failed call, per fileEngine.extendForHole's rollback contract.
func TestWriteHoleFillRollsBackOnAllocationFailure(t *testing.T) {
	dev := blockfstest.NewDevice(64)
	fs, err := ufs.Init(dev)
	require.NoError(t, err)

	fd, err := fs.Open("hole.txt", ufs.WRONLY)
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("start"))
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	before, err := fs.Stat("hole.txt")
	require.NoError(t, err)

	// Budget: 1 write for Open's FDCount bump, 1 for zeroing the tail of the
	// last block, 2 for the first hole block (its bitmap byte and its
	// zero-fill) -- then the second hole block's bitmap write fails, forcing
	// extendForHole's rollback path.
	faulty := blockfstest.NewFaultyDevice(dev, 4)
	fs2, err := ufs.Init(faulty)
	require.NoError(t, err)

	fd, err = fs2.Open("hole.txt", ufs.WRONLY)
	require.NoError(t, err)
	_, err = fs2.Lseek(fd, int64(block.Size*3))
	require.NoError(t, err)
	_, err = fs2.Write(fd, []byte("far"))
	require.Error(t, err)
	require.NoError(t, fs2.Close(fd))

	after, err := fs.Stat("hole.txt")
	require.NoError(t, err)
	require.Equal(t, before, after)
}
