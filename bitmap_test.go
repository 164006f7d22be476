package ufs_test

import (
	"testing"

	"github.com/changxiaoxie/ufs"
	"github.com/changxiaoxie/ufs/blockfstest"
	"github.com/stretchr/testify/require"
)

// These tests exercise the allocator indirectly through file writes, since
// Bitmap itself is unexported; Alloc/Free correctness is what lets files
// grow and shrink correctly across many open/close cycles.

func TestAllocReusesFreedBlocks(t *testing.T) {
	dev := blockfstest.NewDevice(64)
	fs, err := ufs.Init(dev)
	require.NoError(t, err)

	for i := 0; i < 64; i++ {
		fd, err := fs.Open("churn.txt", ufs.WRONLY)
		require.NoError(t, err)
		_, err = fs.Write(fd, []byte("abcdefgh"))
		require.NoError(t, err)
		require.NoError(t, fs.Close(fd))
		require.NoError(t, fs.Unlink("churn.txt"))
	}

	// A 64-block device has 59 data blocks, one of them the root directory's,
	// so 64 one-block files would run out of space if freed blocks weren't
	// reclaimed by the allocator.
	fd, err := fs.Open("final.txt", ufs.WRONLY)
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("ok"))
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))
}

func TestWriteFailsWhenDeviceIsFull(t *testing.T) {
	dev := blockfstest.NewDevice(22)
	fs, err := ufs.Init(dev)
	require.NoError(t, err)

	// A 22-block device has 19 data blocks, one of them the root
	// directory's; two full-size files take 16 more, leaving 2 free.
	for _, name := range []string{"fill1.bin", "fill2.bin"} {
		fd, err := fs.Open(name, ufs.WRONLY)
		require.NoError(t, err)
		n, err := fs.Write(fd, make([]byte, ufs.MaxFileSize))
		require.NoError(t, err)
		require.Equal(t, ufs.MaxFileSize, n)
		require.NoError(t, fs.Close(fd))
	}

	fd, err := fs.Open("big.bin", ufs.WRONLY)
	require.NoError(t, err)

	payload := make([]byte, ufs.MaxFileSize)
	n, err := fs.Write(fd, payload)
	// Only 2 data blocks remain, fewer than the 8 MaxFileSize needs, so the
	// allocator must run out mid-write; write stops early rather than
	// failing the call outright.
	require.NoError(t, err)
	require.Less(t, n, len(payload))
	require.NoError(t, fs.Close(fd))
}
