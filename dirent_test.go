package ufs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/changxiaoxie/ufs/blockfstest"
	"github.com/changxiaoxie/ufs/errs"
)

func TestDirentEncodeDecodeRoundTrip(t *testing.T) {
	d := dirent{Inode: 7, Name: "readme.txt"}
	got := decodeDirent(encodeDirent(d))
	require.Equal(t, d, got)
}

func TestLastBlockEntryCountHandlesExactMultiple(t *testing.T) {
	// A full last block leaves size % block.Size at 510 (15 entries), so a
	// zero remainder only arises for an empty directory; it must still
	// report a full block, not an empty one.
	require.EqualValues(t, EntriesPerBlock, lastBlockEntryCount(512))
	require.EqualValues(t, 0, lastBlockEntryCount(0)%EntriesPerBlock)
}

// newTestDirEngine wires up a dirEngine plus an inode table it can persist
// into, and writes a fresh directory inode at index 0 for tests to mutate.
func newTestDirEngine(t *testing.T, blockCount uint32) (*dirEngine, *InodeManager, Inode) {
	t.Helper()
	dev := blockfstest.NewDevice(blockCount)
	layout, err := ComputeLayout(blockCount)
	require.NoError(t, err)
	bm, err := newBitmap(dev, layout)
	require.NoError(t, err)
	im := newInodeManager(dev, layout, bm)

	var dir Inode
	initInode(&dir, TypeDirectory)
	require.NoError(t, im.Write(0, dir))

	return newDirEngine(dev, bm, im), im, dir
}

func TestDirEngineAddFindRemove(t *testing.T) {
	de, _, dir := newTestDirEngine(t, 64)

	require.NoError(t, de.add(0, &dir, "a", 10))
	require.NoError(t, de.add(0, &dir, "b", 11))
	require.NoError(t, de.add(0, &dir, "c", 12))

	inodeNum, err := de.find(dir, "b")
	require.NoError(t, err)
	require.EqualValues(t, 11, inodeNum)

	require.NoError(t, de.remove(0, &dir, "a"))
	_, err = de.find(dir, "a")
	require.Error(t, err)

	// "b" and "c" must both still be reachable after "a" was swapped out.
	_, err = de.find(dir, "b")
	require.NoError(t, err)
	_, err = de.find(dir, "c")
	require.NoError(t, err)
}

func TestDirEngineRejectsOversizedName(t *testing.T) {
	de, _, dir := newTestDirEngine(t, 64)

	longName := make([]byte, MaxFileName+1)
	for i := range longName {
		longName[i] = 'x'
	}
	require.Error(t, de.add(0, &dir, string(longName), 1))
}

func TestDirEngineFillsAcrossMultipleBlocks(t *testing.T) {
	de, _, dir := newTestDirEngine(t, 64)

	for i := 0; i < EntriesPerBlock+1; i++ {
		name := string(rune('a' + i%26))
		require.NoError(t, de.add(0, &dir, name+string(rune('0'+i/26)), uint32(i+1)))
	}
	require.EqualValues(t, 2, dir.InUseBlocks)
}

// TestDirEngineFillsToExactCapacityThenRejects exercises the explicit
// boundary case: a directory can hold exactly dirCapacity entries across
// all DataBlockNum direct blocks, and the next add past that must fail with
// ErrDirectoryFull rather than allocating a ninth block.
func TestDirEngineFillsToExactCapacityThenRejects(t *testing.T) {
	de, _, dir := newTestDirEngine(t, 256)

	for i := 0; i < dirCapacity; i++ {
		name := fmt.Sprintf("f%d", i)
		require.NoError(t, de.add(0, &dir, name, uint32(i+1)))
	}
	require.EqualValues(t, DataBlockNum, dir.InUseBlocks)

	err := de.add(0, &dir, "overflow", 9999)
	require.ErrorIs(t, err, errs.ErrDirectoryFull)
}
