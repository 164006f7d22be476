package ufs_test

import (
	"testing"

	"github.com/changxiaoxie/ufs"
	"github.com/changxiaoxie/ufs/blockfstest"
	"github.com/stretchr/testify/require"
)

func TestInitFormatsFreshDevice(t *testing.T) {
	dev := blockfstest.NewDevice(64)
	fs, err := ufs.Init(dev)
	require.NoError(t, err)
	require.NotNil(t, fs)

	entries, err := fs.Ls()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	names := []string{entries[0].Name, entries[1].Name}
	require.Contains(t, names, ".")
	require.Contains(t, names, "..")
}

func TestInitRemountsFormattedDevice(t *testing.T) {
	dev := blockfstest.NewDevice(64)
	_, err := ufs.Init(dev)
	require.NoError(t, err)

	fs2, err := ufs.Init(dev)
	require.NoError(t, err)

	require.NoError(t, fs2.Mkdir("persisted"))

	fs3, err := ufs.Init(dev)
	require.NoError(t, err)
	_, err = fs3.Stat("persisted")
	require.NoError(t, err)
}
