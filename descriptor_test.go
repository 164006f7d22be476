package ufs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestModeCapabilities(t *testing.T) {
	require.True(t, RDONLY.readable())
	require.False(t, RDONLY.writable())
	require.True(t, WRONLY.writable())
	require.False(t, WRONLY.readable())
	require.True(t, RDWR.readable())
	require.True(t, RDWR.writable())
	require.False(t, Mode(99).valid())
}

func TestOpenFileTableExhaustion(t *testing.T) {
	var table openFileTable
	for i := 0; i < MaxFileDescriptors; i++ {
		_, err := table.open(uint32(i), RDONLY)
		require.NoError(t, err)
	}
	_, err := table.open(999, RDONLY)
	require.Error(t, err)
}

func TestOpenFileTableCloseFreesSlot(t *testing.T) {
	var table openFileTable
	fd, err := table.open(5, RDWR)
	require.NoError(t, err)
	table.close(fd)

	_, err = table.get(fd)
	require.Error(t, err)

	fd2, err := table.open(6, RDWR)
	require.NoError(t, err)
	require.Equal(t, fd, fd2)
}

func TestOpenFileTableGetRejectsBadFD(t *testing.T) {
	var table openFileTable
	_, err := table.get(-1)
	require.Error(t, err)
	_, err = table.get(MaxFileDescriptors)
	require.Error(t, err)
}
