package block_test

import (
	"testing"

	"github.com/changxiaoxie/ufs/block"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

func TestStreamDeviceReadWriteRoundTrip(t *testing.T) {
	buf := make([]byte, 4*block.Size)
	dev := block.NewStreamDevice(bytesextra.NewReadWriteSeeker(buf), 4)

	payload := make([]byte, block.Size)
	for i := range payload {
		payload[i] = byte(i % 256)
	}
	require.NoError(t, dev.WriteBlock(2, payload))

	out := make([]byte, block.Size)
	require.NoError(t, dev.ReadBlock(2, out))
	require.Equal(t, payload, out)
}

func TestStreamDeviceRejectsOutOfRangeBlock(t *testing.T) {
	buf := make([]byte, 2*block.Size)
	dev := block.NewStreamDevice(bytesextra.NewReadWriteSeeker(buf), 2)

	err := dev.ReadBlock(5, make([]byte, block.Size))
	require.Error(t, err)
}

func TestStreamDeviceRejectsWrongSizedBuffer(t *testing.T) {
	buf := make([]byte, 2*block.Size)
	dev := block.NewStreamDevice(bytesextra.NewReadWriteSeeker(buf), 2)

	err := dev.WriteBlock(0, make([]byte, block.Size-1))
	require.Error(t, err)
}

func TestStreamDeviceBlockCount(t *testing.T) {
	buf := make([]byte, 3*block.Size)
	dev := block.NewStreamDevice(bytesextra.NewReadWriteSeeker(buf), 3)
	require.EqualValues(t, 3, dev.BlockCount())
}
