package iomap

import (
	"testing"

	"github.com/jkachoura/scara-master/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestImage(t *testing.T) (*Image, *transport.Virtual) {
	t.Helper()
	v := transport.NewVirtual()
	v.AddSlave(1, "CMMT-AS", 0x7b5a25, 15, 15)
	return New(v), v
}

func TestSetUnsetBit(t *testing.T) {
	img, _ := newTestImage(t)
	value, err := img.SetBit(1, OutputControlword, ControlEnableVoltage)
	require.NoError(t, err)
	assert.Equal(t, uint8(1<<ControlEnableVoltage), value)

	value, err = img.UnsetBit(1, OutputControlword, ControlEnableVoltage)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), value)
}

func TestSetBitWrapsAcrossByteBoundary(t *testing.T) {
	img, v := newTestImage(t)
	// bit 9 of byte 0 is bit 1 of byte 1
	_, err := img.SetBit(1, OutputControlword, ControlBit9)
	require.NoError(t, err)
	info, _ := v.Slave(1)
	assert.Equal(t, uint8(1<<1), info.Output[1])
}

func TestSetBitWrapsPastBufferEnd(t *testing.T) {
	img, v := newTestImage(t)
	info, _ := v.Slave(1)
	lastByte := uint8(len(info.Output) - 1)
	// bit 8 starting from the last byte must wrap around to byte 0, not fault
	_, err := img.SetBit(1, lastByte, 8)
	require.NoError(t, err)
	info, _ = v.Slave(1)
	assert.NotZero(t, info.Output[0])
}

func TestUnsetControlClearsStartBitsAndReturnsWord(t *testing.T) {
	img, _ := newTestImage(t)
	_, err := img.SetBit(1, OutputControlword, ControlBit4)
	require.NoError(t, err)
	_, err = img.SetBit(1, OutputControlword, ControlBit9)
	require.NoError(t, err)
	_, err = img.SetBit(1, OutputControlword, ControlEnableVoltage)
	require.NoError(t, err)

	word, err := img.UnsetControl(1)
	require.NoError(t, err)
	assert.Equal(t, uint16(1<<ControlEnableVoltage), word)
}

func TestSetGetInt32RoundTrips(t *testing.T) {
	img, v := newTestImage(t)
	require.NoError(t, img.SetInt32(1, OutputTargetPosition, -12345))

	info, _ := v.Slave(1)
	copy(info.Input, info.Output)

	got, err := img.GetInt32(1, OutputTargetPosition)
	require.NoError(t, err)
	assert.EqualValues(t, -12345, got)
}

func TestZeroOutputClearsEntireBuffer(t *testing.T) {
	img, v := newTestImage(t)
	require.NoError(t, img.SetByte(1, OutputMode, ModeProfilePosition))
	require.NoError(t, img.ZeroOutput(1))
	info, _ := v.Slave(1)
	for _, b := range info.Output {
		assert.Zero(t, b)
	}
}

func TestAccessorsOnUnknownSlaveFail(t *testing.T) {
	img, _ := newTestImage(t)
	_, err := img.GetBit(42, InputStatusword, StatusFault)
	assert.ErrorIs(t, err, transport.ErrSlaveOutOfRange)
}
