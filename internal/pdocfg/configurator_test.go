package pdocfg

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/jkachoura/scara-master/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupportsMatchesPrefixAndEepID(t *testing.T) {
	assert.True(t, Supports("CMMT-AS-C2-...", 0))
	assert.True(t, Supports("unknown-name", 0x7b1a95))
	assert.False(t, Supports("some-other-drive", 0xdeadbeef))
}

func TestMapDriveWritesExpectedObjects(t *testing.T) {
	v := transport.NewVirtual()
	v.AddSlave(1, "CMMT-AS", 0x7b5a25, 15, 15)

	c := New(v, 2*time.Millisecond)
	successes, err := c.MapDrive(1)
	require.NoError(t, err)
	assert.Equal(t, 9, successes)

	buf := make([]byte, len(rxPDOEntries)*4)
	n, err := v.SDORead(1, 0x1600, 0x01, true, buf, DefaultTimeout)
	require.NoError(t, err)
	assert.Equal(t, len(rxPDOEntries)*4, n)
	assert.Equal(t, rxPDOEntries[0], binary.LittleEndian.Uint32(buf))

	lenBuf := make([]byte, 1)
	_, err = v.SDORead(1, 0x1A00, 0x00, false, lenBuf, DefaultTimeout)
	require.NoError(t, err)
	assert.Equal(t, uint8(declaredTxPDOLength), lenBuf[0])

	txBuf := make([]byte, len(txPDOEntries)*4)
	n, err = v.SDORead(1, 0x1A00, 0x01, true, txBuf, DefaultTimeout)
	require.NoError(t, err)
	assert.Equal(t, len(txPDOEntries)*4, n, "declared TxPDO length intentionally exceeds the entry count actually written")
}

func TestMapDrivePartialFailureStillReturnsCount(t *testing.T) {
	v := transport.NewVirtual()
	v.AddSlave(1, "CMMT-AS", 0x7b5a25, 15, 15)
	v.FailSDO(1, 0x1C12, 0x01, true)

	c := New(v, 2*time.Millisecond)
	successes, err := c.MapDrive(1)
	require.NoError(t, err)
	assert.Equal(t, 8, successes)
}
