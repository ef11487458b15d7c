package master

import (
	"testing"
	"time"

	"github.com/jkachoura/scara-master/internal/iomap"
	"github.com/jkachoura/scara-master/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newAutoVirtual returns a transport.Virtual with one recognized drive that
// reports operation_enabled every cycle. Virtual's StateCheck/WriteState
// calls immediately reflect the requested target, simulating a bus with no
// real negotiation delay — enough for Startup's bookkeeping to be exercised
// without a live fieldbus.
func newAutoVirtual() *transport.Virtual {
	v := transport.NewVirtual()
	v.AddSlave(1, "CMMT-AS", 0x7b5a25, 15, 15)
	v.Hook = func(v *transport.Virtual) {
		info, _ := v.Slave(1)
		status := uint16(1 << iomap.StatusOperationEnabled)
		info.Input[0] = uint8(status)
		info.Input[1] = uint8(status >> 8)
	}
	return v
}

func TestStartupReachesOperationalAndStartsLoop(t *testing.T) {
	v := newAutoVirtual()
	m := New(v, "vcan0", time.Millisecond, false)

	err := m.Startup()
	require.NoError(t, err)
	assert.True(t, m.Connected())
	assert.NotNil(t, m.Drive(1))

	time.Sleep(5 * time.Millisecond)
	assert.Greater(t, v.SendCount(), 0)
	assert.Greater(t, v.ReceiveCount(), 0)

	require.NoError(t, m.Shutdown())
	assert.False(t, m.Connected())
}

func TestStartupFailsOnUnresolvableInterface(t *testing.T) {
	v := transport.NewVirtual()
	m := New(v, "", time.Millisecond, false)

	err := m.Startup()
	assert.Error(t, err)
}

func TestStartupSkipsUnrecognizedDrives(t *testing.T) {
	v := transport.NewVirtual()
	v.AddSlave(1, "some-other-device", 0, 15, 15)
	m := New(v, "vcan0", time.Millisecond, false)

	err := m.Startup()
	require.NoError(t, err)
	assert.Nil(t, m.Drive(1))
	require.NoError(t, m.Shutdown())
}

func TestShutdownIsIdempotent(t *testing.T) {
	v := newAutoVirtual()
	m := New(v, "vcan0", time.Millisecond, false)
	require.NoError(t, m.Startup())
	require.NoError(t, m.Shutdown())
	require.NoError(t, m.Shutdown())
}

// TestCycleSurvivesDeadlineMiss exercises spec scenario 6: the exchange
// takes longer than the configured cycle time. cycle() must log and move on
// rather than stall waiting for a sleep duration that would be negative.
func TestCycleSurvivesDeadlineMiss(t *testing.T) {
	v := newAutoVirtual()
	v.ReceiveDelay = 5 * time.Millisecond
	m := New(v, "vcan0", time.Millisecond, false)

	require.NoError(t, m.Startup())
	time.Sleep(30 * time.Millisecond)

	assert.GreaterOrEqual(t, v.ReceiveCount(), 5)
	require.NoError(t, m.Shutdown())
}
