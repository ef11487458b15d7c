package cia402

import (
	"testing"
	"time"

	"github.com/jkachoura/scara-master/internal/iomap"
	"github.com/jkachoura/scara-master/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readyDriveModel simulates a drive that is already enabled (operation_enabled
// latched) and echoes the mode byte, acks a start within one cycle, and
// raises mc once the control start bit has been observed at least once.
type readyDriveModel struct {
	started bool
}

func (m *readyDriveModel) hook(v *transport.Virtual, slave uint16) {
	info, err := v.Slave(slave)
	if err != nil {
		return
	}
	status := uint16(1<<iomap.StatusOperationEnabled | 1<<iomap.StatusReadyToSwitchOn | 1<<iomap.StatusSwitchedOn)
	control := uint16(info.Output[0]) | uint16(info.Output[1])<<8
	if control&(1<<iomap.ControlBit4) != 0 {
		m.started = true
	}
	if m.started {
		status |= 1 << iomap.StatusAckStart
		status |= 1 << iomap.StatusTargetReached
	}
	info.Input[0] = uint8(status)
	info.Input[1] = uint8(status >> 8)
	info.Input[2] = info.Output[2]
}

func newReadyHarness(t *testing.T) (*Engine, *transport.Virtual, *readyDriveModel) {
	t.Helper()
	v := transport.NewVirtual()
	v.AddSlave(1, "CMMT-AS", 0x7b5a25, 15, 15)
	model := &readyDriveModel{}
	v.Hook = func(v *transport.Virtual) { model.hook(v, 1) }
	img := iomap.New(v)
	e := NewEngine(1, img, v, time.Millisecond, func() bool { return true })

	// One synchronous cycle so the enabled status is in the input image
	// before the caller's first requireReady check.
	v.SendProcessData()
	v.ReceiveProcessData(0)

	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				v.SendProcessData()
				v.ReceiveProcessData(0)
				time.Sleep(time.Millisecond)
			}
		}
	}()
	return e, v, model
}

func TestPositionTaskCompletesHandshake(t *testing.T) {
	e, _, _ := newReadyHarness(t)
	err := e.PositionTask(PositionTaskOptions{Target: 1000, Absolute: true})
	require.NoError(t, err)
}

func TestPositionTaskNonblockingThenWait(t *testing.T) {
	e, _, _ := newReadyHarness(t)
	err := e.PositionTask(PositionTaskOptions{Target: 500, Absolute: true, Nonblocking: true})
	require.NoError(t, err)
	require.NoError(t, e.WaitForTargetPosition())
}

func TestPositionTaskRequiresReady(t *testing.T) {
	v := transport.NewVirtual()
	v.AddSlave(1, "CMMT-AS", 0x7b5a25, 15, 15)
	img := iomap.New(v)
	e := NewEngine(1, img, v, time.Millisecond, func() bool { return true })

	err := e.PositionTask(PositionTaskOptions{Target: 10, Absolute: true})
	assert.ErrorIs(t, err, ErrDriveNotEnabled)
}

func TestJogTaskRejectsBothDirections(t *testing.T) {
	e, _, _ := newReadyHarness(t)
	err := e.JogTask(true, true, 0)
	assert.ErrorIs(t, err, ErrJogBothDirections)
}

func TestJogTaskRejectsNoDirection(t *testing.T) {
	e, _, _ := newReadyHarness(t)
	err := e.JogTask(false, false, 0)
	assert.ErrorIs(t, err, ErrJogNoDirection)
}

func TestRecordTaskWritesSDOAndCompletes(t *testing.T) {
	e, v, _ := newReadyHarness(t)
	err := e.RecordTask(3)
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := v.SDORead(1, 0x216F, 0x14, false, buf, SDOTimeout)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	got, err := e.CurrentRecord()
	require.NoError(t, err)
	assert.EqualValues(t, 3, got)
}

// TestPositionTaskIgnoresStaleTargetReachedBeforeAck covers spec scenario 3:
// mc left set from a previous motion must not be mistaken for completion of
// a new one. ack_start never rises here, so a correct handshake blocks.
func TestPositionTaskIgnoresStaleTargetReachedBeforeAck(t *testing.T) {
	v := transport.NewVirtual()
	v.AddSlave(1, "CMMT-AS", 0x7b5a25, 15, 15)
	v.Hook = func(v *transport.Virtual) {
		info, _ := v.Slave(1)
		status := uint16(1<<iomap.StatusOperationEnabled | 1<<iomap.StatusReadyToSwitchOn |
			1<<iomap.StatusSwitchedOn | 1<<iomap.StatusTargetReached)
		info.Input[0] = uint8(status)
		info.Input[1] = uint8(status >> 8)
		info.Input[2] = info.Output[2]
	}
	img := iomap.New(v)
	e := NewEngine(1, img, v, time.Millisecond, func() bool { return true })
	v.SendProcessData()
	v.ReceiveProcessData(0)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				v.SendProcessData()
				v.ReceiveProcessData(0)
				time.Sleep(time.Millisecond)
			}
		}
	}()

	done := make(chan error, 1)
	go func() {
		done <- e.PositionTask(PositionTaskOptions{Target: 1000, Absolute: true})
	}()

	select {
	case err := <-done:
		t.Fatalf("PositionTask returned early on stale mc without ack_start: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestVelocityTaskReportsFollowingError(t *testing.T) {
	v := transport.NewVirtual()
	v.AddSlave(1, "CMMT-AS", 0x7b5a25, 15, 15)
	v.Hook = func(v *transport.Virtual) {
		info, _ := v.Slave(1)
		status := uint16(1<<iomap.StatusOperationEnabled | 1<<iomap.StatusVelocityError)
		info.Input[0] = uint8(status)
		info.Input[1] = uint8(status >> 8)
		info.Input[2] = info.Output[2]
	}
	img := iomap.New(v)
	e := NewEngine(1, img, v, time.Millisecond, func() bool { return true })
	v.SendProcessData()
	v.ReceiveProcessData(0)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				v.SendProcessData()
				v.ReceiveProcessData(0)
				time.Sleep(time.Millisecond)
			}
		}
	}()

	err := e.VelocityTask(100, 0)
	assert.ErrorIs(t, err, ErrVelocityFollowing)
}
