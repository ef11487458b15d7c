package master

import (
	"time"

	"github.com/jkachoura/scara-master/internal/cia402"
)

// Drive is a thin façade binding a Master and one slave index to the
// cia402 engine's motion tasks, mirroring the original firmware's per-axis
// Slave wrapper around the shared Master.
type Drive struct {
	Slave  uint16
	master *Master
	engine *cia402.Engine
}

func newDrive(m *Master, slave uint16) *Drive {
	return &Drive{
		Slave:  slave,
		master: m,
		engine: cia402.NewEngine(slave, m.img, m.bus, m.cycleTime, m.Connected),
	}
}

// Enable resets faults and brings the power stage up.
func (d *Drive) Enable() error { return d.engine.EnablePowerstage() }

// Disable drops the power stage.
func (d *Drive) Disable() error { return d.engine.DisablePowerstage() }

// AcknowledgeFaults clears any latched fault/warning: it zeroes the whole
// output image once (which also drops the power stage control bits) and
// then pulses fault_reset until fault and warning are clear.
func (d *Drive) AcknowledgeFaults() error { return d.engine.AcknowledgeFaults() }

// Error reports a negative count of latched fault/warning bits (0 = none).
func (d *Drive) Error() (int, error) { return d.engine.GetError() }

// MoveAbsolute runs a blocking profile-position move to an absolute target.
func (d *Drive) MoveAbsolute(target int32) error {
	return d.engine.PositionTask(cia402.PositionTaskOptions{Target: target, Absolute: true})
}

// MoveRelative runs a blocking profile-position move relative to the
// current position.
func (d *Drive) MoveRelative(delta int32) error {
	return d.engine.PositionTask(cia402.PositionTaskOptions{Target: delta, Absolute: false})
}

// MoveAbsoluteAsync starts an absolute profile-position move without
// waiting for completion; call Wait to join it.
func (d *Drive) MoveAbsoluteAsync(target int32) error {
	return d.engine.PositionTask(cia402.PositionTaskOptions{Target: target, Absolute: true, Nonblocking: true})
}

// Wait blocks until the currently running motion's ack_start/mc handshake completes.
func (d *Drive) Wait() error { return d.engine.WaitForTargetPosition() }

// RunVelocity runs a profile-velocity motion for the given duration (0 = indefinite).
func (d *Drive) RunVelocity(velocity int32, duration time.Duration) error {
	return d.engine.VelocityTask(velocity, duration)
}

// Home runs the homing sequence. always forces re-homing even if the drive
// already reports homed.
func (d *Drive) Home(always bool) error { return d.engine.ReferencingTask(always) }

// Jog starts a jog motion in one direction for the given duration (0 = indefinite).
func (d *Drive) Jog(positive bool, duration time.Duration) error {
	return d.engine.JogTask(positive, !positive, duration)
}

// Stop clears the motion control bits and waits for the drive to settle.
func (d *Drive) Stop() error { return d.engine.StopMotion() }

// RunRecord executes a preconfigured motion sequence by record number.
func (d *Drive) RunRecord(record int32) error { return d.engine.RecordTask(record) }

// CurrentRecord reads back, via SDO, the record currently executing.
func (d *Drive) CurrentRecord() (int32, error) { return d.engine.CurrentRecord() }

// Position returns the actual position reported on the input PDO.
func (d *Drive) Position() (int32, error) { return d.master.GetPosition(d.Slave) }
