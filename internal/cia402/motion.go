package cia402

import (
	"encoding/binary"
	"time"

	"github.com/jkachoura/scara-master/internal/iomap"
	"github.com/sirupsen/logrus"
)

// PositionTaskOptions parametrizes a profile-position motion.
type PositionTaskOptions struct {
	Target       int32
	Velocity     *uint32 // optional, written to ProfileVelocity
	Acceleration *uint32 // optional, SDO 0x6083:00
	Deceleration *uint32 // optional, SDO 0x6084:00
	Absolute     bool
	Nonblocking  bool
}

// PositionTask runs the profile-position handshake: set mode, optionally
// write velocity/accel/decel, stage the target, start the motion, and
// (unless Nonblocking) wait for ack_start then mc before returning. Polling
// only mc is forbidden — a stale mc from a previous motion would otherwise
// look like completion, so ack_start must rise first.
func (e *Engine) PositionTask(opts PositionTaskOptions) error {
	if err := e.requireReady(); err != nil {
		return err
	}
	if opts.Velocity != nil {
		if err := e.img.SetUint32(e.Slave, iomap.OutputProfileVelocity, *opts.Velocity); err != nil {
			return err
		}
	}
	if opts.Acceleration != nil {
		if err := e.sdoWriteUint32(0x6083, 0x00, *opts.Acceleration); err != nil {
			return err
		}
	}
	if opts.Deceleration != nil {
		if err := e.sdoWriteUint32(0x6084, 0x00, *opts.Deceleration); err != nil {
			return err
		}
	}

	if err := e.SetMode(iomap.ModeProfilePosition); err != nil {
		return err
	}
	if _, err := e.img.UnsetControl(e.Slave); err != nil {
		return err
	}
	if !opts.Absolute {
		if _, err := e.img.SetBit(e.Slave, iomap.OutputControlword, iomap.ControlBit6); err != nil {
			return err
		}
	}
	if err := e.img.SetInt32(e.Slave, iomap.OutputTargetPosition, opts.Target); err != nil {
		return err
	}
	e.waitCycle()
	if _, err := e.img.UnsetBit(e.Slave, iomap.OutputControlword, iomap.ControlHalt); err != nil {
		return err
	}
	if _, err := e.img.SetBit(e.Slave, iomap.OutputControlword, iomap.ControlBit4); err != nil {
		return err
	}

	if opts.Nonblocking {
		return nil
	}
	return e.waitForTargetReached()
}

// waitForTargetReached is the ack_start -> mc handshake shared by
// PositionTask, RecordTask and the public WaitForTargetPosition.
func (e *Engine) waitForTargetReached() error {
	for {
		ack, err := e.img.GetBit(e.Slave, iomap.InputStatusword, iomap.StatusAckStart)
		if err != nil {
			return err
		}
		if ack {
			break
		}
		e.waitCycle()
	}
	for {
		mc, err := e.img.GetBit(e.Slave, iomap.InputStatusword, iomap.StatusTargetReached)
		if err != nil {
			return err
		}
		if mc {
			return nil
		}
		if _, err := e.img.UnsetControl(e.Slave); err != nil {
			return err
		}
		e.waitCycle()
	}
}

// WaitForTargetPosition blocks until the currently running motion's
// ack_start and mc sequence completes. Intended for callers that started a
// motion with Nonblocking set and want to join it later.
func (e *Engine) WaitForTargetPosition() error {
	if err := e.requireReady(); err != nil {
		return err
	}
	return e.waitForTargetReached()
}

// VelocityTask runs the profile-velocity handshake. duration of 0 returns
// once the target velocity is reached (mc); a positive duration sleeps
// that long after mc and then issues StopMotion.
func (e *Engine) VelocityTask(velocity int32, duration time.Duration) error {
	if velocity < 0 {
		return ErrNegativeVelocity
	}
	if err := e.requireReady(); err != nil {
		return err
	}
	if err := e.SetMode(iomap.ModeProfileVelocity); err != nil {
		return err
	}
	if err := e.img.SetInt32(e.Slave, iomap.OutputTargetVelocity, velocity); err != nil {
		return err
	}
	e.waitCycle()
	if _, err := e.img.UnsetBit(e.Slave, iomap.OutputControlword, iomap.ControlHalt); err != nil {
		return err
	}

	for {
		rc, err := e.img.GetBit(e.Slave, iomap.InputStatusword, iomap.StatusVelocityError)
		if err != nil {
			return err
		}
		if rc {
			return ErrVelocityFollowing
		}
		mc, err := e.img.GetBit(e.Slave, iomap.InputStatusword, iomap.StatusTargetReached)
		if err != nil {
			return err
		}
		if mc {
			break
		}
		e.waitCycle()
	}

	if duration > 0 {
		time.Sleep(duration)
		return e.StopMotion()
	}
	return nil
}

// ReferencingTask runs the homing handshake. If the drive already reports
// homed and always is false, it returns immediately without re-homing.
func (e *Engine) ReferencingTask(always bool) error {
	if err := e.requireReady(); err != nil {
		return err
	}
	if err := e.SetMode(iomap.ModeHoming); err != nil {
		return err
	}
	homed, err := e.img.GetBit(e.Slave, iomap.InputStatusword, iomap.StatusHomed)
	if err != nil {
		return err
	}
	if homed && !always {
		logrus.Debugf("[CIA402][%d] already homed", e.Slave)
		return nil
	}

	if _, err := e.img.UnsetControl(e.Slave); err != nil {
		return err
	}
	if _, err := e.img.SetBit(e.Slave, iomap.OutputControlword, iomap.ControlBit4); err != nil {
		return err
	}
	for {
		// ref_reached shares bit position 12 with ack_start in homing mode.
		refReached, err := e.img.GetBit(e.Slave, iomap.InputStatusword, iomap.StatusAckStart)
		if err != nil {
			return err
		}
		if refReached {
			break
		}
		e.waitCycle()
	}
	_, err = e.img.UnsetBit(e.Slave, iomap.OutputControlword, iomap.ControlBit4)
	return err
}

// JogTask drives the jog handshake: exactly one of positive/negative must
// be requested. duration of 0 leaves the jog running; a positive duration
// sleeps that long then issues StopMotion.
func (e *Engine) JogTask(positive, negative bool, duration time.Duration) error {
	if positive && negative {
		return ErrJogBothDirections
	}
	if !positive && !negative {
		return ErrJogNoDirection
	}
	if err := e.requireReady(); err != nil {
		return err
	}
	if err := e.SetMode(iomap.ModeJog); err != nil {
		return err
	}
	if _, err := e.img.UnsetControl(e.Slave); err != nil {
		return err
	}
	for {
		mc, err := e.img.GetBit(e.Slave, iomap.InputStatusword, iomap.StatusTargetReached)
		if err != nil {
			return err
		}
		if mc {
			break
		}
		e.waitCycle()
	}

	bit := iomap.ControlBit4
	if negative {
		bit = iomap.ControlBit5
	}
	if _, err := e.img.SetBit(e.Slave, iomap.OutputControlword, bit); err != nil {
		return err
	}
	if duration > 0 {
		time.Sleep(duration)
		return e.StopMotion()
	}
	return nil
}

// StopMotion clears the motion control bits and waits for mc to rise,
// signaling the drive has come to rest. It does not assert a safety-rated
// halt (control_halt stays clear-only) — the drive's own profile
// deceleration brings it to a stop.
func (e *Engine) StopMotion() error {
	if err := e.requireReady(); err != nil {
		return err
	}
	if _, err := e.img.UnsetControl(e.Slave); err != nil {
		return err
	}
	for {
		mc, err := e.img.GetBit(e.Slave, iomap.InputStatusword, iomap.StatusTargetReached)
		if err != nil {
			return err
		}
		if mc {
			return nil
		}
		e.waitCycle()
	}
}

// RecordTask launches a pre-parameterized motion sequence by record number.
// The SDO record-select write is issued outside the image mutex — SDO
// traffic goes through the mailbox, not the process-data image, and
// holding the image lock across it only adds latency for no correctness
// benefit.
func (e *Engine) RecordTask(record int32) error {
	if err := e.requireReady(); err != nil {
		return err
	}
	if err := e.SetMode(iomap.ModeRecord); err != nil {
		return err
	}
	if _, err := e.img.UnsetControl(e.Slave); err != nil {
		return err
	}
	if err := e.sdoWriteInt32(0x216F, 0x14, record); err != nil {
		return err
	}
	e.waitCycle()
	if _, err := e.img.UnsetBit(e.Slave, iomap.OutputControlword, iomap.ControlHalt); err != nil {
		return err
	}
	if _, err := e.img.SetBit(e.Slave, iomap.OutputControlword, iomap.ControlBit4); err != nil {
		return err
	}
	return e.waitForTargetReached()
}

// CurrentRecord reads back the record number currently executing via SDO.
func (e *Engine) CurrentRecord() (int32, error) {
	buf := make([]byte, 4)
	n, err := e.bus.SDORead(e.Slave, 0x216F, 0x14, false, buf, SDOTimeout)
	if err != nil {
		return 0, err
	}
	if n < 4 {
		return 0, nil
	}
	return int32(binary.LittleEndian.Uint32(buf)), nil
}

func (e *Engine) sdoWriteUint32(index uint16, subindex uint8, value uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)
	return e.bus.SDOWrite(e.Slave, index, subindex, false, buf, SDOTimeout)
}

func (e *Engine) sdoWriteInt32(index uint16, subindex uint8, value int32) error {
	return e.sdoWriteUint32(index, subindex, uint32(value))
}
