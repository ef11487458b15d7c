// Package cia402 implements the per-slave CiA 402 state/mode machine: power
// stage enable/disable, fault reset, mode changes, and the motion task
// handshakes built on top of them (motion.go). It talks to the shared
// process-data image (internal/iomap) for cyclic bits and to the transport
// for the occasional SDO write a motion task needs (acceleration, record
// number, PDO mapping lives in internal/pdocfg instead).
package cia402

import (
	"time"

	"github.com/jkachoura/scara-master/internal/iomap"
	"github.com/jkachoura/scara-master/internal/transport"
	"github.com/sirupsen/logrus"
)

// Engine drives one slave's CiA 402 state machine. It is not safe for
// concurrent motion commands on the same slave — the spec treats that as
// unsupported, matching a real drive's single active command semantics.
type Engine struct {
	Slave       uint16
	img         *iomap.Image
	bus         transport.Bus
	cycleTime   time.Duration
	operational func() bool
}

// NewEngine builds an Engine for one slave. operational reports whether the
// bus is in OP and the cyclic loop is running — the precondition every
// motion task checks before touching the image.
func NewEngine(slave uint16, img *iomap.Image, bus transport.Bus, cycleTime time.Duration, operational func() bool) *Engine {
	return &Engine{
		Slave:       slave,
		img:         img,
		bus:         bus,
		cycleTime:   cycleTime,
		operational: operational,
	}
}

func (e *Engine) waitCycle() {
	time.Sleep(e.cycleTime)
}

// ready reports whether the drive is enabled and the bus is running, per
// the precondition every motion task checks (spec 4.5 "Precondition guard").
func (e *Engine) ready() (bool, error) {
	if e.operational == nil || !e.operational() {
		return false, nil
	}
	enabled, err := e.img.GetBit(e.Slave, iomap.InputStatusword, iomap.StatusOperationEnabled)
	if err != nil {
		return false, err
	}
	return enabled, nil
}

func (e *Engine) requireReady() error {
	ok, err := e.ready()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDriveNotEnabled
	}
	return nil
}

// EnablePowerstage resets faults, then drives the CiA 402 state sequence:
// assert quick_stop+enable_voltage until observed, then
// enable_operation+switch_on until observed. Returns nil once all three
// status bits (voltage_enabled, quick_stop, operation_enabled) are set.
func (e *Engine) EnablePowerstage() error {
	logrus.Debugf("[CIA402][%d] enabling power stage", e.Slave)
	if err := e.AcknowledgeFaults(); err != nil {
		return err
	}

	timeout := MaxPowerStageCycles
	for timeout > 0 {
		voltage, err := e.img.GetBit(e.Slave, iomap.InputStatusword, iomap.StatusVoltageEnabled)
		if err != nil {
			return err
		}
		quickStop, err := e.img.GetBit(e.Slave, iomap.InputStatusword, iomap.StatusQuickStop)
		if err != nil {
			return err
		}
		if voltage && quickStop {
			break
		}
		if _, err := e.img.SetBit(e.Slave, iomap.OutputControlword, iomap.ControlQuickStop); err != nil {
			return err
		}
		if _, err := e.img.SetBit(e.Slave, iomap.OutputControlword, iomap.ControlEnableVoltage); err != nil {
			return err
		}
		e.waitCycle()
		timeout--
	}

	for timeout > 0 {
		opEnabled, err := e.img.GetBit(e.Slave, iomap.InputStatusword, iomap.StatusOperationEnabled)
		if err != nil {
			return err
		}
		if opEnabled {
			break
		}
		if _, err := e.img.SetBit(e.Slave, iomap.OutputControlword, iomap.ControlEnableOperation); err != nil {
			return err
		}
		if _, err := e.img.SetBit(e.Slave, iomap.OutputControlword, iomap.ControlSwitchOn); err != nil {
			return err
		}
		e.waitCycle()
		timeout--
	}

	voltage, err := e.img.GetBit(e.Slave, iomap.InputStatusword, iomap.StatusVoltageEnabled)
	if err != nil {
		return err
	}
	quickStop, err := e.img.GetBit(e.Slave, iomap.InputStatusword, iomap.StatusQuickStop)
	if err != nil {
		return err
	}
	opEnabled, err := e.img.GetBit(e.Slave, iomap.InputStatusword, iomap.StatusOperationEnabled)
	if err != nil {
		return err
	}
	if voltage && quickStop && opEnabled {
		logrus.Debugf("[CIA402][%d] power stage enabled", e.Slave)
		return nil
	}
	logrus.Warnf("[CIA402][%d] power stage enable timed out", e.Slave)
	return ErrPowerStageTimeout
}

// DisablePowerstage clears enable_operation and switch_on, waits one cycle,
// then clears quick_stop and enable_voltage, polling until operation_enabled drops.
func (e *Engine) DisablePowerstage() error {
	if _, err := e.img.UnsetBit(e.Slave, iomap.OutputControlword, iomap.ControlEnableOperation); err != nil {
		return err
	}
	if _, err := e.img.UnsetBit(e.Slave, iomap.OutputControlword, iomap.ControlSwitchOn); err != nil {
		return err
	}
	e.waitCycle()
	if _, err := e.img.UnsetBit(e.Slave, iomap.OutputControlword, iomap.ControlQuickStop); err != nil {
		return err
	}
	if _, err := e.img.UnsetBit(e.Slave, iomap.OutputControlword, iomap.ControlEnableVoltage); err != nil {
		return err
	}

	timeout := MaxPowerStageCycles
	for timeout > 0 {
		enabled, err := e.img.GetBit(e.Slave, iomap.InputStatusword, iomap.StatusOperationEnabled)
		if err != nil {
			return err
		}
		if !enabled {
			return nil
		}
		e.waitCycle()
		timeout--
	}
	return ErrPowerStageTimeout
}

// AcknowledgeFaults zeroes the output buffer once (to avoid retriggering
// the stored command that caused the fault) then pulses fault_reset while
// fault or warning remains set.
func (e *Engine) AcknowledgeFaults() error {
	faulted, err := e.hasFaultOrWarning()
	if err != nil {
		return err
	}
	if !faulted {
		return nil
	}
	logrus.Debugf("[CIA402][%d] acknowledging faults", e.Slave)
	if err := e.img.ZeroOutput(e.Slave); err != nil {
		return err
	}
	e.waitCycle()

	for {
		faulted, err := e.hasFaultOrWarning()
		if err != nil {
			return err
		}
		if !faulted {
			return nil
		}
		if _, err := e.img.SetBit(e.Slave, iomap.OutputControlword, iomap.ControlFaultReset); err != nil {
			return err
		}
		e.waitCycle()
		if _, err := e.img.UnsetBit(e.Slave, iomap.OutputControlword, iomap.ControlFaultReset); err != nil {
			return err
		}
	}
}

func (e *Engine) hasFaultOrWarning() (bool, error) {
	fault, err := e.img.GetBit(e.Slave, iomap.InputStatusword, iomap.StatusFault)
	if err != nil {
		return false, err
	}
	warning, err := e.img.GetBit(e.Slave, iomap.InputStatusword, iomap.StatusWarning)
	if err != nil {
		return false, err
	}
	return fault || warning, nil
}

// GetError reports a negative count reflecting fault/warning bits currently
// latched on the drive (0 means neither is set). It is cleared only by
// AcknowledgeFaults, never automatically across cycles.
func (e *Engine) GetError() (int, error) {
	count := 0
	fault, err := e.img.GetBit(e.Slave, iomap.InputStatusword, iomap.StatusFault)
	if err != nil {
		return 0, err
	}
	if fault {
		count--
	}
	warning, err := e.img.GetBit(e.Slave, iomap.InputStatusword, iomap.StatusWarning)
	if err != nil {
		return 0, err
	}
	if warning {
		count--
	}
	return count, nil
}

// SetMode requests a new mode of operation and waits, bounded, for
// ModeDisplay to echo it back — the drive can hold the previous mode for
// several cycles, so this must not assume monotone progress. On success it
// calls unsetControl a final time so the next motion start presents a
// clean edge.
func (e *Engine) SetMode(mode uint8) error {
	timeout := MaxModeChangeCycles
	for timeout > 0 {
		display, err := e.img.GetByte(e.Slave, iomap.InputModeDisplay)
		if err != nil {
			return err
		}
		if display == mode {
			break
		}
		if _, err := e.img.UnsetControl(e.Slave); err != nil {
			return err
		}
		if err := e.img.SetByte(e.Slave, iomap.OutputMode, mode); err != nil {
			return err
		}
		e.waitCycle()
		timeout--
	}

	display, err := e.img.GetByte(e.Slave, iomap.InputModeDisplay)
	if err != nil {
		return err
	}
	if display != mode {
		logrus.Warnf("[CIA402][%d] mode change to %d timed out, drive reports %d", e.Slave, mode, display)
		return ErrModeChangeTimeout
	}
	_, err = e.img.UnsetControl(e.Slave)
	return err
}
