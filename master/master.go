// Package master owns the EtherCAT startup/shutdown state machine and the
// cyclic exchange loop, and exposes one Drive façade per mapped slave.
package master

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jkachoura/scara-master/internal/cia402"
	"github.com/jkachoura/scara-master/internal/iomap"
	"github.com/jkachoura/scara-master/internal/pdocfg"
	"github.com/jkachoura/scara-master/internal/transport"
	"github.com/sirupsen/logrus"
)

// opStateRetries bounds the send/receive pump while waiting for all slaves
// to report OPERATIONAL after WriteState(0), matching the original
// master's fixed retry count.
const opStateRetries = 5

// stateTimeout bounds each individual StateCheck call during startup.
const stateTimeout = 2 * time.Second

// Master owns the transport, the shared process-data image and the cyclic
// loop goroutine. Exactly one Master exists per fieldbus interface.
type Master struct {
	bus       transport.Bus
	img       *iomap.Image
	iface     string
	cycleTime time.Duration
	verbose   bool

	drives map[uint16]*Drive

	inOP     int32 // atomic bool; Connected (each Engine's operational check) reads it without locking
	loopDone chan struct{}

	workingCtr int

	shutdownOnce sync.Once
	shutdownErr  error
}

// New builds a Master bound to the given transport, interface name and
// cycle time. It does not touch the bus until Startup is called.
func New(bus transport.Bus, iface string, cycleTime time.Duration, verbose bool) *Master {
	return &Master{
		bus:       bus,
		img:       iomap.New(bus),
		iface:     iface,
		cycleTime: cycleTime,
		verbose:   verbose,
		drives:    map[uint16]*Drive{},
	}
}

// Startup runs the INIT -> PRE-OP -> SAFE-OP -> OP sequence: bind the
// interface, enumerate slaves, map each recognized drive's PDOs, build the
// shared image, request SAFE-OP then OP, and pump process data once plus up
// to opStateRetries more times while waiting for the whole bus to go
// operational.
// On success it starts the cyclic loop goroutine.
func (m *Master) Startup() error {
	logrus.Debugf("[MASTER] starting init on %s", m.iface)
	if err := m.bus.Init(m.iface); err != nil {
		return fmt.Errorf("master: init: %w", err)
	}

	count, err := m.bus.ConfigInit()
	if err != nil {
		return fmt.Errorf("master: config init: %w", err)
	}
	logrus.Debugf("[MASTER] %d slaves found and configured", count)

	cfg := pdocfg.New(m.bus, m.cycleTime)
	for i := 1; i <= count; i++ {
		slave := uint16(i)
		info, err := m.bus.Slave(slave)
		if err != nil {
			return fmt.Errorf("master: slave %d: %w", i, err)
		}
		if !pdocfg.Supports(info.Name, info.EepID) {
			logrus.Debugf("[MASTER][%d] %q not a recognized drive, skipping PDO map", i, info.Name)
			continue
		}
		successes, err := cfg.MapDrive(slave)
		if err != nil {
			return fmt.Errorf("master: map drive %d: %w", i, err)
		}
		logrus.Debugf("[MASTER][%d] PDO map: %d writes ok", i, successes)
		m.drives[slave] = newDrive(m, slave)
	}

	if err := m.bus.ConfigMap(); err != nil {
		return fmt.Errorf("master: config map: %w", err)
	}
	if err := m.bus.ConfigDC(); err != nil {
		return fmt.Errorf("master: config dc: %w", err)
	}

	for i := 1; i <= count; i++ {
		state, err := m.bus.StateCheck(uint16(i), transport.StateSafeOp, stateTimeout)
		if err != nil {
			return fmt.Errorf("master: slave %d state check: %w", i, err)
		}
		if m.verbose || state != transport.StateSafeOp {
			logrus.Debugf("[MASTER][%d] trying to reach SAFE-OP, current state = %s", i, state)
		}
	}
	if _, err := m.bus.StateCheck(0, transport.StateSafeOp, stateTimeout); err != nil {
		return fmt.Errorf("master: bus state check: %w", err)
	}

	logrus.Debug("[MASTER] requesting OPERATIONAL for all slaves")
	if err := m.bus.WriteState(0); err != nil {
		return fmt.Errorf("master: write state: %w", err)
	}

	var state transport.BusState
	for tries := opStateRetries; tries >= 0; tries-- {
		if _, err := m.img.Exchange(m.bus.SendProcessData, func() (int, error) {
			return m.bus.ReceiveProcessData(stateTimeout)
		}); err != nil {
			return fmt.Errorf("master: process data exchange: %w", err)
		}
		state, err = m.bus.StateCheck(0, transport.StateOp, stateTimeout)
		if err != nil {
			return fmt.Errorf("master: op state check: %w", err)
		}
		if state == transport.StateOp {
			break
		}
		logrus.Debugf("[MASTER] tries left %d", tries)
	}

	if state != transport.StateOp {
		return fmt.Errorf("master: not all slaves reached operational state before timeout")
	}

	logrus.Debug("[MASTER] operational state reached for all slaves")
	atomic.StoreInt32(&m.inOP, 1)
	m.loopDone = make(chan struct{})
	go m.cycle()
	return nil
}

// cycle is the master's cyclic exchange loop: send output image, receive
// input image, measure elapsed time, and sleep the remainder of the cycle
// budget. A deadline miss is logged, never treated as fatal. The exchange
// runs under iomap.Image's mutex (via Exchange) — the same lock every
// output-buffer write takes — so a caller staging a multi-byte value never
// has it shipped to the wire half-written.
func (m *Master) cycle() {
	defer close(m.loopDone)
	for atomic.LoadInt32(&m.inOP) != 0 {
		start := time.Now()

		wkc, err := m.img.Exchange(m.bus.SendProcessData, func() (int, error) {
			return m.bus.ReceiveProcessData(m.cycleTime)
		})
		if err != nil {
			logrus.Warnf("[MASTER] process data exchange failed: %v", err)
		} else {
			m.workingCtr = wkc
		}

		elapsed := time.Since(start)
		if elapsed > m.cycleTime {
			logrus.Warnf("[MASTER] system too slow for cycle time %s, exchange took %s", m.cycleTime, elapsed)
			continue
		}
		time.Sleep(m.cycleTime - elapsed)
	}
}

// Connected reports whether the cyclic loop is currently running.
func (m *Master) Connected() bool {
	return atomic.LoadInt32(&m.inOP) != 0
}

// Drive returns the façade for the given 1-based slave index, or nil if
// that slave was not recognized as a mappable drive during Startup.
func (m *Master) Drive(slave uint16) *Drive {
	return m.drives[slave]
}

// Shutdown requests INIT for all slaves and polls for it while the cyclic
// loop is still pumping process data, matching the original master's
// destructor order: only once INIT is observed (or the poll budget is
// exhausted) does it stop the loop and close the transport. Idempotent and
// safe to call even if Startup never reached OP.
func (m *Master) Shutdown() error {
	m.shutdownOnce.Do(func() {
		m.shutdownErr = m.shutdown()
	})
	return m.shutdownErr
}

func (m *Master) shutdown() error {
	if atomic.LoadInt32(&m.inOP) == 0 {
		return m.bus.Close()
	}

	if _, err := m.bus.StateCheck(0, transport.StateInit, stateTimeout); err != nil {
		logrus.Warnf("[MASTER] request INIT on shutdown failed: %v", err)
	}
	if err := m.bus.WriteState(0); err != nil {
		logrus.Warnf("[MASTER] propagate INIT on shutdown failed: %v", err)
	}
	for tries := opStateRetries; tries > 0; tries-- {
		state, err := m.bus.ReadState()
		if err == nil && state == transport.StateInit {
			if m.verbose {
				logrus.Debug("[MASTER] clean exit")
			}
			break
		}
		time.Sleep(m.cycleTime)
	}

	atomic.StoreInt32(&m.inOP, 0)
	<-m.loopDone
	return m.bus.Close()
}

// GetPosition returns the actual position reported by a slave's input PDO.
func (m *Master) GetPosition(slave uint16) (int32, error) {
	return m.img.GetInt32(slave, iomap.InputPositionActual)
}

// GetError reports a negative count of latched fault/warning bits for slave.
func (m *Master) GetError(slave uint16) (int, error) {
	return m.engineFor(slave).GetError()
}

// GetRecord reads back, via SDO, the record number currently executing on slave.
func (m *Master) GetRecord(slave uint16) (int32, error) {
	return m.engineFor(slave).CurrentRecord()
}

func (m *Master) engineFor(slave uint16) *cia402.Engine {
	if d, ok := m.drives[slave]; ok {
		return d.engine
	}
	return cia402.NewEngine(slave, m.img, m.bus, m.cycleTime, m.Connected)
}
