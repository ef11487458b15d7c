package transport

import (
	"errors"
	"time"
)

// ErrNotWired is returned by every error-returning Soem method until a real fieldbus
// binding is attached via Soem.Backend. Raw EtherCAT frame encoding,
// datagram transport and slave discovery are explicitly out of scope for
// this module (they belong to "an underlying fieldbus transport library",
// per the transport adapter's contract) — Soem exists to give that
// contract a concrete, swappable home, the way the teacher's SocketcanBus
// wraps brutella/can behind the Bus interface.
var ErrNotWired = errors.New("transport: soem backend not wired, see Soem.Backend")

// Backend is the minimal surface a real EtherCAT master library needs to
// provide for Soem to implement Bus. A CGO binding (e.g. around SOEM
// itself) or a pure-Go fieldbus stack can both satisfy it.
type Backend interface {
	Init(iface string) error
	Close() error
	ConfigInit() (int, error)
	ConfigMap() error
	ConfigDC() error
	StateCheck(slave uint16, target BusState, timeout time.Duration) (BusState, error)
	ReadState() (BusState, error)
	WriteState(slave uint16) error
	SendProcessData() error
	ReceiveProcessData(timeout time.Duration) (int, error)
	SDORead(slave uint16, index uint16, subindex uint8, completeAccess bool, buf []byte, timeout time.Duration) (int, error)
	SDOWrite(slave uint16, index uint16, subindex uint8, completeAccess bool, buf []byte, timeout time.Duration) error
	Slave(slave uint16) (SlaveInfo, error)
	SlaveCount() int
}

// Soem adapts a Backend to the Bus interface expected by the master core.
// Until Backend is set it fails every call with ErrNotWired rather than
// silently doing nothing; SlaveCount, which has no error result, reports 0.
type Soem struct {
	Backend Backend
}

// NewSoem returns a Soem adapter around the given backend. Pass nil to get
// a deliberately inert adapter (useful for wiring up startup code paths
// before a real backend is available).
func NewSoem(backend Backend) *Soem {
	return &Soem{Backend: backend}
}

func (s *Soem) Init(iface string) error {
	if s.Backend == nil {
		return ErrNotWired
	}
	return s.Backend.Init(iface)
}

func (s *Soem) Close() error {
	if s.Backend == nil {
		return ErrNotWired
	}
	return s.Backend.Close()
}

func (s *Soem) ConfigInit() (int, error) {
	if s.Backend == nil {
		return 0, ErrNotWired
	}
	return s.Backend.ConfigInit()
}

func (s *Soem) ConfigMap() error {
	if s.Backend == nil {
		return ErrNotWired
	}
	return s.Backend.ConfigMap()
}

func (s *Soem) ConfigDC() error {
	if s.Backend == nil {
		return ErrNotWired
	}
	return s.Backend.ConfigDC()
}

func (s *Soem) StateCheck(slave uint16, target BusState, timeout time.Duration) (BusState, error) {
	if s.Backend == nil {
		return StateUnknown, ErrNotWired
	}
	return s.Backend.StateCheck(slave, target, timeout)
}

func (s *Soem) ReadState() (BusState, error) {
	if s.Backend == nil {
		return StateUnknown, ErrNotWired
	}
	return s.Backend.ReadState()
}

func (s *Soem) WriteState(slave uint16) error {
	if s.Backend == nil {
		return ErrNotWired
	}
	return s.Backend.WriteState(slave)
}

func (s *Soem) SendProcessData() error {
	if s.Backend == nil {
		return ErrNotWired
	}
	return s.Backend.SendProcessData()
}

func (s *Soem) ReceiveProcessData(timeout time.Duration) (int, error) {
	if s.Backend == nil {
		return 0, ErrNotWired
	}
	return s.Backend.ReceiveProcessData(timeout)
}

func (s *Soem) SDORead(slave uint16, index uint16, subindex uint8, completeAccess bool, buf []byte, timeout time.Duration) (int, error) {
	if s.Backend == nil {
		return 0, ErrNotWired
	}
	return s.Backend.SDORead(slave, index, subindex, completeAccess, buf, timeout)
}

func (s *Soem) SDOWrite(slave uint16, index uint16, subindex uint8, completeAccess bool, buf []byte, timeout time.Duration) error {
	if s.Backend == nil {
		return ErrNotWired
	}
	return s.Backend.SDOWrite(slave, index, subindex, completeAccess, buf, timeout)
}

func (s *Soem) Slave(slave uint16) (SlaveInfo, error) {
	if s.Backend == nil {
		return SlaveInfo{}, ErrNotWired
	}
	return s.Backend.Slave(slave)
}

func (s *Soem) SlaveCount() int {
	if s.Backend == nil {
		return 0
	}
	return s.Backend.SlaveCount()
}
