package transport

import (
	"sync"
	"time"
)

type sdoKey struct {
	slave    uint16
	index    uint16
	subindex uint8
}

// Virtual is a synchronous, in-memory Bus used by engine and master tests.
// It has no concept of wall-clock cyclic exchange: ReceiveProcessData runs a
// test-supplied Hook inline, letting a test script
// exactly how a drive reacts to a given output image on each "cycle" —
// e.g. raising ack_start only once a start bit has been observed, as the
// end-to-end scenarios require. Grounded on the teacher's VirtualCanBus
// (a synchronous stand-in bus for protocol tests) and SocketcanBus (a thin
// Bus implementation wrapping a real driver) — this plays both roles at
// once, since there is no real CAN frame format to wrap here.
type Virtual struct {
	mu      sync.Mutex
	slaves  map[uint16]*SlaveInfo
	order   []uint16
	sdo     map[sdoKey][]byte
	sdoFail map[sdoKey]bool
	state   BusState
	closed  bool

	// Hook runs once per ReceiveProcessData call, after the (simulated)
	// wire round-trip. Tests use it to flip status bits in reaction to the
	// control bits just written.
	Hook func(v *Virtual)

	// ReceiveDelay, if set, is slept inside ReceiveProcessData before the
	// Hook runs — used to simulate a slow cycle (deadline-miss tests).
	ReceiveDelay time.Duration

	sendCount    int
	receiveCount int
}

// NewVirtual creates an empty Virtual bus. Call AddSlave before Init/ConfigInit.
func NewVirtual() *Virtual {
	return &Virtual{
		slaves: map[uint16]*SlaveInfo{},
		sdo:    map[sdoKey][]byte{},
		sdoFail: map[sdoKey]bool{},
		state:  StateInit,
	}
}

// AddSlave registers a simulated slave with the given buffer sizes and
// returns a pointer to its mutable descriptor for test setup.
func (v *Virtual) AddSlave(index uint16, name string, eepID uint32, outLen, inLen int) *SlaveInfo {
	v.mu.Lock()
	defer v.mu.Unlock()
	info := &SlaveInfo{
		Index:     index,
		Name:      name,
		EepID:     eepID,
		State:     StateInit,
		Output:    make([]byte, outLen),
		Input:     make([]byte, inLen),
		OutputLen: outLen,
		InputLen:  inLen,
	}
	v.slaves[index] = info
	v.order = append(v.order, index)
	return info
}

func (v *Virtual) Init(iface string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if iface == "" {
		return ErrNoSocket
	}
	v.closed = false
	return nil
}

func (v *Virtual) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.state = StateInit
	return nil
}

func (v *Virtual) ConfigInit() (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.slaves) == 0 {
		return 0, ErrNoSlavesFound
	}
	v.state = StatePreOp
	for _, s := range v.slaves {
		s.State = StatePreOp
	}
	return len(v.slaves), nil
}

func (v *Virtual) ConfigMap() error { return nil }
func (v *Virtual) ConfigDC() error  { return nil }

func (v *Virtual) StateCheck(slave uint16, target BusState, timeout time.Duration) (BusState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if slave == 0 {
		v.state = target
		for _, s := range v.slaves {
			s.State = target
		}
		return v.state, nil
	}
	s, ok := v.slaves[slave]
	if !ok {
		return StateUnknown, ErrSlaveOutOfRange
	}
	s.State = target
	return s.State, nil
}

func (v *Virtual) ReadState() (BusState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state, nil
}

func (v *Virtual) WriteState(slave uint16) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if slave == 0 {
		for _, s := range v.slaves {
			s.State = v.state
		}
	}
	return nil
}

func (v *Virtual) SendProcessData() error {
	v.mu.Lock()
	v.sendCount++
	v.mu.Unlock()
	return nil
}

func (v *Virtual) ReceiveProcessData(timeout time.Duration) (int, error) {
	if v.ReceiveDelay > 0 {
		time.Sleep(v.ReceiveDelay)
	}
	v.mu.Lock()
	v.receiveCount++
	hook := v.Hook
	v.mu.Unlock()
	if hook != nil {
		hook(v)
	}
	return len(v.slaves) * 2, nil
}

func (v *Virtual) SDORead(slave uint16, index uint16, subindex uint8, completeAccess bool, buf []byte, timeout time.Duration) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := sdoKey{slave, index, subindex}
	if v.sdoFail[key] {
		return 0, ErrSDOAbort
	}
	stored, ok := v.sdo[key]
	if !ok {
		return 0, ErrSDOAbort
	}
	n := copy(buf, stored)
	return n, nil
}

func (v *Virtual) SDOWrite(slave uint16, index uint16, subindex uint8, completeAccess bool, buf []byte, timeout time.Duration) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := sdoKey{slave, index, subindex}
	if v.sdoFail[key] {
		return ErrSDOAbort
	}
	stored := make([]byte, len(buf))
	copy(stored, buf)
	v.sdo[key] = stored
	return nil
}

// FailSDO makes subsequent reads/writes to index:subindex on slave abort,
// for error-path tests.
func (v *Virtual) FailSDO(slave uint16, index uint16, subindex uint8, fail bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sdoFail[sdoKey{slave, index, subindex}] = fail
}

func (v *Virtual) Slave(slave uint16) (SlaveInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.slaves[slave]
	if !ok {
		return SlaveInfo{}, ErrSlaveOutOfRange
	}
	return *s, nil
}

func (v *Virtual) SlaveCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.slaves)
}

// SendCount/ReceiveCount expose the number of cycles run, for loop tests.
func (v *Virtual) SendCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sendCount
}

func (v *Virtual) ReceiveCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.receiveCount
}
