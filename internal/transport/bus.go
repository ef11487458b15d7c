// Package transport defines the narrow contract the master core expects
// from an underlying fieldbus transport library (frame encoding, datagram
// exchange and slave discovery are assumed to live below this interface,
// e.g. in a SOEM-equivalent binding). Nothing in this package knows how to
// speak EtherCAT on the wire.
package transport

import (
	"errors"
	"time"
)

// BusState mirrors the EtherCAT state machine states relevant to startup
// and shutdown (INIT -> PRE-OP -> SAFE-OP -> OP).
type BusState uint8

const (
	StateInit    BusState = 1
	StatePreOp   BusState = 2
	StateBoot    BusState = 3
	StateSafeOp  BusState = 4
	StateOp      BusState = 8
	StateUnknown BusState = 0
)

func (s BusState) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StatePreOp:
		return "PRE-OP"
	case StateBoot:
		return "BOOT"
	case StateSafeOp:
		return "SAFE-OP"
	case StateOp:
		return "OP"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrNoSocket        = errors.New("transport: could not bind to interface")
	ErrNoSlavesFound   = errors.New("transport: no slaves found during enumeration")
	ErrStateTimeout    = errors.New("transport: slave did not reach requested state in time")
	ErrSDOTimeout      = errors.New("transport: SDO transaction timed out")
	ErrSDOAbort        = errors.New("transport: SDO transaction aborted by slave")
	ErrSlaveOutOfRange = errors.New("transport: slave index out of range")
)

// SlaveInfo describes one discovered device, as exposed by the transport's
// slave accessor (spec §4.1). InputLen/OutputLen are byte lengths of the
// mapped process-data buffers backing Input/Output.
type SlaveInfo struct {
	Index     uint16
	Name      string
	EepID     uint32
	State     BusState
	ALStatus  uint16
	Input     []byte
	Output    []byte
	InputLen  int
	OutputLen int
}

// Bus is the contract consumed by the master core. It is intentionally thin:
// everything below it (frame encoding, datagram transport, slave discovery)
// is somebody else's problem.
type Bus interface {
	// Init binds to the given platform-specific interface identifier.
	Init(iface string) error
	// Close releases the underlying socket/handle.
	Close() error

	// ConfigInit enumerates slaves on the bus and returns their count.
	ConfigInit() (int, error)
	// ConfigMap builds the shared process-data image from each slave's
	// negotiated PDO mapping.
	ConfigMap() error
	// ConfigDC configures distributed clocks, where supported.
	ConfigDC() error

	// StateCheck polls until the given slave reaches targetState or timeout elapses,
	// returning the state actually observed.
	StateCheck(slave uint16, targetState BusState, timeout time.Duration) (BusState, error)
	// ReadState refreshes and returns the bus-wide state (slave 0 is the master/bus itself).
	ReadState() (BusState, error)
	// WriteState requests the state currently staged for the given slave (0 = all slaves).
	WriteState(slave uint16) error

	// SendProcessData ships the current output image to the wire.
	SendProcessData() error
	// ReceiveProcessData waits up to timeout for fresh input data and
	// returns the resulting working counter.
	ReceiveProcessData(timeout time.Duration) (workingCounter int, err error)

	// SDORead performs a mailbox upload of index:subindex into buf, returning bytes read.
	SDORead(slave uint16, index uint16, subindex uint8, completeAccess bool, buf []byte, timeout time.Duration) (int, error)
	// SDOWrite performs a mailbox download of buf to index:subindex.
	SDOWrite(slave uint16, index uint16, subindex uint8, completeAccess bool, buf []byte, timeout time.Duration) error

	// Slave returns the current descriptor for the given 1-based slave index.
	Slave(slave uint16) (SlaveInfo, error)
	// SlaveCount returns the number of slaves found by the last ConfigInit.
	SlaveCount() int
}
