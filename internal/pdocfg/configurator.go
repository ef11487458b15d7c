// Package pdocfg writes the CiA 402 RxPDO/TxPDO assignment to a drive over
// SDO during pre-op, so the cyclic exchange lands at the byte offsets the
// rest of the core assumes (internal/iomap's layout constants).
package pdocfg

import (
	"encoding/binary"
	"math"
	"strings"
	"time"

	"github.com/jkachoura/scara-master/internal/transport"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds each individual SDO transaction issued while mapping a drive.
const DefaultTimeout = 100 * time.Millisecond

// rxPDOEntries is the 9-entry RxPDO map matching internal/iomap's output
// layout: Controlword(16b), Mode(8b), TargetPosition(32b),
// ProfileVelocity(32b), TargetVelocity(32b), then three further entries
// (0x6071, 0x60B1, 0x60B2) and an 8-bit alignment pad.
var rxPDOEntries = []uint32{
	0x60400010, 0x60600008, 0x607A0020,
	0x60810020, 0x60FF0020, 0x60710010,
	0x60B10020, 0x60B20010, 0x00000008,
}

// txPDOEntries mirrors the drive manual's object list for the input image:
// Statusword(16b), ModeDisplay(8b), PositionActual(32b), VelocityActual(32b)
// plus two manufacturer-specific entries and an alignment pad. The
// declared length below (9) intentionally does not match len(txPDOEntries)
// (7) — that mismatch exists in the original master firmware config this
// is ported from, and is reproduced rather than silently corrected; see
// DESIGN.md. Confirm the true entry count against the target drive's
// manual before relying on bytes beyond VelocityActual.
var txPDOEntries = []uint32{
	0x60410010, 0x60610008, 0x60640020,
	0x606C0020, 0x60770010, 0x21940520,
	0x00000008,
}

const declaredTxPDOLength = 9

// SupportedPrefixes lists the drive family name prefixes this configurator
// maps. EEPROM IDs below cover the same family where the name string is
// unreliable (matches the original master's name-or-id check).
var SupportedPrefixes = []string{"CMMT-AS", "CMMT-ST", "FestoCMMT"}

// SupportedEepIDs lists EEPROM identity values recognized independently of name.
var SupportedEepIDs = []uint32{0x7b5a25, 0x7b1a95}

// Supports reports whether a discovered slave matches the drive family this
// configurator knows how to map.
func Supports(name string, eepID uint32) bool {
	for _, prefix := range SupportedPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	for _, id := range SupportedEepIDs {
		if eepID == id {
			return true
		}
	}
	return false
}

// Configurator writes PDO mapping and sync-manager assignment to a single
// slave over SDO during pre-op.
type Configurator struct {
	bus       transport.Bus
	cycleTime time.Duration
}

// New returns a Configurator that will stamp the given cycle time (in
// seconds, float32) into each mapped drive's cycle-time parameter.
func New(bus transport.Bus, cycleTime time.Duration) *Configurator {
	return &Configurator{bus: bus, cycleTime: cycleTime}
}

// MapDrive writes, in order: the cycle-time parameter, the RxPDO map, the
// TxPDO map, and the sync-manager assignment. It returns the count of
// successful writes and logs a warning for each failure rather than
// aborting the sequence — a partial map is still diagnosable from the log,
// whereas aborting early hides which step actually failed.
func (c *Configurator) MapDrive(slave uint16) (successes int, err error) {
	total := 0

	write := func(index uint16, subindex uint8, complete bool, buf []byte, label string) {
		total++
		werr := c.bus.SDOWrite(slave, index, subindex, complete, buf, DefaultTimeout)
		if werr != nil {
			logrus.Warnf("[PDOCFG][%d] failed to write %s (x%x:x%x): %v", slave, label, index, subindex, werr)
			return
		}
		successes++
	}

	cycleSeconds := float32(c.cycleTime) / float32(time.Second)
	cycleBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(cycleBuf, math.Float32bits(cycleSeconds))
	write(0x212E, 0x02, false, cycleBuf, "cycle time")

	write(0x1600, 0x00, false, []byte{uint8(len(rxPDOEntries))}, "RxPDO length")
	write(0x1600, 0x01, true, encodeU32Array(rxPDOEntries), "RxPDO entries")

	if declaredTxPDOLength != len(txPDOEntries) {
		logrus.Warnf("[PDOCFG][%d] TxPDO declared length %d differs from %d entries written", slave, declaredTxPDOLength, len(txPDOEntries))
	}
	write(0x1A00, 0x00, false, []byte{declaredTxPDOLength}, "TxPDO length")
	write(0x1A00, 0x01, true, encodeU32Array(txPDOEntries), "TxPDO entries")

	write(0x1C12, 0x01, false, encodeU16(0x1600), "RxPDO sync-manager assignment")
	write(0x1C13, 0x01, false, encodeU16(0x1A00), "TxPDO sync-manager assignment")
	write(0x1C12, 0x00, false, []byte{0x01}, "RxPDO sync-manager count")
	write(0x1C13, 0x00, false, []byte{0x01}, "TxPDO sync-manager count")

	if successes < total {
		logrus.Warnf("[PDOCFG][%d] PDO mapping incomplete: %d/%d writes succeeded", slave, successes, total)
	}
	return successes, nil
}

func encodeU32Array(values []uint32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}

func encodeU16(v uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, v)
	return buf
}
