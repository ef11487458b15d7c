package cia402

import "time"

// Bit positions, mode values and PDO byte offsets live in internal/iomap
// instead of here: Image needs them to implement its accessors, and Engine
// needs both Image and these constants, so keeping them in cia402 would
// put iomap and cia402 in an import cycle. SDOTimeout is the one constant
// that belongs to this package specifically — it bounds the motion tasks'
// occasional mailbox calls (accel/decel, record select/readback), not the
// cyclic image.
const SDOTimeout = 100 * time.Millisecond
