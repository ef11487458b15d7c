package cia402

import "errors"

var (
	ErrDriveNotEnabled   = errors.New("cia402: drive not enabled")
	ErrPowerStageTimeout = errors.New("cia402: power stage did not reach the requested state in time")
	ErrModeChangeTimeout = errors.New("cia402: mode change timed out")
	ErrJogBothDirections = errors.New("cia402: jog requested in both directions")
	ErrJogNoDirection    = errors.New("cia402: jog requires a direction")
	ErrVelocityFollowing = errors.New("cia402: velocity following error reported by drive")
	ErrNegativeVelocity  = errors.New("cia402: velocity must not be negative")
)

// Retry bounds. These are counts of cycle-time waits, not wall-clock
// durations — a slower cycle time stretches the effective timeout.
const (
	MaxModeChangeCycles = 100
	MaxPowerStageCycles = 1_000_000
)
