// Package config holds the master runtime's construction-time configuration.
package config

import (
	"time"

	"gopkg.in/ini.v1"
)

// DefaultCycleTime matches the teacher drive family's standard cyclic period.
const DefaultCycleTime = 2000 * time.Microsecond

// MasterConfig configures a Master at construction time.
//
// Interface is the platform-specific network adapter identifier the
// underlying fieldbus transport binds to (e.g. "eth0" or `\Device\NPF_{GUID}`
// on Windows). CycleTime is the process-data exchange period; Verbose gates
// informational logging (warnings/errors always log).
type MasterConfig struct {
	Interface string
	CycleTime time.Duration
	Verbose   bool
}

// DefaultMasterConfig returns the baseline configuration used when no
// overrides are supplied.
func DefaultMasterConfig(iface string) MasterConfig {
	return MasterConfig{
		Interface: iface,
		CycleTime: DefaultCycleTime,
		Verbose:   false,
	}
}

// LoadINI overlays fields found in an ini file (section "master") onto cfg.
// Missing keys leave the corresponding field unchanged. This lets an
// operator ship a small config file alongside the CLI flags in cmd/scara-masterd.
func LoadINI(path string, cfg *MasterConfig) error {
	file, err := ini.Load(path)
	if err != nil {
		return err
	}
	section := file.Section("master")
	if key, err := section.GetKey("interface"); err == nil {
		cfg.Interface = key.String()
	}
	if key, err := section.GetKey("cycle_time_us"); err == nil {
		us, err := key.Int()
		if err == nil {
			cfg.CycleTime = time.Duration(us) * time.Microsecond
		}
	}
	if key, err := section.GetKey("verbose"); err == nil {
		cfg.Verbose, _ = key.Bool()
	}
	return nil
}
