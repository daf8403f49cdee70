package types

import "time"

// State is the closed set of power states. Each variant carries only the
// data its own timing logic needs; entry timestamps travel with the value so
// re-entering a state resets its timer by construction.
type State interface {
	// Code is the host-visible wire code for this state. Codes are
	// append-only: existing values never change across releases.
	Code() int
	// Name is the host-visible wire name for this state.
	Name() string

	isState()
}

type PowerOff struct{}

type OffCharging struct{}

type SystemStartup struct{}

type Operational struct {
	// CoOp is true when the host watchdog is armed and the host must
	// ping periodically to prove liveness.
	CoOp bool
}

type Blackout struct {
	CoOp      bool
	EnteredAt time.Time
}

type GracefulShutdown struct {
	EnteredAt time.Time
}

type PoweredDown struct {
	EnteredAt time.Time
	// Intentional distinguishes an explicit shutdown request from a
	// power-loss shutdown; it decides whether auto-restart applies.
	Intentional bool
}

type HostUnresponsive struct {
	EnteredAt time.Time
}

type EnteringStandby struct{}

type Standby struct{}

func (PowerOff) isState()         {}
func (OffCharging) isState()      {}
func (SystemStartup) isState()    {}
func (Operational) isState()      {}
func (Blackout) isState()         {}
func (GracefulShutdown) isState() {}
func (PoweredDown) isState()      {}
func (HostUnresponsive) isState() {}
func (EnteringStandby) isState()  {}
func (Standby) isState()          {}

func (PowerOff) Code() int         { return 0 }
func (OffCharging) Code() int      { return 1 }
func (SystemStartup) Code() int    { return 2 }
func (Operational) Code() int      { return 3 }
func (Blackout) Code() int         { return 4 }
func (GracefulShutdown) Code() int { return 5 }
func (PoweredDown) Code() int      { return 6 }
func (HostUnresponsive) Code() int { return 7 }
func (EnteringStandby) Code() int  { return 8 }
func (Standby) Code() int          { return 9 }

func (PowerOff) Name() string         { return "power-off" }
func (OffCharging) Name() string      { return "off-charging" }
func (SystemStartup) Name() string    { return "system-startup" }
func (Operational) Name() string      { return "operational" }
func (Blackout) Name() string         { return "blackout" }
func (GracefulShutdown) Name() string { return "graceful-shutdown" }
func (PoweredDown) Name() string      { return "powered-down" }
func (HostUnresponsive) Name() string { return "host-unresponsive" }
func (EnteringStandby) Name() string  { return "entering-standby" }
func (Standby) Name() string          { return "standby" }
