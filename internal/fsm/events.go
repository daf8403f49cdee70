package fsm

// Event is the closed set of stimuli the state machine consumes. The set is
// exhaustive: invalid host commands are rejected by the protocol responder
// before an Event is ever produced, so no "unknown event" case exists.
type Event interface {
	EventName() string

	isEvent()
}

// Tick is the periodic event appended last on every loop cycle; all
// time-based transitions fire on it.
type Tick struct{}

// ExternalPowerOn / ExternalPowerOff are edges of the external supply
// voltage against the configured presence threshold.
type ExternalPowerOn struct{}
type ExternalPowerOff struct{}

// SupercapReady fires once when the supercap voltage rises above the
// power-on level. There is no falling counterpart.
type SupercapReady struct{}

// SupercapOvervoltage fires when the supercap voltage exceeds the fixed
// overvoltage limit. Suppressed by the generator once the alarm is latched.
type SupercapOvervoltage struct{}

// ComputeModuleOn / ComputeModuleOff are edges of the host power sense line.
type ComputeModuleOn struct{}
type ComputeModuleOff struct{}

// Shutdown is a host request to shut down during a blackout.
type Shutdown struct{}

// StandbyShutdown is a host request to enter standby.
type StandbyShutdown struct{}

// Off is a host request for an immediate intentional power-down.
type Off struct{}

// SetWatchdogTimeout arms (TimeoutMs > 0) or disarms (TimeoutMs == 0) the
// host watchdog.
type SetWatchdogTimeout struct {
	TimeoutMs uint16
}

// WatchdogPing is a host liveness proof.
type WatchdogPing struct{}

// PowerButtonPress is a physical power-button edge.
type PowerButtonPress struct{}

func (Tick) isEvent()                {}
func (ExternalPowerOn) isEvent()     {}
func (ExternalPowerOff) isEvent()    {}
func (SupercapReady) isEvent()       {}
func (SupercapOvervoltage) isEvent() {}
func (ComputeModuleOn) isEvent()     {}
func (ComputeModuleOff) isEvent()    {}
func (Shutdown) isEvent()            {}
func (StandbyShutdown) isEvent()     {}
func (Off) isEvent()                 {}
func (SetWatchdogTimeout) isEvent()  {}
func (WatchdogPing) isEvent()        {}
func (PowerButtonPress) isEvent()    {}

func (Tick) EventName() string                { return "tick" }
func (ExternalPowerOn) EventName() string     { return "external-power-on" }
func (ExternalPowerOff) EventName() string    { return "external-power-off" }
func (SupercapReady) EventName() string       { return "supercap-ready" }
func (SupercapOvervoltage) EventName() string { return "supercap-overvoltage" }
func (ComputeModuleOn) EventName() string     { return "compute-module-on" }
func (ComputeModuleOff) EventName() string    { return "compute-module-off" }
func (Shutdown) EventName() string            { return "shutdown" }
func (StandbyShutdown) EventName() string     { return "standby-shutdown" }
func (Off) EventName() string                 { return "off" }
func (SetWatchdogTimeout) EventName() string  { return "set-watchdog-timeout" }
func (WatchdogPing) EventName() string        { return "watchdog-ping" }
func (PowerButtonPress) EventName() string    { return "power-button-press" }
