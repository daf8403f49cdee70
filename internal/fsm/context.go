package fsm

import (
	"time"

	"power-service/internal/types"
)

// RailDriver drives the host power rails (rail enable, sleep signal, USB
// port power). Entry actions call it synchronously.
type RailDriver interface {
	PowerOn() error
	PowerOff() error
}

// Context is the mutable runtime companion of the state machine: output
// handles and watchdog bookkeeping, constructed once and owned by the
// machine for its lifetime. The alarm latch is one-way; only a hardware
// reset clears it.
type Context struct {
	Rails  RailDriver
	LEDs   chan<- types.LEDPattern
	Button chan<- types.ButtonEvent

	// WatchdogTimeout is the armed host-watchdog period; 0 disables it.
	WatchdogTimeout time.Duration
	LastPing        time.Time

	AlarmActive bool
}
