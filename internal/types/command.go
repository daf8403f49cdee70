package types

// CommandKind identifies an inbound command message. The protocol responder
// and the power-button watcher produce these; the event loop translates them
// into state-machine events in arrival order.
type CommandKind int

const (
	CmdShutdown CommandKind = iota
	CmdStandbyShutdown
	CmdOff
	CmdSetWatchdogTimeout
	CmdWatchdogPing
	CmdPowerButtonPress
)

func (k CommandKind) String() string {
	switch k {
	case CmdShutdown:
		return "shutdown"
	case CmdStandbyShutdown:
		return "standby-shutdown"
	case CmdOff:
		return "off"
	case CmdSetWatchdogTimeout:
		return "set-watchdog-timeout"
	case CmdWatchdogPing:
		return "watchdog-ping"
	case CmdPowerButtonPress:
		return "power-button-press"
	default:
		return "unknown"
	}
}

// Command is one message on the inbound command queue. TimeoutMs is only
// meaningful for CmdSetWatchdogTimeout (0 disables the watchdog).
type Command struct {
	Kind      CommandKind
	TimeoutMs uint16
}
