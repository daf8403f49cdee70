package types

// ButtonEvent is a semantic command for the power-button pulse emulator.
// The pulser translates these into timed level changes on the
// button-emulation line.
type ButtonEvent int

const (
	ButtonPress ButtonEvent = iota
	ButtonRelease
	ButtonClick
	ButtonDoubleClick
	ButtonLongPress
)

func (b ButtonEvent) String() string {
	switch b {
	case ButtonPress:
		return "press"
	case ButtonRelease:
		return "release"
	case ButtonClick:
		return "click"
	case ButtonDoubleClick:
		return "double-click"
	case ButtonLongPress:
		return "long-press"
	default:
		return "unknown"
	}
}
