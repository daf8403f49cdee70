package types

import "time"

// RGB is one LED color. Values are pre-gamma, full-scale; the renderer
// applies the configured brightness.
type RGB struct {
	R, G, B uint8
}

var (
	ColorBlack   = RGB{}
	ColorRed     = RGB{R: 255}
	ColorDarkRed = RGB{R: 80}
	ColorGreen   = RGB{G: 255}
	ColorBlue    = RGB{B: 255}
	ColorYellow  = RGB{R: 255, G: 255}
	ColorOrange  = RGB{R: 255, G: 80}
	ColorPurple  = RGB{R: 128, B: 128}
)

// LEDStep is one frame of a pattern: a solid color held for a duration.
type LEDStep struct {
	Color    RGB
	Duration time.Duration
}

// LEDPattern is a pattern descriptor pushed on the LED channel by the state
// machine's entry actions. Alarm patterns take priority over state patterns:
// once the renderer sees one it stops accepting non-alarm patterns until the
// process restarts, mirroring the one-way overvoltage latch.
type LEDPattern struct {
	Name  string
	Alarm bool
	Steps []LEDStep
}

func solid(name string, c RGB) LEDPattern {
	return LEDPattern{Name: name, Steps: []LEDStep{{Color: c, Duration: time.Second}}}
}

func blink(name string, c RGB, period time.Duration) LEDPattern {
	half := period / 2
	return LEDPattern{Name: name, Steps: []LEDStep{
		{Color: c, Duration: half},
		{Color: ColorBlack, Duration: half},
	}}
}

// AlarmPattern is pushed when the supercap overvoltage latch trips.
func AlarmPattern() LEDPattern {
	p := blink("overvoltage-alarm", ColorRed, 200*time.Millisecond)
	p.Alarm = true
	return p
}

// StatePattern maps a state to its indicator pattern.
func StatePattern(s State) LEDPattern {
	switch st := s.(type) {
	case PowerOff:
		return blink("power-off", ColorRed, 2*time.Second)
	case OffCharging:
		return blink("off-charging", ColorRed, time.Second)
	case SystemStartup:
		return blink("system-startup", ColorYellow, 500*time.Millisecond)
	case Operational:
		if st.CoOp {
			return solid("operational-coop", ColorGreen)
		}
		return solid("operational-solo", ColorYellow)
	case Blackout:
		return blink("blackout", ColorOrange, 500*time.Millisecond)
	case GracefulShutdown:
		return blink("graceful-shutdown", ColorPurple, 500*time.Millisecond)
	case PoweredDown:
		return solid("powered-down", ColorBlack)
	case HostUnresponsive:
		return solid("host-unresponsive", ColorRed)
	case EnteringStandby:
		return solid("entering-standby", ColorBlue)
	case Standby:
		return solid("standby", ColorDarkRed)
	default:
		return solid("unknown", ColorBlack)
	}
}
