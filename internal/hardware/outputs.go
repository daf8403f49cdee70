package hardware

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"power-service/internal/logger"
)

// Outputs owns the host power control lines: rail enable, sleep signal, and
// the four USB port-power disable lines. The state machine drives them
// synchronously from its entry actions.
type Outputs struct {
	logger     *logger.Logger
	chip       *gpiocdev.Chip
	railEnable *gpiocdev.Line
	hostSleep  *gpiocdev.Line
	buttonEmu  *gpiocdev.Line
	usbDisable []*gpiocdev.Line
}

// NewOutputs requests the output lines. All rails start off; the state
// machine brings them up through its normal startup path.
func NewOutputs(log *logger.Logger) (*Outputs, error) {
	chip, err := gpiocdev.NewChip(GpioChipDevice)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", GpioChipDevice, err)
	}

	o := &Outputs{
		logger: log.WithTag("outputs"),
		chip:   chip,
	}

	request := func(name string, initial int) (*gpiocdev.Line, error) {
		offset := OutputMappings[name]
		line, err := chip.RequestLine(offset,
			gpiocdev.AsOutput(initial),
			gpiocdev.WithConsumer(GpioConsumer))
		if err != nil {
			return nil, fmt.Errorf("failed to request %s (line %d): %w", name, offset, err)
		}
		o.logger.Debugf("Configured output %s: line=%d initial=%d", name, offset, initial)
		return line, nil
	}

	if o.railEnable, err = request("rail_enable", 0); err != nil {
		o.Close()
		return nil, err
	}
	if o.hostSleep, err = request("host_sleep", 0); err != nil {
		o.Close()
		return nil, err
	}
	// Button emulation is active low; idle released.
	if o.buttonEmu, err = request("button_emu", 1); err != nil {
		o.Close()
		return nil, err
	}
	for i := 0; i < 4; i++ {
		// USB ports start disabled together with the rails.
		line, err := request(fmt.Sprintf("usb_disable_%d", i), 1)
		if err != nil {
			o.Close()
			return nil, err
		}
		o.usbDisable = append(o.usbDisable, line)
	}

	return o, nil
}

// PowerOn enables the power rail, clears the sleep signal and enables the
// USB ports.
func (o *Outputs) PowerOn() error {
	o.logger.Infof("Driving rails on")
	if err := o.railEnable.SetValue(1); err != nil {
		return fmt.Errorf("failed to enable rail: %w", err)
	}
	if err := o.hostSleep.SetValue(0); err != nil {
		return fmt.Errorf("failed to clear sleep signal: %w", err)
	}
	return o.setUSBDisabled(false)
}

// PowerOff disables the power rail, asserts the sleep signal and disables
// the USB ports.
func (o *Outputs) PowerOff() error {
	o.logger.Infof("Driving rails off")
	if err := o.railEnable.SetValue(0); err != nil {
		return fmt.Errorf("failed to disable rail: %w", err)
	}
	if err := o.hostSleep.SetValue(1); err != nil {
		return fmt.Errorf("failed to assert sleep signal: %w", err)
	}
	return o.setUSBDisabled(true)
}

func (o *Outputs) setUSBDisabled(disabled bool) error {
	val := 0
	if disabled {
		val = 1
	}
	for i, line := range o.usbDisable {
		if err := line.SetValue(val); err != nil {
			return fmt.Errorf("failed to set usb_disable_%d=%d: %w", i, val, err)
		}
	}
	return nil
}

// SetButton drives the button-emulation line; the pulser sequences it.
func (o *Outputs) SetButton(value int) error {
	if err := o.buttonEmu.SetValue(value); err != nil {
		return fmt.Errorf("failed to set button_emu=%d: %w", value, err)
	}
	return nil
}

func (o *Outputs) Close() {
	for _, line := range []*gpiocdev.Line{o.railEnable, o.hostSleep, o.buttonEmu} {
		if line != nil {
			line.Close()
		}
	}
	for _, line := range o.usbDisable {
		line.Close()
	}
	if o.chip != nil {
		o.chip.Close()
	}
	o.logger.Debugf("Closed output lines")
}
