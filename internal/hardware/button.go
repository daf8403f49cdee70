package hardware

import (
	"context"
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"power-service/internal/logger"
	"power-service/internal/types"
)

// Button pulse timings. The emulated button is active low.
const (
	buttonSettleTime = 100 * time.Millisecond
	buttonClickHold  = 200 * time.Millisecond
	buttonLongHold   = 5500 * time.Millisecond
)

// Pulser translates semantic button events from the state machine into
// timed level changes on the button-emulation line. The setter indirection
// keeps the pulse sequencing testable without GPIO hardware.
type Pulser struct {
	logger *logger.Logger
	set    func(value int) error
	sleep  func(d time.Duration)
}

func NewPulser(log *logger.Logger, set func(value int) error) *Pulser {
	return &Pulser{
		logger: log.WithTag("button"),
		set:    set,
		sleep:  time.Sleep,
	}
}

// Run consumes button events until the context is cancelled.
func (p *Pulser) Run(ctx context.Context, events <-chan types.ButtonEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			p.logger.Debugf("Button event: %s", event)
			if err := p.emit(event); err != nil {
				p.logger.Errorf("Failed to emit %s: %v", event, err)
			}
		}
	}
}

func (p *Pulser) emit(event types.ButtonEvent) error {
	press := func(hold time.Duration) error {
		// Release first so a fresh edge is guaranteed.
		if err := p.set(1); err != nil {
			return err
		}
		p.sleep(buttonSettleTime)
		if err := p.set(0); err != nil {
			return err
		}
		p.sleep(hold)
		if err := p.set(1); err != nil {
			return err
		}
		p.sleep(buttonSettleTime)
		return nil
	}

	switch event {
	case types.ButtonPress:
		return p.set(0)
	case types.ButtonRelease:
		return p.set(1)
	case types.ButtonClick:
		return press(buttonClickHold)
	case types.ButtonDoubleClick:
		if err := press(buttonClickHold); err != nil {
			return err
		}
		return press(buttonClickHold)
	case types.ButtonLongPress:
		return press(buttonLongHold)
	}
	return nil
}

// ButtonWatcher turns physical power-button edges into PowerButtonPress
// commands. A full command queue applies backpressure; the next tick drains
// it, so the press is delayed by at most one tick period.
type ButtonWatcher struct {
	logger *logger.Logger
	chip   *gpiocdev.Chip
	line   *gpiocdev.Line
}

func NewButtonWatcher(log *logger.Logger, commands chan<- types.Command) (*ButtonWatcher, error) {
	w := &ButtonWatcher{logger: log.WithTag("button-in")}

	chip, err := gpiocdev.NewChip(GpioChipDevice)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", GpioChipDevice, err)
	}
	w.chip = chip

	offset := InputMappings["power_button"]
	line, err := chip.RequestLine(offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithConsumer(GpioConsumer),
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			w.logger.Infof("Power button pressed")
			commands <- types.Command{Kind: types.CmdPowerButtonPress}
		}))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("failed to request power_button (line %d): %w", offset, err)
	}
	w.line = line

	return w, nil
}

func (w *ButtonWatcher) Close() {
	if w.line != nil {
		w.line.Close()
	}
	if w.chip != nil {
		w.chip.Close()
	}
}
