package hardware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"power-service/internal/logger"
	"power-service/internal/types"
)

// WS2812 strip behind a SPI controller. Each WS2812 bit is stretched into
// three SPI bits at 2.4 MHz: 110 for one, 100 for zero. The latch is a
// >50 us low period, padded here as trailing zero bytes.
const (
	spiIocWrMode        = 0x40016B01 // SPI_IOC_WR_MODE
	spiIocWrBitsPerWord = 0x40016B03 // SPI_IOC_WR_BITS_PER_WORD
	spiIocWrMaxSpeedHz  = 0x40046B04 // SPI_IOC_WR_MAX_SPEED_HZ

	spiSpeedHz    = 2400000
	ledResetBytes = 18
)

// LEDStrip renders pattern descriptors pushed by the state machine. An
// alarm pattern takes over permanently: the strip stops accepting state
// patterns until the process restarts, mirroring the overvoltage latch.
type LEDStrip struct {
	logger     *logger.Logger
	fd         int
	count      int
	brightness uint8

	mu      sync.Mutex
	alarmed bool
}

func NewLEDStrip(log *logger.Logger, device string, count int, brightness uint8) (*LEDStrip, error) {
	fd, err := unix.Open(device, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI device %s: %w", device, err)
	}

	s := &LEDStrip{
		logger:     log.WithTag("leds"),
		fd:         fd,
		count:      count,
		brightness: brightness,
	}

	if err := unix.IoctlSetPointerInt(fd, spiIocWrMode, 0); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to set SPI mode: %w", err)
	}
	if err := unix.IoctlSetPointerInt(fd, spiIocWrBitsPerWord, 8); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to set SPI word size: %w", err)
	}
	if err := unix.IoctlSetPointerInt(fd, spiIocWrMaxSpeedHz, spiSpeedHz); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to set SPI speed: %w", err)
	}

	s.logger.Infof("LED strip ready: %s, %d LEDs, brightness %d", device, count, brightness)
	return s, nil
}

// SetBrightness applies a new brightness to subsequent frames.
func (s *LEDStrip) SetBrightness(brightness uint8) {
	s.mu.Lock()
	s.brightness = brightness
	s.mu.Unlock()
}

// Run consumes pattern descriptors and steps through the active pattern's
// frames until the context is cancelled. The strip is blanked on exit.
func (s *LEDStrip) Run(ctx context.Context, patterns <-chan types.LEDPattern) {
	var (
		current types.LEDPattern
		step    int
	)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	show := func() {
		if len(current.Steps) == 0 {
			return
		}
		frame := current.Steps[step%len(current.Steps)]
		if err := s.render(frame.Color); err != nil {
			s.logger.Warnf("Render failed: %v", err)
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(frame.Duration)
	}

	for {
		select {
		case <-ctx.Done():
			if err := s.render(types.ColorBlack); err != nil {
				s.logger.Warnf("Blank failed: %v", err)
			}
			return
		case pattern := <-patterns:
			s.mu.Lock()
			if s.alarmed && !pattern.Alarm {
				s.mu.Unlock()
				s.logger.Debugf("Alarm active, ignoring pattern %s", pattern.Name)
				continue
			}
			if pattern.Alarm {
				s.alarmed = true
			}
			s.mu.Unlock()
			s.logger.Debugf("Pattern: %s", pattern.Name)
			current = pattern
			step = 0
			show()
		case <-timer.C:
			step++
			show()
		}
	}
}

// render writes one solid-color frame to the whole strip.
func (s *LEDStrip) render(c types.RGB) error {
	s.mu.Lock()
	brightness := s.brightness
	s.mu.Unlock()

	buf := encodeFrame(c, s.count, brightness)
	for off := 0; off < len(buf); {
		n, err := unix.Write(s.fd, buf[off:])
		if err != nil {
			return fmt.Errorf("SPI write failed: %w", err)
		}
		off += n
	}
	return nil
}

// encodeFrame expands one solid color into the SPI byte stream for the whole
// strip: GRB order, 24 color bits stretched to 72 SPI bits (9 bytes) per LED,
// followed by the reset latch.
func encodeFrame(c types.RGB, count int, brightness uint8) []byte {
	scale := func(v uint8) byte {
		return byte(uint16(v) * uint16(brightness) / 255)
	}
	grb := [3]byte{scale(c.G), scale(c.R), scale(c.B)}

	buf := make([]byte, 0, count*9+ledResetBytes)
	var acc byte
	var nbits uint
	push := func(bit byte) {
		acc = acc<<1 | bit
		nbits++
		if nbits == 8 {
			buf = append(buf, acc)
			acc, nbits = 0, 0
		}
	}
	for i := 0; i < count; i++ {
		for _, b := range grb {
			for bit := 7; bit >= 0; bit-- {
				if b>>uint(bit)&1 == 1 {
					push(1)
					push(1)
					push(0)
				} else {
					push(1)
					push(0)
					push(0)
				}
			}
		}
	}
	return append(buf, make([]byte, ledResetBytes)...)
}

func (s *LEDStrip) Close() {
	unix.Close(s.fd)
}
