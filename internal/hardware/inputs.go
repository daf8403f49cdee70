package hardware

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"power-service/internal/config"
	"power-service/internal/logger"
	"power-service/internal/metrics"
	"power-service/internal/types"
)

const samplePeriod = 20 * time.Millisecond

// ReadAdcValue reads one raw sample from an IIO ADC channel.
func ReadAdcValue(device string, channel int) (int, error) {
	path := fmt.Sprintf("/sys/bus/iio/devices/%s/in_voltage%d_raw", device, channel)
	data, err := os.ReadFile(path)
	if err != nil {
		return -1, fmt.Errorf("failed reading %s: %w", path, err)
	}

	var value int
	if _, err := fmt.Sscanf(string(data), "%d", &value); err != nil {
		return -1, fmt.Errorf("failed parsing ADC value: %w", err)
	}
	return value, nil
}

// Sampler refreshes the input snapshot: supply and supercap voltages from
// the IIO ADC, host power sense from a GPIO line. The event loop takes one
// consistent copy per tick via Snapshot.
type Sampler struct {
	logger *logger.Logger
	chip   *gpiocdev.Chip
	sense  *gpiocdev.Line

	mu      sync.RWMutex
	current types.InputSnapshot
}

func NewSampler(log *logger.Logger) (*Sampler, error) {
	chip, err := gpiocdev.NewChip(GpioChipDevice)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", GpioChipDevice, err)
	}

	offset := InputMappings["host_power_sense"]
	sense, err := chip.RequestLine(offset,
		gpiocdev.AsInput,
		gpiocdev.WithConsumer(GpioConsumer))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("failed to request host_power_sense (line %d): %w", offset, err)
	}

	return &Sampler{
		logger: log.WithTag("sampler"),
		chip:   chip,
		sense:  sense,
	}, nil
}

// Snapshot returns a copy of the most recent sample.
func (s *Sampler) Snapshot() types.InputSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Run samples until the context is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(samplePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) sample() {
	snap := s.Snapshot()

	if raw, err := ReadAdcValue(AdcDevice, AdcVinChan); err == nil {
		snap.Vin = float64(raw) * VinMaxValue / adcResolution * VinCorrection
	} else {
		s.logger.Debugf("VIN read failed: %v", err)
	}
	if raw, err := ReadAdcValue(AdcDevice, AdcVscapChan); err == nil {
		snap.Vscap = float64(raw) * VscapMaxValue / adcResolution * VscapCorrection
	} else {
		s.logger.Debugf("VSCAP read failed: %v", err)
	}
	if val, err := s.sense.Value(); err == nil {
		snap.HostOn = val != 0
	} else {
		s.logger.Debugf("Host sense read failed: %v", err)
	}
	snap.Overvoltage = snap.Vscap > config.VscapOvervoltageLimit

	metrics.SetVoltages(snap.Vin, snap.Vscap)

	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()
}

func (s *Sampler) Close() {
	if s.sense != nil {
		s.sense.Close()
	}
	if s.chip != nil {
		s.chip.Close()
	}
}
