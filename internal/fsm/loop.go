package fsm

import (
	"context"
	"errors"
	"time"

	"power-service/internal/config"
	"power-service/internal/logger"
	"power-service/internal/metrics"
	"power-service/internal/types"
)

// ErrRestartRequested is returned by Loop.Run when a handler requests a
// system restart. The supervisor decides what a restart means; the loop
// never resets anything in place.
var ErrRestartRequested = errors.New("system restart requested")

// SnapshotSource provides one consistent copy of the sampled inputs.
type SnapshotSource interface {
	Snapshot() types.InputSnapshot
}

// Loop is the event generation loop. Each cycle it drains the command queue
// FIFO, edge-detects the input snapshot against the previous cycle, checks
// the overvoltage limit, and delivers the events followed by a trailing
// Tick, strictly in that order.
type Loop struct {
	machine  *Machine
	commands <-chan types.Command
	inputs   SnapshotSource
	cfg      *config.Provider
	logger   *logger.Logger
	period   time.Duration

	prevVinPresent bool
	prevScapReady  bool
	prevHostOn     bool
}

func NewLoop(machine *Machine, commands <-chan types.Command, inputs SnapshotSource,
	cfg *config.Provider, log *logger.Logger, period time.Duration) *Loop {
	return &Loop{
		machine:  machine,
		commands: commands,
		inputs:   inputs,
		cfg:      cfg,
		logger:   log.WithTag("event-loop"),
		period:   period,
	}
}

// Run blocks until the context is cancelled or a restart is requested, in
// which case it returns ErrRestartRequested.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.cycle() {
				return ErrRestartRequested
			}
		}
	}
}

// cycle runs one tick and reports whether a restart was requested.
func (l *Loop) cycle() bool {
	for _, event := range l.collect() {
		metrics.ObserveEvent(event.EventName())
		if l.machine.HandleEvent(event) {
			return true
		}
	}
	return false
}

// collect produces this cycle's ordered event sequence:
// commands -> edges -> alarm -> Tick.
func (l *Loop) collect() []Event {
	var events []Event

drain:
	for {
		select {
		case cmd := <-l.commands:
			events = append(events, commandEvent(cmd))
		default:
			break drain
		}
	}

	snap := l.inputs.Snapshot()

	vinPresent := snap.Vin > l.cfg.VinPowerThreshold()
	if vinPresent != l.prevVinPresent {
		if vinPresent {
			events = append(events, ExternalPowerOn{})
		} else {
			events = append(events, ExternalPowerOff{})
		}
		l.prevVinPresent = vinPresent
	}

	// Rising edge only: there is no "supercap drained" event.
	scapReady := snap.Vscap > l.cfg.VscapPowerOnLevel()
	if scapReady && !l.prevScapReady {
		events = append(events, SupercapReady{})
	}
	l.prevScapReady = scapReady

	if snap.HostOn != l.prevHostOn {
		if snap.HostOn {
			events = append(events, ComputeModuleOn{})
		} else {
			events = append(events, ComputeModuleOff{})
		}
		l.prevHostOn = snap.HostOn
	}

	if snap.Overvoltage && !l.machine.AlarmActive() {
		events = append(events, SupercapOvervoltage{})
	}

	return append(events, Tick{})
}

func commandEvent(cmd types.Command) Event {
	switch cmd.Kind {
	case types.CmdShutdown:
		return Shutdown{}
	case types.CmdStandbyShutdown:
		return StandbyShutdown{}
	case types.CmdOff:
		return Off{}
	case types.CmdSetWatchdogTimeout:
		return SetWatchdogTimeout{TimeoutMs: cmd.TimeoutMs}
	case types.CmdWatchdogPing:
		return WatchdogPing{}
	case types.CmdPowerButtonPress:
		return PowerButtonPress{}
	default:
		// Command kinds are produced only by our own collaborators;
		// treat an unknown one as liveness and nothing more.
		return WatchdogPing{}
	}
}
