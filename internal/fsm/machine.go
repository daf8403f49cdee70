package fsm

import (
	"sync"
	"time"

	"power-service/internal/config"
	"power-service/internal/logger"
	"power-service/internal/types"
)

// outcome is the three-way handler result, plus the terminal restart effect.
// Leaf handlers return deferOutcome to fall through to the poweredOn
// superstate; a restart is returned to the caller, never executed here, so
// tests can assert the intent without terminating the process.
type outcome struct {
	kind outcomeKind
	next types.State
}

type outcomeKind int

const (
	outcomeHandled outcomeKind = iota
	outcomeDefer
	outcomeTransition
	outcomeRestart
)

var (
	handledOutcome = outcome{kind: outcomeHandled}
	deferOutcome   = outcome{kind: outcomeDefer}
	restartOutcome = outcome{kind: outcomeRestart}
)

func transitionTo(next types.State) outcome {
	return outcome{kind: outcomeTransition, next: next}
}

// Machine is the hierarchical power state machine. It consumes events one at
// a time from the event loop; the published current state is guarded so
// other tasks read a torn-free snapshot without coordinating with the loop.
type Machine struct {
	mu    sync.RWMutex
	state types.State

	ctx    *Context
	cfg    *config.Provider
	logger *logger.Logger
	now    func() time.Time

	// onTransition is invoked after every completed transition with the
	// already-published new state, and once with from == to when the
	// overvoltage latch first trips.
	onTransition func(from, to types.State)
}

func NewMachine(ctx *Context, cfg *config.Provider, log *logger.Logger) *Machine {
	return &Machine{
		state:  types.PowerOff{},
		ctx:    ctx,
		cfg:    cfg,
		logger: log.WithTag("fsm"),
		now:    time.Now,
	}
}

// SetTransitionCallback registers the state publication hook. Must be called
// before the event loop starts.
func (m *Machine) SetTransitionCallback(cb func(from, to types.State)) {
	m.onTransition = cb
}

// SetClock replaces the time source, for tests.
func (m *Machine) SetClock(now func() time.Time) {
	m.now = now
}

// State returns a copy of the current state.
func (m *Machine) State() types.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// AlarmActive reports the overvoltage latch.
func (m *Machine) AlarmActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ctx.AlarmActive
}

// HandleEvent applies one event and returns true when a system restart is
// requested. Only the event loop may call it.
func (m *Machine) HandleEvent(event Event) bool {
	state := m.State()
	out := m.dispatch(state, event)
	switch out.kind {
	case outcomeTransition:
		m.transition(state, out.next)
	case outcomeRestart:
		m.logger.Warnf("Restart requested in %s on %s", state.Name(), event.EventName())
		return true
	case outcomeDefer:
		m.logger.Debugf("Ignoring %s in %s", event.EventName(), state.Name())
	}
	return false
}

// dispatch runs the leaf handler, falls through to the poweredOn superstate
// on defer, then to the any-state fallback.
func (m *Machine) dispatch(state types.State, event Event) outcome {
	out := m.handleLeaf(state, event)
	if out.kind == outcomeDefer && isPoweredOn(state) {
		out = m.handlePoweredOn(event)
	}
	if out.kind == outcomeDefer {
		out = m.handleAnyState(event)
	}
	return out
}

// isPoweredOn reports membership in the poweredOn superstate.
func isPoweredOn(state types.State) bool {
	switch state.(type) {
	case types.Operational, types.Blackout, types.HostUnresponsive:
		return true
	}
	return false
}

func (m *Machine) handleLeaf(state types.State, event Event) outcome {
	switch st := state.(type) {
	case types.PowerOff:
		return m.handlePowerOff(event)
	case types.OffCharging:
		return m.handleOffCharging(event)
	case types.SystemStartup:
		return m.handleSystemStartup(event)
	case types.Operational:
		return m.handleOperational(st, event)
	case types.Blackout:
		return m.handleBlackout(st, event)
	case types.GracefulShutdown:
		return m.handleGracefulShutdown(st, event)
	case types.PoweredDown:
		return m.handlePoweredDown(st, event)
	case types.HostUnresponsive:
		return m.handleHostUnresponsive(st, event)
	case types.EnteringStandby:
		return m.handleEnteringStandby(event)
	case types.Standby:
		return m.handleStandby(event)
	}
	return deferOutcome
}

func (m *Machine) handlePowerOff(event Event) outcome {
	switch event.(type) {
	case ExternalPowerOn:
		return transitionTo(types.OffCharging{})
	}
	return deferOutcome
}

func (m *Machine) handleOffCharging(event Event) outcome {
	switch event.(type) {
	case SupercapReady:
		return transitionTo(types.SystemStartup{})
	case ExternalPowerOff:
		// Without external power the charge level no longer matters.
		return transitionTo(types.PowerOff{})
	}
	return deferOutcome
}

func (m *Machine) handleSystemStartup(event Event) outcome {
	switch event.(type) {
	case ComputeModuleOn:
		return transitionTo(types.Operational{})
	case ExternalPowerOff:
		return transitionTo(types.PowerOff{})
	}
	return deferOutcome
}

func (m *Machine) handleOperational(st types.Operational, event Event) outcome {
	switch ev := event.(type) {
	case ExternalPowerOff:
		return transitionTo(types.Blackout{CoOp: st.CoOp, EnteredAt: m.now()})
	case SetWatchdogTimeout:
		if ev.TimeoutMs == 0 {
			m.ctx.WatchdogTimeout = 0
			return transitionTo(types.Operational{})
		}
		m.ctx.WatchdogTimeout = time.Duration(ev.TimeoutMs) * time.Millisecond
		m.ctx.LastPing = m.now()
		return transitionTo(types.Operational{CoOp: true})
	case StandbyShutdown:
		return transitionTo(types.EnteringStandby{})
	case Tick:
		if st.CoOp && m.ctx.WatchdogTimeout > 0 &&
			m.now().Sub(m.ctx.LastPing) > m.ctx.WatchdogTimeout {
			m.logger.Warnf("Host watchdog starved (last ping %s ago)",
				m.now().Sub(m.ctx.LastPing))
			return transitionTo(types.HostUnresponsive{EnteredAt: m.now()})
		}
		return handledOutcome
	}
	return deferOutcome
}

func (m *Machine) handleBlackout(st types.Blackout, event Event) outcome {
	switch event.(type) {
	case ExternalPowerOn:
		return transitionTo(types.Operational{CoOp: st.CoOp})
	case Shutdown:
		// In solo mode the shutdown timing is ours alone; the host has
		// no say, so the request falls through and is ignored.
		if st.CoOp {
			return transitionTo(types.GracefulShutdown{EnteredAt: m.now()})
		}
		return deferOutcome
	case Tick:
		if !st.CoOp && m.now().Sub(st.EnteredAt) > m.cfg.SoloBlackoutTimeout() {
			// Ask the host to shut itself down before we start
			// counting down to a power cut.
			m.pushButton(types.ButtonDoubleClick)
			return transitionTo(types.GracefulShutdown{EnteredAt: m.now()})
		}
		return handledOutcome
	}
	return deferOutcome
}

func (m *Machine) handleGracefulShutdown(st types.GracefulShutdown, event Event) outcome {
	switch event.(type) {
	case ComputeModuleOff:
		return transitionTo(types.PoweredDown{EnteredAt: m.now()})
	case Tick:
		if m.now().Sub(st.EnteredAt) > m.cfg.ShutdownWait() {
			m.logger.Warnf("Host did not power off within %s, cutting power", m.cfg.ShutdownWait())
			return transitionTo(types.PoweredDown{EnteredAt: m.now()})
		}
		return handledOutcome
	}
	return deferOutcome
}

func (m *Machine) handlePoweredDown(st types.PoweredDown, event Event) outcome {
	switch event.(type) {
	case PowerButtonPress:
		return restartOutcome
	case ExternalPowerOff:
		return restartOutcome
	case Tick:
		if m.now().Sub(st.EnteredAt) <= m.cfg.PoweredDownHold() {
			return handledOutcome
		}
		if !st.Intentional {
			// Power-loss shutdown: availability wins, always restart.
			return restartOutcome
		}
		if m.cfg.AutoRestart() {
			return restartOutcome
		}
		return handledOutcome
	}
	return deferOutcome
}

func (m *Machine) handleHostUnresponsive(st types.HostUnresponsive, event Event) outcome {
	switch event.(type) {
	case WatchdogPing:
		m.ctx.LastPing = m.now()
		return transitionTo(types.Operational{CoOp: true})
	case Tick:
		if m.now().Sub(st.EnteredAt) > m.cfg.UnresponsiveGrace() {
			return transitionTo(types.PoweredDown{EnteredAt: m.now()})
		}
		return handledOutcome
	}
	return deferOutcome
}

func (m *Machine) handleEnteringStandby(event Event) outcome {
	switch event.(type) {
	case ComputeModuleOff:
		return transitionTo(types.Standby{})
	}
	return deferOutcome
}

func (m *Machine) handleStandby(event Event) outcome {
	switch event.(type) {
	case ComputeModuleOn:
		return transitionTo(types.Operational{})
	}
	return deferOutcome
}

// handlePoweredOn is the shared superstate behind Operational, Blackout and
// HostUnresponsive.
func (m *Machine) handlePoweredOn(event Event) outcome {
	switch event.(type) {
	case ComputeModuleOff, Off:
		return transitionTo(types.PoweredDown{EnteredAt: m.now(), Intentional: true})
	case WatchdogPing:
		m.ctx.LastPing = m.now()
		return handledOutcome
	}
	return deferOutcome
}

// handleAnyState is the last fallback. The overvoltage latch applies in
// every state and never changes the state variant.
func (m *Machine) handleAnyState(event Event) outcome {
	switch event.(type) {
	case SupercapOvervoltage:
		first := !m.alarmLatched()
		if first {
			m.logger.Errorf("Supercap overvoltage, latching alarm")
		}
		m.latchAlarm()
		m.pushPattern(types.AlarmPattern())
		if first && m.onTransition != nil {
			// The latch is host-visible, so republish even though the
			// state variant is unchanged.
			state := m.State()
			m.onTransition(state, state)
		}
		return handledOutcome
	}
	return deferOutcome
}

func (m *Machine) alarmLatched() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ctx.AlarmActive
}

func (m *Machine) latchAlarm() {
	m.mu.Lock()
	m.ctx.AlarmActive = true
	m.mu.Unlock()
}

// transition runs the entry actions for the new state, publishes it, then
// notifies the transition callback.
func (m *Machine) transition(from, to types.State) {
	m.enter(to)

	m.mu.Lock()
	m.state = to
	m.mu.Unlock()

	m.logger.Infof("State transition: %s -> %s", from.Name(), to.Name())
	if m.onTransition != nil {
		m.onTransition(from, to)
	}
}

// enter performs the entry actions. Rail levels are driven synchronously;
// every entry pushes the state's LED pattern.
func (m *Machine) enter(to types.State) {
	switch to.(type) {
	case types.PowerOff, types.PoweredDown:
		if err := m.ctx.Rails.PowerOff(); err != nil {
			m.logger.Errorf("Failed to drive rails off: %v", err)
		}
	case types.SystemStartup:
		if err := m.ctx.Rails.PowerOn(); err != nil {
			m.logger.Errorf("Failed to drive rails on: %v", err)
		}
	}
	m.pushPattern(types.StatePattern(to))
}

// pushPattern is best-effort: the renderer owns timing, and a stalled
// renderer must not stall power transitions.
func (m *Machine) pushPattern(pattern types.LEDPattern) {
	if m.ctx.LEDs == nil {
		return
	}
	select {
	case m.ctx.LEDs <- pattern:
	default:
		m.logger.Warnf("LED channel full, dropping pattern %s", pattern.Name)
	}
}

func (m *Machine) pushButton(event types.ButtonEvent) {
	if m.ctx.Button == nil {
		return
	}
	select {
	case m.ctx.Button <- event:
	default:
		m.logger.Warnf("Button channel full, dropping %s", event)
	}
}
