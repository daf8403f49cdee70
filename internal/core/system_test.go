package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"power-service/internal/config"
	"power-service/internal/fsm"
	"power-service/internal/logger"
	"power-service/internal/types"
)

// Fake messaging client; doubles as the config store.
type fakeMessaging struct {
	mu     sync.Mutex
	values map[string]string
	states chan string
}

func newFakeMessaging() *fakeMessaging {
	return &fakeMessaging{
		values: map[string]string{},
		states: make(chan string, 32),
	}
}

func (f *fakeMessaging) Connect() error        { return nil }
func (f *fakeMessaging) StartListening() error { return nil }
func (f *fakeMessaging) Close() error          { return nil }

func (f *fakeMessaging) PublishPowerState(state types.State, alarm bool) error {
	f.states <- state.Name()
	return nil
}

func (f *fakeMessaging) PublishVersionInfo(version string) error { return nil }

func (f *fakeMessaging) GetConfigField(_ context.Context, field string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[field], nil
}

func (f *fakeMessaging) SetConfigField(_ context.Context, field, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[field] = value
	return nil
}

func (f *fakeMessaging) get(field string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[field]
}

// Fake rail driver
type fakeRails struct {
	mu  sync.Mutex
	off int
}

func (f *fakeRails) PowerOn() error { return nil }

func (f *fakeRails) PowerOff() error {
	f.mu.Lock()
	f.off++
	f.mu.Unlock()
	return nil
}

func (f *fakeRails) offCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.off
}

// Scripted input source, safe to update while the loop runs.
type scriptedInputs struct {
	mu   sync.Mutex
	snap types.InputSnapshot
}

func (s *scriptedInputs) set(snap types.InputSnapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

func (s *scriptedInputs) Snapshot() types.InputSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// newTestSystem wires a PowerSystem around fakes, skipping the hardware
// constructors Start would run.
func newTestSystem(t *testing.T) (*PowerSystem, *fakeMessaging, *fakeRails, *scriptedInputs) {
	t.Helper()
	l := logger.NewLogger(nil, logger.LogLevelError)
	cfg := DefaultConfig()
	cfg.TickMs = 1
	s := NewPowerSystem(cfg, l)

	redis := newFakeMessaging()
	s.redis = redis
	s.provider = config.NewProvider(redis, l)
	s.provider.Reload(context.Background())

	rails := &fakeRails{}
	s.rails = rails
	s.machine = fsm.NewMachine(&fsm.Context{
		Rails:  rails,
		LEDs:   s.ledC,
		Button: s.buttonC,
	}, s.provider, l)
	s.machine.SetTransitionCallback(s.publishState)

	inputs := &scriptedInputs{}
	s.loop = fsm.NewLoop(s.machine, s.commands, inputs, s.provider, l, cfg.TickPeriod())
	return s, redis, rails, inputs
}

func waitForState(t *testing.T, redis *fakeMessaging, name string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-redis.states:
			if got == name {
				return
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for published state %s", name)
		}
	}
}

// ===== Restart Supervision =====

func TestSuperviseExecutesRestartEffect(t *testing.T) {
	s, redis, rails, inputs := newTestSystem(t)
	defer s.cancel()

	restarted := make(chan struct{})
	s.SetRestartFunc(func() error {
		close(restarted)
		return nil
	})

	go s.supervise()

	// Bring the system up through its normal path.
	inputs.set(types.InputSnapshot{Vin: 12.0, Vscap: 9.0, HostOn: true})
	waitForState(t, redis, "operational")

	// Intentional power-down, then a button press forcing a restart.
	s.enqueueCommand(types.Command{Kind: types.CmdOff})
	s.enqueueCommand(types.Command{Kind: types.CmdPowerButtonPress})
	waitForState(t, redis, "powered-down")

	select {
	case <-restarted:
	case <-time.After(2 * time.Second):
		t.Fatal("Restart effect never executed")
	}
	if rails.offCount() == 0 {
		t.Error("Expected rails driven off before the restart")
	}
}

// ===== Command Enqueueing =====

func TestEnqueueCommandPersistsWatchdogTimeout(t *testing.T) {
	s, redis, _, _ := newTestSystem(t)
	defer s.cancel()

	s.enqueueCommand(types.Command{Kind: types.CmdSetWatchdogTimeout, TimeoutMs: 7000})

	if got := redis.get("host-watchdog-timeout-ms"); got != "7000" {
		t.Errorf("Expected persisted timeout 7000, got %q", got)
	}
	select {
	case cmd := <-s.commands:
		if cmd.Kind != types.CmdSetWatchdogTimeout || cmd.TimeoutMs != 7000 {
			t.Errorf("Unexpected queued command %#v", cmd)
		}
	default:
		t.Error("Expected the command queued for the event loop")
	}
}

func TestEnqueueCommandUnblocksOnShutdown(t *testing.T) {
	s, _, _, _ := newTestSystem(t)

	// Fill the queue; no loop is draining it.
	for i := 0; i < cap(s.commands); i++ {
		s.commands <- types.Command{Kind: types.CmdWatchdogPing}
	}

	returned := make(chan struct{})
	go func() {
		s.enqueueCommand(types.Command{Kind: types.CmdShutdown})
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatal("Producer must block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	s.cancel()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Producer still blocked after cancellation")
	}
}
