package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"sync"
	"time"

	"power-service/internal/config"
	"power-service/internal/fsm"
	"power-service/internal/hardware"
	"power-service/internal/logger"
	"power-service/internal/messaging"
	"power-service/internal/metrics"
	"power-service/internal/types"
)

// Version is the published firmware identity.
const Version = "2.1.0"

// PowerSystem wires the collaborators around the state machine and
// supervises the event loop. The restart effect returned by the machine is
// executed here, never inside a handler.
type PowerSystem struct {
	cfg      Config
	logger   *logger.Logger
	redis    MessagingClient
	provider *config.Provider
	machine  *fsm.Machine
	loop     *fsm.Loop

	outputs *hardware.Outputs
	rails   fsm.RailDriver
	sampler *hardware.Sampler
	leds    *hardware.LEDStrip
	pulser  *hardware.Pulser
	watcher *hardware.ButtonWatcher

	commands chan types.Command
	ledC     chan types.LEDPattern
	buttonC  chan types.ButtonEvent

	// restart is the terminal effect; replaced in tests.
	restart func() error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPowerSystem(cfg Config, log *logger.Logger) *PowerSystem {
	ctx, cancel := context.WithCancel(context.Background())
	return &PowerSystem{
		cfg:      cfg,
		logger:   log.WithTag("power"),
		commands: make(chan types.Command, cfg.CommandQueueSize),
		ledC:     make(chan types.LEDPattern, 8),
		buttonC:  make(chan types.ButtonEvent, 8),
		restart: func() error {
			return exec.Command("systemctl", "reboot").Run()
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetRestartFunc replaces the system restart effect, for tests.
func (s *PowerSystem) SetRestartFunc(fn func() error) {
	s.restart = fn
}

func (s *PowerSystem) Start() error {
	s.logger.Infof("Starting power system (version %s)", Version)

	redis := messaging.NewRedisClient(s.cfg.RedisHost, s.cfg.RedisPort, s.logger, messaging.Callbacks{
		Command:         s.enqueueCommand,
		SettingsChanged: s.handleSettingsChanged,
		DefaultWatchdogTimeout: func() time.Duration {
			return s.provider.HostWatchdogTimeout()
		},
	})
	s.redis = redis
	if err := s.redis.Connect(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s.provider = config.NewProvider(s.redis, s.logger)
	s.provider.Reload(s.ctx)
	s.logger.Infof("Effective policy: %s", s.provider)

	var err error
	if s.outputs, err = hardware.NewOutputs(s.logger); err != nil {
		return fmt.Errorf("failed to initialize outputs: %w", err)
	}
	s.rails = s.outputs
	if s.sampler, err = hardware.NewSampler(s.logger); err != nil {
		return fmt.Errorf("failed to initialize sampler: %w", err)
	}
	if s.leds, err = hardware.NewLEDStrip(s.logger, s.cfg.LEDDevice, s.cfg.LEDCount,
		s.provider.LEDBrightness()); err != nil {
		return fmt.Errorf("failed to initialize LED strip: %w", err)
	}
	s.pulser = hardware.NewPulser(s.logger, s.outputs.SetButton)
	if s.watcher, err = hardware.NewButtonWatcher(s.logger, s.commands); err != nil {
		return fmt.Errorf("failed to initialize button watcher: %w", err)
	}

	s.machine = fsm.NewMachine(&fsm.Context{
		Rails:  s.rails,
		LEDs:   s.ledC,
		Button: s.buttonC,
	}, s.provider, s.logger)
	s.machine.SetTransitionCallback(s.publishState)
	s.loop = fsm.NewLoop(s.machine, s.commands, s.sampler, s.provider, s.logger,
		s.cfg.TickPeriod())

	if err := s.redis.StartListening(); err != nil {
		return fmt.Errorf("failed to start Redis listeners: %w", err)
	}
	if err := s.redis.PublishVersionInfo(Version); err != nil {
		s.logger.Warnf("Failed to publish version: %v", err)
	}
	initial := s.machine.State()
	if err := s.redis.PublishPowerState(initial, false); err != nil {
		s.logger.Warnf("Failed to publish initial state: %v", err)
	}

	if s.cfg.MetricsAddr != "" {
		s.startMetricsListener()
	}

	s.wg.Add(4)
	go func() {
		defer s.wg.Done()
		s.sampler.Run(s.ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.leds.Run(s.ctx, s.ledC)
	}()
	go func() {
		defer s.wg.Done()
		s.pulser.Run(s.ctx, s.buttonC)
	}()
	go func() {
		defer s.wg.Done()
		s.supervise()
	}()

	s.logger.Infof("Power system started")
	return nil
}

// enqueueCommand blocks when the queue is full; the next tick drains it, so
// command latency is bounded by one tick period.
func (s *PowerSystem) enqueueCommand(cmd types.Command) {
	if cmd.Kind == types.CmdSetWatchdogTimeout {
		// Persist so the configured timeout survives restarts.
		s.provider.SetHostWatchdogTimeout(s.ctx,
			time.Duration(cmd.TimeoutMs)*time.Millisecond)
	}
	select {
	case s.commands <- cmd:
	case <-s.ctx.Done():
	}
}

func (s *PowerSystem) handleSettingsChanged(field string) {
	s.logger.Infof("Settings changed (%s), reloading policy", field)
	s.provider.Reload(s.ctx)
	s.leds.SetBrightness(s.provider.LEDBrightness())
}

func (s *PowerSystem) publishState(from, to types.State) {
	alarm := s.machine.AlarmActive()
	metrics.ObserveTransition(from.Name(), to.Name(), to.Code())
	metrics.SetAlarm(alarm)
	if err := s.redis.PublishPowerState(to, alarm); err != nil {
		s.logger.Warnf("Failed to publish state %s: %v", to.Name(), err)
	}
}

// supervise runs the event loop and executes the restart effect when the
// machine requests one.
func (s *PowerSystem) supervise() {
	err := s.loop.Run(s.ctx)
	if !errors.Is(err, fsm.ErrRestartRequested) {
		return
	}

	metrics.IncRestart()
	s.logger.Warnf("State machine requested a system restart")
	if err := s.rails.PowerOff(); err != nil {
		s.logger.Errorf("Failed to drive rails off before restart: %v", err)
	}
	if err := s.restart(); err != nil {
		s.logger.Errorf("Restart failed: %v", err)
	}
}

func (s *PowerSystem) startMetricsListener() {
	metrics.Init()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux}

	s.logger.Infof("Serving metrics on %s", s.cfg.MetricsAddr)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("Metrics listener failed: %v", err)
		}
	}()
	go func() {
		<-s.ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
}

// Shutdown stops the collaborators and releases the hardware.
func (s *PowerSystem) Shutdown() {
	s.logger.Infof("Shutting down power system")
	s.cancel()
	s.wg.Wait()

	if s.watcher != nil {
		s.watcher.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warnf("Failed to close Redis client: %v", err)
		}
	}
	if s.leds != nil {
		s.leds.Close()
	}
	if s.sampler != nil {
		s.sampler.Close()
	}
	if s.outputs != nil {
		s.outputs.Close()
	}
	s.logger.Infof("Power system shutdown complete")
}
