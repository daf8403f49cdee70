package config

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"power-service/internal/logger"
)

// Compiled-in defaults. Every read of the persisted store is best-effort:
// a missing or unparsable value falls back to these, because the power
// policy must stay correct even when storage is unavailable.
const (
	DefaultVinPowerThreshold    = 9.0
	DefaultVscapPowerOnLevel    = 8.0
	DefaultSoloBlackoutTimeout  = 5 * time.Second
	DefaultShutdownWait         = 60 * time.Second
	DefaultHostWatchdogTimeout  = 10 * time.Second
	DefaultPoweredDownHold      = 5 * time.Second
	DefaultUnresponsiveGrace    = 5 * time.Second
	DefaultAutoRestart          = true
	DefaultLEDBrightness  uint8 = 50
)

// VscapOvervoltageLimit is deliberately not configurable.
const VscapOvervoltageLimit = 10.5

// Store is the persisted key-value backend, implemented by the messaging
// client over a Redis hash.
type Store interface {
	GetConfigField(ctx context.Context, field string) (string, error)
	SetConfigField(ctx context.Context, field, value string) error
}

// Field names in the persisted store.
const (
	fieldVinPowerThreshold   = "vin-power-threshold"
	fieldVscapPowerOnLevel   = "vscap-power-on-level"
	fieldSoloBlackoutTimeout = "solo-blackout-timeout-ms"
	fieldShutdownWait        = "shutdown-wait-ms"
	fieldHostWatchdogTimeout = "host-watchdog-timeout-ms"
	fieldPoweredDownHold     = "powered-down-hold-ms"
	fieldUnresponsiveGrace   = "unresponsive-grace-ms"
	fieldAutoRestart         = "auto-restart"
	fieldLEDBrightness       = "led-brightness"
)

var allFields = []string{
	fieldVinPowerThreshold,
	fieldVscapPowerOnLevel,
	fieldSoloBlackoutTimeout,
	fieldShutdownWait,
	fieldHostWatchdogTimeout,
	fieldPoweredDownHold,
	fieldUnresponsiveGrace,
	fieldAutoRestart,
	fieldLEDBrightness,
}

// Provider caches operator-tunable policy values. Getters never block on the
// store; Reload refreshes the cache from it (on startup and on settings
// notifications).
type Provider struct {
	mu     sync.RWMutex
	store  Store
	logger *logger.Logger
	values map[string]string
}

func NewProvider(store Store, log *logger.Logger) *Provider {
	return &Provider{
		store:  store,
		logger: log.WithTag("config"),
		values: make(map[string]string),
	}
}

// Reload refreshes the cached values from the store. Individual field
// failures are logged and skipped; stale or default values remain in effect.
func (p *Provider) Reload(ctx context.Context) {
	fresh := make(map[string]string, len(allFields))
	for _, field := range allFields {
		value, err := p.store.GetConfigField(ctx, field)
		if err != nil {
			p.logger.Warnf("Failed to read %s, keeping default: %v", field, err)
			continue
		}
		if value != "" {
			fresh[field] = value
		}
	}

	p.mu.Lock()
	p.values = fresh
	p.mu.Unlock()
	p.logger.Debugf("Reloaded %d config fields", len(fresh))
}

// SetHostWatchdogTimeout persists a runtime watchdog-timeout change so it
// survives restarts. Best-effort: a store failure only loses persistence.
func (p *Provider) SetHostWatchdogTimeout(ctx context.Context, timeout time.Duration) {
	value := strconv.FormatInt(timeout.Milliseconds(), 10)
	p.mu.Lock()
	p.values[fieldHostWatchdogTimeout] = value
	p.mu.Unlock()

	if err := p.store.SetConfigField(ctx, fieldHostWatchdogTimeout, value); err != nil {
		p.logger.Warnf("Failed to persist watchdog timeout: %v", err)
	}
}

func (p *Provider) get(field string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	value, ok := p.values[field]
	return value, ok
}

func (p *Provider) getFloat(field string, def float64) float64 {
	raw, ok := p.get(field)
	if !ok {
		return def
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.logger.Warnf("Invalid value for %s: %q", field, raw)
		return def
	}
	return value
}

func (p *Provider) getDuration(field string, def time.Duration) time.Duration {
	raw, ok := p.get(field)
	if !ok {
		return def
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms < 0 {
		p.logger.Warnf("Invalid value for %s: %q", field, raw)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func (p *Provider) getBool(field string, def bool) bool {
	raw, ok := p.get(field)
	if !ok {
		return def
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		p.logger.Warnf("Invalid value for %s: %q", field, raw)
		return def
	}
	return value
}

// VinPowerThreshold is the external-supply voltage above which external
// power is considered present.
func (p *Provider) VinPowerThreshold() float64 {
	return p.getFloat(fieldVinPowerThreshold, DefaultVinPowerThreshold)
}

// VscapPowerOnLevel is the supercap voltage above which there is enough
// stored energy to boot the host.
func (p *Provider) VscapPowerOnLevel() float64 {
	return p.getFloat(fieldVscapPowerOnLevel, DefaultVscapPowerOnLevel)
}

// SoloBlackoutTimeout is how long a solo blackout may last before the
// controller starts a shutdown on the host's behalf.
func (p *Provider) SoloBlackoutTimeout() time.Duration {
	return p.getDuration(fieldSoloBlackoutTimeout, DefaultSoloBlackoutTimeout)
}

// ShutdownWait bounds how long a graceful shutdown waits for the host to
// power itself off.
func (p *Provider) ShutdownWait() time.Duration {
	return p.getDuration(fieldShutdownWait, DefaultShutdownWait)
}

// HostWatchdogTimeout is the default watchdog period applied when the host
// arms the watchdog without specifying one.
func (p *Provider) HostWatchdogTimeout() time.Duration {
	return p.getDuration(fieldHostWatchdogTimeout, DefaultHostWatchdogTimeout)
}

// PoweredDownHold is how long PoweredDown holds before a restart decision.
func (p *Provider) PoweredDownHold() time.Duration {
	return p.getDuration(fieldPoweredDownHold, DefaultPoweredDownHold)
}

// UnresponsiveGrace is how long a starved watchdog state waits for a late
// ping before forcing a power-down.
func (p *Provider) UnresponsiveGrace() time.Duration {
	return p.getDuration(fieldUnresponsiveGrace, DefaultUnresponsiveGrace)
}

// AutoRestart reports whether intentional shutdowns should restart after the
// hold duration. Power-loss shutdowns restart regardless.
func (p *Provider) AutoRestart() bool {
	return p.getBool(fieldAutoRestart, DefaultAutoRestart)
}

// LEDBrightness is the renderer brightness, 0-255.
func (p *Provider) LEDBrightness() uint8 {
	raw, ok := p.get(fieldLEDBrightness)
	if !ok {
		return DefaultLEDBrightness
	}
	value, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		p.logger.Warnf("Invalid value for %s: %q", fieldLEDBrightness, raw)
		return DefaultLEDBrightness
	}
	return uint8(value)
}

// String summarizes the effective policy for startup logging.
func (p *Provider) String() string {
	return fmt.Sprintf("vin>%.1fV vscap>%.1fV solo-blackout=%s shutdown-wait=%s watchdog=%s hold=%s grace=%s auto-restart=%t",
		p.VinPowerThreshold(), p.VscapPowerOnLevel(), p.SoloBlackoutTimeout(), p.ShutdownWait(),
		p.HostWatchdogTimeout(), p.PoweredDownHold(), p.UnresponsiveGrace(), p.AutoRestart())
}
