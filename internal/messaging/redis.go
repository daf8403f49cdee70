package messaging

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"power-service/internal/logger"
	"power-service/internal/types"
)

const (
	commandList  = "power:command"
	watchdogList = "power:watchdog"
	stateHash    = "power"
	configHash   = "power:config"
	stateChannel = "power"
)

// Callbacks connect the protocol responder to the rest of the system.
// Command delivers a validated command to the event loop's queue and may
// block until the next tick drains it (bounded-queue backpressure).
type Callbacks struct {
	Command         func(types.Command)
	SettingsChanged func(field string)
	// DefaultWatchdogTimeout supplies the armed period for a bare
	// "enable" watchdog command.
	DefaultWatchdogTimeout func() time.Duration
}

type RedisClient struct {
	client    *redis.Client
	callbacks Callbacks
	logger    *logger.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewRedisClient(host string, port int, l *logger.Logger, callbacks Callbacks) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%d", host, port),
			DB:   0,
		}),
		callbacks: callbacks,
		logger:    l.WithTag("redis"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (r *RedisClient) Connect() error {
	r.logger.Infof("Connecting to Redis at %s", r.client.Options().Addr)
	if err := r.client.Ping(r.ctx).Err(); err != nil {
		return fmt.Errorf("Redis connection failed: %w", err)
	}
	r.logger.Infof("Successfully connected to Redis")
	return nil
}

// StartListening starts the command-list and pub/sub listeners after system
// initialization is complete.
func (r *RedisClient) StartListening() error {
	r.logger.Infof("Starting Redis listeners")

	pubsub := r.client.Subscribe(r.ctx, "settings")
	r.wg.Add(1)
	go r.settingsListener(pubsub)

	r.wg.Add(2)
	go r.listCommandListener(commandList, r.handlePowerCommand)
	go r.listCommandListener(watchdogList, r.handleWatchdogCommand)

	return nil
}

func (r *RedisClient) listCommandListener(key string, handler func(string) error) {
	defer r.wg.Done()
	r.logger.Infof("Starting list command listener for %s", key)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting %s listener", key)
			return
		default:
			// Use BRPOP with a short timeout to allow periodic context
			// cancellation checks.
			result, err := r.client.BRPop(r.ctx, 5*time.Second, key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if err == context.Canceled {
					r.logger.Infof("Context cancelled, exiting %s listener", key)
					return
				}
				r.logger.Warnf("Error reading from %s list: %v", key, err)
				continue
			}

			if len(result) >= 2 { // BRPOP returns [key, value]
				value := result[1]
				r.logger.Debugf("Received command from %s: %s", key, value)
				if err := handler(value); err != nil {
					r.logger.Warnf("Error handling %s command: %v", key, err)
				}
			}
		}
	}
}

// deliver forwards a validated command to the event queue, preceded by a
// watchdog ping: any bus activity from the host counts as liveness.
func (r *RedisClient) deliver(cmd types.Command) {
	if r.callbacks.Command == nil {
		return
	}
	if cmd.Kind != types.CmdWatchdogPing {
		r.callbacks.Command(types.Command{Kind: types.CmdWatchdogPing})
	}
	r.callbacks.Command(cmd)
}

func (r *RedisClient) handlePowerCommand(value string) error {
	cmd, err := ParsePowerCommand(value)
	if err != nil {
		return err
	}
	r.deliver(cmd)
	return nil
}

func (r *RedisClient) handleWatchdogCommand(value string) error {
	switch value {
	case "enable":
		ms := int64(10000)
		if r.callbacks.DefaultWatchdogTimeout != nil {
			ms = r.callbacks.DefaultWatchdogTimeout().Milliseconds()
		}
		// The command payload is 16-bit. An oversized configured timeout
		// must clamp, never wrap to a shorter period or to 0 (0 disarms).
		if ms > math.MaxUint16 {
			r.logger.Warnf("Configured watchdog timeout %dms exceeds the command range, clamping to %dms",
				ms, math.MaxUint16)
			ms = math.MaxUint16
		}
		if ms <= 0 {
			ms = 10000
		}
		r.deliver(types.Command{Kind: types.CmdSetWatchdogTimeout, TimeoutMs: uint16(ms)})
		return nil
	case "disable":
		r.deliver(types.Command{Kind: types.CmdSetWatchdogTimeout, TimeoutMs: 0})
		return nil
	}
	cmd, err := ParseWatchdogCommand(value)
	if err != nil {
		return err
	}
	r.deliver(cmd)
	return nil
}

// ParsePowerCommand validates a power:command list entry. Malformed values
// are rejected here and never reach the state machine.
func ParsePowerCommand(value string) (types.Command, error) {
	switch value {
	case "shutdown":
		return types.Command{Kind: types.CmdShutdown}, nil
	case "standby":
		return types.Command{Kind: types.CmdStandbyShutdown}, nil
	case "off":
		return types.Command{Kind: types.CmdOff}, nil
	default:
		return types.Command{}, fmt.Errorf("invalid power command: %q", value)
	}
}

// ParseWatchdogCommand validates a power:watchdog list entry: "ping" or
// "timeout:<ms>" (0 disables the watchdog).
func ParseWatchdogCommand(value string) (types.Command, error) {
	if value == "ping" {
		return types.Command{Kind: types.CmdWatchdogPing}, nil
	}
	if rest, ok := strings.CutPrefix(value, "timeout:"); ok {
		ms, err := strconv.ParseUint(rest, 10, 16)
		if err != nil {
			return types.Command{}, fmt.Errorf("invalid watchdog timeout: %q", value)
		}
		return types.Command{Kind: types.CmdSetWatchdogTimeout, TimeoutMs: uint16(ms)}, nil
	}
	return types.Command{}, fmt.Errorf("invalid watchdog command: %q", value)
}

func (r *RedisClient) settingsListener(pubsub *redis.PubSub) {
	defer r.wg.Done()
	defer pubsub.Close()

	r.logger.Infof("Starting settings listener")
	channel := pubsub.Channel()

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting settings listener")
			return
		case msg, ok := <-channel:
			if !ok || msg == nil {
				r.logger.Fatalf("Redis connection lost, exiting to allow systemd restart")
			}
			r.logger.Debugf("Settings update: %s", msg.Payload)
			if r.callbacks.SettingsChanged != nil {
				r.callbacks.SettingsChanged(msg.Payload)
			}
		}
	}
}

// PublishPowerState atomically publishes the current state's wire name,
// code, timestamp and alarm flag, then notifies subscribers.
func (r *RedisClient) PublishPowerState(state types.State, alarm bool) error {
	timestamp := time.Now().Format(time.RFC3339)

	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, stateHash, "state", state.Name())
	pipe.HSet(r.ctx, stateHash, "state:code", state.Code())
	pipe.HSet(r.ctx, stateHash, "state:timestamp", timestamp)
	pipe.HSet(r.ctx, stateHash, "alarm", strconv.FormatBool(alarm))
	pipe.Publish(r.ctx, stateChannel, "state")
	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Warnf("Failed to publish power state: %v", err)
		return err
	}
	r.logger.Debugf("Published state %s (code %d, alarm %t)", state.Name(), state.Code(), alarm)
	return nil
}

// PublishVersionInfo publishes the service version to the state hash, both
// as a string and in the packed numeric form older hosts read.
func (r *RedisClient) PublishVersionInfo(version string) error {
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, stateHash, "fw-version", version)
	if code, ok := VersionCode(version); ok {
		pipe.HSet(r.ctx, stateHash, "fw-version:code", code)
	} else {
		r.logger.Warnf("Unparsable version %q, publishing string only", version)
	}
	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Warnf("Failed to publish version: %v", err)
		return err
	}
	return nil
}

// VersionCode packs "major.minor.patch[-alphaN]" into one number,
// (major<<24)|(minor<<16)|(patch<<8)|alpha.
func VersionCode(version string) (uint32, bool) {
	base, alphaPart, hasAlpha := strings.Cut(version, "-alpha")
	parts := strings.Split(base, ".")
	if len(parts) != 3 {
		return 0, false
	}

	var bytes [4]uint64
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 10, 8)
		if err != nil {
			return 0, false
		}
		bytes[i] = v
	}
	if hasAlpha {
		v, err := strconv.ParseUint(alphaPart, 10, 8)
		if err != nil {
			return 0, false
		}
		bytes[3] = v
	}

	return uint32(bytes[0])<<24 | uint32(bytes[1])<<16 | uint32(bytes[2])<<8 | uint32(bytes[3]), true
}

// GetConfigField reads a policy field from the config hash. A missing field
// is returned as an empty string, not an error.
func (r *RedisClient) GetConfigField(ctx context.Context, field string) (string, error) {
	value, err := r.client.HGet(ctx, configHash, field).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config field %s: %w", field, err)
	}
	return value, nil
}

// SetConfigField writes a policy field to the config hash.
func (r *RedisClient) SetConfigField(ctx context.Context, field, value string) error {
	if err := r.client.HSet(ctx, configHash, field, value).Err(); err != nil {
		return fmt.Errorf("failed to set config field %s: %w", field, err)
	}
	return nil
}

func (r *RedisClient) Close() error {
	r.logger.Infof("Closing Redis client")
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Infof("All Redis goroutines finished")
	case <-time.After(5 * time.Second):
		r.logger.Warnf("Timeout waiting for Redis goroutines to finish")
	}

	return r.client.Close()
}
