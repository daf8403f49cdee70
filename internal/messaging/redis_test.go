package messaging

import (
	"testing"
	"time"

	"power-service/internal/logger"
	"power-service/internal/types"
)

// ===== Power Command Parsing =====

func TestParsePowerCommand(t *testing.T) {
	cases := []struct {
		value string
		want  types.CommandKind
	}{
		{"shutdown", types.CmdShutdown},
		{"standby", types.CmdStandbyShutdown},
		{"off", types.CmdOff},
	}
	for _, tc := range cases {
		cmd, err := ParsePowerCommand(tc.value)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tc.value, err)
			continue
		}
		if cmd.Kind != tc.want {
			t.Errorf("%q: expected %s, got %s", tc.value, tc.want, cmd.Kind)
		}
	}
}

func TestParsePowerCommandRejectsJunk(t *testing.T) {
	for _, value := range []string{"", "reboot", "SHUTDOWN", "shutdown ", "off;off"} {
		if _, err := ParsePowerCommand(value); err == nil {
			t.Errorf("%q: expected an error", value)
		}
	}
}

// ===== Watchdog Command Parsing =====

func TestParseWatchdogCommand(t *testing.T) {
	cmd, err := ParseWatchdogCommand("ping")
	if err != nil {
		t.Fatalf("ping: unexpected error: %v", err)
	}
	if cmd.Kind != types.CmdWatchdogPing {
		t.Errorf("ping: expected %s, got %s", types.CmdWatchdogPing, cmd.Kind)
	}

	cmd, err = ParseWatchdogCommand("timeout:5000")
	if err != nil {
		t.Fatalf("timeout:5000: unexpected error: %v", err)
	}
	if cmd.Kind != types.CmdSetWatchdogTimeout || cmd.TimeoutMs != 5000 {
		t.Errorf("timeout:5000: got %#v", cmd)
	}

	// Zero disables the watchdog; it is a valid payload.
	cmd, err = ParseWatchdogCommand("timeout:0")
	if err != nil {
		t.Fatalf("timeout:0: unexpected error: %v", err)
	}
	if cmd.TimeoutMs != 0 {
		t.Errorf("timeout:0: expected 0, got %d", cmd.TimeoutMs)
	}
}

func TestParseWatchdogCommandRejectsJunk(t *testing.T) {
	cases := []string{
		"",
		"pong",
		"timeout:",
		"timeout:abc",
		"timeout:-1",
		"timeout:70000", // exceeds uint16
		"timeout:5000ms",
	}
	for _, value := range cases {
		if _, err := ParseWatchdogCommand(value); err == nil {
			t.Errorf("%q: expected an error", value)
		}
	}
}

// ===== Version Packing =====

func TestVersionCode(t *testing.T) {
	cases := []struct {
		version string
		want    uint32
		ok      bool
	}{
		{"2.1.0", 0x02010000, true},
		{"1.0.3", 0x01000300, true},
		{"2.1.0-alpha4", 0x02010004, true},
		{"255.255.255", 0xFFFFFF00, true},
		{"2.1", 0, false},
		{"2.1.0.4", 0, false},
		{"2.1.x", 0, false},
		{"256.0.0", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := VersionCode(tc.version)
		if ok != tc.ok || got != tc.want {
			t.Errorf("%q: expected (%#08x, %t), got (%#08x, %t)",
				tc.version, tc.want, tc.ok, got, ok)
		}
	}
}

// ===== Command Delivery =====

type commandRecorder struct {
	delivered []types.Command
}

func (c *commandRecorder) deliver(cmd types.Command) {
	c.delivered = append(c.delivered, cmd)
}

func newTestClient(rec *commandRecorder, defaultTimeout time.Duration) *RedisClient {
	return NewRedisClient("localhost", 6379, logger.NewLogger(nil, logger.LogLevelError), Callbacks{
		Command:                rec.deliver,
		DefaultWatchdogTimeout: func() time.Duration { return defaultTimeout },
	})
}

func TestCommandsArePrecededByLivenessPing(t *testing.T) {
	rec := &commandRecorder{}
	client := newTestClient(rec, 10*time.Second)

	if err := client.handlePowerCommand("shutdown"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(rec.delivered) != 2 {
		t.Fatalf("Expected 2 deliveries, got %d: %v", len(rec.delivered), rec.delivered)
	}
	if rec.delivered[0].Kind != types.CmdWatchdogPing {
		t.Errorf("Expected leading ping, got %s", rec.delivered[0].Kind)
	}
	if rec.delivered[1].Kind != types.CmdShutdown {
		t.Errorf("Expected shutdown, got %s", rec.delivered[1].Kind)
	}
}

func TestPingIsNotDoubled(t *testing.T) {
	rec := &commandRecorder{}
	client := newTestClient(rec, 10*time.Second)

	if err := client.handleWatchdogCommand("ping"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(rec.delivered) != 1 || rec.delivered[0].Kind != types.CmdWatchdogPing {
		t.Fatalf("Expected a single ping, got %v", rec.delivered)
	}
}

func TestWatchdogEnableUsesConfiguredDefault(t *testing.T) {
	rec := &commandRecorder{}
	client := newTestClient(rec, 20*time.Second)

	if err := client.handleWatchdogCommand("enable"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	last := rec.delivered[len(rec.delivered)-1]
	if last.Kind != types.CmdSetWatchdogTimeout || last.TimeoutMs != 20000 {
		t.Errorf("Expected set-watchdog-timeout 20000, got %#v", last)
	}
}

func TestWatchdogEnableClampsOutOfRangeDefaults(t *testing.T) {
	cases := []struct {
		configured time.Duration
		want       uint16
	}{
		// Oversized values clamp to the payload range; they must never
		// wrap to a shorter period or to 0, which would disarm.
		{120 * time.Second, 65535},
		{65536 * time.Millisecond, 65535},
		{65535 * time.Millisecond, 65535},
		// A non-positive configured value falls back to the built-in
		// default instead of arming a zero (disabled) watchdog.
		{0, 10000},
	}
	for _, tc := range cases {
		rec := &commandRecorder{}
		client := newTestClient(rec, tc.configured)

		if err := client.handleWatchdogCommand("enable"); err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.configured, err)
		}

		last := rec.delivered[len(rec.delivered)-1]
		if last.Kind != types.CmdSetWatchdogTimeout || last.TimeoutMs != tc.want {
			t.Errorf("%s: expected set-watchdog-timeout %d, got %#v",
				tc.configured, tc.want, last)
		}
	}
}

func TestWatchdogDisableClearsTimeout(t *testing.T) {
	rec := &commandRecorder{}
	client := newTestClient(rec, 20*time.Second)

	if err := client.handleWatchdogCommand("disable"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	last := rec.delivered[len(rec.delivered)-1]
	if last.Kind != types.CmdSetWatchdogTimeout || last.TimeoutMs != 0 {
		t.Errorf("Expected set-watchdog-timeout 0, got %#v", last)
	}
}

func TestMalformedCommandsNeverDeliver(t *testing.T) {
	rec := &commandRecorder{}
	client := newTestClient(rec, 10*time.Second)

	if err := client.handlePowerCommand("explode"); err == nil {
		t.Error("Expected an error for an unknown power command")
	}
	if err := client.handleWatchdogCommand("timeout:never"); err == nil {
		t.Error("Expected an error for a malformed timeout")
	}
	if len(rec.delivered) != 0 {
		t.Errorf("Expected no deliveries, got %v", rec.delivered)
	}
}
