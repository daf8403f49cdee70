package hardware

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"power-service/internal/logger"
	"power-service/internal/types"
)

// levelRecorder records set levels and sleeps as one interleaved script, so a
// test can assert the exact pulse shape.
type levelRecorder struct {
	script []string
	err    error
}

func (r *levelRecorder) set(value int) error {
	if r.err != nil {
		return r.err
	}
	r.script = append(r.script, fmt.Sprintf("set(%d)", value))
	return nil
}

func (r *levelRecorder) sleep(d time.Duration) {
	r.script = append(r.script, fmt.Sprintf("sleep(%s)", d))
}

func newTestPulser() (*Pulser, *levelRecorder) {
	rec := &levelRecorder{}
	p := NewPulser(logger.NewLogger(nil, logger.LogLevelError), rec.set)
	p.sleep = rec.sleep
	return p, rec
}

func assertScript(t *testing.T, rec *levelRecorder, want ...string) {
	t.Helper()
	if len(rec.script) != len(want) {
		t.Fatalf("Expected script %v, got %v", want, rec.script)
	}
	for i := range want {
		if rec.script[i] != want[i] {
			t.Fatalf("Expected script %v, got %v", want, rec.script)
		}
	}
}

// ===== Pulse Shapes =====

func TestClickPulseShape(t *testing.T) {
	p, rec := newTestPulser()
	if err := p.emit(types.ButtonClick); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	assertScript(t, rec,
		"set(1)", "sleep(100ms)",
		"set(0)", "sleep(200ms)",
		"set(1)", "sleep(100ms)")
}

func TestDoubleClickIsTwoFullClicks(t *testing.T) {
	p, rec := newTestPulser()
	if err := p.emit(types.ButtonDoubleClick); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	assertScript(t, rec,
		"set(1)", "sleep(100ms)",
		"set(0)", "sleep(200ms)",
		"set(1)", "sleep(100ms)",
		"set(1)", "sleep(100ms)",
		"set(0)", "sleep(200ms)",
		"set(1)", "sleep(100ms)")
}

func TestLongPressHold(t *testing.T) {
	p, rec := newTestPulser()
	if err := p.emit(types.ButtonLongPress); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	assertScript(t, rec,
		"set(1)", "sleep(100ms)",
		"set(0)", "sleep(5.5s)",
		"set(1)", "sleep(100ms)")
}

// ===== Raw Levels =====

func TestPressAndReleaseDriveRawLevels(t *testing.T) {
	p, rec := newTestPulser()

	// Active low: press drives 0, release drives 1.
	if err := p.emit(types.ButtonPress); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := p.emit(types.ButtonRelease); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	assertScript(t, rec, "set(0)", "set(1)")
}

// ===== Failures =====

func TestSetFailureStopsTheSequence(t *testing.T) {
	p, rec := newTestPulser()
	rec.err = errors.New("line closed")

	if err := p.emit(types.ButtonClick); err == nil {
		t.Fatal("Expected an error")
	}
	if len(rec.script) != 0 {
		t.Errorf("Expected no recorded levels, got %v", rec.script)
	}
}
