package hardware

import (
	"bytes"
	"testing"

	"power-service/internal/types"
)

// One WS2812 zero bit stretches to SPI "100", a one bit to "110". A 0x00
// color byte is therefore 100 repeated eight times, 0xFF is 110 repeated
// eight times.
var (
	spiZeroByte = []byte{0x92, 0x49, 0x24}
	spiOneByte  = []byte{0xDB, 0x6D, 0xB6}
)

func TestEncodeFrameLayout(t *testing.T) {
	buf := encodeFrame(types.ColorBlack, 3, 255)

	if want := 3*9 + ledResetBytes; len(buf) != want {
		t.Fatalf("Expected %d bytes, got %d", want, len(buf))
	}
	// Reset latch: trailing zeros long enough for the strip to latch.
	if !bytes.Equal(buf[len(buf)-ledResetBytes:], make([]byte, ledResetBytes)) {
		t.Error("Expected a zeroed reset tail")
	}
}

func TestEncodeFrameBitStretching(t *testing.T) {
	buf := encodeFrame(types.ColorRed, 1, 255)

	// GRB order: G=0x00, R=0xFF, B=0x00.
	if !bytes.Equal(buf[0:3], spiZeroByte) {
		t.Errorf("G channel: expected % X, got % X", spiZeroByte, buf[0:3])
	}
	if !bytes.Equal(buf[3:6], spiOneByte) {
		t.Errorf("R channel: expected % X, got % X", spiOneByte, buf[3:6])
	}
	if !bytes.Equal(buf[6:9], spiZeroByte) {
		t.Errorf("B channel: expected % X, got % X", spiZeroByte, buf[6:9])
	}
}

func TestEncodeFrameRepeatsPerLED(t *testing.T) {
	buf := encodeFrame(types.ColorGreen, 4, 255)
	for i := 1; i < 4; i++ {
		if !bytes.Equal(buf[i*9:(i+1)*9], buf[0:9]) {
			t.Fatalf("LED %d differs from LED 0", i)
		}
	}
}

func TestEncodeFrameBrightness(t *testing.T) {
	// Zero brightness renders any color as black.
	dark := encodeFrame(types.ColorPurple, 2, 0)
	black := encodeFrame(types.ColorBlack, 2, 255)
	if !bytes.Equal(dark, black) {
		t.Error("Expected zero brightness to equal black")
	}

	// Reduced brightness must change the stream, not just attenuate to zero.
	half := encodeFrame(types.ColorRed, 1, 128)
	full := encodeFrame(types.ColorRed, 1, 255)
	if bytes.Equal(half, full) {
		t.Error("Expected half brightness to differ from full")
	}
	if bytes.Equal(half, encodeFrame(types.ColorBlack, 1, 255)) {
		t.Error("Expected half brightness to stay visible")
	}
}
