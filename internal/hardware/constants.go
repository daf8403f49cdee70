package hardware

const (
	GpioChipDevice = "gpiochip0"
	GpioConsumer   = "power-service"

	AdcDevice    = "iio:device0"
	AdcVinChan   = 0
	AdcVscapChan = 1

	// 12-bit ADC full-scale voltages, including the input dividers, plus
	// experimentally determined correction factors.
	adcResolution   = 4096.0
	VinMaxValue     = 40.0
	VscapMaxValue   = 11.0
	VinCorrection   = 1.015
	VscapCorrection = 1.059

	LEDSpiDevice = "/dev/spidev0.0"
	LEDCount     = 5
)

// Output line offsets on the GPIO chip.
var OutputMappings = map[string]int{
	"rail_enable":   6,
	"host_sleep":    7,
	"usb_disable_0": 8,
	"usb_disable_1": 9,
	"usb_disable_2": 10,
	"usb_disable_3": 11,
	"button_emu":    12,
}

// Input line offsets on the GPIO chip.
var InputMappings = map[string]int{
	"host_power_sense": 4,
	"power_button":     5,
}
