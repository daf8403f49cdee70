package types

// InputSnapshot is one consistent copy of the sampled inputs. The sampler
// refreshes the live record continuously; the event loop takes exactly one
// copy per tick so all edge detection within a tick sees the same values.
type InputSnapshot struct {
	Vin    float64 // external supply voltage
	Vscap  float64 // supercapacitor voltage
	HostOn bool    // host compute module power sense

	// Overvoltage is derived by the sampler: Vscap above the fixed
	// overvoltage limit.
	Overvoltage bool
}
