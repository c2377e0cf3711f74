// Package temperature holds typed temperatures reported by camera sensors.
package temperature

import "fmt"

type (
	// Celsius is a temperature in C
	Celsius float64

	// Kelvin is a temperature in K
	Kelvin float64
)

// C2K converts a temp in Celsius to Kelvin
func C2K(c Celsius) Kelvin {
	return Kelvin(c + 273.15)
}

func (c Celsius) String() string {
	return fmt.Sprintf("%.1f C", float64(c))
}

// Drift models the warmup of an electronic assembly: each step moves the
// temperature a fraction Rate of the way from its current value to Steady
type Drift struct {
	Steady Celsius
	Rate   float64
}

// Step advances t by one step of the drift model
func (d Drift) Step(t Celsius) Celsius {
	return t + Celsius(d.Rate)*(d.Steady-t)
}
