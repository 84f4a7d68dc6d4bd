package process

import "github.com/GeoNet/rsudp/internal/dsp"

// intensity buckets of pga/g, upper bounds inclusive.
var intensity = []struct {
	max   float64
	label string
}{
	{0.0017, "I"},
	{0.014, "II-III"},
	{0.039, "IV"},
	{0.092, "V"},
	{0.18, "VI"},
	{0.34, "VII"},
	{0.65, "VIII"},
	{1.24, "IX"},
}

// Intensity maps peak ground acceleration in m/s² onto the modified Mercalli scale.
// Zero or negative pga is "0".
func Intensity(pga float64) string {
	g := pga / dsp.Gravity
	if g <= 0 {
		return "0"
	}

	for _, i := range intensity {
		if g <= i.max {
			return i.label
		}
	}

	return "X+"
}
