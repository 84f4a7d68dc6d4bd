package dsp

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Gravity is standard gravity in m/s².
const Gravity = 9.80665

// Demean removes the mean of x in place.
func Demean(x []float64) {
	if len(x) == 0 {
		return
	}
	floats.AddConst(-floats.Sum(x)/float64(len(x)), x)
}

// Detrend removes the least squares straight line from x in place.
func Detrend(x []float64) {
	n := float64(len(x))
	if n < 2 {
		Demean(x)
		return
	}

	var sx, sy, sxx, sxy float64
	for i, v := range x {
		f := float64(i)
		sx += f
		sy += v
		sxx += f * f
		sxy += f * v
	}

	slope := (n*sxy - sx*sy) / (n*sxx - sx*sx)
	icept := (sy - slope*sx) / n

	for i := range x {
		x[i] -= icept + slope*float64(i)
	}
}

// cosineRamp returns n weights rising from 0 towards 1 (half a Hann window).
func cosineRamp(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(math.Pi*float64(i)/float64(n)))
	}
	return w
}

// Taper applies a cosine taper to both ends of x in place, fraction is the total
// proportion of samples tapered (half at each end).
func Taper(x []float64, fraction float64) {
	n := int(math.Floor(float64(len(x)) * fraction / 2))
	if n < 1 {
		return
	}
	w := cosineRamp(n)
	for i := 0; i < n; i++ {
		x[i] *= w[i]
		x[len(x)-1-i] *= w[i]
	}
}

// TaperLeft applies a cosine taper to the start of x in place over at most fraction
// of the samples and at most maxLen samples.
func TaperLeft(x []float64, fraction float64, maxLen int) {
	n := min(int(math.Floor(float64(len(x))*fraction)), maxLen)
	if n < 1 {
		return
	}
	w := cosineRamp(n)
	for i := 0; i < n; i++ {
		x[i] *= w[i]
	}
}

// Integrate replaces x with its cumulative sum scaled by dt.
func Integrate(x []float64, dt float64) {
	floats.CumSum(x, x)
	floats.Scale(dt, x)
}

// Differentiate replaces x with its gradient, central differences in the interior and
// one sided differences at the ends, divided by dt.
func Differentiate(x []float64, dt float64) {
	n := len(x)
	if n < 2 {
		for i := range x {
			x[i] = 0
		}
		return
	}

	g := make([]float64, n)
	g[0] = (x[1] - x[0]) / dt
	g[n-1] = (x[n-1] - x[n-2]) / dt
	for i := 1; i < n-1; i++ {
		g[i] = (x[i+1] - x[i-1]) / (2 * dt)
	}
	copy(x, g)
}

// Interpolate linearly resamples x to n points spanning the same interval.
func Interpolate(x []float64, n int) []float64 {
	y := make([]float64, n)
	switch {
	case len(x) == 0 || n == 0:
		return y
	case len(x) == 1 || n == 1:
		for i := range y {
			y[i] = x[0]
		}
		return y
	}

	step := float64(len(x)-1) / float64(n-1)
	for i := range y {
		p := float64(i) * step
		j := int(p)
		if j >= len(x)-1 {
			y[i] = x[len(x)-1]
			continue
		}
		f := p - float64(j)
		y[i] = x[j]*(1-f) + x[j+1]*f
	}
	return y
}

// AbsStats returns the minimum, maximum and mean of |x|.
func AbsStats(x []float64) (lo, hi, mean float64) {
	if len(x) == 0 {
		return 0, 0, 0
	}
	lo = math.Inf(1)
	for _, v := range x {
		a := math.Abs(v)
		lo = math.Min(lo, a)
		hi = math.Max(hi, a)
		mean += a
	}
	return lo, hi, mean / float64(len(x))
}

// AbsMax returns the largest |x|.
func AbsMax(x []float64) float64 {
	var m float64
	for _, v := range x {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

// Finite reports whether x holds no NaN or infinite values.
func Finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// NextPow2 returns the smallest power of two >= n.
func NextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
