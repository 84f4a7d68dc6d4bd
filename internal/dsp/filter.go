// Package dsp holds the numerical kernels used on seismic traces.
package dsp

import (
	"math"
	"math/cmplx"
	"sort"

	"github.com/pkg/errors"
)

// ErrFilter is returned for filter corners that cannot be realised.
var ErrFilter = errors.New("invalid filter")

// Biquad is a second order section, b are numerator and a denominator coefficients with a[0] == 1.
type Biquad struct {
	B [3]float64
	A [3]float64
}

// Filter is a cascade of second order sections.
type Filter []Biquad

type zpk struct {
	z, p []complex128
	k    float64
}

// butterworth returns the analog lowpass prototype of order n.
func butterworth(n int) zpk {
	var f zpk
	for m := -n + 1; m < n; m += 2 {
		f.p = append(f.p, -cmplx.Exp(complex(0, math.Pi*float64(m)/float64(2*n))))
	}
	f.k = 1
	return f
}

func prewarp(wn float64) float64 {
	// normalised frequency (1 is Nyquist) with fs = 2.
	return 4 * math.Tan(math.Pi*wn/2)
}

func (f zpk) degree() int {
	return len(f.p) - len(f.z)
}

func lowpass(f zpk, wo float64) zpk {
	var o zpk
	for _, z := range f.z {
		o.z = append(o.z, z*complex(wo, 0))
	}
	for _, p := range f.p {
		o.p = append(o.p, p*complex(wo, 0))
	}
	o.k = f.k * math.Pow(wo, float64(f.degree()))
	return o
}

func highpass(f zpk, wo float64) zpk {
	var o zpk
	num, den := complex(1, 0), complex(1, 0)
	for _, z := range f.z {
		o.z = append(o.z, complex(wo, 0)/z)
		num *= -z
	}
	for _, p := range f.p {
		o.p = append(o.p, complex(wo, 0)/p)
		den *= -p
	}
	for i := 0; i < f.degree(); i++ {
		o.z = append(o.z, 0)
	}
	o.k = f.k * real(num/den)
	return o
}

func bandpass(f zpk, wo, bw float64) zpk {
	var o zpk
	w2 := complex(wo*wo, 0)
	half := complex(bw/2, 0)
	for _, z := range f.z {
		zl := z * half
		r := cmplx.Sqrt(zl*zl - w2)
		o.z = append(o.z, zl+r, zl-r)
	}
	for _, p := range f.p {
		pl := p * half
		r := cmplx.Sqrt(pl*pl - w2)
		o.p = append(o.p, pl+r, pl-r)
	}
	for i := 0; i < f.degree(); i++ {
		o.z = append(o.z, 0)
	}
	o.k = f.k * math.Pow(bw, float64(f.degree()))
	return o
}

// bilinear maps an analog filter to digital with fs = 2.
func bilinear(f zpk) zpk {
	const fs2 = complex(4, 0)
	var o zpk
	num, den := complex(1, 0), complex(1, 0)
	for _, z := range f.z {
		o.z = append(o.z, (fs2+z)/(fs2-z))
		num *= fs2 - z
	}
	for _, p := range f.p {
		o.p = append(o.p, (fs2+p)/(fs2-p))
		den *= fs2 - p
	}
	for i := 0; i < f.degree(); i++ {
		o.z = append(o.z, -1)
	}
	o.k = f.k * real(num/den)
	return o
}

// sections pairs poles and zeros into second order sections.  Digital Butterworth
// zeros all lie on the real axis at +1 or -1.
func sections(f zpk) Filter {
	// poles with positive imaginary part stand for conjugate pairs.
	var pairs, singles []complex128
	for _, p := range f.p {
		switch {
		case imag(p) > 1e-12:
			pairs = append(pairs, p)
		case math.Abs(imag(p)) <= 1e-12:
			singles = append(singles, complex(real(p), 0))
		}
	}

	zeros := make([]float64, len(f.z))
	for i, z := range f.z {
		zeros[i] = real(z)
	}
	sort.Float64s(zeros)

	var sos Filter
	next := func() []float64 {
		switch len(zeros) {
		case 0:
			return nil
		case 1:
			z := zeros
			zeros = nil
			return z
		}
		z := []float64{zeros[0], zeros[len(zeros)-1]}
		zeros = zeros[1 : len(zeros)-1]
		return z
	}

	for _, p := range pairs {
		var s Biquad
		s.A = [3]float64{1, -2 * real(p), real(p)*real(p) + imag(p)*imag(p)}
		s.B = numerator(next())
		sos = append(sos, s)
	}
	for len(singles) > 0 {
		var s Biquad
		if len(singles) >= 2 {
			p1, p2 := real(singles[0]), real(singles[1])
			s.A = [3]float64{1, -(p1 + p2), p1 * p2}
			singles = singles[2:]
		} else {
			s.A = [3]float64{1, -real(singles[0]), 0}
			singles = nil
		}
		s.B = numerator(next())
		sos = append(sos, s)
	}

	if len(sos) > 0 {
		for i := range sos[0].B {
			sos[0].B[i] *= f.k
		}
	}

	return sos
}

func numerator(z []float64) [3]float64 {
	switch len(z) {
	case 0:
		return [3]float64{1, 0, 0}
	case 1:
		return [3]float64{1, -z[0], 0}
	default:
		return [3]float64{1, -(z[0] + z[1]), z[0] * z[1]}
	}
}

// Lowpass designs a Butterworth lowpass filter with the corner freq in Hz.
func Lowpass(freq, sps float64, order int) (Filter, error) {
	wn := freq / (sps / 2)
	if wn <= 0 || wn >= 1 || order < 1 {
		return nil, errors.Wrapf(ErrFilter, "lowpass %g Hz at %g sps", freq, sps)
	}
	return sections(bilinear(lowpass(butterworth(order), prewarp(wn)))), nil
}

// Highpass designs a Butterworth highpass filter with the corner freq in Hz.
func Highpass(freq, sps float64, order int) (Filter, error) {
	wn := freq / (sps / 2)
	if wn <= 0 || wn >= 1 || order < 1 {
		return nil, errors.Wrapf(ErrFilter, "highpass %g Hz at %g sps", freq, sps)
	}
	return sections(bilinear(highpass(butterworth(order), prewarp(wn)))), nil
}

// Bandpass designs a Butterworth bandpass filter between fmin and fmax in Hz.
// As with the lowpass and highpass the prototype order is order.
func Bandpass(fmin, fmax, sps float64, order int) (Filter, error) {
	lo, hi := fmin/(sps/2), fmax/(sps/2)
	if lo <= 0 || hi >= 1 || lo >= hi || order < 1 {
		return nil, errors.Wrapf(ErrFilter, "bandpass %g-%g Hz at %g sps", fmin, fmax, sps)
	}
	wl, wh := prewarp(lo), prewarp(hi)
	return sections(bilinear(bandpass(butterworth(order), math.Sqrt(wl*wh), wh-wl))), nil
}

// Apply filters x in place, forwards only.
func (f Filter) Apply(x []float64) {
	for _, s := range f {
		var z1, z2 float64
		for i, v := range x {
			y := s.B[0]*v + z1
			z1 = s.B[1]*v - s.A[1]*y + z2
			z2 = s.B[2]*v - s.A[2]*y
			x[i] = y
		}
	}
}

// ZeroPhase filters x in place forwards then backwards.
func (f Filter) ZeroPhase(x []float64) {
	f.Apply(x)
	reverse(x)
	f.Apply(x)
	reverse(x)
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
