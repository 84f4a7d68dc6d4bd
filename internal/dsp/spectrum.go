package dsp

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// DefaultPowerThreshold is the cumulative signal power fraction that marks the low corner.
const DefaultPowerThreshold = 1e-4

// NoiseFraction is the trailing proportion of a trace taken as noise.
const NoiseFraction = 0.1

// LowCorner estimates the low corner frequency in Hz of x sampled at sps.  The
// trailing NoiseFraction of x is taken as noise, resampled to the length of x, and the
// positive difference of the signal and noise amplitude spectra is integrated from zero
// to Nyquist.  The frequency at which the normalised integral first exceeds threshold
// is returned.  Zero is returned when the signal holds no power above the noise.
func LowCorner(x []float64, sps, threshold float64) float64 {
	n := len(x)
	if n < 4 || sps <= 0 {
		return 0
	}

	sig := append([]float64(nil), x...)
	Detrend(sig)

	w := max(2, int(float64(n)*NoiseFraction))
	noise := Interpolate(sig[n-w:], n)

	fft := fourier.NewFFT(n)
	s := fft.Coefficients(nil, sig)
	nz := fft.Coefficients(nil, noise)

	diff := make([]float64, len(s))
	var total float64
	for i := range s {
		d := cmplx.Abs(s[i]) - cmplx.Abs(nz[i])
		if d > 0 {
			diff[i] = d
			total += d
		}
	}
	if total == 0 {
		return 0
	}

	var cum float64
	for i, d := range diff {
		cum += d
		if cum/total > threshold {
			return fft.Freq(i) * sps
		}
	}

	return sps / 2
}
