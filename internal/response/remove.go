// Package response is for removing instrument responses from traces.
package response

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"github.com/GeoNet/rsudp/internal/dsp"
	"github.com/GeoNet/rsudp/internal/inventory"
	"github.com/golang/groupcache/lru"
	"gonum.org/v1/gonum/dsp/fourier"
)

// WaterLevel in dB below the spectrum maximum.
const WaterLevel = 4.5

// motion is the time derivative order of a physical quantity.
type motion int

const (
	displacement motion = iota
	velocity
	acceleration
)

// nativeMotion maps StationXML input units to a derivative order.
func nativeMotion(units string) motion {
	switch units {
	case "M":
		return displacement
	case "M/S**2", "M/S2", "M/S/S":
		return acceleration
	default:
		return velocity
	}
}

// removal describes one spectral division.
type removal struct {
	target     motion
	preFilt    []float64
	waterLevel float64
}

// Remover divides traces by instrument responses.  Inverse spectra are cached.
type Remover struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// NewRemover returns a Remover caching up to size inverse spectra.
func NewRemover(size int) *Remover {
	return &Remover{cache: lru.New(size)}
}

// remove deconvolves x in place.
func (r *Remover) remove(x []float64, sps float64, resp inventory.Response, rm removal) {
	n := len(x)
	if n == 0 {
		return
	}

	nfft := dsp.NextPow2(2 * n)
	inv := r.inverse(nfft, sps, resp, rm)

	fft := fourier.NewFFT(nfft)
	padded := make([]float64, nfft)
	copy(padded, x)

	coef := fft.Coefficients(nil, padded)
	for i := range coef {
		coef[i] *= inv[i]
	}

	out := fft.Sequence(nil, coef)
	scale := 1 / float64(nfft)
	for i := range x {
		x[i] = out[i] * scale
	}
}

func (r *Remover) inverse(nfft int, sps float64, resp inventory.Response, rm removal) []complex128 {
	key := fmt.Sprintf("%s.%d.%g.%d.%v.%g.%g.%v", resp.Channel, nfft, sps, rm.target, rm.preFilt, rm.waterLevel, resp.Sensitivity, resp.PolesZeros)

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.cache.Get(key); ok {
		return v.([]complex128)
	}

	inv := invert(nfft, sps, resp, rm)
	r.cache.Add(key, inv)

	return inv
}

// invert builds the water levelled inverse response, tapered by the pre-filter.
func invert(nfft int, sps float64, resp inventory.Response, rm removal) []complex128 {
	m := nfft/2 + 1
	h := make([]complex128, m)

	native := nativeMotion(resp.InputUnits)

	var peak float64
	for i := range h {
		f := float64(i) * sps / float64(nfft)
		h[i] = evaluate(resp, f, native, rm.target)
		peak = math.Max(peak, cmplx.Abs(h[i]))
	}

	inv := make([]complex128, m)
	if peak == 0 {
		return inv
	}

	level := peak * math.Pow(10, -rm.waterLevel/20)

	for i, v := range h {
		a := cmplx.Abs(v)
		switch {
		case a == 0:
			continue
		case a < level:
			v *= complex(level/a, 0)
		}
		w := 1.0
		if rm.preFilt != nil {
			w = cosineWindow(float64(i)*sps/float64(nfft), rm.preFilt)
		}
		inv[i] = complex(w, 0) / v
	}

	return inv
}

// evaluate returns the response at f Hz as counts per target units.
func evaluate(resp inventory.Response, f float64, native, target motion) complex128 {
	pz := resp.PolesZeros

	var s complex128
	if pz.Hertz {
		s = complex(0, f)
	} else {
		s = complex(0, 2*math.Pi*f)
	}

	h := complex(resp.Sensitivity*pz.A0, 0)
	for _, z := range pz.Zeros {
		h *= s - z
	}
	for _, p := range pz.Poles {
		h /= s - p
	}

	// counts per target units, e.g. counts/(m/s) = counts/(m/s²) / iω.
	iw := complex(0, 2*math.Pi*f)
	for d := native; d > target; d-- {
		h *= iw
	}
	for d := native; d < target; d++ {
		if iw == 0 {
			return 0
		}
		h /= iw
	}

	return h
}

// cosineWindow is one between f2 and f3, zero outside f1 and f4, with cosine ramps between.
func cosineWindow(f float64, c []float64) float64 {
	f1, f2, f3, f4 := c[0], c[1], c[2], c[3]
	switch {
	case f <= f1 || f >= f4:
		return 0
	case f < f2:
		return 0.5 * (1 - math.Cos(math.Pi*(f-f1)/(f2-f1)))
	case f <= f3:
		return 1
	default:
		return 0.5 * (1 + math.Cos(math.Pi*(f-f3)/(f4-f3)))
	}
}
