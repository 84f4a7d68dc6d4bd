package dsp

// ltaFloor keeps the ratio finite on silent data.
const ltaFloor = 1e-30

// RecursiveSTALTA returns the recursive short-term over long-term average
// characteristic function of x with windows of ns and nl samples.
// The first nl values are undefined and set to zero.
func RecursiveSTALTA(x []float64, ns, nl int) []float64 {
	cft := make([]float64, len(x))
	if ns < 1 || nl < 1 {
		return cft
	}

	fs, fl := float64(ns), float64(nl)
	var sta, lta float64

	for i, v := range x {
		sq := v * v
		sta = ((fs-1)*sta + sq) / fs
		lta = ((fl-1)*lta + sq) / fl
		if i < nl {
			continue
		}
		cft[i] = sta / max(lta, ltaFloor)
	}

	return cft
}

// MaxFrom returns the largest value of x at or after index i, and its index.
// It returns -1 when there are no values.
func MaxFrom(x []float64, i int) (float64, int) {
	m, at := 0.0, -1
	for j := max(i, 0); j < len(x); j++ {
		if at < 0 || x[j] > m {
			m, at = x[j], j
		}
	}
	return m, at
}
