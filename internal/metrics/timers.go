package metrics

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// timings per id, drained by ReadTimers.
var agg = struct {
	taken map[string][]time.Duration
	sync.Mutex
}{
	taken: make(map[string][]time.Duration),
}

// Timer is for timing a pipeline stage, e.g. deconvolution or a file write.
type Timer struct {
	start   time.Time
	taken   time.Duration
	stopped bool
}

// TimerStats summarises the timings tracked under one id.
type TimerStats struct {
	ID           string
	Count        int
	Average      time.Duration
	Percentile50 time.Duration
	Percentile95 time.Duration
}

func (s TimerStats) String() string {
	return fmt.Sprintf("%s n=%d avg=%s p50=%s p95=%s", s.ID, s.Count, s.Average, s.Percentile50, s.Percentile95)
}

// Start returns started Timer.
func Start() Timer {
	return Timer{start: time.Now()}
}

// Stop stops the timer.
func (t *Timer) Stop() {
	t.taken = time.Since(t.start)
	t.stopped = true
}

// Track stops the timer if it is not already stopped and records the time taken
// under id.
func (t *Timer) Track(id string) {
	if !t.stopped {
		t.Stop()
	}

	agg.Lock()
	agg.taken[id] = append(agg.taken[id], t.taken)
	agg.Unlock()
}

// Taken returns the time between start and stop.
func (t *Timer) Taken() time.Duration {
	return t.taken
}

// ReadTimers returns stats for every id tracked since the last call, sorted by id.
func ReadTimers() []TimerStats {
	agg.Lock()
	taken := agg.taken
	agg.taken = make(map[string][]time.Duration)
	agg.Unlock()

	var s []TimerStats

	for k, v := range taken {
		var sum time.Duration
		for _, d := range v {
			sum += d
		}

		sort.Slice(v, func(i, j int) bool { return v[i] < v[j] })

		s = append(s, TimerStats{
			ID:           k,
			Count:        len(v),
			Average:      sum / time.Duration(len(v)),
			Percentile50: percentile(0.5, v),
			Percentile95: percentile(0.95, v),
		})
	}

	sort.Slice(s, func(i, j int) bool { return s[i].ID < s[j].ID })

	return s
}

// percentile returns the kth percentile of the sorted v.
func percentile(k float64, v []time.Duration) time.Duration {
	if len(v) == 0 {
		return 0
	}

	p := k * float64(len(v))

	if p != math.Trunc(p) {
		return v[int(math.Ceil(p))-1]
	}

	idx := int(p)
	if idx >= len(v) {
		return v[len(v)-1]
	}
	if idx == 0 {
		return v[0]
	}

	return (v[idx-1] + v[idx]) / 2
}
