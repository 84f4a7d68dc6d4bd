// Package metrics gathers pipeline message counters and stage timers.
package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	rx = iota
	tx
	proc
	errs
	blocked
	numCounters
)

var msgCounters [numCounters]uint64

// deltas since the last ReadMsgCounters.
var read = struct {
	last [numCounters]uint64
	sync.Mutex
}{}

// A MsgCounters records message counters.
type MsgCounters struct {
	// Rx is the count of datagrams received from the locked sender.
	Rx uint64

	// Tx is the count of messages delivered to worker queues.
	Tx uint64

	// Proc is the count of messages processed by workers.
	Proc uint64

	// Err is the count of messages or cycles that failed in a worker.
	Err uint64

	// Blocked is the count of datagrams dropped from senders other than the locked one.
	Blocked uint64

	// At is the time the counters were sampled at.
	At time.Time
}

func (m MsgCounters) String() string {
	return fmt.Sprintf("rx=%d tx=%d proc=%d err=%d blocked=%d", m.Rx, m.Tx, m.Proc, m.Err, m.Blocked)
}

// ReadMsgCounters populates m with message counter delta values
// since last time it was called.
func ReadMsgCounters(m *MsgCounters) {
	read.Lock()
	defer read.Unlock()

	var current [numCounters]uint64
	for i := range msgCounters {
		current[i] = atomic.LoadUint64(&msgCounters[i])
	}

	m.At = time.Now().UTC()
	m.Rx = current[rx] - read.last[rx]
	m.Tx = current[tx] - read.last[tx]
	m.Proc = current[proc] - read.last[proc]
	m.Err = current[errs] - read.last[errs]
	m.Blocked = current[blocked] - read.last[blocked]

	read.last = current
}

// Totals returns the counters accumulated since the process started.
func Totals() MsgCounters {
	return MsgCounters{
		Rx:      atomic.LoadUint64(&msgCounters[rx]),
		Tx:      atomic.LoadUint64(&msgCounters[tx]),
		Proc:    atomic.LoadUint64(&msgCounters[proc]),
		Err:     atomic.LoadUint64(&msgCounters[errs]),
		Blocked: atomic.LoadUint64(&msgCounters[blocked]),
		At:      time.Now().UTC(),
	}
}

// MsgRx increments the message received counter. It is safe for concurrent access.
func MsgRx() {
	atomic.AddUint64(&msgCounters[rx], 1)
}

// MsgTx increments the message transmitted counter. It is safe for concurrent access.
func MsgTx() {
	atomic.AddUint64(&msgCounters[tx], 1)
}

// MsgProc increments the message processed counter. It is safe for concurrent access.
func MsgProc() {
	atomic.AddUint64(&msgCounters[proc], 1)
}

// MsgErr increments the message error counter. It is safe for concurrent access.
func MsgErr() {
	atomic.AddUint64(&msgCounters[errs], 1)
}

// MsgBlocked increments the blocked sender counter. It is safe for concurrent access.
func MsgBlocked() {
	atomic.AddUint64(&msgCounters[blocked], 1)
}
