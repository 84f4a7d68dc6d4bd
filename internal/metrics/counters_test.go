package metrics_test

import (
	"runtime"
	"strconv"
	"testing"

	"github.com/GeoNet/rsudp/internal/metrics"
)

func TestMsgCounters(t *testing.T) {
	testCases := []struct {
		i string
		f func()
		e metrics.MsgCounters
	}{
		{i: l(), f: metrics.MsgRx, e: metrics.MsgCounters{Rx: 1}},
		{i: l(), f: metrics.MsgTx, e: metrics.MsgCounters{Tx: 1}},
		{i: l(), f: metrics.MsgProc, e: metrics.MsgCounters{Proc: 1}},
		{i: l(), f: metrics.MsgErr, e: metrics.MsgCounters{Err: 1}},
		{i: l(), f: metrics.MsgBlocked, e: metrics.MsgCounters{Blocked: 1}},
	}

	var m metrics.MsgCounters

	for _, v := range testCases {
		metrics.ReadMsgCounters(&m)

		if m.Rx != 0 || m.Tx != 0 || m.Proc != 0 || m.Err != 0 || m.Blocked != 0 {
			t.Errorf("%s expected zero counters got %s", v.i, m)
		}

		before := metrics.Totals()

		v.f()

		metrics.ReadMsgCounters(&m)

		m.At = v.e.At
		if m != v.e {
			t.Errorf("%s expected %s got %s", v.i, v.e, m)
		}

		after := metrics.Totals()
		if after.Rx+after.Tx+after.Proc+after.Err+after.Blocked != before.Rx+before.Tx+before.Proc+before.Err+before.Blocked+1 {
			t.Errorf("%s expected totals to grow by one", v.i)
		}
	}
}

// l returns the line of code it was called from.
func l() (loc string) {
	_, _, l, _ := runtime.Caller(1)
	return "L" + strconv.Itoa(l)
}
